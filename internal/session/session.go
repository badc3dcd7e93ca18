// Package session hosts the server side of the engine: a registry of
// live games and, per game, the loop that advances physics at a fixed
// tick and publishes authoritative snapshots.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"mqttpong/internal/netwrk"
	"mqttpong/internal/pong"
	"mqttpong/internal/protocol"
)

var (
	// ErrSlotConflict reports a join for a seat bound to another token.
	ErrSlotConflict = errors.New("slot already bound")
	// ErrSessionExpired reports an operation on a reclaimed session.
	ErrSessionExpired = errors.New("session expired")
)

// slot is one player seat.
type slot struct {
	token   string
	limiter *rate.Limiter
}

// paddleSample is the conflated freshest inbound position for one
// player. The network side overwrites it at arrival rate; the tick loop
// consumes it at most once per tick.
type paddleSample struct {
	y   float64
	seq uint64
	set bool
}

// Session owns one game: the two seats, the match state and the loop
// publishing it. All mutable state sits behind one mutex; the loop and
// the inbound dispatch contend only briefly.
type Session struct {
	ID string

	conn netwrk.Conn
	log  zerolog.Logger
	cfg  Config

	mu          sync.Mutex
	slots       [2]slot
	inbox       [2]paddleSample
	lastLeave   [2]string
	match       *pong.Match
	lastActive  time.Time
	closed      bool
	lastState   protocol.StateUpdate
	lastStateAt time.Time

	cancel context.CancelFunc
}

func newSession(id string, conn netwrk.Conn, cfg Config, log zerolog.Logger) *Session {
	return &Session{
		ID:         id,
		conn:       conn,
		log:        log.With().Str("game", id).Logger(),
		cfg:        cfg,
		match:      pong.NewMatch(cfg.WinningScore, uint64(time.Now().UnixNano())),
		lastActive: time.Now(),
	}
}

// start launches the tick loop. Called once, before the session is
// shared.
func (s *Session) start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx)
}

func (s *Session) run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.step() {
				return
			}
		}
	}
}

// step advances one tick: apply the freshest paddle samples, move the
// world, publish snapshots. Returns false once the session is closed.
func (s *Session) step() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	for p := 1; p <= 2; p++ {
		in := &s.inbox[p-1]
		if in.set {
			s.match.ApplyPaddle(p, in.y, in.seq)
			in.set = false
		}
	}

	res := s.match.Step(s.cfg.TickInterval.Seconds())
	if res.ScoredBy != 0 {
		s.log.Debug().
			Int("player", res.ScoredBy).
			Int("p1", s.match.Score.P1).
			Int("p2", s.match.Score.P2).
			Msg("point scored")
	}
	if res.Ended {
		s.log.Info().Int("winner", s.match.Winner).Msg("game over")
	}
	if res.Restarted {
		s.log.Info().Msg("both players ready, match restarted")
	}

	playing := s.match.Status == protocol.StatusPlaying
	if playing {
		s.publishLocked(protocol.Topic(s.ID, protocol.ChanBall), s.match.BallUpdate())
	}
	s.publishStateLocked(playing)
	return true
}

// publishStateLocked sends the scoreboard snapshot: every tick during
// play, otherwise on change plus a slow heartbeat so late subscribers
// converge.
func (s *Session) publishStateLocked(playing bool) {
	cur := s.match.StateUpdate()
	masked := cur
	masked.Tick = 0
	if playing || masked != s.lastState || time.Since(s.lastStateAt) >= s.cfg.Heartbeat {
		s.publishLocked(protocol.Topic(s.ID, protocol.ChanState), cur)
		s.lastState = masked
		s.lastStateAt = time.Now()
	}
}

type wireMessage interface {
	Encode() ([]byte, error)
}

func (s *Session) publishLocked(topic string, msg wireMessage) {
	b, err := msg.Encode()
	if err != nil {
		s.log.Error().Err(err).Str("topic", topic).Msg("encode failed")
		return
	}
	if err := s.conn.Publish(topic, b); err != nil {
		s.log.Debug().Err(err).Str("topic", topic).Msg("publish failed")
	}
}

// bind attaches a token to a player seat. Rebinding the same token is
// the reconnect path and succeeds; a different token is refused. The
// moment both seats are taken the match starts.
func (s *Session) bind(player int, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionExpired
	}
	sl := &s.slots[player-1]
	if sl.token != "" && sl.token != token {
		return ErrSlotConflict
	}
	fresh := sl.token == ""
	sl.token = token
	if sl.limiter == nil {
		sl.limiter = rate.NewLimiter(rate.Limit(s.cfg.MsgRate), s.cfg.MsgBurst)
	}
	s.lastActive = time.Now()

	if fresh && s.slots[0].token != "" && s.slots[1].token != "" {
		s.match.StartPlay()
		s.log.Info().Msg("both seats bound, starting play")
	}
	return nil
}

// unbind releases a seat on a leave notice. Only the bound token may
// release it. The last player out closes the session; one remaining
// player suspends the match.
func (s *Session) unbind(player int, token, nonce string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if player != 1 && player != 2 {
		return
	}
	sl := &s.slots[player-1]
	if sl.token == "" || sl.token != token {
		return
	}
	// At-least-once delivery can replay a leave notice after its seat
	// was rebound; each nonce is honored once.
	if nonce != "" && nonce == s.lastLeave[player-1] {
		return
	}
	s.lastLeave[player-1] = nonce
	*sl = slot{}
	s.inbox[player-1] = paddleSample{}
	s.match.ReleaseSeat(player)
	s.lastActive = time.Now()
	s.log.Info().Int("player", player).Msg("seat released")

	if s.slots[0].token == "" && s.slots[1].token == "" {
		s.closeLocked("empty")
		return
	}
	s.match.Suspend()
}

// enqueuePaddle conflates the newest sample for the tick loop. Traffic
// for an unbound seat and traffic beyond the per-seat rate budget is
// dropped.
func (s *Session) enqueuePaddle(player int, u protocol.PaddleUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	sl := &s.slots[player-1]
	if sl.token == "" {
		return
	}
	if !sl.limiter.Allow() {
		return
	}
	in := &s.inbox[player-1]
	if !in.set || u.Seq > in.seq {
		*in = paddleSample{y: u.Y, seq: u.Seq, set: true}
	}
	s.lastActive = time.Now()
}

// submitReady records a restart vote if the token owns the seat.
func (s *Session) submitReady(n protocol.ReadyNotice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.slots[n.Player-1].token != n.Token {
		s.log.Debug().Int("player", n.Player).Msg("ready vote with foreign token, dropping")
		return
	}
	s.match.SubmitReady(n.Player, n.Ready)
	s.lastActive = time.Now()
}

// expireIfIdle closes the session when nothing has arrived within ttl.
// It reports whether the session is closed, for the registry's sweep.
func (s *Session) expireIfIdle(ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	if time.Since(s.lastActive) < ttl {
		return false
	}
	s.closeLocked("idle")
	return true
}

func (s *Session) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked("shutdown")
}

// closeLocked tears the session down and publishes the terminal
// snapshot so subscribed clients learn the session is gone.
func (s *Session) closeLocked(reason string) {
	if s.closed {
		return
	}
	s.closed = true
	s.match.Close()
	s.publishLocked(protocol.Topic(s.ID, protocol.ChanState), s.match.StateUpdate())
	s.log.Info().Str("reason", reason).Msg("session closed")
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Snapshot returns the current wire-form state of the session.
func (s *Session) Snapshot() protocol.StateUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.match.StateUpdate()
}
