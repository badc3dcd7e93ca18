package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mqttpong/internal/netwrk"
	"mqttpong/internal/pong"
	"mqttpong/internal/protocol"
)

// Config holds the engine tunables. Zero values fall back to defaults.
type Config struct {
	WinningScore int
	TickInterval time.Duration
	IdleTimeout  time.Duration
	Heartbeat    time.Duration

	// MsgRate and MsgBurst bound inbound paddle traffic per seat, so a
	// flooding peer cannot starve the loop.
	MsgRate  int
	MsgBurst int
}

func (c Config) withDefaults() Config {
	if c.WinningScore <= 0 {
		c.WinningScore = pong.DefaultWinningScore
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second / 60
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = time.Second
	}
	if c.MsgRate <= 0 {
		c.MsgRate = 120
	}
	if c.MsgBurst <= 0 {
		c.MsgBurst = 240
	}
	return c
}

// Registry tracks every live game on the broker and routes inbound
// traffic to it. Sessions are created on first join and reclaimed when
// idle, when both seats empty, or when the registry shuts down.
type Registry struct {
	conn netwrk.Conn
	cfg  Config
	log  zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(conn netwrk.Conn, cfg Config, log zerolog.Logger) *Registry {
	return &Registry{
		conn:     conn,
		cfg:      cfg.withDefaults(),
		log:      log,
		sessions: make(map[string]*Session),
	}
}

// Join binds token to a player seat, creating the session on first
// contact. A closed entry still in the map is replaced, so joining a
// reclaimed game id starts a fresh session. ctx caps the lifetime of
// the session's loop.
func (r *Registry) Join(ctx context.Context, gameID string, player int, token string) (*Session, error) {
	if player != 1 && player != 2 {
		return nil, protocol.ErrMalformedMessage
	}
	r.mu.Lock()
	s, ok := r.sessions[gameID]
	if !ok || s.isClosed() {
		s = newSession(gameID, r.conn, r.cfg, r.log)
		r.sessions[gameID] = s
		s.start(ctx)
		r.log.Info().Str("game", gameID).Msg("session created")
	}
	r.mu.Unlock()

	if err := s.bind(player, token); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *Registry) lookup(gameID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[gameID]
}

// Active reports the number of sessions not yet reclaimed by a sweep.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Handle routes one inbound publication. Malformed or misaddressed
// traffic is dropped with a debug log; nothing arriving over the wire
// is ever fatal.
func (r *Registry) Handle(ctx context.Context, msg netwrk.Message) {
	gameID, ch, err := protocol.ParseTopic(msg.Topic)
	if err != nil {
		r.log.Debug().Str("topic", msg.Topic).Msg("dropping message on unknown topic")
		return
	}

	switch ch {
	case protocol.ChanP1Paddle, protocol.ChanP2Paddle:
		u, err := protocol.DecodePaddle(msg.Payload)
		if err != nil {
			r.log.Debug().Err(err).Str("topic", msg.Topic).Msg("dropping paddle update")
			return
		}
		if s := r.lookup(gameID); s != nil {
			s.enqueuePaddle(ch.Player(), u)
		}

	case protocol.ChanJoin:
		n, err := protocol.DecodeJoin(msg.Payload)
		if err != nil {
			r.log.Debug().Err(err).Str("topic", msg.Topic).Msg("dropping join notice")
			return
		}
		switch n.Kind {
		case protocol.KindJoin:
			r.handleJoin(ctx, gameID, n)
		case protocol.KindLeave:
			if s := r.lookup(gameID); s != nil {
				s.unbind(n.Player, n.Token, n.Nonce)
			}
		}
		// Kind "reply" is our own publication echoed back; skip it.

	case protocol.ChanReady:
		n, err := protocol.DecodeReady(msg.Payload)
		if err != nil {
			r.log.Debug().Err(err).Str("topic", msg.Topic).Msg("dropping ready notice")
			return
		}
		if s := r.lookup(gameID); s != nil {
			s.submitReady(n)
		}
	}
}

func (r *Registry) handleJoin(ctx context.Context, gameID string, n protocol.JoinNotice) {
	reply := protocol.JoinNotice{
		V:      protocol.Version,
		Kind:   protocol.KindReply,
		Player: n.Player,
		Token:  n.Token,
		OK:     true,
	}
	_, err := r.Join(ctx, gameID, n.Player, n.Token)
	switch {
	case errors.Is(err, ErrSlotConflict):
		reply.OK = false
		reply.Reason = protocol.ReasonSlotConflict
	case errors.Is(err, ErrSessionExpired):
		reply.OK = false
		reply.Reason = protocol.ReasonExpired
	case err != nil:
		r.log.Warn().Err(err).Str("game", gameID).Msg("join failed")
		return
	}

	r.log.Info().Str("game", gameID).Int("player", n.Player).Bool("ok", reply.OK).Msg("join")
	b, err := reply.Encode()
	if err != nil {
		r.log.Error().Err(err).Msg("encode join reply")
		return
	}
	if err := r.conn.Publish(protocol.Topic(gameID, protocol.ChanJoin), b); err != nil {
		r.log.Warn().Err(err).Str("game", gameID).Msg("join reply publish failed")
	}
}

// Run sweeps idle sessions until ctx ends, then closes everything.
func (r *Registry) Run(ctx context.Context) {
	interval := r.cfg.IdleTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	if interval > 30*time.Second {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Close()
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// sweep reclaims idle sessions and drops closed ones from the map.
func (r *Registry) sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.expireIfIdle(r.cfg.IdleTimeout) {
			delete(r.sessions, id)
		}
	}
}

// Close tears down every session.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		s.shutdown()
		delete(r.sessions, id)
	}
}
