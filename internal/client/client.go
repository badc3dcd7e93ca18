// Package client is one player's endpoint: it claims a seat, streams
// paddle input out and folds the engine's snapshots into a state a
// frontend can render. It draws nothing itself.
package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mqttpong/internal/netwrk"
	"mqttpong/internal/pong"
	"mqttpong/internal/protocol"
)

// RenderableState is the complete picture of the game as this client
// knows it. Snapshot returns it by value, so a renderer never sees a
// half-applied update.
type RenderableState struct {
	Connected bool
	Status    protocol.Status
	Tick      uint64
	Ball      pong.Ball
	MyPaddle  float64
	OppPaddle float64
	P1Score   int
	P2Score   int
	Winner    int
	P1Ready   bool
	P2Ready   bool
}

// Client binds one player to one game over a pub/sub connection.
//
// The engine's publications may arrive duplicated or out of order;
// every update carries the engine tick and anything not strictly newer
// than what was already applied is discarded. Because each update is a
// complete snapshot, the next fresh one fully corrects the picture.
type Client struct {
	conn   netwrk.Conn
	log    zerolog.Logger
	gameID string
	player int
	token  string

	mu        sync.RWMutex
	state     RenderableState
	ballTick  uint64
	stateTick uint64
	oppSeq    uint64
	seq       uint64
	lastSentY float64
	sentAny   bool

	replies chan protocol.JoinNotice
}

func New(conn netwrk.Conn, gameID string, player int, token string, log zerolog.Logger) *Client {
	return &Client{
		conn:    conn,
		log:     log.With().Str("game", gameID).Int("player", player).Logger(),
		gameID:  gameID,
		player:  player,
		token:   token,
		state:   RenderableState{Status: protocol.StatusWaiting},
		replies: make(chan protocol.JoinNotice, 4),
	}
}

// Join subscribes to the game's topics and claims the seat, waiting
// for the engine's reply. Run must already be consuming the connection
// or the reply never surfaces; ctx bounds the wait.
func (c *Client) Join(ctx context.Context) error {
	opponent := 1
	if c.player == 1 {
		opponent = 2
	}
	err := c.conn.Subscribe(
		protocol.Topic(c.gameID, protocol.ChanBall),
		protocol.Topic(c.gameID, protocol.ChanState),
		protocol.PaddleTopic(c.gameID, opponent),
		protocol.Topic(c.gameID, protocol.ChanJoin),
	)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	n := protocol.JoinNotice{V: protocol.Version, Kind: protocol.KindJoin, Player: c.player, Token: c.token}
	b, err := n.Encode()
	if err != nil {
		return err
	}
	if err := c.conn.Publish(protocol.Topic(c.gameID, protocol.ChanJoin), b); err != nil {
		return fmt.Errorf("publish join: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("join: %w", ctx.Err())
		case reply := <-c.replies:
			if reply.Player != c.player || reply.Token != c.token {
				continue // the other seat's reply
			}
			if !reply.OK {
				return fmt.Errorf("join rejected: %s", reply.Reason)
			}
			return nil
		}
	}
}

// Run consumes the connection's inbound stream until ctx ends. It is
// the sole reader of conn.Messages.
func (c *Client) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-c.conn.Messages():
			if !ok {
				return netwrk.ErrUnavailable
			}
			c.dispatch(msg)
		}
	}
}

func (c *Client) dispatch(msg netwrk.Message) {
	gameID, ch, err := protocol.ParseTopic(msg.Topic)
	if err != nil || gameID != c.gameID {
		return
	}

	switch ch {
	case protocol.ChanBall:
		u, err := protocol.DecodeBall(msg.Payload)
		if err != nil {
			c.log.Debug().Err(err).Msg("dropping ball update")
			return
		}
		c.applyBall(u)

	case protocol.ChanState:
		u, err := protocol.DecodeState(msg.Payload)
		if err != nil {
			c.log.Debug().Err(err).Msg("dropping state update")
			return
		}
		c.applyState(u)

	case protocol.ChanP1Paddle, protocol.ChanP2Paddle:
		if ch.Player() == c.player {
			return // own publication echoed back
		}
		u, err := protocol.DecodePaddle(msg.Payload)
		if err != nil {
			c.log.Debug().Err(err).Msg("dropping paddle update")
			return
		}
		c.applyOppPaddle(u)

	case protocol.ChanJoin:
		n, err := protocol.DecodeJoin(msg.Payload)
		if err != nil || n.Kind != protocol.KindReply {
			return
		}
		select {
		case c.replies <- n:
		default:
		}
	}
}

func (c *Client) applyBall(u protocol.BallUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if u.Tick <= c.ballTick {
		return
	}
	c.ballTick = u.Tick
	c.state.Ball = pong.ClampBall(pong.Ball{X: u.X, Y: u.Y, VX: u.VX, VY: u.VY})
	if u.Tick > c.state.Tick {
		c.state.Tick = u.Tick
	}
}

func (c *Client) applyState(u protocol.StateUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if u.Tick <= c.stateTick {
		return
	}
	c.stateTick = u.Tick
	if u.Status == protocol.StatusPlaying && c.state.Status != protocol.StatusPlaying {
		// Play (re)starting can mean a new opponent in the seat, whose
		// sequence numbers restart from 1.
		c.oppSeq = 0
	}
	c.state.Status = u.Status
	c.state.P1Score = u.P1Score
	c.state.P2Score = u.P2Score
	c.state.Winner = u.Winner
	c.state.P1Ready = u.P1Ready
	c.state.P2Ready = u.P2Ready
	if u.Tick > c.state.Tick {
		c.state.Tick = u.Tick
	}
}

func (c *Client) applyOppPaddle(u protocol.PaddleUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if u.Seq <= c.oppSeq {
		return
	}
	c.oppSeq = u.Seq
	c.state.OppPaddle = pong.ClampPaddleY(u.Y)
}

// SetPaddle publishes the local paddle position. The value is clamped
// to the field and unchanged positions are debounced away, so callers
// may invoke it every frame.
func (c *Client) SetPaddle(y float64) error {
	c.mu.Lock()
	y = pong.ClampPaddleY(y)
	if c.sentAny && y == c.lastSentY {
		c.mu.Unlock()
		return nil
	}
	c.seq++
	u := protocol.PaddleUpdate{V: protocol.Version, Y: y, Seq: c.seq}
	c.lastSentY = y
	c.sentAny = true
	c.state.MyPaddle = y
	c.mu.Unlock()

	b, err := u.Encode()
	if err != nil {
		return err
	}
	return c.conn.Publish(protocol.PaddleTopic(c.gameID, c.player), b)
}

// Ready votes to restart a finished game.
func (c *Client) Ready() error {
	n := protocol.ReadyNotice{V: protocol.Version, Player: c.player, Token: c.token, Ready: true}
	b, err := n.Encode()
	if err != nil {
		return err
	}
	return c.conn.Publish(protocol.Topic(c.gameID, protocol.ChanReady), b)
}

// Leave releases the seat. An unclean disconnect is covered by the
// connection's last-will notice instead. Each notice carries a fresh
// nonce so the engine can drop redelivered copies.
func (c *Client) Leave() error {
	n := protocol.JoinNotice{
		V:      protocol.Version,
		Kind:   protocol.KindLeave,
		Player: c.player,
		Token:  c.token,
		Nonce:  uuid.NewString(),
	}
	b, err := n.Encode()
	if err != nil {
		return err
	}
	return c.conn.Publish(protocol.Topic(c.gameID, protocol.ChanJoin), b)
}

// LeaveNotice is the payload a connection should register as its
// last-will so an unclean disconnect still releases the seat.
func LeaveNotice(player int, token string) ([]byte, error) {
	n := protocol.JoinNotice{
		V:      protocol.Version,
		Kind:   protocol.KindLeave,
		Player: player,
		Token:  token,
		Nonce:  uuid.NewString(),
	}
	return n.Encode()
}

// SetConnected records transport availability for the snapshot.
func (c *Client) SetConnected(ok bool) {
	c.mu.Lock()
	c.state.Connected = ok
	c.mu.Unlock()
}

// Snapshot returns a copy of the latest renderable state.
func (c *Client) Snapshot() RenderableState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}
