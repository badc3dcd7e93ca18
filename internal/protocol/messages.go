// Package protocol defines the wire messages exchanged over the broker
// and the topic namespace they travel on. Payloads are JSON; decoders
// ignore unknown fields, so peers can grow the vocabulary without
// breaking older builds.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Version is stamped on every message. Decoders reject anything else.
const Version = 1

// ErrMalformedMessage reports a payload or topic that failed structural
// validation. Handlers drop such traffic and carry on; it is never
// fatal.
var ErrMalformedMessage = errors.New("malformed message")

// Status is the externally observable session status.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusGameOver Status = "game_over"
	StatusClosed   Status = "closed"
)

// Valid reports whether s is part of the wire vocabulary.
func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusPlaying, StatusGameOver, StatusClosed:
		return true
	}
	return false
}

// Kinds discriminate messages on the join channel.
const (
	KindJoin  = "join"
	KindLeave = "leave"
	KindReply = "reply"
)

// Rejection reasons carried on join replies.
const (
	ReasonSlotConflict = "slot_conflict"
	ReasonExpired      = "session_expired"
)

// PaddleUpdate is a player's paddle position sample. Seq is the
// sender's own counter; the engine keeps only the freshest sample per
// player and discards anything not newer than what it already applied.
type PaddleUpdate struct {
	V   int     `json:"v"`
	Y   float64 `json:"y"`
	Seq uint64  `json:"seq"`
}

// BallUpdate is the engine's authoritative ball snapshot for one tick.
type BallUpdate struct {
	V    int     `json:"v"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	VX   float64 `json:"vx"`
	VY   float64 `json:"vy"`
	Tick uint64  `json:"tick"`
}

// StateUpdate is the engine's scoreboard and lifecycle snapshot. It is
// complete: applying the latest one fully supersedes anything missed.
type StateUpdate struct {
	V       int    `json:"v"`
	P1Score int    `json:"p1_score"`
	P2Score int    `json:"p2_score"`
	Status  Status `json:"status"`
	Winner  int    `json:"winner,omitempty"`
	P1Ready bool   `json:"p1_ready,omitempty"`
	P2Ready bool   `json:"p2_ready,omitempty"`
	Tick    uint64 `json:"tick"`
}

// JoinNotice travels on the join channel. Clients publish kind "join"
// to claim a seat and kind "leave" to release it; the engine answers a
// join with kind "reply" echoing the token, so a client can tell its
// own answer apart from another player's. Leave notices carry a
// client-generated nonce so a redelivered copy is honored only once.
type JoinNotice struct {
	V      int    `json:"v"`
	Kind   string `json:"kind"`
	Player int    `json:"player"`
	Token  string `json:"token"`
	Nonce  string `json:"nonce,omitempty"`
	OK     bool   `json:"ok,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// ReadyNotice is a player's restart vote after a game has ended.
type ReadyNotice struct {
	V      int    `json:"v"`
	Player int    `json:"player"`
	Token  string `json:"token"`
	Ready  bool   `json:"ready"`
}

func (m PaddleUpdate) Encode() ([]byte, error) { return encode(m) }
func (m BallUpdate) Encode() ([]byte, error)   { return encode(m) }
func (m StateUpdate) Encode() ([]byte, error)  { return encode(m) }
func (m JoinNotice) Encode() ([]byte, error)   { return encode(m) }
func (m ReadyNotice) Encode() ([]byte, error)  { return encode(m) }

func encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return b, nil
}

// DecodePaddle parses and validates a paddle sample. The position is
// not range-checked here; the engine clamps it on application.
func DecodePaddle(b []byte) (PaddleUpdate, error) {
	var m PaddleUpdate
	if err := json.Unmarshal(b, &m); err != nil {
		return PaddleUpdate{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if m.V != Version {
		return PaddleUpdate{}, fmt.Errorf("%w: version %d", ErrMalformedMessage, m.V)
	}
	return m, nil
}

// DecodeBall parses and validates a ball snapshot.
func DecodeBall(b []byte) (BallUpdate, error) {
	var m BallUpdate
	if err := json.Unmarshal(b, &m); err != nil {
		return BallUpdate{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if m.V != Version {
		return BallUpdate{}, fmt.Errorf("%w: version %d", ErrMalformedMessage, m.V)
	}
	return m, nil
}

// DecodeState parses and validates a scoreboard snapshot.
func DecodeState(b []byte) (StateUpdate, error) {
	var m StateUpdate
	if err := json.Unmarshal(b, &m); err != nil {
		return StateUpdate{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if m.V != Version {
		return StateUpdate{}, fmt.Errorf("%w: version %d", ErrMalformedMessage, m.V)
	}
	if !m.Status.Valid() {
		return StateUpdate{}, fmt.Errorf("%w: status %q", ErrMalformedMessage, m.Status)
	}
	if m.Winner < 0 || m.Winner > 2 {
		return StateUpdate{}, fmt.Errorf("%w: winner %d", ErrMalformedMessage, m.Winner)
	}
	return m, nil
}

// DecodeJoin parses and validates a join-channel message.
func DecodeJoin(b []byte) (JoinNotice, error) {
	var m JoinNotice
	if err := json.Unmarshal(b, &m); err != nil {
		return JoinNotice{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if m.V != Version {
		return JoinNotice{}, fmt.Errorf("%w: version %d", ErrMalformedMessage, m.V)
	}
	switch m.Kind {
	case KindJoin, KindLeave, KindReply:
	default:
		return JoinNotice{}, fmt.Errorf("%w: kind %q", ErrMalformedMessage, m.Kind)
	}
	if m.Player != 1 && m.Player != 2 {
		return JoinNotice{}, fmt.Errorf("%w: player %d", ErrMalformedMessage, m.Player)
	}
	if m.Token == "" {
		return JoinNotice{}, fmt.Errorf("%w: empty token", ErrMalformedMessage)
	}
	return m, nil
}

// DecodeReady parses and validates a restart vote.
func DecodeReady(b []byte) (ReadyNotice, error) {
	var m ReadyNotice
	if err := json.Unmarshal(b, &m); err != nil {
		return ReadyNotice{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if m.V != Version {
		return ReadyNotice{}, fmt.Errorf("%w: version %d", ErrMalformedMessage, m.V)
	}
	if m.Player != 1 && m.Player != 2 {
		return ReadyNotice{}, fmt.Errorf("%w: player %d", ErrMalformedMessage, m.Player)
	}
	if m.Token == "" {
		return ReadyNotice{}, fmt.Errorf("%w: empty token", ErrMalformedMessage)
	}
	return m, nil
}
