package pong

import (
	"math"

	"golang.org/x/exp/rand"

	"mqttpong/internal/protocol"
)

const (
	maxServeAngle  = math.Pi / 5
	maxBounceAngle = math.Pi / 3
)

// Match is the full authoritative state of one game. It is not safe
// for concurrent use.
type Match struct {
	Status  protocol.Status
	Tick    uint64
	Ball    Ball
	Paddles [2]Paddle // index 0 is player 1
	Score   Score
	Winner  int
	Ready   ReadyRecord

	WinningScore int
	rng          *rand.Rand
}

// StepResult reports what a tick changed beyond plain ball motion.
type StepResult struct {
	// ScoredBy is 1 or 2 when a point was scored this tick.
	ScoredBy int
	// Ended is set when the point finished the game.
	Ended bool
	// Restarted is set when a ready-up restart fired this tick.
	Restarted bool
}

// NewMatch returns a match waiting for players. The seed drives serve
// directions and angles for the match's whole lifetime.
func NewMatch(winningScore int, seed uint64) *Match {
	if winningScore <= 0 {
		winningScore = DefaultWinningScore
	}
	return &Match{
		Status:       protocol.StatusWaiting,
		WinningScore: winningScore,
		rng:          rand.New(rand.NewSource(seed)),
	}
}

// StartPlay begins the rally once both seats are taken.
func (m *Match) StartPlay() {
	if m.Status != protocol.StatusWaiting {
		return
	}
	m.Status = protocol.StatusPlaying
	m.serve(m.rng.Intn(2)*2 - 1)
}

// Suspend pauses the match when a seat empties. A rally in progress
// keeps its scores for the rejoin; a finished game is settled, so the
// next pairing starts fresh.
func (m *Match) Suspend() {
	switch m.Status {
	case protocol.StatusPlaying:
		m.Status = protocol.StatusWaiting
		m.Ball = Ball{}
	case protocol.StatusGameOver:
		m.Status = protocol.StatusWaiting
		m.Score = Score{}
		m.Winner = 0
		m.Ready = ReadyRecord{}
	}
}

// Close ends the match for good. The tick advances so the terminal
// snapshot supersedes everything published before it.
func (m *Match) Close() {
	m.Tick++
	m.Status = protocol.StatusClosed
}

// ApplyPaddle moves a player's paddle. Samples whose seq is not newer
// than the last applied one are discarded; the position is clamped to
// the field.
func (m *Match) ApplyPaddle(player int, y float64, seq uint64) bool {
	if player != 1 && player != 2 {
		return false
	}
	p := &m.Paddles[player-1]
	if seq <= p.Seq {
		return false
	}
	p.Seq = seq
	p.Y = ClampPaddleY(y)
	return true
}

// ReleaseSeat clears a seat's input gate when its player leaves. The
// next occupant is a new sender whose sequence numbers restart from 1;
// the paddle holds its position until they move it.
func (m *Match) ReleaseSeat(player int) {
	if player != 1 && player != 2 {
		return
	}
	m.Paddles[player-1].Seq = 0
}

// SubmitReady records a restart vote. Votes only count after a game
// has ended; the restart itself happens on the next tick.
func (m *Match) SubmitReady(player int, ready bool) {
	if m.Status != protocol.StatusGameOver {
		return
	}
	m.Ready.Set(player, ready)
}

// Step advances the match by one fixed tick of dt seconds. The tick
// counter always advances so every publication is newer than the last;
// ball physics run only while the match is playing.
func (m *Match) Step(dt float64) StepResult {
	m.Tick++
	var res StepResult

	switch m.Status {
	case protocol.StatusPlaying:
		m.stepBall(dt, &res)
	case protocol.StatusGameOver:
		if m.Ready.Both() {
			m.Score = Score{}
			m.Winner = 0
			m.Ready = ReadyRecord{}
			m.Status = protocol.StatusPlaying
			m.serve(m.rng.Intn(2)*2 - 1)
			res.Restarted = true
		}
	}
	return res
}

func (m *Match) stepBall(dt float64, res *StepResult) {
	b := &m.Ball
	b.X += b.VX * dt
	b.Y += b.VY * dt

	// Top and bottom walls reflect, re-emitting the overshoot.
	if b.Y > YBound && b.VY > 0 {
		b.Y = 2*YBound - b.Y
		b.VY = -b.VY
	}
	if b.Y < -YBound && b.VY < 0 {
		b.Y = -2*YBound - b.Y
		b.VY = -b.VY
	}

	if b.X <= -PaddleX && b.VX < 0 {
		if off, hit := m.paddleOffset(1); hit {
			m.bounce(1, off)
		} else if b.X <= -XBound {
			m.scorePoint(2, res)
			return
		}
	}
	if b.X >= PaddleX && b.VX > 0 {
		if off, hit := m.paddleOffset(2); hit {
			m.bounce(2, off)
		} else if b.X >= XBound {
			m.scorePoint(1, res)
			return
		}
	}

	m.Ball = ClampBall(m.Ball)
}

// paddleOffset reports where the ball sits on the paddle, normalized
// to [-1, 1], when the two overlap.
func (m *Match) paddleOffset(player int) (float64, bool) {
	d := m.Ball.Y - m.Paddles[player-1].Y
	if d < -PaddleHalf || d > PaddleHalf {
		return 0, false
	}
	return d / PaddleHalf, true
}

// bounce reflects the ball off a paddle plane. The outgoing angle
// follows the hit offset; speed grows per hit up to MaxSpeed.
func (m *Match) bounce(player int, offset float64) {
	b := &m.Ball
	speed := math.Hypot(b.VX, b.VY) + SpeedIncrement
	if speed > MaxSpeed {
		speed = MaxSpeed
	}
	angle := offset * maxBounceAngle
	dir := 1.0
	if player == 2 {
		dir = -1
	}
	b.VX = dir * speed * math.Cos(angle)
	b.VY = speed * math.Sin(angle)

	// Re-emit from the plane so the ball never lingers behind a paddle.
	if player == 1 {
		b.X = -2*PaddleX - b.X
	} else {
		b.X = 2*PaddleX - b.X
	}
}

func (m *Match) scorePoint(player int, res *StepResult) {
	res.ScoredBy = player
	if player == 1 {
		m.Score.P1++
	} else {
		m.Score.P2++
	}
	if m.Score.P1 >= m.WinningScore || m.Score.P2 >= m.WinningScore {
		m.Status = protocol.StatusGameOver
		m.Winner = player
		m.Ready = ReadyRecord{}
		m.Ball = Ball{}
		res.Ended = true
		return
	}
	// The conceding side receives the next serve.
	dir := 1
	if player == 2 {
		dir = -1
	}
	m.serve(dir)
}

// serve centers the ball and launches it toward dir (+1 is player 2's
// side) at a mild random angle.
func (m *Match) serve(dir int) {
	angle := (m.rng.Float64()*2 - 1) * maxServeAngle
	m.Ball = Ball{
		VX: float64(dir) * InitialSpeed * math.Cos(angle),
		VY: InitialSpeed * math.Sin(angle),
	}
}

// BallUpdate renders the wire snapshot of the ball for this tick.
func (m *Match) BallUpdate() protocol.BallUpdate {
	return protocol.BallUpdate{
		V:    protocol.Version,
		X:    m.Ball.X,
		Y:    m.Ball.Y,
		VX:   m.Ball.VX,
		VY:   m.Ball.VY,
		Tick: m.Tick,
	}
}

// StateUpdate renders the wire snapshot of the scoreboard and status.
func (m *Match) StateUpdate() protocol.StateUpdate {
	return protocol.StateUpdate{
		V:       protocol.Version,
		P1Score: m.Score.P1,
		P2Score: m.Score.P2,
		Status:  m.Status,
		Winner:  m.Winner,
		P1Ready: m.Ready.P1,
		P2Ready: m.Ready.P2,
		Tick:    m.Tick,
	}
}
