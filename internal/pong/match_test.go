package pong

import (
	"math"
	"testing"

	"mqttpong/internal/protocol"
)

const dt = 1.0 / 60

func playingMatch(t *testing.T) *Match {
	t.Helper()
	m := NewMatch(5, 7)
	m.StartPlay()
	if m.Status != protocol.StatusPlaying {
		t.Fatalf("status after StartPlay = %q", m.Status)
	}
	return m
}

func TestNewMatchWaits(t *testing.T) {
	m := NewMatch(0, 1)
	if m.Status != protocol.StatusWaiting {
		t.Fatalf("status = %q, want waiting", m.Status)
	}
	if m.WinningScore != DefaultWinningScore {
		t.Fatalf("winning score = %d, want default %d", m.WinningScore, DefaultWinningScore)
	}

	// The clock runs while waiting but the ball does not.
	for i := 0; i < 5; i++ {
		m.Step(dt)
	}
	if m.Tick != 5 {
		t.Fatalf("tick = %d, want 5", m.Tick)
	}
	if m.Ball != (Ball{}) {
		t.Fatalf("ball moved while waiting: %+v", m.Ball)
	}
}

func TestStartPlayServesFromCenter(t *testing.T) {
	m := playingMatch(t)
	if m.Ball.X != 0 || m.Ball.Y != 0 {
		t.Fatalf("serve not centered: %+v", m.Ball)
	}
	speed := math.Hypot(m.Ball.VX, m.Ball.VY)
	if math.Abs(speed-InitialSpeed) > 1e-9 {
		t.Fatalf("serve speed = %v, want %v", speed, InitialSpeed)
	}
}

func TestSameSeedSameServe(t *testing.T) {
	a := NewMatch(5, 42)
	b := NewMatch(5, 42)
	a.StartPlay()
	b.StartPlay()
	if a.Ball != b.Ball {
		t.Fatalf("serves differ: %+v vs %+v", a.Ball, b.Ball)
	}
}

func TestWallBounce(t *testing.T) {
	m := playingMatch(t)
	m.Ball = Ball{X: 0, Y: YBound - 0.1, VX: 0, VY: 10}

	m.Step(0.1)

	if m.Ball.VY != -10 {
		t.Fatalf("vy = %v, want -10", m.Ball.VY)
	}
	want := 2*YBound - (YBound - 0.1 + 1)
	if math.Abs(m.Ball.Y-want) > 1e-9 {
		t.Fatalf("y = %v, want %v", m.Ball.Y, want)
	}
}

func TestPaddleBounceReflectsAndSpeedsUp(t *testing.T) {
	m := playingMatch(t)
	m.Ball = Ball{X: -PaddleX + 0.5, Y: 0, VX: -30, VY: 0}
	// Paddle 1 sits at 0 by default; the ball hits dead center.

	m.Step(0.05)

	if m.Ball.VX <= 0 {
		t.Fatalf("vx = %v, want positive after bounce", m.Ball.VX)
	}
	speed := math.Hypot(m.Ball.VX, m.Ball.VY)
	if math.Abs(speed-33) > 1e-9 {
		t.Fatalf("speed = %v, want 33", speed)
	}
	if m.Ball.X < -PaddleX {
		t.Fatalf("ball left behind the paddle plane: x = %v", m.Ball.X)
	}
}

func TestPaddleBounceCapsSpeed(t *testing.T) {
	m := playingMatch(t)
	m.Ball = Ball{X: -PaddleX + 0.1, Y: 0, VX: -(MaxSpeed - 1), VY: 0}

	m.Step(0.01)

	speed := math.Hypot(m.Ball.VX, m.Ball.VY)
	if math.Abs(speed-MaxSpeed) > 1e-9 {
		t.Fatalf("speed = %v, want cap %v", speed, MaxSpeed)
	}
}

func TestOffsetHitChangesAngle(t *testing.T) {
	m := playingMatch(t)
	m.ApplyPaddle(1, -4, 1)
	// Ball strikes the upper half of the paddle and must leave upward.
	m.Ball = Ball{X: -PaddleX + 0.5, Y: 0, VX: -30, VY: 0}

	m.Step(0.05)

	if m.Ball.VY <= 0 {
		t.Fatalf("vy = %v, want positive for an upper-half hit", m.Ball.VY)
	}
}

func TestMissScoresForOpponent(t *testing.T) {
	m := playingMatch(t)
	m.Ball = Ball{X: -XBound + 0.5, Y: 20, VX: -30, VY: 0}
	// Paddle 1 is at 0, nowhere near y=20.

	res := m.Step(0.1)

	if res.ScoredBy != 2 {
		t.Fatalf("scored by %d, want 2", res.ScoredBy)
	}
	if m.Score.P2 != 1 || m.Score.P1 != 0 {
		t.Fatalf("score = %+v", m.Score)
	}
	if m.Ball.X != 0 || m.Ball.Y != 0 {
		t.Fatalf("ball not re-centered: %+v", m.Ball)
	}
	// The conceding side receives the serve.
	if m.Ball.VX >= 0 {
		t.Fatalf("vx = %v, want serve toward player 1", m.Ball.VX)
	}
}

func forcePoint(t *testing.T, m *Match, scorer int) StepResult {
	t.Helper()
	if scorer == 1 {
		m.Ball = Ball{X: XBound - 0.5, Y: 20, VX: 30, VY: 0}
		m.Paddles[1].Y = -20
	} else {
		m.Ball = Ball{X: -XBound + 0.5, Y: 20, VX: -30, VY: 0}
		m.Paddles[0].Y = -20
	}
	return m.Step(0.1)
}

func TestWinningScoreEndsGame(t *testing.T) {
	m := NewMatch(2, 7)
	m.StartPlay()
	m.Ready = ReadyRecord{P1: true} // leftover vote must not survive

	if res := forcePoint(t, m, 1); res.Ended {
		t.Fatal("game ended one point early")
	}
	res := forcePoint(t, m, 1)
	if !res.Ended || res.ScoredBy != 1 {
		t.Fatalf("res = %+v, want ended by player 1", res)
	}
	if m.Status != protocol.StatusGameOver || m.Winner != 1 {
		t.Fatalf("status = %q winner = %d", m.Status, m.Winner)
	}
	if m.Ready != (ReadyRecord{}) {
		t.Fatalf("ready record not cleared: %+v", m.Ready)
	}
	if m.Ball != (Ball{}) {
		t.Fatalf("ball still live after game over: %+v", m.Ball)
	}
}

func TestReadyRestart(t *testing.T) {
	m := NewMatch(1, 7)
	m.StartPlay()
	forcePoint(t, m, 2)
	if m.Status != protocol.StatusGameOver {
		t.Fatalf("status = %q, want game_over", m.Status)
	}
	tickAtEnd := m.Tick

	m.SubmitReady(1, true)
	if res := m.Step(dt); res.Restarted {
		t.Fatal("restarted with only one vote")
	}
	m.SubmitReady(2, true)
	res := m.Step(dt)

	if !res.Restarted {
		t.Fatal("both votes in, no restart")
	}
	if m.Status != protocol.StatusPlaying || m.Score != (Score{}) || m.Winner != 0 {
		t.Fatalf("restart state: status=%q score=%+v winner=%d", m.Status, m.Score, m.Winner)
	}
	if m.Tick <= tickAtEnd {
		t.Fatalf("tick went backwards across restart: %d then %d", tickAtEnd, m.Tick)
	}
}

func TestReadyIgnoredWhilePlaying(t *testing.T) {
	m := playingMatch(t)
	m.SubmitReady(1, true)
	m.SubmitReady(2, true)
	if m.Ready != (ReadyRecord{}) {
		t.Fatalf("votes recorded mid-game: %+v", m.Ready)
	}
	if res := m.Step(dt); res.Restarted {
		t.Fatal("restart fired mid-game")
	}
}

func TestApplyPaddle(t *testing.T) {
	m := playingMatch(t)

	if !m.ApplyPaddle(1, 100, 1) {
		t.Fatal("fresh sample rejected")
	}
	if got, want := m.Paddles[0].Y, YBound-PaddleHalf; got != want {
		t.Fatalf("clamped y = %v, want %v", got, want)
	}

	// Stale and duplicate sequence numbers are discarded.
	if m.ApplyPaddle(1, 5, 1) {
		t.Fatal("duplicate seq applied")
	}
	if m.ApplyPaddle(1, 5, 0) {
		t.Fatal("stale seq applied")
	}
	if got, want := m.Paddles[0].Y, YBound-PaddleHalf; got != want {
		t.Fatalf("y moved on stale sample: %v, want %v", got, want)
	}

	if !m.ApplyPaddle(1, 5, 2) {
		t.Fatal("newer sample rejected")
	}
	if m.Paddles[0].Y != 5 {
		t.Fatalf("y = %v, want 5", m.Paddles[0].Y)
	}

	if m.ApplyPaddle(3, 5, 9) {
		t.Fatal("unknown player applied")
	}
}

func TestReleaseSeatResetsInputGate(t *testing.T) {
	m := playingMatch(t)
	if !m.ApplyPaddle(1, 2, 5) {
		t.Fatal("fresh sample rejected")
	}
	if !m.ApplyPaddle(2, 3, 9) {
		t.Fatal("fresh sample rejected")
	}

	m.ReleaseSeat(2)

	// The paddle holds its last position until the next occupant moves
	// it, but that occupant counts from 1 again.
	if m.Paddles[1].Y != 3 {
		t.Fatalf("paddle moved on release: %v", m.Paddles[1].Y)
	}
	if !m.ApplyPaddle(2, -7, 1) {
		t.Fatal("successor's first sample rejected as stale")
	}
	if m.Paddles[1].Y != -7 {
		t.Fatalf("y = %v, want -7", m.Paddles[1].Y)
	}

	// The other seat's gate is untouched, and a bad player is a no-op.
	if m.ApplyPaddle(1, 0, 5) {
		t.Fatal("seat 1 gate reset by seat 2 release")
	}
	m.ReleaseSeat(3)
}

func TestSuspend(t *testing.T) {
	m := playingMatch(t)
	m.Score = Score{P1: 2, P2: 1}

	m.Suspend()
	if m.Status != protocol.StatusWaiting {
		t.Fatalf("status = %q, want waiting", m.Status)
	}
	if m.Score != (Score{P1: 2, P2: 1}) {
		t.Fatalf("mid-game scores lost: %+v", m.Score)
	}
	if m.Ball != (Ball{}) {
		t.Fatalf("ball still live while waiting: %+v", m.Ball)
	}

	// A finished game is settled; suspension resets it.
	m.StartPlay()
	m.Status = protocol.StatusGameOver
	m.Winner = 1
	m.Ready = ReadyRecord{P1: true}
	m.Suspend()
	if m.Status != protocol.StatusWaiting || m.Score != (Score{}) || m.Winner != 0 || m.Ready != (ReadyRecord{}) {
		t.Fatalf("settled game not reset: status=%q score=%+v winner=%d ready=%+v",
			m.Status, m.Score, m.Winner, m.Ready)
	}
}

func TestBallStaysInBounds(t *testing.T) {
	m := playingMatch(t)
	var seq uint64
	for i := 0; i < 5000; i++ {
		// Both paddles shadow the ball so the rally never ends.
		seq++
		m.ApplyPaddle(1, m.Ball.Y, seq)
		m.ApplyPaddle(2, m.Ball.Y, seq)
		m.Step(dt)
		if m.Ball.X < -XBound || m.Ball.X > XBound || m.Ball.Y < -YBound || m.Ball.Y > YBound {
			t.Fatalf("tick %d: ball out of bounds: %+v", m.Tick, m.Ball)
		}
	}
	if m.Status != protocol.StatusPlaying {
		t.Fatalf("rally ended unexpectedly: %q, score %+v", m.Status, m.Score)
	}
}

func TestClampBall(t *testing.T) {
	b := ClampBall(Ball{X: 3 * XBound, Y: -3 * YBound, VX: 7, VY: -8})
	if b.X != XBound || b.Y != -YBound {
		t.Fatalf("position not clamped to the field: %+v", b)
	}
	if b.VX != 7 || b.VY != -8 {
		t.Fatalf("velocity altered by clamp: %+v", b)
	}

	in := Ball{X: 12, Y: -3, VX: 1, VY: 2}
	if got := ClampBall(in); got != in {
		t.Fatalf("in-bounds ball altered: %+v", got)
	}
}

func TestTicksStrictlyIncrease(t *testing.T) {
	m := NewMatch(1, 3)
	last := m.Tick
	check := func() {
		if m.Tick <= last {
			t.Fatalf("tick did not advance: %d then %d (status %q)", last, m.Tick, m.Status)
		}
		last = m.Tick
	}

	m.Step(dt) // waiting
	check()
	m.StartPlay()
	m.Step(dt) // playing
	check()
	forcePoint(t, m, 1) // into game over
	check()
	m.Step(dt) // game over, no votes
	check()
	m.SubmitReady(1, true)
	m.SubmitReady(2, true)
	m.Step(dt) // restart
	check()
	m.Close()
	m.Step(dt) // closed
	check()
}

func TestSnapshotsCarryTick(t *testing.T) {
	m := playingMatch(t)
	m.Step(dt)
	m.Step(dt)

	ball := m.BallUpdate()
	state := m.StateUpdate()
	if ball.V != protocol.Version || state.V != protocol.Version {
		t.Fatalf("snapshots missing version: %+v %+v", ball, state)
	}
	if ball.Tick != m.Tick || state.Tick != m.Tick {
		t.Fatalf("snapshot ticks %d/%d, want %d", ball.Tick, state.Tick, m.Tick)
	}
	if state.Status != protocol.StatusPlaying {
		t.Fatalf("snapshot status = %q", state.Status)
	}
}
