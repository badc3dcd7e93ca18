// Package pong holds the authoritative match state and the fixed-tick
// physics that advance it. A Match is plain data plus transitions; the
// session layer owns the clock and serializes all access.
package pong

// Field geometry and motion constants. Coordinates are centered on the
// field: x grows toward player 2, y grows upward.
const (
	XBound = 50.0
	YBound = 25.0

	// PaddleX is the distance of each paddle plane from center. The gap
	// behind it gives a missed ball a visible exit before the point is
	// called at XBound.
	PaddleX    = 48.0
	PaddleHalf = 5.0

	InitialSpeed   = 55.0
	SpeedIncrement = 3.0
	MaxSpeed       = 110.0

	DefaultWinningScore = 5
)

// Ball is the ball's position and velocity in field units per second.
type Ball struct {
	X  float64
	Y  float64
	VX float64
	VY float64
}

// Paddle is one player's paddle position plus the sequence number of
// the last applied input sample.
type Paddle struct {
	Y   float64
	Seq uint64
}

// Score is the running point count.
type Score struct {
	P1 int
	P2 int
}

// ReadyRecord tracks restart votes after a game ends. It is cleared on
// every transition into game over.
type ReadyRecord struct {
	P1 bool
	P2 bool
}

// Set records player's vote.
func (r *ReadyRecord) Set(player int, ready bool) {
	switch player {
	case 1:
		r.P1 = ready
	case 2:
		r.P2 = ready
	}
}

// Both reports whether both players have voted to restart.
func (r ReadyRecord) Both() bool {
	return r.P1 && r.P2
}

// ClampPaddleY confines a paddle center so the paddle stays fully on
// the field. Out-of-range input is clamped, never rejected.
func ClampPaddleY(y float64) float64 {
	return clamp(y, -YBound+PaddleHalf, YBound-PaddleHalf)
}

// ClampBall confines a ball position to the field; velocity passes
// through untouched.
func ClampBall(b Ball) Ball {
	b.X = clamp(b.X, -XBound, XBound)
	b.Y = clamp(b.Y, -YBound, YBound)
	return b
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
