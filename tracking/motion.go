package tracking

import (
	"image"
	"math"
)

// MotionTracker accumulates the per-frame displacement of the subject.
//
// Speed is the Euclidean distance between consecutive positions, in pixels
// per frame. Distance is the running sum of every speed reported since the
// last Reset. The first update seeds the previous position and yields 0.
type MotionTracker struct {
	previous    image.Point
	hasPrevious bool
	speed       float64
	distance    float64
	frames      int
}

// NewMotionTracker returns a tracker with no previous position.
func NewMotionTracker() *MotionTracker {
	return &MotionTracker{}
}

// Update records the position for the current frame.
//
// Arguments:
//   - p: The current position. On frames without a detection pass the held
//     last known position, which yields a speed of 0.
//
// Returns:
//   - float64: The displacement since the previous frame.
func (m *MotionTracker) Update(p image.Point) float64 {
	m.frames++
	if !m.hasPrevious {
		m.previous = p
		m.hasPrevious = true
		m.speed = 0
		return 0
	}

	m.speed = math.Hypot(float64(p.X-m.previous.X), float64(p.Y-m.previous.Y))
	m.distance += m.speed
	m.previous = p
	return m.speed
}

// Speed returns the speed computed by the last Update.
func (m *MotionTracker) Speed() float64 { return m.speed }

// Distance returns the cumulative traveled distance.
func (m *MotionTracker) Distance() float64 { return m.distance }

// Frames returns the number of updates since the last Reset.
func (m *MotionTracker) Frames() int { return m.frames }

// Previous returns the last recorded position, if any.
func (m *MotionTracker) Previous() (image.Point, bool) {
	return m.previous, m.hasPrevious
}

// Reset clears all motion state.
func (m *MotionTracker) Reset() {
	*m = MotionTracker{}
}
