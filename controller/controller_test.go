// Package controller - Session pipeline tests with a scripted detector and
// end-to-end background subtraction on synthetic frames.
package controller

import (
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"

	"github.com/nvr-ai/go-arena/images"
	"github.com/nvr-ai/go-arena/profiler"
	"github.com/nvr-ai/go-arena/stats"
	"github.com/nvr-ai/go-arena/zones"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// MockDetector replays a fixed sequence of detections.
type MockDetector struct {
	detections   []Detection
	currentIndex int
	shouldError  bool
	closed       bool
}

func (m *MockDetector) Detect(frame gocv.Mat) (Detection, error) {
	if m.shouldError {
		return Detection{}, errors.New("mock detection error")
	}
	if m.currentIndex >= len(m.detections) {
		return Detection{}, nil
	}
	d := m.detections[m.currentIndex]
	m.currentIndex++
	return d, nil
}

func (m *MockDetector) Mask() gocv.Mat { return gocv.NewMat() }

func (m *MockDetector) Close() error {
	m.closed = true
	return nil
}

func found(x, y int) Detection {
	return Detection{Found: true, Position: image.Pt(x, y), Area: 500}
}

func missed() Detection { return Detection{} }

func openFieldSession(t *testing.T, detections ...Detection) (*Session, *MockDetector) {
	t.Helper()
	detector := &MockDetector{detections: detections}
	s, err := NewSession(Options{
		ID:                  "test",
		Detector:            detector,
		Protocol:            zones.OpenField,
		Regions:             zones.Regions{{Name: "center", X: 100, Y: 100, W: 200, H: 200}},
		EntrySpeedThreshold: zones.DefaultEntrySpeedThreshold,
	})
	require.NoError(t, err)
	return s, detector
}

// TestSessionPipeline traces motion and zone state through scripted frames.
func TestSessionPipeline(t *testing.T) {
	tests := []struct {
		name        string
		detections  []Detection
		detected    []bool
		hasPosition []bool
		speeds      []float64
		zones       []string
		entered     []bool
	}{
		{
			name:        "no detection before the first subject",
			detections:  []Detection{missed(), missed(), found(200, 200)},
			detected:    []bool{false, false, true},
			hasPosition: []bool{false, false, true},
			speeds:      []float64{0, 0, 0},
			zones:       []string{"", "", "center"},
			entered:     []bool{false, false, false},
		},
		{
			name:        "held position yields zero speed",
			detections:  []Detection{found(200, 200), found(203, 204), missed(), found(203, 204)},
			detected:    []bool{true, true, false, true},
			hasPosition: []bool{true, true, true, true},
			speeds:      []float64{0, 5, 0, 0},
			zones:       []string{"center", "center", "center", "center"},
			entered:     []bool{false, false, false, false},
		},
		{
			name:        "entry into borders and back",
			detections:  []Detection{found(200, 200), found(40, 80), missed(), found(160, 170)},
			detected:    []bool{true, true, false, true},
			hasPosition: []bool{true, true, true, true},
			speeds:      []float64{0, 200, 0, 150},
			zones:       []string{"center", "borders", "borders", "center"},
			entered:     []bool{false, true, false, true},
		},
		{
			name:        "origin is a valid detection",
			detections:  []Detection{found(0, 0), missed()},
			detected:    []bool{true, false},
			hasPosition: []bool{true, true},
			speeds:      []float64{0, 0},
			zones:       []string{"borders", "borders"},
			entered:     []bool{false, false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := openFieldSession(t, tt.detections...)
			frame := gocv.NewMat()
			defer frame.Close()

			for i := range tt.detections {
				r, err := s.ProcessFrame(frame)
				require.NoError(t, err)

				assert.Equal(t, i, r.Index)
				assert.Equal(t, tt.detected[i], r.Detected, "frame %d detected", i)
				assert.Equal(t, tt.hasPosition[i], r.HasPosition, "frame %d position", i)
				assert.InDelta(t, tt.speeds[i], r.Speed, 1e-9, "frame %d speed", i)
				assert.Equal(t, tt.zones[i], r.Zone, "frame %d zone", i)
				assert.Equal(t, tt.entered[i], r.Entered, "frame %d entry", i)
			}
			assert.Equal(t, len(tt.detections), s.Frames())
		})
	}
}

// TestSessionDistanceIsSumOfSpeeds re-derives the traveled distance from per-frame speeds.
func TestSessionDistanceIsSumOfSpeeds(t *testing.T) {
	s, _ := openFieldSession(t,
		found(10, 10), found(13, 14), missed(), found(25, 30), found(25, 30), missed(), found(0, 0),
	)
	frame := gocv.NewMat()
	defer frame.Close()

	var sum float64
	for i := 0; i < 7; i++ {
		r, err := s.ProcessFrame(frame)
		require.NoError(t, err)
		sum += r.Speed
		assert.InDelta(t, sum, r.Distance, 1e-9)
	}

	snap, err := s.Snapshot(30)
	require.NoError(t, err)
	assert.InDelta(t, sum, snap.TraveledDistance, 1e-9)
	assert.Equal(t, 7, snap.Frames)
	assert.Equal(t, "test", snap.SessionID)
}

func TestSessionSnapshot(t *testing.T) {
	s, _ := openFieldSession(t, found(200, 200), found(200, 200), found(20, 20), found(20, 25))
	frame := gocv.NewMat()
	defer frame.Close()
	for i := 0; i < 4; i++ {
		_, err := s.ProcessFrame(frame)
		require.NoError(t, err)
	}

	snap, err := s.Snapshot(2)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"center": 1, "borders": 1}, snap.TimeInRegions)
	assert.Equal(t, map[string]int{"center": 0, "borders": 1}, snap.Entries)

	_, err = s.Snapshot(0)
	assert.ErrorIs(t, err, stats.ErrInvalidFrameRate)
}

func TestSessionErrorHandling(t *testing.T) {
	t.Run("Detector error leaves state untouched", func(t *testing.T) {
		s, detector := openFieldSession(t, found(200, 200))
		frame := gocv.NewMat()
		defer frame.Close()

		detector.shouldError = true
		_, err := s.ProcessFrame(frame)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "mock detection error")
		assert.Zero(t, s.Frames())
	})

	t.Run("Missing detector", func(t *testing.T) {
		_, err := NewSession(Options{Protocol: zones.OpenField})
		assert.Error(t, err)
	})

	t.Run("Overlapping regions", func(t *testing.T) {
		_, err := NewSession(Options{
			Detector: &MockDetector{},
			Protocol: zones.ElevatedPlusMaze,
			Regions: zones.Regions{
				{Name: "top", X: 0, Y: 0, W: 100, H: 100},
				{Name: "bottom", X: 0, Y: 200, W: 100, H: 100},
				{Name: "right", X: 200, Y: 0, W: 100, H: 100},
				{Name: "left", X: 200, Y: 200, W: 100, H: 100},
				{Name: "center", X: 50, Y: 50, W: 100, H: 100},
			},
		})
		assert.ErrorIs(t, err, zones.ErrOverlappingRegions)
	})

	t.Run("Close closes the detector", func(t *testing.T) {
		s, detector := openFieldSession(t)
		require.NoError(t, s.Close())
		assert.True(t, detector.closed)
	})
}

// TestSessionConcurrentSnapshot reads snapshots while frames are processed.
func TestSessionConcurrentSnapshot(t *testing.T) {
	detections := make([]Detection, 200)
	for i := range detections {
		detections[i] = found(100+i%150, 150)
	}
	p := profiler.New(profiler.Options{})
	s, err := NewSession(Options{
		Detector: &MockDetector{detections: detections},
		Protocol: zones.OpenField,
		Regions:  zones.Regions{{Name: "center", X: 100, Y: 100, W: 200, H: 200}},
		Profiler: p,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID())

	frame := gocv.NewMat()
	defer frame.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_, err := s.Snapshot(30)
			assert.NoError(t, err)
		}
	}()
	for range detections {
		_, err := s.ProcessFrame(frame)
		require.NoError(t, err)
	}
	wg.Wait()

	assert.Equal(t, 200, s.Frames())
	assert.Equal(t, int64(200), p.Operations()["detect"].Count)
	assert.Equal(t, int64(200), p.Operations()["zones"].Count)
}

// TestBackgroundDetector runs the classical front end on synthetic frames.
func TestBackgroundDetector(t *testing.T) {
	bgFrame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(20, 20, 20, 0), 240, 320, gocv.MatTypeCV8UC3)
	defer bgFrame.Close()
	bg, err := NewBackground(bgFrame)
	require.NoError(t, err)
	defer bg.Close()
	assert.Equal(t, image.Pt(320, 240), bg.Size())

	detector, err := NewBackgroundDetector(bg, DefaultBackgroundConfig())
	require.NoError(t, err)
	defer detector.Close()

	t.Run("subject found", func(t *testing.T) {
		frame := bgFrame.Clone()
		defer frame.Close()
		gocv.Rectangle(&frame, image.Rect(100, 100, 180, 130), color.RGBA{150, 150, 150, 0}, -1)

		det, err := detector.Detect(frame)
		require.NoError(t, err)
		require.True(t, det.Found)
		assert.InDelta(t, 140, det.Position.X, 3)
		assert.InDelta(t, 115, det.Position.Y, 3)
		assert.True(t, det.HasOrientation)
		assert.InDelta(t, 0, det.Orientation.Angle, 0.1, "wide blob lies along x")
		assert.NotEmpty(t, det.Candidates)
		assert.False(t, detector.Mask().Empty())
	})

	t.Run("empty scene", func(t *testing.T) {
		frame := bgFrame.Clone()
		defer frame.Close()

		det, err := detector.Detect(frame)
		require.NoError(t, err)
		assert.False(t, det.Found)
	})

	t.Run("size mismatch is fatal", func(t *testing.T) {
		frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 100, 100, gocv.MatTypeCV8UC3)
		defer frame.Close()

		_, err := detector.Detect(frame)
		assert.ErrorIs(t, err, images.ErrSizeMismatch)
	})

	t.Run("bounds update", func(t *testing.T) {
		assert.Error(t, detector.SetBounds(images.ScalarBounds(200, 100)))
		require.NoError(t, detector.SetBounds(images.ScalarBounds(10, 50)))
		assert.Equal(t, images.ScalarBounds(10, 50), detector.Config().Bounds)

		frame := bgFrame.Clone()
		defer frame.Close()
		gocv.Rectangle(&frame, image.Rect(100, 100, 180, 130), color.RGBA{150, 150, 150, 0}, -1)

		det, err := detector.Detect(frame)
		require.NoError(t, err)
		assert.False(t, det.Found, "difference of 130 is outside [10, 50]")
	})
}

// TestSession_SinglePixelIsAMiss runs the loosest valid configuration: a
// one-pixel kernel opening and no lower area bound.
func TestSession_SinglePixelIsAMiss(t *testing.T) {
	bgFrame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(20, 20, 20, 0), 120, 160, gocv.MatTypeCV8UC3)
	defer bgFrame.Close()
	bg, err := NewBackground(bgFrame)
	require.NoError(t, err)
	defer bg.Close()

	config := DefaultBackgroundConfig()
	config.Segmenter.ErodeKernel, config.Segmenter.DilateKernel = 1, 1
	config.Selector.MinArea = 0
	detector, err := NewBackgroundDetector(bg, config)
	require.NoError(t, err)

	s, err := NewSession(Options{
		Detector:            detector,
		Protocol:            zones.OpenField,
		Regions:             zones.Regions{{Name: "center", X: 40, Y: 30, W: 80, H: 60}},
		EntrySpeedThreshold: zones.DefaultEntrySpeedThreshold,
	})
	require.NoError(t, err)
	defer s.Close()

	frame := bgFrame.Clone()
	defer frame.Close()
	gocv.Rectangle(&frame, image.Rect(50, 50, 51, 51), color.RGBA{150, 150, 150, 0}, -1)

	r, err := s.ProcessFrame(frame)
	require.NoError(t, err, "a degenerate contour fails the frame, not the session")
	assert.False(t, r.Detected)
	assert.False(t, r.HasPosition)
	assert.Equal(t, 1, s.Frames())
}

func TestBackground_Errors(t *testing.T) {
	empty := gocv.NewMat()
	defer empty.Close()

	_, err := NewBackground(empty)
	assert.ErrorIs(t, err, images.ErrNoBackground)

	_, err = LoadBackground("does-not-exist.png")
	assert.ErrorIs(t, err, images.ErrNoBackground)

	_, err = NewBackgroundDetector(nil, DefaultBackgroundConfig())
	assert.ErrorIs(t, err, images.ErrNoBackground)
}

func TestAnnotate(t *testing.T) {
	s, _ := openFieldSession(t, found(150, 150))
	defer s.Close()

	r, err := s.ProcessFrame(gocv.NewMat())
	require.NoError(t, err)
	require.True(t, r.Detected)

	frame := gocv.NewMatWithSize(400, 400, gocv.MatTypeCV8UC3)
	defer frame.Close()
	before := images.MatChecksum(frame)
	framesBefore := s.Frames()

	s.Annotate(&frame, r, AnnotateOptions{DrawAxis: true, Status: true})

	assert.NotEqual(t, before, images.MatChecksum(frame), "overlay drawn")
	assert.Equal(t, framesBefore, s.Frames(), "annotation leaves session state alone")
	assert.Equal(t, 1, s.Occupancy()["center"])
}
