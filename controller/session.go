package controller

import (
	"image"
	"sync"

	"github.com/google/uuid"
	"github.com/nvr-ai/go-arena/images"
	"github.com/nvr-ai/go-arena/profiler"
	"github.com/nvr-ai/go-arena/stats"
	"github.com/nvr-ai/go-arena/tracking"
	"github.com/nvr-ai/go-arena/zones"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gocv.io/x/gocv"
)

// Options configures a tracking Session.
type Options struct {
	// ID identifies the session in logs and stats. A UUID is generated when empty.
	ID string
	// Detector is the detection front end. The session owns it and closes it.
	Detector Detector
	// Protocol selects the zone topology and entry rule.
	Protocol zones.Protocol
	// Regions are the region definitions for Protocol.
	Regions zones.Regions
	// EntrySpeedThreshold is the minimum speed for a zone transition to count.
	EntrySpeedThreshold float64
	// Logger receives session events. Defaults to a no-op logger.
	Logger *zerolog.Logger
	// Profiler, when set, times each pipeline stage.
	Profiler *profiler.Profiler
}

// Result is the per-frame output of ProcessFrame.
type Result struct {
	// Index is the zero-based frame index within the session.
	Index int
	// Detected is true when this frame produced a valid subject.
	Detected bool
	// HasPosition is false until the first detection. Position then holds the
	// last known position on frames without a detection.
	HasPosition bool
	Position    image.Point
	// Orientation is only meaningful when HasOrientation is true.
	Orientation    tracking.Orientation
	HasOrientation bool
	Area           float64
	// Speed is the displacement since the previous frame, in pixels.
	Speed float64
	// Distance is the cumulative traveled distance.
	Distance float64
	// Zone is the zone of Position; InZone is false when it matched none.
	Zone    string
	InZone  bool
	Entered bool
	// Subject and Candidates are the contours used for drawing.
	Subject    images.Contour
	Candidates []images.Contour
}

// Session owns all per-session tracking state: the detector, motion state and
// zone counters.
//
// Frames must be processed in order from one goroutine. Snapshot, Frames and
// the counter accessors may be called concurrently from another goroutine.
type Session struct {
	mu         sync.Mutex
	id         string
	detector   Detector
	motion     *tracking.MotionTracker
	classifier *zones.Classifier
	logger     zerolog.Logger
	profiler   *profiler.Profiler
	frames     int
	last       image.Point
	hasLast    bool
}

// NewSession validates the options and creates a session.
//
// Arguments:
//   - opts: The session options.
//
// Returns:
//   - *Session: The session in its initial state.
//   - error: An error if the detector is missing or the regions are invalid.
func NewSession(opts Options) (*Session, error) {
	if opts.Detector == nil {
		return nil, errors.New("session needs a detector")
	}
	classifier, err := zones.NewClassifier(opts.Protocol, opts.Regions, opts.EntrySpeedThreshold)
	if err != nil {
		return nil, errors.Wrap(err, "zone classifier")
	}

	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	logger = logger.With().Str("session", id).Logger()

	logger.Info().
		Str("protocol", opts.Protocol.Name).
		Strs("regions", classifier.Regions().Names()).
		Float64("entry_speed_threshold", opts.EntrySpeedThreshold).
		Msg("session started")

	return &Session{
		id:         id,
		detector:   opts.Detector,
		motion:     tracking.NewMotionTracker(),
		classifier: classifier,
		logger:     logger,
		profiler:   opts.Profiler,
	}, nil
}

// ProcessFrame runs one frame through the pipeline:
// detect -> hold last known position on a miss -> motion -> zones.
//
// Arguments:
//   - frame: The current video frame.
//
// Returns:
//   - Result: The per-frame result.
//   - error: A fatal detector error. Session state is unchanged in that case.
func (s *Session) ProcessFrame(frame gocv.Mat) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	done := s.track("detect")
	det, err := s.detector.Detect(frame)
	done()
	if err != nil {
		return Result{Index: s.frames}, errors.Wrapf(err, "frame %d", s.frames)
	}

	r := Result{Index: s.frames}
	s.frames++

	if det.Found {
		s.last, s.hasLast = det.Position, true
		r.Detected = true
		r.Orientation, r.HasOrientation = det.Orientation, det.HasOrientation
		r.Area = det.Area
		r.Subject, r.Candidates = det.Subject, det.Candidates
		if s.profiler != nil {
			s.profiler.RecordMetric("subject_area", det.Area)
		}
	} else {
		s.logger.Debug().Int("frame", r.Index).Msg("no detection")
	}

	if !s.hasLast {
		return r, nil
	}
	r.HasPosition, r.Position = true, s.last

	done = s.track("motion")
	r.Speed = s.motion.Update(s.last)
	r.Distance = s.motion.Distance()
	done()

	done = s.track("zones")
	c := s.classifier.Classify(s.last, r.Speed)
	done()
	r.Zone, r.InZone, r.Entered = c.Zone, c.Matched, c.Entered

	if c.Entered {
		s.logger.Debug().Int("frame", r.Index).Str("zone", c.Zone).Float64("speed", r.Speed).Msg("zone entry")
	}
	return r, nil
}

func (s *Session) track(name string) func() {
	if s.profiler == nil {
		return func() {}
	}
	return s.profiler.StartOperation(name)
}

// Snapshot summarizes the session so far.
//
// Arguments:
//   - fps: The frame rate used to convert occupancy to seconds.
//
// Returns:
//   - stats.Snapshot: The summary.
//   - error: stats.ErrInvalidFrameRate when fps <= 0.
func (s *Session) Snapshot(fps float64) (stats.Snapshot, error) {
	s.mu.Lock()
	in := stats.Input{
		SessionID:        s.id,
		Frames:           s.frames,
		TraveledDistance: s.motion.Distance(),
		Occupancy:        s.classifier.Occupancy(),
		Entries:          s.classifier.Entries(),
	}
	s.mu.Unlock()

	return stats.Aggregate(in, fps)
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Frames returns the number of processed frames.
func (s *Session) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Occupancy returns a copy of the per-zone frame counters.
func (s *Session) Occupancy() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.classifier.Occupancy()
}

// Regions returns the session regions in protocol order.
func (s *Session) Regions() zones.Regions {
	return s.classifier.Regions()
}

// Detector returns the session's detector.
func (s *Session) Detector() Detector { return s.detector }

// Close releases the detector.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info().
		Int("frames", s.frames).
		Float64("traveled_distance", s.motion.Distance()).
		Msg("session closed")
	return s.detector.Close()
}
