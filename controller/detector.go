// Package controller - Detection front ends and the per-session tracking
// pipeline that routes frames through them.
package controller

import (
	"image"
	"sync"

	"github.com/nvr-ai/go-arena/images"
	"github.com/nvr-ai/go-arena/tracking"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Detection is the outcome of running a Detector on one frame.
type Detection struct {
	// Found is false when the frame holds no valid subject. Position is
	// meaningless in that case; (0, 0) is a valid location and never means
	// "no detection".
	Found bool
	// Position is the subject centroid in frame pixel coordinates.
	Position image.Point
	// Orientation is set when HasOrientation is true.
	Orientation    tracking.Orientation
	HasOrientation bool
	// Area is the enclosed area of the subject contour.
	Area float64
	// Subject is the selected contour.
	Subject images.Contour
	// Candidates are all contours within the valid area range, for drawing.
	Candidates []images.Contour
}

// Detector locates the tracked subject in a frame.
type Detector interface {
	// Detect returns the subject detection for the frame. A frame without a
	// subject is not an error; errors are fatal preconditions.
	Detect(frame gocv.Mat) (Detection, error)
	// Mask returns the foreground mask of the last Detect call. It is owned by
	// the Detector and may be empty.
	Mask() gocv.Mat
	// Close releases native resources.
	Close() error
}

// Background is an immutable reference frame held for the lifetime of a session.
type Background struct {
	mat gocv.Mat
}

// NewBackground clones frame into a background reference.
//
// Arguments:
//   - frame: The reference frame, usually the first frame of the video.
//
// Returns:
//   - *Background: The reference. The caller may reuse frame afterwards.
//   - error: images.ErrNoBackground when frame is empty.
func NewBackground(frame gocv.Mat) (*Background, error) {
	if frame.Empty() {
		return nil, images.ErrNoBackground
	}
	return &Background{mat: frame.Clone()}, nil
}

// LoadBackground reads a static background image from disk.
func LoadBackground(path string) (*Background, error) {
	mat := gocv.IMRead(path, gocv.IMReadColor)
	if mat.Empty() {
		mat.Close()
		return nil, errors.Wrapf(images.ErrNoBackground, "unreadable image %s", path)
	}
	return &Background{mat: mat}, nil
}

// Mat returns the reference frame. Callers must not modify it.
func (b *Background) Mat() gocv.Mat { return b.mat }

// Size returns the reference frame dimensions.
func (b *Background) Size() image.Point {
	return image.Pt(b.mat.Cols(), b.mat.Rows())
}

// Close releases the reference frame.
func (b *Background) Close() error {
	return b.mat.Close()
}

// BackgroundConfig holds the parameters of the background-subtraction detector.
type BackgroundConfig struct {
	Bounds    images.Bounds
	Segmenter images.SegmenterConfig
	Selector  images.ContourSelector
}

// DefaultBackgroundConfig returns bounds [100, 160], the 3/20 opening and the
// [100, 100000] area range.
func DefaultBackgroundConfig() BackgroundConfig {
	return BackgroundConfig{
		Bounds:    images.ScalarBounds(100, 160),
		Segmenter: images.DefaultSegmenterConfig(),
		Selector:  images.DefaultContourSelector(),
	}
}

// BackgroundDetector finds the subject by subtracting a static background,
// selecting the largest valid contour and estimating its orientation.
type BackgroundDetector struct {
	mu         sync.RWMutex
	config     BackgroundConfig
	background *Background
	segmenter  *images.Segmenter
}

// NewBackgroundDetector creates a detector over a background reference.
//
// Arguments:
//   - background: The reference frame. It is not owned by the detector.
//   - config: The detector configuration.
//
// Returns:
//   - *BackgroundDetector: The detector.
//   - error: An error if the background is missing or the bounds are invalid.
//
// @example
// bg, _ := NewBackground(firstFrame)
// detector, err := NewBackgroundDetector(bg, DefaultBackgroundConfig())
// defer detector.Close()
func NewBackgroundDetector(background *Background, config BackgroundConfig) (*BackgroundDetector, error) {
	if background == nil || background.mat.Empty() {
		return nil, images.ErrNoBackground
	}
	if err := config.Bounds.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid color bounds")
	}
	return &BackgroundDetector{
		config:     config,
		background: background,
		segmenter:  images.NewSegmenter(config.Segmenter),
	}, nil
}

// Detect implements Detector.
func (d *BackgroundDetector) Detect(frame gocv.Mat) (Detection, error) {
	d.mu.RLock()
	bounds, selector := d.config.Bounds, d.config.Selector
	d.mu.RUnlock()

	mask, err := d.segmenter.Segment(frame, d.background.Mat(), bounds)
	if err != nil {
		return Detection{}, err
	}

	selection, ok := selector.Select(mask)
	if !ok {
		return Detection{}, nil
	}

	orientation, err := tracking.EstimateOrientation(selection.Subject.Contour)
	if err != nil {
		return Detection{}, errors.Wrap(err, "estimate orientation")
	}

	return Detection{
		Found:          true,
		Position:       orientation.Centroid,
		Orientation:    orientation,
		HasOrientation: true,
		Area:           selection.Subject.Area,
		Subject:        selection.Subject.Contour,
		Candidates:     contoursOf(selection.Candidates),
	}, nil
}

// Mask implements Detector.
func (d *BackgroundDetector) Mask() gocv.Mat {
	return d.segmenter.Mask
}

// Config returns the current configuration.
func (d *BackgroundDetector) Config() BackgroundConfig {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config
}

// SetBounds replaces the color band used from the next frame on.
//
// Arguments:
//   - bounds: The new band.
//
// Returns:
//   - error: An error if lower exceeds upper in any channel.
func (d *BackgroundDetector) SetBounds(bounds images.Bounds) error {
	if err := bounds.Validate(); err != nil {
		return errors.Wrap(err, "invalid color bounds")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.config.Bounds = bounds
	return nil
}

// Close implements Detector. The background reference is left open.
func (d *BackgroundDetector) Close() error {
	d.segmenter.Close()
	return nil
}

func contoursOf(candidates []images.Candidate) []images.Contour {
	out := make([]images.Contour, len(candidates))
	for i, c := range candidates {
		out[i] = c.Contour
	}
	return out
}
