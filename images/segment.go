// Package images - This file contains the foreground segmentation stage
// using OpenCV (via gocv).
//
// The Segmenter isolates the tracked animal from a static background reference:
//  1. Absolute per-channel difference against the background.
//  2. Optional pre-blur of the difference image (Gaussian, then median).
//  3. Band-pass thresholding: a pixel is foreground only if every channel lies in [lower, upper].
//  4. Morphological opening: erosion with a small ellipse, then dilation with a larger one.
//
// Pipeline Overview:
//
// ┌──────────────┐   ┌──────────────────────┐
// │ Input Frame  │   │ Background Reference │
// └──────┬───────┘   └──────────┬───────────┘
// ┌──────────────────────────────────────────┐
// │ AbsDiff (per channel)                    │
// └──────┬───────────────────────────────────┘
// ┌──────────────────────────────┐
// │ Pre-blur (optional)          │
// └──────┬───────────────────────┘
// ┌──────────────────────────────┐
// │ InRange [lower, upper]       │
// └──────┬───────────────────────┘
// ┌──────────────────────────────┐
// │ Erode (3x3) / Dilate (20x20) │
// └──────┬───────────────────────┘
// ┌──────────────────────────────┐
// │ Binary Mask                  │
// └──────────────────────────────┘
//
// Usage:
//
//	seg := images.NewSegmenter(images.DefaultSegmenterConfig())
//	defer seg.Close()
//
//	for {
//	    frame := getNextFrame()
//	    mask, err := seg.Segment(frame, background, images.ScalarBounds(100, 160))
//	    ...
//	}
//
// Note: You must call Close() when finished to release native resources.
package images

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

var (
	// ErrEmptyFrame is returned when the frame to segment holds no pixels.
	ErrEmptyFrame = errors.New("frame is empty")
	// ErrNoBackground is returned when no background reference is available.
	ErrNoBackground = errors.New("background reference is empty")
	// ErrSizeMismatch is returned when the frame and the background differ in shape.
	ErrSizeMismatch = errors.New("frame and background differ in size or type")
)

// Bounds is the inclusive color band applied to the difference image, one
// value per channel (B, G, R for frames read by OpenCV).
type Bounds struct {
	Lower [3]uint8 `json:"lower" yaml:"lower"`
	Upper [3]uint8 `json:"upper" yaml:"upper"`
}

// ScalarBounds returns Bounds with the same lower and upper value on every channel.
//
// Arguments:
//   - lower: The lower bound applied to each channel.
//   - upper: The upper bound applied to each channel.
//
// Returns:
//   - Bounds: The per-channel band.
//
// @example
// bounds := ScalarBounds(100, 160) // [100,100,100] .. [160,160,160]
func ScalarBounds(lower, upper uint8) Bounds {
	return Bounds{
		Lower: [3]uint8{lower, lower, lower},
		Upper: [3]uint8{upper, upper, upper},
	}
}

// Validate checks that every channel's lower bound does not exceed its upper bound.
func (b Bounds) Validate() error {
	for c := 0; c < 3; c++ {
		if b.Lower[c] > b.Upper[c] {
			return errors.Errorf("channel %d: lower bound %d exceeds upper bound %d", c, b.Lower[c], b.Upper[c])
		}
	}
	return nil
}

func (b Bounds) scalars() (gocv.Scalar, gocv.Scalar) {
	lower := gocv.NewScalar(float64(b.Lower[0]), float64(b.Lower[1]), float64(b.Lower[2]), 0)
	upper := gocv.NewScalar(float64(b.Upper[0]), float64(b.Upper[1]), float64(b.Upper[2]), 0)
	return lower, upper
}

// SegmenterConfig holds the morphology parameters of the Segmenter.
type SegmenterConfig struct {
	// ErodeKernel is the diameter of the elliptical erosion element.
	ErodeKernel int `json:"erode_kernel" yaml:"erode_kernel"`
	// DilateKernel is the diameter of the elliptical dilation element.
	DilateKernel int `json:"dilate_kernel" yaml:"dilate_kernel"`
	// Blur smooths the difference image before thresholding.
	Blur bool `json:"blur" yaml:"blur"`
}

// DefaultSegmenterConfig returns the 3x3 erode / 20x20 dilate configuration.
func DefaultSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		ErodeKernel:  3,
		DilateKernel: 20,
	}
}

// LightSegmenterConfig returns the lighter 3x3 erode / 5x5 dilate configuration.
func LightSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		ErodeKernel:  3,
		DilateKernel: 5,
	}
}

// Segmenter converts a raw frame and a background reference into a binary
// foreground mask.
//
// The Mats are reused across frames. The mask returned by Segment is owned by
// the Segmenter and is overwritten by the next call; Clone it to keep it.
// Always call Close() when done to release native resources.
type Segmenter struct {
	Delta        gocv.Mat // Absolute difference against the background
	Threshold    gocv.Mat // Band-pass result before morphology
	Eroded       gocv.Mat // Threshold after erosion
	Mask         gocv.Mat // Final foreground mask
	ErodeKernel  gocv.Mat
	DilateKernel gocv.Mat
	blur         bool
}

// NewSegmenter constructs a Segmenter with elliptical structuring elements.
//
// Arguments:
//   - config: The morphology configuration. Kernel sizes below 1 are raised to 1.
//
// Returns:
//   - *Segmenter: The segmenter, ready to use.
func NewSegmenter(config SegmenterConfig) *Segmenter {
	return &Segmenter{
		Delta:        gocv.NewMat(),
		Threshold:    gocv.NewMat(),
		Eroded:       gocv.NewMat(),
		Mask:         gocv.NewMat(),
		ErodeKernel:  gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(max(config.ErodeKernel, 1), max(config.ErodeKernel, 1))),
		DilateKernel: gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(max(config.DilateKernel, 1), max(config.DilateKernel, 1))),
		blur:         config.Blur,
	}
}

// Segment runs the full segmentation pipeline on one frame.
//
// Arguments:
//   - frame: The current video frame.
//   - background: The background reference, same size and channels as frame.
//   - bounds: The color band passed by the caller on every call.
//
// Returns:
//   - gocv.Mat: The binary mask (owned by the Segmenter).
//   - error: ErrEmptyFrame, ErrNoBackground, ErrSizeMismatch or an invalid bounds error.
func (s *Segmenter) Segment(frame, background gocv.Mat, bounds Bounds) (gocv.Mat, error) {
	if frame.Empty() {
		return s.Mask, ErrEmptyFrame
	}
	if background.Empty() {
		return s.Mask, ErrNoBackground
	}
	if frame.Rows() != background.Rows() || frame.Cols() != background.Cols() ||
		frame.Type() != background.Type() {
		return s.Mask, errors.Wrapf(ErrSizeMismatch, "frame %dx%d %v, background %dx%d %v",
			frame.Cols(), frame.Rows(), frame.Type(),
			background.Cols(), background.Rows(), background.Type())
	}
	if err := bounds.Validate(); err != nil {
		return s.Mask, errors.Wrap(err, "invalid color bounds")
	}

	if err := gocv.AbsDiff(frame, background, &s.Delta); err != nil {
		return s.Mask, errors.Wrap(err, "absdiff")
	}

	if s.blur {
		if err := gocv.GaussianBlur(s.Delta, &s.Delta, image.Pt(5, 5), 0, 0, gocv.BorderDefault); err != nil {
			return s.Mask, errors.Wrap(err, "gaussian blur")
		}
		if err := gocv.MedianBlur(s.Delta, &s.Delta, 5); err != nil {
			return s.Mask, errors.Wrap(err, "median blur")
		}
	}

	lower, upper := bounds.scalars()
	if err := gocv.InRangeWithScalar(s.Delta, lower, upper, &s.Threshold); err != nil {
		return s.Mask, errors.Wrap(err, "in range")
	}

	return s.Mask, s.Open(s.Threshold, &s.Mask)
}

// Open applies the erode-then-dilate opening with the Segmenter's kernels.
//
// Arguments:
//   - src: A binary (or probability) mask.
//   - dst: The destination Mat, may alias src.
//
// Returns:
//   - error: An error if a morphology call fails.
func (s *Segmenter) Open(src gocv.Mat, dst *gocv.Mat) error {
	if err := gocv.Erode(src, &s.Eroded, s.ErodeKernel); err != nil {
		return errors.Wrap(err, "erode")
	}
	if err := gocv.Dilate(s.Eroded, dst, s.DilateKernel); err != nil {
		return errors.Wrap(err, "dilate")
	}
	return nil
}

// Close releases all OpenCV native resources used by the segmenter.
func (s *Segmenter) Close() {
	s.Delta.Close()
	s.Threshold.Close()
	s.Eroded.Close()
	s.Mask.Close()
	s.ErodeKernel.Close()
	s.DilateKernel.Close()
}
