package inference

import (
	"image"
	"math"
	"sync"

	"github.com/nvr-ai/go-arena/controller"
	"github.com/nvr-ai/go-arena/images"
	"github.com/nvr-ai/go-arena/tracking"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gocv.io/x/gocv"
)

// Detector locates the subject with a segmentation model. It implements
// controller.Detector.
type Detector struct {
	mu        sync.Mutex
	config    Config
	session   *Session
	segmenter *images.Segmenter
	selector  images.ContourSelector
	logger    zerolog.Logger
	raw       gocv.Mat
	resized   gocv.Mat
	mask      gocv.Mat
}

var _ controller.Detector = (*Detector)(nil)

// NewDetector loads the model and prepares the detector.
//
// Arguments:
//   - config: The detector configuration.
//   - logger: Receives detector events.
//
// Returns:
//   - *Detector: The detector.
//   - error: An error if the model cannot be loaded.
//
// @example
// detector, err := NewDetector(Config{ModelPath: "models/mouse-seg.onnx"}, logger)
// defer detector.Close()
func NewDetector(config Config, logger zerolog.Logger) (*Detector, error) {
	session, err := NewSession(config)
	if err != nil {
		return nil, errors.Wrap(err, "segmentation model")
	}
	d := newDetector(config, logger)
	d.session = session

	logger.Info().
		Str("model", config.ModelPath).
		Str("provider", string(config.Provider)).
		Int("input_width", config.InputWidth).
		Int("input_height", config.InputHeight).
		Msg("segmentation model loaded")
	return d, nil
}

func newDetector(config Config, logger zerolog.Logger) *Detector {
	return &Detector{
		config: config,
		segmenter: images.NewSegmenter(images.SegmenterConfig{
			ErodeKernel:  config.ErodeKernel,
			DilateKernel: config.DilateKernel,
		}),
		selector: images.ContourSelector{MinArea: 0, MaxArea: math.Inf(1)},
		logger:   logger,
		raw:      gocv.NewMat(),
		resized:  gocv.NewMat(),
		mask:     gocv.NewMat(),
	}
}

// Detect implements controller.Detector.
func (d *Detector) Detect(frame gocv.Mat) (controller.Detection, error) {
	if frame.Empty() {
		return controller.Detection{}, images.ErrEmptyFrame
	}
	img, err := frame.ToImage()
	if err != nil {
		return controller.Detection{}, errors.Wrap(err, "convert frame")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session == nil {
		return controller.Detection{}, errors.New("detector closed")
	}
	if err := PrepareInput(img, d.config.InputWidth, d.config.InputHeight, d.session.Input.GetData()); err != nil {
		return controller.Detection{}, err
	}
	if err := d.session.Run(); err != nil {
		return controller.Detection{}, errors.Wrap(err, "run segmentation model")
	}
	return d.decode(image.Pt(frame.Cols(), frame.Rows()), d.session.Boxes.GetData(), d.session.Protos.GetData())
}

// decode turns raw model outputs into a detection at frame resolution.
func (d *Detector) decode(size image.Point, boxes, protos []float32) (controller.Detection, error) {
	c := d.config
	candidate, ok := BestCandidate(boxes, c.Anchors(), c.NumClasses, c.MaskChannels, c.ConfidenceThreshold)
	if !ok {
		d.logger.Debug().Msg("no candidate above confidence threshold")
		d.clearMask(size)
		return controller.Detection{}, nil
	}

	pw, ph := c.ProtoSize()
	stride := float32(c.InputWidth) / float32(pw)
	data, err := DecodeMask(candidate, protos, pw, ph, stride, c.MaskThreshold)
	if err != nil {
		return controller.Detection{}, err
	}

	raw, err := gocv.NewMatFromBytes(ph, pw, gocv.MatTypeCV8UC1, data)
	if err != nil {
		return controller.Detection{}, errors.Wrap(err, "mask mat")
	}
	d.raw.Close()
	d.raw = raw

	if err := gocv.Resize(d.raw, &d.resized, size, 0, 0, gocv.InterpolationLinear); err != nil {
		return controller.Detection{}, errors.Wrap(err, "resize mask")
	}
	gocv.Threshold(d.resized, &d.resized, 127, 255, gocv.ThresholdBinary)
	if err := d.segmenter.Open(d.resized, &d.mask); err != nil {
		return controller.Detection{}, errors.Wrap(err, "clean mask")
	}

	center, ok := MaskCenter(d.mask)
	if !ok {
		d.logger.Warn().Float32("score", candidate.Score).Msg("mask is empty after cleanup")
		return controller.Detection{}, nil
	}

	det := controller.Detection{Found: true, Position: center}
	if selection, ok := d.selector.Select(d.mask); ok {
		det.Area = selection.Subject.Area
		det.Subject = selection.Subject.Contour
		det.Candidates = []images.Contour{selection.Subject.Contour}
		if o, err := tracking.EstimateOrientation(selection.Subject.Contour); err == nil {
			o.Centroid = center
			det.Orientation, det.HasOrientation = o, true
		}
	}
	return det, nil
}

func (d *Detector) clearMask(size image.Point) {
	if d.mask.Rows() == size.Y && d.mask.Cols() == size.X {
		d.mask.SetTo(gocv.NewScalar(0, 0, 0, 0))
	}
}

// Mask implements controller.Detector.
func (d *Detector) Mask() gocv.Mat {
	return d.mask
}

// Close implements controller.Detector.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session != nil {
		d.session.Close()
		d.session = nil
	}
	d.segmenter.Close()
	for _, m := range []*gocv.Mat{&d.raw, &d.resized, &d.mask} {
		if err := m.Close(); err != nil {
			return err
		}
	}
	return nil
}
