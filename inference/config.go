// Package inference - Neural segmentation front end running a YOLO-seg style
// ONNX model through onnxruntime.
package inference

import (
	"github.com/pkg/errors"
)

// Provider is the onnxruntime execution provider used for the session.
type Provider string

const (
	// ProviderCPU uses the default CPU execution provider.
	ProviderCPU Provider = "cpu"
	// ProviderOpenVINO uses the OpenVINO execution provider.
	ProviderOpenVINO Provider = "openvino"
	// ProviderCoreML uses the CoreML execution provider.
	ProviderCoreML Provider = "coreml"
)

// Providers lists every supported execution provider.
var Providers = []Provider{ProviderCPU, ProviderOpenVINO, ProviderCoreML}

// Config configures the neural detector.
type Config struct {
	// ModelPath is the ONNX model file. The model takes "images" [1, 3, H, W]
	// and produces "output0" [1, 4+classes+channels, anchors] and "output1"
	// [1, channels, H/4, W/4].
	ModelPath string `yaml:"model_path"`
	// SharedLibraryPath is the onnxruntime shared library.
	SharedLibraryPath string `yaml:"shared_library_path"`
	// Provider selects the execution provider.
	Provider Provider `yaml:"provider"`

	InputWidth   int `yaml:"input_width"`
	InputHeight  int `yaml:"input_height"`
	NumClasses   int `yaml:"num_classes"`
	MaskChannels int `yaml:"mask_channels"`

	// ConfidenceThreshold rejects weaker candidates.
	ConfidenceThreshold float32 `yaml:"confidence_threshold"`
	// MaskThreshold is the probability above which a mask pixel is foreground.
	MaskThreshold float32 `yaml:"mask_threshold"`

	IntraOpThreads int `yaml:"intra_op_threads"`
	InterOpThreads int `yaml:"inter_op_threads"`

	// ErodeKernel and DilateKernel size the opening applied to the mask.
	ErodeKernel  int `yaml:"erode_kernel"`
	DilateKernel int `yaml:"dilate_kernel"`
}

// DefaultConfig returns a single-class 640x640 configuration on CPU.
func DefaultConfig() Config {
	return Config{
		Provider:            ProviderCPU,
		InputWidth:          640,
		InputHeight:         640,
		NumClasses:          1,
		MaskChannels:        32,
		ConfidenceThreshold: 0.25,
		MaskThreshold:       0.5,
		IntraOpThreads:      4,
		InterOpThreads:      2,
		ErodeKernel:         3,
		DilateKernel:        5,
	}
}

// Anchors returns the number of candidate boxes produced for the input size
// (strides 8, 16 and 32).
func (c Config) Anchors() int {
	w, h := c.InputWidth, c.InputHeight
	return (w/8)*(h/8) + (w/16)*(h/16) + (w/32)*(h/32)
}

// ProtoSize returns the width and height of the mask prototypes.
func (c Config) ProtoSize() (int, int) {
	return c.InputWidth / 4, c.InputHeight / 4
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.ModelPath == "" {
		return errors.New("model path is required")
	}
	if c.InputWidth <= 0 || c.InputHeight <= 0 || c.InputWidth%32 != 0 || c.InputHeight%32 != 0 {
		return errors.Errorf("input size %dx%d must be positive multiples of 32", c.InputWidth, c.InputHeight)
	}
	if c.NumClasses <= 0 || c.MaskChannels <= 0 {
		return errors.Errorf("invalid model head: %d classes, %d mask channels", c.NumClasses, c.MaskChannels)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 || c.MaskThreshold < 0 || c.MaskThreshold > 1 {
		return errors.New("thresholds must lie in [0, 1]")
	}
	for _, p := range Providers {
		if c.Provider == p {
			return nil
		}
	}
	return errors.Errorf("unknown execution provider %q", c.Provider)
}
