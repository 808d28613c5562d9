package inference

import (
	"os"
	"runtime"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// Session represents a segmentation model session from the onnxruntime.
type Session struct {
	Session *ort.AdvancedSession
	// Input is the planar RGB image tensor [1, 3, H, W].
	Input *ort.Tensor[float32]
	// Boxes holds the candidate rows [1, 4+classes+channels, anchors].
	Boxes *ort.Tensor[float32]
	// Protos holds the mask prototypes [1, channels, H/4, W/4].
	Protos *ort.Tensor[float32]
}

// DefaultSharedLibPath returns the onnxruntime library path for the current platform.
//
// Returns:
//   - string: The path to the shared library.
//   - error: An error if the platform has no known library.
func DefaultSharedLibPath() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if runtime.GOARCH == "amd64" {
			return "./third_party/onnxruntime.dll", nil
		}
	case "darwin":
		return "./third_party/libonnxruntime.1.23.0.dylib", nil
	case "linux":
		if runtime.GOARCH == "arm64" {
			return "./third_party/onnxruntime_arm64.so", nil
		}
		return "./third_party/onnxruntime.so", nil
	}
	return "", errors.Errorf("no onnxruntime library for %s/%s", runtime.GOOS, runtime.GOARCH)
}

// NewSession creates a segmentation session.
//
// Arguments:
//   - config: The detector configuration.
//
// Returns:
//   - *Session: The session with its tensors bound.
//   - error: An error if the runtime or the model cannot be loaded.
func NewSession(config Config) (*Session, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	libPath := config.SharedLibraryPath
	if libPath == "" {
		var err error
		if libPath, err = DefaultSharedLibPath(); err != nil {
			return nil, err
		}
	}
	// Check if the shared library exists before trying to use it.
	if _, err := os.Stat(libPath); err != nil {
		return nil, errors.Wrapf(err, "onnxruntime library not found at %s", libPath)
	}
	if _, err := os.Stat(config.ModelPath); err != nil {
		return nil, errors.Wrapf(err, "model not found at %s", config.ModelPath)
	}

	if !ort.IsInitialized() {
		ort.SetSharedLibraryPath(libPath)
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, errors.Wrap(err, "error initializing ORT environment")
		}
	}

	w, h := config.InputWidth, config.InputHeight
	pw, ph := config.ProtoSize()

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(h), int64(w)))
	if err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}
	rows := int64(4 + config.NumClasses + config.MaskChannels)
	boxes, err := ort.NewEmptyTensor[float32](ort.NewShape(1, rows, int64(config.Anchors())))
	if err != nil {
		input.Destroy()
		return nil, errors.Wrap(err, "error creating box tensor")
	}
	protos, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(config.MaskChannels), int64(ph), int64(pw)))
	if err != nil {
		input.Destroy()
		boxes.Destroy()
		return nil, errors.Wrap(err, "error creating prototype tensor")
	}

	s := &Session{Input: input, Boxes: boxes, Protos: protos}

	options, err := sessionOptions(config)
	if err != nil {
		s.Close()
		return nil, err
	}
	defer options.Destroy()

	s.Session, err = ort.NewAdvancedSession(
		config.ModelPath,
		[]string{"images"},
		[]string{"output0", "output1"},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{boxes, protos},
		options,
	)
	if err != nil {
		s.Close()
		return nil, errors.Wrap(err, "error creating ORT session")
	}
	return s, nil
}

func sessionOptions(config Config) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "error creating ORT session options")
	}

	if err := options.SetIntraOpNumThreads(config.IntraOpThreads); err != nil {
		options.Destroy()
		return nil, errors.Wrap(err, "intra-op threads")
	}
	if err := options.SetInterOpNumThreads(config.InterOpThreads); err != nil {
		options.Destroy()
		return nil, errors.Wrap(err, "inter-op threads")
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		options.Destroy()
		return nil, errors.Wrap(err, "graph optimization level")
	}

	switch config.Provider {
	case ProviderCoreML:
		err = options.AppendExecutionProviderCoreML(0)
	case ProviderOpenVINO:
		err = options.AppendExecutionProviderOpenVINO(map[string]string{
			"device_type": "CPU",
			"precision":   "FP32",
		})
	}
	if err != nil {
		options.Destroy()
		return nil, errors.Wrapf(err, "error enabling %s", config.Provider)
	}
	return options, nil
}

// Run executes the model on the current Input.
func (s *Session) Run() error {
	if s.Session == nil {
		return errors.New("session closed")
	}
	return s.Session.Run()
}

// Close releases the resources associated with the Session.
func (s *Session) Close() {
	if s.Session != nil {
		s.Session.Destroy()
		s.Session = nil
	}
	for _, t := range []**ort.Tensor[float32]{&s.Input, &s.Boxes, &s.Protos} {
		if *t != nil {
			(*t).Destroy()
			*t = nil
		}
	}
}
