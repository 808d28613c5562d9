// Package config - YAML configuration of a tracking run, its defaults and
// validation.
package config

import (
	"os"
	"slices"
	"time"

	"github.com/nvr-ai/go-arena/images"
	"github.com/nvr-ai/go-arena/inference"
	"github.com/nvr-ai/go-arena/trigger"
	"github.com/nvr-ai/go-arena/zones"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Detector front ends.
const (
	DetectorBackground = "background"
	DetectorNeural     = "neural"
)

// Channels is a per-channel color value. In YAML it is either a scalar
// applied to every channel or a list of three values.
type Channels [3]uint8

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *Channels) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var v int
		if err := value.Decode(&v); err != nil {
			return err
		}
		if v < 0 || v > 255 {
			return errors.Errorf("line %d: channel value %d out of [0, 255]", value.Line, v)
		}
		*c = Channels{uint8(v), uint8(v), uint8(v)}
		return nil
	case yaml.SequenceNode:
		var vs []int
		if err := value.Decode(&vs); err != nil {
			return err
		}
		if len(vs) != 3 {
			return errors.Errorf("line %d: expected 3 channel values, got %d", value.Line, len(vs))
		}
		for i, v := range vs {
			if v < 0 || v > 255 {
				return errors.Errorf("line %d: channel value %d out of [0, 255]", value.Line, v)
			}
			c[i] = uint8(v)
		}
		return nil
	}
	return errors.Errorf("line %d: channels must be a number or a list of three numbers", value.Line)
}

// Output holds the display and logging toggles. None of them affects the
// numeric results.
type Output struct {
	// Dir receives logs and the result video. Empty means next to the video.
	Dir         string `yaml:"dir"`
	SaveVideo   bool   `yaml:"save_video"`
	LogPosition bool   `yaml:"log_position"`
	LogSpeed    bool   `yaml:"log_speed"`
	LogStats    bool   `yaml:"log_stats"`
	// LogRegion adds the region column to the position log and skips frames
	// outside every region.
	LogRegion   bool   `yaml:"log_region"`
	DrawAxis    bool   `yaml:"draw_axis"`
	ColorMask   bool   `yaml:"color_mask"`
	ShowWindow  bool   `yaml:"show_window"`
}

// Trigger configures the occupancy signal port.
type Trigger struct {
	Device   string `yaml:"device"`
	Region   string `yaml:"region"`
	BaudRate int    `yaml:"baud_rate"`
}

// Config is the full configuration of a tracking run.
type Config struct {
	// Protocol names a built-in protocol ("OF", "EPM").
	Protocol string `yaml:"protocol"`
	// CustomProtocol, when set, replaces Protocol.
	CustomProtocol *zones.Protocol `yaml:"custom_protocol"`
	// Regions overrides the sidecar path derived from the video path.
	Regions string `yaml:"regions"`

	// Detector selects the front end: "background" or "neural".
	Detector string `yaml:"detector"`
	// Background is an optional static background image. The first frame is
	// used when empty.
	Background string                 `yaml:"background"`
	Lower      Channels               `yaml:"lower"`
	Upper      Channels               `yaml:"upper"`
	Segmenter  images.SegmenterConfig `yaml:"segmenter"`
	Area       images.ContourSelector `yaml:"area"`
	Neural     inference.Config       `yaml:"neural"`

	// EntrySpeedThreshold is the minimum per-frame speed for an entry.
	EntrySpeedThreshold float64 `yaml:"entry_speed_threshold"`
	// FPS converts frames to seconds. Zero uses the source frame rate.
	FPS float64 `yaml:"fps"`
	// MaxFrames stops the run early when positive.
	MaxFrames int `yaml:"max_frames"`
	// ReportInterval is the profiler log period. Zero disables periodic reports.
	ReportInterval time.Duration `yaml:"report_interval"`

	Output  Output  `yaml:"output"`
	Trigger Trigger `yaml:"trigger"`
}

// Default returns the reference configuration.
func Default() Config {
	return Config{
		Protocol:            zones.OpenField.Name,
		Detector:            DetectorBackground,
		Lower:               Channels{100, 100, 100},
		Upper:               Channels{160, 160, 160},
		Segmenter:           images.DefaultSegmenterConfig(),
		Area:                images.DefaultContourSelector(),
		Neural:              inference.DefaultConfig(),
		EntrySpeedThreshold: zones.DefaultEntrySpeedThreshold,
		Output:              Output{LogRegion: true},
		Trigger:             Trigger{BaudRate: trigger.DefaultBaudRate},
	}
}

// Load reads a YAML file over the defaults. Keys absent from the file keep
// their default value.
//
// Arguments:
//   - path: The YAML file.
//
// Returns:
//   - Config: The merged and validated configuration.
//   - error: An error if the file is unreadable, malformed or invalid.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(ErrInvalidConfig, "%s: %v", path, err)
	}
	return cfg, cfg.Validate()
}

// Bounds returns the color band.
func (c Config) Bounds() images.Bounds {
	return images.Bounds{Lower: c.Lower, Upper: c.Upper}
}

// ResolveProtocol returns the custom protocol when set, else the named built-in.
func (c Config) ResolveProtocol() (zones.Protocol, error) {
	if c.CustomProtocol != nil {
		return *c.CustomProtocol, c.CustomProtocol.Validate()
	}
	return zones.LookupProtocol(c.Protocol)
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	protocol, err := c.ResolveProtocol()
	if err != nil {
		return errors.Wrapf(ErrInvalidConfig, "protocol: %v", err)
	}
	if err := c.Bounds().Validate(); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "bounds: %v", err)
	}
	if c.Area.MinArea < 0 || c.Area.MinArea > c.Area.MaxArea {
		return errors.Wrapf(ErrInvalidConfig, "area range [%g, %g]", c.Area.MinArea, c.Area.MaxArea)
	}
	if c.Segmenter.ErodeKernel < 1 || c.Segmenter.DilateKernel < 1 {
		return errors.Wrap(ErrInvalidConfig, "kernel sizes must be positive")
	}
	if c.EntrySpeedThreshold < 0 {
		return errors.Wrapf(ErrInvalidConfig, "entry speed threshold %g", c.EntrySpeedThreshold)
	}
	if c.FPS < 0 || c.MaxFrames < 0 || c.ReportInterval < 0 {
		return errors.Wrap(ErrInvalidConfig, "negative frame rate, frame limit or report interval")
	}
	switch c.Detector {
	case DetectorBackground:
	case DetectorNeural:
		if err := c.Neural.Validate(); err != nil {
			return errors.Wrapf(ErrInvalidConfig, "neural: %v", err)
		}
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown detector %q", c.Detector)
	}
	if c.Trigger.Device != "" {
		if c.Trigger.Region == "" {
			return errors.Wrap(ErrInvalidConfig, "trigger device needs a region")
		}
		if !slices.Contains(protocol.Zones(), c.Trigger.Region) {
			return errors.Wrapf(ErrInvalidConfig, "trigger region %q is not a %s zone %v",
				c.Trigger.Region, protocol.Name, protocol.Zones())
		}
		if c.Trigger.BaudRate <= 0 {
			return errors.Wrapf(ErrInvalidConfig, "trigger baud rate %d", c.Trigger.BaudRate)
		}
	}
	return nil
}
