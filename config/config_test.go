package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nvr-ai/go-arena/images"
	"github.com/nvr-ai/go-arena/zones"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "arena.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, images.ScalarBounds(100, 160), cfg.Bounds())
	assert.Equal(t, 3, cfg.Segmenter.ErodeKernel)
	assert.Equal(t, 20, cfg.Segmenter.DilateKernel)
	assert.Equal(t, 100.0, cfg.Area.MinArea)
	assert.Equal(t, 100000.0, cfg.Area.MaxArea)
	assert.Equal(t, 1.0, cfg.EntrySpeedThreshold)
	assert.True(t, cfg.Output.LogRegion)
	assert.Equal(t, 500000, cfg.Trigger.BaudRate)

	p, err := cfg.ResolveProtocol()
	require.NoError(t, err)
	assert.Equal(t, zones.OpenField.Name, p.Name)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
protocol: EPM
lower: [90, 100, 110]
upper: 200
segmenter:
  erode_kernel: 3
  dilate_kernel: 5
  blur: true
fps: 25
report_interval: 2s
output:
  log_speed: true
  log_region: false
trigger:
  device: /dev/ttyUSB0
  region: center
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "EPM", cfg.Protocol)
	assert.Equal(t, images.Bounds{Lower: [3]uint8{90, 100, 110}, Upper: [3]uint8{200, 200, 200}}, cfg.Bounds())
	assert.True(t, cfg.Segmenter.Blur)
	assert.Equal(t, 5, cfg.Segmenter.DilateKernel)
	assert.Equal(t, 25.0, cfg.FPS)
	assert.Equal(t, 2*time.Second, cfg.ReportInterval)
	assert.True(t, cfg.Output.LogSpeed)
	assert.Equal(t, "center", cfg.Trigger.Region)
	assert.Equal(t, 500000, cfg.Trigger.BaudRate)
	assert.False(t, cfg.Output.LogRegion)

	assert.Equal(t, 100.0, cfg.Area.MinArea, "absent keys keep their defaults")
	assert.Equal(t, DetectorBackground, cfg.Detector)
}

func TestLoad_CustomProtocol(t *testing.T) {
	path := writeConfig(t, `
custom_protocol:
  name: LDB
  regions: [light, dark]
  baseline: light
  entry_rule: leaves-baseline
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	p, err := cfg.ResolveProtocol()
	require.NoError(t, err)
	assert.Equal(t, "LDB", p.Name)
	assert.Equal(t, []string{"light", "dark"}, p.RegionNames)
	assert.Equal(t, zones.LeavesBaseline, p.EntryRule)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown protocol", "protocol: T-maze\n"},
		{"lower above upper", "lower: 200\nupper: 100\n"},
		{"channel out of range", "lower: 300\n"},
		{"two channels", "lower: [1, 2]\n"},
		{"inverted area range", "area:\n  min_area: 500\n  max_area: 10\n"},
		{"unknown detector", "detector: magic\n"},
		{"neural without model", "detector: neural\n"},
		{"negative fps", "fps: -1\n"},
		{"trigger without region", "trigger:\n  device: /dev/ttyUSB0\n"},
		{"trigger region not in protocol", "trigger:\n  device: /dev/ttyUSB0\n  region: centre\n"},
		{"trigger region of another protocol", "protocol: OF\ntrigger:\n  device: /dev/ttyUSB0\n  region: left\n"},
		{"zero baud rate", "trigger:\n  device: /dev/ttyUSB0\n  region: center\n  baud_rate: 0\n"},
		{"malformed yaml", "protocol: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
