package inference

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	valid := DefaultConfig()
	valid.ModelPath = "model.onnx"
	require.NoError(t, valid.Validate())
	assert.Equal(t, 8400, valid.Anchors())
	pw, ph := valid.ProtoSize()
	assert.Equal(t, 160, pw)
	assert.Equal(t, 160, ph)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing model", func(c *Config) { c.ModelPath = "" }},
		{"input not a multiple of 32", func(c *Config) { c.InputWidth = 650 }},
		{"no classes", func(c *Config) { c.NumClasses = 0 }},
		{"confidence above one", func(c *Config) { c.ConfidenceThreshold = 1.5 }},
		{"unknown provider", func(c *Config) { c.Provider = "tpu" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestNewSession_MissingFiles(t *testing.T) {
	c := DefaultConfig()
	c.ModelPath = "does-not-exist.onnx"
	c.SharedLibraryPath = "does-not-exist.so"
	_, err := NewSession(c)
	assert.Error(t, err)
}

func TestPrepareInput(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{255, 0, 51, 255})
		}
	}

	dst := make([]float32, 3*8*8)
	require.NoError(t, PrepareInput(img, 8, 8, dst))
	assert.InDelta(t, 1.0, dst[0], 1e-6)
	assert.InDelta(t, 0.0, dst[64], 1e-6)
	assert.InDelta(t, 0.2, dst[128], 1e-6)

	assert.Error(t, PrepareInput(img, 8, 8, make([]float32, 10)))
}
