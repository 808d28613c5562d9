package images

import (
	"image"
	"image/color"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func newSolidFrame(rows, cols int, v float64) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(v, v, v, 0), rows, cols, gocv.MatTypeCV8UC3)
}

func TestScalarBounds(t *testing.T) {
	b := ScalarBounds(100, 160)
	assert.Equal(t, [3]uint8{100, 100, 100}, b.Lower)
	assert.Equal(t, [3]uint8{160, 160, 160}, b.Upper)
	assert.NoError(t, b.Validate())

	inverted := Bounds{Lower: [3]uint8{10, 200, 10}, Upper: [3]uint8{20, 100, 20}}
	assert.Error(t, inverted.Validate())
}

func TestSegmenter_IsolatesSubject(t *testing.T) {
	background := newSolidFrame(200, 200, 0)
	defer background.Close()
	frame := newSolidFrame(200, 200, 0)
	defer frame.Close()

	// A subject whose difference against the background falls inside the band.
	gocv.Rectangle(&frame, image.Rect(60, 60, 120, 100), color.RGBA{130, 130, 130, 0}, -1)

	seg := NewSegmenter(DefaultSegmenterConfig())
	defer seg.Close()

	frameSum, backgroundSum := MatChecksum(frame), MatChecksum(background)
	mask, err := seg.Segment(frame, background, ScalarBounds(100, 160))
	require.NoError(t, err)
	require.False(t, mask.Empty())
	assert.Equal(t, frameSum, MatChecksum(frame), "frame must not be modified")
	assert.Equal(t, backgroundSum, MatChecksum(background), "background must not be modified")

	assert.Equal(t, 200, mask.Rows())
	assert.Equal(t, 200, mask.Cols())
	assert.Equal(t, 1, mask.Channels())
	assert.Equal(t, uint8(255), mask.GetUCharAt(80, 90), "subject interior must be foreground")
	assert.Equal(t, uint8(0), mask.GetUCharAt(5, 5), "far background must stay empty")
}

func TestSegmenter_DifferenceOutsideBand(t *testing.T) {
	background := newSolidFrame(120, 160, 0)
	defer background.Close()
	frame := newSolidFrame(120, 160, 0)
	defer frame.Close()

	// Too bright: difference 250 exceeds the upper bound.
	gocv.Rectangle(&frame, image.Rect(20, 20, 80, 80), color.RGBA{250, 250, 250, 0}, -1)

	seg := NewSegmenter(DefaultSegmenterConfig())
	defer seg.Close()

	mask, err := seg.Segment(frame, background, ScalarBounds(100, 160))
	require.NoError(t, err)
	assert.Equal(t, 0, gocv.CountNonZero(mask))
}

func TestSegmenter_BlurVariant(t *testing.T) {
	background := newSolidFrame(120, 160, 10)
	defer background.Close()
	frame := newSolidFrame(120, 160, 10)
	defer frame.Close()
	gocv.Rectangle(&frame, image.Rect(40, 30, 100, 90), color.RGBA{140, 140, 140, 0}, -1)

	config := LightSegmenterConfig()
	config.Blur = true
	seg := NewSegmenter(config)
	defer seg.Close()

	mask, err := seg.Segment(frame, background, ScalarBounds(100, 160))
	require.NoError(t, err)
	assert.Equal(t, uint8(255), mask.GetUCharAt(60, 70))
}

func TestSegmenter_Preconditions(t *testing.T) {
	seg := NewSegmenter(DefaultSegmenterConfig())
	defer seg.Close()

	frame := newSolidFrame(100, 100, 0)
	defer frame.Close()
	smaller := newSolidFrame(50, 100, 0)
	defer smaller.Close()
	gray := gocv.NewMatWithSize(100, 100, gocv.MatTypeCV8UC1)
	defer gray.Close()
	float32Frame := gocv.NewMatWithSize(100, 100, gocv.MatTypeCV32FC3)
	defer float32Frame.Close()
	empty := gocv.NewMat()
	defer empty.Close()

	tests := []struct {
		name       string
		frame      gocv.Mat
		background gocv.Mat
		bounds     Bounds
		want       error
	}{
		{"empty frame", empty, frame, ScalarBounds(100, 160), ErrEmptyFrame},
		{"missing background", frame, empty, ScalarBounds(100, 160), ErrNoBackground},
		{"size mismatch", frame, smaller, ScalarBounds(100, 160), ErrSizeMismatch},
		{"channel mismatch", frame, gray, ScalarBounds(100, 160), ErrSizeMismatch},
		{"depth mismatch", frame, float32Frame, ScalarBounds(100, 160), ErrSizeMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := seg.Segment(tt.frame, tt.background, tt.bounds)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	t.Run("inverted bounds", func(t *testing.T) {
		_, err := seg.Segment(frame, frame, ScalarBounds(160, 100))
		assert.Error(t, err)
	})
}
