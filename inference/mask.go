package inference

import (
	"image"
	"sort"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

// Candidate is one row of the segmentation head.
type Candidate struct {
	// Box is (cx, cy, w, h) in model input pixels.
	Box [4]float32
	// Score is the best class confidence.
	Score float32
	// Class is the index of the best class.
	Class int
	// Coeffs are the mask coefficients, one per prototype channel.
	Coeffs []float32
}

// Rect returns the box as corner coordinates scaled by factor.
func (c Candidate) Rect(factor float32) (x1, y1, x2, y2 float32) {
	cx, cy, w, h := c.Box[0]*factor, c.Box[1]*factor, c.Box[2]*factor, c.Box[3]*factor
	return cx - w/2, cy - h/2, cx + w/2, cy + h/2
}

// BestCandidate returns the highest scoring candidate of the head output.
//
// Arguments:
//   - output: The "output0" data laid out as [4+classes+channels, anchors].
//   - anchors: The number of candidate columns.
//   - classes: The number of class rows.
//   - channels: The number of mask coefficient rows.
//   - threshold: The minimum class confidence.
//
// Returns:
//   - Candidate: The best candidate. Ties keep the earliest anchor.
//   - bool: False when no candidate reaches threshold.
func BestCandidate(output []float32, anchors, classes, channels int, threshold float32) (Candidate, bool) {
	rows := 4 + classes + channels
	if anchors <= 0 || len(output) < rows*anchors {
		return Candidate{}, false
	}
	at := func(row, anchor int) float32 { return output[row*anchors+anchor] }

	best, bestClass := -1, 0
	bestScore := float32(-1)
	for a := 0; a < anchors; a++ {
		for k := 0; k < classes; k++ {
			if s := at(4+k, a); s > bestScore {
				best, bestClass, bestScore = a, k, s
			}
		}
	}
	if best < 0 || bestScore < threshold {
		return Candidate{}, false
	}

	c := Candidate{Score: bestScore, Class: bestClass, Coeffs: make([]float32, channels)}
	for i := 0; i < 4; i++ {
		c.Box[i] = at(i, best)
	}
	for m := 0; m < channels; m++ {
		c.Coeffs[m] = at(4+classes+m, best)
	}
	return c, true
}

// DecodeMask projects the candidate coefficients onto the prototypes and
// returns a binary mask at prototype resolution.
//
// Arguments:
//   - c: The candidate.
//   - protos: The "output1" data laid out as [channels, height*width].
//   - width: The prototype width.
//   - height: The prototype height.
//   - stride: The ratio between model input and prototype size.
//   - threshold: The probability above which a pixel is foreground.
//
// Returns:
//   - []byte: height*width pixels, 255 inside the subject and 0 elsewhere.
//   - error: An error if the shapes disagree.
func DecodeMask(c Candidate, protos []float32, width, height int, stride, threshold float32) ([]byte, error) {
	channels, size := len(c.Coeffs), width*height
	if channels == 0 || len(protos) < channels*size {
		return nil, errors.Errorf("prototypes hold %d values, need %d", len(protos), channels*size)
	}

	coeffs := tensor.New(tensor.WithShape(1, channels), tensor.WithBacking(c.Coeffs))
	proj := tensor.New(tensor.WithShape(channels, size), tensor.WithBacking(protos[:channels*size]))
	prod, err := tensor.MatMul(coeffs, proj)
	if err != nil {
		return nil, errors.Wrap(err, "project mask coefficients")
	}
	logits, ok := prod.Data().([]float32)
	if !ok || len(logits) != size {
		return nil, errors.New("unexpected mask projection")
	}

	x1, y1, x2, y2 := c.Rect(1 / stride)
	x1, y1 = math32.Max(x1, 0), math32.Max(y1, 0)
	x2, y2 = math32.Min(x2, float32(width)), math32.Min(y2, float32(height))

	mask := make([]byte, size)
	for y := 0; y < height; y++ {
		fy := float32(y)
		if fy < y1 || fy >= y2 {
			continue
		}
		for x := 0; x < width; x++ {
			fx := float32(x)
			if fx < x1 || fx >= x2 {
				continue
			}
			if sigmoid(logits[y*width+x]) > threshold {
				mask[y*width+x] = 255
			}
		}
	}
	return mask, nil
}

func sigmoid(v float32) float32 {
	return 1 / (1 + math32.Exp(-v))
}

// MaskCenter returns the median column and median row of the foreground
// pixels. With an even count the two middle values are averaged and truncated.
//
// Arguments:
//   - mask: A single channel mask.
//
// Returns:
//   - image.Point: The mask center.
//   - bool: False when the mask has no foreground pixel.
func MaskCenter(mask gocv.Mat) (image.Point, bool) {
	if mask.Empty() {
		return image.Point{}, false
	}
	cols := mask.Cols()
	data := mask.ToBytes()

	var xs, ys []int
	for i, v := range data {
		if v > 0 {
			xs = append(xs, i%cols)
			ys = append(ys, i/cols)
		}
	}
	if len(xs) == 0 {
		return image.Point{}, false
	}
	return image.Pt(median(xs), median(ys)), true
}

func median(v []int) int {
	sort.Ints(v)
	n := len(v)
	if n%2 == 1 {
		return v[n/2]
	}
	return (v[n/2-1] + v[n/2]) / 2
}
