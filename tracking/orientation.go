// Package tracking - Subject orientation and motion estimation.
package tracking

import (
	"image"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// DefaultAxisScale is the eigenvalue multiplier used to size the drawn axes.
const DefaultAxisScale = 0.02

// ErrTooFewPoints is returned when a contour has fewer than two points.
var ErrTooFewPoints = errors.New("orientation needs at least two points")

// Axis is one principal axis of a point cloud.
type Axis struct {
	// Vector is the unit eigenvector.
	Vector [2]float64
	// Eigenvalue is the population variance along Vector.
	Eigenvalue float64
}

// Orientation is the result of principal component analysis on a contour.
type Orientation struct {
	// Centroid is the mean of the points, rounded to the nearest pixel.
	Centroid image.Point
	// Mean is the unrounded mean.
	Mean [2]float64
	// Angle is atan2 of the dominant eigenvector, in (-pi/2, pi/2].
	Angle float64
	// Axes holds the dominant axis first.
	Axes [2]Axis
}

// EstimateOrientation computes the centroid and dominant orientation of a
// point set with PCA.
//
// The dominant eigenvector is normalized to point right (or down when it is
// vertical) so the reported angle is deterministic for a given point set.
//
// Arguments:
//   - points: The contour points.
//
// Returns:
//   - Orientation: The centroid, angle and both principal axes.
//   - error: ErrTooFewPoints, or an error if the decomposition fails.
func EstimateOrientation(points []image.Point) (Orientation, error) {
	if len(points) < 2 {
		return Orientation{}, ErrTooFewPoints
	}

	data := mat.NewDense(len(points), 2, nil)
	var sumX, sumY float64
	for i, p := range points {
		x, y := float64(p.X), float64(p.Y)
		data.Set(i, 0, x)
		data.Set(i, 1, y)
		sumX += x
		sumY += y
	}
	n := float64(len(points))
	mean := [2]float64{sumX / n, sumY / n}

	var pc stat.PC
	if ok := pc.PrincipalComponents(data, nil); !ok {
		return Orientation{}, errors.New("principal component decomposition failed")
	}
	// gonum reports sample variances; rescale to the population variance
	// so axis lengths match OpenCV's PCA.
	variances := pc.VarsTo(nil)
	for i := range variances {
		variances[i] *= (n - 1) / n
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)

	// Columns of vecs are the eigenvectors, already in descending variance
	// order. Sort explicitly so equal variances keep the first column.
	axes := [2]Axis{
		{Vector: [2]float64{vecs.At(0, 0), vecs.At(1, 0)}, Eigenvalue: variances[0]},
		{Vector: [2]float64{vecs.At(0, 1), vecs.At(1, 1)}, Eigenvalue: variances[1]},
	}
	if axes[1].Eigenvalue > axes[0].Eigenvalue {
		axes[0], axes[1] = axes[1], axes[0]
	}
	axes[0].Vector = canonical(axes[0].Vector)

	return Orientation{
		Centroid: image.Pt(int(math.Round(mean[0])), int(math.Round(mean[1]))),
		Mean:     mean,
		Angle:    math.Atan2(axes[0].Vector[1], axes[0].Vector[0]),
		Axes:     axes,
	}, nil
}

// canonical flips v so that x > 0, or y > 0 when x == 0.
func canonical(v [2]float64) [2]float64 {
	if v[0] < 0 || (v[0] == 0 && v[1] < 0) {
		return [2]float64{-v[0], -v[1]}
	}
	return v
}

// AxisEndpoints returns the end points of the two axis segments drawn from
// the centroid: the major axis forward and the minor axis backward, each
// scaled by its eigenvalue.
func (o Orientation) AxisEndpoints(scale float64) (major, minor image.Point) {
	cx, cy := float64(o.Centroid.X), float64(o.Centroid.Y)
	a, b := o.Axes[0], o.Axes[1]
	major = image.Pt(
		int(cx+scale*a.Vector[0]*a.Eigenvalue),
		int(cy+scale*a.Vector[1]*a.Eigenvalue),
	)
	minor = image.Pt(
		int(cx-scale*b.Vector[0]*b.Eigenvalue),
		int(cy-scale*b.Vector[1]*b.Eigenvalue),
	)
	return major, minor
}
