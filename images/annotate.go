// Package images - Frame annotation primitives used by the tracker overlay.
package images

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"
)

// Overlay colors. color.RGBA is in true RGB order; gocv converts to BGR.
var (
	ContourColor        = color.RGBA{255, 0, 255, 0}
	CentroidColor       = color.RGBA{247, 89, 42, 0}
	MajorAxisColor      = color.RGBA{77, 249, 91, 0}
	MinorAxisColor      = color.RGBA{91, 192, 190, 0}
	ActiveRegionColor   = color.RGBA{66, 244, 128, 0}
	InactiveRegionColor = color.RGBA{80, 80, 80, 0}
	LabelColor          = color.RGBA{255, 255, 255, 0}
)

// maskTint is the BGR scalar blended over foreground pixels.
var maskTint = gocv.NewScalar(222, 70, 222, 0)

// DrawContours outlines every contour on the image.
//
// Arguments:
//   - img: The image to draw on.
//   - contours: The contours to draw.
//   - c: The outline color.
func DrawContours(img *gocv.Mat, contours []Contour, c color.RGBA) {
	if len(contours) == 0 {
		return
	}
	pts := make([][]image.Point, len(contours))
	for i, contour := range contours {
		pts[i] = contour
	}
	pvs := gocv.NewPointsVectorFromPoints(pts)
	defer pvs.Close()

	gocv.DrawContours(img, pvs, -1, c, 2)
}

// DrawCentroid draws a filled dot at the centroid.
func DrawCentroid(img *gocv.Mat, p image.Point) {
	gocv.Circle(img, p, 3, CentroidColor, -1)
}

// DrawAxis draws an arrow from p along the direction of q, lengthened by scale,
// with two 9px hooks at its tip.
//
// Arguments:
//   - img: The image to draw on.
//   - p: The arrow origin (usually the centroid).
//   - q: A point giving the arrow direction and base length.
//   - c: The arrow color.
//   - scale: The length multiplier applied to |p - q|.
func DrawAxis(img *gocv.Mat, p, q image.Point, c color.RGBA, scale float64) {
	px, py := float64(p.X), float64(p.Y)
	dx, dy := px-float64(q.X), py-float64(q.Y)
	angle := math.Atan2(dy, dx)
	hypotenuse := math.Hypot(dx, dy)

	tip := image.Pt(
		int(px-scale*hypotenuse*math.Cos(angle)),
		int(py-scale*hypotenuse*math.Sin(angle)),
	)
	gocv.Line(img, p, tip, c, 2)

	for _, hook := range []float64{math.Pi / 4, -math.Pi / 4} {
		h := image.Pt(
			int(float64(tip.X)+9*math.Cos(angle+hook)),
			int(float64(tip.Y)+9*math.Sin(angle+hook)),
		)
		gocv.Line(img, h, tip, c, 2)
	}
}

// DrawRegion draws a labelled region rectangle, highlighted when active.
//
// Arguments:
//   - img: The image to draw on.
//   - r: The region rectangle.
//   - label: The text drawn above the rectangle.
//   - active: Whether the subject is inside the region this frame.
func DrawRegion(img *gocv.Mat, r image.Rectangle, label string, active bool) {
	c := InactiveRegionColor
	if active {
		c = ActiveRegionColor
	}
	gocv.Rectangle(img, r, c, 2)
	gocv.PutText(img, label, image.Pt(r.Min.X, r.Min.Y-5), gocv.FontHersheyComplex, 0.5, LabelColor, 1)
}

// DrawStatus writes a line of text in the top-left corner. Lines are stacked
// 20px apart by index.
func DrawStatus(img *gocv.Mat, line int, format string, args ...any) {
	gocv.PutText(img, fmt.Sprintf(format, args...), image.Pt(10, 20+20*line), gocv.FontHersheyPlain, 1.2, LabelColor, 2)
}

// TintMask adds a colored copy of the foreground mask onto the image.
//
// Arguments:
//   - img: A 3-channel image, modified in place.
//   - mask: A single-channel binary mask of the same size.
func TintMask(img *gocv.Mat, mask gocv.Mat) {
	if mask.Empty() || img.Rows() != mask.Rows() || img.Cols() != mask.Cols() {
		return
	}
	tint := gocv.NewMatWithSizeFromScalar(maskTint, img.Rows(), img.Cols(), gocv.MatTypeCV8UC3)
	defer tint.Close()
	colored := gocv.NewMat()
	defer colored.Close()

	tint.CopyToWithMask(&colored, mask)
	gocv.Add(*img, colored, img)
}
