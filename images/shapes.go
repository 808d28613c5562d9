// Package images - Rectangle geometry shared by region handling and mask cropping.
package images

import "image"

// Rect is a lightweight bounding box.
type Rect struct {
	// X2,Y2 are exclusive (like image.Rectangle).
	X1, Y1, X2, Y2 int
}

// RectFromXYWH builds a Rect from a top-left corner and a size.
func RectFromXYWH(x, y, w, h int) Rect {
	return Rect{X1: x, Y1: y, X2: x + w, Y2: y + h}
}

// Area returns the rectangle area, or 0 for a degenerate rectangle.
func (r Rect) Area() int {
	w, h := r.X2-r.X1, r.Y2-r.Y1
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Image converts the Rect into an image.Rectangle.
func (r Rect) Image() image.Rectangle {
	return image.Rect(r.X1, r.Y1, r.X2, r.Y2)
}

// IntersectionArea returns the area shared by two rectangles.
//
// Rectangles that only touch along an edge share no area.
func IntersectionArea(r, o Rect) int {
	interW := min(r.X2, o.X2) - max(r.X1, o.X1)
	interH := min(r.Y2, o.Y2) - max(r.Y1, o.Y1)
	if interW <= 0 || interH <= 0 {
		return 0
	}
	return interW * interH
}

// CalculateIoU returns the Intersection over Union of two rectangles.
//
//	IoU = Area of Intersection / Area of Union
//
// A value of 1.0 means the rectangles are identical and 0.0 means they do not
// overlap. Union is computed by inclusion-exclusion:
//
//	Area(Union) = Area(A) + Area(B) - Area(Intersection)
//
// Arguments:
//   - r: The first rectangle.
//   - o: The other rectangle to compare against.
//
// Returns:
//   - float32: A value between 0.0 and 1.0 representing the IoU score.
//
// @example
// rect1 := Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}
// rect2 := Rect{X1: 5, Y1: 5, X2: 15, Y2: 15}
// CalculateIoU(rect1, rect2) // 25 / 175 = 0.142857
func CalculateIoU(r, o Rect) float32 {
	interArea := IntersectionArea(r, o)
	if interArea == 0 {
		return 0.0
	}
	unionArea := r.Area() + o.Area() - interArea

	// Cast to float32 to ensure floating-point division.
	return float32(interArea) / float32(unionArea)
}
