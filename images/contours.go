// Package images - Contour extraction and subject selection.
package images

import (
	"image"

	"gocv.io/x/gocv"
)

const (
	// DefaultMinArea rejects noise specks.
	DefaultMinArea = 100.0
	// DefaultMaxArea rejects whole-frame artifacts.
	DefaultMaxArea = 100000.0
	// MinContourPoints is the fewest points a contour needs to enclose an area.
	MinContourPoints = 3
)

// Contour is an ordered sequence of points outlining a connected foreground region.
type Contour []image.Point

// Candidate is a contour that survived area filtering.
type Candidate struct {
	Contour Contour
	Area    float64
}

// Selection is the outcome of selecting the tracked subject from a mask.
type Selection struct {
	// Subject is the contour used downstream for orientation and position.
	Subject Candidate
	// Candidates lists every contour within the area range, in extraction order.
	Candidates []Candidate
}

// ContourSelector filters contours by enclosed area and picks the subject.
//
// The policy is "largest contour wins": exactly one subject is tracked, so the
// contour with the greatest area is selected. Equal areas keep the first
// contour in extraction order.
type ContourSelector struct {
	MinArea float64 `json:"min_area" yaml:"min_area"`
	MaxArea float64 `json:"max_area" yaml:"max_area"`
}

// DefaultContourSelector returns a selector accepting areas in [100, 100000].
func DefaultContourSelector() ContourSelector {
	return ContourSelector{
		MinArea: DefaultMinArea,
		MaxArea: DefaultMaxArea,
	}
}

// Accepts reports whether an area lies inside the inclusive valid range.
func (cs ContourSelector) Accepts(area float64) bool {
	return area >= cs.MinArea && area <= cs.MaxArea
}

// FindContours extracts every contour of the mask in list mode, without
// point approximation.
//
// Arguments:
//   - mask: A single-channel binary mask.
//
// Returns:
//   - []Contour: The contours, in OpenCV extraction order.
func FindContours(mask gocv.Mat) []Contour {
	if mask.Empty() {
		return nil
	}
	pvs := gocv.FindContours(mask, gocv.RetrievalList, gocv.ChainApproxNone)
	defer pvs.Close()

	contours := make([]Contour, 0, pvs.Size())
	for i := 0; i < pvs.Size(); i++ {
		contours = append(contours, Contour(pvs.At(i).ToPoints()))
	}
	return contours
}

// ContourArea computes the area enclosed by a contour.
func ContourArea(c Contour) float64 {
	if len(c) < MinContourPoints {
		return 0
	}
	pv := gocv.NewPointVectorFromPoints(c)
	defer pv.Close()
	return gocv.ContourArea(pv)
}

// Filter extracts the contours of the mask and keeps those within the area range.
// Contours with fewer than MinContourPoints points are dropped whatever the
// range, so a zero MinArea never admits single pixels or lines of two.
//
// Arguments:
//   - mask: A single-channel binary mask.
//
// Returns:
//   - []Candidate: The surviving contours with their areas.
func (cs ContourSelector) Filter(mask gocv.Mat) []Candidate {
	var candidates []Candidate
	for _, c := range FindContours(mask) {
		if len(c) < MinContourPoints {
			continue
		}
		area := ContourArea(c)
		if !cs.Accepts(area) {
			continue
		}
		candidates = append(candidates, Candidate{Contour: c, Area: area})
	}
	return candidates
}

// Select picks the tracked subject from the mask.
//
// Arguments:
//   - mask: A single-channel binary mask.
//
// Returns:
//   - Selection: The subject and every valid candidate.
//   - bool: false when no contour survives filtering (no detection).
func (cs ContourSelector) Select(mask gocv.Mat) (Selection, bool) {
	candidates := cs.Filter(mask)
	subject, ok := Largest(candidates)
	if !ok {
		return Selection{}, false
	}
	return Selection{Subject: subject, Candidates: candidates}, true
}

// Largest returns the candidate with the greatest area; ties keep the first one.
func Largest(candidates []Candidate) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Area > best.Area {
			best = c
		}
	}
	return best, true
}
