package controller

import (
	"fmt"

	"github.com/nvr-ai/go-arena/images"
	"github.com/nvr-ai/go-arena/tracking"
	"gocv.io/x/gocv"
)

// AnnotateOptions toggles optional overlay layers.
type AnnotateOptions struct {
	// DrawAxis draws both principal axes from the centroid.
	DrawAxis bool
	// ColorMask tints the foreground mask onto the frame.
	ColorMask bool
	// Status writes speed and distance in the top-left corner.
	Status bool
}

// Annotate draws the tracking overlay for a frame result. It has no effect on
// session state.
//
// Arguments:
//   - frame: The frame the result was computed from, modified in place.
//   - r: The result returned by ProcessFrame for that frame.
//   - opts: Optional overlay layers.
func (s *Session) Annotate(frame *gocv.Mat, r Result, opts AnnotateOptions) {
	if opts.ColorMask {
		images.TintMask(frame, s.detector.Mask())
	}

	if r.Detected {
		images.DrawContours(frame, r.Candidates, images.ContourColor)
		images.DrawCentroid(frame, r.Position)
		if opts.DrawAxis && r.HasOrientation {
			major, minor := r.Orientation.AxisEndpoints(tracking.DefaultAxisScale)
			images.DrawAxis(frame, r.Orientation.Centroid, major, images.MajorAxisColor, 2)
			images.DrawAxis(frame, r.Orientation.Centroid, minor, images.MinorAxisColor, 2)
		}
	}

	occupancy := s.Occupancy()
	for _, region := range s.Regions() {
		active := r.HasPosition && r.InZone && r.Zone == region.Name
		label := fmt.Sprintf("%s: %d", region.Name, occupancy[region.Name])
		images.DrawRegion(frame, region.Rectangle(), label, active)
	}

	if opts.Status {
		images.DrawStatus(frame, 0, "frame %d", r.Index)
		if r.HasPosition {
			images.DrawStatus(frame, 1, "zone %s speed %.1f distance %.0f", r.Zone, r.Speed, r.Distance)
		}
	}
}
