// Package stats - Session statistics snapshots.
package stats

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// ErrInvalidFrameRate is returned when the frame rate is not positive.
var ErrInvalidFrameRate = errors.New("frame rate must be positive")

// Input holds the raw counters a snapshot is computed from.
type Input struct {
	SessionID        string
	Frames           int
	TraveledDistance float64
	// Occupancy is the number of frames spent in each zone.
	Occupancy map[string]int
	// Entries is the number of entries into each zone.
	Entries map[string]int
}

// Snapshot is the serializable summary of a session.
type Snapshot struct {
	SessionID        string  `json:"session_id,omitempty"`
	Frames           int     `json:"frames"`
	TraveledDistance float64 `json:"traveled_distance"`
	// TimeInRegions is the occupancy of each zone in seconds.
	TimeInRegions map[string]float64 `json:"time_in_regions"`
	Entries       map[string]int     `json:"entries"`
}

// Aggregate converts raw counters into a snapshot. It never mutates in.
//
// Arguments:
//   - in: The session counters.
//   - fps: The frame rate used to convert frame counts to seconds.
//
// Returns:
//   - Snapshot: The summary, with fresh maps.
//   - error: ErrInvalidFrameRate when fps <= 0.
func Aggregate(in Input, fps float64) (Snapshot, error) {
	if fps <= 0 {
		return Snapshot{}, errors.Wrapf(ErrInvalidFrameRate, "got %v", fps)
	}

	s := Snapshot{
		SessionID:        in.SessionID,
		Frames:           in.Frames,
		TraveledDistance: in.TraveledDistance,
		TimeInRegions:    make(map[string]float64, len(in.Occupancy)),
		Entries:          make(map[string]int, len(in.Entries)),
	}
	for zone, frames := range in.Occupancy {
		s.TimeInRegions[zone] = float64(frames) / fps
	}
	for zone, n := range in.Entries {
		s.Entries[zone] = n
	}
	return s, nil
}

// WriteJSON writes the snapshot as indented JSON.
func (s Snapshot) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return errors.Wrap(enc.Encode(s), "encode stats")
}
