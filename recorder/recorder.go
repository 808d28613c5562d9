// Package recorder - Tabular session logs: position and speed CSV files and
// the stats JSON summary.
package recorder

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nvr-ai/go-arena/controller"
	"github.com/nvr-ai/go-arena/stats"
	"github.com/pkg/errors"
)

// Options selects which logs are written and where.
type Options struct {
	// Dir is the output directory.
	Dir string
	// Base prefixes every output file name, see OutputBase.
	Base string
	// FrameHeight flips logged y coordinates to a bottom-left origin.
	FrameHeight int
	// FPS converts frame indices to seconds in the speed log.
	FPS float64

	LogPosition bool
	LogSpeed    bool
	LogStats    bool
	// WithRegion adds the zone column to the position log.
	WithRegion bool
}

// OutputBase strips the directories and the extension of a video path.
//
// @example
// OutputBase("/data/mouse-03.mp4") // "mouse-03"
func OutputBase(videoPath string) string {
	base := filepath.Base(filepath.Clean(videoPath))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Recorder appends per-frame rows to the enabled logs.
type Recorder struct {
	opts     Options
	position *os.File
	speed    *os.File
	posCSV   *csv.Writer
	speedCSV *csv.Writer
	rows     int
}

// New creates the enabled log files and writes their headers.
//
// Arguments:
//   - opts: The logs to write.
//
// Returns:
//   - *Recorder: The recorder.
//   - error: An error if a file cannot be created or the frame rate is invalid.
func New(opts Options) (*Recorder, error) {
	if opts.LogSpeed && opts.FPS <= 0 {
		return nil, stats.ErrInvalidFrameRate
	}
	r := &Recorder{opts: opts}

	if opts.LogPosition {
		f, err := os.Create(r.PositionPath())
		if err != nil {
			return nil, errors.Wrap(err, "position log")
		}
		r.position, r.posCSV = f, csv.NewWriter(f)
		header := []string{"x", "y"}
		if opts.WithRegion {
			header = []string{"region", "x", "y"}
		}
		if err := r.posCSV.Write(header); err != nil {
			r.Close()
			return nil, errors.Wrap(err, "position log header")
		}
	}

	if opts.LogSpeed {
		f, err := os.Create(r.SpeedPath())
		if err != nil {
			r.Close()
			return nil, errors.Wrap(err, "speed log")
		}
		r.speed, r.speedCSV = f, csv.NewWriter(f)
		if err := r.speedCSV.Write([]string{"time", "speed"}); err != nil {
			r.Close()
			return nil, errors.Wrap(err, "speed log header")
		}
	}

	if opts.LogStats {
		if err := os.WriteFile(r.StatsPath(), nil, 0o644); err != nil {
			r.Close()
			return nil, errors.Wrap(err, "stats log")
		}
	}
	return r, nil
}

// PositionPath returns <dir>/<base>_pos.csv.
func (r *Recorder) PositionPath() string {
	return filepath.Join(r.opts.Dir, r.opts.Base+"_pos.csv")
}

// SpeedPath returns <dir>/<base>_speed.csv.
func (r *Recorder) SpeedPath() string {
	return filepath.Join(r.opts.Dir, r.opts.Base+"_speed.csv")
}

// StatsPath returns <dir>/<base>_stats.json.
func (r *Recorder) StatsPath() string {
	return filepath.Join(r.opts.Dir, r.opts.Base+"_stats.json")
}

// Record appends the frame result to the position and speed logs.
//
// Only detected frames reach the position log. With WithRegion, detections
// outside every zone are skipped as well. Every frame with a position reaches
// the speed log so the traveled distance can be re-derived from it.
func (r *Recorder) Record(res controller.Result) error {
	if r.posCSV != nil && res.Detected {
		x := strconv.Itoa(res.Position.X)
		y := strconv.Itoa(r.opts.FrameHeight - res.Position.Y)
		switch {
		case !r.opts.WithRegion:
			if err := r.posCSV.Write([]string{x, y}); err != nil {
				return errors.Wrap(err, "position log")
			}
			r.rows++
		case res.InZone:
			if err := r.posCSV.Write([]string{res.Zone, x, y}); err != nil {
				return errors.Wrap(err, "position log")
			}
			r.rows++
		}
	}

	if r.speedCSV != nil && res.HasPosition {
		t := float64(res.Index) / r.opts.FPS
		if err := r.speedCSV.Write([]string{formatFloat(t), formatFloat(res.Speed)}); err != nil {
			return errors.Wrap(err, "speed log")
		}
	}
	return nil
}

// Rows returns the number of position rows written.
func (r *Recorder) Rows() int { return r.rows }

// WriteStats replaces the stats file with the snapshot.
func (r *Recorder) WriteStats(s stats.Snapshot) error {
	if !r.opts.LogStats {
		return nil
	}
	var buf bytes.Buffer
	if err := s.WriteJSON(&buf); err != nil {
		return err
	}
	return errors.Wrap(os.WriteFile(r.StatsPath(), buf.Bytes(), 0o644), "stats log")
}

// Flush writes buffered rows to disk.
func (r *Recorder) Flush() error {
	for _, w := range []*csv.Writer{r.posCSV, r.speedCSV} {
		if w == nil {
			continue
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and closes the log files.
func (r *Recorder) Close() error {
	err := r.Flush()
	for _, f := range []*os.File{r.position, r.speed} {
		if f == nil {
			continue
		}
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}
	r.position, r.speed, r.posCSV, r.speedCSV = nil, nil, nil, nil
	return err
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// SpeedSample is one row of the speed log.
type SpeedSample struct {
	Time  float64
	Speed float64
}

// ReadSpeedLog parses a speed log written by Recorder.
func ReadSpeedLog(r io.Reader) ([]SpeedSample, error) {
	rows, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "read speed log")
	}
	if len(rows) == 0 || len(rows[0]) != 2 || rows[0][0] != "time" || rows[0][1] != "speed" {
		return nil, errors.New("speed log has no time,speed header")
	}

	samples := make([]SpeedSample, 0, len(rows)-1)
	for i, row := range rows[1:] {
		t, err := strconv.ParseFloat(row[0], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d time", i+1)
		}
		s, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d speed", i+1)
		}
		samples = append(samples, SpeedSample{Time: t, Speed: s})
	}
	return samples, nil
}

// TotalDistance sums the speeds of a log.
func TotalDistance(samples []SpeedSample) float64 {
	var total float64
	for _, s := range samples {
		total += s.Speed
	}
	return total
}
