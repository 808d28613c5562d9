// Package video - Frame sources feeding the tracking loop: video files and
// directories of numbered frame images.
package video

import (
	"image"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// DefaultFPS is used when a source does not report a usable frame rate.
const DefaultFPS = 30.0

// ErrEndOfStream is returned by Read once the source has no more frames.
var ErrEndOfStream = errors.New("end of stream")

// Source yields frames in order.
type Source interface {
	// Read decodes the next frame into dst. It returns ErrEndOfStream when
	// the source is exhausted.
	Read(dst *gocv.Mat) error
	// FPS returns the nominal frame rate, DefaultFPS when unknown.
	FPS() float64
	// Size returns the frame dimensions.
	Size() image.Point
	// Close releases the source.
	Close() error
}

// Open picks a Capture for files and a Sequence for directories.
func Open(path string, fps float64) (Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open source %s", path)
	}
	if info.IsDir() {
		return OpenSequence(path, fps)
	}
	return OpenCapture(path)
}

// Capture reads frames from a video file.
type Capture struct {
	path    string
	capture *gocv.VideoCapture
}

// OpenCapture opens a video file.
//
// Arguments:
//   - path: The video file path.
//
// Returns:
//   - *Capture: The opened capture.
//   - error: An error if the file cannot be opened.
func OpenCapture(path string) (*Capture, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open video %s", path)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, errors.Errorf("open video %s: not readable", path)
	}
	return &Capture{path: path, capture: capture}, nil
}

// Read implements Source.
func (c *Capture) Read(dst *gocv.Mat) error {
	if ok := c.capture.Read(dst); !ok || dst.Empty() {
		return ErrEndOfStream
	}
	return nil
}

// FPS implements Source.
func (c *Capture) FPS() float64 {
	if fps := c.capture.Get(gocv.VideoCaptureFPS); fps > 0 {
		return fps
	}
	return DefaultFPS
}

// Size implements Source.
func (c *Capture) Size() image.Point {
	return image.Pt(
		int(c.capture.Get(gocv.VideoCaptureFrameWidth)),
		int(c.capture.Get(gocv.VideoCaptureFrameHeight)),
	)
}

// Path returns the video file path.
func (c *Capture) Path() string { return c.path }

// Close implements Source.
func (c *Capture) Close() error {
	return c.capture.Close()
}

// Frame is one numbered image of a sequence.
type Frame struct {
	// Path is the path to the image file.
	Path string
	// Index is the frame number parsed from the file name.
	Index int
}

// ListFrames lists the frame-N images of a directory ordered by N.
//
// Arguments:
//   - dir: Directory containing frame-N.{jpg,jpeg,png,bmp} files.
//
// Returns:
//   - []Frame: The frames sorted by index.
//   - error: An error if the directory is unreadable or a name has no number.
func ListFrames(dir string) ([]Frame, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var frames []Frame
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		ext := filepath.Ext(file.Name())
		switch strings.ToLower(ext) {
		case ".jpg", ".jpeg", ".png", ".bmp":
			index, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(file.Name(), "frame-"), ext))
			if err != nil {
				return nil, errors.Wrapf(err, "frame number of %s", file.Name())
			}
			frames = append(frames, Frame{
				Path:  filepath.Join(dir, file.Name()),
				Index: index,
			})
		}
	}

	sort.Slice(frames, func(i, j int) bool {
		return frames[i].Index < frames[j].Index
	})

	return frames, nil
}

// Sequence reads a directory of numbered frame images.
type Sequence struct {
	frames []Frame
	next   int
	fps    float64
	size   image.Point
}

// OpenSequence lists the frames of dir and reads the first one for its size.
//
// Arguments:
//   - dir: The frame directory.
//   - fps: The nominal frame rate, DefaultFPS when <= 0.
//
// Returns:
//   - *Sequence: The sequence positioned on the first frame.
//   - error: An error if the directory holds no readable frame.
func OpenSequence(dir string, fps float64) (*Sequence, error) {
	frames, err := ListFrames(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "open sequence %s", dir)
	}
	if len(frames) == 0 {
		return nil, errors.Errorf("open sequence %s: no frames", dir)
	}

	first := gocv.IMRead(frames[0].Path, gocv.IMReadColor)
	defer first.Close()
	if first.Empty() {
		return nil, errors.Errorf("open sequence %s: unreadable frame %s", dir, frames[0].Path)
	}

	if fps <= 0 {
		fps = DefaultFPS
	}
	return &Sequence{
		frames: frames,
		fps:    fps,
		size:   image.Pt(first.Cols(), first.Rows()),
	}, nil
}

// Read implements Source.
func (s *Sequence) Read(dst *gocv.Mat) error {
	if s.next >= len(s.frames) {
		return ErrEndOfStream
	}
	frame := s.frames[s.next]
	s.next++

	img := gocv.IMRead(frame.Path, gocv.IMReadColor)
	defer img.Close()
	if img.Empty() {
		return errors.Errorf("unreadable frame %s", frame.Path)
	}
	img.CopyTo(dst)
	return nil
}

// FPS implements Source.
func (s *Sequence) FPS() float64 { return s.fps }

// Size implements Source.
func (s *Sequence) Size() image.Point { return s.size }

// Len returns the number of frames.
func (s *Sequence) Len() int { return len(s.frames) }

// Close implements Source.
func (s *Sequence) Close() error { return nil }
