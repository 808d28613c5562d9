// Package trigger - Per-frame occupancy signal for external hardware such as
// a microcontroller on a serial port driving a stimulus.
package trigger

import (
	"io"

	"github.com/nvr-ai/go-arena/controller"
	"github.com/pkg/errors"
	"go.bug.st/serial"
)

// DefaultBaudRate is the line speed the stimulus firmware listens at.
const DefaultBaudRate = 500000

const (
	// Inside is written on frames where the subject is in the region.
	Inside byte = '1'
	// Outside is written on every other frame.
	Outside byte = '0'
)

// Signal writes one byte per frame telling whether the subject is in a region.
type Signal struct {
	w      io.Writer
	closer io.Closer
	region string
	last   byte
	writes int
}

// New creates a signal over w for the named region.
func New(w io.Writer, region string) (*Signal, error) {
	if region == "" {
		return nil, errors.New("trigger region is required")
	}
	s := &Signal{w: w, region: region}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s, nil
}

// Open opens a serial port at the given baud rate (8N1).
//
// Arguments:
//   - device: The port name, for example /dev/ttyUSB0 or COM3.
//   - region: The region that raises the signal.
//   - baudRate: The line speed, DefaultBaudRate for the stock firmware.
//
// Returns:
//   - *Signal: The signal, owning the port.
//   - error: An error if the baud rate is invalid or the port cannot be opened.
func Open(device, region string, baudRate int) (*Signal, error) {
	if region == "" {
		return nil, errors.New("trigger region is required")
	}
	if baudRate <= 0 {
		return nil, errors.Errorf("invalid baud rate %d", baudRate)
	}
	port, err := serial.Open(device, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open trigger port %s", device)
	}
	return New(port, region)
}

// Update writes the signal byte for one frame result.
func (s *Signal) Update(r controller.Result) error {
	b := Outside
	if r.HasPosition && r.InZone && r.Zone == s.region {
		b = Inside
	}
	if _, err := s.w.Write([]byte{b}); err != nil {
		return errors.Wrap(err, "write trigger")
	}
	s.last = b
	s.writes++
	return nil
}

// Last returns the last byte written, 0 before the first Update.
func (s *Signal) Last() byte { return s.last }

// Writes returns the number of bytes written.
func (s *Signal) Writes() int { return s.writes }

// Region returns the watched region.
func (s *Signal) Region() string { return s.region }

// Close closes the underlying writer when it is closable.
func (s *Signal) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
