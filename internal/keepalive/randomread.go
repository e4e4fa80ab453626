package keepalive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/rs/zerolog/log"

	"github.com/nuclearlighters/headsaver/internal/config"
)

// DefaultMaxOffset bounds the random offset. Any disk is assumed to hold at
// least 1 GiB.
const DefaultMaxOffset int64 = 1 << 30

// ErrDeviceOpen is logged when the raw device cannot be opened.
var ErrDeviceOpen = errors.New("can't read from device")

// Device is an open raw block device.
type Device interface {
	io.ReaderAt
	io.Closer
}

// sizer is implemented by devices that know their capacity.
type sizer interface {
	Size() (int64, error)
}

// RandomRead resets the idle timer by reading one byte at a random offset.
// The device is opened on the first live reset and kept open. If that open
// fails the strategy stays disabled for the lifetime of the process.
type RandomRead struct {
	device string
	live   bool

	dev    Device
	failed bool
	limit  int64
	buf    [1]byte

	// injectable for testing
	open      func(path string) (Device, error)
	randInt64 func(n int64) int64
	maxOffset int64
}

// NewRandomRead creates a RandomRead strategy for device.
func NewRandomRead(device string, live bool) *RandomRead {
	return &RandomRead{
		device:    device,
		live:      live,
		open:      openRawDevice,
		randInt64: rand.Int64N,
		maxOffset: DefaultMaxOffset,
	}
}

// Method returns config.MethodRandomRead.
func (r *RandomRead) Method() config.Method {
	return config.MethodRandomRead
}

// Reset reads one byte from a random position of the device. In dry-run mode
// no I/O is performed.
func (r *RandomRead) Reset(_ context.Context) {
	if !r.live {
		log.Debug().Msg("Not reading in testing (non-live) mode")
		return
	}
	if r.failed {
		log.Debug().Str("device", r.device).Msg("Device unavailable, random read skipped")
		return
	}

	if r.dev == nil {
		dev, err := r.open(r.device)
		if err != nil {
			r.failed = true
			log.Error().Err(fmt.Errorf("%w %s: %v", ErrDeviceOpen, r.device, err)).Msg("Random read disabled")
			return
		}
		r.dev = dev
		r.limit = r.maxOffset
		if s, ok := dev.(sizer); ok {
			if size, err := s.Size(); err == nil && size > 0 && size < r.limit {
				r.limit = size
			}
		}
	}

	offset := r.randInt64(r.limit)
	log.Debug().Int64("offset", offset).Str("device", r.device).Msg("Reading one byte")
	if _, err := r.dev.ReadAt(r.buf[:], offset); err != nil && !errors.Is(err, io.EOF) {
		log.Debug().Err(err).Str("device", r.device).Msg("Random read failed")
	}
}

// Close releases the device handle, if any.
func (r *RandomRead) Close() error {
	if r.dev == nil {
		return nil
	}
	err := r.dev.Close()
	r.dev = nil
	return err
}
