package keepalive

import (
	"io"

	"golang.org/x/sys/unix"

	"github.com/nuclearlighters/headsaver/internal/blockdev"
)

// rawDevice is a read-only file descriptor on a block device.
type rawDevice struct {
	fd int
}

func openRawDevice(path string) (Device, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	return &rawDevice{fd: fd}, nil
}

func (d *rawDevice) ReadAt(p []byte, off int64) (int, error) {
	n, err := unix.Pread(d.fd, p, off)
	if err != nil {
		return 0, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (d *rawDevice) Size() (int64, error) {
	return blockdev.Size(d.fd)
}

func (d *rawDevice) Close() error {
	return unix.Close(d.fd)
}
