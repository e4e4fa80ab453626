//go:build !linux

package blockdev

import "errors"

// Size is only implemented on Linux.
func Size(fd int) (int64, error) {
	return 0, errors.New("device size detection not implemented on this platform")
}
