// Package blockdev inspects block devices and their sysfs entries.
package blockdev

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// sysfsRoot is overridden in tests.
var sysfsRoot = "/sys"

// CheckBlockDevice returns an error unless path is a block special file.
func CheckBlockDevice(path string) error {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if uint32(st.Mode)&unix.S_IFMT != unix.S_IFBLK {
		return fmt.Errorf("%s is not a block device", path)
	}
	return nil
}

// CheckRegularFile returns an error unless path is a regular file.
// sysfs attributes report as regular files.
func CheckRegularFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", path)
	}
	return nil
}

// Name returns the kernel name of a device node, following symlinks such as
// /dev/disk/by-id/... (e.g. /dev/sda -> sda).
func Name(device string) string {
	if real, err := filepath.EvalSymlinks(device); err == nil {
		device = real
	}
	return filepath.Base(device)
}

// StatsPath returns the sysfs stat file of a device, which exists for whole
// disks and partitions alike.
func StatsPath(device string) string {
	return filepath.Join(sysfsRoot, "class", "block", Name(device), "stat")
}

// IsRotational reports whether the kernel flags the device as rotational.
func IsRotational(device string) (bool, error) {
	path := filepath.Join(sysfsRoot, "class", "block", Name(device), "queue", "rotational")
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	switch strings.TrimSpace(string(data)) {
	case "1":
		return true, nil
	case "0":
		return false, nil
	default:
		return false, fmt.Errorf("unexpected value in %s: %q", path, strings.TrimSpace(string(data)))
	}
}
