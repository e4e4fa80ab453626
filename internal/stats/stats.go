// Package stats samples the cumulative sector counters of a block device.
package stats

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// ErrUnavailable is returned when the counters cannot be read or parsed.
var ErrUnavailable = errors.New("stats unavailable")

// Field positions (0-based) of the sysfs block stat line.
const (
	readSectorsField  = 2
	writeSectorsField = 6
)

// Counters is a snapshot of the sectors read and written by a device.
type Counters struct {
	ReadSectors  uint64
	WriteSectors uint64
}

// Reader samples activity counters.
type Reader interface {
	Read(ctx context.Context) (Counters, error)
}

// ParseCounters extracts the read and write sector counts from one line of a
// sysfs block stat file. Other fields are ignored.
func ParseCounters(line string) (Counters, error) {
	fields := strings.Fields(line)
	if len(fields) <= writeSectorsField {
		return Counters{}, fmt.Errorf("%w: expected at least %d fields, got %d", ErrUnavailable, writeSectorsField+1, len(fields))
	}

	read, err := strconv.ParseUint(fields[readSectorsField], 10, 64)
	if err != nil {
		return Counters{}, fmt.Errorf("%w: sectors read: %v", ErrUnavailable, err)
	}
	written, err := strconv.ParseUint(fields[writeSectorsField], 10, 64)
	if err != nil {
		return Counters{}, fmt.Errorf("%w: sectors written: %v", ErrUnavailable, err)
	}

	return Counters{ReadSectors: read, WriteSectors: written}, nil
}

// FileReader reads counters from a sysfs stat file such as
// /sys/block/sda/stat.
type FileReader struct {
	path string
}

// NewFileReader creates a FileReader for path.
func NewFileReader(path string) *FileReader {
	return &FileReader{path: path}
}

// Path returns the stats file path.
func (r *FileReader) Path() string {
	return r.path
}

// Read opens the file, parses its first line and closes it again. The file
// must be reopened on every sample: sysfs does not refresh the content of an
// already open handle.
func (r *FileReader) Read(_ context.Context) (Counters, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return Counters{}, fmt.Errorf("%w: could not get stats from file %s: %v", ErrUnavailable, r.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return Counters{}, fmt.Errorf("%w: could not get stats from file %s: %v", ErrUnavailable, r.path, err)
		}
		return Counters{}, fmt.Errorf("%w: stats file %s is empty", ErrUnavailable, r.path)
	}

	c, err := ParseCounters(scanner.Text())
	if err != nil {
		return Counters{}, fmt.Errorf("could not get stats from file %s: %w", r.path, err)
	}

	log.Debug().Uint64("read", c.ReadSectors).Uint64("wrote", c.WriteSectors).Msg("Sampled counters")
	return c, nil
}
