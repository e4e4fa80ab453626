package stats

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/disk"
)

// gopsutil reports bytes computed from 512-byte kernel sectors.
const kernelSectorSize = 512

// ioCountersFunc is overridden in tests.
var ioCountersFunc = disk.IOCountersWithContext

// DiskstatsReader reads counters for one device from /proc/diskstats.
type DiskstatsReader struct {
	name string
}

// NewDiskstatsReader creates a reader for the kernel device name (e.g. sda).
func NewDiskstatsReader(name string) *DiskstatsReader {
	return &DiskstatsReader{name: name}
}

// Read samples the counters of the device.
func (r *DiskstatsReader) Read(ctx context.Context) (Counters, error) {
	all, err := ioCountersFunc(ctx, r.name)
	if err != nil {
		return Counters{}, fmt.Errorf("%w: diskstats for %s: %v", ErrUnavailable, r.name, err)
	}
	io, ok := all[r.name]
	if !ok {
		return Counters{}, fmt.Errorf("%w: device %s not found in diskstats", ErrUnavailable, r.name)
	}

	c := Counters{
		ReadSectors:  io.ReadBytes / kernelSectorSize,
		WriteSectors: io.WriteBytes / kernelSectorSize,
	}
	log.Debug().Uint64("read", c.ReadSectors).Uint64("wrote", c.WriteSectors).Msg("Sampled counters")
	return c, nil
}
