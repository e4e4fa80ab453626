// Package config provides headsaver configuration from environment variables
// and command-line flags.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/nuclearlighters/headsaver/internal/blockdev"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "HEADSAVER"

const (
	// CheckPeriod is the fixed interval between two counter samples.
	// Keep it at most half of MinTimeout.
	CheckPeriod = 4 * time.Second

	// MinTimeout is the floor for the timeout, in seconds. The timeout must
	// be strictly greater.
	MinTimeout = 8

	DefaultAPMLevel   = 128
	DefaultDevice     = "/dev/sda"
	DefaultHdparmPath = "/sbin/hdparm"
)

// Method selects how the firmware idle timer is reset.
type Method int

const (
	MethodRandomRead     Method = 1 // read a random byte from the device
	MethodAttributeWrite Method = 2 // rewrite the APM level with hdparm -B
)

// String returns the human-readable method name.
func (m Method) String() string {
	switch m {
	case MethodRandomRead:
		return "random-read"
	case MethodAttributeWrite:
		return "hdparm-apm"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// Stats source kinds.
const (
	SourceSysfs     = "sysfs"
	SourceDiskstats = "diskstats"
)

var (
	// ErrConfiguration is wrapped by every validation failure.
	ErrConfiguration = errors.New("invalid configuration")

	ErrInvalidTimeout  = fmt.Errorf("%w: timeout should be above %d and multiple of %d", ErrConfiguration, MinTimeout, int(CheckPeriod/time.Second))
	ErrInvalidAPMLevel = fmt.Errorf("%w: apm level should be >=1 and <=255", ErrConfiguration)
	ErrInvalidMethod   = fmt.Errorf("%w: invalid method number", ErrConfiguration)
	ErrInvalidSource   = fmt.Errorf("%w: stats source must be %q or %q", ErrConfiguration, SourceSysfs, SourceDiskstats)
)

// Settings holds all headsaver configuration.
type Settings struct {
	// Target disk
	Device      string `envconfig:"DEVICE" default:"/dev/sda"`
	StatsFile   string `envconfig:"STATS_FILE" default:""` // empty: derived from Device
	StatsSource string `envconfig:"STATS_SOURCE" default:"sysfs"`

	// Inactivity period, in seconds, after which the heads may park
	Timeout int `envconfig:"TIMEOUT" default:"0"`

	// Reset method and its parameters
	Method     Method `envconfig:"METHOD" default:"1"`
	APMLevel   int    `envconfig:"APM_LEVEL" default:"128"`
	HdparmPath string `envconfig:"HDPARM_PATH" default:"/sbin/hdparm"`

	// Runtime behavior
	Live       bool `envconfig:"LIVE" default:"false"`
	Background bool `envconfig:"BACKGROUND" default:"false"`
	Verbose    bool `envconfig:"VERBOSE" default:"false"`
}

// Load creates a new Settings instance from environment variables.
func Load() (*Settings, error) {
	s := &Settings{}
	if err := envconfig.Process(EnvPrefix, s); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return s, nil
}

// TimeoutDuration returns the timeout as a time.Duration.
func (s *Settings) TimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// ValidateTimeout reports whether seconds is an acceptable timeout: strictly
// above MinTimeout and a multiple of the check period, so that the idle
// accumulator lands exactly on it.
func ValidateTimeout(seconds int) error {
	period := int(CheckPeriod / time.Second)
	if seconds <= MinTimeout || seconds%period != 0 {
		return ErrInvalidTimeout
	}
	return nil
}

// Validate checks the values that do not depend on the filesystem and
// applies derived defaults. Dry-run always forces verbose logging.
func (s *Settings) Validate() error {
	if !s.Live {
		s.Verbose = true
	}

	if err := ValidateTimeout(s.Timeout); err != nil {
		return err
	}

	if s.APMLevel == 0 {
		s.APMLevel = DefaultAPMLevel
	}
	if s.APMLevel < 1 || s.APMLevel > 255 {
		return ErrInvalidAPMLevel
	}

	if s.Method != MethodRandomRead && s.Method != MethodAttributeWrite {
		return ErrInvalidMethod
	}

	switch s.StatsSource {
	case "":
		s.StatsSource = SourceSysfs
	case SourceSysfs, SourceDiskstats:
	default:
		return ErrInvalidSource
	}

	if s.Device == "" {
		s.Device = DefaultDevice
	}
	if s.HdparmPath == "" {
		s.HdparmPath = DefaultHdparmPath
	}
	if s.StatsFile == "" && s.StatsSource == SourceSysfs {
		s.StatsFile = blockdev.StatsPath(s.Device)
	}

	return nil
}

// CheckPaths verifies that the device is a block device and, for the sysfs
// source, that the stats file is a regular file.
func (s *Settings) CheckPaths() error {
	if err := blockdev.CheckBlockDevice(s.Device); err != nil {
		return fmt.Errorf("%w: harddisk device (%s) is not a block device", ErrConfiguration, s.Device)
	}
	if s.StatsSource != SourceSysfs {
		return nil
	}
	if err := blockdev.CheckRegularFile(s.StatsFile); err != nil {
		return fmt.Errorf("%w: harddisk stats file (%s) is not a regular file", ErrConfiguration, s.StatsFile)
	}
	return nil
}

// ResetCommand returns the shell command used by the hdparm method.
func (s *Settings) ResetCommand() string {
	return fmt.Sprintf("%s -B %d '%s'", s.HdparmPath, s.APMLevel, s.Device)
}
