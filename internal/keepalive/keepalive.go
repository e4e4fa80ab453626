// Package keepalive implements the actions that reset a drive firmware's idle
// timer without letting the heads park.
//
// Two methods are available:
//   - RandomRead: read a single byte at a random offset of the raw device
//   - AttributeWrite: rewrite the APM level with hdparm -B
package keepalive

import (
	"context"

	"github.com/nuclearlighters/headsaver/internal/config"
)

// Resetter performs one keep-alive access.
type Resetter interface {
	// Reset touches the drive so that its firmware sees activity. Failures
	// are logged, never returned: the monitor keeps polling regardless.
	Reset(ctx context.Context)

	// Method identifies the strategy.
	Method() config.Method
}

// New returns the Resetter selected by the settings. A nil runner defaults to
// a ShellRunner.
func New(s *config.Settings, runner CommandRunner) (Resetter, error) {
	switch s.Method {
	case config.MethodRandomRead:
		return NewRandomRead(s.Device, s.Live), nil
	case config.MethodAttributeWrite:
		if runner == nil {
			runner = NewShellRunner()
		}
		return NewAttributeWrite(s.ResetCommand(), s.Live, runner), nil
	default:
		return nil, config.ErrInvalidMethod
	}
}
