package keepalive

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/nuclearlighters/headsaver/internal/config"
)

// AttributeWrite resets the idle timer by rewriting the drive's APM level
// through an external command. It spawns a process almost every check period.
type AttributeWrite struct {
	command string
	live    bool
	runner  CommandRunner
}

// NewAttributeWrite creates an AttributeWrite strategy running command.
func NewAttributeWrite(command string, live bool, runner CommandRunner) *AttributeWrite {
	return &AttributeWrite{command: command, live: live, runner: runner}
}

// Method returns config.MethodAttributeWrite.
func (a *AttributeWrite) Method() config.Method {
	return config.MethodAttributeWrite
}

// Command returns the command line run on each reset.
func (a *AttributeWrite) Command() string {
	return a.command
}

// Reset runs the command in live mode and only logs it otherwise. The exit
// status is not acted upon.
func (a *AttributeWrite) Reset(ctx context.Context) {
	if !a.live {
		log.Debug().Str("command", a.command).Msg("Calling reset command (not really!)")
		return
	}

	log.Debug().Str("command", a.command).Msg("Calling reset command")
	if err := a.runner.Run(ctx, a.command); err != nil {
		log.Debug().Err(err).Str("command", a.command).Msg("Reset command returned an error")
	}
}
