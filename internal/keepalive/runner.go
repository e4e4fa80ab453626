package keepalive

import (
	"context"
	"os/exec"
)

// CommandRunner runs an external command and ignores its output.
type CommandRunner interface {
	Run(ctx context.Context, command string) error
}

// ShellRunner runs commands through /bin/sh -c.
type ShellRunner struct {
	Shell string
}

// NewShellRunner returns a runner using /bin/sh.
func NewShellRunner() *ShellRunner {
	return &ShellRunner{Shell: "/bin/sh"}
}

// Run executes command and waits for it to exit.
func (r *ShellRunner) Run(ctx context.Context, command string) error {
	return exec.CommandContext(ctx, r.Shell, "-c", command).Run()
}
