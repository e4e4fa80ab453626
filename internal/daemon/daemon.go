// Package daemon moves the running program into the background.
//
// Go cannot safely fork a running runtime, so the program re-executes itself
// in a new session with a marker variable set. The child sees the marker and
// carries on in the foreground of its own session; the parent exits.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// EnvDetached marks a process started by Detach.
const EnvDetached = "HEADSAVER_DETACHED"

// ErrDetach is returned when the background process cannot be started.
var ErrDetach = errors.New("failed to go into background")

// IsDetached reports whether this process was started by Detach.
func IsDetached() bool {
	return os.Getenv(EnvDetached) == "1"
}

// Detach starts a copy of the running program, with the same arguments, in a
// new session. It returns the child's pid. The caller should exit afterwards.
func Detach() (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDetach, err)
	}

	cmd := command(exe, os.Args[1:], os.Environ())
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDetach, err)
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("%w: %v", ErrDetach, err)
	}
	return pid, nil
}

// command builds the child process. Diagnostics keep going to stderr.
func command(exe string, args, env []string) *exec.Cmd {
	cmd := exec.Command(exe, args...)
	cmd.Env = append(append([]string{}, env...), EnvDetached+"=1")
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	return cmd
}
