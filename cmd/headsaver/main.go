// Package main is the entry point for headsaver, a daemon that keeps the
// heads of a hard disk from parking during short idle periods.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nuclearlighters/headsaver/internal/blockdev"
	"github.com/nuclearlighters/headsaver/internal/config"
	"github.com/nuclearlighters/headsaver/internal/daemon"
	"github.com/nuclearlighters/headsaver/internal/keepalive"
	"github.com/nuclearlighters/headsaver/internal/monitor"
	"github.com/nuclearlighters/headsaver/internal/stats"
)

var version = "0.1.0"

// errUsage means the usage text was already printed.
var errUsage = errors.New("usage")

func main() {
	// Environment provides the defaults, flags override them
	settings, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "headsaver: %v\n", err)
		os.Exit(1)
	}

	root := newRootCmd(settings, run)
	if err := root.Execute(); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "%s: %v\n", root.Name(), err)
		}
		os.Exit(1)
	}
}

// newRootCmd builds the command line. Flags write straight into s; fn runs
// once the settings are valid.
func newRootCmd(s *config.Settings, fn func(ctx context.Context, s *config.Settings) error) *cobra.Command {
	period := int(config.CheckPeriod / time.Second)

	cmd := &cobra.Command{
		Use:   "headsaver -t N [flags]",
		Short: "Keep hard disk heads from parking during short idle periods",
		Long: fmt.Sprintf(`headsaver watches the read/write counters of a hard disk and, while the disk
has been idle for less than the timeout, performs a harmless access every %d
seconds so the drive firmware does not park its heads. Once the timeout is
reached the drive is left alone and may park.

Test without --live first. Once the log looks right, run with --live from your
init system.`, period),
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if s.Timeout == 0 {
				_ = cmd.Usage()
				return errUsage
			}
			if err := s.Validate(); err != nil {
				return err
			}
			if err := s.CheckPaths(); err != nil {
				return err
			}
			return fn(cmd.Context(), s)
		},
	}
	cmd.SetOut(os.Stderr)
	cmd.SetErr(os.Stderr)

	f := cmd.Flags()
	f.IntVarP(&s.Timeout, "timeout", "t", s.Timeout,
		fmt.Sprintf("inactivity period in seconds after which the heads may park (above %d and multiple of %d)", config.MinTimeout, period))
	f.IntVarP(&s.APMLevel, "apm-level", "B", s.APMLevel, "value for the -B parameter of hdparm (1-255)")
	f.StringVarP(&s.Device, "device", "d", s.Device, "hard disk device")
	f.StringVarP(&s.StatsFile, "stats-file", "f", s.StatsFile, "sysfs stats file of the device (default: derived from --device)")
	f.StringVar(&s.StatsSource, "stats-source", s.StatsSource, "where to read counters from: sysfs|diskstats")
	f.IntVarP((*int)(&s.Method), "method", "m", int(s.Method),
		"method used to reset the idle timer: 1 = random read from disk (read only, heads move), 2 = hdparm -B (writes a disk attribute)")
	f.BoolVarP(&s.Live, "live", "l", s.Live, "activate live mode (the timer is not really reset otherwise)")
	f.BoolVarP(&s.Background, "background", "b", s.Background, "go into background mode")
	f.BoolVarP(&s.Verbose, "verbose", "v", s.Verbose, "verbose logging to stderr (always on without --live)")

	return cmd
}

// run wires the stats reader and the reset strategy, then monitors until
// SIGINT or SIGTERM.
func run(ctx context.Context, s *config.Settings) error {
	setupLogging(s.Verbose)

	log.Debug().
		Int("timeout", s.Timeout).
		Int("apm_level", s.APMLevel).
		Bool("live", s.Live).
		Bool("background", s.Background).
		Msg("Configuration")
	log.Debug().
		Str("method", s.Method.String()).
		Str("device", s.Device).
		Str("stats_source", s.StatsSource).
		Str("stats_file", s.StatsFile).
		Msg("Target")

	if rotational, err := blockdev.IsRotational(s.Device); err == nil && !rotational {
		log.Warn().Str("device", s.Device).Msg("Device is not rotational, it has no heads to park")
	}

	if s.Background && !daemon.IsDetached() {
		log.Debug().Msg("Going to background")
		pid, err := daemon.Detach()
		if err != nil {
			return err
		}
		log.Debug().Int("pid", pid).Msg("Parent exiting, child process continues")
		return nil
	}

	if s.Method == config.MethodAttributeWrite {
		log.Debug().Str("command", s.ResetCommand()).Msg("Reset command")
	}

	var reader stats.Reader
	switch s.StatsSource {
	case config.SourceDiskstats:
		reader = stats.NewDiskstatsReader(blockdev.Name(s.Device))
	default:
		reader = stats.NewFileReader(s.StatsFile)
	}

	resetter, err := keepalive.New(s, nil)
	if err != nil {
		return err
	}
	if c, ok := resetter.(io.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				log.Warn().Err(err).Msg("Error closing device")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mon := monitor.New(monitor.Config{
		Period:  config.CheckPeriod,
		Timeout: s.TimeoutDuration(),
	}, reader, resetter)

	if err := mon.Run(ctx); err != nil {
		return err
	}

	log.Info().Msg("Stopped")
	return nil
}

// setupLogging configures zerolog on stderr.
func setupLogging(verbose bool) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime})

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
