// Package monitor tracks disk idleness and decides when to keep the drive
// awake and when to let its heads park.
//
// States:
//   - Active: counters changed since the last sample
//   - Idle: counters unchanged; the firmware timer is reset on every poll
//     until the idle time reaches the timeout
//   - ParkingAllowed: the timeout was reached; no more resets until the next
//     activity
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nuclearlighters/headsaver/internal/config"
	"github.com/nuclearlighters/headsaver/internal/keepalive"
	"github.com/nuclearlighters/headsaver/internal/stats"
)

// ErrNoBaseline is returned by Prime and Run when the initial sample fails.
var ErrNoBaseline = errors.New("could not read initial stats")

// Outcome describes what a poll did.
type Outcome int

const (
	OutcomeSkipped        Outcome = iota // sample failed, nothing changed
	OutcomeActivity                      // counters changed
	OutcomeReset                         // idle below timeout, timer reset
	OutcomeParkingAllowed                // timeout just reached
	OutcomeIdle                          // idle past timeout, nothing to do
)

// String returns the human-readable outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeActivity:
		return "activity"
	case OutcomeReset:
		return "reset"
	case OutcomeParkingAllowed:
		return "parking-allowed"
	case OutcomeIdle:
		return "idle"
	default:
		return fmt.Sprintf("unknown(%d)", int(o))
	}
}

// Config holds the timing parameters of the monitor.
type Config struct {
	// Period between two samples. Default: config.CheckPeriod
	Period time.Duration

	// Timeout is the idle time after which parking is allowed. It should be
	// a multiple of Period.
	Timeout time.Duration
}

// State is the idle-tracking state owned by the monitor.
type State struct {
	Baseline       stats.Counters
	IdleFor        time.Duration
	ParkingAllowed bool
}

// Monitor polls a stats reader and drives a keep-alive resetter.
// It is not safe for concurrent use; Run owns it.
type Monitor struct {
	cfg      Config
	reader   stats.Reader
	resetter keepalive.Resetter
	state    State

	// injectable for testing
	wait func(ctx context.Context, d time.Duration) error
}

// New creates a Monitor. The resetter is fixed for the monitor's lifetime.
func New(cfg Config, reader stats.Reader, resetter keepalive.Resetter) *Monitor {
	if cfg.Period <= 0 {
		cfg.Period = config.CheckPeriod
	}
	return &Monitor{
		cfg:      cfg,
		reader:   reader,
		resetter: resetter,
		wait:     sleep,
	}
}

// State returns a copy of the current state.
func (m *Monitor) State() State {
	return m.state
}

// Prime takes the baseline sample. Without it there is nothing to compare
// against, so the caller should treat an error as fatal.
func (m *Monitor) Prime(ctx context.Context) error {
	c, err := m.reader.Read(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNoBaseline, err)
	}
	m.state = State{Baseline: c}
	return nil
}

// Poll runs one cycle: sample, compare with the baseline, and reset the
// firmware timer while the idle time is below the timeout.
func (m *Monitor) Poll(ctx context.Context) Outcome {
	c, err := m.reader.Read(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Skipping cycle")
		return OutcomeSkipped
	}

	if c != m.state.Baseline {
		if m.state.ParkingAllowed {
			log.Debug().Msg("Activity resumed")
		}
		m.state = State{Baseline: c}
		return OutcomeActivity
	}

	m.state.IdleFor += m.cfg.Period
	if !m.state.ParkingAllowed {
		log.Debug().Int("seconds", int(m.state.IdleFor/time.Second)).Msg("No activity")
	}

	if m.state.IdleFor < m.cfg.Timeout {
		m.resetter.Reset(ctx)
		// A random read bumps the read counter; take that into the baseline
		// so the next poll does not see it as activity.
		if m.resetter.Method() == config.MethodRandomRead {
			if c, err := m.reader.Read(ctx); err == nil {
				m.state.Baseline = c
			}
		}
		return OutcomeReset
	}

	if !m.state.ParkingAllowed {
		m.state.ParkingAllowed = true
		log.Info().Dur("idle", m.state.IdleFor).Msg("Inactivity timeout reached, parking allowed")
		return OutcomeParkingAllowed
	}
	return OutcomeIdle
}

// Run primes the baseline and polls every period until ctx is cancelled.
// It returns nil on cancellation.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.Prime(ctx); err != nil {
		return err
	}

	log.Info().
		Dur("period", m.cfg.Period).
		Dur("timeout", m.cfg.Timeout).
		Str("method", m.resetter.Method().String()).
		Msg("Monitoring disk activity")

	for {
		if err := m.wait(ctx, m.cfg.Period); err != nil {
			return nil
		}
		m.Poll(ctx)
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
