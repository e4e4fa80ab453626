package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nuclearlighters/headsaver/internal/config"
	"github.com/nuclearlighters/headsaver/internal/stats"
)

// fakeReader returns its current counters, or an error while failing is set.
type fakeReader struct {
	current stats.Counters
	failing bool
	reads   int
}

func (r *fakeReader) Read(_ context.Context) (stats.Counters, error) {
	r.reads++
	if r.failing {
		return stats.Counters{}, stats.ErrUnavailable
	}
	return r.current, nil
}

// fakeResetter counts resets. When perturb is set, every reset bumps the
// reader's read counter like a real random read would.
type fakeResetter struct {
	method  config.Method
	resets  int
	perturb *fakeReader
}

func (f *fakeResetter) Reset(_ context.Context) {
	f.resets++
	if f.perturb != nil {
		f.perturb.current.ReadSectors++
	}
}

func (f *fakeResetter) Method() config.Method { return f.method }

func newTestMonitor(t *testing.T, timeout time.Duration, method config.Method) (*Monitor, *fakeReader, *fakeResetter) {
	t.Helper()
	reader := &fakeReader{current: stats.Counters{ReadSectors: 1000, WriteSectors: 500}}
	resetter := &fakeResetter{method: method}
	m := New(Config{Period: 4 * time.Second, Timeout: timeout}, reader, resetter)
	if err := m.Prime(context.Background()); err != nil {
		t.Fatalf("Prime: %v", err)
	}
	return m, reader, resetter
}

func TestIdleThenParkingAllowed(t *testing.T) {
	m, _, resetter := newTestMonitor(t, 12*time.Second, config.MethodAttributeWrite)
	ctx := context.Background()

	want := []Outcome{OutcomeReset, OutcomeReset, OutcomeParkingAllowed, OutcomeIdle, OutcomeIdle}
	for i, w := range want {
		if got := m.Poll(ctx); got != w {
			t.Fatalf("poll %d: outcome = %s, want %s", i+1, got, w)
		}
		if i == 1 && resetter.resets != 2 {
			t.Fatalf("after poll 2: resets = %d, want 2", resetter.resets)
		}
	}

	if resetter.resets != 2 {
		t.Errorf("resets = %d, want 2", resetter.resets)
	}
	st := m.State()
	if !st.ParkingAllowed {
		t.Error("ParkingAllowed should be set")
	}
	if st.IdleFor != 20*time.Second {
		t.Errorf("IdleFor = %v, want 20s", st.IdleFor)
	}
}

func TestResetsBelowTimeout(t *testing.T) {
	for _, timeout := range []int{12, 16, 20, 40, 120} {
		t.Run(time.Duration(timeout*int(time.Second)).String(), func(t *testing.T) {
			m, _, resetter := newTestMonitor(t, time.Duration(timeout)*time.Second, config.MethodAttributeWrite)
			n := timeout/4 - 1

			for i := 0; i < n; i++ {
				m.Poll(context.Background())
			}

			if resetter.resets != n {
				t.Errorf("resets = %d, want %d", resetter.resets, n)
			}
			if m.State().ParkingAllowed {
				t.Error("ParkingAllowed set before timeout")
			}
		})
	}
}

func TestActivityClearsIdleState(t *testing.T) {
	m, reader, resetter := newTestMonitor(t, 12*time.Second, config.MethodAttributeWrite)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		m.Poll(ctx)
	}
	if !m.State().ParkingAllowed {
		t.Fatal("expected ParkingAllowed after timeout")
	}

	reader.current.WriteSectors += 8
	if got := m.Poll(ctx); got != OutcomeActivity {
		t.Fatalf("outcome = %s, want activity", got)
	}

	st := m.State()
	if st.IdleFor != 0 {
		t.Errorf("IdleFor = %v, want 0", st.IdleFor)
	}
	if st.ParkingAllowed {
		t.Error("ParkingAllowed should be cleared by activity")
	}
	if st.Baseline != reader.current {
		t.Errorf("Baseline = %+v, want %+v", st.Baseline, reader.current)
	}

	// Resets resume after activity.
	before := resetter.resets
	m.Poll(ctx)
	if resetter.resets != before+1 {
		t.Errorf("resets = %d, want %d", resetter.resets, before+1)
	}
}

func TestActivityAfterOneIdlePoll(t *testing.T) {
	m, reader, resetter := newTestMonitor(t, 12*time.Second, config.MethodAttributeWrite)
	ctx := context.Background()

	if got := m.Poll(ctx); got != OutcomeReset {
		t.Fatalf("poll 1: outcome = %s, want reset", got)
	}
	reader.current.ReadSectors += 16
	if got := m.Poll(ctx); got != OutcomeActivity {
		t.Fatalf("poll 2: outcome = %s, want activity", got)
	}

	if m.State().IdleFor != 0 {
		t.Errorf("IdleFor = %v, want 0", m.State().IdleFor)
	}
	if resetter.resets != 1 {
		t.Errorf("resets = %d, want 1", resetter.resets)
	}
}

func TestFailedReadSkipsCycle(t *testing.T) {
	m, reader, resetter := newTestMonitor(t, 12*time.Second, config.MethodAttributeWrite)
	ctx := context.Background()

	m.Poll(ctx)
	before := m.State()

	reader.failing = true
	for i := 0; i < 5; i++ {
		if got := m.Poll(ctx); got != OutcomeSkipped {
			t.Fatalf("outcome = %s, want skipped", got)
		}
	}

	if m.State() != before {
		t.Errorf("state changed on skipped cycles: %+v -> %+v", before, m.State())
	}
	if resetter.resets != 1 {
		t.Errorf("resets = %d, want 1", resetter.resets)
	}

	reader.failing = false
	if got := m.Poll(ctx); got != OutcomeReset {
		t.Errorf("outcome after recovery = %s, want reset", got)
	}
	if m.State().IdleFor != 8*time.Second {
		t.Errorf("IdleFor = %v, want 8s", m.State().IdleFor)
	}
}

func TestPrimeFailure(t *testing.T) {
	reader := &fakeReader{failing: true}
	m := New(Config{Timeout: 12 * time.Second}, reader, &fakeResetter{method: config.MethodRandomRead})

	err := m.Prime(context.Background())
	if !errors.Is(err, ErrNoBaseline) {
		t.Fatalf("Prime error = %v, want ErrNoBaseline", err)
	}
	if !errors.Is(err, stats.ErrUnavailable) {
		t.Errorf("Prime error = %v, should wrap stats.ErrUnavailable", err)
	}
}

func TestRandomReadResamplesBaseline(t *testing.T) {
	m, reader, resetter := newTestMonitor(t, 16*time.Second, config.MethodRandomRead)
	resetter.perturb = reader
	ctx := context.Background()

	want := []Outcome{OutcomeReset, OutcomeReset, OutcomeReset, OutcomeParkingAllowed}
	for i, w := range want {
		if got := m.Poll(ctx); got != w {
			t.Fatalf("poll %d: outcome = %s, want %s", i+1, got, w)
		}
	}
	if m.State().Baseline != reader.current {
		t.Errorf("Baseline = %+v, want post-reset counters %+v", m.State().Baseline, reader.current)
	}
}

func TestAttributeWriteDoesNotResample(t *testing.T) {
	m, reader, resetter := newTestMonitor(t, 16*time.Second, config.MethodAttributeWrite)
	resetter.perturb = reader
	ctx := context.Background()

	if got := m.Poll(ctx); got != OutcomeReset {
		t.Fatalf("poll 1: outcome = %s, want reset", got)
	}
	readsAfterFirst := reader.reads
	if got := m.Poll(ctx); got != OutcomeActivity {
		t.Fatalf("poll 2: outcome = %s, want activity", got)
	}
	if reader.reads != readsAfterFirst+1 {
		t.Errorf("reads = %d, want one sample per poll", reader.reads)
	}
}

func TestRunPollsUntilCancelled(t *testing.T) {
	reader := &fakeReader{}
	resetter := &fakeResetter{method: config.MethodAttributeWrite}
	m := New(Config{Period: 4 * time.Second, Timeout: 12 * time.Second}, reader, resetter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	waits := 0
	m.wait = func(ctx context.Context, d time.Duration) error {
		if d != 4*time.Second {
			t.Errorf("wait(%v), want 4s", d)
		}
		waits++
		if waits > 5 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	if err := m.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// baseline + 5 polls
	if reader.reads != 6 {
		t.Errorf("reads = %d, want 6", reader.reads)
	}
	if resetter.resets != 2 {
		t.Errorf("resets = %d, want 2", resetter.resets)
	}
	if !m.State().ParkingAllowed {
		t.Error("ParkingAllowed should be set after 5 idle polls")
	}
}

func TestRunWithoutBaseline(t *testing.T) {
	m := New(Config{Timeout: 12 * time.Second}, &fakeReader{failing: true}, &fakeResetter{})
	m.wait = func(context.Context, time.Duration) error {
		t.Fatal("wait called without a baseline")
		return nil
	}

	if err := m.Run(context.Background()); !errors.Is(err, ErrNoBaseline) {
		t.Errorf("Run error = %v, want ErrNoBaseline", err)
	}
}

func TestNewDefaultsPeriod(t *testing.T) {
	m := New(Config{Timeout: 12 * time.Second}, &fakeReader{}, &fakeResetter{})
	if m.cfg.Period != config.CheckPeriod {
		t.Errorf("Period = %v, want %v", m.cfg.Period, config.CheckPeriod)
	}
}

func TestSleepHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("sleep = %v, want context.Canceled", err)
	}
	if err := sleep(context.Background(), time.Millisecond); err != nil {
		t.Errorf("sleep = %v, want nil", err)
	}
}
