package sweep

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

type fakeRunner struct {
	calls     int
	failUntil int
	completed int
}

func (f *fakeRunner) RunAutoCompleteSweepOnce(_ context.Context, _ int) (int, error) {
	f.calls++
	if f.calls <= f.failUntil {
		return 0, errors.New("boom")
	}
	return f.completed, nil
}

func newScheduler(t *testing.T, runner Runner, cfg Config) *Scheduler {
	t.Helper()
	s, err := New(runner, cfg, noop.NewMeterProvider(), tracenoop.NewTracerProvider())
	require.NoError(t, err)
	return s
}

func TestNextTrigger(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)

	tests := []struct {
		name string
		now  time.Time
		hour int
		want time.Time
	}{
		{
			name: "before trigger same day",
			now:  time.Date(2026, 3, 10, 22, 15, 0, 0, loc),
			hour: 23,
			want: time.Date(2026, 3, 10, 23, 0, 0, 0, loc),
		},
		{
			name: "after trigger rolls to next day",
			now:  time.Date(2026, 3, 10, 23, 30, 0, 0, loc),
			hour: 23,
			want: time.Date(2026, 3, 11, 23, 0, 0, 0, loc),
		},
		{
			name: "exactly at trigger rolls forward",
			now:  time.Date(2026, 3, 10, 0, 0, 0, 0, loc),
			hour: 0,
			want: time.Date(2026, 3, 11, 0, 0, 0, 0, loc),
		},
		{
			name: "midnight trigger before midnight",
			now:  time.Date(2026, 3, 10, 5, 0, 0, 0, loc),
			hour: 0,
			want: time.Date(2026, 3, 11, 0, 0, 0, 0, loc),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nextTrigger(tt.now, tt.hour))
		})
	}
}

func TestRunWithRetry_RetriesUntilSuccess(t *testing.T) {
	runner := &fakeRunner{failUntil: 2, completed: 7}
	s := newScheduler(t, runner, Config{Backoff: time.Millisecond})

	err := s.runWithRetry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, runner.calls)
}

func TestRunWithRetry_StopsOnCancel(t *testing.T) {
	runner := &fakeRunner{failUntil: 1 << 30}
	s := newScheduler(t, runner, Config{Backoff: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.runWithRetry(ctx)
	}()

	// Let the first attempt fail and park in the backoff wait.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("runWithRetry did not stop on cancellation")
	}
	assert.Equal(t, 1, runner.calls)
}

func TestRun_StopsCleanlyOnCancel(t *testing.T) {
	runner := &fakeRunner{}
	s := newScheduler(t, runner, Config{TriggerHour: 0, Backoff: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err, "cancellation is a normal stop")
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop on cancellation")
	}
}

func TestRun_FiresAtTrigger(t *testing.T) {
	runner := &fakeRunner{completed: 3}
	s := newScheduler(t, runner, Config{TriggerHour: 2, Backoff: time.Millisecond})

	// Pin the clock just before the trigger so the wait is tiny; after the
	// first pass the clock reads past the trigger and the loop parks a full
	// day out, where cancellation picks it up.
	base := time.Date(2026, 3, 10, 1, 59, 59, int(999 * time.Millisecond), time.UTC)
	s.now = func() time.Time { return base }

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	assert.Eventually(t, func() bool { return runner.calls >= 1 },
		3*time.Second, 10*time.Millisecond, "sweep should fire at the trigger")
	cancel()
	require.NoError(t, <-done)
}
