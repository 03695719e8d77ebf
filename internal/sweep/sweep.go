// Package sweep schedules the daily auto-completion pass over shipped
// orders. The pass fires once per day at a configured local hour; a failed
// pass is retried on a fixed backoff until it succeeds.
package sweep

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Runner executes one sweep pass and reports how many orders it completed.
type Runner interface {
	RunAutoCompleteSweepOnce(ctx context.Context, thresholdDays int) (int, error)
}

// Config controls the sweep schedule.
type Config struct {
	// TriggerHour is the local hour of day (0-23) the sweep fires at.
	TriggerHour int
	// ThresholdDays is how long an order must sit in Shipped before the
	// sweep completes it.
	ThresholdDays int
	// Backoff is the wait between retries after a failed pass.
	Backoff time.Duration
}

// Scheduler drives the daily sweep loop.
type Scheduler struct {
	runner Runner
	cfg    Config
	now    func() time.Time

	tracer    trace.Tracer
	runs      metric.Int64Counter
	completed metric.Int64Counter
	failures  metric.Int64Counter
}

// New creates a Scheduler with telemetry instruments registered on the given
// providers.
func New(runner Runner, cfg Config, mp metric.MeterProvider, tp trace.TracerProvider) (*Scheduler, error) {
	meter := mp.Meter("storefront.sweep")

	runs, err := meter.Int64Counter("sweep.runs",
		metric.WithDescription("Sweep passes started"))
	if err != nil {
		return nil, errors.Wrap(err, "create runs counter")
	}
	completed, err := meter.Int64Counter("sweep.orders_completed",
		metric.WithDescription("Orders auto-completed by the sweep"))
	if err != nil {
		return nil, errors.Wrap(err, "create completed counter")
	}
	failures, err := meter.Int64Counter("sweep.failures",
		metric.WithDescription("Failed sweep passes"))
	if err != nil {
		return nil, errors.Wrap(err, "create failures counter")
	}

	return &Scheduler{
		runner:    runner,
		cfg:       cfg,
		now:       time.Now,
		tracer:    tp.Tracer("storefront.sweep"),
		runs:      runs,
		completed: completed,
		failures:  failures,
	}, nil
}

// Run blocks until ctx is cancelled, firing one sweep pass per day at the
// configured hour. Cancellation is a normal stop and returns nil.
func (s *Scheduler) Run(ctx context.Context) error {
	lg := zctx.From(ctx)
	for {
		next := nextTrigger(s.now(), s.cfg.TriggerHour)
		lg.Info("Sweep scheduled", zap.Time("next_run", next))

		if err := s.sleepUntil(ctx, next); err != nil {
			return nil //nolint:nilerr // cancelled, normal stop
		}
		if err := s.runWithRetry(ctx); err != nil {
			return nil //nolint:nilerr // cancelled, normal stop
		}
	}
}

// nextTrigger returns the next occurrence of the trigger hour strictly after
// now, in now's location.
func nextTrigger(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s *Scheduler) sleepUntil(ctx context.Context, t time.Time) error {
	d := t.Sub(s.now())
	if d < 0 {
		d = 0
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// runWithRetry runs one pass and keeps retrying on the backoff until the
// pass succeeds or ctx is cancelled. A pass that partially failed reruns in
// full; orders completed by earlier attempts are no longer eligible.
func (s *Scheduler) runWithRetry(ctx context.Context) error {
	lg := zctx.From(ctx)
	for attempt := 1; ; attempt++ {
		completed, err := s.runOnce(ctx, attempt)
		if err == nil {
			lg.Info("Sweep finished",
				zap.Int("orders_completed", completed),
				zap.Int("attempt", attempt))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.failures.Add(ctx, 1)
		lg.Warn("Sweep failed, will retry",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", s.cfg.Backoff),
			zap.Error(err))

		timer := time.NewTimer(s.cfg.Backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, attempt int) (int, error) {
	ctx, span := s.tracer.Start(ctx, "sweep.run",
		trace.WithAttributes(attribute.Int("attempt", attempt)))
	defer span.End()

	s.runs.Add(ctx, 1)
	completed, err := s.runner.RunAutoCompleteSweepOnce(ctx, s.cfg.ThresholdDays)
	s.completed.Add(ctx, int64(completed))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return completed, err
	}
	span.SetStatus(codes.Ok, "")
	return completed, nil
}
