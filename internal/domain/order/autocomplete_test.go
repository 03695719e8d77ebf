package order

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-orders/internal/domain/settings"
)

func TestSettlementPoints(t *testing.T) {
	tests := []struct {
		name     string
		subtotal int64
		discount int64
		rate     string
		want     int64
	}{
		{"plain", 100000, 10000, "5", 4500},
		{"no discount", 100000, 0, "5", 5000},
		{"floors fraction", 99999, 0, "5", 4999},
		{"zero rate", 100000, 0, "0", 0},
		{"negative rate", 100000, 0, "-5", 0},
		{"discount covers subtotal", 50000, 50000, "5", 0},
		{"fractional rate", 100000, 0, "2.5", 2500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rate := decimal.RequireFromString(tt.rate)
			got := SettlementPoints(
				decimal.NewFromInt(tt.subtotal),
				decimal.NewFromInt(tt.discount),
				rate,
			)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunAutoCompleteSweepOnce_CompletesStaleShippedOrders(t *testing.T) {
	f := newFixture(t, Config{})
	f.store[settings.KeyPointsConversionRate] = "5"

	stale := shippedOrder(f, time.Now().AddDate(0, 0, -11))
	fresh := shippedOrder(f, time.Now().AddDate(0, 0, -3))

	completed, err := f.svc.RunAutoCompleteSweepOnce(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, completed)

	got, err := f.svc.GetOrder(context.Background(), stale.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	// floor((100000 - 10000) * 5 / 100) = 4500
	assert.Equal(t, int64(4500), got.PointsEarned)
	assert.Nil(t, got.ModifiedBy, "sweep transitions carry the system sentinel")

	got, err = f.svc.GetOrder(context.Background(), fresh.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, got.Status)

	// The audit trail records the system actor as NULL.
	history, err := f.svc.OrderHistory(context.Background(), stale.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Nil(t, history[0].Actor)
	assert.Equal(t, StatusShipped, history[0].From)
	assert.Equal(t, StatusCompleted, history[0].To)
}

func TestRunAutoCompleteSweepOnce_UnparsableRateEarnsNothing(t *testing.T) {
	f := newFixture(t, Config{})
	f.store[settings.KeyPointsConversionRate] = "not-a-number"

	stale := shippedOrder(f, time.Now().AddDate(0, 0, -11))

	completed, err := f.svc.RunAutoCompleteSweepOnce(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, completed)

	got, err := f.svc.GetOrder(context.Background(), stale.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Zero(t, got.PointsEarned)
}

func TestRunAutoCompleteSweepOnce_Idempotent(t *testing.T) {
	f := newFixture(t, Config{})
	f.store[settings.KeyPointsConversionRate] = "5"
	shippedOrder(f, time.Now().AddDate(0, 0, -11))

	completed, err := f.svc.RunAutoCompleteSweepOnce(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, completed)

	// Completed orders leave the eligible set; a rerun is a no-op.
	completed, err = f.svc.RunAutoCompleteSweepOnce(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, completed)
}

func TestRunAutoCompleteSweepOnce_FailuresAreIsolated(t *testing.T) {
	f := newFixture(t, Config{})
	f.store[settings.KeyPointsConversionRate] = "5"

	healthy := shippedOrder(f, time.Now().AddDate(0, 0, -11))
	broken := shippedOrder(f, time.Now().AddDate(0, 0, -11))
	f.orders.transitionErr[broken.ID] = ErrTxConflict

	completed, err := f.svc.RunAutoCompleteSweepOnce(context.Background(), 10)
	require.Error(t, err, "a failed order must surface so the scheduler retries")
	assert.Equal(t, 1, completed)

	got, err := f.svc.GetOrder(context.Background(), healthy.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status, "one failure must not block the rest")
}

func TestRunAutoCompleteSweepOnce_LostRaceIsNotAFailure(t *testing.T) {
	f := newFixture(t, Config{})
	f.store[settings.KeyPointsConversionRate] = "5"

	raced := shippedOrder(f, time.Now().AddDate(0, 0, -11))
	f.orders.transitionErr[raced.ID] = ErrIllegalTransition

	completed, err := f.svc.RunAutoCompleteSweepOnce(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, completed)
}

func TestRunAutoCompleteSweepOnce_CancelledContext(t *testing.T) {
	f := newFixture(t, Config{})
	shippedOrder(f, time.Now().AddDate(0, 0, -11))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.RunAutoCompleteSweepOnce(ctx, 10)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunAutoCompleteSweepOnce_NothingEligible(t *testing.T) {
	f := newFixture(t, Config{})

	completed, err := f.svc.RunAutoCompleteSweepOnce(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, completed)
}
