package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront-orders/internal/domain/settings"
)

// autoCompleteBatch bounds one sweep query; the sweep reruns daily, so a
// backlog larger than this drains over consecutive runs.
const autoCompleteBatch = 500

var hundred = decimal.NewFromInt(100)

// SettlementPoints computes the loyalty points earned when an order
// completes: floor((subtotal - discount) * rate / 100). A zero rate or a
// discount covering the whole subtotal earns nothing.
func SettlementPoints(subtotal, discountAmount, rate decimal.Decimal) int64 {
	base := subtotal.Sub(discountAmount)
	if !base.IsPositive() || !rate.IsPositive() {
		return 0
	}
	return base.Mul(rate).Div(hundred).IntPart()
}

// RunAutoCompleteSweepOnce finds orders sitting in Shipped for at least
// thresholdDays and completes them as the system sentinel, settling loyalty
// points per order. Orders settle independently: one failure is logged and
// counted but does not stop the rest. The returned error is non-nil when at
// least one order failed, so the scheduler can apply its backoff and retry;
// already-completed orders leave the eligible set, making retries no-ops
// for them.
func (s *Service) RunAutoCompleteSweepOnce(ctx context.Context, thresholdDays int) (int, error) {
	lg := zctx.From(ctx)
	cutoff := s.now().AddDate(0, 0, -thresholdDays)

	ids, err := s.orders.ListAutoCompletable(ctx, cutoff, autoCompleteBatch)
	if err != nil {
		return 0, errors.Wrap(err, "list auto-completable orders")
	}
	if len(ids) == 0 {
		return 0, nil
	}

	rate := settings.PointsRate(ctx, s.settings)

	completed := 0
	var failed int
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return completed, err
		}

		o, err := s.orders.Get(ctx, id)
		if err != nil {
			failed++
			lg.Error("auto-complete: load order", zap.String("order_id", id.String()), zap.Error(err))
			continue
		}

		_, err = s.orders.Transition(ctx, TransitionRequest{
			OrderID:      id,
			Target:       StatusCompleted,
			Role:         RoleSystem,
			Actor:        nil,
			Note:         "auto-completed after shipping threshold",
			PointsEarned: SettlementPoints(o.Subtotal, o.DiscountAmount, rate),
		})
		if err != nil {
			// A concurrent manager transition can legally win the race;
			// the order is simply no longer eligible.
			if errors.Is(err, ErrIllegalTransition) {
				continue
			}
			failed++
			lg.Error("auto-complete: transition", zap.String("order_id", id.String()), zap.Error(err))
			continue
		}
		completed++
	}

	if failed > 0 {
		return completed, errors.Errorf("auto-complete sweep: %d of %d orders failed", failed, len(ids))
	}
	return completed, nil
}
