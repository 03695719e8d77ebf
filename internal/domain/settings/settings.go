// Package settings reads string-typed key/value configuration rows.
// Consumers parse the values; the order core only consumes the points
// conversion rate.
package settings

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-orders/internal/fault"
)

// KeyPointsConversionRate is the percentage of the discounted subtotal
// credited as loyalty points when an order completes.
const KeyPointsConversionRate = "PointsConversionRate"

// ErrNotFound is returned when a setting key does not exist.
var ErrNotFound = fault.New(fault.NotFound, "setting not found")

// Store provides setting lookups by key.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
}

// PointsRate returns the points conversion rate as a decimal percentage.
// A missing key, an unparsable value, or a negative value all yield a zero
// rate: settlement then simply earns no points, it is not an error.
func PointsRate(ctx context.Context, store Store) decimal.Decimal {
	raw, err := store.Get(ctx, KeyPointsConversionRate)
	if err != nil {
		return decimal.Zero
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil || rate.IsNegative() {
		return decimal.Zero
	}
	return rate
}
