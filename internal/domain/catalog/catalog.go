// Package catalog exposes the read surface of the product catalog used when
// pricing an order. Stock counters live on variants and are mutated only
// inside order transactions, never through this package.
package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-orders/internal/fault"
)

// ErrVariantNotFound is returned when a requested variant does not exist.
var ErrVariantNotFound = fault.New(fault.NotFound, "variant not found")

// Variant is a purchasable product variant with its live price and counters.
type Variant struct {
	ID            uuid.UUID
	ProductID     uuid.UUID
	ProductName   string
	Name          string
	Price         decimal.Decimal
	StockQuantity int
	SoldQuantity  int
}

// Ledger provides catalog reads for order pricing.
type Ledger interface {
	GetVariants(ctx context.Context, ids []uuid.UUID) ([]Variant, error)
}
