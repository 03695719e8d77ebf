// Package discount implements discount campaigns, redeemable codes, and the
// eligibility engine that prices them against an order draft.
package discount

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-orders/internal/fault"
)

// CodeStatus enumerates the lifecycle states of a redeemable code.
type CodeStatus string

const (
	CodeActive   CodeStatus = "active"
	CodeInactive CodeStatus = "inactive"
	// CodeUsed marks a customer-restricted code after its single redemption.
	CodeUsed    CodeStatus = "used"
	CodeDeleted CodeStatus = "deleted"
)

// Sentinel errors returned by the engine, ordered roughly by check order.
var (
	// ErrInvalidCode covers unknown codes, inactive codes, codes restricted
	// to another customer, and product-scope misses.
	ErrInvalidCode = fault.New(fault.Invalid, "invalid discount code")
	// ErrExpired is returned when now falls outside the discount's or the
	// code's validity window.
	ErrExpired = fault.New(fault.Invalid, "discount code expired")
	// ErrFirstOrderOnly is returned when a first-order discount is applied
	// by a customer with prior orders.
	ErrFirstOrderOnly = fault.New(fault.Invalid, "discount is only for the first order")
	// ErrQuantityNotEligible is returned when the ordered quantity falls
	// outside the discount's [min, max] range.
	ErrQuantityNotEligible = fault.New(fault.Invalid, "order quantity not eligible for discount")
	// ErrOrderAmountTooLow is returned when the subtotal is below the
	// discount's minimum order amount.
	ErrOrderAmountTooLow = fault.New(fault.Invalid, "order amount below discount minimum")
	// ErrCapacityReached is returned when the discount's usage limit is
	// exhausted. The authoritative check repeats under a row lock at commit.
	ErrCapacityReached = fault.New(fault.Conflict, "discount usage limit reached")
)

// Discount is a campaign: the pricing rule plus its eligibility constraints.
type Discount struct {
	ID             uuid.UUID
	Name           string
	Description    string
	IsPercentage   bool
	Value          decimal.Decimal
	MinOrderAmount *decimal.Decimal
	MaxDiscount    *decimal.Decimal
	FromDate       *time.Time
	ToDate         *time.Time
	Active         bool
	UsageLimit     *int
	UsedCount      int
	MinQuantity    *int
	MaxQuantity    *int
	FirstOrderOnly bool
	// ProductIDs restricts applicability; empty means store-wide.
	ProductIDs []uuid.UUID
}

// Code is a redeemable string attached to a Discount. A code may narrow the
// parent's validity window and may be restricted to a single customer, in
// which case it is one-shot and flips to CodeUsed on redemption.
type Code struct {
	ID         uuid.UUID
	DiscountID uuid.UUID
	Code       string
	CustomerID *uuid.UUID
	FromDate   *time.Time
	ToDate     *time.Time
	Status     CodeStatus
}

// Repository provides code lookup joined with its parent discount.
// The UsedCount increment itself happens inside the order-creation
// transaction, under the same row lock as the capacity re-check.
type Repository interface {
	FindCode(ctx context.Context, code string) (*Code, *Discount, error)
}
