// Package order implements the order lifecycle: creation with stock
// reservation and discount/points application, the status state machine
// with its audit history, and auto-completion settlement.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-orders/internal/fault"
)

// Sentinel errors shared across order operations.
var (
	ErrEmptyItems        = fault.New(fault.Invalid, "items required")
	ErrNotFound          = fault.New(fault.NotFound, "order not found")
	ErrOrderAmountTooLow = fault.New(fault.Invalid, "order amount below store minimum")
	// ErrTxConflict is returned when a row lock could not be acquired
	// promptly; callers may retry with backoff.
	ErrTxConflict = fault.New(fault.Conflict, "concurrent modification, retry")
	// ErrOutOfStock classifies stock exhaustion as contention: a retry may
	// observe restocked inventory.
	ErrOutOfStock      = fault.New(fault.Conflict, "out of stock")
	ErrInvalidQuantity = fault.New(fault.Invalid, "quantity must be greater than 0")
)

// OutOfStockError indicates a variant cannot cover the requested quantity.
type OutOfStockError struct {
	VariantID uuid.UUID
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("variant %s is out of stock", e.VariantID)
}

func (e *OutOfStockError) Unwrap() error { return ErrOutOfStock }

// InvalidQuantityError indicates a line item with a non-positive quantity.
type InvalidQuantityError struct {
	VariantID uuid.UUID
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for variant %s", e.VariantID)
}

func (e *InvalidQuantityError) Unwrap() error { return ErrInvalidQuantity }

// Order is the aggregate root. It owns its items and its status history;
// it references customer, address, payment method and discount code by id.
//
// Invariant: Total = Subtotal - DiscountAmount + ShippingFee - PointsSpent,
// with one point worth one currency unit, and Total never negative.
type Order struct {
	ID              uuid.UUID
	Code            string
	CustomerID      uuid.UUID
	AddressID       uuid.UUID
	PaymentMethodID string
	DiscountCodeID  *uuid.UUID
	Subtotal        decimal.Decimal
	DiscountAmount  decimal.Decimal
	ShippingFee     decimal.Decimal
	PointsSpent     int64
	PointsEarned    int64
	Total           decimal.Decimal
	Note            string
	Status          Status
	Items           []Item
	CreatedAt       time.Time
	CreatedBy       uuid.UUID
	ModifiedAt      time.Time
	// ModifiedBy is nil for system-driven changes (the sweep).
	ModifiedBy *uuid.UUID
}

// Item is an order line. Price and names are snapshots captured at creation
// time and never change with later catalog edits.
type Item struct {
	ID          uuid.UUID
	VariantID   uuid.UUID
	ProductName string
	VariantName string
	UnitPrice   decimal.Decimal
	Quantity    int
}

// HistoryEntry is one row of the append-only status audit trail.
// A nil Actor marks a system transition.
type HistoryEntry struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	From      Status
	To        Status
	Actor     *uuid.UUID
	Note      string
	CreatedAt time.Time
}

// ListFilter narrows and pages the order listing.
type ListFilter struct {
	EmailOrPhone string
	OrderCode    string
	Status       Status
	From         *time.Time
	To           *time.Time
	SortAsc      bool
	Page         int
	PerPage      int
}

// Page is one page of the order listing with the total match count.
type Page struct {
	Orders []Order
	Total  int
}

// TransitionRequest describes one status transition to execute atomically:
// the status update, its history row, and the compensation or settlement
// side effects implied by the target status.
type TransitionRequest struct {
	OrderID uuid.UUID
	Target  Status
	Role    Role
	// Actor is the human driving the transition; nil means the system
	// sentinel (audit rows get a NULL actor).
	Actor *uuid.UUID
	Note  string
	// PointsEarned is credited to the customer when Target is
	// StatusCompleted. Computed by the service via SettlementPoints.
	PointsEarned int64
}

// Repository persists orders. Create and Transition are atomic units: every
// counter they touch (stock, discount usage, point balances) is read under a
// row lock and committed or rolled back together with the order rows.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id uuid.UUID) (*Order, error)
	List(ctx context.Context, f ListFilter) (*Page, error)
	History(ctx context.Context, orderID uuid.UUID) ([]HistoryEntry, error)
	// CountPriorOrders counts a customer's non-cancelled, non-rejected
	// orders, for first-order-only discounts.
	CountPriorOrders(ctx context.Context, customerID uuid.UUID) (int, error)
	Transition(ctx context.Context, req TransitionRequest) (*Order, error)
	// ListAutoCompletable returns ids of shipped orders untouched since
	// the cutoff, oldest first.
	ListAutoCompletable(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
}
