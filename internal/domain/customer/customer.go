// Package customer exposes customer, address and payment-method lookups used
// by order creation. Point balances are read here; debits and credits happen
// inside order transactions.
package customer

import (
	"context"

	"github.com/google/uuid"

	"github.com/xenking/storefront-orders/internal/fault"
)

// Sentinel errors for lookups and balance checks.
var (
	ErrNotFound              = fault.New(fault.NotFound, "customer not found")
	ErrAddressNotFound       = fault.New(fault.NotFound, "address not found")
	ErrPaymentMethodNotFound = fault.New(fault.NotFound, "payment method not found")
	ErrInsufficientPoints    = fault.New(fault.Invalid, "insufficient point balance")
)

// Customer holds the fields the order workflow needs, including the loyalty
// point balance (never negative).
type Customer struct {
	ID     uuid.UUID
	Email  string
	Phone  string
	Points int64
}

// Address is a shipping address owned by a customer.
type Address struct {
	ID         uuid.UUID
	CustomerID uuid.UUID
	Line1      string
	City       string
	Active     bool
}

// PaymentMethod is a store-configured payment option.
type PaymentMethod struct {
	ID     string
	Name   string
	Active bool
}

// Repository provides customer-side lookups for order creation.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (*Customer, error)
	GetAddress(ctx context.Context, id uuid.UUID) (*Address, error)
	GetPaymentMethod(ctx context.Context, id string) (*PaymentMethod, error)
}
