package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-orders/internal/domain/customer"
)

const (
	getCustomerSQL = `SELECT id, email, phone, points FROM customers WHERE id = $1`

	getAddressSQL = `SELECT id, customer_id, line1, city, active FROM addresses WHERE id = $1`

	getPaymentMethodSQL = `SELECT id, name, active FROM payment_methods WHERE id = $1`
)

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Repository backed by PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// Get returns a customer with their current point balance.
func (r *CustomerRepository) Get(ctx context.Context, id uuid.UUID) (*customer.Customer, error) {
	var c customer.Customer
	err := r.pool.QueryRow(ctx, getCustomerSQL, id).Scan(&c.ID, &c.Email, &c.Phone, &c.Points)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("getting customer %s: %w", id, err)
	}
	return &c, nil
}

// GetAddress returns a shipping address by id.
func (r *CustomerRepository) GetAddress(ctx context.Context, id uuid.UUID) (*customer.Address, error) {
	var a customer.Address
	err := r.pool.QueryRow(ctx, getAddressSQL, id).Scan(&a.ID, &a.CustomerID, &a.Line1, &a.City, &a.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrAddressNotFound
		}
		return nil, fmt.Errorf("getting address %s: %w", id, err)
	}
	return &a, nil
}

// GetPaymentMethod returns a store payment option by id.
func (r *CustomerRepository) GetPaymentMethod(ctx context.Context, id string) (*customer.PaymentMethod, error) {
	var pm customer.PaymentMethod
	err := r.pool.QueryRow(ctx, getPaymentMethodSQL, id).Scan(&pm.ID, &pm.Name, &pm.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrPaymentMethodNotFound
		}
		return nil, fmt.Errorf("getting payment method %q: %w", id, err)
	}
	return &pm, nil
}
