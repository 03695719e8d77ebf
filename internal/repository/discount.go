package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-orders/internal/domain/discount"
)

const (
	findCodeSQL = `SELECT dc.id, dc.discount_id, dc.code, dc.customer_id, dc.from_date, dc.to_date, dc.status,
		d.id, d.name, d.description, d.is_percentage, d.value, d.min_order_amount, d.max_discount,
		d.from_date, d.to_date, d.active, d.usage_limit, d.used_count, d.min_quantity, d.max_quantity,
		d.first_order_only
		FROM discount_codes dc
		JOIN discounts d ON d.id = dc.discount_id
		WHERE UPPER(dc.code) = UPPER($1) AND dc.status <> 'deleted'`

	getDiscountProductsSQL = `SELECT product_id FROM discount_products WHERE discount_id = $1`
)

var _ discount.Repository = (*DiscountRepository)(nil)

// DiscountRepository implements discount.Repository backed by PostgreSQL.
type DiscountRepository struct {
	pool *pgxpool.Pool
}

// NewDiscountRepository returns a DiscountRepository that uses the given pool.
func NewDiscountRepository(pool *pgxpool.Pool) *DiscountRepository {
	return &DiscountRepository{pool: pool}
}

// FindCode looks up a code (case-insensitive) joined with its parent
// discount and the discount's product scope. Unknown and deleted codes
// return discount.ErrInvalidCode; eligibility is the engine's job.
func (r *DiscountRepository) FindCode(ctx context.Context, code string) (*discount.Code, *discount.Discount, error) {
	var (
		c      discount.Code
		d      discount.Discount
		status string
	)
	err := r.pool.QueryRow(ctx, findCodeSQL, code).Scan(
		&c.ID, &c.DiscountID, &c.Code, &c.CustomerID, &c.FromDate, &c.ToDate, &status,
		&d.ID, &d.Name, &d.Description, &d.IsPercentage, &d.Value, &d.MinOrderAmount, &d.MaxDiscount,
		&d.FromDate, &d.ToDate, &d.Active, &d.UsageLimit, &d.UsedCount, &d.MinQuantity, &d.MaxQuantity,
		&d.FirstOrderOnly,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, discount.ErrInvalidCode
		}
		return nil, nil, fmt.Errorf("finding discount code %q: %w", code, err)
	}
	c.Status = discount.CodeStatus(status)

	rows, err := r.pool.Query(ctx, getDiscountProductsSQL, d.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("getting product scope for discount %s: %w", d.ID, err)
	}
	d.ProductIDs, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (uuid.UUID, error) {
		var id uuid.UUID
		err := row.Scan(&id)
		return id, err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("getting product scope for discount %s: %w", d.ID, err)
	}

	return &c, &d, nil
}
