package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-orders/internal/domain/catalog"
)

const getVariantsSQL = `SELECT v.id, v.product_id, p.name, v.name, v.price, v.stock_quantity, v.sold_quantity
	FROM variants v
	JOIN products p ON p.id = v.product_id
	WHERE v.id = ANY($1)`

var _ catalog.Ledger = (*CatalogRepository)(nil)

// CatalogRepository implements catalog.Ledger backed by PostgreSQL.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// GetVariants returns the variants matching any of the given ids, with the
// parent product name attached. Missing ids are simply absent from the
// result; callers decide whether that is an error.
func (r *CatalogRepository) GetVariants(ctx context.Context, ids []uuid.UUID) ([]catalog.Variant, error) {
	rows, err := r.pool.Query(ctx, getVariantsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting variants: %w", err)
	}
	return pgx.CollectRows(rows, scanVariant)
}

func scanVariant(row pgx.CollectableRow) (catalog.Variant, error) {
	var v catalog.Variant
	err := row.Scan(&v.ID, &v.ProductID, &v.ProductName, &v.Name,
		&v.Price, &v.StockQuantity, &v.SoldQuantity)
	return v, err
}
