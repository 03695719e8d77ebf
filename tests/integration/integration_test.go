//go:build integration

// Package integration exercises the full persistence stack against a real
// PostgreSQL instance started via docker compose. The interesting properties
// live here: atomicity of order creation, row-lock behavior under
// concurrency, and reservation release on cancellation.
package integration

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go/modules/compose"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/storefront-orders/internal/domain/discount"
	"github.com/xenking/storefront-orders/internal/domain/order"
	"github.com/xenking/storefront-orders/internal/repository"
)

var pool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	dc, err := tc.NewDockerCompose("docker-compose.test.yml")
	if err != nil {
		log.Fatalf("compose init: %v", err)
	}

	err = dc.
		WaitForService("postgres", wait.ForHealthCheck()).
		Up(ctx, tc.Wait(true))
	if err != nil {
		log.Fatalf("compose up: %v", err)
	}

	pg, err := dc.ServiceContainer(ctx, "postgres")
	if err != nil {
		log.Fatalf("postgres container: %v", err)
	}
	host, err := pg.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := pg.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://store:store@%s:%s/store?sslmode=disable", host, port.Port())
	pool, err = repository.NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("create pool: %v", err)
	}

	if err := repository.RunMigrations(ctx, pool); err != nil {
		log.Fatalf("run migrations: %v", err)
	}
	if err := seedBaseline(ctx); err != nil {
		log.Fatalf("seed baseline: %v", err)
	}

	result := m.Run()

	pool.Close()
	if err := dc.Down(context.Background(), tc.RemoveOrphans(true)); err != nil {
		log.Printf("compose down: %v", err)
	}

	return result
}

// seedBaseline inserts rows every test relies on: a payment method and the
// points conversion rate.
func seedBaseline(ctx context.Context) error {
	_, err := pool.Exec(ctx, `INSERT INTO payment_methods (id, name, active)
		VALUES ('cod', 'Cash on delivery', TRUE)
		ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx, `INSERT INTO settings (key, value)
		VALUES ('PointsConversionRate', '5')
		ON CONFLICT (key) DO UPDATE SET value = '5'`)
	return err
}

// Seeding helpers. Every test gets fresh rows under fresh ids, so tests can
// share one database without interfering.

func newService(t *testing.T, cfg order.Config) *order.Service {
	t.Helper()
	return order.NewService(
		repository.NewOrderRepository(pool),
		repository.NewCatalogRepository(pool),
		repository.NewCustomerRepository(pool),
		repository.NewDiscountRepository(pool),
		repository.NewSettingsRepository(pool),
		discount.NewEngine(),
		cfg,
	)
}

func seedCustomer(t *testing.T, points int64) (customerID, addressID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	customerID, addressID = uuid.New(), uuid.New()

	_, err := pool.Exec(ctx, `INSERT INTO customers (id, email, phone, points)
		VALUES ($1, $2, '', $3)`, customerID, customerID.String()+"@test.dev", points)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `INSERT INTO addresses (id, customer_id, line1, city, active)
		VALUES ($1, $2, 'Test line', 'Test city', TRUE)`, addressID, customerID)
	require.NoError(t, err)
	return customerID, addressID
}

func seedVariant(t *testing.T, price int64, stock int) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	productID, variantID := uuid.New(), uuid.New()

	_, err := pool.Exec(ctx, `INSERT INTO products (id, name) VALUES ($1, 'Test product')`, productID)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `INSERT INTO variants (id, product_id, name, price, stock_quantity)
		VALUES ($1, $2, 'Test variant', $3, $4)`, variantID, productID, decimal.NewFromInt(price), stock)
	require.NoError(t, err)
	return variantID
}

// seedDiscountCode creates a fixed-amount discount with an optional usage
// limit and one active code, returning the code string.
func seedDiscountCode(t *testing.T, value int64, usageLimit *int) string {
	t.Helper()
	ctx := context.Background()
	discountID, codeID := uuid.New(), uuid.New()
	code := "T" + discountID.String()[:8]

	_, err := pool.Exec(ctx, `INSERT INTO discounts (id, name, is_percentage, value, active, usage_limit)
		VALUES ($1, 'Test discount', FALSE, $2, TRUE, $3)`,
		discountID, decimal.NewFromInt(value), usageLimit)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `INSERT INTO discount_codes (id, discount_id, code, status)
		VALUES ($1, $2, $3, 'active')`, codeID, discountID, code)
	require.NoError(t, err)
	return code
}

func variantCounters(t *testing.T, variantID uuid.UUID) (stock, sold int) {
	t.Helper()
	err := pool.QueryRow(context.Background(),
		`SELECT stock_quantity, sold_quantity FROM variants WHERE id = $1`, variantID).
		Scan(&stock, &sold)
	require.NoError(t, err)
	return stock, sold
}

func customerPoints(t *testing.T, customerID uuid.UUID) int64 {
	t.Helper()
	var points int64
	err := pool.QueryRow(context.Background(),
		`SELECT points FROM customers WHERE id = $1`, customerID).Scan(&points)
	require.NoError(t, err)
	return points
}

func discountUsedCount(t *testing.T, code string) int {
	t.Helper()
	var used int
	err := pool.QueryRow(context.Background(),
		`SELECT d.used_count FROM discounts d
		 JOIN discount_codes dc ON dc.discount_id = d.id
		 WHERE dc.code = $1`, code).Scan(&used)
	require.NoError(t, err)
	return used
}
