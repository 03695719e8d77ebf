// Command seed-db populates a database with a demo catalog, payment methods,
// a demo customer, two discount campaigns with codes, and the loyalty
// settings the order workflow depends on. Safe to rerun: everything upserts.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-orders/internal/repository"
)

type productJSON struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Variants []struct {
		ID    uuid.UUID       `json:"id"`
		Name  string          `json:"name"`
		Price decimal.Decimal `json:"price"`
		Stock int             `json:"stock"`
	} `json:"variants"`
}

// Fixed ids so reruns update the same demo rows.
var (
	demoCustomerID = uuid.MustParse("9b1e6f04-31f2-4b6e-8d4a-5a1b2c3d4e01")
	demoAddressID  = uuid.MustParse("9b1e6f04-31f2-4b6e-8d4a-5a1b2c3d4e02")
	welcomeID      = uuid.MustParse("9b1e6f04-31f2-4b6e-8d4a-5a1b2c3d4e10")
	welcomeCodeID  = uuid.MustParse("9b1e6f04-31f2-4b6e-8d4a-5a1b2c3d4e11")
	bulkSaveID     = uuid.MustParse("9b1e6f04-31f2-4b6e-8d4a-5a1b2c3d4e20")
	bulkSaveCodeID = uuid.MustParse("9b1e6f04-31f2-4b6e-8d4a-5a1b2c3d4e21")
)

func main() {
	var (
		databaseURL string
		catalogFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog-file", "db/seed/catalog.json", "path to catalog JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, catalogFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, catalogFile string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedCatalog(ctx, pool, catalogFile); err != nil {
		return errors.Wrap(err, "seed catalog")
	}
	if err := seedPaymentMethods(ctx, pool); err != nil {
		return errors.Wrap(err, "seed payment methods")
	}
	if err := seedCustomer(ctx, pool); err != nil {
		return errors.Wrap(err, "seed demo customer")
	}
	if err := seedDiscounts(ctx, pool); err != nil {
		return errors.Wrap(err, "seed discounts")
	}
	if err := seedSettings(ctx, pool); err != nil {
		return errors.Wrap(err, "seed settings")
	}

	return nil
}

func seedCatalog(ctx context.Context, pool *pgxpool.Pool, catalogFile string) error {
	slog.Info("reading catalog file", slog.String("path", catalogFile))

	data, err := os.ReadFile(catalogFile)
	if err != nil {
		return errors.Wrap(err, "read catalog file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse catalog JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		_, err := pool.Exec(ctx, `INSERT INTO products (id, name) VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`, p.ID, p.Name)
		if err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		for _, v := range p.Variants {
			_, err := pool.Exec(ctx, `INSERT INTO variants (id, product_id, name, price, stock_quantity)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (id) DO UPDATE SET
					name = EXCLUDED.name, price = EXCLUDED.price, stock_quantity = EXCLUDED.stock_quantity`,
				v.ID, p.ID, v.Name, v.Price, v.Stock)
			if err != nil {
				return errors.Wrapf(err, "upsert variant %s", v.ID)
			}
		}

		slog.Info("upserted product",
			slog.String("name", p.Name),
			slog.Int("variants", len(p.Variants)),
		)
	}

	return nil
}

func seedPaymentMethods(ctx context.Context, pool *pgxpool.Pool) error {
	methods := []struct {
		id, name string
	}{
		{"cod", "Cash on delivery"},
		{"bank-transfer", "Bank transfer"},
	}

	for _, m := range methods {
		_, err := pool.Exec(ctx, `INSERT INTO payment_methods (id, name, active) VALUES ($1, $2, TRUE)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, active = TRUE`, m.id, m.name)
		if err != nil {
			return errors.Wrapf(err, "upsert payment method %s", m.id)
		}
	}

	slog.Info("upserted payment methods", slog.Int("count", len(methods)))
	return nil
}

func seedCustomer(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `INSERT INTO customers (id, email, phone, points)
		VALUES ($1, 'demo@storefront.dev', '+6280000000001', 50000)
		ON CONFLICT (id) DO NOTHING`, demoCustomerID)
	if err != nil {
		return errors.Wrap(err, "upsert customer")
	}

	_, err = pool.Exec(ctx, `INSERT INTO addresses (id, customer_id, line1, city, active)
		VALUES ($1, $2, 'Jl. Demo No. 1', 'Jakarta', TRUE)
		ON CONFLICT (id) DO NOTHING`, demoAddressID, demoCustomerID)
	if err != nil {
		return errors.Wrap(err, "upsert address")
	}

	slog.Info("upserted demo customer", slog.String("id", demoCustomerID.String()))
	return nil
}

func seedDiscounts(ctx context.Context, pool *pgxpool.Pool) error {
	// WELCOME10: 10% off the first order, capped.
	_, err := pool.Exec(ctx, `INSERT INTO discounts
		(id, name, description, is_percentage, value, max_discount, active, first_order_only)
		VALUES ($1, 'Welcome', '10% off your first order', TRUE, 10, 50000, TRUE, TRUE)
		ON CONFLICT (id) DO UPDATE SET active = TRUE`, welcomeID)
	if err != nil {
		return errors.Wrap(err, "upsert welcome discount")
	}
	_, err = pool.Exec(ctx, `INSERT INTO discount_codes (id, discount_id, code, status)
		VALUES ($1, $2, 'WELCOME10', 'active')
		ON CONFLICT (id) DO UPDATE SET status = 'active'`, welcomeCodeID, welcomeID)
	if err != nil {
		return errors.Wrap(err, "upsert welcome code")
	}

	// SAVE50K: flat amount off big orders, limited capacity.
	_, err = pool.Exec(ctx, `INSERT INTO discounts
		(id, name, description, is_percentage, value, min_order_amount, active, usage_limit)
		VALUES ($1, 'Big basket', '50000 off orders over 500000', FALSE, 50000, 500000, TRUE, 100)
		ON CONFLICT (id) DO UPDATE SET active = TRUE`, bulkSaveID)
	if err != nil {
		return errors.Wrap(err, "upsert big basket discount")
	}
	_, err = pool.Exec(ctx, `INSERT INTO discount_codes (id, discount_id, code, status)
		VALUES ($1, $2, 'SAVE50K', 'active')
		ON CONFLICT (id) DO UPDATE SET status = 'active'`, bulkSaveCodeID, bulkSaveID)
	if err != nil {
		return errors.Wrap(err, "upsert big basket code")
	}

	slog.Info("upserted discounts", slog.String("codes", "WELCOME10, SAVE50K"))
	return nil
}

func seedSettings(ctx context.Context, pool *pgxpool.Pool) error {
	// Keep an operator-tuned rate if one exists.
	_, err := pool.Exec(ctx, `INSERT INTO settings (key, value, description)
		VALUES ('PointsConversionRate', '5', 'Percent of the discounted subtotal earned as points on completion')
		ON CONFLICT (key) DO NOTHING`)
	if err != nil {
		return errors.Wrap(err, "upsert points conversion rate")
	}

	slog.Info("upserted settings")
	return nil
}
