package repository

import (
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/xenking/storefront-orders/internal/domain/order"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"lock not available", &pgconn.PgError{Code: pgerrcode.LockNotAvailable}, order.ErrTxConflict},
		{"deadlock", &pgconn.PgError{Code: pgerrcode.DeadlockDetected}, order.ErrTxConflict},
		{"serialization failure", &pgconn.PgError{Code: pgerrcode.SerializationFailure}, order.ErrTxConflict},
		{"wrapped lock error", errors.Wrap(&pgconn.PgError{Code: pgerrcode.LockNotAvailable}, "locking variants"), order.ErrTxConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classify(tt.err), tt.want)
		})
	}

	t.Run("other errors pass through", func(t *testing.T) {
		constraint := &pgconn.PgError{Code: pgerrcode.UniqueViolation}
		assert.Equal(t, error(constraint), classify(constraint))
		assert.NoError(t, classify(nil))
	})
}

func TestBuildListFilter(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		where, args := buildListFilter(order.ListFilter{})
		assert.Empty(t, where)
		assert.Empty(t, args)
	})

	t.Run("all conditions", func(t *testing.T) {
		from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		to := from.AddDate(0, 1, 0)
		where, args := buildListFilter(order.ListFilter{
			EmailOrPhone: "a@b.c",
			OrderCode:    "SO-1",
			Status:       order.StatusPending,
			From:         &from,
			To:           &to,
		})

		assert.Equal(t, ` WHERE o.customer_id IN (SELECT id FROM customers WHERE email = $1 OR phone = $1)`+
			` AND o.code = $2 AND o.status = $3 AND o.created_at >= $4 AND o.created_at < $5`, where)
		assert.Equal(t, []any{"a@b.c", "SO-1", "Pending", from, to}, args)
	})
}
