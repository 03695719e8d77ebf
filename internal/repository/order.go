package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-orders/internal/domain/catalog"
	"github.com/xenking/storefront-orders/internal/domain/customer"
	"github.com/xenking/storefront-orders/internal/domain/discount"
	"github.com/xenking/storefront-orders/internal/domain/order"
)

const (
	// Variant rows are locked in id order so concurrent orders over the same
	// variants queue instead of deadlocking.
	lockVariantsSQL = `SELECT id, stock_quantity FROM variants
		WHERE id = ANY($1) ORDER BY id FOR UPDATE NOWAIT`

	reserveStockSQL = `UPDATE variants
		SET stock_quantity = stock_quantity - $2, sold_quantity = sold_quantity + $2
		WHERE id = $1`

	releaseStockSQL = `UPDATE variants v
		SET stock_quantity = v.stock_quantity + oi.quantity,
		    sold_quantity  = GREATEST(v.sold_quantity - oi.quantity, 0)
		FROM order_items oi
		WHERE oi.order_id = $1 AND v.id = oi.variant_id`

	lockDiscountCodeSQL = `SELECT dc.status, d.usage_limit, d.used_count
		FROM discount_codes dc
		JOIN discounts d ON d.id = dc.discount_id
		WHERE dc.id = $1
		FOR UPDATE OF dc, d NOWAIT`

	consumeDiscountSQL = `UPDATE discounts SET used_count = used_count + 1
		WHERE id = (SELECT discount_id FROM discount_codes WHERE id = $1)`

	restoreDiscountSQL = `UPDATE discounts SET used_count = GREATEST(used_count - 1, 0)
		WHERE id = (SELECT discount_id FROM discount_codes WHERE id = $1)`

	markCodeUsedSQL = `UPDATE discount_codes SET status = 'used'
		WHERE id = $1 AND customer_id IS NOT NULL`

	reactivateCodeSQL = `UPDATE discount_codes SET status = 'active'
		WHERE id = $1 AND status = 'used'`

	lockCustomerPointsSQL = `SELECT points FROM customers WHERE id = $1 FOR UPDATE NOWAIT`

	debitPointsSQL = `UPDATE customers SET points = points - $2 WHERE id = $1`

	creditPointsSQL = `UPDATE customers SET points = points + $2 WHERE id = $1`

	insertOrderSQL = `INSERT INTO orders (id, code, customer_id, address_id, payment_method_id,
		discount_code_id, subtotal, discount_amount, shipping_fee, points_spent, points_earned,
		total, note, status, created_at, created_by, modified_at, modified_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	insertOrderItemSQL = `INSERT INTO order_items (id, order_id, variant_id, product_name,
		variant_name, unit_price, quantity)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	insertHistorySQL = `INSERT INTO order_status_history (id, order_id, from_status, to_status,
		actor, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())`

	orderColumns = `id, code, customer_id, address_id, payment_method_id, discount_code_id,
		subtotal, discount_amount, shipping_fee, points_spent, points_earned, total, note,
		status, created_at, created_by, modified_at, modified_by`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	lockOrderSQL = getOrderSQL + ` FOR UPDATE NOWAIT`

	updateOrderStatusSQL = `UPDATE orders
		SET status = $2, points_earned = $3, modified_at = now(), modified_by = $4
		WHERE id = $1`

	getOrderItemsSQL = `SELECT id, order_id, variant_id, product_name, variant_name, unit_price, quantity
		FROM order_items WHERE order_id = ANY($1) ORDER BY id`

	getHistorySQL = `SELECT id, order_id, from_status, to_status, actor, note, created_at
		FROM order_status_history WHERE order_id = $1 ORDER BY created_at, id`

	countPriorOrdersSQL = `SELECT COUNT(*) FROM orders
		WHERE customer_id = $1 AND status NOT IN ('Cancelled', 'Rejected')`

	listAutoCompletableSQL = `SELECT id FROM orders
		WHERE status = 'Shipped' AND modified_at <= $1
		ORDER BY modified_at LIMIT $2`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order atomically: stock is reserved, the discount
// code is consumed and points are debited in the same transaction as the
// order rows. Any check failing rolls everything back.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := reserveStock(ctx, tx, o.Items); err != nil {
		return classify(err)
	}

	if o.DiscountCodeID != nil {
		if err := consumeDiscountCode(ctx, tx, *o.DiscountCodeID); err != nil {
			return classify(err)
		}
	}

	if o.PointsSpent > 0 {
		if err := debitPoints(ctx, tx, o.CustomerID, o.PointsSpent); err != nil {
			return classify(err)
		}
	}

	_, err = tx.Exec(ctx, insertOrderSQL,
		o.ID, o.Code, o.CustomerID, o.AddressID, o.PaymentMethodID,
		o.DiscountCodeID, o.Subtotal, o.DiscountAmount, o.ShippingFee,
		o.PointsSpent, o.PointsEarned, o.Total, o.Note, string(o.Status),
		o.CreatedAt, o.CreatedBy, o.ModifiedAt, o.ModifiedBy,
	)
	if err != nil {
		return fmt.Errorf("inserting order %q: %w", o.Code, err)
	}

	for _, item := range o.Items {
		_, err = tx.Exec(ctx, insertOrderItemSQL,
			item.ID, o.ID, item.VariantID, item.ProductName,
			item.VariantName, item.UnitPrice, item.Quantity,
		)
		if err != nil {
			return fmt.Errorf("inserting order item: %w", err)
		}
	}

	_, err = tx.Exec(ctx, insertHistorySQL,
		uuid.New(), o.ID, nil, string(o.Status), o.CreatedBy, o.Note,
	)
	if err != nil {
		return fmt.Errorf("inserting status history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("committing order %q: %w", o.Code, err))
	}
	return nil
}

// reserveStock locks the variant rows, verifies availability against the
// locked values and decrements stock while incrementing sold counters.
func reserveStock(ctx context.Context, tx pgx.Tx, items []order.Item) error {
	quantities := make(map[uuid.UUID]int, len(items))
	for _, item := range items {
		quantities[item.VariantID] += item.Quantity
	}
	ids := make([]uuid.UUID, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return strings.Compare(ids[i].String(), ids[j].String()) < 0
	})

	rows, err := tx.Query(ctx, lockVariantsSQL, ids)
	if err != nil {
		return fmt.Errorf("locking variants: %w", err)
	}
	type stockRow struct {
		ID    uuid.UUID
		Stock int
	}
	locked, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (stockRow, error) {
		var s stockRow
		err := row.Scan(&s.ID, &s.Stock)
		return s, err
	})
	if err != nil {
		return fmt.Errorf("locking variants: %w", err)
	}
	if len(locked) != len(ids) {
		return catalog.ErrVariantNotFound
	}

	for _, s := range locked {
		if s.Stock < quantities[s.ID] {
			return &order.OutOfStockError{VariantID: s.ID}
		}
	}
	for _, s := range locked {
		if _, err := tx.Exec(ctx, reserveStockSQL, s.ID, quantities[s.ID]); err != nil {
			return fmt.Errorf("reserving stock for variant %s: %w", s.ID, err)
		}
	}
	return nil
}

// consumeDiscountCode re-validates the code under the row lock: the status
// and the usage limit may have changed since the engine saw them. A
// customer-restricted code is one-shot and flips to used here.
func consumeDiscountCode(ctx context.Context, tx pgx.Tx, codeID uuid.UUID) error {
	var (
		status     string
		usageLimit *int
		usedCount  int
	)
	err := tx.QueryRow(ctx, lockDiscountCodeSQL, codeID).Scan(&status, &usageLimit, &usedCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return discount.ErrInvalidCode
		}
		return fmt.Errorf("locking discount code %s: %w", codeID, err)
	}

	if discount.CodeStatus(status) != discount.CodeActive {
		return discount.ErrInvalidCode
	}
	if usageLimit != nil && usedCount >= *usageLimit {
		return discount.ErrCapacityReached
	}

	if _, err := tx.Exec(ctx, consumeDiscountSQL, codeID); err != nil {
		return fmt.Errorf("consuming discount for code %s: %w", codeID, err)
	}
	if _, err := tx.Exec(ctx, markCodeUsedSQL, codeID); err != nil {
		return fmt.Errorf("marking code %s used: %w", codeID, err)
	}
	return nil
}

// debitPoints locks the customer row and spends points against the locked
// balance.
func debitPoints(ctx context.Context, tx pgx.Tx, customerID uuid.UUID, points int64) error {
	var balance int64
	err := tx.QueryRow(ctx, lockCustomerPointsSQL, customerID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return customer.ErrNotFound
		}
		return fmt.Errorf("locking customer %s: %w", customerID, err)
	}
	if balance < points {
		return customer.ErrInsufficientPoints
	}
	if _, err := tx.Exec(ctx, debitPointsSQL, customerID, points); err != nil {
		return fmt.Errorf("debiting points for customer %s: %w", customerID, err)
	}
	return nil
}

// Get returns one order with its items.
func (r *OrderRepository) Get(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return getOrder(ctx, r.pool, id, getOrderSQL)
}

// Transition executes one status transition atomically: the order row is
// locked, the edge is validated against the live status, and the update is
// committed together with its audit row and the compensation or settlement
// side effects the target status implies.
func (r *OrderRepository) Transition(ctx context.Context, req order.TransitionRequest) (*order.Order, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	o, err := getOrder(ctx, tx, req.OrderID, lockOrderSQL)
	if err != nil {
		return nil, classify(err)
	}

	if req.Role == order.RoleCustomer && (req.Actor == nil || *req.Actor != o.CustomerID) {
		return nil, order.ErrNotOwned
	}
	if err := order.CanTransition(o.Status, req.Target, req.Role); err != nil {
		return nil, err
	}

	if order.ReleasesReservations(req.Target) {
		if err := releaseReservations(ctx, tx, o); err != nil {
			return nil, classify(err)
		}
	}

	pointsEarned := o.PointsEarned
	if req.Target == order.StatusCompleted {
		pointsEarned = req.PointsEarned
		if pointsEarned > 0 {
			if _, err := tx.Exec(ctx, creditPointsSQL, o.CustomerID, pointsEarned); err != nil {
				return nil, classify(fmt.Errorf("crediting points for customer %s: %w", o.CustomerID, err))
			}
		}
	}

	_, err = tx.Exec(ctx, updateOrderStatusSQL, o.ID, string(req.Target), pointsEarned, req.Actor)
	if err != nil {
		return nil, classify(fmt.Errorf("updating order %s status: %w", o.ID, err))
	}

	_, err = tx.Exec(ctx, insertHistorySQL,
		uuid.New(), o.ID, string(o.Status), string(req.Target), req.Actor, req.Note,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting status history: %w", err)
	}

	updated, err := getOrder(ctx, tx, o.ID, getOrderSQL)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, classify(fmt.Errorf("committing transition for order %s: %w", o.ID, err))
	}
	return updated, nil
}

// releaseReservations undoes the creation-time side effects when an order is
// cancelled or rejected: stock returns, the usage counter steps back, a
// one-shot code reactivates, and spent points are refunded.
func releaseReservations(ctx context.Context, tx pgx.Tx, o *order.Order) error {
	if _, err := tx.Exec(ctx, releaseStockSQL, o.ID); err != nil {
		return fmt.Errorf("releasing stock for order %s: %w", o.ID, err)
	}

	if o.DiscountCodeID != nil {
		if _, err := tx.Exec(ctx, restoreDiscountSQL, *o.DiscountCodeID); err != nil {
			return fmt.Errorf("restoring discount usage for order %s: %w", o.ID, err)
		}
		if _, err := tx.Exec(ctx, reactivateCodeSQL, *o.DiscountCodeID); err != nil {
			return fmt.Errorf("reactivating code for order %s: %w", o.ID, err)
		}
	}

	if o.PointsSpent > 0 {
		if _, err := tx.Exec(ctx, creditPointsSQL, o.CustomerID, o.PointsSpent); err != nil {
			return fmt.Errorf("refunding points for order %s: %w", o.ID, err)
		}
	}
	return nil
}

// List returns one page of orders matching the filter, with items attached,
// plus the total match count.
func (r *OrderRepository) List(ctx context.Context, f order.ListFilter) (*order.Page, error) {
	where, args := buildListFilter(f)

	var total int
	countSQL := `SELECT COUNT(*) FROM orders o` + where
	if err := r.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting orders: %w", err)
	}

	dir := "DESC"
	if f.SortAsc {
		dir = "ASC"
	}
	pageSQL := fmt.Sprintf(`SELECT %s FROM orders o%s ORDER BY o.created_at %s LIMIT $%d OFFSET $%d`,
		orderColumns, where, dir, len(args)+1, len(args)+2)
	args = append(args, f.PerPage, (f.Page-1)*f.PerPage)

	rows, err := r.pool.Query(ctx, pageSQL, args...)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}

	if err := attachItems(ctx, r.pool, orders); err != nil {
		return nil, err
	}
	return &order.Page{Orders: orders, Total: total}, nil
}

// buildListFilter renders the WHERE clause for List. Columns are fixed
// strings; only values travel as placeholders.
func buildListFilter(f order.ListFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.EmailOrPhone != "" {
		add(`o.customer_id IN (SELECT id FROM customers WHERE email = $%d OR phone = $%[1]d)`, f.EmailOrPhone)
	}
	if f.OrderCode != "" {
		add(`o.code = $%d`, f.OrderCode)
	}
	if f.Status != "" {
		add(`o.status = $%d`, string(f.Status))
	}
	if f.From != nil {
		add(`o.created_at >= $%d`, *f.From)
	}
	if f.To != nil {
		add(`o.created_at < $%d`, *f.To)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// History returns the order's status audit trail, oldest first.
func (r *OrderRepository) History(ctx context.Context, orderID uuid.UUID) ([]order.HistoryEntry, error) {
	rows, err := r.pool.Query(ctx, getHistorySQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("getting history for order %s: %w", orderID, err)
	}
	return pgx.CollectRows(rows, scanHistoryEntry)
}

// CountPriorOrders counts a customer's orders that were not cancelled or
// rejected.
func (r *OrderRepository) CountPriorOrders(ctx context.Context, customerID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, countPriorOrdersSQL, customerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting orders for customer %s: %w", customerID, err)
	}
	return count, nil
}

// ListAutoCompletable returns ids of shipped orders untouched since the
// cutoff, oldest first.
func (r *OrderRepository) ListAutoCompletable(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, listAutoCompletableSQL, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("listing auto-completable orders: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (uuid.UUID, error) {
		var id uuid.UUID
		err := row.Scan(&id)
		return id, err
	})
}

func getOrder(ctx context.Context, q querier, id uuid.UUID, sql string) (*order.Order, error) {
	rows, err := q.Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %s: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %s: %w", id, err)
	}

	orders := []order.Order{o}
	if err := attachItems(ctx, q, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// attachItems loads the items for every order in one query and distributes
// them in place.
func attachItems(ctx context.Context, q querier, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(orders))
	index := make(map[uuid.UUID]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err := q.Query(ctx, getOrderItemsSQL, ids)
	if err != nil {
		return fmt.Errorf("getting order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item    order.Item
			orderID uuid.UUID
		)
		err := rows.Scan(&item.ID, &orderID, &item.VariantID,
			&item.ProductName, &item.VariantName, &item.UnitPrice, &item.Quantity)
		if err != nil {
			return fmt.Errorf("scanning order item: %w", err)
		}
		i := index[orderID]
		orders[i].Items = append(orders[i].Items, item)
	}
	return rows.Err()
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(
		&o.ID, &o.Code, &o.CustomerID, &o.AddressID, &o.PaymentMethodID,
		&o.DiscountCodeID, &o.Subtotal, &o.DiscountAmount, &o.ShippingFee,
		&o.PointsSpent, &o.PointsEarned, &o.Total, &o.Note, &status,
		&o.CreatedAt, &o.CreatedBy, &o.ModifiedAt, &o.ModifiedBy,
	)
	o.Status = order.Status(status)
	return o, err
}

func scanHistoryEntry(row pgx.CollectableRow) (order.HistoryEntry, error) {
	var (
		h    order.HistoryEntry
		from *string
		to   string
	)
	err := row.Scan(&h.ID, &h.OrderID, &from, &to, &h.Actor, &h.Note, &h.CreatedAt)
	if from != nil {
		h.From = order.Status(*from)
	}
	h.To = order.Status(to)
	return h, err
}
