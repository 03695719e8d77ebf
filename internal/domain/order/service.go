package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-orders/internal/domain/catalog"
	"github.com/xenking/storefront-orders/internal/domain/customer"
	"github.com/xenking/storefront-orders/internal/domain/discount"
	"github.com/xenking/storefront-orders/internal/domain/settings"
)

// Config holds store-level pricing policy for order creation.
type Config struct {
	// ShippingFee is the flat fee added to every order.
	ShippingFee decimal.Decimal
	// FreeShippingOver waives the fee once the subtotal reaches it;
	// zero disables the waiver.
	FreeShippingOver decimal.Decimal
	// MinOrderAmount rejects orders with a smaller subtotal; zero disables.
	MinOrderAmount decimal.Decimal
}

// Service orchestrates order creation, status transitions and settlement.
type Service struct {
	orders    Repository
	catalog   catalog.Ledger
	customers customer.Repository
	discounts discount.Repository
	settings  settings.Store
	engine    *discount.Engine
	cfg       Config
	now       func() time.Time
}

// NewService creates the order Service with its collaborator surfaces.
func NewService(
	orders Repository,
	ledger catalog.Ledger,
	customers customer.Repository,
	discounts discount.Repository,
	store settings.Store,
	engine *discount.Engine,
	cfg Config,
) *Service {
	return &Service{
		orders:    orders,
		catalog:   ledger,
		customers: customers,
		discounts: discounts,
		settings:  store,
		engine:    engine,
		cfg:       cfg,
		now:       time.Now,
	}
}

// CreateItem is one requested order line. Prices are never taken from the
// caller; they are read from the live catalog at submission time.
type CreateItem struct {
	VariantID uuid.UUID
	Quantity  int
}

// CreateRequest holds the input for creating an order.
type CreateRequest struct {
	CustomerID      uuid.UUID
	AddressID       uuid.UUID
	PaymentMethodID string
	DiscountCode    string
	UsePoints       bool
	Note            string
	Items           []CreateItem
}

// CreateOrder validates the request, prices it against the live catalog,
// applies the discount code and point spend, and persists the order with
// all counter mutations in one atomic unit. Any failure leaves no trace.
func (s *Service) CreateOrder(ctx context.Context, req CreateRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	ids := make([]uuid.UUID, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{VariantID: item.VariantID}
		}
		ids[i] = item.VariantID
	}

	if err := s.checkAddress(ctx, req.CustomerID, req.AddressID); err != nil {
		return nil, err
	}
	if err := s.checkPaymentMethod(ctx, req.PaymentMethodID); err != nil {
		return nil, err
	}

	variants, err := s.catalog.GetVariants(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get variants")
	}
	byID := make(map[uuid.UUID]catalog.Variant, len(variants))
	for _, v := range variants {
		byID[v.ID] = v
	}

	// Snapshot lines from the live catalog. The stock pre-check here is
	// advisory; the authoritative check repeats under row locks at commit.
	items := make([]Item, len(req.Items))
	draftItems := make([]discount.Item, len(req.Items))
	subtotal := decimal.Zero
	for i, reqItem := range req.Items {
		v, ok := byID[reqItem.VariantID]
		if !ok {
			return nil, errors.Wrapf(catalog.ErrVariantNotFound, "variant %s", reqItem.VariantID)
		}
		if v.StockQuantity < reqItem.Quantity {
			return nil, &OutOfStockError{VariantID: v.ID}
		}

		items[i] = Item{
			ID:          uuid.New(),
			VariantID:   v.ID,
			ProductName: v.ProductName,
			VariantName: v.Name,
			UnitPrice:   v.Price,
			Quantity:    reqItem.Quantity,
		}
		draftItems[i] = discount.Item{
			ProductID: v.ProductID,
			Price:     v.Price,
			Quantity:  reqItem.Quantity,
		}
		subtotal = subtotal.Add(v.Price.Mul(decimal.NewFromInt(int64(reqItem.Quantity))))
	}
	subtotal = subtotal.Round(2)

	if s.cfg.MinOrderAmount.IsPositive() && subtotal.LessThan(s.cfg.MinOrderAmount) {
		return nil, ErrOrderAmountTooLow
	}

	discountAmount := decimal.Zero
	var discountCodeID *uuid.UUID
	if req.DiscountCode != "" {
		code, disc, err := s.discounts.FindCode(ctx, req.DiscountCode)
		if err != nil {
			return nil, err
		}
		prior, err := s.orders.CountPriorOrders(ctx, req.CustomerID)
		if err != nil {
			return nil, errors.Wrap(err, "count prior orders")
		}
		discountAmount, err = s.engine.Validate(disc, code, discount.Draft{
			CustomerID:  req.CustomerID,
			Items:       draftItems,
			Subtotal:    subtotal,
			PriorOrders: prior,
		})
		if err != nil {
			return nil, err
		}
		discountCodeID = &code.ID
	}

	shipping := s.shippingFee(subtotal)
	payable := subtotal.Sub(discountAmount).Add(shipping)

	var pointsSpent int64
	if req.UsePoints {
		cust, err := s.customers.Get(ctx, req.CustomerID)
		if err != nil {
			return nil, err
		}
		// One point is worth one currency unit; spend whole points only,
		// never more than the payable amount or the balance.
		pointsSpent = min(cust.Points, payable.IntPart())
		if pointsSpent < 0 {
			pointsSpent = 0
		}
	}

	total := payable.Sub(decimal.NewFromInt(pointsSpent))
	if total.IsNegative() {
		total = decimal.Zero
	}

	now := s.now()
	o := &Order{
		ID:              uuid.New(),
		Code:            newOrderCode(),
		CustomerID:      req.CustomerID,
		AddressID:       req.AddressID,
		PaymentMethodID: req.PaymentMethodID,
		DiscountCodeID:  discountCodeID,
		Subtotal:        subtotal,
		DiscountAmount:  discountAmount,
		ShippingFee:     shipping,
		PointsSpent:     pointsSpent,
		Total:           total.Round(2),
		Note:            req.Note,
		Status:          StatusPending,
		Items:           items,
		CreatedAt:       now,
		CreatedBy:       req.CustomerID,
		ModifiedAt:      now,
		ModifiedBy:      &req.CustomerID,
	}

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	return o, nil
}

// GetOrder returns one order. Customers (non-nil requestingUser without the
// manager role) only see their own orders; anything else reads as not found.
func (s *Service) GetOrder(ctx context.Context, id uuid.UUID, requestingUser *uuid.UUID) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if requestingUser != nil && o.CustomerID != *requestingUser {
		return nil, ErrNotFound
	}
	return o, nil
}

// ListOrders returns one page of orders matching the filter.
func (s *Service) ListOrders(ctx context.Context, f ListFilter) (*Page, error) {
	if f.PerPage <= 0 {
		f.PerPage = 20
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	return s.orders.List(ctx, f)
}

// OrderHistory returns the order's append-only status audit trail.
func (s *Service) OrderHistory(ctx context.Context, orderID uuid.UUID) ([]HistoryEntry, error) {
	return s.orders.History(ctx, orderID)
}

// CustomerTransitionStatus lets a customer drive a transition on their own
// order. The transition table restricts customers to Pending -> Cancelled.
func (s *Service) CustomerTransitionStatus(ctx context.Context, orderID uuid.UUID, target Status, customerID uuid.UUID) (*Order, error) {
	return s.transition(ctx, TransitionRequest{
		OrderID: orderID,
		Target:  target,
		Role:    RoleCustomer,
		Actor:   &customerID,
	})
}

// BatchOutcome reports a manager batch transition per order.
type BatchOutcome struct {
	Updated []uuid.UUID
	Failed  map[uuid.UUID]error
}

// ManagerTransitionStatus drives the same transition over a set of orders.
// Orders fail or succeed independently; the outcome lists both sides.
func (s *Service) ManagerTransitionStatus(ctx context.Context, orderIDs []uuid.UUID, target Status, actor uuid.UUID, reason string) (*BatchOutcome, error) {
	if len(orderIDs) == 0 {
		return nil, errors.Wrap(ErrEmptyItems, "no order ids")
	}

	out := &BatchOutcome{Failed: make(map[uuid.UUID]error)}
	for _, id := range orderIDs {
		_, err := s.transition(ctx, TransitionRequest{
			OrderID: id,
			Target:  target,
			Role:    RoleManager,
			Actor:   &actor,
			Note:    reason,
		})
		if err != nil {
			out.Failed[id] = err
			continue
		}
		out.Updated = append(out.Updated, id)
	}
	return out, nil
}

// transition fills in settlement data when completing and delegates to the
// repository, which validates the edge under the order row lock.
func (s *Service) transition(ctx context.Context, req TransitionRequest) (*Order, error) {
	if !req.Target.Valid() {
		return nil, ErrIllegalTransition
	}

	if req.Target == StatusCompleted {
		// Subtotal and discount are immutable after creation, so reading
		// outside the transition lock is safe.
		o, err := s.orders.Get(ctx, req.OrderID)
		if err != nil {
			return nil, err
		}
		rate := settings.PointsRate(ctx, s.settings)
		req.PointsEarned = SettlementPoints(o.Subtotal, o.DiscountAmount, rate)
	}

	return s.orders.Transition(ctx, req)
}

func (s *Service) checkAddress(ctx context.Context, customerID, addressID uuid.UUID) error {
	addr, err := s.customers.GetAddress(ctx, addressID)
	if err != nil {
		return err
	}
	if addr.CustomerID != customerID || !addr.Active {
		return customer.ErrAddressNotFound
	}
	return nil
}

func (s *Service) checkPaymentMethod(ctx context.Context, id string) error {
	pm, err := s.customers.GetPaymentMethod(ctx, id)
	if err != nil {
		return err
	}
	if !pm.Active {
		return customer.ErrPaymentMethodNotFound
	}
	return nil
}

func (s *Service) shippingFee(subtotal decimal.Decimal) decimal.Decimal {
	if s.cfg.FreeShippingOver.IsPositive() && subtotal.GreaterThanOrEqual(s.cfg.FreeShippingOver) {
		return decimal.Zero
	}
	return s.cfg.ShippingFee
}

// newOrderCode derives a short human-facing order code. Uniqueness is
// enforced by the database constraint.
func newOrderCode() string {
	id := uuid.New()
	return "SO-" + strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:12])
}
