package discount

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Item is an order line viewed by the engine: live unit price and quantity.
type Item struct {
	ProductID uuid.UUID
	Price     decimal.Decimal
	Quantity  int
}

// Draft is the order under construction, as far as eligibility is concerned.
type Draft struct {
	CustomerID uuid.UUID
	Items      []Item
	Subtotal   decimal.Decimal
	// PriorOrders counts the customer's earlier non-cancelled, non-rejected
	// orders; used by first-order-only discounts.
	PriorOrders int
}

// Engine evaluates discount eligibility and computes discount amounts.
type Engine struct {
	now func() time.Time
}

// NewEngine returns an Engine using wall-clock time.
func NewEngine() *Engine {
	return &Engine{now: time.Now}
}

// Validate runs the eligibility checks in order, short-circuiting on the
// first failure, and returns the computed discount amount. The usage-limit
// check here is advisory; the authoritative check runs under the discount
// row lock inside the order-creation transaction.
//
// Product scope uses any-item semantics: one ordered item inside the
// discount's product set makes the whole order eligible.
func (e *Engine) Validate(d *Discount, c *Code, draft Draft) (decimal.Decimal, error) {
	now := e.now()

	if !d.Active || c.Status != CodeActive {
		return decimal.Zero, ErrInvalidCode
	}
	if outsideWindow(now, d.FromDate, d.ToDate) || outsideWindow(now, c.FromDate, c.ToDate) {
		return decimal.Zero, ErrExpired
	}

	if c.CustomerID != nil && *c.CustomerID != draft.CustomerID {
		return decimal.Zero, ErrInvalidCode
	}

	if d.FirstOrderOnly && draft.PriorOrders > 0 {
		return decimal.Zero, ErrFirstOrderOnly
	}

	qty := totalQuantity(draft.Items)
	if d.MinQuantity != nil && qty < *d.MinQuantity {
		return decimal.Zero, ErrQuantityNotEligible
	}
	if d.MaxQuantity != nil && qty > *d.MaxQuantity {
		return decimal.Zero, ErrQuantityNotEligible
	}

	if d.MinOrderAmount != nil && draft.Subtotal.LessThan(*d.MinOrderAmount) {
		return decimal.Zero, ErrOrderAmountTooLow
	}

	if len(d.ProductIDs) > 0 && !anyItemInScope(d.ProductIDs, draft.Items) {
		return decimal.Zero, ErrInvalidCode
	}

	if d.UsageLimit != nil && d.UsedCount >= *d.UsageLimit {
		return decimal.Zero, ErrCapacityReached
	}

	return Amount(d, draft.Subtotal), nil
}

// Amount computes the discount amount for an eligible order. Percentage
// discounts are capped by MaxDiscount when set; fixed discounts never exceed
// the subtotal. The result is rounded to the currency's minor unit and is
// never negative.
func Amount(d *Discount, subtotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	if d.IsPercentage {
		amount = subtotal.Mul(d.Value).Div(hundred)
		if d.MaxDiscount != nil && amount.GreaterThan(*d.MaxDiscount) {
			amount = *d.MaxDiscount
		}
	} else {
		amount = decimal.Min(d.Value, subtotal)
	}
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return amount.Round(2)
}

func outsideWindow(now time.Time, from, to *time.Time) bool {
	if from != nil && now.Before(*from) {
		return true
	}
	if to != nil && now.After(*to) {
		return true
	}
	return false
}

func totalQuantity(items []Item) int {
	total := 0
	for _, item := range items {
		total += item.Quantity
	}
	return total
}

func anyItemInScope(scope []uuid.UUID, items []Item) bool {
	in := make(map[uuid.UUID]struct{}, len(scope))
	for _, id := range scope {
		in[id] = struct{}{}
	}
	for _, item := range items {
		if _, ok := in[item.ProductID]; ok {
			return true
		}
	}
	return false
}
