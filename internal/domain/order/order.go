package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested order does not exist.
var ErrNotFound = errors.New("order not found")

// Status is the lifecycle state of an order, owned by the order-management
// side of the system. Billing only ever reads completed orders.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
)

// Order is a read-only view of an order as supplied by the order collaborator.
type Order struct {
	ID        string
	Status    Status
	Items     []LineItem
	CreatedAt time.Time
}

// LineItem is a single order line with the unit price captured at order time.
// PriceAtOrder, not the current catalog price, is what billing settles against.
type LineItem struct {
	ProductID    string          `json:"product_id"`
	Name         string          `json:"name"`
	PriceAtOrder decimal.Decimal `json:"price_at_order"`
	Quantity     int             `json:"quantity"`
}

// Subtotal returns Σ(priceAtOrder × quantity) across all line items,
// rounded to 2 decimal places.
func (o *Order) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range o.Items {
		line := item.PriceAtOrder.Mul(decimal.NewFromInt(int64(item.Quantity)))
		sum = sum.Add(line)
	}
	return sum.Round(2)
}

// Provider supplies completed orders to the billing core.
type Provider interface {
	GetByID(ctx context.Context, id string) (*Order, error)
}
