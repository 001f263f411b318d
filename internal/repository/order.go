package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openpos/restobill/internal/domain/order"
)

const (
	getOrderSQL = `SELECT id, status, created_at FROM orders WHERE id = $1`

	getOrderItemsSQL = `SELECT product_id, name, price_at_order, quantity
		FROM order_items WHERE order_id = $1 ORDER BY product_id`
)

var _ order.Provider = (*OrderRepository)(nil)

// OrderRepository implements order.Provider backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// GetByID fetches an order with its line items.
// Returns order.ErrNotFound when no order exists for the id.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	var o order.Order
	err := r.pool.QueryRow(ctx, getOrderSQL, id).Scan(&o.ID, &o.Status, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("finding order %q: %w", id, err)
	}

	rows, err := r.pool.Query(ctx, getOrderItemsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("loading items for order %q: %w", id, err)
	}

	o.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.LineItem, error) {
		var item order.LineItem
		err := row.Scan(&item.ProductID, &item.Name, &item.PriceAtOrder, &item.Quantity)
		return item, err
	})
	if err != nil {
		return nil, fmt.Errorf("loading items for order %q: %w", id, err)
	}

	return &o, nil
}
