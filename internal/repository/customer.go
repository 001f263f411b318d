package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openpos/restobill/internal/domain/loyalty"
)

const (
	getCustomerByPhoneSQL = `SELECT c.id, c.phone, c.full_name, la.points, la.tier
		FROM customers c
		LEFT JOIN loyalty_accounts la ON la.customer_id = c.id
		WHERE c.phone = $1`

	getCustomerByIDSQL = `SELECT c.id, c.phone, c.full_name, la.points, la.tier
		FROM customers c
		LEFT JOIN loyalty_accounts la ON la.customer_id = c.id
		WHERE c.id = $1`
)

var _ loyalty.CustomerProvider = (*CustomerRepository)(nil)

// CustomerRepository implements loyalty.CustomerProvider backed by PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// GetByPhone looks up a customer and their loyalty account by phone number.
// Returns loyalty.ErrCustomerNotFound when no customer exists.
func (r *CustomerRepository) GetByPhone(ctx context.Context, phone string) (*loyalty.Customer, error) {
	return r.get(ctx, getCustomerByPhoneSQL, phone)
}

// GetByID looks up a customer and their loyalty account by customer id.
// Returns loyalty.ErrCustomerNotFound when no customer exists.
func (r *CustomerRepository) GetByID(ctx context.Context, id string) (*loyalty.Customer, error) {
	return r.get(ctx, getCustomerByIDSQL, id)
}

func (r *CustomerRepository) get(ctx context.Context, query, key string) (*loyalty.Customer, error) {
	rows, err := r.pool.Query(ctx, query, key)
	if err != nil {
		return nil, fmt.Errorf("finding customer %q: %w", key, err)
	}

	cust, err := pgx.CollectExactlyOneRow(rows, scanCustomer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, loyalty.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("finding customer %q: %w", key, err)
	}
	return &cust, nil
}

func scanCustomer(row pgx.CollectableRow) (loyalty.Customer, error) {
	var (
		cust   loyalty.Customer
		points *int
		tier   *string
	)
	err := row.Scan(&cust.ID, &cust.Phone, &cust.FullName, &points, &tier)
	if err != nil {
		return cust, err
	}
	// The LEFT JOIN yields NULLs for customers without a loyalty account.
	if points != nil && tier != nil {
		cust.Account = &loyalty.Account{Points: *points, Tier: *tier}
	}
	return cust, nil
}
