package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openpos/restobill/internal/domain/billing"
	"github.com/openpos/restobill/internal/domain/order"
)

const (
	createBillSQL = `INSERT INTO bills (id, order_id, customer_id, voucher_code, items,
		subtotal, discount, final_amount, points_redeemed, payment_status, issued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	getBillSQL = `SELECT id, order_id, customer_id, voucher_code, items,
		subtotal, discount, final_amount, points_redeemed, payment_status, issued_at
		FROM bills WHERE id = $1`

	// FOR UPDATE serializes concurrent confirmations of the same bill.
	getBillForUpdateSQL = getBillSQL + ` FOR UPDATE`

	listPaymentsSQL = `SELECT id, bill_id, amount, method, paid_at
		FROM payments WHERE bill_id = $1 ORDER BY paid_at`

	createPaymentSQL = `INSERT INTO payments (id, bill_id, amount, method, paid_at)
		VALUES ($1, $2, $3, $4, $5)`

	markBillPaidSQL = `UPDATE bills SET payment_status = 'Paid' WHERE id = $1`

	lockLoyaltySQL = `SELECT points FROM loyalty_accounts WHERE customer_id = $1 FOR UPDATE`

	// Conditional adjustment: deduct redeemed and credit earned only while
	// the balance still covers the redemption. Zero rows affected means a
	// concurrent settlement spent the points first.
	adjustLoyaltySQL = `UPDATE loyalty_accounts
		SET points = points - $2 + $3
		WHERE customer_id = $1 AND points >= $2`
)

// uniqueViolation is the PostgreSQL error code for unique constraint
// violations, used to map duplicate bill generation to a domain conflict.
const uniqueViolation = "23505"

var _ billing.Store = (*BillRepository)(nil)

// BillRepository implements billing.Store backed by PostgreSQL.
type BillRepository struct {
	pool *pgxpool.Pool
}

// NewBillRepository returns a BillRepository that uses the given pool.
func NewBillRepository(pool *pgxpool.Pool) *BillRepository {
	return &BillRepository{pool: pool}
}

// CreateBill persists a frozen bill snapshot. The line items are serialized
// to JSON for the JSONB column. A duplicate order reference surfaces as
// billing.ErrBillExists via the unique constraint, never as a silent second
// bill.
func (r *BillRepository) CreateBill(ctx context.Context, b *billing.Bill) error {
	itemsJSON, err := json.Marshal(b.Items)
	if err != nil {
		return fmt.Errorf("marshaling bill items: %w", err)
	}

	_, err = r.pool.Exec(ctx, createBillSQL,
		b.ID, b.OrderID, b.CustomerID, b.VoucherCode, itemsJSON,
		b.Subtotal, b.Discount, b.FinalAmount, b.PointsRedeemed,
		string(b.PaymentStatus), b.IssuedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return billing.ErrBillExists
		}
		return fmt.Errorf("creating bill %q: %w", b.ID, err)
	}

	return nil
}

// GetBill fetches a bill by id.
// Returns billing.ErrBillNotFound when absent.
func (r *BillRepository) GetBill(ctx context.Context, id string) (*billing.Bill, error) {
	b, err := scanBill(r.pool.QueryRow(ctx, getBillSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, billing.ErrBillNotFound
		}
		return nil, fmt.Errorf("finding bill %q: %w", id, err)
	}
	return b, nil
}

// ListPayments returns the payment history for a bill, oldest first.
func (r *BillRepository) ListPayments(ctx context.Context, billID string) ([]billing.Payment, error) {
	rows, err := r.pool.Query(ctx, listPaymentsSQL, billID)
	if err != nil {
		return nil, fmt.Errorf("listing payments for bill %q: %w", billID, err)
	}

	payments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (billing.Payment, error) {
		var (
			p      billing.Payment
			method string
		)
		err := row.Scan(&p.ID, &p.BillID, &p.Amount, &method, &p.PaidAt)
		p.Method = billing.PaymentMethod(method)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("listing payments for bill %q: %w", billID, err)
	}
	return payments, nil
}

// Settle runs the payment confirmation transaction. The bill row is locked
// for the duration, so the settle callback observes a stable state and
// concurrent confirmations serialize; the loser then fails on the status
// check inside the callback. Payment insert, Paid transition, and loyalty
// adjustment commit together or not at all.
func (r *BillRepository) Settle(ctx context.Context, billID string, settle billing.SettleFunc) (*billing.SettleOutcome, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning settlement: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	b, err := scanBill(tx.QueryRow(ctx, getBillForUpdateSQL, billID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, billing.ErrBillNotFound
		}
		return nil, fmt.Errorf("locking bill %q: %w", billID, err)
	}

	payment, adj, err := settle(b)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, createPaymentSQL,
		payment.ID, payment.BillID, payment.Amount, string(payment.Method), payment.PaidAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating payment for bill %q: %w", billID, err)
	}

	if _, err := tx.Exec(ctx, markBillPaidSQL, billID); err != nil {
		return nil, fmt.Errorf("marking bill %q paid: %w", billID, err)
	}

	outcome := &billing.SettleOutcome{Payment: payment}

	if adj != nil {
		var points int
		err := tx.QueryRow(ctx, lockLoyaltySQL, adj.CustomerID).Scan(&points)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			// Customer without a loyalty account: nothing to adjust.
		case err != nil:
			return nil, fmt.Errorf("locking loyalty account %q: %w", adj.CustomerID, err)
		default:
			ct, err := tx.Exec(ctx, adjustLoyaltySQL, adj.CustomerID, adj.Redeemed, adj.Earned)
			if err != nil {
				return nil, fmt.Errorf("adjusting loyalty account %q: %w", adj.CustomerID, err)
			}
			if ct.RowsAffected() == 0 {
				return nil, billing.ErrPointsBalanceChanged
			}
			outcome.PointsEarned = adj.Earned
			outcome.PointsSpent = adj.Redeemed
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing settlement for bill %q: %w", billID, err)
	}
	return outcome, nil
}

func scanBill(row pgx.Row) (*billing.Bill, error) {
	var (
		b         billing.Bill
		itemsJSON []byte
		status    string
	)
	err := row.Scan(
		&b.ID, &b.OrderID, &b.CustomerID, &b.VoucherCode, &itemsJSON,
		&b.Subtotal, &b.Discount, &b.FinalAmount, &b.PointsRedeemed,
		&status, &b.IssuedAt,
	)
	if err != nil {
		return nil, err
	}
	b.PaymentStatus = billing.PaymentStatus(status)

	var items []order.LineItem
	if err := json.Unmarshal(itemsJSON, &items); err != nil {
		return nil, fmt.Errorf("unmarshaling bill items: %w", err)
	}
	b.Items = items

	return &b, nil
}
