package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openpos/restobill/internal/domain/loyalty"
	"github.com/openpos/restobill/internal/domain/order"
)

// PaymentStatus is the two-state lifecycle of a bill. A bill starts as
// PendingPayment and transitions to Paid exactly once; there are no other
// transitions.
type PaymentStatus string

const (
	StatusPendingPayment PaymentStatus = "PendingPayment"
	StatusPaid           PaymentStatus = "Paid"
)

// Display returns the human-readable form used in API responses.
func (s PaymentStatus) Display() string {
	if s == StatusPendingPayment {
		return "Pending Payment"
	}
	return string(s)
}

// PaymentMethod enumerates the accepted settlement methods.
type PaymentMethod string

const (
	MethodCash    PaymentMethod = "Cash"
	MethodBanking PaymentMethod = "Banking"
)

// Valid reports whether the method is one of the accepted values.
func (m PaymentMethod) Valid() bool {
	return m == MethodCash || m == MethodBanking
}

// Bill is the frozen monetary record generated from a completed order.
// Every amount is a snapshot taken at issuance: later voucher or price
// changes never alter an issued bill.
type Bill struct {
	ID             string
	OrderID        string
	CustomerID     *string
	VoucherCode    *string
	Items          []order.LineItem
	Subtotal       decimal.Decimal
	Discount       decimal.Decimal
	FinalAmount    decimal.Decimal
	PointsRedeemed int
	PaymentStatus  PaymentStatus
	IssuedAt       time.Time
}

// Payment records the settlement of a bill. At most one payment exists
// per bill.
type Payment struct {
	ID     string
	BillID string
	Amount decimal.Decimal
	Method PaymentMethod
	PaidAt time.Time
}

// SettleFunc inspects the bill locked inside the settlement transaction and
// produces the payment to record plus the loyalty adjustment to apply, or a
// domain error aborting the transaction.
type SettleFunc func(b *Bill) (*Payment, *loyalty.Adjustment, error)

// SettleOutcome reports what the settlement transaction actually committed.
// The points fields are zero when the bill's customer has no loyalty account.
type SettleOutcome struct {
	Payment      *Payment
	PointsEarned int
	PointsSpent  int
}

// Store persists bills and payments and owns the transactional boundaries
// the billing workflow relies on: one bill per order enforced on create, and
// payment recording, status transition, and loyalty adjustment committed
// atomically in Settle.
type Store interface {
	// CreateBill persists a new bill. Returns ErrBillExists when a bill
	// already exists for the same order.
	CreateBill(ctx context.Context, b *Bill) error

	// GetBill fetches a bill by ID. Returns ErrBillNotFound when absent.
	GetBill(ctx context.Context, id string) (*Bill, error)

	// ListPayments returns the payment history for a bill, oldest first.
	ListPayments(ctx context.Context, billID string) ([]Payment, error)

	// Settle runs the payment confirmation transaction: it locks the bill,
	// invokes settle, then persists the payment, flips the bill to Paid, and
	// applies the loyalty adjustment, all atomically. Returns ErrBillNotFound
	// when the bill is absent and ErrPointsBalanceChanged when the customer's
	// balance no longer covers the redeemed points.
	Settle(ctx context.Context, billID string, settle SettleFunc) (*SettleOutcome, error)
}
