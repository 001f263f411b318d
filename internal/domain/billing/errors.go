package billing

import "github.com/go-faster/errors"

// Sentinel errors for the billing workflow. The HTTP layer maps these to
// status codes; nothing in the core retries or swallows them.
var (
	// ErrOrderNotCompleted rejects calculation for orders that are not in
	// the Completed state.
	ErrOrderNotCompleted = errors.New("order is not completed")

	// ErrBillNotFound is returned when a requested bill does not exist.
	ErrBillNotFound = errors.New("bill not found")

	// ErrBillExists is returned when a bill was already generated for the
	// order. Backed by the unique constraint on the order reference, so
	// concurrent generations lose with this error instead of duplicating.
	ErrBillExists = errors.New("bill already exists for this order")

	// ErrBillNotPending rejects payment confirmation for any bill that is
	// not awaiting payment. A retried confirmation lands here.
	ErrBillNotPending = errors.New("bill is not pending payment")

	// ErrUnsupportedPaymentMethod rejects methods outside Cash/Banking.
	ErrUnsupportedPaymentMethod = errors.New("unsupported payment method")

	// ErrPointsBalanceChanged aborts settlement when the customer's point
	// balance no longer covers the points redeemed on the bill.
	ErrPointsBalanceChanged = errors.New("points balance changed since bill was issued")
)
