package loyalty

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrCustomerNotFound is returned when no customer exists for a phone number.
var ErrCustomerNotFound = errors.New("customer not found")

// Fixed conversion rates between currency and loyalty points.
var (
	// PointValue is the currency value of one redeemed point.
	PointValue = decimal.NewFromInt(1000)
	// EarnRate is the currency amount that accrues one point.
	EarnRate = decimal.NewFromInt(10000)
)

// Customer is a read-only view of a customer record, keyed by phone number.
// Account is nil for customers not enrolled in the loyalty program.
type Customer struct {
	ID       string
	Phone    string
	FullName string
	Account  *Account
}

// Account holds a customer's loyalty point balance.
type Account struct {
	Points int
	Tier   string
}

// InsufficientPointsError indicates a redemption request exceeding the
// customer's available balance.
type InsufficientPointsError struct {
	Requested int
	Available int
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("not enough points: requested %d, available %d", e.Requested, e.Available)
}

// RedemptionDiscount returns the currency value of redeeming the given
// number of points.
func RedemptionDiscount(points int) decimal.Decimal {
	return PointValue.Mul(decimal.NewFromInt(int64(points)))
}

// EarnedPoints returns the points accrued for a bill with the given
// subtotal: floor(subtotal / EarnRate). Accrual is computed from the
// pre-discount subtotal, matching the long-standing POS behaviour.
func EarnedPoints(subtotal decimal.Decimal) int {
	if subtotal.Sign() <= 0 {
		return 0
	}
	return int(subtotal.Div(EarnRate).IntPart())
}

// Adjustment is a balance change applied when a bill is paid: redeemed
// points are deducted and earned points are credited in one step.
type Adjustment struct {
	CustomerID string
	Redeemed   int
	Earned     int
}

// CustomerProvider supplies customer and loyalty records to the billing core.
type CustomerProvider interface {
	GetByPhone(ctx context.Context, phone string) (*Customer, error)
	GetByID(ctx context.Context, id string) (*Customer, error)
}
