package voucher

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported voucher discount strategies.
type Type string

const (
	// TypePercent applies a percentage of the subtotal.
	TypePercent Type = "PERCENT"
	// TypeFixedAmount applies a flat monetary discount. The amount may exceed
	// the subtotal; the final total is clamped at zero by the calculator.
	TypeFixedAmount Type = "FIXED_AMOUNT"
)

// Status marks whether a voucher is usable at all, independent of its
// validity window.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

var (
	// ErrNotFound is returned when no voucher exists for a code.
	ErrNotFound = errors.New("voucher not found")
	// ErrInactive is returned when the voucher exists but is disabled.
	ErrInactive = errors.New("voucher is inactive")
	// ErrNotStarted is returned when today precedes the validity window.
	ErrNotStarted = errors.New("voucher is not yet valid")
	// ErrExpired is returned when today is past the validity window.
	ErrExpired = errors.New("voucher expired")
)

var hundred = decimal.NewFromInt(100)

// Voucher is a coded discount instrument with a calendar validity window.
// StartDate and EndDate are dates (midnight UTC); the window is inclusive
// on both ends.
type Voucher struct {
	Code      string
	Type      Type
	Value     decimal.Decimal
	StartDate time.Time
	EndDate   time.Time
	Status    Status
}

// Discount returns the discount this voucher grants on the given subtotal,
// rounded to 2 decimal places. Fixed-amount vouchers are not capped here:
// the bill calculator clamps the final total at zero instead, so the frozen
// discount reflects the voucher's face value.
func (v *Voucher) Discount(subtotal decimal.Decimal) (decimal.Decimal, error) {
	switch v.Type {
	case TypePercent:
		return subtotal.Mul(v.Value).Div(hundred).Round(2), nil
	case TypeFixedAmount:
		return v.Value.Round(2), nil
	default:
		return decimal.Zero, errors.Errorf("unsupported voucher type: %q", v.Type)
	}
}

// Repository provides voucher lookups by code.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Voucher, error)
}
