package billing

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/openpos/restobill/internal/domain/loyalty"
	"github.com/openpos/restobill/internal/domain/order"
	"github.com/openpos/restobill/internal/domain/voucher"
)

// CalculateRequest holds the input for a bill calculation. VoucherCode and
// CustomerPhone are optional; empty means absent.
type CalculateRequest struct {
	OrderID        string
	CustomerPhone  string
	VoucherCode    string
	PointsToRedeem int
}

// Calculation is the result of pricing an order with discounts applied.
// The same values are shown in previews and frozen into generated bills.
type Calculation struct {
	Order           *order.Order
	Customer        *loyalty.Customer
	Voucher         *voucher.Voucher
	Subtotal        decimal.Decimal
	VoucherDiscount decimal.Decimal
	PointsDiscount  decimal.Decimal
	Discount        decimal.Decimal
	FinalTotal      decimal.Decimal
	PointsRedeemed  int
}

// Calculator prices a completed order: subtotal, at most one voucher
// discount, and an optional loyalty-point redemption. It performs no writes,
// so the preview and generation paths share it and are guaranteed to agree.
type Calculator struct {
	orders    order.Provider
	vouchers  voucher.Validator
	customers loyalty.CustomerProvider
}

// NewCalculator creates a Calculator with the required collaborators.
func NewCalculator(
	orders order.Provider,
	vouchers voucher.Validator,
	customers loyalty.CustomerProvider,
) *Calculator {
	return &Calculator{
		orders:    orders,
		vouchers:  vouchers,
		customers: customers,
	}
}

// Calculate resolves the order, voucher, and customer, validates each, and
// combines them into a Calculation. All currency arithmetic uses fixed-point
// decimals rounded to 2 places; the final total never goes below zero.
func (c *Calculator) Calculate(ctx context.Context, req CalculateRequest) (*Calculation, error) {
	o, err := c.orders.GetByID(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrap(err, "get order")
	}
	if o.Status != order.StatusCompleted {
		return nil, ErrOrderNotCompleted
	}

	subtotal := o.Subtotal()

	calc := &Calculation{
		Order:           o,
		Subtotal:        subtotal,
		VoucherDiscount: decimal.Zero,
		PointsDiscount:  decimal.Zero,
	}

	if req.VoucherCode != "" {
		vc, err := c.vouchers.Validate(ctx, req.VoucherCode)
		if err != nil {
			return nil, err
		}
		discount, err := vc.Discount(subtotal)
		if err != nil {
			return nil, errors.Wrap(err, "voucher discount")
		}
		calc.Voucher = vc
		calc.VoucherDiscount = discount
	}

	if req.CustomerPhone != "" {
		cust, err := c.customers.GetByPhone(ctx, req.CustomerPhone)
		if err != nil {
			if errors.Is(err, loyalty.ErrCustomerNotFound) {
				return nil, loyalty.ErrCustomerNotFound
			}
			return nil, errors.Wrap(err, "get customer")
		}
		calc.Customer = cust
	}

	// Points can only be redeemed by an enrolled customer; otherwise the
	// requested amount is forced to zero.
	points := req.PointsToRedeem
	if points < 0 {
		points = 0
	}
	if calc.Customer == nil || calc.Customer.Account == nil {
		points = 0
	}
	if points > 0 {
		available := calc.Customer.Account.Points
		if points > available {
			return nil, &loyalty.InsufficientPointsError{
				Requested: points,
				Available: available,
			}
		}
		calc.PointsDiscount = loyalty.RedemptionDiscount(points)
	}
	calc.PointsRedeemed = points

	calc.Discount = calc.VoucherDiscount.Add(calc.PointsDiscount).Round(2)

	total := subtotal.Sub(calc.Discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	calc.FinalTotal = total.Round(2)

	return calc, nil
}
