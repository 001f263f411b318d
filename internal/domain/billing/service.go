package billing

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/openpos/restobill/internal/domain/auth"
	"github.com/openpos/restobill/internal/domain/loyalty"
)

// GenerateResult is the outcome of bill generation.
type GenerateResult struct {
	Bill     *Bill
	Customer *loyalty.Customer
}

// BillDetails is the full breakdown of an issued bill.
type BillDetails struct {
	Bill     *Bill
	Customer *loyalty.Customer
	Payments []Payment
}

// PaymentConfirmation is the outcome of confirming payment for a bill.
type PaymentConfirmation struct {
	BillID       string
	PaymentID    string
	NewStatus    PaymentStatus
	PointsEarned int
	PointsSpent  int
}

// Service implements the two-phase billing workflow: generate a frozen bill
// from a completed order, then confirm its payment exactly once. Every
// operation takes the caller's API key as an authorization capability.
type Service struct {
	calc      *Calculator
	store     Store
	customers loyalty.CustomerProvider

	now   func() time.Time
	newID func() string
}

// NewService creates a billing Service.
func NewService(calc *Calculator, store Store, customers loyalty.CustomerProvider) *Service {
	return &Service{
		calc:      calc,
		store:     store,
		customers: customers,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
}

// Preview runs the bill calculation without persisting anything. It uses the
// exact routine Generate uses, so previewed numbers match issued bills.
func (s *Service) Preview(ctx context.Context, key *auth.APIKeyInfo, req CalculateRequest) (*Calculation, error) {
	if err := key.Require(auth.ScopeBillingRead); err != nil {
		return nil, err
	}
	return s.calc.Calculate(ctx, req)
}

// Generate re-runs the calculation and freezes the result into a new bill in
// the PendingPayment state. The store's uniqueness guard on the order
// reference makes generation at-most-once per order: a concurrent duplicate
// fails with ErrBillExists.
func (s *Service) Generate(ctx context.Context, key *auth.APIKeyInfo, req CalculateRequest) (*GenerateResult, error) {
	if err := key.Require(auth.ScopeBillingWrite); err != nil {
		return nil, err
	}

	calc, err := s.calc.Calculate(ctx, req)
	if err != nil {
		return nil, err
	}

	b := &Bill{
		ID:             s.newID(),
		OrderID:        calc.Order.ID,
		Items:          calc.Order.Items,
		Subtotal:       calc.Subtotal,
		Discount:       calc.Discount,
		FinalAmount:    calc.FinalTotal,
		PointsRedeemed: calc.PointsRedeemed,
		PaymentStatus:  StatusPendingPayment,
		IssuedAt:       s.now(),
	}
	if calc.Customer != nil {
		b.CustomerID = &calc.Customer.ID
	}
	if calc.Voucher != nil {
		b.VoucherCode = &calc.Voucher.Code
	}

	if err := s.store.CreateBill(ctx, b); err != nil {
		if errors.Is(err, ErrBillExists) {
			return nil, ErrBillExists
		}
		return nil, errors.Wrap(err, "create bill")
	}

	return &GenerateResult{Bill: b, Customer: calc.Customer}, nil
}

// GetDetails returns the bill with its frozen line items, customer info,
// and payment history.
func (s *Service) GetDetails(ctx context.Context, key *auth.APIKeyInfo, billID string) (*BillDetails, error) {
	if err := key.Require(auth.ScopeBillingRead); err != nil {
		return nil, err
	}

	b, err := s.store.GetBill(ctx, billID)
	if err != nil {
		return nil, err
	}

	details := &BillDetails{Bill: b}

	if b.CustomerID != nil {
		cust, err := s.customers.GetByID(ctx, *b.CustomerID)
		if err != nil && !errors.Is(err, loyalty.ErrCustomerNotFound) {
			return nil, errors.Wrap(err, "get customer")
		}
		details.Customer = cust
	}

	payments, err := s.store.ListPayments(ctx, billID)
	if err != nil {
		return nil, errors.Wrap(err, "list payments")
	}
	details.Payments = payments

	return details, nil
}

// ConfirmPayment settles a pending bill: it records a payment for the bill's
// final amount, transitions the bill to Paid, and adjusts the customer's
// loyalty balance (deduct redeemed, credit earned), all in one storage
// transaction. Confirmation is guarded by the bill state, not idempotent:
// a second call fails with ErrBillNotPending.
func (s *Service) ConfirmPayment(ctx context.Context, key *auth.APIKeyInfo, billID string, method PaymentMethod) (*PaymentConfirmation, error) {
	if err := key.Require(auth.ScopeBillingWrite); err != nil {
		return nil, err
	}

	outcome, err := s.store.Settle(ctx, billID, func(b *Bill) (*Payment, *loyalty.Adjustment, error) {
		if b.PaymentStatus != StatusPendingPayment {
			return nil, nil, ErrBillNotPending
		}
		if !method.Valid() {
			return nil, nil, ErrUnsupportedPaymentMethod
		}

		p := &Payment{
			ID:     s.newID(),
			BillID: b.ID,
			Amount: b.FinalAmount,
			Method: method,
			PaidAt: s.now(),
		}

		var adj *loyalty.Adjustment
		if b.CustomerID != nil {
			// Earned points accrue from the pre-discount subtotal.
			adj = &loyalty.Adjustment{
				CustomerID: *b.CustomerID,
				Redeemed:   b.PointsRedeemed,
				Earned:     loyalty.EarnedPoints(b.Subtotal),
			}
		}
		return p, adj, nil
	})
	if err != nil {
		return nil, err
	}

	return &PaymentConfirmation{
		BillID:       billID,
		PaymentID:    outcome.Payment.ID,
		NewStatus:    StatusPaid,
		PointsEarned: outcome.PointsEarned,
		PointsSpent:  outcome.PointsSpent,
	}, nil
}
