package billing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpos/restobill/internal/domain/auth"
)

type mockStore struct {
	bills    map[string]*Bill
	byOrder  map[string]string
	payments map[string][]Payment
	balances map[string]int
}

func newMockStore() *mockStore {
	return &mockStore{
		bills:    make(map[string]*Bill),
		byOrder:  make(map[string]string),
		payments: make(map[string][]Payment),
		balances: make(map[string]int),
	}
}

func (m *mockStore) CreateBill(_ context.Context, b *Bill) error {
	if _, ok := m.byOrder[b.OrderID]; ok {
		return ErrBillExists
	}
	cp := *b
	m.bills[b.ID] = &cp
	m.byOrder[b.OrderID] = b.ID
	return nil
}

func (m *mockStore) GetBill(_ context.Context, id string) (*Bill, error) {
	b, ok := m.bills[id]
	if !ok {
		return nil, ErrBillNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *mockStore) ListPayments(_ context.Context, billID string) ([]Payment, error) {
	return m.payments[billID], nil
}

func (m *mockStore) Settle(_ context.Context, billID string, settle SettleFunc) (*SettleOutcome, error) {
	b, ok := m.bills[billID]
	if !ok {
		return nil, ErrBillNotFound
	}

	p, adj, err := settle(b)
	if err != nil {
		return nil, err
	}

	outcome := &SettleOutcome{Payment: p}
	if adj != nil {
		balance, enrolled := m.balances[adj.CustomerID]
		if enrolled {
			if balance < adj.Redeemed {
				return nil, ErrPointsBalanceChanged
			}
			m.balances[adj.CustomerID] = balance - adj.Redeemed + adj.Earned
			outcome.PointsEarned = adj.Earned
			outcome.PointsSpent = adj.Redeemed
		}
	}

	m.payments[billID] = append(m.payments[billID], *p)
	b.PaymentStatus = StatusPaid
	return outcome, nil
}

var (
	readKey  = &auth.APIKeyInfo{ID: "k-read", Scopes: []string{auth.ScopeBillingRead}}
	writeKey = &auth.APIKeyInfo{ID: "k-write", Scopes: []string{auth.ScopeBillingRead, auth.ScopeBillingWrite}}
)

func testService(store *mockStore) *Service {
	calc, _, _, customers := testCalculator()
	svc := NewService(calc, store, customers)
	svc.now = func() time.Time { return time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC) }
	n := 0
	svc.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return svc
}

func TestService_Generate(t *testing.T) {
	store := newMockStore()
	svc := testService(store)

	res, err := svc.Generate(context.Background(), writeKey, CalculateRequest{
		OrderID:       "ord-100",
		CustomerPhone: "0901",
		VoucherCode:   "TEN",
	})
	require.NoError(t, err)

	b := res.Bill
	assert.Equal(t, "id-1", b.ID)
	assert.Equal(t, "ord-100", b.OrderID)
	require.NotNil(t, b.CustomerID)
	assert.Equal(t, "cust-1", *b.CustomerID)
	require.NotNil(t, b.VoucherCode)
	assert.Equal(t, "TEN", *b.VoucherCode)
	assert.Len(t, b.Items, 2)
	assert.Equal(t, "100.00", b.Subtotal.StringFixed(2))
	assert.Equal(t, "10.00", b.Discount.StringFixed(2))
	assert.Equal(t, "90.00", b.FinalAmount.StringFixed(2))
	assert.Equal(t, StatusPendingPayment, b.PaymentStatus)
	require.NotNil(t, res.Customer)
	assert.Equal(t, "Nguyen Van A", res.Customer.FullName)

	stored, err := store.GetBill(context.Background(), "id-1")
	require.NoError(t, err)
	assert.Equal(t, b.OrderID, stored.OrderID)
}

func TestService_GenerateTwiceSameOrder(t *testing.T) {
	store := newMockStore()
	svc := testService(store)
	req := CalculateRequest{OrderID: "ord-100"}

	_, err := svc.Generate(context.Background(), writeKey, req)
	require.NoError(t, err)

	_, err = svc.Generate(context.Background(), writeKey, req)
	require.ErrorIs(t, err, ErrBillExists)
}

func TestService_GenerateAnonymous(t *testing.T) {
	store := newMockStore()
	svc := testService(store)

	res, err := svc.Generate(context.Background(), writeKey, CalculateRequest{OrderID: "ord-100"})
	require.NoError(t, err)

	assert.Nil(t, res.Bill.CustomerID)
	assert.Nil(t, res.Bill.VoucherCode)
	assert.Nil(t, res.Customer)
}

func TestService_GetDetails(t *testing.T) {
	store := newMockStore()
	svc := testService(store)

	res, err := svc.Generate(context.Background(), writeKey, CalculateRequest{
		OrderID:       "ord-100",
		CustomerPhone: "0901",
	})
	require.NoError(t, err)

	details, err := svc.GetDetails(context.Background(), readKey, res.Bill.ID)
	require.NoError(t, err)

	assert.Equal(t, res.Bill.ID, details.Bill.ID)
	require.NotNil(t, details.Customer)
	assert.Equal(t, "cust-1", details.Customer.ID)
	assert.Empty(t, details.Payments)
}

func TestService_GetDetailsMissing(t *testing.T) {
	svc := testService(newMockStore())

	_, err := svc.GetDetails(context.Background(), readKey, "nope")
	require.ErrorIs(t, err, ErrBillNotFound)
}

func TestService_ConfirmPayment(t *testing.T) {
	store := newMockStore()
	store.balances["cust-1"] = 5
	svc := testService(store)

	res, err := svc.Generate(context.Background(), writeKey, CalculateRequest{
		OrderID:        "ord-vnd",
		CustomerPhone:  "0901",
		PointsToRedeem: 5,
	})
	require.NoError(t, err)

	conf, err := svc.ConfirmPayment(context.Background(), writeKey, res.Bill.ID, MethodCash)
	require.NoError(t, err)

	assert.Equal(t, res.Bill.ID, conf.BillID)
	assert.NotEmpty(t, conf.PaymentID)
	assert.Equal(t, StatusPaid, conf.NewStatus)
	// Subtotal 25000 earns floor(25000/10000) = 2 points.
	assert.Equal(t, 2, conf.PointsEarned)
	assert.Equal(t, 5, conf.PointsSpent)
	assert.Equal(t, 2, store.balances["cust-1"])

	details, err := svc.GetDetails(context.Background(), readKey, res.Bill.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, details.Bill.PaymentStatus)
	require.Len(t, details.Payments, 1)
	assert.Equal(t, "20000.00", details.Payments[0].Amount.StringFixed(2))
	assert.Equal(t, MethodCash, details.Payments[0].Method)
}

func TestService_ConfirmPaymentTwice(t *testing.T) {
	store := newMockStore()
	svc := testService(store)

	res, err := svc.Generate(context.Background(), writeKey, CalculateRequest{OrderID: "ord-100"})
	require.NoError(t, err)

	_, err = svc.ConfirmPayment(context.Background(), writeKey, res.Bill.ID, MethodBanking)
	require.NoError(t, err)

	_, err = svc.ConfirmPayment(context.Background(), writeKey, res.Bill.ID, MethodBanking)
	require.ErrorIs(t, err, ErrBillNotPending)
}

func TestService_ConfirmPaymentBadMethod(t *testing.T) {
	store := newMockStore()
	svc := testService(store)

	res, err := svc.Generate(context.Background(), writeKey, CalculateRequest{OrderID: "ord-100"})
	require.NoError(t, err)

	_, err = svc.ConfirmPayment(context.Background(), writeKey, res.Bill.ID, PaymentMethod("Barter"))
	require.ErrorIs(t, err, ErrUnsupportedPaymentMethod)

	// The failed attempt must not have settled the bill.
	details, err := svc.GetDetails(context.Background(), readKey, res.Bill.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPendingPayment, details.Bill.PaymentStatus)
}

func TestService_ConfirmPaymentMissingBill(t *testing.T) {
	svc := testService(newMockStore())

	_, err := svc.ConfirmPayment(context.Background(), writeKey, "nope", MethodCash)
	require.ErrorIs(t, err, ErrBillNotFound)
}

func TestService_ConfirmPaymentBalanceChanged(t *testing.T) {
	store := newMockStore()
	store.balances["cust-1"] = 5
	svc := testService(store)

	res, err := svc.Generate(context.Background(), writeKey, CalculateRequest{
		OrderID:        "ord-vnd",
		CustomerPhone:  "0901",
		PointsToRedeem: 5,
	})
	require.NoError(t, err)

	// Points spent elsewhere between generation and confirmation.
	store.balances["cust-1"] = 3

	_, err = svc.ConfirmPayment(context.Background(), writeKey, res.Bill.ID, MethodCash)
	require.ErrorIs(t, err, ErrPointsBalanceChanged)
}

func TestService_ScopeChecks(t *testing.T) {
	store := newMockStore()
	svc := testService(store)

	res, err := svc.Generate(context.Background(), writeKey, CalculateRequest{OrderID: "ord-100"})
	require.NoError(t, err)

	t.Run("write scope required for generate", func(t *testing.T) {
		_, err := svc.Generate(context.Background(), readKey, CalculateRequest{OrderID: "ord-vnd"})
		require.ErrorIs(t, err, auth.ErrPermissionDenied)
	})

	t.Run("write scope required for confirm", func(t *testing.T) {
		_, err := svc.ConfirmPayment(context.Background(), readKey, res.Bill.ID, MethodCash)
		require.ErrorIs(t, err, auth.ErrPermissionDenied)
	})

	t.Run("nil key denied everywhere", func(t *testing.T) {
		_, err := svc.Preview(context.Background(), nil, CalculateRequest{OrderID: "ord-100"})
		require.ErrorIs(t, err, auth.ErrPermissionDenied)

		_, err = svc.GetDetails(context.Background(), nil, res.Bill.ID)
		require.ErrorIs(t, err, auth.ErrPermissionDenied)
	})
}

func TestService_PreviewMatchesGenerate(t *testing.T) {
	store := newMockStore()
	svc := testService(store)
	req := CalculateRequest{
		OrderID:        "ord-vnd",
		CustomerPhone:  "0901",
		VoucherCode:    "TEN",
		PointsToRedeem: 2,
	}

	preview, err := svc.Preview(context.Background(), readKey, req)
	require.NoError(t, err)

	res, err := svc.Generate(context.Background(), writeKey, req)
	require.NoError(t, err)

	assert.True(t, preview.Subtotal.Equal(res.Bill.Subtotal))
	assert.True(t, preview.Discount.Equal(res.Bill.Discount))
	assert.True(t, preview.FinalTotal.Equal(res.Bill.FinalAmount))
	assert.Equal(t, preview.PointsRedeemed, res.Bill.PointsRedeemed)
}

var _ Store = (*mockStore)(nil)
