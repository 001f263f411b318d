package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpos/restobill/internal/domain/auth"
	"github.com/openpos/restobill/internal/domain/billing"
	"github.com/openpos/restobill/internal/domain/loyalty"
	"github.com/openpos/restobill/internal/domain/order"
	"github.com/openpos/restobill/internal/domain/voucher"
)

type stubOrders struct {
	orders map[string]*order.Order
}

func (s *stubOrders) GetByID(_ context.Context, id string) (*order.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

type stubVouchers struct {
	vouchers map[string]*voucher.Voucher
}

func (s *stubVouchers) Validate(_ context.Context, code string) (*voucher.Voucher, error) {
	v, ok := s.vouchers[code]
	if !ok {
		return nil, voucher.ErrNotFound
	}
	if v.Status != voucher.StatusActive {
		return nil, voucher.ErrInactive
	}
	return v, nil
}

type stubCustomers struct {
	customers map[string]*loyalty.Customer
}

func (s *stubCustomers) GetByPhone(_ context.Context, phone string) (*loyalty.Customer, error) {
	for _, c := range s.customers {
		if c.Phone == phone {
			return c, nil
		}
	}
	return nil, loyalty.ErrCustomerNotFound
}

func (s *stubCustomers) GetByID(_ context.Context, id string) (*loyalty.Customer, error) {
	c, ok := s.customers[id]
	if !ok {
		return nil, loyalty.ErrCustomerNotFound
	}
	return c, nil
}

type stubStore struct {
	bills    map[string]*billing.Bill
	byOrder  map[string]string
	payments map[string][]billing.Payment
	balances map[string]int
}

func newStubStore() *stubStore {
	return &stubStore{
		bills:    make(map[string]*billing.Bill),
		byOrder:  make(map[string]string),
		payments: make(map[string][]billing.Payment),
		balances: make(map[string]int),
	}
}

func (s *stubStore) CreateBill(_ context.Context, b *billing.Bill) error {
	if _, ok := s.byOrder[b.OrderID]; ok {
		return billing.ErrBillExists
	}
	cp := *b
	s.bills[b.ID] = &cp
	s.byOrder[b.OrderID] = b.ID
	return nil
}

func (s *stubStore) GetBill(_ context.Context, id string) (*billing.Bill, error) {
	b, ok := s.bills[id]
	if !ok {
		return nil, billing.ErrBillNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *stubStore) ListPayments(_ context.Context, billID string) ([]billing.Payment, error) {
	return s.payments[billID], nil
}

func (s *stubStore) Settle(_ context.Context, billID string, settle billing.SettleFunc) (*billing.SettleOutcome, error) {
	b, ok := s.bills[billID]
	if !ok {
		return nil, billing.ErrBillNotFound
	}
	p, adj, err := settle(b)
	if err != nil {
		return nil, err
	}
	outcome := &billing.SettleOutcome{Payment: p}
	if adj != nil {
		if balance, enrolled := s.balances[adj.CustomerID]; enrolled {
			if balance < adj.Redeemed {
				return nil, billing.ErrPointsBalanceChanged
			}
			s.balances[adj.CustomerID] = balance - adj.Redeemed + adj.Earned
			outcome.PointsEarned = adj.Earned
			outcome.PointsSpent = adj.Redeemed
		}
	}
	s.payments[billID] = append(s.payments[billID], *p)
	b.PaymentStatus = billing.StatusPaid
	return outcome, nil
}

type fixture struct {
	mux   *http.ServeMux
	store *stubStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	price := decimal.RequireFromString("25000")
	orders := &stubOrders{orders: map[string]*order.Order{
		"ord-1": {
			ID:     "ord-1",
			Status: order.StatusCompleted,
			Items: []order.LineItem{
				{ProductID: "p1", Name: "Com Tam", PriceAtOrder: price, Quantity: 2},
			},
		},
		"ord-open": {
			ID:     "ord-open",
			Status: order.StatusPending,
		},
	}}
	vouchers := &stubVouchers{vouchers: map[string]*voucher.Voucher{
		"TEN": {
			Code: "TEN", Type: voucher.TypePercent,
			Value: decimal.NewFromInt(10), Status: voucher.StatusActive,
		},
	}}
	customers := &stubCustomers{customers: map[string]*loyalty.Customer{
		"cust-1": {
			ID: "cust-1", Phone: "0901", FullName: "Nguyen Van A",
			Account: &loyalty.Account{Points: 5, Tier: "Gold"},
		},
	}}
	store := newStubStore()
	store.balances["cust-1"] = 5

	calc := billing.NewCalculator(orders, vouchers, customers)
	svc := billing.NewService(calc, store, customers)

	h := NewHandler(svc)
	mux := http.NewServeMux()
	h.Routes(mux)

	return &fixture{mux: mux, store: store}
}

// do executes a request against the mux with the given key pre-authenticated,
// bypassing the HMAC middleware the way it would have populated the context.
func (f *fixture) do(t *testing.T, key *auth.APIKeyInfo, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	if key != nil {
		r = r.WithContext(context.WithValue(r.Context(), keyContextKey{}, key))
	}

	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

var (
	fullKey = &auth.APIKeyInfo{
		ID:     "k-full",
		Scopes: []string{auth.ScopeBillingRead, auth.ScopeBillingWrite},
	}
	readOnlyKey = &auth.APIKeyInfo{
		ID:     "k-ro",
		Scopes: []string{auth.ScopeBillingRead},
	}
)

func TestCalculateBill(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, fullKey, http.MethodPost, "/api/bills/calculate",
		`{"orderId":"ord-1","customerPhone":"0901","voucherCode":"TEN","pointsToRedeem":2}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	body := decodeBody(t, w)
	assert.Equal(t, "50000.00", body["subtotal"])
	assert.Equal(t, "7000.00", body["discount"]) // 10% of 50000 plus 2 points
	assert.Equal(t, "43000.00", body["finalTotal"])
	assert.Equal(t, "Nguyen Van A", body["customerName"])
	assert.EqualValues(t, 5, body["customerAvailablePoints"])
}

func TestCalculateBill_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"missing orderId", `{}`, http.StatusBadRequest},
		{"malformed json", `{"orderId":`, http.StatusBadRequest},
		{"unknown order", `{"orderId":"nope"}`, http.StatusNotFound},
		{"order not completed", `{"orderId":"ord-open"}`, http.StatusBadRequest},
		{"unknown voucher", `{"orderId":"ord-1","voucherCode":"NOPE"}`, http.StatusNotFound},
		{"unknown customer", `{"orderId":"ord-1","customerPhone":"0999"}`, http.StatusNotFound},
		{"too many points", `{"orderId":"ord-1","customerPhone":"0901","pointsToRedeem":6}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, fullKey, http.MethodPost, "/api/bills/calculate", tt.body)
			assert.Equal(t, tt.wantCode, w.Code)

			body := decodeBody(t, w)
			assert.EqualValues(t, tt.wantCode, body["code"])
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestGenerateBill(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, fullKey, http.MethodPost, "/api/bills",
		`{"orderId":"ord-1","customerPhone":"0901"}`)

	require.Equal(t, http.StatusCreated, w.Code)

	body := decodeBody(t, w)
	assert.NotEmpty(t, body["billId"])
	assert.Equal(t, "ord-1", body["orderId"])
	assert.Equal(t, "Nguyen Van A", body["customerName"])
	assert.Equal(t, "50000.00", body["subtotal"])
	assert.Equal(t, "0.00", body["discountAmount"])
	assert.Equal(t, "50000.00", body["finalTotal"])
	assert.Equal(t, "Pending Payment", body["paymentStatus"])
}

func TestGenerateBill_DuplicateOrder(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, fullKey, http.MethodPost, "/api/bills", `{"orderId":"ord-1"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, fullKey, http.MethodPost, "/api/bills", `{"orderId":"ord-1"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGenerateBill_ReadOnlyKeyForbidden(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, readOnlyKey, http.MethodPost, "/api/bills", `{"orderId":"ord-1"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGetBillDetails(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, fullKey, http.MethodPost, "/api/bills",
		`{"orderId":"ord-1","customerPhone":"0901","pointsToRedeem":3}`)
	require.Equal(t, http.StatusCreated, w.Code)
	billID := decodeBody(t, w)["billId"].(string)

	w = f.do(t, fullKey, http.MethodGet, "/api/bills/"+billID, "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, billID, body["billId"])
	assert.Equal(t, "Pending Payment", body["paymentStatus"])
	assert.EqualValues(t, 3, body["pointsRedeemed"])

	cust, ok := body["customer"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Nguyen Van A", cust["name"])
	assert.Equal(t, "0901", cust["phone"])

	items, ok := body["items"].([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, "Com Tam", item["name"])
	assert.Equal(t, "25000.00", item["priceAtOrder"])
	assert.EqualValues(t, 2, item["quantity"])

	assert.Empty(t, body["payments"])

	_, err := time.Parse(timeFormat, body["issuedAt"].(string))
	assert.NoError(t, err)
}

func TestGetBillDetails_NotFound(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, fullKey, http.MethodGet, "/api/bills/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConfirmPayment(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, fullKey, http.MethodPost, "/api/bills",
		`{"orderId":"ord-1","customerPhone":"0901","pointsToRedeem":5}`)
	require.Equal(t, http.StatusCreated, w.Code)
	billID := decodeBody(t, w)["billId"].(string)

	w = f.do(t, fullKey, http.MethodPost, "/api/bills/"+billID+"/payment", `{"method":"Cash"}`)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, billID, body["billId"])
	assert.NotEmpty(t, body["paymentId"])
	assert.Equal(t, "Paid", body["newStatus"])
	assert.EqualValues(t, 5, body["pointsEarned"]) // subtotal 50000 / 10000
	assert.EqualValues(t, 5, body["pointsSpent"])

	// Payment history now shows the settlement at the frozen final amount.
	w = f.do(t, fullKey, http.MethodGet, "/api/bills/"+billID, "")
	require.Equal(t, http.StatusOK, w.Code)
	details := decodeBody(t, w)
	assert.Equal(t, "Paid", details["paymentStatus"])
	payments := details["payments"].([]any)
	require.Len(t, payments, 1)
	payment := payments[0].(map[string]any)
	assert.Equal(t, "45000.00", payment["amount"])
	assert.Equal(t, "Cash", payment["method"])
}

func TestConfirmPayment_Errors(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, fullKey, http.MethodPost, "/api/bills", `{"orderId":"ord-1"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	billID := decodeBody(t, w)["billId"].(string)

	t.Run("unsupported method", func(t *testing.T) {
		w := f.do(t, fullKey, http.MethodPost, "/api/bills/"+billID+"/payment", `{"method":"Barter"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing bill", func(t *testing.T) {
		w := f.do(t, fullKey, http.MethodPost, "/api/bills/missing/payment", `{"method":"Cash"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("read-only key", func(t *testing.T) {
		w := f.do(t, readOnlyKey, http.MethodPost, "/api/bills/"+billID+"/payment", `{"method":"Cash"}`)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("already paid", func(t *testing.T) {
		w := f.do(t, fullKey, http.MethodPost, "/api/bills/"+billID+"/payment", `{"method":"Banking"}`)
		require.Equal(t, http.StatusOK, w.Code)

		w = f.do(t, fullKey, http.MethodPost, "/api/bills/"+billID+"/payment", `{"method":"Banking"}`)
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestUnauthenticatedRequestForbidden(t *testing.T) {
	f := newFixture(t)

	// No key in context: the service rejects the nil capability.
	w := f.do(t, nil, http.MethodPost, "/api/bills/calculate", `{"orderId":"ord-1"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

type stubKeyRepo struct {
	keys map[string]*auth.APIKeyInfo
}

func (s *stubKeyRepo) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	k, ok := s.keys[hash]
	if !ok {
		return nil, fmt.Errorf("api key not found")
	}
	return k, nil
}

func TestAPIKeyAuth(t *testing.T) {
	pepper := []byte("test-pepper")
	hashOf := func(key string) string {
		mac := hmac.New(sha256.New, pepper)
		mac.Write([]byte(key))
		return hex.EncodeToString(mac.Sum(nil))
	}

	validHash := hashOf("secret-key")
	repo := &stubKeyRepo{keys: map[string]*auth.APIKeyInfo{
		validHash: {
			ID:      "k1",
			KeyHash: validHash,
			Scopes:  []string{auth.ScopeBillingRead},
		},
	}}

	var gotKey *auth.APIKeyInfo
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = KeyFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	protected := APIKeyAuth(repo, pepper)(inner)

	t.Run("valid key", func(t *testing.T) {
		gotKey = nil
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(apiKeyHeader, "secret-key")
		w := httptest.NewRecorder()

		protected.ServeHTTP(w, r)

		assert.Equal(t, http.StatusNoContent, w.Code)
		require.NotNil(t, gotKey)
		assert.Equal(t, "k1", gotKey.ID)
	})

	t.Run("missing key", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		w := httptest.NewRecorder()

		protected.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown key", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(apiKeyHeader, "wrong-key")
		w := httptest.NewRecorder()

		protected.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
