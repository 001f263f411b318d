package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/jx"

	"github.com/openpos/restobill/internal/domain/billing"
	"github.com/openpos/restobill/internal/domain/loyalty"
)

// maxBodySize caps request bodies at 1 MiB.
const maxBodySize = 1 << 20

// decodeBillRequest parses the shared calculate/generate request body.
func decodeBillRequest(r *http.Request) (billing.CalculateRequest, error) {
	var req billing.CalculateRequest

	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodySize))
	if err != nil {
		return req, err
	}

	d := jx.DecodeBytes(body)
	err = d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "orderId":
			req.OrderID, err = d.Str()
		case "customerPhone":
			req.CustomerPhone, err = d.Str()
		case "voucherCode":
			req.VoucherCode, err = d.Str()
		case "pointsToRedeem":
			req.PointsToRedeem, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	return req, err
}

// encodeMoney writes a fixed-point currency field with 2 fraction digits.
func encodeMoney(e *jx.Encoder, field string, v interface{ StringFixed(int32) string }) {
	e.FieldStart(field)
	e.Str(v.StringFixed(2))
}

func encodeCustomer(e *jx.Encoder, cust *loyalty.Customer) {
	e.FieldStart("customerName")
	e.Str(cust.FullName)
	if cust.Account != nil {
		e.FieldStart("customerAvailablePoints")
		e.Int(cust.Account.Points)
	}
}

// CalculateBill handles POST /api/bills/calculate: the read-only preview
// path. It runs the same calculation bill generation runs.
func (h *Handler) CalculateBill(w http.ResponseWriter, r *http.Request) {
	req, err := decodeBillRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrderID == "" {
		writeError(w, http.StatusBadRequest, "orderId required")
		return
	}

	calc, err := h.billing.Preview(r.Context(), KeyFromContext(r.Context()), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	encodeMoney(&e, "subtotal", calc.Subtotal)
	encodeMoney(&e, "discount", calc.Discount)
	encodeMoney(&e, "finalTotal", calc.FinalTotal)
	if calc.Customer != nil {
		encodeCustomer(&e, calc.Customer)
	}
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}

// GenerateBill handles POST /api/bills: freezes the calculation into a new
// bill in the PendingPayment state.
func (h *Handler) GenerateBill(w http.ResponseWriter, r *http.Request) {
	req, err := decodeBillRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrderID == "" {
		writeError(w, http.StatusBadRequest, "orderId required")
		return
	}

	result, err := h.billing.Generate(r.Context(), KeyFromContext(r.Context()), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	b := result.Bill

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("billId")
	e.Str(b.ID)
	e.FieldStart("orderId")
	e.Str(b.OrderID)
	if result.Customer != nil {
		e.FieldStart("customerName")
		e.Str(result.Customer.FullName)
	}
	encodeMoney(&e, "subtotal", b.Subtotal)
	encodeMoney(&e, "discountAmount", b.Discount)
	encodeMoney(&e, "finalTotal", b.FinalAmount)
	e.FieldStart("paymentStatus")
	e.Str(b.PaymentStatus.Display())
	e.ObjEnd()
	writeJSON(w, http.StatusCreated, &e)
}

// GetBillDetails handles GET /api/bills/{id}: the full breakdown including
// frozen line items, customer info, and payment history.
func (h *Handler) GetBillDetails(w http.ResponseWriter, r *http.Request) {
	details, err := h.billing.GetDetails(r.Context(), KeyFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	b := details.Bill

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("billId")
	e.Str(b.ID)
	e.FieldStart("orderId")
	e.Str(b.OrderID)
	e.FieldStart("paymentStatus")
	e.Str(b.PaymentStatus.Display())
	e.FieldStart("issuedAt")
	e.Str(b.IssuedAt.Format(timeFormat))
	encodeMoney(&e, "subtotal", b.Subtotal)
	encodeMoney(&e, "discount", b.Discount)
	encodeMoney(&e, "finalAmount", b.FinalAmount)
	e.FieldStart("pointsRedeemed")
	e.Int(b.PointsRedeemed)
	if b.VoucherCode != nil {
		e.FieldStart("voucherCode")
		e.Str(*b.VoucherCode)
	}
	if details.Customer != nil {
		e.FieldStart("customer")
		e.ObjStart()
		e.FieldStart("name")
		e.Str(details.Customer.FullName)
		e.FieldStart("phone")
		e.Str(details.Customer.Phone)
		if details.Customer.Account != nil {
			e.FieldStart("points")
			e.Int(details.Customer.Account.Points)
		}
		e.ObjEnd()
	}

	e.FieldStart("items")
	e.ArrStart()
	for _, item := range b.Items {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(item.ProductID)
		e.FieldStart("name")
		e.Str(item.Name)
		encodeMoney(&e, "priceAtOrder", item.PriceAtOrder)
		e.FieldStart("quantity")
		e.Int(item.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("payments")
	e.ArrStart()
	for _, p := range details.Payments {
		e.ObjStart()
		e.FieldStart("paymentId")
		e.Str(p.ID)
		encodeMoney(&e, "amount", p.Amount)
		e.FieldStart("method")
		e.Str(string(p.Method))
		e.FieldStart("paidAt")
		e.Str(p.PaidAt.Format(timeFormat))
		e.ObjEnd()
	}
	e.ArrEnd()

	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}

// ConfirmPayment handles POST /api/bills/{id}/payment: the second phase of
// the workflow. It either settles the bill exactly once or reports why not.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var method string
	d := jx.DecodeBytes(body)
	err = d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "method":
			method, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	confirmation, err := h.billing.ConfirmPayment(
		r.Context(), KeyFromContext(r.Context()),
		r.PathValue("id"), billing.PaymentMethod(method),
	)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("billId")
	e.Str(confirmation.BillID)
	e.FieldStart("paymentId")
	e.Str(confirmation.PaymentID)
	e.FieldStart("newStatus")
	e.Str(confirmation.NewStatus.Display())
	e.FieldStart("pointsEarned")
	e.Int(confirmation.PointsEarned)
	e.FieldStart("pointsSpent")
	e.Int(confirmation.PointsSpent)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}
