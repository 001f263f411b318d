package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/openpos/restobill/internal/domain/auth"
	"github.com/openpos/restobill/internal/domain/billing"
	"github.com/openpos/restobill/internal/domain/loyalty"
	"github.com/openpos/restobill/internal/domain/order"
	"github.com/openpos/restobill/internal/domain/voucher"
)

// timeFormat is the wire format for timestamps.
const timeFormat = "2006-01-02T15:04:05Z07:00"

// Handler exposes the billing workflow over HTTP, delegating all business
// logic to the billing service.
type Handler struct {
	billing *billing.Service
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(billingService *billing.Service) *Handler {
	return &Handler{billing: billingService}
}

// Routes registers all billing endpoints on the given mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/bills/calculate", h.CalculateBill)
	mux.HandleFunc("POST /api/bills", h.GenerateBill)
	mux.HandleFunc("GET /api/bills/{id}", h.GetBillDetails)
	mux.HandleFunc("POST /api/bills/{id}/payment", h.ConfirmPayment)
}

// writeJSON writes the encoder's buffer with the given status code.
func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeError writes a {code, message} error body.
func writeError(w http.ResponseWriter, status int, msg string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(msg)
	e.ObjEnd()
	writeJSON(w, status, &e)
}

// respondError maps a domain error to an HTTP response. Domain rejections
// keep their message; anything unrecognized is an infrastructure failure,
// logged and masked as a 500 so callers can tell "refused" from "retry me".
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var insufficientErr *loyalty.InsufficientPointsError

	switch {
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, billing.ErrBillNotFound),
		errors.Is(err, voucher.ErrNotFound),
		errors.Is(err, loyalty.ErrCustomerNotFound):
		writeError(w, http.StatusNotFound, err.Error())

	case errors.Is(err, billing.ErrOrderNotCompleted),
		errors.Is(err, voucher.ErrInactive),
		errors.Is(err, voucher.ErrNotStarted),
		errors.Is(err, voucher.ErrExpired),
		errors.Is(err, billing.ErrUnsupportedPaymentMethod),
		errors.As(err, &insufficientErr):
		writeError(w, http.StatusBadRequest, err.Error())

	case errors.Is(err, billing.ErrBillExists),
		errors.Is(err, billing.ErrBillNotPending),
		errors.Is(err, billing.ErrPointsBalanceChanged):
		writeError(w, http.StatusConflict, err.Error())

	case errors.Is(err, auth.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, err.Error())

	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
