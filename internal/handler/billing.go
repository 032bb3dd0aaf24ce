package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tabslip/api/internal/notify"
	"github.com/tabslip/api/internal/service"
	"github.com/tabslip/api/internal/store"
)

// BillingHandler exposes the billing surface: the customer-facing
// payment request and bill read, and the staff-facing settlement and
// notification endpoints.
type BillingHandler struct {
	billing  *service.BillingService
	notifier *notify.Notifier
}

// NewBillingHandler creates a new BillingHandler.
func NewBillingHandler(billing *service.BillingService, notifier *notify.Notifier) *BillingHandler {
	return &BillingHandler{billing: billing, notifier: notifier}
}

// --- Request / Response types ---

type setBillingStatusRequest struct {
	BillingStatus string `json:"billing_status"`
	PaymentMethod string `json:"payment_method"`
	Override      bool   `json:"override"`
}

type billLineResponse struct {
	ProductID      uuid.UUID `json:"product_id"`
	Name           string    `json:"name"`
	AddonNames     []string  `json:"addon_names,omitempty"`
	Quantity       int32     `json:"quantity"`
	UnitPrice      string    `json:"unit_price"`
	AddonUnitPrice string    `json:"addon_unit_price"`
	Subtotal       string    `json:"subtotal"`
}

type billResponse struct {
	SessionID     uuid.UUID          `json:"session_id"`
	TableNumber   int32              `json:"table_number"`
	BillingStatus string             `json:"billing_status"`
	Lines         []billLineResponse `json:"lines"`
	Subtotal      string             `json:"subtotal"`
	Total         string             `json:"total"`
	OrderCount    int32              `json:"order_count"`
}

type payRequestResponse struct {
	Session sessionResponse `json:"session"`
	Bill    billResponse    `json:"bill"`
}

type billingStatusResponse struct {
	Session sessionResponse     `json:"session"`
	Record  *billRecordResponse `json:"bill_record,omitempty"`
}

type billRecordResponse struct {
	ID            uuid.UUID                `json:"id"`
	SessionID     uuid.UUID                `json:"session_id"`
	TableNumber   int32                    `json:"table_number"`
	Subtotal      string                   `json:"subtotal"`
	Total         string                   `json:"total"`
	OrderCount    int32                    `json:"order_count"`
	BillingStatus string                   `json:"billing_status"`
	PaymentMethod string                   `json:"payment_method,omitempty"`
	ClosedAt      time.Time                `json:"closed_at"`
	Items         []billRecordItemResponse `json:"items,omitempty"`
}

type billRecordItemResponse struct {
	Position       int32     `json:"position"`
	ProductID      uuid.UUID `json:"product_id"`
	Name           string    `json:"name"`
	AddonNames     []string  `json:"addon_names,omitempty"`
	Quantity       int32     `json:"quantity"`
	UnitPrice      string    `json:"unit_price"`
	AddonUnitPrice string    `json:"addon_unit_price"`
	Subtotal       string    `json:"subtotal"`
}

func toBillResponse(bill service.ConsolidatedBill, billingStatus store.BillingStatus) billResponse {
	resp := billResponse{
		SessionID:     bill.SessionID,
		TableNumber:   bill.TableNumber,
		BillingStatus: string(billingStatus),
		Lines:         make([]billLineResponse, 0, len(bill.Lines)),
		Subtotal:      bill.Subtotal.StringFixed(2),
		Total:         bill.Total.StringFixed(2),
		OrderCount:    bill.OrderCount,
	}
	for _, line := range bill.Lines {
		resp.Lines = append(resp.Lines, billLineResponse{
			ProductID:      line.ProductID,
			Name:           line.Name,
			AddonNames:     line.AddonNames,
			Quantity:       line.Quantity,
			UnitPrice:      line.UnitPrice.StringFixed(2),
			AddonUnitPrice: line.AddonUnitPrice.StringFixed(2),
			Subtotal:       line.Subtotal.StringFixed(2),
		})
	}
	return resp
}

func toBillRecordResponse(record store.BillRecord, items []store.BillRecordItem) billRecordResponse {
	resp := billRecordResponse{
		ID:            record.ID,
		SessionID:     record.SessionID,
		TableNumber:   record.TableNumber,
		Subtotal:      store.NumericToDecimal(record.Subtotal).StringFixed(2),
		Total:         store.NumericToDecimal(record.Total).StringFixed(2),
		OrderCount:    record.OrderCount,
		BillingStatus: string(record.BillingStatus),
		ClosedAt:      record.ClosedAt,
		Items:         make([]billRecordItemResponse, 0, len(items)),
	}
	if record.PaymentMethod.Valid {
		resp.PaymentMethod = record.PaymentMethod.String
	}
	for _, item := range items {
		resp.Items = append(resp.Items, billRecordItemResponse{
			Position:       item.Position,
			ProductID:      item.ProductID,
			Name:           item.Name,
			AddonNames:     item.AddonNames,
			Quantity:       item.Quantity,
			UnitPrice:      store.NumericToDecimal(item.UnitPrice).StringFixed(2),
			AddonUnitPrice: store.NumericToDecimal(item.AddonUnitPrice).StringFixed(2),
			Subtotal:       store.NumericToDecimal(item.Subtotal).StringFixed(2),
		})
	}
	return resp
}

// --- Handlers ---

// PayRequest handles the customer's request-to-pay button. Success
// means the state write committed; staff delivery is best effort and
// never blocks the response.
func (h *BillingHandler) PayRequest(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseSessionID(w, r)
	if !ok {
		return
	}

	result, err := h.billing.RequestPayment(r.Context(), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		case errors.Is(err, service.ErrSessionClosed):
			writeJSON(w, http.StatusConflict, map[string]string{"error": "session is closed"})
		case errors.Is(err, service.ErrInvalidTransition):
			writeJSON(w, http.StatusConflict, map[string]string{"error": "session is already paid"})
		case errors.Is(err, service.ErrPersistenceTimeout):
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "temporary failure, please retry"})
		default:
			log.Printf("ERROR: failed to request payment for session %s: %v", sessionID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to request payment"})
		}
		return
	}

	writeJSON(w, http.StatusOK, payRequestResponse{
		Session: toSessionResponse(result.Session),
		Bill:    toBillResponse(result.Bill, result.Session.BillingStatus),
	})
}

// Bill returns the session's consolidated bill, recomputed from the
// current surviving orders on every call.
func (h *BillingHandler) Bill(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseSessionID(w, r)
	if !ok {
		return
	}

	bill, session, err := h.billing.Bill(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
			return
		}
		log.Printf("ERROR: failed to compute bill for session %s: %v", sessionID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to compute bill"})
		return
	}

	writeJSON(w, http.StatusOK, toBillResponse(bill, session.BillingStatus))
}

// BillRecord returns the persisted settlement artifact. 404 until the
// session has been paid and closed.
func (h *BillingHandler) BillRecord(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseSessionID(w, r)
	if !ok {
		return
	}

	result, err := h.billing.BillRecord(r.Context(), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		case errors.Is(err, service.ErrBillRecordNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "bill record not found"})
		default:
			log.Printf("ERROR: failed to get bill record for session %s: %v", sessionID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get bill record"})
		}
		return
	}

	writeJSON(w, http.StatusOK, toBillRecordResponse(result.Record, result.Items))
}

// SetBillingStatus applies a staff billing transition. Marking PAID
// settles the session: the bill record and session close commit
// together or not at all.
func (h *BillingHandler) SetBillingStatus(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseSessionID(w, r)
	if !ok {
		return
	}

	var req setBillingStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	var method *store.PaymentMethod
	if req.PaymentMethod != "" {
		m := store.PaymentMethod(req.PaymentMethod)
		method = &m
	}

	result, err := h.billing.SetBillingStatus(r.Context(), sessionID, store.BillingStatus(req.BillingStatus), method, req.Override)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		case errors.Is(err, service.ErrSessionClosed):
			writeJSON(w, http.StatusConflict, map[string]string{"error": "session is closed"})
		case errors.Is(err, service.ErrInvalidBillingStatus):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid billing status"})
		case errors.Is(err, service.ErrInvalidTransition):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "billing status transition not allowed"})
		case errors.Is(err, service.ErrInvalidPaymentMethod):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payment method"})
		case errors.Is(err, service.ErrPaymentMethodRequired):
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "payment method is required to mark as paid"})
		case errors.Is(err, service.ErrPersistenceTimeout):
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "temporary failure, please retry"})
		default:
			log.Printf("ERROR: failed to set billing status for session %s: %v", sessionID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to set billing status"})
		}
		return
	}

	resp := billingStatusResponse{Session: toSessionResponse(result.Session)}
	if result.Record != nil {
		record := toBillRecordResponse(*result.Record, nil)
		resp.Record = &record
	}
	writeJSON(w, http.StatusOK, resp)
}

// LivePayments lists unacknowledged payment requests, oldest first.
// This is the pull fallback for staff clients that missed the push.
func (h *BillingHandler) LivePayments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.notifier.Live())
}

// AcknowledgePayment marks a live payment request as seen by staff.
// Acknowledgement only silences the notification; the billing status
// is untouched.
func (h *BillingHandler) AcknowledgePayment(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseSessionID(w, r)
	if !ok {
		return
	}

	event, err := h.notifier.Acknowledge(sessionID)
	if err != nil {
		if errors.Is(err, notify.ErrNoLiveRequest) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no live payment request for session"})
			return
		}
		log.Printf("ERROR: failed to acknowledge payment for session %s: %v", sessionID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to acknowledge payment"})
		return
	}

	writeJSON(w, http.StatusOK, event)
}
