package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/tabslip/api/internal/handler"
	"github.com/tabslip/api/internal/notify"
	"github.com/tabslip/api/internal/service"
	"github.com/tabslip/api/internal/store"
	"github.com/tabslip/api/internal/ws"
)

// --- In-memory store ---

// memStore is a stateful in-memory implementation of the session and
// billing store interfaces, enough to drive full request flows.
type memStore struct {
	sessions    map[uuid.UUID]store.Session
	orders      map[uuid.UUID]store.Order
	billSource  map[uuid.UUID][]store.BillSourceItem
	billRecords map[uuid.UUID]store.BillRecord
	recordItems map[uuid.UUID][]store.BillRecordItem
}

func newMemStore() *memStore {
	return &memStore{
		sessions:    make(map[uuid.UUID]store.Session),
		orders:      make(map[uuid.UUID]store.Order),
		billSource:  make(map[uuid.UUID][]store.BillSourceItem),
		billRecords: make(map[uuid.UUID]store.BillRecord),
		recordItems: make(map[uuid.UUID][]store.BillRecordItem),
	}
}

func (m *memStore) addSession(tableNumber int32, status store.SessionStatus, billing store.BillingStatus) store.Session {
	s := store.Session{
		ID:            uuid.New(),
		TableNumber:   tableNumber,
		Status:        status,
		BillingStatus: billing,
		CreatedAt:     pgtype.Timestamptz{Time: time.Now(), Valid: true},
	}
	m.sessions[s.ID] = s
	return s
}

func (m *memStore) CreateSession(_ context.Context, arg store.CreateSessionParams) (store.Session, error) {
	for _, s := range m.sessions {
		if s.TableNumber == arg.TableNumber && s.Status != store.SessionStatusClosed {
			return store.Session{}, &pgconn.PgError{Code: "23505", ConstraintName: "sessions_active_table_key"}
		}
	}
	s := store.Session{
		ID:            uuid.New(),
		TableNumber:   arg.TableNumber,
		Status:        store.SessionStatusOpen,
		BillingStatus: store.BillingStatusUnpaid,
		CustomerName:  arg.CustomerName,
		CreatedAt:     pgtype.Timestamptz{Time: time.Now(), Valid: true},
	}
	m.sessions[s.ID] = s
	return s, nil
}

func (m *memStore) GetActiveSessionByTable(_ context.Context, tableNumber int32) (store.Session, error) {
	for _, s := range m.sessions {
		if s.TableNumber == tableNumber && s.Status != store.SessionStatusClosed {
			return s, nil
		}
	}
	return store.Session{}, pgx.ErrNoRows
}

func (m *memStore) GetSession(_ context.Context, id uuid.UUID) (store.Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return store.Session{}, pgx.ErrNoRows
	}
	return s, nil
}

func (m *memStore) GetSessionForUpdate(ctx context.Context, id uuid.UUID) (store.Session, error) {
	return m.GetSession(ctx, id)
}

func (m *memStore) CASBillingStatus(_ context.Context, arg store.CASBillingStatusParams) (store.Session, error) {
	s, ok := m.sessions[arg.ID]
	if !ok || s.BillingStatus != arg.From || s.Status == store.SessionStatusClosed {
		return store.Session{}, pgx.ErrNoRows
	}
	s.BillingStatus = arg.To
	switch arg.To {
	case store.BillingStatusPendingPayment:
		s.Status = store.SessionStatusPaymentRequested
	case store.BillingStatusUnpaid:
		s.Status = store.SessionStatusOpen
	}
	m.sessions[arg.ID] = s
	return s, nil
}

func (m *memStore) CloseSession(_ context.Context, id uuid.UUID) (store.Session, error) {
	s, ok := m.sessions[id]
	if !ok || s.BillingStatus != store.BillingStatusPaid || s.Status == store.SessionStatusClosed {
		return store.Session{}, pgx.ErrNoRows
	}
	s.Status = store.SessionStatusClosed
	s.ClosedAt = pgtype.Timestamptz{Time: time.Now(), Valid: true}
	m.sessions[id] = s
	return s, nil
}

func (m *memStore) CreateOrder(_ context.Context, sessionID uuid.UUID) (store.Order, error) {
	s, ok := m.sessions[sessionID]
	if !ok || s.Status == store.SessionStatusClosed {
		return store.Order{}, pgx.ErrNoRows
	}
	o := store.Order{ID: uuid.New(), SessionID: sessionID, Status: store.OrderStatusPending, CreatedAt: time.Now()}
	m.orders[o.ID] = o
	return o, nil
}

func (m *memStore) CreateOrderItem(_ context.Context, arg store.CreateOrderItemParams) (store.OrderItem, error) {
	item := store.OrderItem{
		ID:        uuid.New(),
		OrderID:   arg.OrderID,
		ProductID: arg.ProductID,
		Name:      arg.Name,
		Quantity:  arg.Quantity,
		UnitPrice: arg.UnitPrice,
	}
	o := m.orders[arg.OrderID]
	m.billSource[o.SessionID] = append(m.billSource[o.SessionID], store.BillSourceItem{
		OrderID:   arg.OrderID,
		ProductID: arg.ProductID,
		Name:      arg.Name,
		Quantity:  arg.Quantity,
		UnitPrice: store.NumericToDecimal(arg.UnitPrice),
	})
	return item, nil
}

func (m *memStore) CreateOrderItemAddon(_ context.Context, arg store.CreateOrderItemAddonParams) (store.OrderItemAddon, error) {
	return store.OrderItemAddon{ID: uuid.New(), OrderItemID: arg.OrderItemID, AddonID: arg.AddonID, Name: arg.Name, Price: arg.Price}, nil
}

func (m *memStore) GetOrder(_ context.Context, id uuid.UUID) (store.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return store.Order{}, pgx.ErrNoRows
	}
	return o, nil
}

func (m *memStore) ListOrdersBySession(_ context.Context, sessionID uuid.UUID) ([]store.Order, error) {
	var result []store.Order
	for _, o := range m.orders {
		if o.SessionID == sessionID {
			result = append(result, o)
		}
	}
	return result, nil
}

func (m *memStore) UpdateOrderStatus(_ context.Context, arg store.UpdateOrderStatusParams) (store.Order, error) {
	o, ok := m.orders[arg.ID]
	if !ok {
		return store.Order{}, pgx.ErrNoRows
	}
	if s := m.sessions[o.SessionID]; s.Status == store.SessionStatusClosed {
		return store.Order{}, pgx.ErrNoRows
	}
	o.Status = arg.Status
	m.orders[arg.ID] = o
	if arg.Status == store.OrderStatusCancelled {
		kept := m.billSource[o.SessionID][:0]
		for _, item := range m.billSource[o.SessionID] {
			if item.OrderID != arg.ID {
				kept = append(kept, item)
			}
		}
		m.billSource[o.SessionID] = kept
	}
	return o, nil
}

func (m *memStore) ListBillSourceItems(_ context.Context, sessionID uuid.UUID) ([]store.BillSourceItem, error) {
	return m.billSource[sessionID], nil
}

func (m *memStore) CreateBillRecord(_ context.Context, arg store.CreateBillRecordParams) (store.BillRecord, error) {
	record := store.BillRecord{
		ID:            uuid.New(),
		SessionID:     arg.SessionID,
		TableNumber:   arg.TableNumber,
		Subtotal:      arg.Subtotal,
		Total:         arg.Total,
		OrderCount:    arg.OrderCount,
		BillingStatus: store.BillingStatusPaid,
		PaymentMethod: arg.PaymentMethod,
		ClosedAt:      time.Now(),
	}
	m.billRecords[arg.SessionID] = record
	return record, nil
}

func (m *memStore) CreateBillRecordItem(_ context.Context, arg store.CreateBillRecordItemParams) (store.BillRecordItem, error) {
	item := store.BillRecordItem{
		ID:             uuid.New(),
		BillRecordID:   arg.BillRecordID,
		Position:       arg.Position,
		ProductID:      arg.ProductID,
		Name:           arg.Name,
		AddonNames:     arg.AddonNames,
		Quantity:       arg.Quantity,
		UnitPrice:      arg.UnitPrice,
		AddonUnitPrice: arg.AddonUnitPrice,
		Subtotal:       arg.Subtotal,
	}
	m.recordItems[arg.BillRecordID] = append(m.recordItems[arg.BillRecordID], item)
	return item, nil
}

func (m *memStore) GetBillRecordBySession(_ context.Context, sessionID uuid.UUID) (store.BillRecord, error) {
	record, ok := m.billRecords[sessionID]
	if !ok {
		return store.BillRecord{}, pgx.ErrNoRows
	}
	return record, nil
}

func (m *memStore) ListBillRecordItems(_ context.Context, billRecordID uuid.UUID) ([]store.BillRecordItem, error) {
	return m.recordItems[billRecordID], nil
}

// --- Fake transaction plumbing ---

type fakeTx struct{}

func (fakeTx) Begin(ctx context.Context) (pgx.Tx, error) { return nil, nil }
func (fakeTx) Commit(ctx context.Context) error          { return nil }
func (fakeTx) Rollback(ctx context.Context) error        { return nil }
func (fakeTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (fakeTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { panic("not implemented") }
func (fakeTx) LargeObjects() pgx.LargeObjects                               { panic("not implemented") }
func (fakeTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (fakeTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (fakeTx) Conn() *pgx.Conn { panic("not implemented") }

type fakePool struct{}

func (fakePool) Begin(ctx context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

// --- Test server ---

type noopBroadcaster struct{}

func (noopBroadcaster) Broadcast(event ws.Event) {}

// newTestServer wires the billing routes over the in-memory store,
// without the auth middleware.
func newTestServer(mem *memStore) (*chi.Mux, *notify.Notifier) {
	notifier := notify.NewNotifier(noopBroadcaster{})

	sessionService := service.NewSessionService(fakePool{}, mem, func(db store.DBTX) service.SessionStore { return mem })
	billingService := service.NewBillingService(fakePool{}, mem, func(db store.DBTX) service.BillingStore { return mem }, notifier)

	sessionHandler := handler.NewSessionHandler(sessionService)
	orderHandler := handler.NewOrderHandler(sessionService)
	billingHandler := handler.NewBillingHandler(billingService, notifier)

	r := chi.NewRouter()
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", orderHandler.Place)
		r.Post("/session", sessionHandler.Open)
		r.Route("/session/{sessionId}", func(r chi.Router) {
			r.Get("/", sessionHandler.Get)
			r.Get("/orders", sessionHandler.Orders)
			r.Get("/bill", billingHandler.Bill)
			r.Get("/bill-record", billingHandler.BillRecord)
			r.Post("/pay-request", billingHandler.PayRequest)
			r.Patch("/billing-status", billingHandler.SetBillingStatus)
		})
		r.Delete("/{orderId}", orderHandler.Cancel)
		r.Get("/payments", billingHandler.LivePayments)
		r.Post("/payments/{sessionId}/ack", billingHandler.AcknowledgePayment)
	})
	return r, notifier
}

func doRequest(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func placeOrder(t *testing.T, r http.Handler, sessionID uuid.UUID, name, price string, qty int32) {
	t.Helper()
	rec := doRequest(t, r, http.MethodPost, "/orders", map[string]any{
		"session_id": sessionID.String(),
		"items": []map[string]any{
			{"product_id": uuid.NewString(), "name": name, "quantity": qty, "unit_price": price},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("place order: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}

// =====================
// Pay request tests
// =====================

func TestPayRequest_Success(t *testing.T) {
	mem := newMemStore()
	session := mem.addSession(5, store.SessionStatusOpen, store.BillingStatusUnpaid)
	r, notifier := newTestServer(mem)
	placeOrder(t, r, session.ID, "Momo", "120.00", 2)

	rec := doRequest(t, r, http.MethodPost, "/orders/session/"+session.ID.String()+"/pay-request", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Session struct {
			BillingStatus string `json:"billing_status"`
		} `json:"session"`
		Bill struct {
			Total string `json:"total"`
		} `json:"bill"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Session.BillingStatus != "PENDING_PAYMENT" {
		t.Errorf("expected PENDING_PAYMENT, got %s", resp.Session.BillingStatus)
	}
	if resp.Bill.Total != "240.00" {
		t.Errorf("expected total 240.00, got %s", resp.Bill.Total)
	}
	if len(notifier.Live()) != 1 {
		t.Errorf("expected one live payment request, got %d", len(notifier.Live()))
	}
}

func TestPayRequest_UnknownSession(t *testing.T) {
	r, _ := newTestServer(newMemStore())

	rec := doRequest(t, r, http.MethodPost, "/orders/session/"+uuid.NewString()+"/pay-request", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestPayRequest_ClosedSession(t *testing.T) {
	mem := newMemStore()
	session := mem.addSession(5, store.SessionStatusClosed, store.BillingStatusPaid)
	r, _ := newTestServer(mem)

	rec := doRequest(t, r, http.MethodPost, "/orders/session/"+session.ID.String()+"/pay-request", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

// =====================
// Bill tests
// =====================

func TestBill_RecomputedAfterCancellation(t *testing.T) {
	mem := newMemStore()
	session := mem.addSession(5, store.SessionStatusOpen, store.BillingStatusUnpaid)
	r, _ := newTestServer(mem)

	placeOrder(t, r, session.ID, "Momo", "120.00", 2)
	placeOrder(t, r, session.ID, "Tea", "30.00", 1)

	rec := doRequest(t, r, http.MethodGet, "/orders/session/"+session.ID.String()+"/bill", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var bill struct {
		Total string `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &bill); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if bill.Total != "270.00" {
		t.Errorf("expected total 270.00, got %s", bill.Total)
	}

	// Cancel the tea order; the next bill read drops it.
	var teaOrder uuid.UUID
	for _, item := range mem.billSource[session.ID] {
		if item.Name == "Tea" {
			teaOrder = item.OrderID
		}
	}
	rec = doRequest(t, r, http.MethodDelete, "/orders/"+teaOrder.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, r, http.MethodGet, "/orders/session/"+session.ID.String()+"/bill", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &bill); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if bill.Total != "240.00" {
		t.Errorf("expected total 240.00 after cancellation, got %s", bill.Total)
	}
}

func TestBill_EmptySessionIsValid(t *testing.T) {
	mem := newMemStore()
	session := mem.addSession(5, store.SessionStatusOpen, store.BillingStatusUnpaid)
	r, _ := newTestServer(mem)

	rec := doRequest(t, r, http.MethodGet, "/orders/session/"+session.ID.String()+"/bill", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var bill struct {
		Total string          `json:"total"`
		Lines json.RawMessage `json:"lines"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &bill); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if bill.Total != "0.00" {
		t.Errorf("expected zero total, got %s", bill.Total)
	}
}

// =====================
// Billing status tests
// =====================

func TestSetBillingStatus_PaidFlow(t *testing.T) {
	mem := newMemStore()
	session := mem.addSession(5, store.SessionStatusOpen, store.BillingStatusUnpaid)
	r, notifier := newTestServer(mem)
	placeOrder(t, r, session.ID, "Momo", "120.00", 2)

	rec := doRequest(t, r, http.MethodPost, "/orders/session/"+session.ID.String()+"/pay-request", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("pay-request: expected 200, got %d", rec.Code)
	}

	// Bill record does not exist before settlement.
	rec = doRequest(t, r, http.MethodGet, "/orders/session/"+session.ID.String()+"/bill-record", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before settlement, got %d", rec.Code)
	}

	rec = doRequest(t, r, http.MethodPatch, "/orders/session/"+session.ID.String()+"/billing-status", map[string]any{
		"billing_status": "PAID",
		"payment_method": "CASH",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Session struct {
			Status string `json:"status"`
		} `json:"session"`
		Record *struct {
			Total         string `json:"total"`
			PaymentMethod string `json:"payment_method"`
		} `json:"bill_record"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Session.Status != "CLOSED" {
		t.Errorf("expected CLOSED, got %s", resp.Session.Status)
	}
	if resp.Record == nil || resp.Record.Total != "240.00" {
		t.Errorf("expected bill record with total 240.00, got %+v", resp.Record)
	}

	// Live payment request resolved.
	if len(notifier.Live()) != 0 {
		t.Error("expected no live payment requests after settlement")
	}

	// Bill record now readable.
	rec = doRequest(t, r, http.MethodGet, "/orders/session/"+session.ID.String()+"/bill-record", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after settlement, got %d", rec.Code)
	}

	// The table frees up for a new, independent session.
	rec = doRequest(t, r, http.MethodPost, "/orders/session", map[string]any{"table_number": 5})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for fresh session, got %d: %s", rec.Code, rec.Body.String())
	}
	var fresh struct {
		ID uuid.UUID `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &fresh); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if fresh.ID == session.ID {
		t.Error("expected a new session, got the settled one")
	}
}

func TestSetBillingStatus_PaidWithoutMethod(t *testing.T) {
	mem := newMemStore()
	session := mem.addSession(5, store.SessionStatusOpen, store.BillingStatusUnpaid)
	r, _ := newTestServer(mem)

	rec := doRequest(t, r, http.MethodPatch, "/orders/session/"+session.ID.String()+"/billing-status", map[string]any{
		"billing_status": "PAID",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSetBillingStatus_UnknownStatus(t *testing.T) {
	mem := newMemStore()
	session := mem.addSession(5, store.SessionStatusOpen, store.BillingStatusUnpaid)
	r, _ := newTestServer(mem)

	rec := doRequest(t, r, http.MethodPatch, "/orders/session/"+session.ID.String()+"/billing-status", map[string]any{
		"billing_status": "SETTLED",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSetBillingStatus_BackwardNeedsOverride(t *testing.T) {
	mem := newMemStore()
	session := mem.addSession(5, store.SessionStatusPaymentRequested, store.BillingStatusPendingPayment)
	r, _ := newTestServer(mem)

	rec := doRequest(t, r, http.MethodPatch, "/orders/session/"+session.ID.String()+"/billing-status", map[string]any{
		"billing_status": "UNPAID",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without override, got %d", rec.Code)
	}

	rec = doRequest(t, r, http.MethodPatch, "/orders/session/"+session.ID.String()+"/billing-status", map[string]any{
		"billing_status": "UNPAID",
		"override":       true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with override, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Session struct {
			Status        string `json:"status"`
			BillingStatus string `json:"billing_status"`
		} `json:"session"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Session.BillingStatus != "UNPAID" || resp.Session.Status != "OPEN" {
		t.Errorf("expected UNPAID/OPEN, got %s/%s", resp.Session.BillingStatus, resp.Session.Status)
	}
}

// =====================
// Notification endpoint tests
// =====================

func TestLivePaymentsAndAck(t *testing.T) {
	mem := newMemStore()
	session := mem.addSession(7, store.SessionStatusOpen, store.BillingStatusUnpaid)
	r, _ := newTestServer(mem)
	placeOrder(t, r, session.ID, "Momo", "120.00", 1)

	rec := doRequest(t, r, http.MethodPost, "/orders/session/"+session.ID.String()+"/pay-request", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("pay-request: expected 200, got %d", rec.Code)
	}

	rec = doRequest(t, r, http.MethodGet, "/orders/payments", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var live []struct {
		SessionID   uuid.UUID `json:"session_id"`
		TableNumber int32     `json:"table_number"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &live); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(live) != 1 || live[0].SessionID != session.ID || live[0].TableNumber != 7 {
		t.Fatalf("expected the live request for table 7, got %+v", live)
	}

	// Ack hides it from the pull list; billing status is untouched.
	rec = doRequest(t, r, http.MethodPost, "/orders/payments/"+session.ID.String()+"/ack", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ack: expected 200, got %d", rec.Code)
	}
	rec = doRequest(t, r, http.MethodGet, "/orders/payments", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &live); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(live) != 0 {
		t.Errorf("expected empty live list after ack, got %+v", live)
	}

	rec = doRequest(t, r, http.MethodGet, "/orders/session/"+session.ID.String(), nil)
	var s struct {
		BillingStatus string `json:"billing_status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.BillingStatus != "PENDING_PAYMENT" {
		t.Errorf("ack must not change billing status, got %s", s.BillingStatus)
	}
}

func TestAck_NoLiveRequest(t *testing.T) {
	r, _ := newTestServer(newMemStore())

	rec := doRequest(t, r, http.MethodPost, "/orders/payments/"+uuid.NewString()+"/ack", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
