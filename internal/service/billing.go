package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/tabslip/api/internal/store"
)

// BillingStore defines the DB methods needed by the payment state
// machine and the bill record writer.
type BillingStore interface {
	GetSession(ctx context.Context, id uuid.UUID) (store.Session, error)
	GetSessionForUpdate(ctx context.Context, id uuid.UUID) (store.Session, error)
	CASBillingStatus(ctx context.Context, arg store.CASBillingStatusParams) (store.Session, error)
	CloseSession(ctx context.Context, id uuid.UUID) (store.Session, error)
	ListBillSourceItems(ctx context.Context, sessionID uuid.UUID) ([]store.BillSourceItem, error)
	CreateBillRecord(ctx context.Context, arg store.CreateBillRecordParams) (store.BillRecord, error)
	CreateBillRecordItem(ctx context.Context, arg store.CreateBillRecordItemParams) (store.BillRecordItem, error)
	GetBillRecordBySession(ctx context.Context, sessionID uuid.UUID) (store.BillRecord, error)
	ListBillRecordItems(ctx context.Context, billRecordID uuid.UUID) ([]store.BillRecordItem, error)
}

// NewBillingStore creates a BillingStore from a DBTX (pool or tx).
type NewBillingStore func(db store.DBTX) BillingStore

// PaymentNotifier is the in-process notification bus as seen from the
// state machine. Publishing happens after commit, fire-and-forget.
type PaymentNotifier interface {
	PublishRequest(sessionID uuid.UUID, tableNumber int32, customerName string, total decimal.Decimal)
	Resolve(sessionID uuid.UUID)
}

// BillingService governs a session's billing status and writes the
// bill record at settlement.
type BillingService struct {
	pool     TxBeginner
	store    BillingStore
	newStore NewBillingStore
	notifier PaymentNotifier
}

// NewBillingService creates a new BillingService.
func NewBillingService(pool TxBeginner, st BillingStore, newStore NewBillingStore, notifier PaymentNotifier) *BillingService {
	return &BillingService{pool: pool, store: st, newStore: newStore, notifier: notifier}
}

// Bill recomputes the session's consolidated bill from one consistent
// read. Nothing is cached: a cancellation between calls changes the
// next result.
func (s *BillingService) Bill(ctx context.Context, sessionID uuid.UUID) (ConsolidatedBill, store.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ConsolidatedBill{}, store.Session{}, ErrSessionNotFound
		}
		return ConsolidatedBill{}, store.Session{}, fmt.Errorf("get session: %w", err)
	}

	items, err := s.store.ListBillSourceItems(ctx, sessionID)
	if err != nil {
		return ConsolidatedBill{}, store.Session{}, fmt.Errorf("list bill items: %w", err)
	}
	return ConsolidateBill(session, items), session, nil
}

// PaymentRequestResult is the outcome of a customer payment request.
type PaymentRequestResult struct {
	Session store.Session
	Bill    ConsolidatedBill
}

// RequestPayment transitions the session to PENDING_PAYMENT and pushes
// a payment-request event to staff. Re-requesting while already pending
// refreshes the live event and re-pushes, for the case where the first
// notification was missed. The customer gets success once the state
// write commits, regardless of connected staff clients.
func (s *BillingService) RequestPayment(ctx context.Context, sessionID uuid.UUID) (*PaymentRequestResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, translatePersistence(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	txStore := s.newStore(tx)

	session, err := txStore.GetSessionForUpdate(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, translatePersistence(fmt.Errorf("get session: %w", err))
	}
	if session.Status == store.SessionStatusClosed {
		return nil, ErrSessionClosed
	}
	if session.BillingStatus == store.BillingStatusPaid {
		return nil, ErrInvalidTransition
	}

	// Same tx, same snapshot: the pushed total matches what the bill
	// endpoint would have returned at this instant.
	items, err := txStore.ListBillSourceItems(ctx, sessionID)
	if err != nil {
		return nil, translatePersistence(fmt.Errorf("list bill items: %w", err))
	}
	bill := ConsolidateBill(session, items)

	if session.BillingStatus != store.BillingStatusPendingPayment {
		session, err = txStore.CASBillingStatus(ctx, store.CASBillingStatusParams{
			ID:   sessionID,
			From: session.BillingStatus,
			To:   store.BillingStatusPendingPayment,
		})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrInvalidTransition
			}
			return nil, translatePersistence(fmt.Errorf("set billing status: %w", err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, translatePersistence(fmt.Errorf("commit tx: %w", err))
	}

	customer := ""
	if session.CustomerName.Valid {
		customer = session.CustomerName.String
	}
	s.notifier.PublishRequest(session.ID, session.TableNumber, customer, bill.Total)

	return &PaymentRequestResult{Session: session, Bill: bill}, nil
}

// SetBillingStatusResult is the outcome of a staff billing transition.
// Record is set only when the transition reached PAID.
type SetBillingStatusResult struct {
	Session store.Session
	Record  *store.BillRecord
}

// SetBillingStatus validates and applies a staff-driven billing
// transition. Backward moves need the explicit override flag. Reaching
// PAID persists the BillRecord and closes the session in the same
// transaction; any failure rolls the status change back, so PAID never
// exists without a record.
func (s *BillingService) SetBillingStatus(ctx context.Context, sessionID uuid.UUID, target store.BillingStatus, method *store.PaymentMethod, override bool) (*SetBillingStatusResult, error) {
	if !target.Valid() {
		return nil, ErrInvalidBillingStatus
	}
	if target == store.BillingStatusPaid {
		if method == nil {
			return nil, ErrPaymentMethodRequired
		}
		if !method.Valid() {
			return nil, ErrInvalidPaymentMethod
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, translatePersistence(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	txStore := s.newStore(tx)

	session, err := txStore.GetSessionForUpdate(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, translatePersistence(fmt.Errorf("get session: %w", err))
	}
	if session.Status == store.SessionStatusClosed {
		return nil, ErrSessionClosed
	}

	if err := ValidateBillingTransition(session.BillingStatus, target, override); err != nil {
		return nil, err
	}

	updated, err := txStore.CASBillingStatus(ctx, store.CASBillingStatusParams{
		ID:   sessionID,
		From: session.BillingStatus,
		To:   target,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost a concurrent transition despite the row lock; the
			// caller re-reads and re-evaluates.
			return nil, ErrInvalidTransition
		}
		return nil, translatePersistence(fmt.Errorf("set billing status: %w", err))
	}

	result := &SetBillingStatusResult{Session: updated}

	if target == store.BillingStatusPaid {
		record, err := s.writeBillRecord(ctx, txStore, updated, *method)
		if err != nil {
			// tx rollback reverts the PAID status: no partial commit.
			return nil, err
		}
		closed, err := txStore.CloseSession(ctx, sessionID)
		if err != nil {
			return nil, translatePersistence(fmt.Errorf("close session: %w", err))
		}
		result.Session = closed
		result.Record = &record
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, translatePersistence(fmt.Errorf("commit tx: %w", err))
	}

	if target == store.BillingStatusPaid || target == store.BillingStatusUnpaid {
		// Settled, or the request was explicitly cancelled: either way
		// the live payment request is gone.
		s.notifier.Resolve(sessionID)
	}

	return result, nil
}

// BillRecordResult is the persisted settlement artifact with its lines.
type BillRecordResult struct {
	Record store.BillRecord
	Items  []store.BillRecordItem
}

// BillRecord returns the persisted record; ErrBillRecordNotFound until
// the session has closed.
func (s *BillingService) BillRecord(ctx context.Context, sessionID uuid.UUID) (*BillRecordResult, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	record, err := s.store.GetBillRecordBySession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBillRecordNotFound
		}
		return nil, fmt.Errorf("get bill record: %w", err)
	}

	items, err := s.store.ListBillRecordItems(ctx, record.ID)
	if err != nil {
		return nil, fmt.Errorf("list bill record items: %w", err)
	}
	return &BillRecordResult{Record: record, Items: items}, nil
}

// writeBillRecord aggregates inside the settlement tx and persists the
// result. The freshest aggregation wins: orders changed since the
// payment request are reflected here, not the total shown at request
// time.
func (s *BillingService) writeBillRecord(ctx context.Context, txStore BillingStore, session store.Session, method store.PaymentMethod) (store.BillRecord, error) {
	items, err := txStore.ListBillSourceItems(ctx, session.ID)
	if err != nil {
		return store.BillRecord{}, translatePersistence(fmt.Errorf("list bill items: %w", err))
	}
	bill := ConsolidateBill(session, items)

	record, err := txStore.CreateBillRecord(ctx, store.CreateBillRecordParams{
		SessionID:     session.ID,
		TableNumber:   session.TableNumber,
		Subtotal:      store.DecimalToNumeric(bill.Subtotal),
		Total:         store.DecimalToNumeric(bill.Total),
		OrderCount:    bill.OrderCount,
		PaymentMethod: pgtype.Text{String: string(method), Valid: true},
	})
	if err != nil {
		return store.BillRecord{}, translatePersistence(fmt.Errorf("create bill record: %w", err))
	}

	for i, line := range bill.Lines {
		if _, err := txStore.CreateBillRecordItem(ctx, store.CreateBillRecordItemParams{
			BillRecordID:   record.ID,
			Position:       int32(i),
			ProductID:      line.ProductID,
			Name:           line.Name,
			AddonNames:     line.AddonNames,
			Quantity:       line.Quantity,
			UnitPrice:      store.DecimalToNumeric(line.UnitPrice),
			AddonUnitPrice: store.DecimalToNumeric(line.AddonUnitPrice),
			Subtotal:       store.DecimalToNumeric(line.Subtotal),
		}); err != nil {
			return store.BillRecord{}, translatePersistence(fmt.Errorf("create bill record item: %w", err))
		}
	}
	return record, nil
}

// ValidateBillingTransition enforces the monotonic billing flow:
// UNPAID -> PENDING_PAYMENT -> PAID, or UNPAID -> PAID directly.
// Re-setting PENDING_PAYMENT is an idempotent no-op. Every backward
// move, and anything out of terminal PAID, needs the override flag.
func ValidateBillingTransition(from, to store.BillingStatus, override bool) error {
	if override {
		return nil
	}
	switch from {
	case store.BillingStatusUnpaid:
		if to == store.BillingStatusPendingPayment || to == store.BillingStatusPaid {
			return nil
		}
	case store.BillingStatusPendingPayment:
		if to == store.BillingStatusPendingPayment || to == store.BillingStatusPaid {
			return nil
		}
	}
	return ErrInvalidTransition
}

// translatePersistence maps storage timeouts to the recoverable
// ErrPersistenceTimeout; everything else surfaces as-is.
func translatePersistence(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %v", ErrPersistenceTimeout, err)
	}
	return err
}
