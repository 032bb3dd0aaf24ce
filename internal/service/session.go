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

const maxOpenSessionRetries = 3

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// SessionStore defines the DB methods needed by the session registry.
// Satisfied by *store.Queries (and its WithTx variant).
type SessionStore interface {
	CreateSession(ctx context.Context, arg store.CreateSessionParams) (store.Session, error)
	GetActiveSessionByTable(ctx context.Context, tableNumber int32) (store.Session, error)
	GetSession(ctx context.Context, id uuid.UUID) (store.Session, error)
	CreateOrder(ctx context.Context, sessionID uuid.UUID) (store.Order, error)
	CreateOrderItem(ctx context.Context, arg store.CreateOrderItemParams) (store.OrderItem, error)
	CreateOrderItemAddon(ctx context.Context, arg store.CreateOrderItemAddonParams) (store.OrderItemAddon, error)
	GetOrder(ctx context.Context, id uuid.UUID) (store.Order, error)
	ListOrdersBySession(ctx context.Context, sessionID uuid.UUID) ([]store.Order, error)
	UpdateOrderStatus(ctx context.Context, arg store.UpdateOrderStatusParams) (store.Order, error)
}

// NewSessionStore creates a SessionStore from a DBTX (pool or tx).
type NewSessionStore func(db store.DBTX) SessionStore

// SessionService owns the table -> open-session mapping and the orders
// attached to each session.
type SessionService struct {
	pool     TxBeginner
	store    SessionStore
	newStore NewSessionStore
}

// NewSessionService creates a new SessionService. store must be backed
// by the pool; newStore builds tx-scoped stores.
func NewSessionService(pool TxBeginner, st SessionStore, newStore NewSessionStore) *SessionService {
	return &SessionService{pool: pool, store: st, newStore: newStore}
}

// OpenOrReuse returns the table's active session, creating one when
// the table is free. The boolean reports whether a new session was
// created. Concurrent callers for the same table race on the partial
// unique index: the loser observes 23505, re-reads and reuses the
// winner's session, so exactly one session is ever OPEN per table.
func (s *SessionService) OpenOrReuse(ctx context.Context, tableNumber int32, customerName string) (store.Session, bool, error) {
	if tableNumber <= 0 {
		return store.Session{}, false, ErrInvalidTableNumber
	}

	customer := pgtype.Text{}
	if customerName != "" {
		customer = pgtype.Text{String: customerName, Valid: true}
	}

	var lastErr error
	for attempt := 0; attempt < maxOpenSessionRetries; attempt++ {
		session, err := s.store.GetActiveSessionByTable(ctx, tableNumber)
		if err == nil {
			return session, false, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return store.Session{}, false, fmt.Errorf("get active session: %w", err)
		}

		session, err = s.store.CreateSession(ctx, store.CreateSessionParams{
			TableNumber:  tableNumber,
			CustomerName: customer,
		})
		if err == nil {
			return session, true, nil
		}
		if isActiveTableConflict(err) {
			lastErr = err
			continue
		}
		return store.Session{}, false, fmt.Errorf("create session: %w", err)
	}
	return store.Session{}, false, fmt.Errorf("open session for table %d: %w", tableNumber, lastErr)
}

// Session returns the session by id.
func (s *SessionService) Session(ctx context.Context, id uuid.UUID) (store.Session, error) {
	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Session{}, ErrSessionNotFound
		}
		return store.Session{}, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// Orders lists the session's orders, newest last.
func (s *SessionService) Orders(ctx context.Context, sessionID uuid.UUID) ([]store.Order, error) {
	if _, err := s.Session(ctx, sessionID); err != nil {
		return nil, err
	}
	orders, err := s.store.ListOrdersBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// PlaceOrderRequest is the validated input for placing an order. When
// SessionID is empty the order opens or reuses the table's session.
type PlaceOrderRequest struct {
	SessionID    string
	TableNumber  int32
	CustomerName string
	Items        []PlaceOrderItemRequest
}

// PlaceOrderItemRequest carries the client-side price snapshot for one
// line; menu lookups belong to the excluded catalog service.
type PlaceOrderItemRequest struct {
	ProductID string
	Name      string
	Quantity  int32
	UnitPrice string
	Addons    []PlaceOrderAddonRequest
}

type PlaceOrderAddonRequest struct {
	AddonID string
	Name    string
	Price   string
}

// PlaceOrderResult is the created order with its session.
type PlaceOrderResult struct {
	Session store.Session
	Order   store.Order
	Items   []OrderItemResult
}

type OrderItemResult struct {
	Item   store.OrderItem
	Addons []store.OrderItemAddon
}

// preparedItem holds a parsed line ready for insertion.
type preparedItem struct {
	productID uuid.UUID
	name      string
	quantity  int32
	unitPrice decimal.Decimal
	addons    []preparedAddon
}

type preparedAddon struct {
	addonID uuid.UUID
	name    string
	price   decimal.Decimal
}

// PlaceOrder validates the request, resolves the session, and attaches
// a new order atomically. The guarded insert catches a session closing
// between the pre-check and the write.
func (s *SessionService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	items, err := prepareItems(req.Items)
	if err != nil {
		return nil, err
	}

	session, err := s.resolveSession(ctx, req)
	if err != nil {
		return nil, err
	}
	if session.Status == store.SessionStatusClosed {
		return nil, ErrSessionClosed
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	txStore := s.newStore(tx)

	order, err := txStore.CreateOrder(ctx, session.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Session closed between the pre-check and the insert.
			return nil, ErrOrderAttachmentConflict
		}
		return nil, fmt.Errorf("create order: %w", err)
	}

	var itemResults []OrderItemResult
	for _, pi := range items {
		item, err := txStore.CreateOrderItem(ctx, store.CreateOrderItemParams{
			OrderID:   order.ID,
			ProductID: pi.productID,
			Name:      pi.name,
			Quantity:  pi.quantity,
			UnitPrice: store.DecimalToNumeric(pi.unitPrice),
		})
		if err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}

		var addons []store.OrderItemAddon
		for _, pa := range pi.addons {
			addon, err := txStore.CreateOrderItemAddon(ctx, store.CreateOrderItemAddonParams{
				OrderItemID: item.ID,
				AddonID:     pa.addonID,
				Name:        pa.name,
				Price:       store.DecimalToNumeric(pa.price),
			})
			if err != nil {
				return nil, fmt.Errorf("create order item addon: %w", err)
			}
			addons = append(addons, addon)
		}
		itemResults = append(itemResults, OrderItemResult{Item: item, Addons: addons})
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &PlaceOrderResult{Session: session, Order: order, Items: itemResults}, nil
}

// UpdateOrderStatus drives the order through PENDING -> PREPARING ->
// SERVED, or to CANCELLED from any unserved state. SERVED orders were
// delivered and stay billable, so they cannot be cancelled.
func (s *SessionService) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status store.OrderStatus) (store.Order, error) {
	if !status.Valid() {
		return store.Order{}, ErrInvalidOrderStatus
	}

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Order{}, ErrOrderNotFound
		}
		return store.Order{}, fmt.Errorf("get order: %w", err)
	}

	if err := validateOrderTransition(order.Status, status); err != nil {
		return store.Order{}, err
	}

	updated, err := s.store.UpdateOrderStatus(ctx, store.UpdateOrderStatusParams{ID: orderID, Status: status})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Order{}, ErrSessionClosed
		}
		return store.Order{}, fmt.Errorf("update order status: %w", err)
	}
	return updated, nil
}

// CancelOrder is UpdateOrderStatus sugar for the cancellation path.
func (s *SessionService) CancelOrder(ctx context.Context, orderID uuid.UUID) (store.Order, error) {
	return s.UpdateOrderStatus(ctx, orderID, store.OrderStatusCancelled)
}

// --- Helpers ---

func (s *SessionService) resolveSession(ctx context.Context, req PlaceOrderRequest) (store.Session, error) {
	if req.SessionID != "" {
		id, err := uuid.Parse(req.SessionID)
		if err != nil {
			return store.Session{}, ErrSessionNotFound
		}
		return s.Session(ctx, id)
	}
	session, _, err := s.OpenOrReuse(ctx, req.TableNumber, req.CustomerName)
	return session, err
}

func prepareItems(reqs []PlaceOrderItemRequest) ([]preparedItem, error) {
	if len(reqs) == 0 {
		return nil, ErrEmptyItems
	}

	items := make([]preparedItem, 0, len(reqs))
	for i, item := range reqs {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("item[%d]: %w", i, ErrInvalidQuantity)
		}
		productID, err := uuid.Parse(item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("item[%d]: %w", i, ErrInvalidProductID)
		}
		unitPrice, err := decimal.NewFromString(item.UnitPrice)
		if err != nil || unitPrice.IsNegative() {
			return nil, fmt.Errorf("item[%d]: %w", i, ErrInvalidUnitPrice)
		}

		pi := preparedItem{
			productID: productID,
			name:      item.Name,
			quantity:  item.Quantity,
			unitPrice: unitPrice,
		}
		for j, addon := range item.Addons {
			addonID, err := uuid.Parse(addon.AddonID)
			if err != nil {
				return nil, fmt.Errorf("item[%d].addons[%d]: %w", i, j, ErrInvalidAddonID)
			}
			price, err := decimal.NewFromString(addon.Price)
			if err != nil || price.IsNegative() {
				return nil, fmt.Errorf("item[%d].addons[%d]: %w", i, j, ErrInvalidAddonPrice)
			}
			pi.addons = append(pi.addons, preparedAddon{addonID: addonID, name: addon.Name, price: price})
		}
		items = append(items, pi)
	}
	return items, nil
}

// validateOrderTransition keeps the kitchen flow forward-only.
func validateOrderTransition(from, to store.OrderStatus) error {
	if from == to {
		return nil
	}
	switch from {
	case store.OrderStatusPending:
		if to == store.OrderStatusPreparing || to == store.OrderStatusServed || to == store.OrderStatusCancelled {
			return nil
		}
	case store.OrderStatusPreparing:
		if to == store.OrderStatusServed || to == store.OrderStatusCancelled {
			return nil
		}
	}
	return ErrInvalidTransition
}

// isActiveTableConflict checks for the partial unique index violation
// that signals a concurrent session creation for the same table.
func isActiveTableConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == "sessions_active_table_key"
	}
	return false
}
