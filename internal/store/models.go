package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// SessionStatus is the lifecycle of one table visit.
type SessionStatus string

const (
	SessionStatusOpen             SessionStatus = "OPEN"
	SessionStatusPaymentRequested SessionStatus = "PAYMENT_REQUESTED"
	SessionStatusClosed           SessionStatus = "CLOSED"
)

// BillingStatus is the settlement state of a session's consolidated bill.
type BillingStatus string

const (
	BillingStatusUnpaid         BillingStatus = "UNPAID"
	BillingStatusPendingPayment BillingStatus = "PENDING_PAYMENT"
	BillingStatusPaid           BillingStatus = "PAID"
)

func (s BillingStatus) Valid() bool {
	switch s {
	case BillingStatusUnpaid, BillingStatusPendingPayment, BillingStatusPaid:
		return true
	}
	return false
}

// OrderStatus is the kitchen-side state of a single order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPreparing OrderStatus = "PREPARING"
	OrderStatusServed    OrderStatus = "SERVED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPreparing, OrderStatusServed, OrderStatusCancelled:
		return true
	}
	return false
}

// PaymentMethod is the declared settlement method. Actual settlement is
// out of band; only the declaration is recorded.
type PaymentMethod string

const (
	PaymentMethodCash PaymentMethod = "CASH"
	PaymentMethodCard PaymentMethod = "CARD"
	PaymentMethodUPI  PaymentMethod = "UPI"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodUPI:
		return true
	}
	return false
}

const (
	UserRoleManager = "MANAGER"
	UserRoleWaiter  = "WAITER"
	UserRoleCashier = "CASHIER"
)

type Session struct {
	ID            uuid.UUID
	TableNumber   int32
	Status        SessionStatus
	BillingStatus BillingStatus
	CustomerName  pgtype.Text
	CreatedAt     pgtype.Timestamptz
	ClosedAt      pgtype.Timestamptz
}

type Order struct {
	ID        uuid.UUID
	SessionID uuid.UUID
	Status    OrderStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type OrderItem struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ProductID uuid.UUID
	Name      string
	Quantity  int32
	UnitPrice pgtype.Numeric
	CreatedAt time.Time
}

type OrderItemAddon struct {
	ID          uuid.UUID
	OrderItemID uuid.UUID
	AddonID     uuid.UUID
	Name        string
	Price       pgtype.Numeric
}

type BillRecord struct {
	ID            uuid.UUID
	SessionID     uuid.UUID
	TableNumber   int32
	Subtotal      pgtype.Numeric
	Total         pgtype.Numeric
	OrderCount    int32
	BillingStatus BillingStatus
	PaymentMethod pgtype.Text
	ClosedAt      time.Time
}

type BillRecordItem struct {
	ID             uuid.UUID
	BillRecordID   uuid.UUID
	Position       int32
	ProductID      uuid.UUID
	Name           string
	AddonNames     []string
	Quantity       int32
	UnitPrice      pgtype.Numeric
	AddonUnitPrice pgtype.Numeric
	Subtotal       pgtype.Numeric
}

type User struct {
	ID             uuid.UUID
	FullName       string
	Email          string
	HashedPassword string
	Role           string
	CreatedAt      time.Time
}
