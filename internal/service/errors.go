package service

import "errors"

// Errors returned by the session and billing services.
var (
	ErrSessionNotFound         = errors.New("session not found")
	ErrSessionClosed           = errors.New("session is closed")
	ErrOrderNotFound           = errors.New("order not found")
	ErrInvalidTransition       = errors.New("invalid transition")
	ErrInvalidBillingStatus    = errors.New("invalid billing_status")
	ErrPaymentMethodRequired   = errors.New("payment_method is required for PAID")
	ErrInvalidPaymentMethod    = errors.New("invalid payment_method")
	ErrOrderAttachmentConflict = errors.New("order references a session that is not open")
	ErrBillRecordNotFound      = errors.New("bill record not found")
	ErrInvalidTableNumber      = errors.New("table_number must be > 0")
	ErrEmptyItems              = errors.New("items are required")
	ErrInvalidQuantity         = errors.New("quantity must be > 0")
	ErrInvalidUnitPrice        = errors.New("invalid unit_price")
	ErrInvalidAddonPrice       = errors.New("invalid addon price")
	ErrInvalidProductID        = errors.New("invalid product_id")
	ErrInvalidAddonID          = errors.New("invalid addon_id")
	ErrInvalidOrderStatus      = errors.New("invalid order status")

	// ErrPersistenceTimeout marks a recoverable storage timeout: the
	// in-progress status change was rolled back and the caller may retry.
	ErrPersistenceTimeout = errors.New("persistence timeout")
)
