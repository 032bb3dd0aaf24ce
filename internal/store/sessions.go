package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const sessionColumns = `id, table_number, status, billing_status, customer_name, created_at, closed_at`

func scanSession(row interface{ Scan(dest ...any) error }) (Session, error) {
	var s Session
	err := row.Scan(
		&s.ID,
		&s.TableNumber,
		&s.Status,
		&s.BillingStatus,
		&s.CustomerName,
		&s.CreatedAt,
		&s.ClosedAt,
	)
	return s, err
}

type CreateSessionParams struct {
	TableNumber  int32
	CustomerName pgtype.Text
}

// CreateSession inserts a new OPEN session for the table. The partial
// unique index sessions_active_table_key rejects the insert with 23505
// when the table already has an active session.
func (q *Queries) CreateSession(ctx context.Context, arg CreateSessionParams) (Session, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO sessions (table_number, customer_name)
		VALUES ($1, $2)
		RETURNING `+sessionColumns,
		arg.TableNumber, arg.CustomerName,
	)
	return scanSession(row)
}

// GetActiveSessionByTable returns the table's non-CLOSED session, or
// pgx.ErrNoRows when the table is free.
func (q *Queries) GetActiveSessionByTable(ctx context.Context, tableNumber int32) (Session, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE table_number = $1 AND status <> 'CLOSED'`,
		tableNumber,
	)
	return scanSession(row)
}

func (q *Queries) GetSession(ctx context.Context, id uuid.UUID) (Session, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE id = $1`,
		id,
	)
	return scanSession(row)
}

// GetSessionForUpdate row-locks the session (FOR NO KEY UPDATE) so
// concurrent billing transitions serialize on it.
func (q *Queries) GetSessionForUpdate(ctx context.Context, id uuid.UUID) (Session, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE id = $1
		FOR NO KEY UPDATE`,
		id,
	)
	return scanSession(row)
}

type CASBillingStatusParams struct {
	ID   uuid.UUID
	From BillingStatus
	To   BillingStatus
}

// CASBillingStatus is a compare-and-set on the billing status. A caller
// that lost a concurrent race gets pgx.ErrNoRows and must re-read.
// The lifecycle column follows: PENDING_PAYMENT marks the session
// PAYMENT_REQUESTED, UNPAID reverts it to OPEN.
func (q *Queries) CASBillingStatus(ctx context.Context, arg CASBillingStatusParams) (Session, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE sessions
		SET billing_status = $3,
		    status = CASE
		        WHEN $3 = 'PENDING_PAYMENT' THEN 'PAYMENT_REQUESTED'
		        WHEN $3 = 'UNPAID' THEN 'OPEN'
		        ELSE status
		    END
		WHERE id = $1 AND billing_status = $2 AND status <> 'CLOSED'
		RETURNING `+sessionColumns,
		arg.ID, arg.From, arg.To,
	)
	return scanSession(row)
}

// CloseSession transitions a PAID session to CLOSED. Zero rows means the
// session is not PAID yet or already closed.
func (q *Queries) CloseSession(ctx context.Context, id uuid.UUID) (Session, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE sessions
		SET status = 'CLOSED', closed_at = now()
		WHERE id = $1 AND billing_status = 'PAID' AND status <> 'CLOSED'
		RETURNING `+sessionColumns,
		id,
	)
	return scanSession(row)
}
