package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const billRecordColumns = `id, session_id, table_number, subtotal, total, order_count, billing_status, payment_method, closed_at`

func scanBillRecord(row interface{ Scan(dest ...any) error }) (BillRecord, error) {
	var b BillRecord
	err := row.Scan(
		&b.ID,
		&b.SessionID,
		&b.TableNumber,
		&b.Subtotal,
		&b.Total,
		&b.OrderCount,
		&b.BillingStatus,
		&b.PaymentMethod,
		&b.ClosedAt,
	)
	return b, err
}

type CreateBillRecordParams struct {
	SessionID     uuid.UUID
	TableNumber   int32
	Subtotal      pgtype.Numeric
	Total         pgtype.Numeric
	OrderCount    int32
	PaymentMethod pgtype.Text
}

// CreateBillRecord persists the settlement artifact. The unique
// constraint on session_id enforces at most one record per session.
func (q *Queries) CreateBillRecord(ctx context.Context, arg CreateBillRecordParams) (BillRecord, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO bill_records (session_id, table_number, subtotal, total, order_count, payment_method)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+billRecordColumns,
		arg.SessionID, arg.TableNumber, arg.Subtotal, arg.Total, arg.OrderCount, arg.PaymentMethod,
	)
	return scanBillRecord(row)
}

type CreateBillRecordItemParams struct {
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

func (q *Queries) CreateBillRecordItem(ctx context.Context, arg CreateBillRecordItemParams) (BillRecordItem, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO bill_record_items (bill_record_id, position, product_id, name, addon_names, quantity, unit_price, addon_unit_price, subtotal)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, bill_record_id, position, product_id, name, addon_names, quantity, unit_price, addon_unit_price, subtotal`,
		arg.BillRecordID, arg.Position, arg.ProductID, arg.Name, arg.AddonNames,
		arg.Quantity, arg.UnitPrice, arg.AddonUnitPrice, arg.Subtotal,
	)
	var i BillRecordItem
	err := row.Scan(&i.ID, &i.BillRecordID, &i.Position, &i.ProductID, &i.Name,
		&i.AddonNames, &i.Quantity, &i.UnitPrice, &i.AddonUnitPrice, &i.Subtotal)
	return i, err
}

func (q *Queries) GetBillRecordBySession(ctx context.Context, sessionID uuid.UUID) (BillRecord, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+billRecordColumns+`
		FROM bill_records
		WHERE session_id = $1`,
		sessionID,
	)
	return scanBillRecord(row)
}

func (q *Queries) ListBillRecordItems(ctx context.Context, billRecordID uuid.UUID) ([]BillRecordItem, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, bill_record_id, position, product_id, name, addon_names, quantity, unit_price, addon_unit_price, subtotal
		FROM bill_record_items
		WHERE bill_record_id = $1
		ORDER BY position`,
		billRecordID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []BillRecordItem
	for rows.Next() {
		var i BillRecordItem
		if err := rows.Scan(&i.ID, &i.BillRecordID, &i.Position, &i.ProductID, &i.Name,
			&i.AddonNames, &i.Quantity, &i.UnitPrice, &i.AddonUnitPrice, &i.Subtotal); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
