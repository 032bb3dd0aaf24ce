package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, session_id, status, created_at, updated_at`

func scanOrder(row interface{ Scan(dest ...any) error }) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.SessionID, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

// CreateOrder inserts an order under the session. The insert is guarded
// against a concurrent close: when the session is already CLOSED no row
// is inserted and pgx.ErrNoRows is returned.
func (q *Queries) CreateOrder(ctx context.Context, sessionID uuid.UUID) (Order, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO orders (session_id)
		SELECT s.id FROM sessions s
		WHERE s.id = $1 AND s.status <> 'CLOSED'
		RETURNING `+orderColumns,
		sessionID,
	)
	return scanOrder(row)
}

type CreateOrderItemParams struct {
	OrderID   uuid.UUID
	ProductID uuid.UUID
	Name      string
	Quantity  int32
	UnitPrice pgtype.Numeric
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO order_items (order_id, product_id, name, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, order_id, product_id, name, quantity, unit_price, created_at`,
		arg.OrderID, arg.ProductID, arg.Name, arg.Quantity, arg.UnitPrice,
	)
	var i OrderItem
	err := row.Scan(&i.ID, &i.OrderID, &i.ProductID, &i.Name, &i.Quantity, &i.UnitPrice, &i.CreatedAt)
	return i, err
}

type CreateOrderItemAddonParams struct {
	OrderItemID uuid.UUID
	AddonID     uuid.UUID
	Name        string
	Price       pgtype.Numeric
}

func (q *Queries) CreateOrderItemAddon(ctx context.Context, arg CreateOrderItemAddonParams) (OrderItemAddon, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO order_item_addons (order_item_id, addon_id, name, price)
		VALUES ($1, $2, $3, $4)
		RETURNING id, order_item_id, addon_id, name, price`,
		arg.OrderItemID, arg.AddonID, arg.Name, arg.Price,
	)
	var a OrderItemAddon
	err := row.Scan(&a.ID, &a.OrderItemID, &a.AddonID, &a.Name, &a.Price)
	return a, err
}

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1`,
		id,
	)
	return scanOrder(row)
}

func (q *Queries) ListOrdersBySession(ctx context.Context, sessionID uuid.UUID) ([]Order, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE session_id = $1
		ORDER BY created_at, id`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

type UpdateOrderStatusParams struct {
	ID     uuid.UUID
	Status OrderStatus
}

// UpdateOrderStatus sets the order status unless the owning session is
// already CLOSED.
func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE orders o
		SET status = $2, updated_at = now()
		FROM sessions s
		WHERE o.id = $1 AND s.id = o.session_id AND s.status <> 'CLOSED'
		RETURNING o.id, o.session_id, o.status, o.created_at, o.updated_at`,
		arg.ID, arg.Status,
	)
	return scanOrder(row)
}

// BillSourceItem is one surviving order line with its add-ons, the input
// row shape for bill consolidation.
type BillSourceItem struct {
	OrderID   uuid.UUID
	ProductID uuid.UUID
	Name      string
	Quantity  int32
	UnitPrice decimal.Decimal
	Addons    []BillSourceAddon
}

type BillSourceAddon struct {
	AddonID uuid.UUID
	Name    string
	Price   decimal.Decimal
}

// ListBillSourceItems fetches every item of the session's non-CANCELLED
// orders in insertion order. A single statement means a single snapshot:
// one aggregation never observes a half-applied order mutation.
func (q *Queries) ListBillSourceItems(ctx context.Context, sessionID uuid.UUID) ([]BillSourceItem, error) {
	rows, err := q.db.Query(ctx, `
		SELECT o.id, i.id, i.product_id, i.name, i.quantity, i.unit_price,
		       a.addon_id, a.name, a.price
		FROM orders o
		JOIN order_items i ON i.order_id = o.id
		LEFT JOIN order_item_addons a ON a.order_item_id = i.id
		WHERE o.session_id = $1 AND o.status <> 'CANCELLED'
		ORDER BY o.created_at, o.id, i.created_at, i.id, a.id`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []BillSourceItem
	var lastItemID uuid.UUID
	for rows.Next() {
		var (
			orderID    uuid.UUID
			itemID     uuid.UUID
			productID  uuid.UUID
			name       string
			quantity   int32
			unitPrice  pgtype.Numeric
			addonID    pgtype.UUID
			addonName  pgtype.Text
			addonPrice pgtype.Numeric
		)
		if err := rows.Scan(&orderID, &itemID, &productID, &name, &quantity, &unitPrice,
			&addonID, &addonName, &addonPrice); err != nil {
			return nil, err
		}

		if len(items) == 0 || itemID != lastItemID {
			items = append(items, BillSourceItem{
				OrderID:   orderID,
				ProductID: productID,
				Name:      name,
				Quantity:  quantity,
				UnitPrice: NumericToDecimal(unitPrice),
			})
			lastItemID = itemID
		}
		if addonID.Valid {
			last := &items[len(items)-1]
			last.Addons = append(last.Addons, BillSourceAddon{
				AddonID: uuid.UUID(addonID.Bytes),
				Name:    addonName.String,
				Price:   NumericToDecimal(addonPrice),
			})
		}
	}
	return items, rows.Err()
}
