package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

func scanOrderItem(row rowScanner) (OrderItem, error) {
	var i OrderItem
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.MenuItemID,
		&i.MenuName,
		&i.Quantity,
		&i.PriceAtTime,
		&i.Served,
		&i.CreatedAt,
	)
	return i, err
}

const listOrderItemsByOrder = `-- name: ListOrderItemsByOrder :many
SELECT oi.id, oi.order_id, oi.menu_item_id, m.name, oi.quantity, oi.price_at_time, oi.served, oi.created_at
FROM order_items oi
JOIN menu_items m ON m.id = oi.menu_item_id
WHERE oi.order_id = $1
ORDER BY oi.created_at, oi.id
`

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	return q.listItems(ctx, listOrderItemsByOrder, orderID)
}

const listOpenOrderItemsByBranch = `-- name: ListOpenOrderItemsByBranch :many
SELECT oi.id, oi.order_id, oi.menu_item_id, m.name, oi.quantity, oi.price_at_time, oi.served, oi.created_at
FROM order_items oi
JOIN orders o ON o.id = oi.order_id
JOIN menu_items m ON m.id = oi.menu_item_id
WHERE o.branch_id = $1 AND o.state = 'OPEN'
ORDER BY oi.created_at, oi.id
`

// ListOpenOrderItemsByBranch returns the lines of every open order in a branch.
func (q *Queries) ListOpenOrderItemsByBranch(ctx context.Context, branchID uuid.UUID) ([]OrderItem, error) {
	return q.listItems(ctx, listOpenOrderItemsByBranch, branchID)
}

func (q *Queries) listItems(ctx context.Context, query string, arg uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []OrderItem{}
	for rows.Next() {
		i, err := scanOrderItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createOrderItem = `-- name: CreateOrderItem :one
WITH ins AS (
    INSERT INTO order_items (order_id, menu_item_id, quantity, price_at_time, served)
    VALUES ($1, $2, $3, $4, $5)
    RETURNING id, order_id, menu_item_id, quantity, price_at_time, served, created_at
)
SELECT ins.id, ins.order_id, ins.menu_item_id, m.name, ins.quantity, ins.price_at_time, ins.served, ins.created_at
FROM ins JOIN menu_items m ON m.id = ins.menu_item_id
`

type CreateOrderItemParams struct {
	OrderID     uuid.UUID      `json:"order_id"`
	MenuItemID  uuid.UUID      `json:"menu_item_id"`
	Quantity    int32          `json:"quantity"`
	PriceAtTime pgtype.Numeric `json:"price_at_time"`
	Served      bool           `json:"served"`
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	return scanOrderItem(q.db.QueryRow(ctx, createOrderItem,
		arg.OrderID,
		arg.MenuItemID,
		arg.Quantity,
		arg.PriceAtTime,
		arg.Served,
	))
}

const updateOrderItem = `-- name: UpdateOrderItem :exec
UPDATE order_items SET quantity = $3, served = $4
WHERE id = $1 AND order_id = $2
`

type UpdateOrderItemParams struct {
	ID       uuid.UUID `json:"id"`
	OrderID  uuid.UUID `json:"order_id"`
	Quantity int32     `json:"quantity"`
	Served   bool      `json:"served"`
}

func (q *Queries) UpdateOrderItem(ctx context.Context, arg UpdateOrderItemParams) error {
	_, err := q.db.Exec(ctx, updateOrderItem, arg.ID, arg.OrderID, arg.Quantity, arg.Served)
	return err
}

const deleteOrderItem = `-- name: DeleteOrderItem :exec
DELETE FROM order_items WHERE id = $1 AND order_id = $2
`

type DeleteOrderItemParams struct {
	ID      uuid.UUID `json:"id"`
	OrderID uuid.UUID `json:"order_id"`
}

func (q *Queries) DeleteOrderItem(ctx context.Context, arg DeleteOrderItemParams) error {
	_, err := q.db.Exec(ctx, deleteOrderItem, arg.ID, arg.OrderID)
	return err
}
