package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, branch_id, user_id, order_number, channel, payment_method, state, os_num,
    total_bill, total_discount, created_at, updated_at, paid_at, cancelled_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (Order, error) {
	var i Order
	err := row.Scan(
		&i.ID,
		&i.BranchID,
		&i.UserID,
		&i.OrderNumber,
		&i.Channel,
		&i.PaymentMethod,
		&i.State,
		&i.OsNum,
		&i.TotalBill,
		&i.TotalDiscount,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.PaidAt,
		&i.CancelledAt,
	)
	return i, err
}

const getNextOrderNumber = `-- name: GetNextOrderNumber :one
SELECT COALESCE(MAX(order_number), 0) + 1 FROM orders WHERE branch_id = $1
`

func (q *Queries) GetNextOrderNumber(ctx context.Context, branchID uuid.UUID) (int32, error) {
	row := q.db.QueryRow(ctx, getNextOrderNumber, branchID)
	var n int32
	err := row.Scan(&n)
	return n, err
}

const createOrder = `-- name: CreateOrder :one
INSERT INTO orders (branch_id, user_id, order_number, channel, payment_method, os_num)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	BranchID      uuid.UUID   `json:"branch_id"`
	UserID        uuid.UUID   `json:"user_id"`
	OrderNumber   int32       `json:"order_number"`
	Channel       string      `json:"channel"`
	PaymentMethod string      `json:"payment_method"`
	OsNum         pgtype.Int4 `json:"os_num"`
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, createOrder,
		arg.BranchID,
		arg.UserID,
		arg.OrderNumber,
		arg.Channel,
		arg.PaymentMethod,
		arg.OsNum,
	))
}

const getOrder = `-- name: GetOrder :one
SELECT ` + orderColumns + ` FROM orders WHERE id = $1
`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

const getOrderForUpdate = `-- name: GetOrderForUpdate :one
SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE
`

// GetOrderForUpdate locks the order row until the transaction ends.
func (q *Queries) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderForUpdate, id))
}

const listUnpaidOrders = `-- name: ListUnpaidOrders :many
SELECT ` + orderColumns + ` FROM orders
WHERE branch_id = $1 AND state = 'OPEN'
ORDER BY created_at
`

func (q *Queries) ListUnpaidOrders(ctx context.Context, branchID uuid.UUID) ([]Order, error) {
	rows, err := q.db.Query(ctx, listUnpaidOrders, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Order{}
	for rows.Next() {
		i, err := scanOrder(rows)
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

const updateOrderPaymentMethod = `-- name: UpdateOrderPaymentMethod :one
UPDATE orders SET payment_method = $2, updated_at = now()
WHERE id = $1 AND state = 'OPEN'
RETURNING ` + orderColumns

type UpdateOrderPaymentMethodParams struct {
	ID            uuid.UUID `json:"id"`
	PaymentMethod string    `json:"payment_method"`
}

func (q *Queries) UpdateOrderPaymentMethod(ctx context.Context, arg UpdateOrderPaymentMethodParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderPaymentMethod, arg.ID, arg.PaymentMethod))
}

const payOrder = `-- name: PayOrder :one
UPDATE orders
SET state = 'PAID', payment_method = $2, total_bill = $3, total_discount = $4,
    paid_at = now(), updated_at = now()
WHERE id = $1 AND state = 'OPEN'
RETURNING ` + orderColumns

type PayOrderParams struct {
	ID            uuid.UUID      `json:"id"`
	PaymentMethod string         `json:"payment_method"`
	TotalBill     pgtype.Numeric `json:"total_bill"`
	TotalDiscount pgtype.Numeric `json:"total_discount"`
}

// PayOrder settles an OPEN order. It returns pgx.ErrNoRows when the order is
// absent or no longer open.
func (q *Queries) PayOrder(ctx context.Context, arg PayOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, payOrder,
		arg.ID,
		arg.PaymentMethod,
		arg.TotalBill,
		arg.TotalDiscount,
	))
}

const cancelOrder = `-- name: CancelOrder :one
UPDATE orders SET state = 'CANCELLED', cancelled_at = now(), updated_at = now()
WHERE id = $1 AND state = 'OPEN'
RETURNING ` + orderColumns

func (q *Queries) CancelOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, cancelOrder, id))
}

const getDailyStats = `-- name: GetDailyStats :one
SELECT
    COUNT(*) FILTER (WHERE channel = 'Dine In' AND state <> 'CANCELLED')  AS dine_in,
    COUNT(*) FILTER (WHERE channel <> 'Dine In' AND state <> 'CANCELLED') AS take_out,
    COUNT(*) FILTER (WHERE state = 'CANCELLED')                           AS cancelled
FROM orders
WHERE branch_id = $1 AND created_at >= $2 AND created_at < $3
`

type GetDailyStatsParams struct {
	BranchID uuid.UUID          `json:"branch_id"`
	From     pgtype.Timestamptz `json:"from"`
	To       pgtype.Timestamptz `json:"to"`
}

type GetDailyStatsRow struct {
	DineIn    int64 `json:"dine_in"`
	TakeOut   int64 `json:"take_out"`
	Cancelled int64 `json:"cancelled"`
}

func (q *Queries) GetDailyStats(ctx context.Context, arg GetDailyStatsParams) (GetDailyStatsRow, error) {
	row := q.db.QueryRow(ctx, getDailyStats, arg.BranchID, arg.From, arg.To)
	var i GetDailyStatsRow
	err := row.Scan(&i.DineIn, &i.TakeOut, &i.Cancelled)
	return i, err
}
