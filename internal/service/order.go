package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/terminal/internal/database"
	"github.com/kiwari-pos/terminal/internal/enum"
	"github.com/shopspring/decimal"
)

const maxOrderNumberRetries = 3

// Errors returned by the order service.
var (
	ErrEmptyItems           = errors.New("items are required")
	ErrInvalidChannel       = errors.New("invalid status")
	ErrInvalidPaymentMethod = errors.New("invalid payment_method")
	ErrInvalidQuantity      = errors.New("quantity must be > 0")
	ErrInvalidMenuItemID    = errors.New("invalid menu_id")
	ErrMenuItemNotFound     = errors.New("menu item not found in branch")
	ErrInvalidOSNum         = errors.New("os_num must be a positive number")
	ErrInvalidAmount        = errors.New("total_bill and total_discount must be non-negative amounts")
	ErrDiscountExceedsBill  = errors.New("total_discount cannot exceed total_bill")
	ErrUnknownReference     = errors.New("unknown branch or user")
	ErrOrderNotFound        = errors.New("order not found")
	ErrOrderPaid            = errors.New("order is already paid")
	ErrOrderCancelled       = errors.New("order is already cancelled")
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderStore defines the DB methods needed to write orders.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	GetNextOrderNumber(ctx context.Context, branchID uuid.UUID) (int32, error)
	GetMenuItemForOrder(ctx context.Context, arg database.GetMenuItemForOrderParams) (database.GetMenuItemForOrderRow, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	UpdateOrderItem(ctx context.Context, arg database.UpdateOrderItemParams) error
	DeleteOrderItem(ctx context.Context, arg database.DeleteOrderItemParams) error
	UpdateOrderPaymentMethod(ctx context.Context, arg database.UpdateOrderPaymentMethodParams) (database.Order, error)
	PayOrder(ctx context.Context, arg database.PayOrderParams) (database.Order, error)
	CancelOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
// This allows the service to create store instances from transactions.
type NewOrderStore func(db database.DBTX) OrderStore

// CreateOrderRequest is the input for creating an order.
type CreateOrderRequest struct {
	BranchID      uuid.UUID
	UserID        uuid.UUID
	Channel       string
	PaymentMethod string
	OSNum         *int
	Items         []OrderLineRequest
}

// OrderLineRequest is one line on create or update. OrderItemID and Served
// are only meaningful on update.
type OrderLineRequest struct {
	MenuItemID  string
	Quantity    int32
	OrderItemID string
	Served      *bool
}

// UpdateOrderRequest replaces the lines of an open order. An empty
// PaymentMethod keeps the current one.
type UpdateOrderRequest struct {
	PaymentMethod string
	Items         []OrderLineRequest
}

// PayOrderRequest settles an open order.
type PayOrderRequest struct {
	PaymentMethod string
	TotalBill     string
	TotalDiscount string
}

// OrderResult is an order with its lines.
type OrderResult struct {
	Order database.Order
	Items []database.OrderItem
}

// OrderService handles order business logic.
type OrderService struct {
	pool     TxBeginner
	newStore NewOrderStore
}

// NewOrderService creates a new OrderService.
func NewOrderService(pool TxBeginner, newStore NewOrderStore) *OrderService {
	return &OrderService{pool: pool, newStore: newStore}
}

// CreateOrder validates lines, snapshots menu prices and creates an order
// atomically. Retries up to maxOrderNumberRetries times on order_number
// unique constraint violations (concurrent transactions reading the same MAX).
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*OrderResult, error) {
	if _, err := enum.ParseChannel(req.Channel); err != nil {
		return nil, ErrInvalidChannel
	}
	if _, err := enum.ParsePaymentMethod(req.PaymentMethod); err != nil {
		return nil, ErrInvalidPaymentMethod
	}
	if req.OSNum != nil && *req.OSNum <= 0 {
		return nil, ErrInvalidOSNum
	}
	if err := validateLines(req.Items); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < maxOrderNumberRetries; attempt++ {
		result, err := s.createOrderTx(ctx, req)
		if err == nil {
			return result, nil
		}
		if isOrderNumberConflict(err) {
			lastErr = err
			continue
		}
		if isForeignKeyViolation(err) {
			return nil, ErrUnknownReference
		}
		return nil, err
	}
	return nil, lastErr
}

// isOrderNumberConflict checks if the error is a unique constraint violation
// on the order number (pgconn error code 23505).
func isOrderNumberConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == "orders_branch_id_order_number_key"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func validateLines(items []OrderLineRequest) error {
	if len(items) == 0 {
		return ErrEmptyItems
	}
	for i, item := range items {
		if item.Quantity <= 0 {
			return fmt.Errorf("item[%d]: %w", i, ErrInvalidQuantity)
		}
		if _, err := uuid.Parse(item.MenuItemID); err != nil {
			return fmt.Errorf("item[%d]: %w", i, ErrInvalidMenuItemID)
		}
	}
	return nil
}

func (s *OrderService) createOrderTx(ctx context.Context, req CreateOrderRequest) (*OrderResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	nextNum, err := store.GetNextOrderNumber(ctx, req.BranchID)
	if err != nil {
		return nil, fmt.Errorf("get next order number: %w", err)
	}

	osNum := pgtype.Int4{}
	if req.OSNum != nil {
		osNum = pgtype.Int4{Int32: int32(*req.OSNum), Valid: true}
	}

	// Prices are resolved before the insert so an unknown item fails early.
	lines := make([]database.CreateOrderItemParams, 0, len(req.Items))
	for i, item := range req.Items {
		params, err := priceLine(ctx, store, req.BranchID, item)
		if err != nil {
			return nil, fmt.Errorf("item[%d]: %w", i, err)
		}
		lines = append(lines, params)
	}

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		BranchID:      req.BranchID,
		UserID:        req.UserID,
		OrderNumber:   nextNum,
		Channel:       req.Channel,
		PaymentMethod: req.PaymentMethod,
		OsNum:         osNum,
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	items := make([]database.OrderItem, 0, len(lines))
	for _, params := range lines {
		params.OrderID = order.ID
		item, err := store.CreateOrderItem(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}
		items = append(items, item)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &OrderResult{Order: order, Items: items}, nil
}

// priceLine snapshots the current branch price of a new line.
func priceLine(ctx context.Context, store OrderStore, branchID uuid.UUID, item OrderLineRequest) (database.CreateOrderItemParams, error) {
	menuID, err := uuid.Parse(item.MenuItemID)
	if err != nil {
		return database.CreateOrderItemParams{}, ErrInvalidMenuItemID
	}
	menu, err := store.GetMenuItemForOrder(ctx, database.GetMenuItemForOrderParams{ID: menuID, BranchID: branchID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.CreateOrderItemParams{}, ErrMenuItemNotFound
		}
		return database.CreateOrderItemParams{}, fmt.Errorf("get menu item: %w", err)
	}
	return database.CreateOrderItemParams{
		MenuItemID:  menuID,
		Quantity:    item.Quantity,
		PriceAtTime: menu.Price,
		Served:      item.Served != nil && *item.Served,
	}, nil
}

// lockOpenOrder loads the order FOR UPDATE and refuses closed orders.
func lockOpenOrder(ctx context.Context, store OrderStore, id uuid.UUID) (database.Order, error) {
	order, err := store.GetOrderForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("get order: %w", err)
	}
	switch order.State {
	case enum.OrderStatePaid:
		return database.Order{}, ErrOrderPaid
	case enum.OrderStateCancelled:
		return database.Order{}, ErrOrderCancelled
	}
	return order, nil
}

// UpdateOrder reconciles the lines of an open order with the request:
// lines carrying an order_item_id of this order are updated in place, other
// lines are inserted at the current menu price, and persisted lines missing
// from the request are deleted.
func (s *OrderService) UpdateOrder(ctx context.Context, id uuid.UUID, req UpdateOrderRequest) (*OrderResult, error) {
	if req.PaymentMethod != "" {
		if _, err := enum.ParsePaymentMethod(req.PaymentMethod); err != nil {
			return nil, ErrInvalidPaymentMethod
		}
	}
	if err := validateLines(req.Items); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := lockOpenOrder(ctx, store, id)
	if err != nil {
		return nil, err
	}

	existing, err := store.ListOrderItemsByOrder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	persisted := make(map[uuid.UUID]database.OrderItem, len(existing))
	for _, it := range existing {
		persisted[it.ID] = it
	}

	kept := make(map[uuid.UUID]bool, len(req.Items))
	for i, item := range req.Items {
		if itemID, err := uuid.Parse(item.OrderItemID); err == nil {
			if cur, ok := persisted[itemID]; ok && !kept[itemID] {
				served := cur.Served
				if item.Served != nil {
					served = *item.Served
				}
				if err := store.UpdateOrderItem(ctx, database.UpdateOrderItemParams{
					ID:       itemID,
					OrderID:  id,
					Quantity: item.Quantity,
					Served:   served,
				}); err != nil {
					return nil, fmt.Errorf("item[%d]: update order item: %w", i, err)
				}
				kept[itemID] = true
				continue
			}
		}

		params, err := priceLine(ctx, store, order.BranchID, item)
		if err != nil {
			return nil, fmt.Errorf("item[%d]: %w", i, err)
		}
		params.OrderID = id
		created, err := store.CreateOrderItem(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("item[%d]: create order item: %w", i, err)
		}
		kept[created.ID] = true
	}

	for _, it := range existing {
		if kept[it.ID] {
			continue
		}
		if err := store.DeleteOrderItem(ctx, database.DeleteOrderItemParams{ID: it.ID, OrderID: id}); err != nil {
			return nil, fmt.Errorf("delete order item: %w", err)
		}
	}

	method := req.PaymentMethod
	if method == "" {
		method = order.PaymentMethod
	}
	order, err = store.UpdateOrderPaymentMethod(ctx, database.UpdateOrderPaymentMethodParams{ID: id, PaymentMethod: method})
	if err != nil {
		return nil, fmt.Errorf("touch order: %w", err)
	}

	items, err := store.ListOrderItemsByOrder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &OrderResult{Order: order, Items: items}, nil
}

// PayOrder moves an open order to PAID, recording the method, bill and
// discount.
func (s *OrderService) PayOrder(ctx context.Context, id uuid.UUID, req PayOrderRequest) (*OrderResult, error) {
	if _, err := enum.ParsePaymentMethod(req.PaymentMethod); err != nil {
		return nil, ErrInvalidPaymentMethod
	}
	bill, err := decimal.NewFromString(req.TotalBill)
	if err != nil || bill.IsNegative() {
		return nil, ErrInvalidAmount
	}
	disc := decimal.Zero
	if req.TotalDiscount != "" {
		disc, err = decimal.NewFromString(req.TotalDiscount)
		if err != nil || disc.IsNegative() {
			return nil, ErrInvalidAmount
		}
	}
	if disc.GreaterThan(bill) {
		return nil, ErrDiscountExceedsBill
	}

	return s.closeOrder(ctx, id, func(store OrderStore) (database.Order, error) {
		return store.PayOrder(ctx, database.PayOrderParams{
			ID:            id,
			PaymentMethod: req.PaymentMethod,
			TotalBill:     database.DecimalToNumeric(bill),
			TotalDiscount: database.DecimalToNumeric(disc),
		})
	})
}

// CancelOrder moves an open order to CANCELLED.
func (s *OrderService) CancelOrder(ctx context.Context, id uuid.UUID) (*OrderResult, error) {
	return s.closeOrder(ctx, id, func(store OrderStore) (database.Order, error) {
		return store.CancelOrder(ctx, id)
	})
}

// closeOrder runs a conditional OPEN -> final transition under the row lock.
func (s *OrderService) closeOrder(ctx context.Context, id uuid.UUID, transition func(OrderStore) (database.Order, error)) (*OrderResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	if _, err := lockOpenOrder(ctx, store, id); err != nil {
		return nil, err
	}
	order, err := transition(store)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("close order: %w", err)
	}
	items, err := store.ListOrderItemsByOrder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &OrderResult{Order: order, Items: items}, nil
}
