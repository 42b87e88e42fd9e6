// Package repository defines the contracts the terminal consumes from the
// order, catalog and identity collaborators, and the JSON shapes they share.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiwari-pos/terminal/internal/enum"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalid      = errors.New("rejected by repository")
)

type Order struct {
	ID            uuid.UUID          `json:"order_id"`
	Channel       enum.Channel       `json:"status"`
	PaymentMethod enum.PaymentMethod `json:"payment_method"`
	State         string             `json:"state"`
	BranchID      uuid.UUID          `json:"branch_id"`
	UserID        uuid.UUID          `json:"user_id"`
	OSNum         *int               `json:"os_num,omitempty"`
	TotalBill     decimal.Decimal    `json:"total_bill"`
	TotalDiscount decimal.Decimal    `json:"total_discount"`
	CreatedAt     time.Time          `json:"created_at"`
	PaidAt        *time.Time         `json:"paid_at,omitempty"`
	Items         []OrderItem        `json:"items"`
}

type OrderItem struct {
	ID          uuid.UUID       `json:"order_item_id"`
	MenuItemID  uuid.UUID       `json:"menu_id"`
	Name        string          `json:"menu_name"`
	Quantity    int             `json:"quantity"`
	PriceAtTime decimal.Decimal `json:"price_at_time"`
	Served      bool            `json:"served"`
}

// LineInput is one line pushed on create or update. OrderItemID and Served
// are only sent on update.
type LineInput struct {
	MenuItemID  uuid.UUID  `json:"menu_id"`
	Quantity    int        `json:"quantity"`
	OrderItemID *uuid.UUID `json:"order_item_id,omitempty"`
	Served      *bool      `json:"served,omitempty"`
}

type NewOrder struct {
	Channel       enum.Channel       `json:"status"`
	PaymentMethod enum.PaymentMethod `json:"payment_method"`
	BranchID      uuid.UUID          `json:"branch_id"`
	UserID        uuid.UUID          `json:"user_id"`
	OSNum         *int               `json:"os_num,omitempty"`
	Items         []LineInput        `json:"items"`
}

type OrderUpdate struct {
	PaymentMethod enum.PaymentMethod `json:"payment_method"`
	Items         []LineInput        `json:"items"`
}

type Payment struct {
	PaymentMethod enum.PaymentMethod `json:"payment_method"`
	TotalBill     decimal.Decimal    `json:"total_bill"`
	TotalDiscount decimal.Decimal    `json:"total_discount"`
}

type DailyStats struct {
	DineIn    int `json:"dine_in"`
	TakeOut   int `json:"take_out"`
	Cancelled int `json:"cancelled"`
}

type MenuItem struct {
	ID           uuid.UUID       `json:"menu_id"`
	Name         string          `json:"menu_name"`
	CategoryID   uuid.UUID       `json:"category_id"`
	CategoryName string          `json:"category_name"`
	Price        decimal.Decimal `json:"price"`
	BranchID     uuid.UUID       `json:"branch_id"`
}

type Category struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"category_name"`
}

type Branch struct {
	ID       uuid.UUID `json:"branch_id"`
	Name     string    `json:"branch_name"`
	Location string    `json:"location"`
}

type LoginResult struct {
	ID       uuid.UUID `json:"id"`
	FullName string    `json:"full_name"`
	Role     string    `json:"role"`
	Token    string    `json:"token"`
}

// Orders is the order repository.
type Orders interface {
	CreateOrder(ctx context.Context, o NewOrder) (Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (Order, error)
	UpdateOrder(ctx context.Context, id uuid.UUID, u OrderUpdate) (Order, error)
	PayOrder(ctx context.Context, id uuid.UUID, p Payment) (Order, error)
	CancelOrder(ctx context.Context, id uuid.UUID) (Order, error)
	ListUnpaid(ctx context.Context, branchID uuid.UUID) ([]Order, error)
	DailyStats(ctx context.Context, branchID uuid.UUID) (DailyStats, error)
}

// Catalog supplies menu reference data.
type Catalog interface {
	Menu(ctx context.Context, branchID uuid.UUID) ([]MenuItem, error)
	Categories(ctx context.Context) ([]Category, error)
	Branches(ctx context.Context) ([]Branch, error)
}

// Identity authenticates staff.
type Identity interface {
	Login(ctx context.Context, email, password string) (LoginResult, error)
}
