package database

import (
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type Branch struct {
	ID        uuid.UUID          `json:"id"`
	Name      string             `json:"name"`
	Location  string             `json:"location"`
	CreatedAt pgtype.Timestamptz `json:"created_at"`
}

type User struct {
	ID             uuid.UUID          `json:"id"`
	BranchID       pgtype.UUID        `json:"branch_id"`
	Email          string             `json:"email"`
	HashedPassword string             `json:"hashed_password"`
	FullName       string             `json:"full_name"`
	Role           string             `json:"role"`
	IsActive       bool               `json:"is_active"`
	CreatedAt      pgtype.Timestamptz `json:"created_at"`
}

type Category struct {
	ID        uuid.UUID          `json:"id"`
	Name      string             `json:"name"`
	CreatedAt pgtype.Timestamptz `json:"created_at"`
}

type MenuItem struct {
	ID          uuid.UUID          `json:"id"`
	BranchID    uuid.UUID          `json:"branch_id"`
	CategoryID  uuid.UUID          `json:"category_id"`
	Name        string             `json:"name"`
	Price       pgtype.Numeric     `json:"price"`
	IsAvailable bool               `json:"is_available"`
	CreatedAt   pgtype.Timestamptz `json:"created_at"`
}

type Order struct {
	ID            uuid.UUID          `json:"id"`
	BranchID      uuid.UUID          `json:"branch_id"`
	UserID        uuid.UUID          `json:"user_id"`
	OrderNumber   int32              `json:"order_number"`
	Channel       string             `json:"channel"`
	PaymentMethod string             `json:"payment_method"`
	State         string             `json:"state"`
	OsNum         pgtype.Int4        `json:"os_num"`
	TotalBill     pgtype.Numeric     `json:"total_bill"`
	TotalDiscount pgtype.Numeric     `json:"total_discount"`
	CreatedAt     pgtype.Timestamptz `json:"created_at"`
	UpdatedAt     pgtype.Timestamptz `json:"updated_at"`
	PaidAt        pgtype.Timestamptz `json:"paid_at"`
	CancelledAt   pgtype.Timestamptz `json:"cancelled_at"`
}

type OrderItem struct {
	ID          uuid.UUID          `json:"id"`
	OrderID     uuid.UUID          `json:"order_id"`
	MenuItemID  uuid.UUID          `json:"menu_item_id"`
	MenuName    string             `json:"menu_name"`
	Quantity    int32              `json:"quantity"`
	PriceAtTime pgtype.Numeric     `json:"price_at_time"`
	Served      bool               `json:"served"`
	CreatedAt   pgtype.Timestamptz `json:"created_at"`
}
