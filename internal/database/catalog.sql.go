package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const listBranches = `-- name: ListBranches :many
SELECT id, name, location, created_at FROM branches
ORDER BY name
`

func (q *Queries) ListBranches(ctx context.Context) ([]Branch, error) {
	rows, err := q.db.Query(ctx, listBranches)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Branch{}
	for rows.Next() {
		var i Branch
		if err := rows.Scan(&i.ID, &i.Name, &i.Location, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createBranch = `-- name: CreateBranch :one
INSERT INTO branches (name, location) VALUES ($1, $2)
RETURNING id, name, location, created_at
`

type CreateBranchParams struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

func (q *Queries) CreateBranch(ctx context.Context, arg CreateBranchParams) (Branch, error) {
	row := q.db.QueryRow(ctx, createBranch, arg.Name, arg.Location)
	var i Branch
	err := row.Scan(&i.ID, &i.Name, &i.Location, &i.CreatedAt)
	return i, err
}

const listCategories = `-- name: ListCategories :many
SELECT id, name, created_at FROM categories
ORDER BY name
`

func (q *Queries) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := q.db.Query(ctx, listCategories)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Category{}
	for rows.Next() {
		var i Category
		if err := rows.Scan(&i.ID, &i.Name, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertCategory = `-- name: UpsertCategory :one
INSERT INTO categories (name) VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id, name, created_at
`

func (q *Queries) UpsertCategory(ctx context.Context, name string) (Category, error) {
	row := q.db.QueryRow(ctx, upsertCategory, name)
	var i Category
	err := row.Scan(&i.ID, &i.Name, &i.CreatedAt)
	return i, err
}

const listMenuByBranch = `-- name: ListMenuByBranch :many
SELECT m.id, m.name, m.category_id, c.name AS category_name, m.price, m.branch_id
FROM menu_items m
JOIN categories c ON c.id = m.category_id
WHERE m.branch_id = $1 AND m.is_available = true
ORDER BY c.name, m.name
`

type ListMenuByBranchRow struct {
	ID           uuid.UUID      `json:"id"`
	Name         string         `json:"name"`
	CategoryID   uuid.UUID      `json:"category_id"`
	CategoryName string         `json:"category_name"`
	Price        pgtype.Numeric `json:"price"`
	BranchID     uuid.UUID      `json:"branch_id"`
}

func (q *Queries) ListMenuByBranch(ctx context.Context, branchID uuid.UUID) ([]ListMenuByBranchRow, error) {
	rows, err := q.db.Query(ctx, listMenuByBranch, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ListMenuByBranchRow{}
	for rows.Next() {
		var i ListMenuByBranchRow
		if err := rows.Scan(
			&i.ID,
			&i.Name,
			&i.CategoryID,
			&i.CategoryName,
			&i.Price,
			&i.BranchID,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getMenuItemForOrder = `-- name: GetMenuItemForOrder :one
SELECT id, name, price FROM menu_items
WHERE id = $1 AND branch_id = $2 AND is_available = true
`

type GetMenuItemForOrderParams struct {
	ID       uuid.UUID `json:"id"`
	BranchID uuid.UUID `json:"branch_id"`
}

type GetMenuItemForOrderRow struct {
	ID    uuid.UUID      `json:"id"`
	Name  string         `json:"name"`
	Price pgtype.Numeric `json:"price"`
}

func (q *Queries) GetMenuItemForOrder(ctx context.Context, arg GetMenuItemForOrderParams) (GetMenuItemForOrderRow, error) {
	row := q.db.QueryRow(ctx, getMenuItemForOrder, arg.ID, arg.BranchID)
	var i GetMenuItemForOrderRow
	err := row.Scan(&i.ID, &i.Name, &i.Price)
	return i, err
}

const createMenuItem = `-- name: CreateMenuItem :one
INSERT INTO menu_items (branch_id, category_id, name, price)
VALUES ($1, $2, $3, $4)
RETURNING id, branch_id, category_id, name, price, is_available, created_at
`

type CreateMenuItemParams struct {
	BranchID   uuid.UUID      `json:"branch_id"`
	CategoryID uuid.UUID      `json:"category_id"`
	Name       string         `json:"name"`
	Price      pgtype.Numeric `json:"price"`
}

func (q *Queries) CreateMenuItem(ctx context.Context, arg CreateMenuItemParams) (MenuItem, error) {
	row := q.db.QueryRow(ctx, createMenuItem, arg.BranchID, arg.CategoryID, arg.Name, arg.Price)
	var i MenuItem
	err := row.Scan(
		&i.ID,
		&i.BranchID,
		&i.CategoryID,
		&i.Name,
		&i.Price,
		&i.IsAvailable,
		&i.CreatedAt,
	)
	return i, err
}
