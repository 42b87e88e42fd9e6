package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiwari-pos/terminal/internal/database"
)

// CatalogStore defines the database methods needed by catalog handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type CatalogStore interface {
	ListBranches(ctx context.Context) ([]database.Branch, error)
	ListCategories(ctx context.Context) ([]database.Category, error)
	ListMenuByBranch(ctx context.Context, branchID uuid.UUID) ([]database.ListMenuByBranchRow, error)
}

// CatalogHandler serves the read-only menu reference data.
type CatalogHandler struct {
	store CatalogStore
}

func NewCatalogHandler(store CatalogStore) *CatalogHandler {
	return &CatalogHandler{store: store}
}

func (h *CatalogHandler) RegisterRoutes(r chi.Router) {
	r.Get("/branches", h.ListBranches)
	r.Get("/categories", h.ListCategories)
	r.Get("/menu", h.ListMenu)
}

type branchResponse struct {
	ID       uuid.UUID `json:"branch_id"`
	Name     string    `json:"branch_name"`
	Location string    `json:"location"`
}

type categoryResponse struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"category_name"`
}

type menuItemResponse struct {
	ID           uuid.UUID `json:"menu_id"`
	Name         string    `json:"menu_name"`
	CategoryID   uuid.UUID `json:"category_id"`
	CategoryName string    `json:"category_name"`
	Price        string    `json:"price"`
	BranchID     uuid.UUID `json:"branch_id"`
}

// ListBranches handles GET /branches.
func (h *CatalogHandler) ListBranches(w http.ResponseWriter, r *http.Request) {
	branches, err := h.store.ListBranches(r.Context())
	if err != nil {
		internalError(w, "list branches", err)
		return
	}
	resp := make([]branchResponse, len(branches))
	for i, b := range branches {
		resp[i] = branchResponse{ID: b.ID, Name: b.Name, Location: b.Location}
	}
	writeData(w, http.StatusOK, resp)
}

// ListCategories handles GET /categories.
func (h *CatalogHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.store.ListCategories(r.Context())
	if err != nil {
		internalError(w, "list categories", err)
		return
	}
	resp := make([]categoryResponse, len(cats))
	for i, c := range cats {
		resp[i] = categoryResponse{ID: c.ID, Name: c.Name}
	}
	writeData(w, http.StatusOK, resp)
}

// ListMenu handles GET /menu?branch_id=.
func (h *CatalogHandler) ListMenu(w http.ResponseWriter, r *http.Request) {
	branchID, err := uuid.Parse(r.URL.Query().Get("branch_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "branch_id is required")
		return
	}
	rows, err := h.store.ListMenuByBranch(r.Context(), branchID)
	if err != nil {
		internalError(w, "list menu", err)
		return
	}
	resp := make([]menuItemResponse, len(rows))
	for i, m := range rows {
		resp[i] = menuItemResponse{
			ID:           m.ID,
			Name:         m.Name,
			CategoryID:   m.CategoryID,
			CategoryName: m.CategoryName,
			Price:        numericToString(m.Price),
			BranchID:     m.BranchID,
		}
	}
	writeData(w, http.StatusOK, resp)
}
