package terminalapi

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/kiwari-pos/terminal/internal/repository"
	log "github.com/sirupsen/logrus"
)

// FilterMenu keeps items whose name contains query (case-insensitive) and,
// when categoryID is set, that belong to that category.
func FilterMenu(items []repository.MenuItem, query string, categoryID uuid.UUID) []repository.MenuItem {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]repository.MenuItem, 0, len(items))
	for _, it := range items {
		if categoryID != uuid.Nil && it.CategoryID != categoryID {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(it.Name), q) {
			continue
		}
		out = append(out, it)
	}
	return out
}

// ListMenu handles GET /menu?q=&category_id=.
func (h *Handler) ListMenu(w http.ResponseWriter, r *http.Request) {
	var categoryID uuid.UUID
	if s := r.URL.Query().Get("category_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid category ID")
			return
		}
		categoryID = id
	}

	items, err := h.catalog.Menu(r.Context(), branchFromContext(r.Context()).ID)
	if err != nil {
		log.WithError(err).Warn("list menu")
		writeError(w, http.StatusBadGateway, "could not reach the order service, try again")
		return
	}
	writeData(w, http.StatusOK, FilterMenu(items, r.URL.Query().Get("q"), categoryID))
}

// ListCategories handles GET /categories.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.catalog.Categories(r.Context())
	if err != nil {
		log.WithError(err).Warn("list categories")
		writeError(w, http.StatusBadGateway, "could not reach the order service, try again")
		return
	}
	writeData(w, http.StatusOK, cats)
}

// GetBoard handles GET /board.
func (h *Handler) GetBoard(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, h.board.Snapshot())
}
