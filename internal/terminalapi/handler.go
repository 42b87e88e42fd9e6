// Package terminalapi is the HTTP surface the workstation UI drives: session
// sign-in and branch selection, catalog pass-through, every working-order
// action and the order board.
package terminalapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/kiwari-pos/terminal/internal/board"
	"github.com/kiwari-pos/terminal/internal/repository"
	"github.com/kiwari-pos/terminal/internal/session"
	"github.com/kiwari-pos/terminal/internal/terminal"
)

// SessionStore is the persisted staff session.
// Satisfied by *session.Session; narrow interface for testability.
type SessionStore interface {
	Wait(ctx context.Context) error
	User() (session.User, error)
	Branch() (session.Branch, error)
	SignIn(ctx context.Context, u session.User, token string) error
	SelectBranch(ctx context.Context, b session.Branch) error
	Clear(ctx context.Context) error
}

// Board is the polled order board. Satisfied by *board.Poller.
type Board interface {
	Snapshot() board.Snapshot
	Nudge()
}

// Handler serves the terminal API.
type Handler struct {
	session  SessionStore
	identity repository.Identity
	catalog  repository.Catalog
	term     *terminal.Terminal
	board    Board

	// hydrateWait bounds how long the branch gate waits for the session to
	// load before answering.
	hydrateWait time.Duration
}

func New(sess SessionStore, identity repository.Identity, catalog repository.Catalog, term *terminal.Terminal, b Board) *Handler {
	return &Handler{
		session:     sess,
		identity:    identity,
		catalog:     catalog,
		term:        term,
		board:       b,
		hydrateWait: 5 * time.Second,
	}
}

// Router builds the chi router for the terminal API.
func (h *Handler) Router(allowedOrigins []string) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/session", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
		r.Put("/branch", h.SelectBranch)
	})
	r.Get("/branches", h.ListBranches)

	r.Group(func(r chi.Router) {
		r.Use(h.RequireBranch)

		r.Get("/menu", h.ListMenu)
		r.Get("/categories", h.ListCategories)
		r.Get("/board", h.GetBoard)

		r.Route("/terminal", h.registerTerminalRoutes)
	})

	return r
}

type branchKey struct{}

// RequireBranch admits requests only once the session is hydrated, a user is
// signed in and a branch is selected. It waits for hydration instead of
// answering "no branch" for a session that is still loading.
func (h *Handler) RequireBranch(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), h.hydrateWait)
		err := h.session.Wait(ctx)
		cancel()
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "session is still loading")
			return
		}

		if _, err := h.session.User(); err != nil {
			writeError(w, http.StatusUnauthorized, "not signed in")
			return
		}
		b, err := h.session.Branch()
		if err != nil {
			writeError(w, http.StatusPreconditionRequired, "no branch selected")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), branchKey{}, b)))
	})
}

func branchFromContext(ctx context.Context) session.Branch {
	b, _ := ctx.Value(branchKey{}).(session.Branch)
	return b
}
