package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiwari-pos/terminal/internal/config"
	"github.com/kiwari-pos/terminal/internal/database"
	"github.com/kiwari-pos/terminal/internal/enum"
	"github.com/kiwari-pos/terminal/internal/events"
	"github.com/kiwari-pos/terminal/internal/handler"
	mw "github.com/kiwari-pos/terminal/internal/middleware"
	"github.com/kiwari-pos/terminal/internal/service"
	"github.com/kiwari-pos/terminal/internal/ws"
	log "github.com/sirupsen/logrus"
)

// New creates a Chi router with all repository API routes wired up.
// Applies authentication and branch scoping middleware as needed.
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, hub *ws.Hub, pub events.Publisher) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
	})

	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// Menu reference data is public; terminals list branches before login.
	catalogHandler := handler.NewCatalogHandler(queries)
	catalogHandler.RegisterRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/branches/{bid}/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))
		r.Use(mw.RequireRole(enum.UserRoleOwner, enum.UserRoleManager, enum.UserRoleCashier))
		r.Use(mw.RequireBranch)

		newOrderStore := func(db database.DBTX) service.OrderStore {
			return database.New(db)
		}
		orderService := service.NewOrderService(pool, newOrderStore)
		orderHandler := handler.NewOrderHandler(orderService, queries, pub)
		r.Route("/orders", orderHandler.RegisterRoutes)
	})

	log.Debug("router initialized")
	return r
}
