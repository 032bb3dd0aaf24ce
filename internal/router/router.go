package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tabslip/api/internal/config"
	"github.com/tabslip/api/internal/handler"
	mw "github.com/tabslip/api/internal/middleware"
	"github.com/tabslip/api/internal/notify"
	"github.com/tabslip/api/internal/service"
	"github.com/tabslip/api/internal/store"
	"github.com/tabslip/api/internal/ws"
)

// staffRoles are the roles allowed on staff-facing billing routes.
var staffRoles = []string{store.UserRoleManager, store.UserRoleWaiter, store.UserRoleCashier}

// New creates a Chi router with all application routes wired up.
// Customer-facing session and billing routes are public; settlement
// and notification routes require a staff token.
func New(cfg *config.Config, queries *store.Queries, pool *pgxpool.Pool, hub *ws.Hub, notifier *notify.Notifier) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(mw.Metrics)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
	})
	r.Handle("/metrics", promhttp.Handler())

	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/payments", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	newSessionStore := func(db store.DBTX) service.SessionStore { return store.New(db) }
	newBillingStore := func(db store.DBTX) service.BillingStore { return store.New(db) }
	sessionService := service.NewSessionService(pool, store.New(pool), newSessionStore)
	billingService := service.NewBillingService(pool, store.New(pool), newBillingStore, notifier)

	sessionHandler := handler.NewSessionHandler(sessionService)
	orderHandler := handler.NewOrderHandler(sessionService)
	billingHandler := handler.NewBillingHandler(billingService, notifier)

	r.Route("/orders", func(r chi.Router) {
		// Customer-facing, no auth: these run on the table-side device.
		r.Post("/", orderHandler.Place)
		r.Post("/session", sessionHandler.Open)
		r.Route("/session/{sessionId}", func(r chi.Router) {
			r.Get("/", sessionHandler.Get)
			r.Get("/orders", sessionHandler.Orders)
			r.Get("/bill", billingHandler.Bill)
			r.Get("/bill-record", billingHandler.BillRecord)
			r.Post("/pay-request", billingHandler.PayRequest)
		})

		// Staff-facing routes.
		r.Group(func(r chi.Router) {
			r.Use(mw.Authenticate(cfg.JWTSecret))
			r.Use(mw.RequireRole(staffRoles...))

			r.Patch("/{orderId}/status", orderHandler.UpdateStatus)
			r.Delete("/{orderId}", orderHandler.Cancel)
			r.Patch("/session/{sessionId}/billing-status", billingHandler.SetBillingStatus)
			r.Get("/payments", billingHandler.LivePayments)
			r.Post("/payments/{sessionId}/ack", billingHandler.AcknowledgePayment)
		})
	})

	return r
}
