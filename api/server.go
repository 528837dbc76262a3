/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:    Unique ID per request for tracing
  2. Request log:  One zap line per request
  3. Recoverer:    Panic recovery (500 instead of crash)
  4. CORS:         Cross-origin requests for the admin frontend

ROUTE GROUPS:
  /api/health           Liveness (public)
  /api/scenarios/*      Demo scenarios (public, only with EnableScenarios)
  /api/appointments/*   Authenticated users
  /api/invoices/*       Authenticated users
  /api/admin/*          Admins only

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Authenticate, RequireRole
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/warp/consult-ledger/billing"
)

// RouterOptions tune NewRouter.
type RouterOptions struct {
	AllowedOrigins []string

	// EnableScenarios mounts /api/scenarios. Reset and load wipe the store.
	EnableScenarios bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		// Scenario routes
		if opts.EnableScenarios {
			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				r.Post("/load", h.LoadScenario)
				r.Post("/reset", h.ResetDatabase)
			})
		}

		r.Group(func(r chi.Router) {
			r.Use(h.Authenticate)

			r.Route("/appointments", func(r chi.Router) {
				r.Get("/{id}", h.GetAppointment)
				r.Post("/{id}/cancel", h.CancelAppointment)
			})

			r.Get("/invoices/{id}", h.GetInvoice)

			// Admin routes
			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireRole(billing.RoleAdmin))

				r.Get("/revenue", h.GetRevenue)

				r.Get("/refunds", h.ListRefunds)
				r.Put("/refunds/{id}/amount", h.DecideRefundAmount)
				r.Post("/refunds/{id}/process", h.ProcessRefund)

				r.Post("/accounts/{id}/deactivate", h.DeactivateAccount)
				r.Post("/accounts/{id}/reactivate", h.ReactivateAccount)
				r.Post("/accounts/{id}/cascade-cancel", h.CascadeCancel)

				r.Delete("/appointments/{id}", h.PurgeAppointment)

				r.Get("/audit", h.ListAudit)
			})
		})
	})

	return r
}

// requestLogger logs one line per request with zap.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("request",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
