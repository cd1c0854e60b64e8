/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the dashboard
  5. Metrics:    Prometheus request counters and latency
  6. Tenant:     X-Tenant-ID extraction, applied to /api only

TENANCY:
  Every /api route requires the X-Tenant-ID header and fails closed
  with 401 when it is missing. /metrics and /api/health are the only
  unauthenticated surfaces.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/fleetcore/ledger-engine/ledger"
)

// =============================================================================
// TENANT MIDDLEWARE
// =============================================================================

type contextKey int

const tenantContextKey contextKey = iota

// TenantHeader carries the caller's tenant on every /api request.
const TenantHeader = "X-Tenant-ID"

// RequireTenant rejects requests without a tenant header. The tenant is
// never read from the body or query string.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := r.Header.Get(TenantHeader)
		if tenant == "" {
			writeError(w, http.StatusUnauthorized, "Missing "+TenantHeader+" header", nil)
			return
		}
		ctx := context.WithValue(r.Context(), tenantContextKey, ledger.TenantID(tenant))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// tenantFrom returns the tenant set by RequireTenant, or "" outside it
// (which every domain operation rejects as access denied).
func tenantFrom(r *http.Request) ledger.TenantID {
	if t, ok := r.Context().Value(tenantContextKey).(ledger.TenantID); ok {
		return t
	}
	return ""
}

// =============================================================================
// ROUTER
// =============================================================================

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", TenantHeader},
		AllowCredentials: true,
	}))
	r.Use(h.Metrics.Middleware)

	// Unauthenticated scrape endpoint
	r.Get("/metrics", h.Metrics.Handler().ServeHTTP)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Liveness stays outside the tenant guard.
		r.Get("/health", h.Health)

		r.Group(func(r chi.Router) {
			r.Use(RequireTenant)

			// Chart of accounts
			r.Route("/accounts", func(r chi.Router) {
				r.Get("/", h.ListAccounts)
				r.Post("/", h.CreateAccount)
				r.Post("/seed-defaults", h.SeedDefaultChart)
				r.Get("/statistics", h.ChartStatistics)
				r.Get("/{id}/balance", h.GetAccountBalance)
				r.Post("/{id}/deactivate", h.DeactivateAccount)
			})

			// Journal
			r.Route("/journal-entries", func(r chi.Router) {
				r.Get("/", h.ListEntries)
				r.Post("/", h.CreateEntry)
				r.Get("/{id}", h.GetEntry)
				r.Post("/{id}/post", h.PostEntry)
				r.Post("/{id}/reverse", h.ReverseEntry)
			})

			// Reporting
			r.Get("/trial-balance", h.TrialBalance)
			r.Route("/cost-centers", func(r chi.Router) {
				r.Get("/", h.ListCostCenters)
				r.Post("/", h.CreateCostCenter)
				r.Get("/{id}/actuals", h.CostCenterActuals)
			})

			// Business events
			r.Route("/events", func(r chi.Router) {
				r.Post("/payment-received", h.PaymentReceived)
				r.Post("/deposit-returned", h.DepositReturned)
			})

			// Registry
			r.Route("/contracts", func(r chi.Router) {
				r.Get("/", h.ListContracts)
				r.Post("/", h.CreateContract)
			})
			r.Route("/assets", func(r chi.Router) {
				r.Get("/", h.ListAssets)
				r.Post("/", h.CreateAsset)
			})

			// Batch sweeps
			r.Route("/batch", func(r chi.Router) {
				r.Post("/invoices", h.RunInvoiceBatch)
				r.Post("/depreciation", h.RunDepreciationBatch)
				r.Get("/runs", h.ListBatchRuns)
			})
		})
	})

	return r
}
