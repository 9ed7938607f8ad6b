package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/cooltrack/cooltrack/internal/auth"
	"github.com/cooltrack/cooltrack/internal/customers"
	"github.com/cooltrack/cooltrack/internal/equipment"
	"github.com/cooltrack/cooltrack/internal/inventory"
	"github.com/cooltrack/cooltrack/internal/jobcost"
	"github.com/cooltrack/cooltrack/internal/ledger"
	"github.com/cooltrack/cooltrack/internal/observability"
	"github.com/cooltrack/cooltrack/internal/settings"
	"github.com/cooltrack/cooltrack/internal/users"
	"github.com/cooltrack/cooltrack/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	AuthHandler      *auth.Handler
	UsersHandler     *users.Handler
	CustomersHandler *customers.Handler
	InventoryHandler *inventory.Handler
	EquipmentHandler *equipment.Handler
	JobsHandler      *jobcost.Handler
	SettingsHandler  *settings.Handler
	LedgerHandler    *ledger.Handler
	WorkerHandler    *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router. Everything under /api/v1 except
// login goes through the bearer token middleware.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		params.AuthHandler.MountRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(params.AuthHandler.Middleware)

			params.AuthHandler.MountProtectedRoutes(r)
			params.UsersHandler.MountRoutes(r)
			params.CustomersHandler.MountRoutes(r)
			params.InventoryHandler.MountRoutes(r)
			params.EquipmentHandler.MountRoutes(r)
			params.JobsHandler.MountRoutes(r)
			params.SettingsHandler.MountRoutes(r)
			params.LedgerHandler.MountRoutes(r)
			if params.WorkerHandler != nil {
				r.Route("/worker", params.WorkerHandler.MountRoutes)
			}
		})
	})

	return r
}
