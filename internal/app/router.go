package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/veris-bms/veris/internal/audit"
	"github.com/veris-bms/veris/internal/auth"
	"github.com/veris-bms/veris/internal/commission"
	"github.com/veris-bms/veris/internal/invoices"
	"github.com/veris-bms/veris/internal/masterdata/clients"
	"github.com/veris-bms/veris/internal/masterdata/companies"
	"github.com/veris-bms/veris/internal/masterdata/files"
	"github.com/veris-bms/veris/internal/observability"
	"github.com/veris-bms/veris/internal/platform/httpx"
	"github.com/veris-bms/veris/internal/shared"
	"github.com/veris-bms/veris/internal/users"
	"github.com/veris-bms/veris/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager

	AuthHandler       *auth.Handler
	UsersHandler      *users.Handler
	ClientsHandler    *clients.Handler
	CompaniesHandler  *companies.Handler
	FilesHandler      *files.Handler
	CommissionHandler *commission.Handler
	InvoicesHandler   *invoices.Handler
	AuditHandler      *audit.Handler
	JobHandler        *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router with Veris defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
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

	r.Route("/api", func(api chi.Router) {
		api.Route("/auth", params.AuthHandler.MountRoutes)
		api.Route("/users", params.UsersHandler.MountRoutes)
		api.Route("/clients", params.ClientsHandler.MountRoutes)
		api.Route("/companies", params.CompaniesHandler.MountRoutes)
		api.Route("/files", params.FilesHandler.MountRoutes)
		api.Route("/commission-tiers", params.CommissionHandler.MountRoutes)
		api.Route("/invoices", params.InvoicesHandler.MountRoutes)
		api.Route("/audit", params.AuditHandler.MountRoutes)
		if params.JobHandler != nil {
			api.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Fail(w, http.StatusNotFound, "route not found")
	})

	return r
}
