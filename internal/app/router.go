package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atlas-erp/atlas-erp/internal/auth"
	"github.com/atlas-erp/atlas-erp/internal/dashboard"
	"github.com/atlas-erp/atlas-erp/internal/documents"
	"github.com/atlas-erp/atlas-erp/internal/masterdata/contacts"
	"github.com/atlas-erp/atlas-erp/internal/masterdata/products"
	"github.com/atlas-erp/atlas-erp/internal/masterdata/warehouses"
	"github.com/atlas-erp/atlas-erp/internal/notifications"
	"github.com/atlas-erp/atlas-erp/internal/observability"
	"github.com/atlas-erp/atlas-erp/internal/platform/httpx"
	"github.com/atlas-erp/atlas-erp/internal/settings"
	"github.com/atlas-erp/atlas-erp/internal/shared"
	"github.com/atlas-erp/atlas-erp/internal/stock"
	"github.com/atlas-erp/atlas-erp/jobs"
)

// RouterParams carries every dependency the HTTP surface needs.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Metrics        *observability.Metrics
	Pool           *pgxpool.Pool

	Auth          *auth.Handler
	Documents     *documents.Handler
	Stock         *stock.Handler
	Products      *products.Handler
	Contacts      *contacts.Handler
	Warehouses    *warehouses.Handler
	Dashboard     *dashboard.Handler
	Notifications *notifications.Handler
	Settings      *settings.Handler
	Jobs          *jobs.Handler
}

// NewRouter assembles the chi router with the full middleware stack.
func NewRouter(p RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         p.Logger,
		Config:         p.Config,
		SessionManager: p.SessionManager,
		CSRFManager:    p.CSRFManager,
		Metrics:        p.Metrics,
	}) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		status := "ok"
		code := http.StatusOK
		if p.Pool != nil {
			if err := p.Pool.Ping(req.Context()); err != nil {
				status = "degraded"
				code = http.StatusServiceUnavailable
			}
		}
		httpx.JSON(w, code, map[string]string{"status": status})
	})
	r.Handle("/metrics", promhttp.Handler())

	// Login and CSRF bootstrap are the only unauthenticated endpoints.
	r.Group(func(r chi.Router) {
		p.Auth.MountRoutes(r)
		r.Get("/csrf", func(w http.ResponseWriter, req *http.Request) {
			sess := shared.SessionFromContext(req.Context())
			token, err := p.CSRFManager.EnsureToken(req.Context(), sess)
			if err != nil {
				httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "could not issue token")
				return
			}
			httpx.JSON(w, http.StatusOK, map[string]string{"token": token})
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)

		p.Dashboard.MountRoutes(r)
		p.Notifications.MountRoutes(r)
		p.Settings.MountRoutes(r, auth.RequireAdmin)

		// Business resources: reads for everyone, writes for admins and managers.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireWriter)
			p.Documents.MountRoutes(r)
			p.Stock.MountRoutes(r)
			p.Products.MountRoutes(r)
			p.Contacts.MountRoutes(r)
			p.Warehouses.MountRoutes(r)
		})

		if p.Jobs != nil {
			r.Route("/jobs", func(r chi.Router) {
				r.Use(auth.RequireAdmin)
				p.Jobs.MountRoutes(r)
			})
		}
	})

	return r
}
