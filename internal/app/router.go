package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/sgp-project/sgp/internal/audit"
	"github.com/sgp-project/sgp/internal/backlog"
	"github.com/sgp-project/sgp/internal/observability"
	"github.com/sgp-project/sgp/internal/projects"
	"github.com/sgp-project/sgp/internal/rbac"
	"github.com/sgp-project/sgp/internal/shared"
	"github.com/sgp-project/sgp/internal/users"
	"github.com/sgp-project/sgp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	SessionManager  *shared.SessionManager
	UsersHandler    *users.Handler
	ProjectsHandler *projects.Handler
	RBACHandler     *rbac.Handler
	BacklogHandler  *backlog.Handler
	AuditHandler    *audit.Handler
	JobsHandler     *jobs.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with SGP defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
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

	if params.UsersHandler != nil {
		r.Route("/users", params.UsersHandler.MountRoutes)
	}
	r.Route("/projects", func(r chi.Router) {
		params.ProjectsHandler.MountRoutes(r)
		r.Route("/{projectID}", func(r chi.Router) {
			params.ProjectsHandler.MountProjectRoutes(r)
			params.RBACHandler.MountRoutes(r)
			if params.BacklogHandler != nil {
				params.BacklogHandler.MountRoutes(r)
			}
		})
	})
	if params.AuditHandler != nil {
		r.Route("/audit", params.AuditHandler.MountRoutes)
	}
	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
