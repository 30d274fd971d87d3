package rbac

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sgp-project/sgp/internal/perm"
	"github.com/sgp-project/sgp/internal/shared"
)

// AuthzObserver counts gate decisions. Implemented by
// observability.Metrics; nil disables counting.
type AuthzObserver interface {
	ObserveAuthz(scope, result string)
}

// Middleware wires authorization gates for HTTP handlers.
type Middleware struct {
	Checker *Checker
	Logger  *slog.Logger
	Metrics AuthzObserver
}

func (m Middleware) observe(scope string, granted bool) {
	if m.Metrics == nil {
		return
	}
	result := "deny"
	if granted {
		result = "allow"
	}
	m.Metrics.ObserveAuthz(scope, result)
}

// RequireGlobal gates a route on a global account capability.
func (m Middleware) RequireGlobal(cap perm.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := shared.ActorFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			granted, err := m.Checker.HasGlobalCapability(r.Context(), userID, cap)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("rbac require global", slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			m.observe("global", granted)
			if !granted {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireProject gates a route on a project capability. The project is
// resolved from the {projectID} route parameter.
func (m Middleware) RequireProject(cap perm.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := shared.ActorFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			projectID, err := strconv.ParseInt(chi.URLParam(r, "projectID"), 10, 64)
			if err != nil {
				http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
				return
			}
			granted, err := m.Checker.HasProjectCapability(r.Context(), userID, projectID, cap)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("rbac require project", slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			m.observe("project", granted)
			if !granted {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
