package audit

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sgp-project/sgp/internal/perm"
	"github.com/sgp-project/sgp/internal/platform/httpx"
	"github.com/sgp-project/sgp/internal/rbac"
)

// Handler exposes the audit trail to holders of the global auditar
// capability.
type Handler struct {
	logger *slog.Logger
	repo   *Repository
	mw     rbac.Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, repo *Repository, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, repo: repo, mw: mw}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.mw.RequireGlobal(perm.Auditar)).Get("/", h.list)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	var f Filter
	q := r.URL.Query()
	f.Entity = q.Get("entity")
	if v := q.Get("actor"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "actor must be an integer")
			return
		}
		f.ActorID = id
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "limit must be an integer")
			return
		}
		f.Limit = n
	}

	entries, err := h.repo.List(r.Context(), f)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("audit list failed", slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	httpx.JSON(w, http.StatusOK, entries)
}
