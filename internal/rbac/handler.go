package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sgp-project/sgp/internal/perm"
	"github.com/sgp-project/sgp/internal/platform/httpx"
	"github.com/sgp-project/sgp/internal/shared"
)

// Handler exposes role and team management endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	mw       Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw Middleware) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
		mw:       mw,
	}
}

// MountRoutes registers the routes under /projects/{projectID}.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireProject(perm.Vista))
		r.Get("/roles", h.listRoles)
		r.Get("/team", h.listTeam)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireProject(perm.AdministrarEquipo))
		r.Post("/roles", h.createRole)
		r.Put("/roles/{roleID}/permissions", h.setRolePermissions)
		r.Delete("/roles/{roleID}", h.deleteRole)
		r.Post("/team", h.assignRole)
		r.Delete("/team/{userID}", h.removeMember)
	})
}

type roleResponse struct {
	ID           int64    `json:"id"`
	ProjectID    int64    `json:"project_id"`
	Nombre       string   `json:"nombre"`
	Capabilities []string `json:"capabilities"`
}

func toRoleResponse(role Role) roleResponse {
	return roleResponse{
		ID:           role.ID,
		ProjectID:    role.ProjectID,
		Nombre:       role.Nombre,
		Capabilities: role.Capabilities.Strings(),
	}
}

type teamMemberResponse struct {
	UserID   int64  `json:"user_id"`
	Nombre   string `json:"nombre"`
	Apellido string `json:"apellido"`
	Email    string `json:"email"`
	Rol      string `json:"rol"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	projectID := h.projectID(r)
	roles, err := h.service.ListRoles(r.Context(), projectID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]roleResponse, len(roles))
	for i, role := range roles {
		out[i] = toRoleResponse(role)
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) listTeam(w http.ResponseWriter, r *http.Request) {
	projectID := h.projectID(r)
	team, err := h.service.ListTeam(r.Context(), projectID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]teamMemberResponse, len(team))
	for i, tm := range team {
		out[i] = teamMemberResponse{
			UserID:   tm.UserID,
			Nombre:   tm.Nombre,
			Apellido: tm.Apellido,
			Email:    tm.Email,
			Rol:      tm.RolNombre,
		}
	}
	httpx.JSON(w, http.StatusOK, out)
}

type createRoleRequest struct {
	Nombre       string   `json:"nombre" validate:"required,max=200"`
	Capabilities []string `json:"capabilities" validate:"dive,required"`
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	caps := make([]perm.Capability, len(req.Capabilities))
	for i, c := range req.Capabilities {
		caps[i] = perm.Capability(c)
	}
	role, err := h.service.CreateRole(r.Context(), h.projectID(r), req.Nombre, caps, actor)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleResponse(role))
}

type setPermissionsRequest struct {
	Capabilities []string `json:"capabilities" validate:"dive,required"`
}

func (h *Handler) setRolePermissions(w http.ResponseWriter, r *http.Request) {
	roleID, err := strconv.ParseInt(chi.URLParam(r, "roleID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "invalid role id")
		return
	}
	var req setPermissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	caps := make([]perm.Capability, len(req.Capabilities))
	for i, c := range req.Capabilities {
		caps[i] = perm.Capability(c)
	}
	// The applied set is returned verbatim: when the lockout guard kept
	// administrar_equipo, the caller sees it in the response.
	applied, err := h.service.SetRolePermissions(r.Context(), roleID, caps, actor)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"capabilities": applied.Strings()})
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	roleID, err := strconv.ParseInt(chi.URLParam(r, "roleID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "invalid role id")
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.service.DeleteRole(r.Context(), roleID, actor); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type assignRoleRequest struct {
	UserID int64  `json:"user_id" validate:"required,gt=0"`
	Rol    string `json:"rol" validate:"required,max=200"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	var req assignRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.service.AssignRole(r.Context(), req.UserID, req.Rol, h.projectID(r), actor); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeMember(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "invalid user id")
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.service.RemoveMembership(r.Context(), userID, h.projectID(r), actor); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) projectID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "projectID"), 10, 64)
	return id
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRoleNotFound), errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidCapability):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Capability", err.Error())
	case errors.Is(err, ErrAlreadyInitialized), errors.Is(err, ErrRoleInUse), errors.Is(err, ErrDuplicateRole):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		if h.logger != nil {
			h.logger.Error("rbac request failed", slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
