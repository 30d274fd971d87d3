package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sgp-project/sgp/internal/perm"
	"github.com/sgp-project/sgp/internal/platform/httpx"
	"github.com/sgp-project/sgp/internal/rbac"
	"github.com/sgp-project/sgp/internal/shared"
)

// Handler exposes account administration endpoints. Everything here is
// gated behind the global administrar capability except the listing, which
// any authenticated user may read to pick team members.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	mw       rbac.Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New(), mw: mw}
}

// MountRoutes registers account routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireGlobal(perm.Administrar))
		r.Post("/", h.provision)
		r.Get("/{userID}", h.show)
		r.Put("/{userID}/profile", h.updateProfile)
		r.Post("/{userID}/capabilities/{capability}", h.grant)
		r.Delete("/{userID}/capabilities/{capability}", h.revoke)
		r.Put("/{userID}/active", h.setActive)
	})
}

type userResponse struct {
	ID           int64    `json:"id"`
	UserID       string   `json:"user_id"`
	Email        string   `json:"email"`
	Nombre       string   `json:"nombre"`
	Apellido     string   `json:"apellido"`
	IsActive     bool     `json:"is_active"`
	Capabilities []string `json:"capabilities"`
}

func toUserResponse(u User) userResponse {
	return userResponse{
		ID:           u.ID,
		UserID:       u.UserID,
		Email:        u.Email,
		Nombre:       u.Nombre,
		Apellido:     u.Apellido,
		IsActive:     u.IsActive,
		Capabilities: u.Capabilities.Strings(),
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	if _, ok := shared.ActorFromContext(r.Context()); !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	users, err := h.service.List(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]userResponse, len(users))
	for i, u := range users {
		out[i] = toUserResponse(u)
	}
	httpx.JSON(w, http.StatusOK, out)
}

type provisionRequest struct {
	UserID   string `json:"user_id" validate:"required,max=150"`
	Email    string `json:"email" validate:"required,email"`
	Nombre   string `json:"nombre" validate:"required,max=60"`
	Apellido string `json:"apellido" validate:"required,max=60"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *Handler) provision(w http.ResponseWriter, r *http.Request) {
	var req provisionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	u, err := h.service.Provision(r.Context(), ProvisionInput{
		UserID:   req.UserID,
		Email:    req.Email,
		Nombre:   req.Nombre,
		Apellido: req.Apellido,
		Password: req.Password,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toUserResponse(u))
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.Get(r.Context(), h.userID(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toUserResponse(u))
}

type profileRequest struct {
	Nombre   string `json:"nombre" validate:"required,max=60"`
	Apellido string `json:"apellido" validate:"required,max=60"`
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.UpdateProfile(r.Context(), h.userID(r), req.Nombre, req.Apellido); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	cap := perm.Capability(chi.URLParam(r, "capability"))
	if err := h.service.GrantGlobalCapability(r.Context(), h.userID(r), cap, actor); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	cap := perm.Capability(chi.URLParam(r, "capability"))
	if err := h.service.RevokeGlobalCapability(r.Context(), h.userID(r), cap, actor); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type activeRequest struct {
	Active bool `json:"active"`
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request) {
	var req activeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.service.SetActive(r.Context(), h.userID(r), req.Active, actor); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) userID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	return id
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, perm.ErrInvalidCapability):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Capability", err.Error())
	default:
		if h.logger != nil {
			h.logger.Error("users request failed", slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
