package projects

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sgp-project/sgp/internal/perm"
	"github.com/sgp-project/sgp/internal/platform/httpx"
	"github.com/sgp-project/sgp/internal/rbac"
	"github.com/sgp-project/sgp/internal/shared"
)

// Handler exposes project endpoints.
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

// MountRoutes registers the project collection routes. Per-project routes
// mount separately so sibling handlers can share the {projectID} subrouter.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.mw.RequireGlobal(perm.CrearProyecto)).Post("/", h.create)
	r.Get("/", h.list)
}

// MountProjectRoutes registers routes relative to /projects/{projectID}.
func (h *Handler) MountProjectRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireProject(perm.Vista))
		r.Get("/", h.show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireProject(perm.GestionarProyecto))
		r.Put("/", h.update)
		r.Post("/start", h.start)
		r.Post("/finish", h.finish)
		r.Post("/cancel", h.cancel)
	})
}

type projectRequest struct {
	Nombre         string    `json:"nombre" validate:"required,max=200"`
	Descripcion    string    `json:"descripcion" validate:"max=400"`
	FechaInicio    time.Time `json:"fecha_inicio" validate:"required"`
	FechaFin       time.Time `json:"fecha_fin" validate:"required"`
	DuracionSprint int       `json:"duracion_sprint" validate:"gte=0"`
}

type projectResponse struct {
	ID             int64     `json:"id"`
	Nombre         string    `json:"nombre"`
	Descripcion    string    `json:"descripcion"`
	FechaCreacion  time.Time `json:"fecha_creacion"`
	FechaInicio    time.Time `json:"fecha_inicio"`
	FechaFin       time.Time `json:"fecha_fin"`
	DuracionSprint int       `json:"duracion_sprint"`
	Estado         string    `json:"estado"`
}

func toProjectResponse(p Project) projectResponse {
	return projectResponse{
		ID:             p.ID,
		Nombre:         p.Nombre,
		Descripcion:    p.Descripcion,
		FechaCreacion:  p.FechaCreacion,
		FechaInicio:    p.FechaInicio,
		FechaFin:       p.FechaFin,
		DuracionSprint: p.DuracionSprint,
		Estado:         string(p.Estado),
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	p, err := h.service.Create(r.Context(), CreateInput{
		Nombre:         req.Nombre,
		Descripcion:    req.Descripcion,
		FechaInicio:    req.FechaInicio,
		FechaFin:       req.FechaFin,
		DuracionSprint: req.DuracionSprint,
	}, actor)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toProjectResponse(p))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	projects, err := h.service.List(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]projectResponse, len(projects))
	for i, p := range projects {
		out[i] = toProjectResponse(p)
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context(), h.projectID(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProjectResponse(p))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	p, err := h.service.Update(r.Context(), h.projectID(r), UpdateInput{
		Nombre:         req.Nombre,
		Descripcion:    req.Descripcion,
		FechaInicio:    req.FechaInicio,
		FechaFin:       req.FechaFin,
		DuracionSprint: req.DuracionSprint,
	}, actor)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProjectResponse(p))
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	h.doTransition(w, r, h.service.Start)
}

func (h *Handler) finish(w http.ResponseWriter, r *http.Request) {
	h.doTransition(w, r, h.service.Finish)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.doTransition(w, r, h.service.Cancel)
}

func (h *Handler) doTransition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id, actorID int64) error) {
	actor, _ := shared.ActorFromContext(r.Context())
	if err := fn(r.Context(), h.projectID(r), actor); err != nil {
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
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrStartDateLocked):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		if h.logger != nil {
			h.logger.Error("projects request failed", slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
