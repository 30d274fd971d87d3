package backlog

import (
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

// Handler exposes backlog endpoints nested under a project.
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

// MountRoutes registers backlog routes under /projects/{projectID}.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireProject(perm.Vista))
		r.Get("/stories", h.listStories)
		r.Get("/stories/{storyID}", h.showStory)
		r.Get("/stories/{storyID}/comments", h.listComments)
		r.Get("/sprints", h.listSprints)
		r.Get("/sprints/{sprintID}", h.showSprint)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireProject(perm.PilaProducto))
		r.Post("/stories", h.createStory)
		r.Put("/stories/{storyID}", h.updateStory)
		r.Delete("/stories/{storyID}", h.deleteStory)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireProject(perm.Desarrollo))
		r.Post("/stories/{storyID}/progress", h.logProgress)
		r.Post("/stories/{storyID}/comments", h.addComment)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireProject(perm.GestionarProyecto))
		r.Post("/sprints", h.createSprint)
		r.Put("/sprints/{sprintID}", h.updateSprint)
		r.Put("/sprints/{sprintID}/team", h.setSprintTeam)
	})
}

type storyRequest struct {
	Nombre         string  `json:"nombre" validate:"required,max=200"`
	Descripcion    string  `json:"descripcion" validate:"max=400"`
	HorasEstimadas float64 `json:"horas_estimadas" validate:"gte=0"`
}

type storyResponse struct {
	ID              int64   `json:"id"`
	ProjectID       int64   `json:"project_id"`
	Nombre          string  `json:"nombre"`
	Descripcion     string  `json:"descripcion"`
	Estado          string  `json:"estado"`
	HorasEstimadas  float64 `json:"horas_estimadas"`
	HorasTrabajadas float64 `json:"horas_trabajadas"`
}

func toStoryResponse(st UserStory) storyResponse {
	return storyResponse{
		ID:              st.ID,
		ProjectID:       st.ProjectID,
		Nombre:          st.Nombre,
		Descripcion:     st.Descripcion,
		Estado:          string(st.Estado),
		HorasEstimadas:  st.HorasEstimadas,
		HorasTrabajadas: st.HorasTrabajadas,
	}
}

func (h *Handler) listStories(w http.ResponseWriter, r *http.Request) {
	stories, err := h.service.ListStories(r.Context(), h.param(r, "projectID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]storyResponse, len(stories))
	for i, st := range stories {
		out[i] = toStoryResponse(st)
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) showStory(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.GetStory(r.Context(), h.param(r, "storyID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toStoryResponse(st))
}

func (h *Handler) createStory(w http.ResponseWriter, r *http.Request) {
	var req storyRequest
	if !h.decode(w, r, &req) {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	st, err := h.service.CreateStory(r.Context(), h.param(r, "projectID"), StoryInput{
		Nombre:         req.Nombre,
		Descripcion:    req.Descripcion,
		HorasEstimadas: req.HorasEstimadas,
	}, actor)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toStoryResponse(st))
}

func (h *Handler) updateStory(w http.ResponseWriter, r *http.Request) {
	var req storyRequest
	if !h.decode(w, r, &req) {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	st, err := h.service.UpdateStory(r.Context(), h.param(r, "storyID"), StoryInput{
		Nombre:         req.Nombre,
		Descripcion:    req.Descripcion,
		HorasEstimadas: req.HorasEstimadas,
	}, actor)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toStoryResponse(st))
}

func (h *Handler) deleteStory(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.service.DeleteStory(r.Context(), h.param(r, "storyID"), actor); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type progressRequest struct {
	Horas  float64 `json:"horas" validate:"gte=0"`
	Estado string  `json:"estado" validate:"required,oneof=P I F"`
}

func (h *Handler) logProgress(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if !h.decode(w, r, &req) {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	st, err := h.service.LogProgress(r.Context(), h.param(r, "storyID"), req.Horas, Estado(req.Estado), actor)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toStoryResponse(st))
}

type sprintRequest struct {
	Nombre      string    `json:"nombre" validate:"required,max=200"`
	Descripcion string    `json:"descripcion" validate:"max=400"`
	FechaInicio time.Time `json:"fecha_inicio" validate:"required"`
	FechaFin    time.Time `json:"fecha_fin" validate:"required"`
	Estado      string    `json:"estado" validate:"omitempty,oneof=P I F"`
}

type sprintResponse struct {
	ID          int64     `json:"id"`
	ProjectID   int64     `json:"project_id"`
	Nombre      string    `json:"nombre"`
	Descripcion string    `json:"descripcion"`
	FechaInicio time.Time `json:"fecha_inicio"`
	FechaFin    time.Time `json:"fecha_fin"`
	Estado      string    `json:"estado"`
	Equipo      []int64   `json:"equipo,omitempty"`
}

func toSprintResponse(sp Sprint) sprintResponse {
	return sprintResponse{
		ID:          sp.ID,
		ProjectID:   sp.ProjectID,
		Nombre:      sp.Nombre,
		Descripcion: sp.Descripcion,
		FechaInicio: sp.FechaInicio,
		FechaFin:    sp.FechaFin,
		Estado:      string(sp.Estado),
		Equipo:      sp.Equipo,
	}
}

func (h *Handler) listSprints(w http.ResponseWriter, r *http.Request) {
	sprints, err := h.service.ListSprints(r.Context(), h.param(r, "projectID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]sprintResponse, len(sprints))
	for i, sp := range sprints {
		out[i] = toSprintResponse(sp)
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) showSprint(w http.ResponseWriter, r *http.Request) {
	sp, err := h.service.GetSprint(r.Context(), h.param(r, "sprintID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSprintResponse(sp))
}

func (h *Handler) createSprint(w http.ResponseWriter, r *http.Request) {
	var req sprintRequest
	if !h.decode(w, r, &req) {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	sp, err := h.service.CreateSprint(r.Context(), h.param(r, "projectID"), SprintInput{
		Nombre:      req.Nombre,
		Descripcion: req.Descripcion,
		FechaInicio: req.FechaInicio,
		FechaFin:    req.FechaFin,
	}, actor)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toSprintResponse(sp))
}

func (h *Handler) updateSprint(w http.ResponseWriter, r *http.Request) {
	var req sprintRequest
	if !h.decode(w, r, &req) {
		return
	}
	estado := Estado(req.Estado)
	if req.Estado == "" {
		estado = EstadoPendiente
	}
	actor, _ := shared.ActorFromContext(r.Context())
	sp, err := h.service.UpdateSprint(r.Context(), h.param(r, "sprintID"), SprintInput{
		Nombre:      req.Nombre,
		Descripcion: req.Descripcion,
		FechaInicio: req.FechaInicio,
		FechaFin:    req.FechaFin,
	}, estado, actor)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSprintResponse(sp))
}

type sprintTeamRequest struct {
	Equipo []int64 `json:"equipo" validate:"required"`
}

func (h *Handler) setSprintTeam(w http.ResponseWriter, r *http.Request) {
	var req sprintTeamRequest
	if !h.decode(w, r, &req) {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.service.SetSprintTeam(r.Context(), h.param(r, "sprintID"), req.Equipo, actor); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type commentRequest struct {
	Texto string `json:"texto" validate:"required,max=2000"`
}

type commentResponse struct {
	ID      int64     `json:"id"`
	StoryID int64     `json:"story_id"`
	AutorID int64     `json:"autor_id"`
	Texto   string    `json:"texto"`
	Fecha   time.Time `json:"fecha"`
}

func (h *Handler) listComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.service.ListComments(r.Context(), h.param(r, "storyID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]commentResponse, len(comments))
	for i, c := range comments {
		out[i] = commentResponse{ID: c.ID, StoryID: c.StoryID, AutorID: c.AutorID, Texto: c.Texto, Fecha: c.Fecha}
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) addComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if !h.decode(w, r, &req) {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	c, err := h.service.AddComment(r.Context(), h.param(r, "storyID"), req.Texto, actor)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, commentResponse{ID: c.ID, StoryID: c.StoryID, AutorID: c.AutorID, Texto: c.Texto, Fecha: c.Fecha})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := httpx.DecodeJSON(r, v); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) param(r *http.Request, name string) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidHours), errors.Is(err, ErrInvalidEstado):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrNotMember):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		if h.logger != nil {
			h.logger.Error("backlog request failed", slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
