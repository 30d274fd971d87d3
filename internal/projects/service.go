package projects

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sgp-project/sgp/internal/shared"
)

// RepositoryPort defines data access methods used by the service.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (Project, error)
	List(ctx context.Context) ([]Project, error)
	ListOverdue(ctx context.Context) ([]Project, error)
	Create(ctx context.Context, p Project) (int64, error)
	Update(ctx context.Context, p Project) error
	Delete(ctx context.Context, id int64) error
	SetEstado(ctx context.Context, id int64, from, to Estado) (bool, error)
}

// TeamPort is the slice of the rbac service used at project creation: every
// new project gets the default roles, and its creator joins as Scrum master
// so the team starts with an administrator.
type TeamPort interface {
	InitializeDefaultRoles(ctx context.Context, projectID int64) error
	AssignRole(ctx context.Context, userID int64, roleName string, projectID int64, actorID int64) error
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles project lifecycle business logic.
type Service struct {
	repo  RepositoryPort
	team  TeamPort
	audit AuditPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, team TeamPort, audit AuditPort) *Service {
	return &Service{repo: repo, team: team, audit: audit}
}

// CreateInput describes a new project.
type CreateInput struct {
	Nombre         string
	Descripcion    string
	FechaInicio    time.Time
	FechaFin       time.Time
	DuracionSprint int
}

// Create provisions a project in estado pendiente, seeds the default roles,
// and assigns the creator as Scrum master. The handler gates this behind
// the global crear_proyecto capability. When the team bootstrap fails the
// project row is removed again, so no project survives without roles and an
// administrable member.
func (s *Service) Create(ctx context.Context, input CreateInput, creatorID int64) (Project, error) {
	input.Nombre = strings.TrimSpace(input.Nombre)
	if input.Nombre == "" {
		return Project{}, fmt.Errorf("projects: name required")
	}
	if input.DuracionSprint < 0 {
		return Project{}, fmt.Errorf("projects: sprint duration must not be negative")
	}

	p := Project{
		Nombre:         input.Nombre,
		Descripcion:    strings.TrimSpace(input.Descripcion),
		FechaInicio:    input.FechaInicio,
		FechaFin:       input.FechaFin,
		DuracionSprint: input.DuracionSprint,
		Estado:         EstadoPendiente,
	}
	id, err := s.repo.Create(ctx, p)
	if err != nil {
		return Project{}, err
	}
	p.ID = id

	if err := s.team.InitializeDefaultRoles(ctx, id); err != nil {
		_ = s.repo.Delete(ctx, id)
		return Project{}, err
	}
	if err := s.team.AssignRole(ctx, creatorID, "Scrum master", id, creatorID); err != nil {
		_ = s.repo.Delete(ctx, id)
		return Project{}, err
	}

	s.recordAudit(ctx, creatorID, "PROJECT_CREATE", id, map[string]any{"nombre": p.Nombre})
	return p, nil
}

// Get fetches one project.
func (s *Service) Get(ctx context.Context, id int64) (Project, error) {
	return s.repo.Get(ctx, id)
}

// List returns all projects.
func (s *Service) List(ctx context.Context) ([]Project, error) {
	return s.repo.List(ctx)
}

// UpdateInput describes an edit of project settings.
type UpdateInput struct {
	Nombre         string
	Descripcion    string
	FechaInicio    time.Time
	FechaFin       time.Time
	DuracionSprint int
}

// Update edits project settings. Once a project started, its start date is
// frozen: an edit that moves FechaInicio is rejected with
// ErrStartDateLocked.
func (s *Service) Update(ctx context.Context, id int64, input UpdateInput, actorID int64) (Project, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return Project{}, err
	}

	if p.Estado == EstadoIniciado && !input.FechaInicio.Equal(p.FechaInicio) {
		return Project{}, ErrStartDateLocked
	}

	input.Nombre = strings.TrimSpace(input.Nombre)
	if input.Nombre == "" {
		return Project{}, fmt.Errorf("projects: name required")
	}
	if input.DuracionSprint < 0 {
		return Project{}, fmt.Errorf("projects: sprint duration must not be negative")
	}

	p.Nombre = input.Nombre
	p.Descripcion = strings.TrimSpace(input.Descripcion)
	p.FechaInicio = input.FechaInicio
	p.FechaFin = input.FechaFin
	p.DuracionSprint = input.DuracionSprint
	if err := s.repo.Update(ctx, p); err != nil {
		return Project{}, err
	}

	s.recordAudit(ctx, actorID, "PROJECT_UPDATE", id, nil)
	return p, nil
}

// Start moves the project from pendiente to iniciado.
func (s *Service) Start(ctx context.Context, id int64, actorID int64) error {
	return s.transition(ctx, id, EstadoIniciado, actorID)
}

// Finish moves the project from iniciado to finalizado.
func (s *Service) Finish(ctx context.Context, id int64, actorID int64) error {
	return s.transition(ctx, id, EstadoFinalizado, actorID)
}

// Cancel moves the project from iniciado to cancelado.
func (s *Service) Cancel(ctx context.Context, id int64, actorID int64) error {
	return s.transition(ctx, id, EstadoCancelado, actorID)
}

func (s *Service) transition(ctx context.Context, id int64, to Estado, actorID int64) error {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !p.Estado.CanTransition(to) {
		return ErrInvalidTransition
	}
	moved, err := s.repo.SetEstado(ctx, id, p.Estado, to)
	if err != nil {
		return err
	}
	if !moved {
		// Lost the race against a concurrent transition.
		return ErrInvalidTransition
	}
	s.recordAudit(ctx, actorID, "PROJECT_"+strings.ToUpper(string(to)), id, nil)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "project",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
}
