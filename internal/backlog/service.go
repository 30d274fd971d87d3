package backlog

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
	GetStory(ctx context.Context, storyID int64) (UserStory, error)
	ListStories(ctx context.Context, projectID int64) ([]UserStory, error)
	CreateStory(ctx context.Context, st UserStory) (int64, error)
	UpdateStory(ctx context.Context, st UserStory) error
	GetSprint(ctx context.Context, sprintID int64) (Sprint, error)
	ListSprints(ctx context.Context, projectID int64) ([]Sprint, error)
	CreateSprint(ctx context.Context, sp Sprint) (int64, error)
	UpdateSprint(ctx context.Context, sp Sprint) error
	ListComments(ctx context.Context, storyID int64) ([]Comment, error)
	AddComment(ctx context.Context, c Comment) (Comment, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// MembershipPort answers whether a user belongs to a project team. Sprint
// teams may only contain project members.
type MembershipPort interface {
	IsMember(ctx context.Context, userID, projectID int64) (bool, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles backlog business logic.
type Service struct {
	repo    RepositoryPort
	members MembershipPort
	audit   AuditPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, members MembershipPort, audit AuditPort) *Service {
	return &Service{repo: repo, members: members, audit: audit}
}

// StoryInput describes a story create or edit.
type StoryInput struct {
	Nombre         string
	Descripcion    string
	HorasEstimadas float64
}

// CreateStory adds a story to the project backlog in estado pendiente.
func (s *Service) CreateStory(ctx context.Context, projectID int64, input StoryInput, actorID int64) (UserStory, error) {
	input.Nombre = strings.TrimSpace(input.Nombre)
	if input.Nombre == "" {
		return UserStory{}, fmt.Errorf("backlog: story name required")
	}
	if input.HorasEstimadas < 0 {
		return UserStory{}, ErrInvalidHours
	}

	st := UserStory{
		ProjectID:      projectID,
		Nombre:         input.Nombre,
		Descripcion:    strings.TrimSpace(input.Descripcion),
		Estado:         EstadoPendiente,
		HorasEstimadas: input.HorasEstimadas,
	}
	id, err := s.repo.CreateStory(ctx, st)
	if err != nil {
		return UserStory{}, err
	}
	st.ID = id
	s.recordAudit(ctx, actorID, "STORY_CREATE", "story", id, map[string]any{"nombre": st.Nombre})
	return st, nil
}

// UpdateStory edits the groomed story fields. Worked hours and estado move
// through LogProgress instead.
func (s *Service) UpdateStory(ctx context.Context, storyID int64, input StoryInput, actorID int64) (UserStory, error) {
	input.Nombre = strings.TrimSpace(input.Nombre)
	if input.Nombre == "" {
		return UserStory{}, fmt.Errorf("backlog: story name required")
	}
	if input.HorasEstimadas < 0 {
		return UserStory{}, ErrInvalidHours
	}

	st, err := s.repo.GetStory(ctx, storyID)
	if err != nil {
		return UserStory{}, err
	}
	st.Nombre = input.Nombre
	st.Descripcion = strings.TrimSpace(input.Descripcion)
	st.HorasEstimadas = input.HorasEstimadas
	if err := s.repo.UpdateStory(ctx, st); err != nil {
		return UserStory{}, err
	}
	s.recordAudit(ctx, actorID, "STORY_UPDATE", "story", storyID, nil)
	return st, nil
}

// LogProgress accumulates worked hours and moves the story through its
// workflow. Hours are added, not replaced.
func (s *Service) LogProgress(ctx context.Context, storyID int64, horas float64, estado Estado, actorID int64) (UserStory, error) {
	if horas < 0 {
		return UserStory{}, ErrInvalidHours
	}
	if !estado.Valid() {
		return UserStory{}, ErrInvalidEstado
	}

	st, err := s.repo.GetStory(ctx, storyID)
	if err != nil {
		return UserStory{}, err
	}
	st.HorasTrabajadas += horas
	st.Estado = estado
	if err := s.repo.UpdateStory(ctx, st); err != nil {
		return UserStory{}, err
	}
	s.recordAudit(ctx, actorID, "STORY_PROGRESS", "story", storyID, map[string]any{
		"horas":  horas,
		"estado": string(estado),
	})
	return st, nil
}

// DeleteStory removes the story and its comments in one transaction.
func (s *Service) DeleteStory(ctx context.Context, storyID int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteStoryComments(ctx, storyID); err != nil {
			return err
		}
		return tx.DeleteStory(ctx, storyID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "STORY_DELETE", "story", storyID, nil)
	return nil
}

// GetStory fetches one story.
func (s *Service) GetStory(ctx context.Context, storyID int64) (UserStory, error) {
	return s.repo.GetStory(ctx, storyID)
}

// ListStories returns the project backlog.
func (s *Service) ListStories(ctx context.Context, projectID int64) ([]UserStory, error) {
	return s.repo.ListStories(ctx, projectID)
}

// SprintInput describes a sprint create or edit.
type SprintInput struct {
	Nombre      string
	Descripcion string
	FechaInicio time.Time
	FechaFin    time.Time
}

// CreateSprint adds a sprint in estado pendiente with an empty team.
func (s *Service) CreateSprint(ctx context.Context, projectID int64, input SprintInput, actorID int64) (Sprint, error) {
	input.Nombre = strings.TrimSpace(input.Nombre)
	if input.Nombre == "" {
		return Sprint{}, fmt.Errorf("backlog: sprint name required")
	}

	sp := Sprint{
		ProjectID:   projectID,
		Nombre:      input.Nombre,
		Descripcion: strings.TrimSpace(input.Descripcion),
		FechaInicio: input.FechaInicio,
		FechaFin:    input.FechaFin,
		Estado:      EstadoPendiente,
	}
	id, err := s.repo.CreateSprint(ctx, sp)
	if err != nil {
		return Sprint{}, err
	}
	sp.ID = id
	s.recordAudit(ctx, actorID, "SPRINT_CREATE", "sprint", id, map[string]any{"nombre": sp.Nombre})
	return sp, nil
}

// UpdateSprint edits sprint fields and status.
func (s *Service) UpdateSprint(ctx context.Context, sprintID int64, input SprintInput, estado Estado, actorID int64) (Sprint, error) {
	input.Nombre = strings.TrimSpace(input.Nombre)
	if input.Nombre == "" {
		return Sprint{}, fmt.Errorf("backlog: sprint name required")
	}
	if !estado.Valid() {
		return Sprint{}, ErrInvalidEstado
	}

	sp, err := s.repo.GetSprint(ctx, sprintID)
	if err != nil {
		return Sprint{}, err
	}
	sp.Nombre = input.Nombre
	sp.Descripcion = strings.TrimSpace(input.Descripcion)
	sp.FechaInicio = input.FechaInicio
	sp.FechaFin = input.FechaFin
	sp.Estado = estado
	if err := s.repo.UpdateSprint(ctx, sp); err != nil {
		return Sprint{}, err
	}
	s.recordAudit(ctx, actorID, "SPRINT_UPDATE", "sprint", sprintID, nil)
	return sp, nil
}

// SetSprintTeam replaces the sprint team. Every candidate must already be a
// member of the sprint's project.
func (s *Service) SetSprintTeam(ctx context.Context, sprintID int64, equipo []int64, actorID int64) error {
	sp, err := s.repo.GetSprint(ctx, sprintID)
	if err != nil {
		return err
	}
	for _, userID := range equipo {
		ok, err := s.members.IsMember(ctx, userID, sp.ProjectID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: user %d", ErrNotMember, userID)
		}
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.ReplaceSprintTeam(ctx, sprintID, equipo)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "SPRINT_TEAM_SET", "sprint", sprintID, map[string]any{"equipo": equipo})
	return nil
}

// GetSprint fetches one sprint with its team.
func (s *Service) GetSprint(ctx context.Context, sprintID int64) (Sprint, error) {
	return s.repo.GetSprint(ctx, sprintID)
}

// ListSprints returns the project's sprints.
func (s *Service) ListSprints(ctx context.Context, projectID int64) ([]Sprint, error) {
	return s.repo.ListSprints(ctx, projectID)
}

// AddComment records a remark on a story by the acting user.
func (s *Service) AddComment(ctx context.Context, storyID int64, texto string, actorID int64) (Comment, error) {
	texto = strings.TrimSpace(texto)
	if texto == "" {
		return Comment{}, fmt.Errorf("backlog: comment text required")
	}
	if _, err := s.repo.GetStory(ctx, storyID); err != nil {
		return Comment{}, err
	}
	return s.repo.AddComment(ctx, Comment{StoryID: storyID, AutorID: actorID, Texto: texto})
}

// ListComments returns a story's comments.
func (s *Service) ListComments(ctx context.Context, storyID int64) ([]Comment, error) {
	return s.repo.ListComments(ctx, storyID)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
}
