package projects

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryProjectRepo struct {
	projects map[int64]Project
	nextID   int64
}

func newMemoryProjectRepo() *memoryProjectRepo {
	return &memoryProjectRepo{projects: make(map[int64]Project)}
}

func (r *memoryProjectRepo) Get(ctx context.Context, id int64) (Project, error) {
	p, ok := r.projects[id]
	if !ok {
		return Project{}, ErrNotFound
	}
	return p, nil
}

func (r *memoryProjectRepo) List(ctx context.Context) ([]Project, error) {
	out := make([]Project, 0, len(r.projects))
	for _, p := range r.projects {
		out = append(out, p)
	}
	return out, nil
}

func (r *memoryProjectRepo) ListOverdue(ctx context.Context) ([]Project, error) {
	var out []Project
	now := time.Now()
	for _, p := range r.projects {
		if p.Estado == EstadoIniciado && p.FechaFin.Before(now) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryProjectRepo) Create(ctx context.Context, p Project) (int64, error) {
	r.nextID++
	p.ID = r.nextID
	p.FechaCreacion = time.Now()
	r.projects[p.ID] = p
	return p.ID, nil
}

func (r *memoryProjectRepo) Delete(ctx context.Context, id int64) error {
	delete(r.projects, id)
	return nil
}

func (r *memoryProjectRepo) Update(ctx context.Context, p Project) error {
	stored, ok := r.projects[p.ID]
	if !ok {
		return ErrNotFound
	}
	p.Estado = stored.Estado
	p.FechaCreacion = stored.FechaCreacion
	r.projects[p.ID] = p
	return nil
}

func (r *memoryProjectRepo) SetEstado(ctx context.Context, id int64, from, to Estado) (bool, error) {
	p, ok := r.projects[id]
	if !ok || p.Estado != from {
		return false, nil
	}
	p.Estado = to
	r.projects[id] = p
	return true, nil
}

type teamCall struct {
	op        string
	userID    int64
	roleName  string
	projectID int64
}

type stubTeam struct {
	calls     []teamCall
	initErr   error
	assignErr error
}

func (s *stubTeam) InitializeDefaultRoles(ctx context.Context, projectID int64) error {
	s.calls = append(s.calls, teamCall{op: "init", projectID: projectID})
	return s.initErr
}

func (s *stubTeam) AssignRole(ctx context.Context, userID int64, roleName string, projectID int64, actorID int64) error {
	s.calls = append(s.calls, teamCall{op: "assign", userID: userID, roleName: roleName, projectID: projectID})
	return s.assignErr
}

func validInput() CreateInput {
	start := time.Now().AddDate(0, 0, 7)
	return CreateInput{
		Nombre:         "Plataforma academica",
		Descripcion:    "Sistema de gestion",
		FechaInicio:    start,
		FechaFin:       start.AddDate(0, 2, 0),
		DuracionSprint: 14,
	}
}

func TestCreateBootstrapsTeam(t *testing.T) {
	repo := newMemoryProjectRepo()
	team := &stubTeam{}
	svc := NewService(repo, team, nil)

	p, err := svc.Create(context.Background(), validInput(), 42)
	require.NoError(t, err)
	require.Equal(t, EstadoPendiente, p.Estado)

	require.Len(t, team.calls, 2)
	require.Equal(t, teamCall{op: "init", projectID: p.ID}, team.calls[0])
	require.Equal(t, teamCall{op: "assign", userID: 42, roleName: "Scrum master", projectID: p.ID}, team.calls[1])
}

func TestCreateRemovesProjectWhenBootstrapFails(t *testing.T) {
	ctx := context.Background()

	repo := newMemoryProjectRepo()
	svc := NewService(repo, &stubTeam{initErr: errors.New("roles unavailable")}, nil)
	_, err := svc.Create(ctx, validInput(), 42)
	require.Error(t, err)
	require.Empty(t, repo.projects)

	repo = newMemoryProjectRepo()
	svc = NewService(repo, &stubTeam{assignErr: errors.New("membership unavailable")}, nil)
	_, err = svc.Create(ctx, validInput(), 42)
	require.Error(t, err)
	require.Empty(t, repo.projects)
}

func TestLifecycleTransitions(t *testing.T) {
	repo := newMemoryProjectRepo()
	svc := NewService(repo, &stubTeam{}, nil)
	ctx := context.Background()

	p, err := svc.Create(ctx, validInput(), 1)
	require.NoError(t, err)

	// pendiente cannot finish or cancel.
	require.ErrorIs(t, svc.Finish(ctx, p.ID, 1), ErrInvalidTransition)
	require.ErrorIs(t, svc.Cancel(ctx, p.ID, 1), ErrInvalidTransition)

	require.NoError(t, svc.Start(ctx, p.ID, 1))
	require.ErrorIs(t, svc.Start(ctx, p.ID, 1), ErrInvalidTransition)

	require.NoError(t, svc.Finish(ctx, p.ID, 1))

	// Terminal states never move again.
	require.ErrorIs(t, svc.Start(ctx, p.ID, 1), ErrInvalidTransition)
	require.ErrorIs(t, svc.Cancel(ctx, p.ID, 1), ErrInvalidTransition)
}

func TestStartDateLockedOnceStarted(t *testing.T) {
	repo := newMemoryProjectRepo()
	svc := NewService(repo, &stubTeam{}, nil)
	ctx := context.Background()

	input := validInput()
	p, err := svc.Create(ctx, input, 1)
	require.NoError(t, err)

	// While pendiente, everything is editable.
	moved := input.FechaInicio.AddDate(0, 0, 3)
	_, err = svc.Update(ctx, p.ID, UpdateInput{
		Nombre:         input.Nombre,
		Descripcion:    input.Descripcion,
		FechaInicio:    moved,
		FechaFin:       input.FechaFin,
		DuracionSprint: input.DuracionSprint,
	}, 1)
	require.NoError(t, err)

	require.NoError(t, svc.Start(ctx, p.ID, 1))

	// Started: moving the start date is rejected.
	_, err = svc.Update(ctx, p.ID, UpdateInput{
		Nombre:         "Nuevo nombre",
		FechaInicio:    moved.AddDate(0, 0, 1),
		FechaFin:       input.FechaFin,
		DuracionSprint: input.DuracionSprint,
	}, 1)
	require.ErrorIs(t, err, ErrStartDateLocked)

	// Keeping the start date untouched still allows other edits.
	updated, err := svc.Update(ctx, p.ID, UpdateInput{
		Nombre:         "Nuevo nombre",
		FechaInicio:    moved,
		FechaFin:       input.FechaFin.AddDate(0, 1, 0),
		DuracionSprint: 7,
	}, 1)
	require.NoError(t, err)
	require.Equal(t, "Nuevo nombre", updated.Nombre)
	require.Equal(t, 7, updated.DuracionSprint)
}

func TestEstadoCanTransition(t *testing.T) {
	require.True(t, EstadoPendiente.CanTransition(EstadoIniciado))
	require.False(t, EstadoPendiente.CanTransition(EstadoFinalizado))
	require.True(t, EstadoIniciado.CanTransition(EstadoFinalizado))
	require.True(t, EstadoIniciado.CanTransition(EstadoCancelado))
	require.False(t, EstadoFinalizado.CanTransition(EstadoIniciado))
	require.False(t, EstadoCancelado.CanTransition(EstadoIniciado))
}
