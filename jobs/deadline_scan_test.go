package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/sgp-project/sgp/internal/perm"
	"github.com/sgp-project/sgp/internal/projects"
	"github.com/sgp-project/sgp/internal/users"
)

type stubOverdue struct {
	projects []projects.Project
}

func (s *stubOverdue) ListOverdue(ctx context.Context) ([]projects.Project, error) {
	return s.projects, nil
}

type stubTeamQuery struct {
	admins map[int64][]int64
}

func (s *stubTeamQuery) MembersWithCapability(ctx context.Context, projectID int64, c perm.Capability) ([]int64, error) {
	return s.admins[projectID], nil
}

type stubAccounts struct {
	accounts map[int64]users.User
}

func (s *stubAccounts) Get(ctx context.Context, id int64) (users.User, error) {
	u, ok := s.accounts[id]
	if !ok {
		return users.User{}, users.ErrNotFound
	}
	return u, nil
}

type recordingEnqueuer struct {
	sent []SendEmailPayload
}

func (r *recordingEnqueuer) EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error) {
	r.sent = append(r.sent, payload)
	return &asynq.TaskInfo{}, nil
}

func TestDeadlineScanNotifiesActiveAdmins(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	overdue := &stubOverdue{projects: []projects.Project{
		{ID: 1, Nombre: "Plataforma", Estado: projects.EstadoIniciado, FechaFin: now.AddDate(0, 0, -10)},
	}}
	team := &stubTeamQuery{admins: map[int64][]int64{1: {10, 11, 12}}}
	accounts := &stubAccounts{accounts: map[int64]users.User{
		10: {ID: 10, Email: "sm@example.com", IsActive: true},
		11: {ID: 11, Email: "inactive@example.com", IsActive: false},
	}}
	enqueuer := &recordingEnqueuer{}

	job := NewDeadlineScanJob(overdue, team, accounts, enqueuer, nil, nil)
	job.clock = func() time.Time { return now }

	task, err := NewDeadlineScanTask(DeadlineScanPayload{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	// User 11 is inactive and user 12 has no account; only 10 is notified.
	require.Len(t, enqueuer.sent, 1)
	require.Equal(t, "sm@example.com", enqueuer.sent[0].To)
	require.Contains(t, enqueuer.sent[0].Subject, "Plataforma")
}

func TestDeadlineScanHonorsGracePeriod(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	overdue := &stubOverdue{projects: []projects.Project{
		{ID: 1, Nombre: "Reciente", FechaFin: now.AddDate(0, 0, -2)},
		{ID: 2, Nombre: "Antiguo", FechaFin: now.AddDate(0, 0, -30)},
	}}
	team := &stubTeamQuery{admins: map[int64][]int64{
		1: {10},
		2: {10},
	}}
	accounts := &stubAccounts{accounts: map[int64]users.User{
		10: {ID: 10, Email: "sm@example.com", IsActive: true},
	}}
	enqueuer := &recordingEnqueuer{}

	job := NewDeadlineScanJob(overdue, team, accounts, enqueuer, nil, nil)
	job.clock = func() time.Time { return now }

	task, err := NewDeadlineScanTask(DeadlineScanPayload{GraceDays: 7})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Len(t, enqueuer.sent, 1)
	require.Contains(t, enqueuer.sent[0].Subject, "Antiguo")
}

func TestDeadlineScanSkipsMalformedPayload(t *testing.T) {
	job := NewDeadlineScanJob(&stubOverdue{}, &stubTeamQuery{}, &stubAccounts{}, &recordingEnqueuer{}, nil, nil)

	task := asynq.NewTask(TaskTypeDeadlineScan, []byte("{not json"))
	require.ErrorIs(t, job.Handle(context.Background(), task), asynq.SkipRetry)
}
