package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/sgp-project/sgp/internal/jobs"
	"github.com/sgp-project/sgp/internal/perm"
	"github.com/sgp-project/sgp/internal/projects"
	"github.com/sgp-project/sgp/internal/users"
)

// OverdueLister returns started projects whose end date has passed.
type OverdueLister interface {
	ListOverdue(ctx context.Context) ([]projects.Project, error)
}

// TeamQuery finds the members holding a capability in a project.
type TeamQuery interface {
	MembersWithCapability(ctx context.Context, projectID int64, c perm.Capability) ([]int64, error)
}

// AccountQuery resolves member accounts to addresses.
type AccountQuery interface {
	Get(ctx context.Context, id int64) (users.User, error)
}

// Enqueuer submits follow-up email tasks.
type Enqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// DeadlineScanJob alerts the team administrators of projects that stayed in
// estado iniciado past their end date.
type DeadlineScanJob struct {
	Projects OverdueLister
	Team     TeamQuery
	Accounts AccountQuery
	Client   Enqueuer
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewDeadlineScanJob initialises the deadline sweep handler.
func NewDeadlineScanJob(projects OverdueLister, team TeamQuery, accounts AccountQuery, client Enqueuer, logger *slog.Logger, metrics *jobmetrics.Metrics) *DeadlineScanJob {
	return &DeadlineScanJob{
		Projects: projects,
		Team:     team,
		Accounts: accounts,
		Client:   client,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the deadline sweep.
func (j *DeadlineScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("deadline scan: handler not configured")
	}
	var payload DeadlineScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskTypeDeadlineScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting deadline scan", slog.Int("grace_days", payload.GraceDays))

	overdue, err := j.Projects.ListOverdue(ctx)
	if err != nil {
		resultErr = err
		logger.Error("list overdue projects", slog.Any("error", err))
		return resultErr
	}

	now := j.now()
	notified := 0
	for _, p := range overdue {
		if payload.GraceDays > 0 && now.Sub(p.FechaFin) < time.Duration(payload.GraceDays)*24*time.Hour {
			continue
		}
		n, err := j.notifyAdmins(ctx, p)
		if err != nil {
			resultErr = err
			logger.Error("notify project admins",
				slog.Int64("project_id", p.ID),
				slog.Any("error", err),
			)
			return resultErr
		}
		notified += n
	}

	j.metrics().AddNotifications("deadline", notified)
	logger.Info("completed deadline scan",
		slog.Int("overdue", len(overdue)),
		slog.Int("notified", notified),
	)
	return resultErr
}

func (j *DeadlineScanJob) notifyAdmins(ctx context.Context, p projects.Project) (int, error) {
	admins, err := j.Team.MembersWithCapability(ctx, p.ID, perm.AdministrarEquipo)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, userID := range admins {
		u, err := j.Accounts.Get(ctx, userID)
		if err != nil {
			if errors.Is(err, users.ErrNotFound) {
				continue
			}
			return sent, err
		}
		if !u.IsActive || u.Email == "" {
			continue
		}
		_, err = j.Client.EnqueueSendEmail(ctx, SendEmailPayload{
			To:      u.Email,
			Subject: fmt.Sprintf("Proyecto %q vencido", p.Nombre),
			Body: fmt.Sprintf(
				"El proyecto %q sigue iniciado pero su fecha de fin (%s) ya paso. Revisa el estado del proyecto.",
				p.Nombre, p.FechaFin.Format("2006-01-02"),
			),
		})
		if err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

func (j *DeadlineScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTypeDeadlineScan))
	}
	return slog.Default().With(slog.String("job", TaskTypeDeadlineScan))
}

func (j *DeadlineScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}

func (j *DeadlineScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
