package backlog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sgp-project/sgp/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by Service. Story
// deletion runs in a transaction so the story and its comments disappear
// together.
type TxRepository interface {
	DeleteStoryComments(ctx context.Context, storyID int64) error
	DeleteStory(ctx context.Context, storyID int64) error
	ReplaceSprintTeam(ctx context.Context, sprintID int64, equipo []int64) error
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps fn in a RepeatableRead transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const storyColumns = `id, project_id, nombre, descripcion, estado, horas_estimadas, horas_trabajadas, created_at, updated_at`

func scanStory(row pgx.Row) (UserStory, error) {
	var st UserStory
	var estado string
	if err := row.Scan(&st.ID, &st.ProjectID, &st.Nombre, &st.Descripcion, &estado, &st.HorasEstimadas, &st.HorasTrabajadas, &st.CreatedAt, &st.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserStory{}, ErrNotFound
		}
		return UserStory{}, err
	}
	st.Estado = Estado(estado)
	return st, nil
}

// GetStory fetches a story by ID.
func (r *Repository) GetStory(ctx context.Context, storyID int64) (UserStory, error) {
	return scanStory(r.pool.QueryRow(ctx, `SELECT `+storyColumns+` FROM user_stories WHERE id = $1`, storyID))
}

// ListStories returns the project's stories, oldest first.
func (r *Repository) ListStories(ctx context.Context, projectID int64) ([]UserStory, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+storyColumns+` FROM user_stories WHERE project_id = $1 ORDER BY id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UserStory
	for rows.Next() {
		st, err := scanStory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// CreateStory inserts a story and returns its ID.
func (r *Repository) CreateStory(ctx context.Context, st UserStory) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO user_stories (project_id, nombre, descripcion, estado, horas_estimadas, horas_trabajadas)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		st.ProjectID, st.Nombre, st.Descripcion, string(st.Estado), st.HorasEstimadas, st.HorasTrabajadas,
	).Scan(&id)
	return id, err
}

// UpdateStory stores the mutable story fields.
func (r *Repository) UpdateStory(ctx context.Context, st UserStory) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE user_stories
		SET nombre = $2, descripcion = $3, estado = $4, horas_estimadas = $5, horas_trabajadas = $6, updated_at = NOW()
		WHERE id = $1`,
		st.ID, st.Nombre, st.Descripcion, string(st.Estado), st.HorasEstimadas, st.HorasTrabajadas)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetSprint fetches a sprint and its team.
func (r *Repository) GetSprint(ctx context.Context, sprintID int64) (Sprint, error) {
	var sp Sprint
	var estado string
	err := r.pool.QueryRow(ctx, `
		SELECT id, project_id, nombre, descripcion, fecha_inicio, fecha_fin, estado
		FROM sprints WHERE id = $1`, sprintID,
	).Scan(&sp.ID, &sp.ProjectID, &sp.Nombre, &sp.Descripcion, &sp.FechaInicio, &sp.FechaFin, &estado)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sprint{}, ErrNotFound
		}
		return Sprint{}, err
	}
	sp.Estado = Estado(estado)

	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM sprint_members WHERE sprint_id = $1 ORDER BY user_id`, sprintID)
	if err != nil {
		return Sprint{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return Sprint{}, err
		}
		sp.Equipo = append(sp.Equipo, id)
	}
	return sp, rows.Err()
}

// ListSprints returns the project's sprints ordered by start date. Teams are
// not loaded here; GetSprint fills them for the detail view.
func (r *Repository) ListSprints(ctx context.Context, projectID int64) ([]Sprint, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, project_id, nombre, descripcion, fecha_inicio, fecha_fin, estado
		FROM sprints WHERE project_id = $1 ORDER BY fecha_inicio, id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Sprint
	for rows.Next() {
		var sp Sprint
		var estado string
		if err := rows.Scan(&sp.ID, &sp.ProjectID, &sp.Nombre, &sp.Descripcion, &sp.FechaInicio, &sp.FechaFin, &estado); err != nil {
			return nil, err
		}
		sp.Estado = Estado(estado)
		out = append(out, sp)
	}
	return out, rows.Err()
}

// CreateSprint inserts a sprint and returns its ID.
func (r *Repository) CreateSprint(ctx context.Context, sp Sprint) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO sprints (project_id, nombre, descripcion, fecha_inicio, fecha_fin, estado)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		sp.ProjectID, sp.Nombre, sp.Descripcion, sp.FechaInicio, sp.FechaFin, string(sp.Estado),
	).Scan(&id)
	return id, err
}

// UpdateSprint stores the mutable sprint fields.
func (r *Repository) UpdateSprint(ctx context.Context, sp Sprint) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sprints
		SET nombre = $2, descripcion = $3, fecha_inicio = $4, fecha_fin = $5, estado = $6
		WHERE id = $1`,
		sp.ID, sp.Nombre, sp.Descripcion, sp.FechaInicio, sp.FechaFin, string(sp.Estado))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListComments returns a story's comments, oldest first.
func (r *Repository) ListComments(ctx context.Context, storyID int64) ([]Comment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, story_id, autor_id, texto, fecha FROM story_comments WHERE story_id = $1 ORDER BY fecha, id`,
		storyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.StoryID, &c.AutorID, &c.Texto, &c.Fecha); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AddComment inserts a comment and returns it with ID and timestamp set.
func (r *Repository) AddComment(ctx context.Context, c Comment) (Comment, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO story_comments (story_id, autor_id, texto)
		VALUES ($1, $2, $3)
		RETURNING id, fecha`,
		c.StoryID, c.AutorID, c.Texto,
	).Scan(&c.ID, &c.Fecha)
	return c, err
}

// Transactional operations.

func (t *txRepo) DeleteStoryComments(ctx context.Context, storyID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM story_comments WHERE story_id = $1`, storyID)
	return err
}

func (t *txRepo) DeleteStory(ctx context.Context, storyID int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM user_stories WHERE id = $1`, storyID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) ReplaceSprintTeam(ctx context.Context, sprintID int64, equipo []int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM sprint_members WHERE sprint_id = $1`, sprintID); err != nil {
		return err
	}
	for _, userID := range equipo {
		if _, err := t.tx.Exec(ctx,
			`INSERT INTO sprint_members (sprint_id, user_id) VALUES ($1, $2)`, sprintID, userID); err != nil {
			return err
		}
	}
	return nil
}
