package projects

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const projectColumns = `id, nombre, descripcion, fecha_creacion, fecha_inicio, fecha_fin, duracion_sprint, estado`

func scanProject(row pgx.Row) (Project, error) {
	var p Project
	var estado string
	if err := row.Scan(&p.ID, &p.Nombre, &p.Descripcion, &p.FechaCreacion, &p.FechaInicio, &p.FechaFin, &p.DuracionSprint, &estado); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Project{}, ErrNotFound
		}
		return Project{}, err
	}
	p.Estado = Estado(estado)
	return p, nil
}

// Get fetches a project by ID.
func (r *Repository) Get(ctx context.Context, id int64) (Project, error) {
	return scanProject(r.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
}

// List returns all projects, newest first.
func (r *Repository) List(ctx context.Context) ([]Project, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY fecha_creacion DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListOverdue returns started projects whose end date has passed.
func (r *Repository) ListOverdue(ctx context.Context) ([]Project, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE estado = $1 AND fecha_fin < NOW() ORDER BY fecha_fin`,
		string(EstadoIniciado))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Create inserts a project and returns its ID.
func (r *Repository) Create(ctx context.Context, p Project) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO projects (nombre, descripcion, fecha_inicio, fecha_fin, duracion_sprint, estado)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		p.Nombre, p.Descripcion, p.FechaInicio, p.FechaFin, p.DuracionSprint, string(p.Estado),
	).Scan(&id)
	return id, err
}

// Delete removes a project row. The service uses it to undo a creation
// whose team bootstrap failed.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	return err
}

// Update stores the mutable project fields.
func (r *Repository) Update(ctx context.Context, p Project) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE projects
		SET nombre = $2, descripcion = $3, fecha_inicio = $4, fecha_fin = $5, duracion_sprint = $6
		WHERE id = $1`,
		p.ID, p.Nombre, p.Descripcion, p.FechaInicio, p.FechaFin, p.DuracionSprint)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetEstado moves the project to the new status, guarding the transition in
// SQL so concurrent updates cannot skip a step.
func (r *Repository) SetEstado(ctx context.Context, id int64, from, to Estado) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE projects SET estado = $3 WHERE id = $1 AND estado = $2`,
		id, string(from), string(to))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
