package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sgp-project/sgp/internal/perm"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, user_id, email, nombre, apellido, is_active, is_superuser, capabilities, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	var caps []string
	if err := row.Scan(&u.ID, &u.UserID, &u.Email, &u.Nombre, &u.Apellido, &u.IsActive, &u.IsSuperuser, &caps, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	u.Capabilities = perm.FromStrings(caps)
	return u, nil
}

// Get fetches a user by internal ID.
func (r *Repository) Get(ctx context.Context, id int64) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetByUserID fetches a user by the external user identifier.
func (r *Repository) GetByUserID(ctx context.Context, userID string) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1`, userID)
	return scanUser(row)
}

// List returns all users ordered by surname and name.
func (r *Repository) List(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY apellido, nombre, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Create inserts a new account and returns its ID. Unique violations on
// user_id or email map to ErrDuplicate.
func (r *Repository) Create(ctx context.Context, u User, passwordHash string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (user_id, email, nombre, apellido, is_active, is_superuser, capabilities, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		u.UserID, u.Email, u.Nombre, u.Apellido, u.IsActive, u.IsSuperuser, u.Capabilities.Strings(), passwordHash,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicate
		}
		return 0, err
	}
	return id, nil
}

// UpdateProfile updates the mutable profile fields.
func (r *Repository) UpdateProfile(ctx context.Context, id int64, nombre, apellido string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET nombre = $2, apellido = $3, updated_at = NOW() WHERE id = $1`, id, nombre, apellido)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetCapabilities replaces the account's global capability set.
func (r *Repository) SetCapabilities(ctx context.Context, id int64, caps []string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET capabilities = $2, updated_at = NOW() WHERE id = $1`, id, caps)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetActive toggles the active flag.
func (r *Repository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
