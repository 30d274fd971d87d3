package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sgp-project/sgp/internal/perm"
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

// UserGrants is the slice of a user account the checker needs.
type UserGrants struct {
	Active       bool
	Superuser    bool
	Capabilities perm.Set
}

// TxRepository exposes the transactional operations used by Service. All
// *ForUpdate reads take row-level locks so concurrent mutations of the same
// membership or role serialize instead of racing.
type TxRepository interface {
	CountRoles(ctx context.Context, projectID int64) (int64, error)
	CreateRole(ctx context.Context, projectID int64, nombre string, caps []string) (int64, error)
	FindRoleByName(ctx context.Context, projectID int64, nombre string) (Role, error)
	GetRoleForUpdate(ctx context.Context, roleID int64) (Role, error)
	SetRoleCapabilities(ctx context.Context, roleID int64, caps []string) error
	DeleteRole(ctx context.Context, roleID int64) error
	CountMembershipsByRole(ctx context.Context, roleID int64) (int64, error)
	GetMembershipForUpdate(ctx context.Context, userID, projectID int64) (Membership, error)
	InsertMembership(ctx context.Context, m Membership) error
	UpdateMembershipRole(ctx context.Context, userID, projectID, roleID int64) error
	DeleteMembership(ctx context.Context, userID, projectID int64) (bool, error)
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

const roleColumns = `id, project_id, nombre, capabilities, created_at, updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	var caps []string
	if err := row.Scan(&role.ID, &role.ProjectID, &role.Nombre, &caps, &role.CreatedAt, &role.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	role.Capabilities = perm.FromStrings(caps)
	return role, nil
}

// GetRole fetches a role by ID.
func (r *Repository) GetRole(ctx context.Context, roleID int64) (Role, error) {
	return scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, roleID))
}

// ListRoles returns the project's roles. Ordering is left to the service,
// which applies Spanish collation.
func (r *Repository) ListRoles(ctx context.Context, projectID int64) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles WHERE project_id = $1 ORDER BY id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetMembership fetches the user's membership in the project.
func (r *Repository) GetMembership(ctx context.Context, userID, projectID int64) (Membership, error) {
	var m Membership
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, project_id, role_id, created_at FROM memberships WHERE user_id = $1 AND project_id = $2`,
		userID, projectID,
	).Scan(&m.UserID, &m.ProjectID, &m.RoleID, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Membership{}, ErrNotFound
		}
		return Membership{}, err
	}
	return m, nil
}

// ListTeam returns memberships joined with user and role data.
func (r *Repository) ListTeam(ctx context.Context, projectID int64) ([]TeamMember, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT m.user_id, u.nombre, u.apellido, u.email, m.role_id, r.nombre
		FROM memberships m
		JOIN users u ON u.id = m.user_id
		JOIN roles r ON r.id = m.role_id
		WHERE m.project_id = $1
		ORDER BY u.apellido, u.nombre`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var team []TeamMember
	for rows.Next() {
		var tm TeamMember
		if err := rows.Scan(&tm.UserID, &tm.Nombre, &tm.Apellido, &tm.Email, &tm.RoleID, &tm.RolNombre); err != nil {
			return nil, err
		}
		team = append(team, tm)
	}
	return team, rows.Err()
}

// MembersWithCapability returns the user IDs of members whose role grants
// the capability in the project.
func (r *Repository) MembersWithCapability(ctx context.Context, projectID int64, c perm.Capability) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT m.user_id
		FROM memberships m
		JOIN roles r ON r.id = m.role_id
		WHERE m.project_id = $1 AND $2 = ANY(r.capabilities)
		ORDER BY m.user_id`, projectID, string(c))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetUserGrants reads the account flags the checker needs.
func (r *Repository) GetUserGrants(ctx context.Context, userID int64) (UserGrants, error) {
	var g UserGrants
	var caps []string
	err := r.pool.QueryRow(ctx, `SELECT is_active, is_superuser, capabilities FROM users WHERE id = $1`, userID).
		Scan(&g.Active, &g.Superuser, &caps)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserGrants{}, ErrNotFound
		}
		return UserGrants{}, err
	}
	g.Capabilities = perm.FromStrings(caps)
	return g, nil
}

// Transactional operations.

func (t *txRepo) CountRoles(ctx context.Context, projectID int64) (int64, error) {
	var n int64
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM roles WHERE project_id = $1`, projectID).Scan(&n)
	return n, err
}

func (t *txRepo) CreateRole(ctx context.Context, projectID int64, nombre string, caps []string) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx,
		`INSERT INTO roles (project_id, nombre, capabilities) VALUES ($1, $2, $3) RETURNING id`,
		projectID, nombre, caps,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateRole
		}
		return 0, err
	}
	return id, nil
}

func (t *txRepo) FindRoleByName(ctx context.Context, projectID int64, nombre string) (Role, error) {
	return scanRole(t.tx.QueryRow(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE project_id = $1 AND nombre = $2`, projectID, nombre))
}

func (t *txRepo) GetRoleForUpdate(ctx context.Context, roleID int64) (Role, error) {
	return scanRole(t.tx.QueryRow(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE id = $1 FOR UPDATE`, roleID))
}

func (t *txRepo) SetRoleCapabilities(ctx context.Context, roleID int64, caps []string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE roles SET capabilities = $2, updated_at = NOW() WHERE id = $1`, roleID, caps)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) DeleteRole(ctx context.Context, roleID int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) CountMembershipsByRole(ctx context.Context, roleID int64) (int64, error) {
	var n int64
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM memberships WHERE role_id = $1`, roleID).Scan(&n)
	return n, err
}

func (t *txRepo) GetMembershipForUpdate(ctx context.Context, userID, projectID int64) (Membership, error) {
	var m Membership
	err := t.tx.QueryRow(ctx,
		`SELECT user_id, project_id, role_id, created_at FROM memberships WHERE user_id = $1 AND project_id = $2 FOR UPDATE`,
		userID, projectID,
	).Scan(&m.UserID, &m.ProjectID, &m.RoleID, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Membership{}, ErrNotFound
		}
		return Membership{}, err
	}
	return m, nil
}

func (t *txRepo) InsertMembership(ctx context.Context, m Membership) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO memberships (user_id, project_id, role_id) VALUES ($1, $2, $3)`,
		m.UserID, m.ProjectID, m.RoleID)
	return err
}

func (t *txRepo) UpdateMembershipRole(ctx context.Context, userID, projectID, roleID int64) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE memberships SET role_id = $3 WHERE user_id = $1 AND project_id = $2`,
		userID, projectID, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) DeleteMembership(ctx context.Context, userID, projectID int64) (bool, error) {
	tag, err := t.tx.Exec(ctx,
		`DELETE FROM memberships WHERE user_id = $1 AND project_id = $2`, userID, projectID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
