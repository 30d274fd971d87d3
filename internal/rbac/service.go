package rbac

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/sgp-project/sgp/internal/perm"
	"github.com/sgp-project/sgp/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetRole(ctx context.Context, roleID int64) (Role, error)
	ListRoles(ctx context.Context, projectID int64) ([]Role, error)
	GetMembership(ctx context.Context, userID, projectID int64) (Membership, error)
	ListTeam(ctx context.Context, projectID int64) ([]TeamMember, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Invalidator drops cached authorization results after a mutation.
type Invalidator interface {
	InvalidateUser(ctx context.Context, userID, projectID int64)
	InvalidateProject(ctx context.Context, projectID int64)
}

// Service orchestrates role and membership mutations for a project.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	cache Invalidator
}

// NewService constructs the rbac service. audit and cache may be nil.
func NewService(repo RepositoryPort, audit AuditPort, cache Invalidator) *Service {
	return &Service{repo: repo, audit: audit, cache: cache}
}

// InitializeDefaultRoles creates the four default roles for a freshly
// created project. It must run before any membership exists and is rejected
// with ErrAlreadyInitialized when the project already has roles.
func (s *Service) InitializeDefaultRoles(ctx context.Context, projectID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		n, err := tx.CountRoles(ctx, projectID)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrAlreadyInitialized
		}
		for _, seed := range DefaultRoles() {
			caps := make([]string, len(seed.Capabilities))
			for i, c := range seed.Capabilities {
				caps[i] = string(c)
			}
			if _, err := tx.CreateRole(ctx, projectID, seed.Nombre, caps); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, 0, "RBAC_BOOTSTRAP", "project", projectID, nil)
	return nil
}

// CreateRole adds an ad hoc role to the project.
func (s *Service) CreateRole(ctx context.Context, projectID int64, nombre string, caps []perm.Capability, actorID int64) (Role, error) {
	nombre = strings.TrimSpace(nombre)
	if nombre == "" {
		return Role{}, fmt.Errorf("rbac: role name required")
	}
	set := perm.NewSet()
	for _, c := range caps {
		if !perm.IsProjectScope(c) {
			return Role{}, ErrInvalidCapability
		}
		set.Add(c)
	}

	var role Role
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateRole(ctx, projectID, nombre, set.Strings())
		if err != nil {
			return err
		}
		role = Role{ID: id, ProjectID: projectID, Nombre: nombre, Capabilities: set}
		return nil
	})
	if err != nil {
		return Role{}, err
	}
	s.recordAudit(ctx, actorID, "ROLE_CREATE", "role", role.ID, map[string]any{"nombre": nombre, "capabilities": set.Strings()})
	return role, nil
}

// AssignRole binds the user to the named role within the project. A user
// without a membership gets one; a user already on the team has the
// existing membership re-pointed. Both paths run in one transaction under a
// row lock on the (user, project) key, so concurrent assignments can never
// produce two memberships for the same user.
func (s *Service) AssignRole(ctx context.Context, userID int64, roleName string, projectID int64, actorID int64) error {
	var assigned Role
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		role, err := tx.FindRoleByName(ctx, projectID, roleName)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrRoleNotFound
			}
			return err
		}
		assigned = role

		m, err := tx.GetMembershipForUpdate(ctx, userID, projectID)
		switch {
		case errors.Is(err, ErrNotFound):
			return tx.InsertMembership(ctx, Membership{UserID: userID, ProjectID: projectID, RoleID: role.ID})
		case err != nil:
			return err
		case m.RoleID == role.ID:
			return nil
		default:
			return tx.UpdateMembershipRole(ctx, userID, projectID, role.ID)
		}
	})
	if err != nil {
		return err
	}
	s.invalidateUser(ctx, userID, projectID)
	s.recordAudit(ctx, actorID, "ROLE_ASSIGN", "membership", userID, map[string]any{"project_id": projectID, "role": assigned.Nombre})
	return nil
}

// RemoveMembership takes the user off the project team. Removing a user who
// is not on the team is a no-op, not an error. The user account and the role
// are left untouched.
func (s *Service) RemoveMembership(ctx context.Context, userID, projectID int64, actorID int64) error {
	var removed bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		removed, err = tx.DeleteMembership(ctx, userID, projectID)
		return err
	})
	if err != nil {
		return err
	}
	if removed {
		s.invalidateUser(ctx, userID, projectID)
		s.recordAudit(ctx, actorID, "MEMBER_REMOVE", "membership", userID, map[string]any{"project_id": projectID})
	}
	return nil
}

// SetRolePermissions replaces the role's capability set with desired,
// granting what is present and revoking what is absent relative to the full
// project scope.
//
// When the acting user's own membership points at the role being edited and
// the role currently holds administrar_equipo, a desired set that omits
// administrar_equipo is silently corrected to keep it: the user editing
// their own role cannot strip themselves of team administration through
// this operation. The rest of desired still applies. The returned set is
// what was actually stored, so callers can show the coercion to the user.
//
// This guards only the acting user's own edit. It does not keep a project
// administrable overall: another administrator may still revoke the
// capability on this role, or remove the last administering member.
func (s *Service) SetRolePermissions(ctx context.Context, roleID int64, desired []perm.Capability, actingUserID int64) (perm.Set, error) {
	want := perm.NewSet()
	for _, c := range desired {
		if !perm.IsProjectScope(c) {
			return nil, ErrInvalidCapability
		}
		want.Add(c)
	}

	var applied perm.Set
	var projectID int64
	var coerced bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		role, err := tx.GetRoleForUpdate(ctx, roleID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrRoleNotFound
			}
			return err
		}
		projectID = role.ProjectID

		if !want.Has(perm.AdministrarEquipo) && role.Capabilities.Has(perm.AdministrarEquipo) {
			m, err := tx.GetMembershipForUpdate(ctx, actingUserID, role.ProjectID)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			if err == nil && m.RoleID == role.ID {
				want.Add(perm.AdministrarEquipo)
				coerced = true
			}
		}

		if err := tx.SetRoleCapabilities(ctx, roleID, want.Strings()); err != nil {
			return err
		}
		applied = want
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidateProject(ctx, projectID)
	s.recordAudit(ctx, actingUserID, "ROLE_SET_PERMS", "role", roleID, map[string]any{
		"capabilities": applied.Strings(),
		"coerced":      coerced,
	})
	return applied, nil
}

// DeleteRole removes a role that no membership references. A referenced
// role is rejected with ErrRoleInUse; members must be reassigned or removed
// first.
func (s *Service) DeleteRole(ctx context.Context, roleID int64, actorID int64) error {
	var projectID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		role, err := tx.GetRoleForUpdate(ctx, roleID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrRoleNotFound
			}
			return err
		}
		projectID = role.ProjectID

		n, err := tx.CountMembershipsByRole(ctx, roleID)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrRoleInUse
		}
		return tx.DeleteRole(ctx, roleID)
	})
	if err != nil {
		return err
	}
	s.invalidateProject(ctx, projectID)
	s.recordAudit(ctx, actorID, "ROLE_DELETE", "role", roleID, nil)
	return nil
}

// GetRole fetches one role.
func (s *Service) GetRole(ctx context.Context, roleID int64) (Role, error) {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Role{}, ErrRoleNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// ListRoles returns the project's roles ordered by name under Spanish
// collation.
func (s *Service) ListRoles(ctx context.Context, projectID int64) ([]Role, error) {
	roles, err := s.repo.ListRoles(ctx, projectID)
	if err != nil {
		return nil, err
	}
	c := collate.New(language.Spanish)
	sort.Slice(roles, func(i, j int) bool {
		return c.CompareString(roles[i].Nombre, roles[j].Nombre) < 0
	})
	return roles, nil
}

// ListTeam returns the project's memberships with user and role details.
func (s *Service) ListTeam(ctx context.Context, projectID int64) ([]TeamMember, error) {
	return s.repo.ListTeam(ctx, projectID)
}

func (s *Service) invalidateUser(ctx context.Context, userID, projectID int64) {
	if s.cache != nil {
		s.cache.InvalidateUser(ctx, userID, projectID)
	}
}

func (s *Service) invalidateProject(ctx context.Context, projectID int64) {
	if s.cache != nil {
		s.cache.InvalidateProject(ctx, projectID)
	}
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
