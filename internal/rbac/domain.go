// Package rbac implements project-scoped role based access control.
//
// Every project owns its roles; a role is a named, mutable set of project
// capabilities from the perm catalog. A membership binds one user to exactly
// one role within one project, and at most one membership exists per
// (user, project) pair. Authorization queries are answered by Checker;
// mutations go through Service, which also enforces the self-lockout guard
// on role permission edits.
package rbac

import (
	"errors"
	"time"

	"github.com/sgp-project/sgp/internal/perm"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("rbac: not found")
	// ErrRoleNotFound indicates no role with the given name exists in the
	// project.
	ErrRoleNotFound = errors.New("rbac: role not found")
	// ErrAlreadyInitialized indicates the default roles were already
	// created for the project.
	ErrAlreadyInitialized = errors.New("rbac: default roles already initialized")
	// ErrRoleInUse blocks deletion of a role still referenced by a
	// membership.
	ErrRoleInUse = errors.New("rbac: role is assigned to a member")
	// ErrDuplicateRole indicates a role with the same name already exists
	// in the project.
	ErrDuplicateRole = errors.New("rbac: duplicate role name")
	// ErrInvalidCapability is the catalog validation error.
	ErrInvalidCapability = perm.ErrInvalidCapability
)

// Role is a named capability set owned by exactly one project.
type Role struct {
	ID           int64
	ProjectID    int64
	Nombre       string
	Capabilities perm.Set
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Has reports whether the role grants the capability. Vista is implicit:
// every role grants it.
func (r Role) Has(c perm.Capability) bool {
	if c == perm.Vista {
		return true
	}
	return r.Capabilities.Has(c)
}

// Membership binds one user to one role within one project.
type Membership struct {
	UserID    int64
	ProjectID int64
	RoleID    int64
	CreatedAt time.Time
}

// TeamMember is a membership joined with its user and role for listings.
type TeamMember struct {
	UserID    int64
	Nombre    string
	Apellido  string
	Email     string
	RoleID    int64
	RolNombre string
}

// RoleSeed describes one default role created at project bootstrap.
type RoleSeed struct {
	Nombre       string
	Capabilities []perm.Capability
}

// DefaultRoles returns the four roles every project starts with.
func DefaultRoles() []RoleSeed {
	return []RoleSeed{
		{Nombre: "Scrum master", Capabilities: []perm.Capability{perm.AdministrarEquipo, perm.GestionarProyecto}},
		{Nombre: "Product owner", Capabilities: []perm.Capability{perm.PilaProducto}},
		{Nombre: "Developer", Capabilities: []perm.Capability{perm.Desarrollo}},
		{Nombre: "Stakeholder"},
	}
}
