// Package perm defines the closed catalog of SGP capabilities.
//
// Capabilities come in two scopes. Project capabilities are granted through a
// role inside a single project; global capabilities hang directly off a user
// account. The catalog is fixed at compile time: there is no runtime
// registration and unknown codes are rejected wherever a capability is taken
// as input.
package perm

import "errors"

// Capability is a permission code from the catalog.
type Capability string

// Project-scoped capabilities.
const (
	// AdministrarEquipo allows managing the project team and its roles.
	AdministrarEquipo Capability = "administrar_equipo"
	// GestionarProyecto allows editing project settings and lifecycle.
	GestionarProyecto Capability = "gestionar_proyecto"
	// PilaProducto allows managing the product backlog.
	PilaProducto Capability = "pila_producto"
	// Desarrollo allows working on user stories and sprints.
	Desarrollo Capability = "desarrollo"
	// Vista grants read access to a project. It is implicit for every
	// member and therefore never part of a role's stored set.
	Vista Capability = "vista"
)

// Global capabilities held directly by a user account.
const (
	// CrearProyecto allows creating new projects.
	CrearProyecto Capability = "crear_proyecto"
	// Administrar allows managing user accounts and their permissions.
	Administrar Capability = "administrar"
	// Auditar allows reading the system audit trail.
	Auditar Capability = "auditar"
)

// ErrInvalidCapability reports a code outside the catalog scope expected by
// the operation.
var ErrInvalidCapability = errors.New("perm: invalid capability")

var projectScopes = []Capability{AdministrarEquipo, GestionarProyecto, PilaProducto, Desarrollo}

var globalScopes = []Capability{CrearProyecto, Administrar, Auditar}

// ProjectScopes returns the assignable project capabilities in catalog
// order. Vista is excluded: it is implied by membership.
func ProjectScopes() []Capability {
	out := make([]Capability, len(projectScopes))
	copy(out, projectScopes)
	return out
}

// GlobalScopes returns the account-level capabilities in catalog order.
func GlobalScopes() []Capability {
	out := make([]Capability, len(globalScopes))
	copy(out, globalScopes)
	return out
}

// IsProjectScope reports whether c is an assignable project capability.
// Vista is not assignable and returns false.
func IsProjectScope(c Capability) bool {
	for _, p := range projectScopes {
		if p == c {
			return true
		}
	}
	return false
}

// IsGlobalScope reports whether c is a global account capability.
func IsGlobalScope(c Capability) bool {
	for _, g := range globalScopes {
		if g == c {
			return true
		}
	}
	return false
}
