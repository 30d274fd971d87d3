package users

import (
	"errors"
	"time"

	"github.com/sgp-project/sgp/internal/perm"
)

// ErrNotFound indicates the requested user does not exist.
var ErrNotFound = errors.New("users: not found")

// ErrDuplicate indicates the user id or email is already taken.
var ErrDuplicate = errors.New("users: duplicate user")

// User represents an SGP account. Global capabilities hang directly off the
// account; project capabilities are granted through roles and live in the
// rbac package. Accounts are never deleted by this core: removing someone
// from a project removes the membership, not the account.
type User struct {
	ID           int64
	UserID       string
	Email        string
	Nombre       string
	Apellido     string
	IsActive     bool
	IsSuperuser  bool
	Capabilities perm.Set
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasGlobalCapability reports whether the account holds the capability
// directly. Superusers satisfy every check unconditionally.
func (u User) HasGlobalCapability(c perm.Capability) bool {
	if u.IsSuperuser {
		return true
	}
	return u.Capabilities.Has(c)
}
