package rbac

import (
	"context"
	"errors"

	"github.com/sgp-project/sgp/internal/perm"
)

// CheckerRepositoryPort describes the reads the checker performs.
type CheckerRepositoryPort interface {
	GetUserGrants(ctx context.Context, userID int64) (UserGrants, error)
	GetMembership(ctx context.Context, userID, projectID int64) (Membership, error)
	GetRole(ctx context.Context, roleID int64) (Role, error)
}

// Checker answers capability queries. It is a pure read component: a
// missing user, membership, or role answers false, never an error.
type Checker struct {
	repo  CheckerRepositoryPort
	cache *PermissionCache
}

// NewChecker constructs a Checker. cache may be nil to query the database
// on every check.
func NewChecker(repo CheckerRepositoryPort, cache *PermissionCache) *Checker {
	return &Checker{repo: repo, cache: cache}
}

// HasGlobalCapability reports whether the account directly holds the global
// capability. Superusers satisfy every check; inactive accounts none.
func (c *Checker) HasGlobalCapability(ctx context.Context, userID int64, cap perm.Capability) (bool, error) {
	grants, err := c.repo.GetUserGrants(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !grants.Active {
		return false, nil
	}
	if grants.Superuser {
		return true, nil
	}
	return grants.Capabilities.Has(cap), nil
}

// HasProjectCapability reports whether the user's role in the project
// grants the capability. Vista is granted to every member; without a
// membership every project capability, vista included, is false.
func (c *Checker) HasProjectCapability(ctx context.Context, userID, projectID int64, cap perm.Capability) (bool, error) {
	caps, member, err := c.effectiveCapabilities(ctx, userID, projectID)
	if err != nil {
		return false, err
	}
	if !member {
		return false, nil
	}
	if cap == perm.Vista {
		return true, nil
	}
	return caps.Has(cap), nil
}

// effectiveCapabilities resolves the user's role capability set in the
// project, going through the cache when one is configured.
func (c *Checker) effectiveCapabilities(ctx context.Context, userID, projectID int64) (perm.Set, bool, error) {
	fill := func(ctx context.Context) (perm.Set, bool, error) {
		m, err := c.repo.GetMembership(ctx, userID, projectID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, false, nil
			}
			return nil, false, err
		}
		role, err := c.repo.GetRole(ctx, m.RoleID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, false, nil
			}
			return nil, false, err
		}
		return role.Capabilities, true, nil
	}

	if c.cache == nil {
		return fill(ctx)
	}
	return c.cache.Effective(ctx, userID, projectID, fill)
}
