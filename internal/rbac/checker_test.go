package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/sgp-project/sgp/internal/perm"
)

func TestHasProjectCapabilityVistaTracksMembership(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	checker := NewChecker(repo, nil)
	ctx := context.Background()
	require.NoError(t, svc.InitializeDefaultRoles(ctx, testProject))

	const alice = int64(1)
	ok, err := checker.HasProjectCapability(ctx, alice, testProject, perm.Vista)
	require.NoError(t, err)
	require.False(t, ok, "no membership, no vista")

	require.NoError(t, svc.AssignRole(ctx, alice, "Stakeholder", testProject, alice))
	ok, err = checker.HasProjectCapability(ctx, alice, testProject, perm.Vista)
	require.NoError(t, err)
	require.True(t, ok, "vista is implicit for every member")

	ok, err = checker.HasProjectCapability(ctx, alice, testProject, perm.Desarrollo)
	require.NoError(t, err)
	require.False(t, ok, "stakeholder only holds the implicit vista")

	require.NoError(t, svc.RemoveMembership(ctx, alice, testProject, alice))
	ok, err = checker.HasProjectCapability(ctx, alice, testProject, perm.Vista)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHasProjectCapabilityThroughRole(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	checker := NewChecker(repo, nil)
	ctx := context.Background()
	require.NoError(t, svc.InitializeDefaultRoles(ctx, testProject))
	require.NoError(t, svc.AssignRole(ctx, 1, "Scrum master", testProject, 1))

	for cap, want := range map[perm.Capability]bool{
		perm.AdministrarEquipo: true,
		perm.GestionarProyecto: true,
		perm.PilaProducto:      false,
		perm.Desarrollo:        false,
		perm.Vista:             true,
	} {
		ok, err := checker.HasProjectCapability(ctx, 1, testProject, cap)
		require.NoError(t, err)
		require.Equal(t, want, ok, "capability %s", cap)
	}
}

func TestHasGlobalCapability(t *testing.T) {
	repo := newMemoryRepo()
	checker := NewChecker(repo, nil)
	ctx := context.Background()

	repo.grants[1] = UserGrants{Active: true, Capabilities: perm.NewSet(perm.CrearProyecto)}
	repo.grants[2] = UserGrants{Active: true, Superuser: true}
	repo.grants[3] = UserGrants{Active: false, Capabilities: perm.NewSet(perm.Administrar)}

	ok, err := checker.HasGlobalCapability(ctx, 1, perm.CrearProyecto)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = checker.HasGlobalCapability(ctx, 1, perm.Administrar)
	require.NoError(t, err)
	require.False(t, ok)

	// Superusers satisfy every check unconditionally.
	for _, cap := range perm.GlobalScopes() {
		ok, err = checker.HasGlobalCapability(ctx, 2, cap)
		require.NoError(t, err)
		require.True(t, ok)
	}

	// Inactive accounts hold nothing.
	ok, err = checker.HasGlobalCapability(ctx, 3, perm.Administrar)
	require.NoError(t, err)
	require.False(t, ok)

	// Unknown user answers false, not an error.
	ok, err = checker.HasGlobalCapability(ctx, 99, perm.Auditar)
	require.NoError(t, err)
	require.False(t, ok)
}

func newTestCache(t *testing.T) *PermissionCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewPermissionCache(client, time.Minute)
}

func TestCheckerWithCache(t *testing.T) {
	repo := newMemoryRepo()
	cache := newTestCache(t)
	svc := NewService(repo, nil, cache)
	checker := NewChecker(repo, cache)
	ctx := context.Background()

	require.NoError(t, svc.InitializeDefaultRoles(ctx, testProject))
	require.NoError(t, svc.AssignRole(ctx, 1, "Developer", testProject, 1))

	ok, err := checker.HasProjectCapability(ctx, 1, testProject, perm.Desarrollo)
	require.NoError(t, err)
	require.True(t, ok)

	// Reassignment invalidates the cached entry for the user.
	require.NoError(t, svc.AssignRole(ctx, 1, "Stakeholder", testProject, 1))
	ok, err = checker.HasProjectCapability(ctx, 1, testProject, perm.Desarrollo)
	require.NoError(t, err)
	require.False(t, ok)

	// A role permission edit invalidates the whole project.
	require.NoError(t, svc.AssignRole(ctx, 1, "Developer", testProject, 1))
	ok, err = checker.HasProjectCapability(ctx, 1, testProject, perm.PilaProducto)
	require.NoError(t, err)
	require.False(t, ok)

	developer := repo.roleByName(testProject, "Developer")
	_, err = svc.SetRolePermissions(ctx, developer.ID, []perm.Capability{perm.Desarrollo, perm.PilaProducto}, 2)
	require.NoError(t, err)

	ok, err = checker.HasProjectCapability(ctx, 1, testProject, perm.PilaProducto)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCacheMembershipRemovalInvalidates(t *testing.T) {
	repo := newMemoryRepo()
	cache := newTestCache(t)
	svc := NewService(repo, nil, cache)
	checker := NewChecker(repo, cache)
	ctx := context.Background()

	require.NoError(t, svc.InitializeDefaultRoles(ctx, testProject))
	require.NoError(t, svc.AssignRole(ctx, 1, "Developer", testProject, 1))

	ok, err := checker.HasProjectCapability(ctx, 1, testProject, perm.Vista)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, svc.RemoveMembership(ctx, 1, testProject, 1))
	ok, err = checker.HasProjectCapability(ctx, 1, testProject, perm.Vista)
	require.NoError(t, err)
	require.False(t, ok)
}
