package rbac_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/sgp-project/sgp/internal/perm"
	"github.com/sgp-project/sgp/internal/rbac"
	"github.com/sgp-project/sgp/internal/shared"
)

// stubChecker backs the middleware without a database.
type stubCheckerRepo struct {
	grants      map[int64]rbac.UserGrants
	memberships map[int64]rbac.Membership
	roles       map[int64]rbac.Role
}

func (s *stubCheckerRepo) GetUserGrants(ctx context.Context, userID int64) (rbac.UserGrants, error) {
	g, ok := s.grants[userID]
	if !ok {
		return rbac.UserGrants{}, rbac.ErrNotFound
	}
	return g, nil
}

func (s *stubCheckerRepo) GetMembership(ctx context.Context, userID, projectID int64) (rbac.Membership, error) {
	m, ok := s.memberships[userID]
	if !ok || m.ProjectID != projectID {
		return rbac.Membership{}, rbac.ErrNotFound
	}
	return m, nil
}

func (s *stubCheckerRepo) GetRole(ctx context.Context, roleID int64) (rbac.Role, error) {
	role, ok := s.roles[roleID]
	if !ok {
		return rbac.Role{}, rbac.ErrNotFound
	}
	return role, nil
}

func authenticatedRequest(t *testing.T, target string, userID int64) *http.Request {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sm := shared.NewSessionManager(client, "sgp_session", time.Hour, false)

	req := httptest.NewRequest(http.MethodGet, target, nil)
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	if userID != 0 {
		sess.SetUser(userID)
	}
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func TestRequireProjectGate(t *testing.T) {
	repo := &stubCheckerRepo{
		grants: map[int64]rbac.UserGrants{},
		memberships: map[int64]rbac.Membership{
			1: {UserID: 1, ProjectID: 7, RoleID: 10},
		},
		roles: map[int64]rbac.Role{
			10: {ID: 10, ProjectID: 7, Nombre: "Developer", Capabilities: perm.NewSet(perm.Desarrollo)},
		},
	}
	mw := rbac.Middleware{Checker: rbac.NewChecker(repo, nil)}

	router := chi.NewRouter()
	router.Route("/projects/{projectID}", func(r chi.Router) {
		r.With(mw.RequireProject(perm.Desarrollo)).Get("/board", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		r.With(mw.RequireProject(perm.AdministrarEquipo)).Get("/team", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// Member with the capability.
	res := httptest.NewRecorder()
	router.ServeHTTP(res, authenticatedRequest(t, "/projects/7/board", 1))
	require.Equal(t, http.StatusOK, res.Code)

	// Member without the capability.
	res = httptest.NewRecorder()
	router.ServeHTTP(res, authenticatedRequest(t, "/projects/7/team", 1))
	require.Equal(t, http.StatusForbidden, res.Code)

	// Non-member.
	res = httptest.NewRecorder()
	router.ServeHTTP(res, authenticatedRequest(t, "/projects/7/board", 2))
	require.Equal(t, http.StatusForbidden, res.Code)

	// Anonymous.
	res = httptest.NewRecorder()
	router.ServeHTTP(res, authenticatedRequest(t, "/projects/7/board", 0))
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestRequireGlobalGate(t *testing.T) {
	repo := &stubCheckerRepo{
		grants: map[int64]rbac.UserGrants{
			1: {Active: true, Capabilities: perm.NewSet(perm.CrearProyecto)},
			2: {Active: true},
		},
	}
	mw := rbac.Middleware{Checker: rbac.NewChecker(repo, nil)}

	router := chi.NewRouter()
	router.With(mw.RequireGlobal(perm.CrearProyecto)).Post("/projects", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	res := httptest.NewRecorder()
	req := authenticatedRequest(t, "/projects", 1)
	req.Method = http.MethodPost
	router.ServeHTTP(res, req)
	require.Equal(t, http.StatusCreated, res.Code)

	res = httptest.NewRecorder()
	req = authenticatedRequest(t, "/projects", 2)
	req.Method = http.MethodPost
	router.ServeHTTP(res, req)
	require.Equal(t, http.StatusForbidden, res.Code)
}
