package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sgp-project/sgp/internal/perm"
)

type memoryUserRepo struct {
	users  map[int64]User
	hashes map[int64]string
	nextID int64
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{users: make(map[int64]User), hashes: make(map[int64]string)}
}

func (r *memoryUserRepo) Get(ctx context.Context, id int64) (User, error) {
	u, ok := r.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (r *memoryUserRepo) GetByUserID(ctx context.Context, userID string) (User, error) {
	for _, u := range r.users {
		if u.UserID == userID {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (r *memoryUserRepo) List(ctx context.Context) ([]User, error) {
	out := make([]User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	return out, nil
}

func (r *memoryUserRepo) Create(ctx context.Context, u User, passwordHash string) (int64, error) {
	for _, existing := range r.users {
		if existing.UserID == u.UserID || existing.Email == u.Email {
			return 0, ErrDuplicate
		}
	}
	r.nextID++
	u.ID = r.nextID
	r.users[u.ID] = u
	r.hashes[u.ID] = passwordHash
	return u.ID, nil
}

func (r *memoryUserRepo) UpdateProfile(ctx context.Context, id int64, nombre, apellido string) error {
	u, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Nombre = nombre
	u.Apellido = apellido
	r.users[id] = u
	return nil
}

func (r *memoryUserRepo) SetCapabilities(ctx context.Context, id int64, caps []string) error {
	u, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Capabilities = perm.FromStrings(caps)
	r.users[id] = u
	return nil
}

func (r *memoryUserRepo) SetActive(ctx context.Context, id int64, active bool) error {
	u, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	u.IsActive = active
	r.users[id] = u
	return nil
}

func TestProvisionHashesPassword(t *testing.T) {
	repo := newMemoryUserRepo()
	svc := NewService(repo, nil)

	u, err := svc.Provision(context.Background(), ProvisionInput{
		UserID:   "ncruz",
		Email:    "  Nadia.Cruz@example.com ",
		Nombre:   "Nadia",
		Apellido: "Cruz",
		Password: "correct horse",
	})
	require.NoError(t, err)
	require.Equal(t, "nadia.cruz@example.com", u.Email)
	require.True(t, u.IsActive)
	require.Empty(t, u.Capabilities.Strings())

	hash := repo.hashes[u.ID]
	require.NotEqual(t, "correct horse", hash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("correct horse")))
}

func TestProvisionRejectsDuplicates(t *testing.T) {
	repo := newMemoryUserRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.Provision(ctx, ProvisionInput{UserID: "ncruz", Email: "nc@example.com", Password: "correct horse"})
	require.NoError(t, err)

	_, err = svc.Provision(ctx, ProvisionInput{UserID: "ncruz", Email: "other@example.com", Password: "correct horse"})
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestGrantAndRevokeGlobalCapability(t *testing.T) {
	repo := newMemoryUserRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	u, err := svc.Provision(ctx, ProvisionInput{UserID: "ncruz", Email: "nc@example.com", Password: "correct horse"})
	require.NoError(t, err)

	require.NoError(t, svc.GrantGlobalCapability(ctx, u.ID, perm.CrearProyecto, 99))
	// Granting again is a no-op, not an error.
	require.NoError(t, svc.GrantGlobalCapability(ctx, u.ID, perm.CrearProyecto, 99))

	stored, err := svc.Get(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, []string{string(perm.CrearProyecto)}, stored.Capabilities.Strings())

	require.NoError(t, svc.RevokeGlobalCapability(ctx, u.ID, perm.CrearProyecto, 99))
	require.NoError(t, svc.RevokeGlobalCapability(ctx, u.ID, perm.CrearProyecto, 99))

	stored, err = svc.Get(ctx, u.ID)
	require.NoError(t, err)
	require.Empty(t, stored.Capabilities.Strings())
}

func TestGrantRejectsProjectScopedCapability(t *testing.T) {
	repo := newMemoryUserRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	u, err := svc.Provision(ctx, ProvisionInput{UserID: "ncruz", Email: "nc@example.com", Password: "correct horse"})
	require.NoError(t, err)

	err = svc.GrantGlobalCapability(ctx, u.ID, perm.PilaProducto, 99)
	require.ErrorIs(t, err, perm.ErrInvalidCapability)
}

func TestSuperuserSatisfiesEveryGlobalCheck(t *testing.T) {
	u := User{IsSuperuser: true, Capabilities: perm.NewSet()}
	for _, c := range perm.GlobalScopes() {
		require.True(t, u.HasGlobalCapability(c))
	}

	plain := User{Capabilities: perm.NewSet()}
	require.False(t, plain.HasGlobalCapability(perm.Administrar))
}
