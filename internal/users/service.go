package users

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/sgp-project/sgp/internal/perm"
	"github.com/sgp-project/sgp/internal/shared"
)

// RepositoryPort defines data access methods used by the service.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (User, error)
	GetByUserID(ctx context.Context, userID string) (User, error)
	List(ctx context.Context) ([]User, error)
	Create(ctx context.Context, u User, passwordHash string) (int64, error)
	UpdateProfile(ctx context.Context, id int64, nombre, apellido string) error
	SetCapabilities(ctx context.Context, id int64, caps []string) error
	SetActive(ctx context.Context, id int64, active bool) error
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles account business logic.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// ProvisionInput describes a new account.
type ProvisionInput struct {
	UserID    string
	Email     string
	Nombre    string
	Apellido  string
	Password  string
	Superuser bool
}

// Provision creates an account. New accounts start active, with no global
// capabilities unless provisioned as superuser.
func (s *Service) Provision(ctx context.Context, input ProvisionInput) (User, error) {
	input.UserID = strings.TrimSpace(input.UserID)
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))
	if input.UserID == "" || input.Email == "" {
		return User{}, fmt.Errorf("users: user id and email required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("users: hash password: %w", err)
	}

	u := User{
		UserID:       input.UserID,
		Email:        input.Email,
		Nombre:       strings.TrimSpace(input.Nombre),
		Apellido:     strings.TrimSpace(input.Apellido),
		IsActive:     true,
		IsSuperuser:  input.Superuser,
		Capabilities: perm.NewSet(),
	}
	id, err := s.repo.Create(ctx, u, string(hash))
	if err != nil {
		return User{}, err
	}
	u.ID = id
	s.recordAudit(ctx, id, "USER_PROVISION", id, map[string]any{"user_id": u.UserID})
	return u, nil
}

// Get returns one account.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.repo.Get(ctx, id)
}

// List returns all accounts.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

// UpdateProfile changes name fields. Email and user id are immutable.
func (s *Service) UpdateProfile(ctx context.Context, id int64, nombre, apellido string) error {
	return s.repo.UpdateProfile(ctx, id, strings.TrimSpace(nombre), strings.TrimSpace(apellido))
}

// GrantGlobalCapability adds a global capability to the account. Granting a
// capability the account already holds is a no-op.
func (s *Service) GrantGlobalCapability(ctx context.Context, userID int64, c perm.Capability, actorID int64) error {
	if !perm.IsGlobalScope(c) {
		return perm.ErrInvalidCapability
	}
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return err
	}
	if u.Capabilities.Has(c) {
		return nil
	}
	u.Capabilities.Add(c)
	if err := s.repo.SetCapabilities(ctx, userID, u.Capabilities.Strings()); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "USER_GRANT", userID, map[string]any{"capability": string(c)})
	return nil
}

// RevokeGlobalCapability removes a global capability from the account.
// Revoking an absent capability is a no-op.
func (s *Service) RevokeGlobalCapability(ctx context.Context, userID int64, c perm.Capability, actorID int64) error {
	if !perm.IsGlobalScope(c) {
		return perm.ErrInvalidCapability
	}
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !u.Capabilities.Has(c) {
		return nil
	}
	u.Capabilities.Remove(c)
	if err := s.repo.SetCapabilities(ctx, userID, u.Capabilities.Strings()); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "USER_REVOKE", userID, map[string]any{"capability": string(c)})
	return nil
}

// SetActive enables or disables the account.
func (s *Service) SetActive(ctx context.Context, userID int64, active bool, actorID int64) error {
	if err := s.repo.SetActive(ctx, userID, active); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "USER_SET_ACTIVE", userID, map[string]any{"active": active})
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
}
