package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mbd888/tenantdesk/internal/logging"
	"github.com/mbd888/tenantdesk/internal/metrics"
	"github.com/mbd888/tenantdesk/internal/partition"
	"github.com/mbd888/tenantdesk/internal/traces"
)

// NewUser is the input for Register.
type NewUser struct {
	Email       string
	Username    string
	Password    string
	FirstName   string
	LastName    string
	PhoneNumber *string
	// Role makes the account a role user. Without it the account is an
	// admin of the partition it is created in.
	Role *Role
}

// Service applies the account lifecycle on top of a Store.
type Service struct {
	store      Store
	dependents Dependents
	now        func() time.Time
}

// NewService creates a user service. dependents may be nil when the store
// cascades deletes itself.
func NewService(store Store, dependents Dependents) *Service {
	return &Service{store: store, dependents: dependents, now: time.Now}
}

// Register returns the account with nu.Email in the partition bound to ctx,
// creating it when absent. created reports whether a new account was stored.
func (s *Service) Register(ctx context.Context, nu NewUser) (u *User, created bool, err error) {
	ctx, span := traces.StartSpan(ctx, "user.Register")
	defer span.End()

	p, ok := partition.From(ctx)
	if !ok {
		return nil, false, partition.ErrUnbound
	}

	email := strings.TrimSpace(nu.Email)
	existing, err := s.store.GetByEmail(ctx, email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}

	u = &User{
		Email:       email,
		Username:    strings.TrimSpace(nu.Username),
		FirstName:   nu.FirstName,
		LastName:    nu.LastName,
		PhoneNumber: nu.PhoneNumber,
		IsActive:    true,
		DateJoined:  s.now(),
	}
	if nu.Role != nil {
		if p.Public {
			return nil, false, partition.ErrPublicTarget
		}
		u.AssignRole(*nu.Role, s.now())
	} else {
		u.PromoteToAdmin(p.Public, s.now())
	}
	if err := u.Validate(); err != nil {
		return nil, false, err
	}
	if err := u.checkVariant(); err != nil {
		return nil, false, err
	}

	if nu.Password != "" {
		hash, err := HashPassword(nu.Password)
		if err != nil {
			return nil, false, err
		}
		u.PasswordHash = hash
	}

	if err := s.store.Create(ctx, u); err != nil {
		return nil, false, err
	}
	metrics.UsersCreatedTotal.WithLabelValues(string(u.Kind)).Inc()
	logging.L(ctx).Info("user created", "user_id", u.ID, "kind", u.Kind)
	return u, true, nil
}

// Get returns the user with id.
func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	return s.store.Get(ctx, id)
}

// GetByEmail returns the user with email.
func (s *Service) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.store.GetByEmail(ctx, strings.TrimSpace(email))
}

// List returns every user of the bound partition, newest first.
func (s *Service) List(ctx context.Context) ([]*User, error) {
	return s.store.List(ctx)
}

// Activate enables an account, persisting only is_active and updated_at.
func (s *Service) Activate(ctx context.Context, id int64) (*User, error) {
	return s.setActive(ctx, id, true)
}

// Deactivate disables an account, persisting only is_active and updated_at.
func (s *Service) Deactivate(ctx context.Context, id int64) (*User, error) {
	return s.setActive(ctx, id, false)
}

func (s *Service) setActive(ctx context.Context, id int64, active bool) (*User, error) {
	u, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if active {
		u.Activate(s.now())
	} else {
		u.Deactivate(s.now())
	}
	updated, err := s.store.SetActive(ctx, id, active)
	if err != nil {
		return nil, err
	}
	u.UpdatedAt = updated
	return u, nil
}

// CreateAdmin promotes an account to an admin of its partition. Callers
// authorise the promotion.
func (s *Service) CreateAdmin(ctx context.Context, id int64) (*User, error) {
	p, ok := partition.From(ctx)
	if !ok {
		return nil, partition.ErrUnbound
	}
	u, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	u.PromoteToAdmin(p.Public, s.now())
	return s.persistKind(ctx, u)
}

// CreateRoleBasedUser strips elevated privileges and stores role on the
// account in the same write.
func (s *Service) CreateRoleBasedUser(ctx context.Context, id int64, role Role) (*User, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	p, ok := partition.From(ctx)
	if !ok {
		return nil, partition.ErrUnbound
	}
	if p.Public {
		return nil, partition.ErrPublicTarget
	}
	u, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	u.AssignRole(role, s.now())
	return s.persistKind(ctx, u)
}

func (s *Service) persistKind(ctx context.Context, u *User) (*User, error) {
	if err := u.checkVariant(); err != nil {
		return nil, err
	}
	updated, err := s.store.SetKind(ctx, u.ID, u.Kind, u.Role)
	if err != nil {
		return nil, err
	}
	u.UpdatedAt = updated
	logging.L(ctx).Info("user kind changed", "user_id", u.ID, "kind", u.Kind)
	return u, nil
}

// Delete removes an account and everything it owns.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if _, err := s.store.Get(ctx, id); err != nil {
		return err
	}
	if s.dependents != nil {
		if _, err := s.dependents.DeleteByUser(ctx, id); err != nil {
			return err
		}
	}
	return s.store.Delete(ctx, id)
}
