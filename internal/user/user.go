// Package user models accounts. An account is exactly one of three kinds:
// a superuser in the public partition, a tenant admin, or a role user
// carrying a job-function role. Staff and superuser flags are derived from
// the kind and never stored independently.
package user

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mbd888/tenantdesk/internal/validation"
	"golang.org/x/crypto/bcrypt"
)

// Errors
var (
	ErrUserNotFound = errors.New("user: not found")
	ErrEmailTaken   = errors.New("user: email already registered")
	ErrInvalidRole  = errors.New("user: unknown role")
	ErrKindMismatch = errors.New("user: role must be set exactly for role users")
)

// Kind tags the account variant.
type Kind string

const (
	KindSuperuser   Kind = "superuser"
	KindTenantAdmin Kind = "tenant_admin"
	KindRoleUser    Kind = "role_user"
)

// Role is the job function of a role user.
type Role string

const (
	RoleAdmissionOfficer Role = "admission_officer"
	RoleCounselor        Role = "counselor"
	RoleManager          Role = "manager"
	RoleReceptionist     Role = "receptionist"
	RoleMarketing        Role = "marketing"
)

var roleLabels = map[Role]string{
	RoleAdmissionOfficer: "Admission Officer",
	RoleCounselor:        "Counselor",
	RoleManager:          "Manager",
	RoleReceptionist:     "Receptionist",
	RoleMarketing:        "Marketing",
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleLabels[r]
	return ok
}

// Label returns the human-readable role name.
func (r Role) Label() string {
	return roleLabels[r]
}

// ParseRole returns the Role for s or ErrInvalidRole.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return r, nil
}

// User is an account within one partition.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	PhoneNumber  *string   `json:"phone_number,omitempty"`
	Kind         Kind      `json:"kind"`
	Role         *Role     `json:"role"`
	IsActive     bool      `json:"is_active"`
	DateJoined   time.Time `json:"date_joined"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Validate reports every identity violation at once.
func (u *User) Validate() error {
	return validation.Validate(
		validation.Check("email", u.Email == "", "Email cannot be empty"),
		validation.Email("email", u.Email, "Enter a valid email address"),
		validation.Check("username", u.Username == "", "Username cannot be empty"),
		validation.Check("username", u.Username != "" && utf8.RuneCountInString(u.Username) < 3,
			"Username must be at least 3 characters long"),
	).Err()
}

// checkVariant enforces that Role is set exactly when Kind is KindRoleUser.
func (u *User) checkVariant() error {
	switch u.Kind {
	case KindSuperuser, KindTenantAdmin:
		if u.Role != nil {
			return ErrKindMismatch
		}
	case KindRoleUser:
		if u.Role == nil {
			return ErrKindMismatch
		}
		if !u.Role.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidRole, *u.Role)
		}
	default:
		return fmt.Errorf("user: unknown kind %q", u.Kind)
	}
	return nil
}

// IsStaff reports whether the account has elevated privileges.
func (u *User) IsStaff() bool {
	return u.Kind == KindSuperuser || u.Kind == KindTenantAdmin
}

// IsSuperuser reports whether the account bypasses permission checks.
func (u *User) IsSuperuser() bool {
	return u.Kind == KindSuperuser || u.Kind == KindTenantAdmin
}

// FullName joins first and last name.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// IsRecent reports whether the account joined within the last seven whole days.
func (u *User) IsRecent(now time.Time) bool {
	return now.Sub(u.DateJoined) < 8*24*time.Hour
}

// RoleDisplay returns the role label, or nil when the account has no role.
func (u *User) RoleDisplay() *string {
	if u.Role == nil {
		return nil
	}
	label := u.Role.Label()
	return &label
}

// Activate enables the account.
func (u *User) Activate(now time.Time) *User {
	u.IsActive = true
	u.UpdatedAt = now
	return u
}

// Deactivate disables the account.
func (u *User) Deactivate(now time.Time) *User {
	u.IsActive = false
	u.UpdatedAt = now
	return u
}

// PromoteToAdmin grants elevated privileges and clears any role. In the
// public partition that makes a superuser, elsewhere a tenant admin.
// Callers authorise the promotion.
func (u *User) PromoteToAdmin(public bool, now time.Time) *User {
	u.Kind = KindTenantAdmin
	if public {
		u.Kind = KindSuperuser
	}
	u.Role = nil
	u.UpdatedAt = now
	return u
}

// AssignRole demotes the account to a role user holding role.
func (u *User) AssignRole(role Role, now time.Time) *User {
	u.Kind = KindRoleUser
	u.Role = &role
	u.UpdatedAt = now
	return u
}

func (u *User) String() string {
	return u.Email
}

// HashPassword returns a bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("user: hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored hash.
func (u *User) CheckPassword(password string) bool {
	if u.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}
