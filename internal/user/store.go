package user

import (
	"context"
	"time"
)

// Store persists users in the partition bound to ctx.
type Store interface {
	Create(ctx context.Context, u *User) error
	Get(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	// SetActive writes only is_active and updated_at.
	SetActive(ctx context.Context, id int64, active bool) (time.Time, error)
	// SetKind writes only kind, role and updated_at.
	SetKind(ctx context.Context, id int64, kind Kind, role *Role) (time.Time, error)
	Delete(ctx context.Context, id int64) error
}

// Dependents removes rows owned by a user before the user itself is deleted.
type Dependents interface {
	DeleteByUser(ctx context.Context, userID int64) (int, error)
}
