package task

import (
	"context"

	"github.com/mbd888/tenantdesk/internal/pagination"
)

// ListOptions bounds a List call. A zero Limit returns every task.
type ListOptions struct {
	Limit int
	After *pagination.Cursor
}

// Store persists tasks in the partition bound to ctx.
type Store interface {
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, id int64) (*Task, error)
	// List returns tasks newest first. With a Limit it fetches Limit+1 rows
	// so callers can detect a further page.
	List(ctx context.Context, opts ListOptions) ([]*Task, error)
	Update(ctx context.Context, t *Task) error
	// Exists reports whether the partition holds any task.
	Exists(ctx context.Context) (bool, error)
	DeleteByUser(ctx context.Context, userID int64) (int, error)
}
