package task

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mbd888/tenantdesk/internal/logging"
	"github.com/mbd888/tenantdesk/internal/metrics"
	"github.com/mbd888/tenantdesk/internal/pagination"
	"github.com/mbd888/tenantdesk/internal/partition"
	"github.com/mbd888/tenantdesk/internal/traces"
	"github.com/mbd888/tenantdesk/internal/user"
)

// Owners looks up the account a task is assigned to.
type Owners interface {
	Get(ctx context.Context, id int64) (*user.User, error)
}

// NewTask is the input for Create.
type NewTask struct {
	UserID      int64
	Title       string
	Description string
	Completed   bool
	PublishedAt *time.Time
}

// Service manages the task list of the partition bound to each call's context.
type Service struct {
	store  Store
	owners Owners
	now    func() time.Time
}

// NewService creates a task service. owners may be nil when the store
// enforces the owner reference itself.
func NewService(store Store, owners Owners) *Service {
	return &Service{store: store, owners: owners, now: time.Now}
}

// Create validates and stores a task in a tenant partition.
func (s *Service) Create(ctx context.Context, nt NewTask) (*Task, error) {
	ctx, span := traces.StartSpan(ctx, "task.Create", traces.UserID(nt.UserID))
	defer span.End()

	if err := requireTenant(ctx); err != nil {
		return nil, err
	}

	t := &Task{
		UserID:      nt.UserID,
		Title:       strings.TrimSpace(nt.Title),
		Description: strings.TrimSpace(nt.Description),
		Completed:   nt.Completed,
		PublishedAt: nt.PublishedAt,
	}
	if err := t.Validate(s.now()); err != nil {
		return nil, err
	}

	if s.owners != nil {
		if _, err := s.owners.Get(ctx, t.UserID); err != nil {
			if errors.Is(err, user.ErrUserNotFound) {
				return nil, ErrOwnerNotFound
			}
			return nil, err
		}
	}

	if err := s.store.Create(ctx, t); err != nil {
		return nil, err
	}
	metrics.TasksCreatedTotal.Inc()
	logging.L(ctx).Info("task created", "task_id", t.ID, "user_id", t.UserID)
	return t, nil
}

// Get returns the task with id.
func (s *Service) Get(ctx context.Context, id int64) (*Task, error) {
	return s.store.Get(ctx, id)
}

// List returns one page of tasks, newest first, and the cursor of the next
// page ("" when there is none).
func (s *Service) List(ctx context.Context, opts ListOptions) ([]*Task, string, error) {
	tasks, err := s.store.List(ctx, opts)
	if err != nil {
		return nil, "", err
	}
	page, next, _ := pagination.ComputePage(tasks, opts.Limit, func(t *Task) (time.Time, int64) {
		return t.CreatedAt, t.ID
	})
	return page, next, nil
}

// Complete marks the task done and persists it.
func (s *Service) Complete(ctx context.Context, id int64) (*Task, error) {
	return s.setCompleted(ctx, id, true)
}

// Reopen marks the task open again and persists it.
func (s *Service) Reopen(ctx context.Context, id int64) (*Task, error) {
	return s.setCompleted(ctx, id, false)
}

func (s *Service) setCompleted(ctx context.Context, id int64, done bool) (*Task, error) {
	ctx, span := traces.StartSpan(ctx, "task.SetCompleted", traces.TaskID(id))
	defer span.End()

	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if done {
		t.MarkComplete(s.now())
	} else {
		t.MarkIncomplete(s.now())
	}
	if err := s.store.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// DeleteByUser removes every task owned by userID.
func (s *Service) DeleteByUser(ctx context.Context, userID int64) (int, error) {
	n, err := s.store.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logging.L(ctx).Info("tasks removed with owner", "user_id", userID, "count", n)
	}
	return n, nil
}

// SeedPlaceholders stores the starter tasks for ownerID when the partition
// has none yet. It returns how many were created.
func (s *Service) SeedPlaceholders(ctx context.Context, ownerID int64) (int, error) {
	exists, err := s.store.Exists(ctx)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, nil
	}

	now := s.now()
	created := 0
	for _, p := range Placeholders(now) {
		p.UserID = ownerID
		if _, err := s.Create(ctx, p); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

// Placeholders returns the starter tasks given to a freshly provisioned
// tenant.
func Placeholders(now time.Time) []NewTask {
	published := now
	return []NewTask{
		{Title: "Setup project", Description: "Initialize tenant project structure", Completed: true, PublishedAt: &published},
		{Title: "Create APIs", Description: "Build CRUD APIs for tasks"},
		{Title: "Deploy app", Description: "Deploy tenant application to server"},
	}
}

func requireTenant(ctx context.Context) error {
	p, ok := partition.From(ctx)
	if !ok {
		return partition.ErrUnbound
	}
	if p.Public {
		return partition.ErrPublicTarget
	}
	return nil
}

var _ user.Dependents = (*Service)(nil)
