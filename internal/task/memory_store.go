package task

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mbd888/tenantdesk/internal/partition"
)

type memoryPartition struct {
	nextID       int64
	tasks        map[int64]*Task
	descriptions map[string]int64
}

// MemoryStore is an in-memory task store keeping one table per partition.
type MemoryStore struct {
	mu         sync.RWMutex
	partitions map[string]*memoryPartition
}

// NewMemoryStore creates a new in-memory task store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{partitions: make(map[string]*memoryPartition)}
}

// Callers hold m.mu.
func (m *MemoryStore) table(ctx context.Context, create bool) (*memoryPartition, error) {
	schema, err := partition.Schema(ctx)
	if err != nil {
		return nil, err
	}
	p, ok := m.partitions[schema]
	if !ok {
		if !create {
			return &memoryPartition{}, nil
		}
		p = &memoryPartition{tasks: make(map[int64]*Task), descriptions: make(map[string]int64)}
		m.partitions[schema] = p
	}
	return p, nil
}

func (m *MemoryStore) Create(ctx context.Context, t *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.table(ctx, true)
	if err != nil {
		return err
	}
	if _, exists := p.descriptions[t.Description]; exists {
		return ErrDescriptionTaken
	}

	p.nextID++
	now := time.Now()
	t.ID = p.nextID
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	p.tasks[t.ID] = clone(t)
	p.descriptions[t.Description] = t.ID
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id int64) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, err := m.table(ctx, false)
	if err != nil {
		return nil, err
	}
	t, ok := p.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return clone(t), nil
}

func (m *MemoryStore) List(ctx context.Context, opts ListOptions) ([]*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, err := m.table(ctx, false)
	if err != nil {
		return nil, err
	}
	out := make([]*Task, 0, len(p.tasks))
	for _, t := range p.tasks {
		if opts.After != nil && !opts.After.Before(t.CreatedAt, t.ID) {
			continue
		}
		out = append(out, clone(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if opts.Limit > 0 && len(out) > opts.Limit+1 {
		out = out[:opts.Limit+1]
	}
	return out, nil
}

func (m *MemoryStore) Update(ctx context.Context, t *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.table(ctx, false)
	if err != nil {
		return err
	}
	existing, ok := p.tasks[t.ID]
	if !ok {
		return ErrTaskNotFound
	}
	if t.Description != existing.Description {
		if _, taken := p.descriptions[t.Description]; taken {
			return ErrDescriptionTaken
		}
		delete(p.descriptions, existing.Description)
		p.descriptions[t.Description] = t.ID
	}
	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = time.Now()
	p.tasks[t.ID] = clone(t)
	return nil
}

func (m *MemoryStore) Exists(ctx context.Context) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, err := m.table(ctx, false)
	if err != nil {
		return false, err
	}
	return len(p.tasks) > 0, nil
}

func (m *MemoryStore) DeleteByUser(ctx context.Context, userID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.table(ctx, false)
	if err != nil {
		return 0, err
	}
	n := 0
	for id, t := range p.tasks {
		if t.UserID != userID {
			continue
		}
		delete(p.descriptions, t.Description)
		delete(p.tasks, id)
		n++
	}
	return n, nil
}

func clone(t *Task) *Task {
	cp := *t
	if t.PublishedAt != nil {
		ts := *t.PublishedAt
		cp.PublishedAt = &ts
	}
	return &cp
}

var _ Store = (*MemoryStore)(nil)
