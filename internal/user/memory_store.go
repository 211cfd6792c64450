package user

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mbd888/tenantdesk/internal/partition"
)

type memoryPartition struct {
	nextID int64
	users  map[int64]*User
	emails map[string]int64
}

// MemoryStore is an in-memory user store keeping one table per partition.
type MemoryStore struct {
	mu         sync.RWMutex
	partitions map[string]*memoryPartition
}

// NewMemoryStore creates a new in-memory user store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{partitions: make(map[string]*memoryPartition)}
}

// table returns the partition bound to ctx, creating it when create is set.
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
		p = &memoryPartition{users: make(map[int64]*User), emails: make(map[string]int64)}
		m.partitions[schema] = p
	}
	return p, nil
}

func (m *MemoryStore) Create(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.table(ctx, true)
	if err != nil {
		return err
	}
	if _, exists := p.emails[u.Email]; exists {
		return ErrEmailTaken
	}

	p.nextID++
	now := time.Now()
	u.ID = p.nextID
	if u.DateJoined.IsZero() {
		u.DateJoined = now
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	p.users[u.ID] = clone(u)
	p.emails[u.Email] = u.ID
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id int64) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, err := m.table(ctx, false)
	if err != nil {
		return nil, err
	}
	u, ok := p.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return clone(u), nil
}

func (m *MemoryStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, err := m.table(ctx, false)
	if err != nil {
		return nil, err
	}
	id, ok := p.emails[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	return clone(p.users[id]), nil
}

// List returns users newest first.
func (m *MemoryStore) List(ctx context.Context) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, err := m.table(ctx, false)
	if err != nil {
		return nil, err
	}
	out := make([]*User, 0, len(p.users))
	for _, u := range p.users {
		out = append(out, clone(u))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) SetActive(ctx context.Context, id int64, active bool) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.table(ctx, false)
	if err != nil {
		return time.Time{}, err
	}
	u, ok := p.users[id]
	if !ok {
		return time.Time{}, ErrUserNotFound
	}
	u.IsActive = active
	u.UpdatedAt = time.Now()
	return u.UpdatedAt, nil
}

func (m *MemoryStore) SetKind(ctx context.Context, id int64, kind Kind, role *Role) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.table(ctx, false)
	if err != nil {
		return time.Time{}, err
	}
	u, ok := p.users[id]
	if !ok {
		return time.Time{}, ErrUserNotFound
	}
	u.Kind = kind
	u.Role = nil
	if role != nil {
		r := *role
		u.Role = &r
	}
	u.UpdatedAt = time.Now()
	return u.UpdatedAt, nil
}

func (m *MemoryStore) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.table(ctx, false)
	if err != nil {
		return err
	}
	u, ok := p.users[id]
	if !ok {
		return ErrUserNotFound
	}
	delete(p.emails, u.Email)
	delete(p.users, id)
	return nil
}

func clone(u *User) *User {
	cp := *u
	if u.Role != nil {
		r := *u.Role
		cp.Role = &r
	}
	if u.PhoneNumber != nil {
		ph := *u.PhoneNumber
		cp.PhoneNumber = &ph
	}
	return &cp
}

var _ Store = (*MemoryStore)(nil)
