package tenant

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory tenant store for demo/development.
type MemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	tenants map[int64]*Tenant // by ID
	slugs   map[string]int64  // slug → ID
	schemas map[string]int64  // schema_name → ID

	nextDomainID int64
	domains      map[string]*Domain // host → domain
}

// NewMemoryStore creates a new in-memory tenant store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants: make(map[int64]*Tenant),
		slugs:   make(map[string]int64),
		schemas: make(map[string]int64),
		domains: make(map[string]*Domain),
	}
}

func (m *MemoryStore) Create(_ context.Context, t *Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.schemas[t.SchemaName]; exists {
		return ErrSchemaTaken
	}
	if _, exists := m.slugs[t.Slug]; exists {
		return ErrSlugTaken
	}

	m.nextID++
	now := time.Now()
	t.ID = m.nextID
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	m.tenants[t.ID] = stored(t)
	m.slugs[t.Slug] = t.ID
	m.schemas[t.SchemaName] = t.ID
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id int64) (*Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tenants[id]
	if !ok {
		return nil, ErrTenantNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) GetBySlug(_ context.Context, slug string) (*Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.slugs[slug]
	if !ok {
		return nil, ErrTenantNotFound
	}
	cp := *m.tenants[id]
	return &cp, nil
}

func (m *MemoryStore) GetBySchema(_ context.Context, schema string) (*Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.schemas[schema]
	if !ok {
		return nil, ErrTenantNotFound
	}
	cp := *m.tenants[id]
	return &cp, nil
}

func (m *MemoryStore) Update(_ context.Context, t *Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.tenants[t.ID]
	if !ok {
		return ErrTenantNotFound
	}
	if t.Slug != existing.Slug {
		if _, taken := m.slugs[t.Slug]; taken {
			return ErrSlugTaken
		}
		delete(m.slugs, existing.Slug)
		m.slugs[t.Slug] = t.ID
	}

	t.SchemaName = existing.SchemaName
	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = time.Now()
	m.tenants[t.ID] = stored(t)
	return nil
}

// List returns tenants newest first.
func (m *MemoryStore) List(_ context.Context) ([]*Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) AddDomain(_ context.Context, d *Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tenants[d.TenantID]; !ok {
		return ErrTenantNotFound
	}
	if _, exists := m.domains[d.Domain]; exists {
		return ErrDomainTaken
	}
	if d.IsPrimary {
		for _, other := range m.domains {
			if other.TenantID == d.TenantID && other.IsPrimary {
				return ErrPrimaryExists
			}
		}
	}

	m.nextDomainID++
	now := time.Now()
	d.ID = m.nextDomainID
	d.CreatedAt = now
	d.UpdatedAt = now
	cp := *d
	m.domains[d.Domain] = &cp
	return nil
}

func (m *MemoryStore) ResolveDomain(_ context.Context, host string) (*Domain, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.domains[host]
	if !ok {
		return nil, ErrDomainNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) ListDomains(_ context.Context, tenantID int64) ([]*Domain, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Domain
	for _, d := range m.domains {
		if d.TenantID == tenantID {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// stored copies t without the hydrated plan; only the reference is persisted.
func stored(t *Tenant) *Tenant {
	cp := *t
	cp.Plan = nil
	if t.PlanID != nil {
		id := *t.PlanID
		cp.PlanID = &id
	}
	return &cp
}

var _ Store = (*MemoryStore)(nil)
