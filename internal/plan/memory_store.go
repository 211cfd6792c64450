package plan

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory plan store for development and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	plans  map[int64]*Plan
	codes  map[Code]int64
}

// NewMemoryStore creates a new in-memory plan store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		plans: make(map[int64]*Plan),
		codes: make(map[Code]int64),
	}
}

func (m *MemoryStore) Create(_ context.Context, p *Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.codes[p.Code]; exists {
		return ErrCodeTaken
	}

	m.nextID++
	now := time.Now()
	p.ID = m.nextID
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	cp := *p
	m.plans[p.ID] = &cp
	m.codes[p.Code] = p.ID
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id int64) (*Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.plans[id]
	if !ok {
		return nil, ErrPlanNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) GetByCode(_ context.Context, code Code) (*Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.codes[code]
	if !ok {
		return nil, ErrPlanNotFound
	}
	cp := *m.plans[id]
	return &cp, nil
}

func (m *MemoryStore) List(_ context.Context, f ListFilter) ([]*Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Plan, 0, len(m.plans))
	for _, p := range m.plans {
		if f.IsActive != nil && p.IsActive != *f.IsActive {
			continue
		}
		if f.BulkSMS != nil && p.BulkSMS != *f.BulkSMS {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}

	var less func(a, b *Plan) bool
	switch f.Ordering {
	case OrderPriceDesc:
		less = func(a, b *Plan) bool { return a.PriceNPR > b.PriceNPR }
	case OrderCreatedAsc:
		less = func(a, b *Plan) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case OrderCreatedDesc:
		less = func(a, b *Plan) bool { return a.CreatedAt.After(b.CreatedAt) }
	default:
		less = func(a, b *Plan) bool { return a.PriceNPR < b.PriceNPR }
	}
	sort.SliceStable(out, func(i, j int) bool {
		if less(out[i], out[j]) {
			return true
		}
		if less(out[j], out[i]) {
			return false
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) Update(_ context.Context, p *Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.plans[p.ID]
	if !ok {
		return ErrPlanNotFound
	}
	if p.Code != existing.Code {
		if _, taken := m.codes[p.Code]; taken {
			return ErrCodeTaken
		}
		delete(m.codes, existing.Code)
		m.codes[p.Code] = p.ID
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now()
	cp := *p
	m.plans[p.ID] = &cp
	return nil
}

var _ Store = (*MemoryStore)(nil)
