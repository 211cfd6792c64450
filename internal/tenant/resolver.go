package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/mbd888/tenantdesk/internal/partition"
)

// Resolver maps request hosts to partitions through the domain table.
type Resolver struct {
	store        Store
	publicSchema string
	baseDomain   string
}

// NewResolver creates a resolver. The bare base domain resolves to the
// public partition even before any domain row exists for it.
func NewResolver(store Store, publicSchema, baseDomain string) *Resolver {
	return &Resolver{
		store:        store,
		publicSchema: publicSchema,
		baseDomain:   partition.NormalizeHost(baseDomain),
	}
}

// Resolve implements partition.Resolver.
func (r *Resolver) Resolve(ctx context.Context, host string) (partition.Partition, error) {
	d, err := r.store.ResolveDomain(ctx, host)
	if errors.Is(err, ErrDomainNotFound) {
		if host == r.baseDomain {
			return partition.PublicPartition(r.publicSchema), nil
		}
		return partition.Partition{}, partition.ErrUnknownHost
	}
	if err != nil {
		return partition.Partition{}, err
	}

	t, err := r.store.Get(ctx, d.TenantID)
	if err != nil {
		return partition.Partition{}, err
	}
	if t.SchemaName == r.publicSchema {
		p := partition.PublicPartition(r.publicSchema)
		p.TenantID = t.ID
		return p, nil
	}
	if !t.IsActive {
		return partition.Partition{}, partition.ErrInactive
	}
	return partition.Partition{Schema: t.SchemaName, TenantID: t.ID}, nil
}

// ForTenant returns the partition of the tenant with id, whether or not the
// tenant is active. Used by the admin API to operate inside a workspace.
func (r *Resolver) ForTenant(ctx context.Context, id int64) (partition.Partition, error) {
	t, err := r.store.Get(ctx, id)
	if errors.Is(err, ErrTenantNotFound) {
		return partition.Partition{}, fmt.Errorf("%w: %w", partition.ErrNoTenant, err)
	}
	if err != nil {
		return partition.Partition{}, err
	}
	if t.SchemaName == r.publicSchema {
		p := partition.PublicPartition(r.publicSchema)
		p.TenantID = t.ID
		return p, nil
	}
	return partition.Partition{Schema: t.SchemaName, TenantID: t.ID}, nil
}

var _ partition.Resolver = (*Resolver)(nil)
