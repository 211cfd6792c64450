package tenant

import "context"

// Store persists tenants and their domains in the public partition.
type Store interface {
	Create(ctx context.Context, t *Tenant) error
	Get(ctx context.Context, id int64) (*Tenant, error)
	GetBySlug(ctx context.Context, slug string) (*Tenant, error)
	GetBySchema(ctx context.Context, schema string) (*Tenant, error)
	// Update never changes SchemaName.
	Update(ctx context.Context, t *Tenant) error
	List(ctx context.Context) ([]*Tenant, error)

	AddDomain(ctx context.Context, d *Domain) error
	ResolveDomain(ctx context.Context, host string) (*Domain, error)
	ListDomains(ctx context.Context, tenantID int64) ([]*Domain, error)
}
