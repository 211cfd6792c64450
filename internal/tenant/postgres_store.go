package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/mbd888/tenantdesk/internal/partition"
)

const tenantColumns = `id, schema_name, name, slug, is_active, plan_id, stripe_customer_id, created_at, updated_at`

// PostgresStore persists tenants and domains in the public schema.
type PostgresStore struct {
	db      *sql.DB
	tenants string
	domains string
}

// NewPostgresStore creates a PostgreSQL-backed tenant store over the given
// public schema.
func NewPostgresStore(db *sql.DB, publicSchema string) *PostgresStore {
	return &PostgresStore{
		db:      db,
		tenants: partition.QualifiedTable(publicSchema, "tenants"),
		domains: partition.QualifiedTable(publicSchema, "domains"),
	}
}

func (p *PostgresStore) Create(ctx context.Context, t *Tenant) error {
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO `+p.tenants+` (schema_name, name, slug, is_active, plan_id, stripe_customer_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING id, created_at, updated_at`,
		t.SchemaName, t.Name, t.Slug, t.IsActive, nullID(t.PlanID), nullString(t.StripeCustomerID),
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return mapConflict(err, "tenant: create")
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id int64) (*Tenant, error) {
	return scanTenant(p.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM `+p.tenants+` WHERE id = $1`, id))
}

func (p *PostgresStore) GetBySlug(ctx context.Context, slug string) (*Tenant, error) {
	return scanTenant(p.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM `+p.tenants+` WHERE slug = $1`, slug))
}

func (p *PostgresStore) GetBySchema(ctx context.Context, schema string) (*Tenant, error) {
	return scanTenant(p.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM `+p.tenants+` WHERE schema_name = $1`, schema))
}

func (p *PostgresStore) Update(ctx context.Context, t *Tenant) error {
	err := p.db.QueryRowContext(ctx, `
		UPDATE `+p.tenants+` SET name = $1, slug = $2, is_active = $3, plan_id = $4,
			stripe_customer_id = $5, updated_at = NOW()
		WHERE id = $6
		RETURNING schema_name, created_at, updated_at`,
		t.Name, t.Slug, t.IsActive, nullID(t.PlanID), nullString(t.StripeCustomerID), t.ID,
	).Scan(&t.SchemaName, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrTenantNotFound
	}
	if err != nil {
		return mapConflict(err, "tenant: update")
	}
	return nil
}

func (p *PostgresStore) List(ctx context.Context) ([]*Tenant, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+tenantColumns+` FROM `+p.tenants+` ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("tenant: list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *PostgresStore) AddDomain(ctx context.Context, d *Domain) error {
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO `+p.domains+` (domain, is_primary, tenant_id, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING id, created_at, updated_at`,
		d.Domain, d.IsPrimary, d.TenantID,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return ErrTenantNotFound
		}
		return mapConflict(err, "tenant: add domain")
	}
	return nil
}

func (p *PostgresStore) ResolveDomain(ctx context.Context, host string) (*Domain, error) {
	d := &Domain{}
	err := p.db.QueryRowContext(ctx, `
		SELECT id, domain, is_primary, tenant_id, created_at, updated_at
		FROM `+p.domains+` WHERE domain = $1`, host,
	).Scan(&d.ID, &d.Domain, &d.IsPrimary, &d.TenantID, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDomainNotFound
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (p *PostgresStore) ListDomains(ctx context.Context, tenantID int64) ([]*Domain, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, domain, is_primary, tenant_id, created_at, updated_at
		FROM `+p.domains+` WHERE tenant_id = $1 ORDER BY id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("tenant: list domains: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Domain
	for rows.Next() {
		d := &Domain{}
		if err := rows.Scan(&d.ID, &d.Domain, &d.IsPrimary, &d.TenantID, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// mapConflict turns unique violations into package sentinels by constraint name.
func mapConflict(err error, op string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		switch pqErr.Constraint {
		case "tenants_schema_name_key":
			return ErrSchemaTaken
		case "tenants_slug_key":
			return ErrSlugTaken
		case "domains_domain_key":
			return ErrDomainTaken
		case "domains_one_primary_per_tenant":
			return ErrPrimaryExists
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTenant(row scanner) (*Tenant, error) {
	t := &Tenant{}
	var (
		planID   sql.NullInt64
		stripeID sql.NullString
	)
	err := row.Scan(&t.ID, &t.SchemaName, &t.Name, &t.Slug, &t.IsActive, &planID, &stripeID,
		&t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, err
	}
	if planID.Valid {
		id := planID.Int64
		t.PlanID = &id
	}
	if stripeID.Valid {
		t.StripeCustomerID = stripeID.String
	}
	return t, nil
}

func nullID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ Store = (*PostgresStore)(nil)
