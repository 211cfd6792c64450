// Package provision bootstraps tenants from a declarative document: the
// tenant row, its partition, plan, domain, owner account and starter tasks.
package provision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mbd888/tenantdesk/internal/logging"
	"github.com/mbd888/tenantdesk/internal/metrics"
	"github.com/mbd888/tenantdesk/internal/migrations"
	"github.com/mbd888/tenantdesk/internal/partition"
	"github.com/mbd888/tenantdesk/internal/plan"
	"github.com/mbd888/tenantdesk/internal/task"
	"github.com/mbd888/tenantdesk/internal/tenant"
	"github.com/mbd888/tenantdesk/internal/traces"
	"github.com/mbd888/tenantdesk/internal/user"
)

// ErrEmptyDocument is returned by Load for a document with no tenants.
var ErrEmptyDocument = errors.New("provision: no tenants in document")

// OwnerSpec describes the first account of a tenant.
type OwnerSpec struct {
	Email       string  `json:"email" binding:"required"`
	Username    string  `json:"username"`
	Password    string  `json:"password"`
	Role        *string `json:"role,omitempty"`
	PhoneNumber *string `json:"phone_number,omitempty"`
	FirstName   string  `json:"first_name,omitempty"`
	LastName    string  `json:"last_name,omitempty"`
}

// TenantSpec is one entry of a tenants document.
type TenantSpec struct {
	SchemaName string    `json:"schema_name" binding:"required"`
	Name       string    `json:"name" binding:"required"`
	Slug       string    `json:"slug" binding:"required"`
	IsActive   *bool     `json:"is_active,omitempty"`
	Plan       string    `json:"plan,omitempty"`
	Subdomain  string    `json:"subdomain,omitempty"`
	Owner      OwnerSpec `json:"owner"`

	// StripeCustomerID links the tenant to its billing customer so later
	// plan changes through the admin API can be authorised.
	StripeCustomerID string `json:"stripe_customer_id,omitempty"`
}

// Options tunes a provisioning run.
type Options struct {
	SeedTasks bool
}

// Result reports what provisioning one tenant did.
type Result struct {
	Tenant        *tenant.Tenant `json:"tenant"`
	Domain        *tenant.Domain `json:"domain"`
	Owner         *user.User     `json:"owner"`
	TenantCreated bool           `json:"tenant_created"`
	DomainCreated bool           `json:"domain_created"`
	OwnerCreated  bool           `json:"owner_created"`
	TasksSeeded   int            `json:"tasks_seeded"`
}

// Load decodes a tenants document.
func Load(r io.Reader) ([]TenantSpec, error) {
	var specs []TenantSpec
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&specs); err != nil {
		return nil, fmt.Errorf("provision: decode: %w", err)
	}
	if len(specs) == 0 {
		return nil, ErrEmptyDocument
	}
	return specs, nil
}

// LoadFile decodes the tenants document at path.
func LoadFile(path string) ([]TenantSpec, error) {
	f, err := os.Open(path) // #nosec G304 -- operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("provision: open: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Load(f)
}

// Provisioner applies tenant specs. Every step is get-or-create, so running
// the same document twice changes nothing.
type Provisioner struct {
	tenants      *tenant.Service
	users        *user.Service
	tasks        *task.Service
	schemas      migrations.SchemaCreator
	publicSchema string
	baseDomain   string
}

// New creates a provisioner.
func New(tenants *tenant.Service, users *user.Service, tasks *task.Service, schemas migrations.SchemaCreator, publicSchema, baseDomain string) *Provisioner {
	return &Provisioner{
		tenants:      tenants,
		users:        users,
		tasks:        tasks,
		schemas:      schemas,
		publicSchema: publicSchema,
		baseDomain:   partition.NormalizeHost(baseDomain),
	}
}

// Run provisions every spec in order and stops at the first failure.
func (p *Provisioner) Run(ctx context.Context, specs []TenantSpec, opts Options) ([]*Result, error) {
	results := make([]*Result, 0, len(specs))
	for _, spec := range specs {
		res, err := p.Provision(ctx, spec, opts)
		if err != nil {
			return results, fmt.Errorf("provision %s: %w", spec.SchemaName, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// Provision applies a single spec.
func (p *Provisioner) Provision(ctx context.Context, spec TenantSpec, opts Options) (*Result, error) {
	ctx, span := traces.StartSpan(ctx, "provision.Tenant", traces.Schema(spec.SchemaName))
	defer span.End()

	res := &Result{}
	t, created, err := p.ensureTenant(ctx, spec)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	res.Tenant, res.TenantCreated = t, created

	public := t.SchemaName == p.publicSchema
	if !public {
		if err := p.schemas.CreateSchema(ctx, t.SchemaName); err != nil {
			return nil, err
		}
	}

	if t, err = p.ensurePlan(ctx, t, spec.Plan); err != nil {
		return nil, err
	}
	res.Tenant = t

	if res.Domain, res.DomainCreated, err = p.ensureDomain(ctx, t, spec.Subdomain, public); err != nil {
		return nil, err
	}

	bound := partition.Partition{Schema: t.SchemaName, TenantID: t.ID, Public: public}
	pctx := partition.With(ctx, bound)
	if res.Owner, res.OwnerCreated, err = p.ensureOwner(pctx, spec.Owner, public); err != nil {
		return nil, err
	}

	if opts.SeedTasks && !public {
		if res.TasksSeeded, err = p.tasks.SeedPlaceholders(pctx, res.Owner.ID); err != nil {
			return nil, err
		}
	}

	if res.TenantCreated {
		metrics.TenantsProvisionedTotal.Inc()
	}
	logging.L(ctx).Info("tenant provisioned",
		"schema", t.SchemaName,
		"tenant_created", res.TenantCreated,
		"domain", res.Domain.Domain,
		"owner_created", res.OwnerCreated,
		"tasks_seeded", res.TasksSeeded,
	)
	return res, nil
}

func (p *Provisioner) ensureTenant(ctx context.Context, spec TenantSpec) (*tenant.Tenant, bool, error) {
	t, err := p.tenants.GetBySchema(ctx, spec.SchemaName)
	if err == nil {
		if spec.StripeCustomerID != "" && spec.StripeCustomerID != t.StripeCustomerID {
			t, err = p.tenants.SetBillingCustomer(ctx, t.ID, spec.StripeCustomerID)
		}
		return t, false, err
	}
	if !errors.Is(err, tenant.ErrTenantNotFound) {
		return nil, false, err
	}

	active := true
	if spec.IsActive != nil {
		active = *spec.IsActive
	}
	t = &tenant.Tenant{
		SchemaName:       spec.SchemaName,
		Name:             spec.Name,
		Slug:             spec.Slug,
		IsActive:         active,
		StripeCustomerID: spec.StripeCustomerID,
	}
	if err := p.tenants.Create(ctx, t); err != nil {
		return nil, false, err
	}
	return t, true, nil
}

func (p *Provisioner) ensurePlan(ctx context.Context, t *tenant.Tenant, raw string) (*tenant.Tenant, error) {
	code := plan.CodeFree
	if raw != "" {
		parsed, err := plan.ParseCode(raw)
		if err != nil {
			return nil, err
		}
		code = parsed
	}
	if t.Plan != nil && t.Plan.Code == code {
		return t, nil
	}
	// Provisioning is an operator bootstrap and assigns the plan directly.
	return p.tenants.AssignPlan(ctx, t.ID, code)
}

// Host returns the domain a tenant is served on.
func (p *Provisioner) Host(subdomain string) string {
	subdomain = partition.NormalizeHost(subdomain)
	if subdomain == "" {
		return p.baseDomain
	}
	return subdomain + "." + p.baseDomain
}

func (p *Provisioner) ensureDomain(ctx context.Context, t *tenant.Tenant, subdomain string, public bool) (*tenant.Domain, bool, error) {
	host := p.Host(subdomain)
	domains, err := p.tenants.Domains(ctx, t.ID)
	if err != nil {
		return nil, false, err
	}
	hasPrimary := false
	for _, d := range domains {
		if d.Domain == host {
			return d, false, nil
		}
		hasPrimary = hasPrimary || d.IsPrimary
	}

	d, err := p.tenants.AddDomain(ctx, t.ID, host, public || !hasPrimary)
	if err != nil {
		return nil, false, err
	}
	return d, true, nil
}

func (p *Provisioner) ensureOwner(ctx context.Context, o OwnerSpec, public bool) (*user.User, bool, error) {
	nu := user.NewUser{
		Email:       o.Email,
		Username:    o.Username,
		Password:    o.Password,
		FirstName:   o.FirstName,
		LastName:    o.LastName,
		PhoneNumber: o.PhoneNumber,
	}
	if nu.Username == "" {
		nu.Username, _, _ = strings.Cut(strings.TrimSpace(o.Email), "@")
	}
	if o.Role != nil && *o.Role != "" {
		if public {
			logging.L(ctx).Warn("owner role ignored in the public partition", "email", o.Email, "role", *o.Role)
		} else {
			role, err := user.ParseRole(*o.Role)
			if err != nil {
				return nil, false, err
			}
			nu.Role = &role
		}
	}
	return p.users.Register(ctx, nu)
}
