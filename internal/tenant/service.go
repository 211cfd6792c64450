package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mbd888/tenantdesk/internal/billing"
	"github.com/mbd888/tenantdesk/internal/logging"
	"github.com/mbd888/tenantdesk/internal/metrics"
	"github.com/mbd888/tenantdesk/internal/partition"
	"github.com/mbd888/tenantdesk/internal/plan"
	"github.com/mbd888/tenantdesk/internal/traces"
)

// Service applies the tenant lifecycle on top of a Store.
type Service struct {
	store Store
	plans plan.Store
	gate  billing.Gate
	now   func() time.Time
}

// NewService creates a tenant service. A nil gate authorises every plan change.
func NewService(store Store, plans plan.Store, gate billing.Gate) *Service {
	if gate == nil {
		gate = billing.AllowAll{}
	}
	return &Service{store: store, plans: plans, gate: gate, now: time.Now}
}

// Create validates and stores a new tenant. The slug is normalised first.
func (s *Service) Create(ctx context.Context, t *Tenant) error {
	t.Slug = NormalizeSlug(t.Slug)
	if err := t.Validate(); err != nil {
		return err
	}
	if err := t.checkIdentifiers(); err != nil {
		return err
	}
	t.StripeCustomerID = strings.TrimSpace(t.StripeCustomerID)
	if err := validateCustomerID(t.StripeCustomerID); err != nil {
		return err
	}
	if err := s.store.Create(ctx, t); err != nil {
		return err
	}
	return s.hydrate(ctx, t)
}

// Get returns a tenant with its plan resolved.
func (s *Service) Get(ctx context.Context, id int64) (*Tenant, error) {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return t, s.hydrate(ctx, t)
}

// GetBySchema returns the tenant owning schema.
func (s *Service) GetBySchema(ctx context.Context, schema string) (*Tenant, error) {
	t, err := s.store.GetBySchema(ctx, schema)
	if err != nil {
		return nil, err
	}
	return t, s.hydrate(ctx, t)
}

// GetBySlug returns the tenant with slug.
func (s *Service) GetBySlug(ctx context.Context, slug string) (*Tenant, error) {
	t, err := s.store.GetBySlug(ctx, NormalizeSlug(slug))
	if err != nil {
		return nil, err
	}
	return t, s.hydrate(ctx, t)
}

// List returns every tenant, newest first.
func (s *Service) List(ctx context.Context) ([]*Tenant, error) {
	tenants, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range tenants {
		if err := s.hydrate(ctx, t); err != nil {
			return nil, err
		}
	}
	return tenants, nil
}

// Activate marks a tenant active and persists it.
func (s *Service) Activate(ctx context.Context, id int64) (*Tenant, error) {
	return s.transition(ctx, id, "active", func(t *Tenant, now time.Time) { t.Activate(now) })
}

// Deactivate marks a tenant inactive and persists it. Requests for its
// domains are refused from then on.
func (s *Service) Deactivate(ctx context.Context, id int64) (*Tenant, error) {
	return s.transition(ctx, id, "inactive", func(t *Tenant, now time.Time) { t.Deactivate(now) })
}

func (s *Service) transition(ctx context.Context, id int64, state string, apply func(*Tenant, time.Time)) (*Tenant, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	apply(t, s.now())
	if err := s.store.Update(ctx, t); err != nil {
		return nil, err
	}
	metrics.TenantStateChangesTotal.WithLabelValues(state).Inc()
	logging.L(ctx).Info("tenant state changed", "tenant_id", t.ID, "schema", t.SchemaName, "state", state)
	return t, nil
}

// AttachPlan moves a tenant to the plan with code after the billing gate
// authorises it. Returns plan.ErrPlanNotFound when no such plan exists.
func (s *Service) AttachPlan(ctx context.Context, id int64, code plan.Code) (*Tenant, error) {
	return s.attachPlan(ctx, id, code, true)
}

// AssignPlan moves a tenant to the plan with code without consulting the
// billing gate. Operator bootstrap only; the admin API goes through AttachPlan.
func (s *Service) AssignPlan(ctx context.Context, id int64, code plan.Code) (*Tenant, error) {
	return s.attachPlan(ctx, id, code, false)
}

func (s *Service) attachPlan(ctx context.Context, id int64, code plan.Code, gated bool) (*Tenant, error) {
	ctx, span := traces.StartSpan(ctx, "tenant.AttachPlan", traces.TenantID(id), traces.PlanCode(string(code)))
	defer span.End()

	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	p, err := s.plans.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if gated {
		if err := s.gate.Authorize(ctx, billing.Change{
			TenantID:   t.ID,
			CustomerID: t.StripeCustomerID,
			PlanCode:   string(p.Code),
		}); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	t.AttachPlan(p, s.now())
	if err := s.store.Update(ctx, t); err != nil {
		return nil, err
	}
	metrics.PlanChangesTotal.WithLabelValues(string(p.Code)).Inc()
	logging.L(ctx).Info("tenant plan changed", "tenant_id", t.ID, "plan", p.Code)
	return t, nil
}

// SetBillingCustomer links a tenant to its payment provider customer. An
// empty id unlinks it, after which only the free plan can be attached.
func (s *Service) SetBillingCustomer(ctx context.Context, id int64, customerID string) (*Tenant, error) {
	customerID = strings.TrimSpace(customerID)
	if err := validateCustomerID(customerID); err != nil {
		return nil, err
	}
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.StripeCustomerID == customerID {
		return t, nil
	}
	t.StripeCustomerID = customerID
	t.UpdatedAt = s.now()
	if err := s.store.Update(ctx, t); err != nil {
		return nil, err
	}
	logging.L(ctx).Info("tenant billing customer changed", "tenant_id", t.ID, "linked", customerID != "")
	return t, nil
}

// AttachFreePlan attaches the "free" plan, which must have been seeded.
func (s *Service) AttachFreePlan(ctx context.Context, id int64) (*Tenant, error) {
	return s.AttachPlan(ctx, id, plan.CodeFree)
}

// AddDomain registers host for a tenant. At most one domain per tenant may
// be primary.
func (s *Service) AddDomain(ctx context.Context, tenantID int64, host string, primary bool) (*Domain, error) {
	d := &Domain{Domain: partition.NormalizeHost(host), IsPrimary: primary, TenantID: tenantID}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.AddDomain(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Domains lists a tenant's domains.
func (s *Service) Domains(ctx context.Context, tenantID int64) ([]*Domain, error) {
	return s.store.ListDomains(ctx, tenantID)
}

// HasPrimaryDomain reports whether the tenant already has a primary domain.
func (s *Service) HasPrimaryDomain(ctx context.Context, tenantID int64) (bool, error) {
	domains, err := s.store.ListDomains(ctx, tenantID)
	if err != nil {
		return false, err
	}
	for _, d := range domains {
		if d.IsPrimary {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) hydrate(ctx context.Context, t *Tenant) error {
	if t.PlanID == nil {
		t.Plan = nil
		return nil
	}
	p, err := s.plans.Get(ctx, *t.PlanID)
	if errors.Is(err, plan.ErrPlanNotFound) {
		// Plan deleted underneath us; the reference reads as cleared.
		t.PlanID = nil
		t.Plan = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("tenant: load plan: %w", err)
	}
	t.Plan = p
	return nil
}
