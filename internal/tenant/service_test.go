package tenant

import (
	"context"
	"testing"

	"github.com/mbd888/tenantdesk/internal/billing"
	"github.com/mbd888/tenantdesk/internal/partition"
	"github.com/mbd888/tenantdesk/internal/plan"
	"github.com/mbd888/tenantdesk/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type denyGate struct{ err error }

func (g denyGate) Authorize(context.Context, billing.Change) error { return g.err }

// subscriptions maps a customer to the plan codes it pays for.
type subscriptions map[string][]string

func (s subscriptions) ActiveLookupKeys(_ context.Context, customerID string) ([]string, error) {
	return s[customerID], nil
}

func setupService(t *testing.T, gate billing.Gate) (*Service, *MemoryStore, *plan.MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	plans := plan.NewMemoryStore()
	return NewService(store, plans, gate), store, plans
}

func TestAttachFreePlan_Scenario(t *testing.T) {
	ctx := context.Background()
	svc, _, plans := setupService(t, nil)

	require.NoError(t, plans.Create(ctx, &plan.Plan{
		Code: plan.CodeFree, PriceNPR: 0, IsActive: true, MaxUsers: 5, StorageGBPerUser: 1,
	}))

	acme := &Tenant{SchemaName: "acme", Name: "Acme Inc", Slug: "acme", IsActive: true}
	require.NoError(t, svc.Create(ctx, acme))
	assert.False(t, acme.HasSubscription())

	got, err := svc.AttachFreePlan(ctx, acme.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Plan)
	assert.Equal(t, plan.CodeFree, got.Plan.Code)
	assert.True(t, got.HasSubscription())

	reloaded, err := svc.Get(ctx, acme.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.Plan)
	assert.Equal(t, plan.CodeFree, reloaded.Plan.Code)
}

func TestAttachFreePlan_NotSeeded(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupService(t, nil)

	acme := &Tenant{SchemaName: "acme", Name: "Acme Inc", Slug: "acme", IsActive: true}
	require.NoError(t, svc.Create(ctx, acme))

	_, err := svc.AttachFreePlan(ctx, acme.ID)
	assert.ErrorIs(t, err, plan.ErrPlanNotFound)
}

func TestAttachPlan_GateRefuses(t *testing.T) {
	ctx := context.Background()
	svc, _, plans := setupService(t, denyGate{err: billing.ErrPaymentRequired})
	_, err := plan.SeedDefaults(ctx, plans)
	require.NoError(t, err)

	acme := &Tenant{SchemaName: "acme", Name: "Acme Inc", Slug: "acme", IsActive: true}
	require.NoError(t, svc.Create(ctx, acme))

	_, err = svc.AttachPlan(ctx, acme.ID, plan.CodeBusiness)
	assert.ErrorIs(t, err, billing.ErrPaymentRequired)

	reloaded, err := svc.Get(ctx, acme.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.HasSubscription(), "refused change must not persist")
}

func TestAttachPlan_SubscriptionGateAllowsFree(t *testing.T) {
	ctx := context.Background()
	gate := billing.NewSubscriptionGate(nil)
	svc, _, plans := setupService(t, gate)
	_, err := plan.SeedDefaults(ctx, plans)
	require.NoError(t, err)

	acme := &Tenant{SchemaName: "acme", Name: "Acme Inc", Slug: "acme", IsActive: true}
	require.NoError(t, svc.Create(ctx, acme))

	_, err = svc.AttachFreePlan(ctx, acme.ID)
	assert.NoError(t, err)

	_, err = svc.AttachPlan(ctx, acme.ID, plan.CodeStandard)
	assert.ErrorIs(t, err, billing.ErrNoCustomer)
}

func TestSetBillingCustomer_UnlocksPaidPlan(t *testing.T) {
	ctx := context.Background()
	gate := billing.NewSubscriptionGate(subscriptions{"cus_acme": {"business"}})
	svc, _, plans := setupService(t, gate)
	_, err := plan.SeedDefaults(ctx, plans)
	require.NoError(t, err)

	acme := &Tenant{SchemaName: "acme", Name: "Acme Inc", Slug: "acme", IsActive: true}
	require.NoError(t, svc.Create(ctx, acme))

	_, err = svc.AttachPlan(ctx, acme.ID, plan.CodeBusiness)
	require.ErrorIs(t, err, billing.ErrNoCustomer)

	linked, err := svc.SetBillingCustomer(ctx, acme.ID, " cus_acme ")
	require.NoError(t, err)
	assert.Equal(t, "cus_acme", linked.StripeCustomerID)

	got, err := svc.AttachPlan(ctx, acme.ID, plan.CodeBusiness)
	require.NoError(t, err)
	assert.Equal(t, plan.CodeBusiness, got.Plan.Code)
	assert.Equal(t, "cus_acme", got.StripeCustomerID, "plan change keeps the customer")

	_, err = svc.AttachPlan(ctx, acme.ID, plan.CodeEnterprise)
	assert.ErrorIs(t, err, billing.ErrPaymentRequired)

	reloaded, err := svc.Get(ctx, acme.ID)
	require.NoError(t, err)
	assert.Equal(t, "cus_acme", reloaded.StripeCustomerID)
	assert.Equal(t, plan.CodeBusiness, reloaded.Plan.Code)
}

func TestSetBillingCustomer_Validation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupService(t, nil)

	acme := &Tenant{SchemaName: "acme", Name: "Acme Inc", Slug: "acme", IsActive: true, StripeCustomerID: "cus_1"}
	require.NoError(t, svc.Create(ctx, acme))

	_, err := svc.SetBillingCustomer(ctx, acme.ID, "acme-billing")
	errs, ok := validation.As(err)
	require.True(t, ok)
	assert.Equal(t, "Stripe customer ID must start with cus_", errs.Message("stripe_customer_id"))

	_, err = svc.SetBillingCustomer(ctx, 99, "cus_2")
	assert.ErrorIs(t, err, ErrTenantNotFound)

	cleared, err := svc.SetBillingCustomer(ctx, acme.ID, "")
	require.NoError(t, err)
	assert.Empty(t, cleared.StripeCustomerID)

	bad := &Tenant{SchemaName: "globex", Name: "Globex", Slug: "globex", StripeCustomerID: "globex"}
	_, ok = validation.As(svc.Create(ctx, bad))
	assert.True(t, ok)
}

func TestAssignPlan_SkipsGate(t *testing.T) {
	ctx := context.Background()
	svc, _, plans := setupService(t, denyGate{err: billing.ErrPaymentRequired})
	_, err := plan.SeedDefaults(ctx, plans)
	require.NoError(t, err)

	acme := &Tenant{SchemaName: "acme", Name: "Acme Inc", Slug: "acme", IsActive: true}
	require.NoError(t, svc.Create(ctx, acme))

	got, err := svc.AssignPlan(ctx, acme.ID, plan.CodeEnterprise)
	require.NoError(t, err)
	assert.Equal(t, plan.CodeEnterprise, got.Plan.Code)

	_, err = svc.AssignPlan(ctx, acme.ID, "platinum")
	assert.ErrorIs(t, err, plan.ErrPlanNotFound)
}

func TestCreate_NormalisesAndValidates(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupService(t, nil)

	tn := &Tenant{SchemaName: "acme", Name: "Acme", Slug: "  ACME  ", IsActive: true}
	require.NoError(t, svc.Create(ctx, tn))
	assert.Equal(t, "acme", tn.Slug)

	got, err := svc.GetBySlug(ctx, "Acme")
	require.NoError(t, err)
	assert.Equal(t, tn.ID, got.ID)

	err = svc.Create(ctx, &Tenant{SchemaName: "bad", Name: "Ba", Slug: "bad"})
	errs, ok := validation.As(err)
	require.True(t, ok)
	assert.True(t, errs.Has("name"))

	err = svc.Create(ctx, &Tenant{SchemaName: "pg_bad", Name: "Bad schema", Slug: "bad"})
	errs, ok = validation.As(err)
	require.True(t, ok)
	assert.True(t, errs.Has("schema_name"))
}

func TestActivateDeactivate_Persisted(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupService(t, nil)
	tn := &Tenant{SchemaName: "acme", Name: "Acme", Slug: "acme", IsActive: true}
	require.NoError(t, svc.Create(ctx, tn))

	_, err := svc.Deactivate(ctx, tn.ID)
	require.NoError(t, err)
	got, err := svc.GetBySchema(ctx, "acme")
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	_, err = svc.Activate(ctx, tn.ID)
	require.NoError(t, err)
	again, err := svc.Activate(ctx, tn.ID)
	require.NoError(t, err)
	assert.True(t, again.IsActive)

	_, err = svc.Activate(ctx, 404)
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestAddDomain_NormalisesHost(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupService(t, nil)
	tn := &Tenant{SchemaName: "acme", Name: "Acme", Slug: "acme", IsActive: true}
	require.NoError(t, svc.Create(ctx, tn))

	has, err := svc.HasPrimaryDomain(ctx, tn.ID)
	require.NoError(t, err)
	assert.False(t, has)

	d, err := svc.AddDomain(ctx, tn.ID, "ACME.Localhost:8000", true)
	require.NoError(t, err)
	assert.Equal(t, "acme.localhost", d.Domain)

	has, err = svc.HasPrimaryDomain(ctx, tn.ID)
	require.NoError(t, err)
	assert.True(t, has)

	_, err = svc.AddDomain(ctx, tn.ID, "", false)
	_, isValidation := validation.As(err)
	assert.True(t, isValidation)
}

func TestResolver(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := setupService(t, nil)

	public := &Tenant{SchemaName: "public", Name: "Public", Slug: "public", IsActive: true}
	require.NoError(t, svc.Create(ctx, public))
	acme := &Tenant{SchemaName: "acme", Name: "Acme", Slug: "acme", IsActive: true}
	require.NoError(t, svc.Create(ctx, acme))
	dormant := &Tenant{SchemaName: "dormant", Name: "Dormant", Slug: "dormant", IsActive: false}
	require.NoError(t, svc.Create(ctx, dormant))

	_, err := svc.AddDomain(ctx, acme.ID, "acme.localhost", true)
	require.NoError(t, err)
	_, err = svc.AddDomain(ctx, dormant.ID, "dormant.localhost", true)
	require.NoError(t, err)

	r := NewResolver(store, "public", "LOCALHOST")

	p, err := r.Resolve(ctx, "localhost")
	require.NoError(t, err)
	assert.True(t, p.Public)
	assert.Equal(t, "public", p.Schema)

	p, err = r.Resolve(ctx, "acme.localhost")
	require.NoError(t, err)
	assert.Equal(t, partition.Partition{Schema: "acme", TenantID: acme.ID}, p)

	_, err = r.Resolve(ctx, "dormant.localhost")
	assert.ErrorIs(t, err, partition.ErrInactive)

	_, err = r.Resolve(ctx, "nobody.localhost")
	assert.ErrorIs(t, err, partition.ErrUnknownHost)

	_, err = svc.AddDomain(ctx, public.ID, "www.localhost", true)
	require.NoError(t, err)
	p, err = r.Resolve(ctx, "www.localhost")
	require.NoError(t, err)
	assert.True(t, p.Public)
	assert.Equal(t, public.ID, p.TenantID)
}

func TestResolver_ForTenant(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := setupService(t, nil)

	root := &Tenant{SchemaName: "public", Name: "Tenantdesk", Slug: "tenantdesk", IsActive: true}
	acme := &Tenant{SchemaName: "acme", Name: "Acme Inc", Slug: "acme", IsActive: false}
	require.NoError(t, svc.Create(ctx, root))
	require.NoError(t, svc.Create(ctx, acme))
	r := NewResolver(store, "public", "localhost")

	p, err := r.ForTenant(ctx, acme.ID)
	require.NoError(t, err, "inactive workspaces stay manageable")
	assert.Equal(t, partition.Partition{Schema: "acme", TenantID: acme.ID}, p)

	p, err = r.ForTenant(ctx, root.ID)
	require.NoError(t, err)
	assert.True(t, p.Public)
	assert.Equal(t, root.ID, p.TenantID)

	_, err = r.ForTenant(ctx, 99)
	assert.ErrorIs(t, err, partition.ErrNoTenant)
	assert.ErrorIs(t, err, ErrTenantNotFound)
}
