package tenant

import (
	"context"
	"testing"
	"time"

	"github.com/mbd888/tenantdesk/internal/plan"
	"github.com/mbd888/tenantdesk/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_FirstViolationOnly(t *testing.T) {
	tests := []struct {
		name      string
		tenant    Tenant
		wantField string
		wantMsg   string
	}{
		{"valid", Tenant{Name: "Acme Inc", Slug: "acme"}, "", ""},
		{"exactly three chars", Tenant{Name: "Abc", Slug: "abc"}, "", ""},
		{"empty name", Tenant{Name: "", Slug: ""}, "name", "Tenant name cannot be empty"},
		{"empty slug", Tenant{Name: "Acme", Slug: ""}, "slug", "Tenant slug cannot be empty"},
		{"short name", Tenant{Name: "Ac", Slug: "ac"}, "name", "Tenant name must be at least 3 characters long"},
		{"short name and empty slug", Tenant{Name: "Ac", Slug: ""}, "slug", "Tenant slug cannot be empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tenant.Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			errs, ok := validation.As(err)
			require.True(t, ok)
			require.Len(t, errs, 1)
			assert.Equal(t, tt.wantField, errs[0].Field)
			assert.Equal(t, tt.wantMsg, errs[0].Message)
		})
	}
}

func TestCheckIdentifiers(t *testing.T) {
	ok := &Tenant{Name: "Acme", Slug: "acme-corp", SchemaName: "acme_corp"}
	assert.NoError(t, ok.checkIdentifiers())

	badSlug := &Tenant{Name: "Acme", Slug: "acme corp", SchemaName: "acme"}
	errs, _ := validation.As(badSlug.checkIdentifiers())
	assert.True(t, errs.Has("slug"))

	badSchema := &Tenant{Name: "Acme", Slug: "acme", SchemaName: "Acme-Corp"}
	errs, _ = validation.As(badSchema.checkIdentifiers())
	assert.True(t, errs.Has("schema_name"))
}

func TestActivate_Idempotent(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tn := &Tenant{Name: "Acme", Slug: "acme", SchemaName: "acme", IsActive: true, UpdatedAt: t0}

	t1 := t0.Add(time.Minute)
	got := tn.Activate(t1)
	assert.Same(t, tn, got)
	assert.True(t, tn.IsActive)
	assert.Equal(t, t1, tn.UpdatedAt)

	t2 := t1.Add(time.Minute)
	tn.Activate(t2)
	assert.True(t, tn.IsActive)
	assert.Equal(t, t2, tn.UpdatedAt)
	assert.Equal(t, "Acme", tn.Name)

	tn.Deactivate(t2.Add(time.Minute))
	assert.False(t, tn.IsActive)
	assert.False(t, tn.IsEnabled())
}

func TestAttachPlan_Unconditional(t *testing.T) {
	tn := &Tenant{Name: "Acme", Slug: "acme"}
	assert.False(t, tn.HasSubscription())

	p := &plan.Plan{ID: 9, Code: plan.CodeEnterprise}
	now := time.Now()
	tn.AttachPlan(p, now)
	require.NotNil(t, tn.PlanID)
	assert.Equal(t, int64(9), *tn.PlanID)
	assert.Equal(t, plan.CodeEnterprise, tn.Plan.Code)
	assert.True(t, tn.HasSubscription())
	assert.Equal(t, now, tn.UpdatedAt)
}

func TestDisplayName(t *testing.T) {
	tn := &Tenant{Name: "acme inc"}
	assert.Equal(t, "Acme Inc", tn.DisplayName())
	assert.Equal(t, "acme inc", tn.String())
}

func TestDomain(t *testing.T) {
	d := &Domain{Domain: "acme.localhost", IsPrimary: true}
	assert.NoError(t, d.Validate())
	assert.Equal(t, "acme.localhost (primary)", d.String())

	d.IsPrimary = false
	assert.Equal(t, "acme.localhost (secondary)", d.String())

	empty := &Domain{Domain: "  "}
	errs, ok := validation.As(empty.Validate())
	require.True(t, ok)
	assert.Equal(t, "Domain cannot be empty", errs.Message("domain"))
}

func TestMemoryStore_Conflicts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	a := &Tenant{SchemaName: "acme", Name: "Acme", Slug: "acme", IsActive: true}
	require.NoError(t, store.Create(ctx, a))
	assert.NotZero(t, a.ID)
	assert.False(t, a.CreatedAt.IsZero())

	assert.ErrorIs(t, store.Create(ctx, &Tenant{SchemaName: "acme", Name: "Other", Slug: "other"}), ErrSchemaTaken)
	assert.ErrorIs(t, store.Create(ctx, &Tenant{SchemaName: "other", Name: "Other", Slug: "acme"}), ErrSlugTaken)

	_, err := store.Get(ctx, 999)
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestMemoryStore_UpdateKeepsSchema(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	a := &Tenant{SchemaName: "acme", Name: "Acme", Slug: "acme", IsActive: true}
	require.NoError(t, store.Create(ctx, a))

	a.SchemaName = "hijacked"
	a.Name = "Acme Renamed"
	require.NoError(t, store.Update(ctx, a))
	assert.Equal(t, "acme", a.SchemaName)

	got, err := store.GetBySchema(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "Acme Renamed", got.Name)

	_, err = store.GetBySchema(ctx, "hijacked")
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestMemoryStore_OnePrimaryDomain(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	a := &Tenant{SchemaName: "acme", Name: "Acme", Slug: "acme", IsActive: true}
	require.NoError(t, store.Create(ctx, a))

	require.NoError(t, store.AddDomain(ctx, &Domain{Domain: "acme.localhost", IsPrimary: true, TenantID: a.ID}))
	assert.ErrorIs(t, store.AddDomain(ctx, &Domain{Domain: "acme.example.com", IsPrimary: true, TenantID: a.ID}), ErrPrimaryExists)
	require.NoError(t, store.AddDomain(ctx, &Domain{Domain: "acme.example.com", IsPrimary: false, TenantID: a.ID}))
	assert.ErrorIs(t, store.AddDomain(ctx, &Domain{Domain: "acme.localhost", TenantID: a.ID}), ErrDomainTaken)
	assert.ErrorIs(t, store.AddDomain(ctx, &Domain{Domain: "ghost.localhost", TenantID: 404}), ErrTenantNotFound)

	domains, err := store.ListDomains(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, domains, 2)
	assert.True(t, domains[0].IsPrimary)
	assert.False(t, domains[1].IsPrimary)
}

func TestMemoryStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	for _, s := range []string{"alpha", "beta", "gamma"} {
		require.NoError(t, store.Create(ctx, &Tenant{SchemaName: s, Name: s, Slug: s}))
	}
	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "gamma", list[0].SchemaName)
	assert.Equal(t, "alpha", list[2].SchemaName)
}
