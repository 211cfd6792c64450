// Package tenant provides the workspaces of tenantdesk and the domain aliases
// that route requests to them.
package tenant

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mbd888/tenantdesk/internal/partition"
	"github.com/mbd888/tenantdesk/internal/plan"
	"github.com/mbd888/tenantdesk/internal/validation"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Errors
var (
	ErrTenantNotFound = errors.New("tenant: not found")
	ErrSlugTaken      = errors.New("tenant: slug already taken")
	ErrSchemaTaken    = errors.New("tenant: schema name already taken")
	ErrDomainNotFound = errors.New("tenant: domain not found")
	ErrDomainTaken    = errors.New("tenant: domain already registered")
	ErrPrimaryExists  = errors.New("tenant: tenant already has a primary domain")
)

var validSlug = regexp.MustCompile(`^[a-z0-9]+(?:[-_][a-z0-9]+)*$`)

// Tenant is an isolated workspace. SchemaName identifies its storage
// partition and never changes after creation.
type Tenant struct {
	ID               int64      `json:"id"`
	SchemaName       string     `json:"schema_name"`
	Name             string     `json:"name"`
	Slug             string     `json:"slug"`
	IsActive         bool       `json:"is_active"`
	PlanID           *int64     `json:"plan_id,omitempty"`
	Plan             *plan.Plan `json:"plan,omitempty"`
	StripeCustomerID string     `json:"stripe_customer_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Validate reports the first violated rule only.
func (t *Tenant) Validate() error {
	return validation.First(
		validation.Check("name", t.Name == "", "Tenant name cannot be empty"),
		validation.Check("slug", t.Slug == "", "Tenant slug cannot be empty"),
		validation.MinLength("name", t.Name, 3, "Tenant name must be at least 3 characters long"),
	).Err()
}

// checkIdentifiers enforces the formats the store relies on: a URL-safe slug
// and a usable schema name.
func (t *Tenant) checkIdentifiers() error {
	return validation.First(
		validation.Check("slug", !validSlug.MatchString(t.Slug),
			"Tenant slug may only contain lowercase letters, digits, hyphens and underscores"),
		validation.Check("schema_name", !partition.ValidSchemaName(t.SchemaName),
			"Schema name must start with a letter or underscore and contain only lowercase letters, digits and underscores"),
	).Err()
}

func validateCustomerID(id string) error {
	return validation.First(
		validation.Check("stripe_customer_id", id != "" && !strings.HasPrefix(id, "cus_"),
			"Stripe customer ID must start with cus_"),
		validation.Check("stripe_customer_id", len(id) > 255,
			"Stripe customer ID must be at most 255 characters long"),
	).Err()
}

// IsEnabled reports whether requests may be routed to the tenant.
func (t *Tenant) IsEnabled() bool {
	return t.IsActive
}

// DisplayName returns the name in title case.
func (t *Tenant) DisplayName() string {
	return cases.Title(language.Und).String(t.Name)
}

// HasSubscription reports whether a plan is attached.
func (t *Tenant) HasSubscription() bool {
	return t.Plan != nil || t.PlanID != nil
}

// Activate marks the tenant active. Calling it on an active tenant only
// refreshes UpdatedAt.
func (t *Tenant) Activate(now time.Time) *Tenant {
	t.IsActive = true
	t.UpdatedAt = now
	return t
}

// Deactivate marks the tenant inactive.
func (t *Tenant) Deactivate(now time.Time) *Tenant {
	t.IsActive = false
	t.UpdatedAt = now
	return t
}

// AttachPlan replaces the plan reference. Payment authorisation happens
// before this is called; see Service.AttachPlan.
func (t *Tenant) AttachPlan(p *plan.Plan, now time.Time) *Tenant {
	id := p.ID
	t.PlanID = &id
	t.Plan = p
	t.UpdatedAt = now
	return t
}

func (t *Tenant) String() string {
	return t.Name
}

// Domain maps a hostname to a tenant.
type Domain struct {
	ID        int64     `json:"id"`
	Domain    string    `json:"domain"`
	IsPrimary bool      `json:"is_primary"`
	TenantID  int64     `json:"tenant_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate fails when the hostname is empty.
func (d *Domain) Validate() error {
	return validation.First(
		validation.Required("domain", d.Domain, "Domain cannot be empty"),
	).Err()
}

func (d *Domain) String() string {
	kind := "secondary"
	if d.IsPrimary {
		kind = "primary"
	}
	return fmt.Sprintf("%s (%s)", d.Domain, kind)
}

// NormalizeSlug trims and lower-cases a slug.
func NormalizeSlug(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
