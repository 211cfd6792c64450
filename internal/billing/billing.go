// Package billing is the payment collaborator consulted before a tenant's plan
// is reassigned. The tenant lifecycle itself never charges anyone; it only
// asks a Gate whether the change is authorised.
package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/mbd888/tenantdesk/internal/circuitbreaker"
	"github.com/mbd888/tenantdesk/internal/retry"
)

// Errors
var (
	ErrPaymentRequired = errors.New("billing: no active subscription for plan")
	ErrNoCustomer      = errors.New("billing: tenant has no billing customer")
	ErrUnavailable     = errors.New("billing: provider unavailable")
)

// FreePlan is always authorised.
const FreePlan = "free"

// Change describes a requested plan reassignment.
type Change struct {
	TenantID   int64
	CustomerID string
	PlanCode   string
}

// Gate authorises plan changes. A nil error means the change may proceed.
type Gate interface {
	Authorize(ctx context.Context, ch Change) error
}

// AllowAll authorises every change. Used when no payment provider is configured.
type AllowAll struct{}

// Authorize implements Gate.
func (AllowAll) Authorize(context.Context, Change) error { return nil }

// SubscriptionSource lists the price lookup keys of a customer's active
// subscriptions.
type SubscriptionSource interface {
	ActiveLookupKeys(ctx context.Context, customerID string) ([]string, error)
}

// SubscriptionGate authorises a paid plan only when the tenant's customer has
// an active subscription whose price lookup key equals the plan code.
type SubscriptionGate struct {
	source  SubscriptionSource
	policy  retry.Policy
	breaker *circuitbreaker.Breaker
}

// GateOption configures a SubscriptionGate.
type GateOption func(*SubscriptionGate)

// WithRetry retries transient provider failures.
func WithRetry(p retry.Policy) GateOption {
	return func(g *SubscriptionGate) { g.policy = p }
}

// WithBreaker stops consulting the provider while it keeps failing.
func WithBreaker(b *circuitbreaker.Breaker) GateOption {
	return func(g *SubscriptionGate) { g.breaker = b }
}

// NewSubscriptionGate creates a gate over source. Without options each
// lookup is tried once.
func NewSubscriptionGate(source SubscriptionSource, opts ...GateOption) *SubscriptionGate {
	g := &SubscriptionGate{source: source, policy: retry.Policy{Attempts: 1}}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authorize implements Gate.
func (g *SubscriptionGate) Authorize(ctx context.Context, ch Change) error {
	if ch.PlanCode == FreePlan {
		return nil
	}
	if ch.CustomerID == "" {
		return fmt.Errorf("%w: tenant %d", ErrNoCustomer, ch.TenantID)
	}
	keys, err := g.lookup(ctx, ch.CustomerID)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if k == ch.PlanCode {
			return nil
		}
	}
	return fmt.Errorf("%w %q", ErrPaymentRequired, ch.PlanCode)
}

func (g *SubscriptionGate) lookup(ctx context.Context, customerID string) ([]string, error) {
	var keys []string
	call := func() error {
		return retry.Do(ctx, g.policy, func(ctx context.Context) error {
			var err error
			keys, err = g.source.ActiveLookupKeys(ctx, customerID)
			return err
		})
	}

	var err error
	if g.breaker != nil {
		// Rejected requests say nothing about provider health.
		err = g.breaker.Do(call, func(err error) bool { return !retry.IsPermanent(err) })
	} else {
		err = call()
	}
	switch {
	case errors.Is(err, circuitbreaker.ErrOpen):
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	case err != nil:
		return nil, fmt.Errorf("billing: list subscriptions: %w", err)
	}
	return keys, nil
}

var (
	_ Gate = AllowAll{}
	_ Gate = (*SubscriptionGate)(nil)
)
