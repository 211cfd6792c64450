package billing

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"

	"github.com/mbd888/tenantdesk/internal/circuitbreaker"
	"github.com/mbd888/tenantdesk/internal/retry"
)

// StripeSource reads active subscriptions from the Stripe API.
type StripeSource struct {
	api *client.API
}

// NewStripeSource creates a source authenticated with secretKey.
func NewStripeSource(secretKey string) *StripeSource {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeSource{api: api}
}

// ActiveLookupKeys implements SubscriptionSource.
func (s *StripeSource) ActiveLookupKeys(ctx context.Context, customerID string) ([]string, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String(string(stripe.SubscriptionStatusActive)),
	}
	params.Context = ctx

	var keys []string
	iter := s.api.Subscriptions.List(params)
	for iter.Next() {
		sub := iter.Subscription()
		if sub.Items == nil {
			continue
		}
		for _, item := range sub.Items.Data {
			if item.Price != nil && item.Price.LookupKey != "" {
				keys = append(keys, item.Price.LookupKey)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return nil, classify(err)
	}
	return keys, nil
}

// classify marks client errors as permanent. Rate limits and server errors
// stay retryable.
func classify(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && se.HTTPStatusCode >= 400 && se.HTTPStatusCode < 500 &&
		se.HTTPStatusCode != http.StatusTooManyRequests {
		return retry.Permanent(err)
	}
	return err
}

// NewStripeGate returns a SubscriptionGate backed by Stripe. Lookups are
// retried and the gate fails fast after five consecutive outages.
func NewStripeGate(secretKey string) *SubscriptionGate {
	return NewSubscriptionGate(NewStripeSource(secretKey),
		WithRetry(retry.DefaultPolicy()),
		WithBreaker(circuitbreaker.New("stripe", 5, 30*time.Second)),
	)
}

var _ SubscriptionSource = (*StripeSource)(nil)
