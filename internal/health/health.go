// Package health provides a registry of named subsystem health checkers.
package health

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mbd888/tenantdesk/internal/plan"
)

// Status represents the health of a single subsystem.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Checker is a function that checks the health of a subsystem.
type Checker func(ctx context.Context) Status

// Registry holds named health checkers and runs them on demand.
type Registry struct {
	mu       sync.RWMutex
	checkers []namedChecker
}

type namedChecker struct {
	name  string
	check Checker
}

// NewRegistry creates a new health check registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a named health checker.
func (r *Registry) Register(name string, check Checker) {
	r.mu.Lock()
	r.checkers = append(r.checkers, namedChecker{name: name, check: check})
	r.mu.Unlock()
}

// CheckAll runs all registered checkers and returns the aggregate health
// status plus individual subsystem results.
func (r *Registry) CheckAll(ctx context.Context) (healthy bool, statuses []Status) {
	r.mu.RLock()
	checkers := make([]namedChecker, len(r.checkers))
	copy(checkers, r.checkers)
	r.mu.RUnlock()

	healthy = true
	statuses = make([]Status, len(checkers))

	for i, nc := range checkers {
		statuses[i] = nc.check(ctx)
		if !statuses[i].Healthy {
			healthy = false
		}
	}

	return healthy, statuses
}

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Database reports whether the database answers a ping within two seconds.
func Database(db Pinger) Checker {
	return func(ctx context.Context) Status {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return Status{Name: "database", Healthy: false, Detail: err.Error()}
		}
		return Status{Name: "database", Healthy: true}
	}
}

// PlanLookup finds a plan by code.
type PlanLookup interface {
	GetByCode(ctx context.Context, code plan.Code) (*plan.Plan, error)
}

// FreePlan reports whether the free plan exists and is active. New tenants
// cannot be provisioned without it.
func FreePlan(plans PlanLookup) Checker {
	return func(ctx context.Context) Status {
		p, err := plans.GetByCode(ctx, plan.CodeFree)
		switch {
		case errors.Is(err, plan.ErrPlanNotFound):
			return Status{Name: "plans", Healthy: false, Detail: "free plan not seeded"}
		case err != nil:
			return Status{Name: "plans", Healthy: false, Detail: err.Error()}
		case !p.IsEnabled():
			return Status{Name: "plans", Healthy: false, Detail: "free plan is inactive"}
		}
		return Status{Name: "plans", Healthy: true}
	}
}
