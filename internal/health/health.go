// Package health reports subsystem readiness for the safety pipeline.
// Signal ingestion must keep answering even when a dependency is down,
// so checks feed the /health endpoint as degraded status rather than
// gating request handling.
package health

import (
	"context"
	"sync"
)

// Status represents the health of a single subsystem.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Checker is a function that checks the health of a subsystem.
type Checker func(ctx context.Context) Status

// Pinger is the connectivity probe a database pool exposes.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// DBChecker reports whether the signal and assessment store is reachable.
func DBChecker(name string, db Pinger) Checker {
	return func(ctx context.Context) Status {
		st := Status{Name: name, Healthy: true}
		if err := db.PingContext(ctx); err != nil {
			st.Healthy = false
			st.Detail = err.Error()
		}
		return st
	}
}

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
// status plus individual subsystem results. An empty registry is healthy;
// the liveness probe covers the process itself.
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
