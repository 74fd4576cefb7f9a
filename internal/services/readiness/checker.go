// Package readiness aggregates dependency checks into the service's
// liveness and readiness answers.
//
// The service is ready only when every dependency check passes: the database must
// answer and the fraud model must be loadable. It stays live regardless,
// since a dependency outage is recoverable without a restart.
package readiness

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/archon-research/fraud-scoring/internal/ports/inbound"
)

var (
	_ inbound.HealthChecker  = (*Checker)(nil)
	_ inbound.HealthReporter = (*Checker)(nil)
)

// Dependency is one named readiness check.
type Dependency struct {
	Name  string
	Check func(ctx context.Context) error
}

// Config holds configuration for the checker.
type Config struct {
	// Timeout bounds a whole round of checks. Default: 3s
	Timeout time.Duration

	Logger *slog.Logger
}

// Checker checks its dependencies concurrently on every call.
type Checker struct {
	deps    []Dependency
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	failed map[string]bool
}

// NewChecker creates a checker over deps.
func NewChecker(config Config, deps ...Dependency) (*Checker, error) {
	for i, p := range deps {
		if p.Name == "" || p.Check == nil {
			return nil, fmt.Errorf("dependency %d needs a name and a check", i)
		}
	}
	if config.Timeout <= 0 {
		config.Timeout = 3 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Checker{
		deps:    deps,
		timeout: config.Timeout,
		logger:  config.Logger.With("component", "readiness"),
		failed:  make(map[string]bool),
	}, nil
}

// Report checks every dependency and returns their outcomes in registration order.
func (c *Checker) Report(ctx context.Context) []inbound.ComponentStatus {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out := make([]inbound.ComponentStatus, len(c.deps))
	var wg sync.WaitGroup
	for i, p := range c.deps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out[i] = inbound.ComponentStatus{Name: p.Name, Ready: true}
			if err := p.Check(ctx); err != nil {
				out[i].Ready = false
				out[i].Error = err.Error()
			}
		}()
	}
	wg.Wait()

	c.logTransitions(out)
	return out
}

// IsReady returns true when every dependency check passes.
func (c *Checker) IsReady(ctx context.Context) bool {
	for _, st := range c.Report(ctx) {
		if !st.Ready {
			return false
		}
	}
	return true
}

// IsHealthy always returns true; see the package documentation.
func (c *Checker) IsHealthy(context.Context) bool {
	return true
}

// logTransitions logs only when a component changes state, so a failing
// dependency polled by a load balancer does not flood the log.
func (c *Checker) logTransitions(statuses []inbound.ComponentStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, st := range statuses {
		was := c.failed[st.Name]
		switch {
		case !st.Ready && !was:
			c.logger.Warn("component not ready", "component", st.Name, "error", st.Error)
		case st.Ready && was:
			c.logger.Info("component recovered", "component", st.Name)
		}
		c.failed[st.Name] = !st.Ready
	}
}
