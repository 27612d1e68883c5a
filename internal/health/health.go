// Package health checks that the environment can run the daemon.
//
// Each Component probes one dependency: the keyboard devices, the
// injection tool, the counter database, the notification bus and so on.
// Checks run concurrently with a timeout and a panicking check counts as
// failed. A failed critical component makes the whole report unhealthy;
// any other failure only degrades it.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	// StatusHealthy indicates the component is healthy.
	StatusHealthy Status = "healthy"
	// StatusDegraded indicates the component is degraded but functional.
	StatusDegraded Status = "degraded"
	// StatusUnhealthy indicates the component is unhealthy.
	StatusUnhealthy Status = "unhealthy"
	// StatusUnknown indicates the component status is unknown.
	StatusUnknown Status = "unknown"
)

// CheckResult represents the result of a health check.
type CheckResult struct {
	Name     string        `json:"name"`
	Critical bool          `json:"critical"`
	Status   Status        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Check is a function that performs a health check.
type Check func(ctx context.Context) CheckResult

// Component represents a health-checkable component.
type Component struct {
	Name     string
	Critical bool // If true, failure makes overall status unhealthy
	Check    Check
	Timeout  time.Duration
}

// DefaultTimeout applies to components registered without one.
const DefaultTimeout = 5 * time.Second

// Checker manages health checks.
type Checker struct {
	mu         sync.Mutex
	components []*Component
}

// NewChecker creates a new Checker.
func NewChecker() *Checker {
	return &Checker{}
}

// Register registers a health check component. Results keep the
// registration order.
func (c *Checker) Register(component *Component) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if component.Timeout == 0 {
		component.Timeout = DefaultTimeout
	}
	c.components = append(c.components, component)
}

// RegisterFunc registers a simple health check function.
func (c *Checker) RegisterFunc(name string, critical bool, check Check) {
	c.Register(&Component{
		Name:     name,
		Critical: critical,
		Check:    check,
	})
}

// Check runs all registered health checks.
func (c *Checker) Check(ctx context.Context) []CheckResult {
	c.mu.Lock()
	components := append([]*Component(nil), c.components...)
	c.mu.Unlock()

	results := make([]CheckResult, len(components))
	var wg sync.WaitGroup

	for i, comp := range components {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = run(ctx, comp)
		}()
	}

	wg.Wait()
	return results
}

func run(ctx context.Context, comp *Component) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, comp.Timeout)
	defer cancel()

	start := time.Now()
	resultCh := make(chan CheckResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- CheckResult{
					Status:  StatusUnhealthy,
					Message: "check panicked",
					Error:   fmt.Sprintf("%v", r),
				}
			}
		}()
		resultCh <- comp.Check(checkCtx)
	}()

	var result CheckResult
	select {
	case result = <-resultCh:
	case <-checkCtx.Done():
		result = CheckResult{
			Status:  StatusUnhealthy,
			Message: "check timed out",
			Error:   checkCtx.Err().Error(),
		}
	}

	result.Name = comp.Name
	result.Critical = comp.Critical
	result.Duration = time.Since(start)
	if result.Status == "" {
		result.Status = StatusUnknown
	}
	return result
}

// Overall aggregates results. An unhealthy critical component makes the
// whole unhealthy; other failures degrade it.
func Overall(results []CheckResult) Status {
	hasUnknown := false
	hasDegraded := false

	for _, result := range results {
		switch result.Status {
		case StatusUnhealthy:
			if result.Critical {
				return StatusUnhealthy
			}
			hasDegraded = true
		case StatusDegraded:
			hasDegraded = true
		case StatusUnknown:
			if result.Critical {
				hasUnknown = true
			}
		}
	}

	if hasUnknown {
		return StatusUnknown
	}
	if hasDegraded {
		return StatusDegraded
	}
	return StatusHealthy
}

// Healthy returns a healthy result.
func Healthy(format string, args ...any) CheckResult {
	return CheckResult{Status: StatusHealthy, Message: fmt.Sprintf(format, args...)}
}

// Degraded returns a degraded result.
func Degraded(format string, args ...any) CheckResult {
	return CheckResult{Status: StatusDegraded, Message: fmt.Sprintf(format, args...)}
}

// Failed returns an unhealthy result for err.
func Failed(message string, err error) CheckResult {
	r := CheckResult{Status: StatusUnhealthy, Message: message}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// PingCheck returns a check for a dependency that can be pinged, such as
// the counter database or the notification bus.
func PingCheck(what string, ping func(ctx context.Context) error) Check {
	return func(ctx context.Context) CheckResult {
		if err := ping(ctx); err != nil {
			return Failed(what+" unreachable", err)
		}
		return Healthy("%s ok", what)
	}
}

// AvailableCheck adapts the Available() (bool, string) probes of key
// sources and focus trackers.
func AvailableCheck(available func() (bool, string)) Check {
	return func(ctx context.Context) CheckResult {
		ok, reason := available()
		if !ok {
			return Failed(reason, nil)
		}
		return Healthy("%s", reason)
	}
}
