// Package health reports whether a kanaime host is alive, ready for
// sessions, and what its components look like. Hosts mount the handlers
// next to their own endpoints.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"kanaime/internal/ime"
)

// Status is a component or aggregate state.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	// StatusUnknown is reported before a component has been checked.
	StatusUnknown Status = "unknown"
)

// DefaultTimeout bounds a check registered without a timeout.
const DefaultTimeout = 5 * time.Second

// CheckResult is what one check found.
type CheckResult struct {
	Status      Status         `json:"status"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	LastChecked time.Time      `json:"last_checked"`
	Duration    time.Duration  `json:"duration_ns"`
	Error       string         `json:"error,omitempty"`
}

// Check probes one component.
type Check func(ctx context.Context) CheckResult

// Component is a named check. A critical component that fails makes the
// whole host unhealthy; any other failure only degrades it.
type Component struct {
	Name     string
	Critical bool
	Check    Check
	Timeout  time.Duration
}

type entry struct {
	comp *Component
	last CheckResult
}

// Checker runs registered checks and remembers their last results.
type Checker struct {
	mu      sync.RWMutex
	entries map[string]*entry
	started time.Time
	ready   bool
}

// NewChecker returns a checker with no components that is not ready.
func NewChecker() *Checker {
	return &Checker{
		entries: make(map[string]*entry),
		started: time.Now(),
	}
}

// Register adds comp, replacing any component of the same name. Its status
// is unknown until the next Check.
func (c *Checker) Register(comp *Component) {
	if comp.Timeout <= 0 {
		comp.Timeout = DefaultTimeout
	}
	c.mu.Lock()
	c.entries[comp.Name] = &entry{comp: comp, last: CheckResult{Status: StatusUnknown}}
	c.mu.Unlock()
}

// RegisterFunc registers check under name with the default timeout.
func (c *Checker) RegisterFunc(name string, critical bool, check Check) {
	c.Register(&Component{Name: name, Critical: critical, Check: check})
}

// SetReady flips the readiness probe.
func (c *Checker) SetReady(ready bool) {
	c.mu.Lock()
	c.ready = ready
	c.mu.Unlock()
}

// IsReady reports the readiness flag.
func (c *Checker) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Check runs every component in parallel and returns the results by name.
func (c *Checker) Check(ctx context.Context) map[string]CheckResult {
	c.mu.RLock()
	comps := make([]*Component, 0, len(c.entries))
	for _, e := range c.entries {
		comps = append(comps, e.comp)
	}
	c.mu.RUnlock()

	found := make([]CheckResult, len(comps))
	var wg sync.WaitGroup
	for i, comp := range comps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			found[i] = probe(ctx, comp)
		}()
	}
	wg.Wait()

	results := make(map[string]CheckResult, len(comps))
	c.mu.Lock()
	for i, comp := range comps {
		results[comp.Name] = found[i]
		// Skip components replaced while the check ran.
		if e, ok := c.entries[comp.Name]; ok && e.comp == comp {
			e.last = found[i]
		}
	}
	c.mu.Unlock()
	return results
}

// probe runs one check under its timeout. A panic or an overrun becomes an
// unhealthy result.
func probe(ctx context.Context, comp *Component) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, comp.Timeout)
	defer cancel()

	start := time.Now()
	done := make(chan CheckResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- CheckResult{Status: StatusUnhealthy, Message: "check panicked", Error: fmt.Sprint(r)}
			}
		}()
		done <- comp.Check(ctx)
	}()

	var res CheckResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res = CheckResult{Status: StatusUnhealthy, Message: "check timed out", Error: ctx.Err().Error()}
	}
	res.LastChecked = start
	res.Duration = time.Since(start)
	return res
}

// OverallStatus folds the last results into one status. Unknown only counts
// for critical components.
func (c *Checker) OverallStatus() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	overall := StatusHealthy
	for _, e := range c.entries {
		switch st := e.last.Status; {
		case st == StatusUnhealthy && e.comp.Critical:
			return StatusUnhealthy
		case st == StatusUnknown && e.comp.Critical:
			overall = StatusUnknown
		case st == StatusUnhealthy, st == StatusDegraded:
			if overall == StatusHealthy {
				overall = StatusDegraded
			}
		}
	}
	return overall
}

// Names lists registered components in order.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Response is the body of the health endpoint.
type Response struct {
	Status     Status                 `json:"status"`
	Ready      bool                   `json:"ready"`
	Uptime     string                 `json:"uptime"`
	Components map[string]CheckResult `json:"components,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Response runs the checks and summarizes them. Per-component results are
// included only when full is set.
func (c *Checker) Response(ctx context.Context, full bool) Response {
	results := c.Check(ctx)
	resp := Response{
		Status:    c.OverallStatus(),
		Ready:     c.IsReady(),
		Uptime:    time.Since(c.started).Truncate(time.Second).String(),
		Timestamp: time.Now(),
	}
	if full {
		resp.Components = results
	}
	return resp
}

// LivenessHandler always answers 200 while the process can serve HTTP.
func (c *Checker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, probeBody{Status: "alive", Timestamp: time.Now()})
	})
}

// ReadinessHandler answers 503 until SetReady(true), and again whenever a
// critical component fails.
func (c *Checker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !c.IsReady() {
			writeJSON(w, http.StatusServiceUnavailable, probeBody{Status: "not ready", Timestamp: time.Now()})
			return
		}
		c.Check(r.Context())
		st := c.OverallStatus()
		code := http.StatusOK
		if st == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, probeBody{Status: string(st), Ready: true, Timestamp: time.Now()})
	})
}

// HealthHandler serves Response. Pass ?full=true for component detail.
func (c *Checker) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := c.Response(r.Context(), r.URL.Query().Get("full") == "true")
		code := http.StatusOK
		switch resp.Status {
		case StatusUnhealthy, StatusUnknown:
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	})
}

type probeBody struct {
	Status    string    `json:"status"`
	Ready     bool      `json:"ready,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// PingCheck turns a connectivity probe, such as a database ping, into a
// check. Messages read "<what> ok" or "<what> unreachable".
func PingCheck(what string, ping func(ctx context.Context) error) Check {
	return func(ctx context.Context) CheckResult {
		if err := ping(ctx); err != nil {
			return CheckResult{Status: StatusUnhealthy, Message: what + " unreachable", Error: err.Error()}
		}
		return CheckResult{Status: StatusHealthy, Message: what + " ok"}
	}
}

// SessionsCheck reports open sessions and the dictionary new sessions will
// use. An empty dictionary is unhealthy.
func SessionsCheck(sessions *ime.SessionManager) Check {
	return func(context.Context) CheckResult {
		f := sessions.Factory()
		keys := f.Dictionary().Len()
		res := CheckResult{
			Status:  StatusHealthy,
			Message: "sessions ok",
			Details: map[string]any{
				"open_sessions":   sessions.Len(),
				"dictionary_keys": keys,
				"substitution":    f.Substitutes(),
				"engines_created": f.EnginesCreated(),
			},
		}
		if keys == 0 {
			res.Status = StatusUnhealthy
			res.Message = "dictionary is empty"
		}
		return res
	}
}

// CustomCheck adapts a plain error-returning function.
func CustomCheck(fn func() error) Check {
	return func(context.Context) CheckResult {
		if err := fn(); err != nil {
			return CheckResult{Status: StatusUnhealthy, Message: "check failed", Error: err.Error()}
		}
		return CheckResult{Status: StatusHealthy, Message: "check passed"}
	}
}
