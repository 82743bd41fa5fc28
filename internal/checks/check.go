// Package checks holds the deployment verification catalogue. Each check
// is a scripted sequence of PI Web API calls that creates what it needs,
// waits for the server to converge, asserts and removes what it created.
package checks

import (
	"fmt"
	"strings"
	"sync"
)

// Suites, in the order they run.
const (
	SuitePreliminary  = "preliminary"
	SuitePIWebAPI     = "piwebapi"
	SuitePIDA         = "pida"
	SuiteAnalysis     = "analysis"
	SuiteManualLogger = "manuallogger"
)

// Check is a single verification.
type Check struct {
	ID          string
	Suite       string
	Description string
	Requires    []Condition
	Run         func(c *Context) error
}

// Key returns suite/id.
func (c *Check) Key() string {
	return c.Suite + "/" + c.ID
}

// Registry holds checks in registration order.
type Registry struct {
	mu     sync.RWMutex
	checks []*Check
	byID   map[string]*Check
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Check)}
}

// Register adds a check. Ids are unique across suites.
func (r *Registry) Register(c *Check) error {
	if c == nil || strings.TrimSpace(c.ID) == "" {
		return ErrEmptyID
	}
	if c.Run == nil {
		return fmt.Errorf("check %s has no Run function", c.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[c.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateCheck, c.ID)
	}
	r.byID[c.ID] = c
	r.checks = append(r.checks, c)
	return nil
}

// MustRegister registers checks and panics on error.
func (r *Registry) MustRegister(checks ...*Check) {
	for _, c := range checks {
		if err := r.Register(c); err != nil {
			panic(err)
		}
	}
}

// Get returns a check by id.
func (r *Registry) Get(id string) (*Check, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	return c, ok
}

// All returns every check in registration order.
func (r *Registry) All() []*Check {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Check(nil), r.checks...)
}

// Suites returns the suite names in the order they first appear.
func (r *Registry) Suites() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var suites []string
	seen := make(map[string]bool)
	for _, c := range r.checks {
		if !seen[c.Suite] {
			seen[c.Suite] = true
			suites = append(suites, c.Suite)
		}
	}
	return suites
}

// Select returns the checks matching suites and ids, in registration order.
// Empty filters match everything. Ids may be given as id or suite/id.
func (r *Registry) Select(suites, ids []string) ([]*Check, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wantSuite := make(map[string]bool, len(suites))
	known := make(map[string]bool)
	for _, c := range r.checks {
		known[c.Suite] = true
	}
	for _, s := range suites {
		if !known[s] {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSuite, s)
		}
		wantSuite[s] = true
	}

	wantID := make(map[string]bool, len(ids))
	for _, id := range ids {
		if i := strings.LastIndex(id, "/"); i >= 0 {
			id = id[i+1:]
		}
		if _, ok := r.byID[id]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCheck, id)
		}
		wantID[id] = true
	}

	var selected []*Check
	for _, c := range r.checks {
		if len(wantSuite) > 0 && !wantSuite[c.Suite] {
			continue
		}
		if len(wantID) > 0 && !wantID[c.ID] {
			continue
		}
		selected = append(selected, c)
	}
	return selected, nil
}
