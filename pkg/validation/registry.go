package validation

import (
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-formstate/pkg/model"
)

// Registry resolves custom validators named by rules through
// Params["validator"]. The latest registration for a name wins.
type Registry struct {
	mu         sync.RWMutex
	validators map[string]model.Validator
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{validators: make(map[string]model.Validator)}
}

// Register adds fn under name. Blank names and nil validators are ignored.
func (r *Registry) Register(name string, fn model.Validator) {
	if r == nil || fn == nil {
		return
	}
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.validators == nil {
		r.validators = make(map[string]model.Validator)
	}
	r.validators[trimmed] = fn
}

// Lookup returns the validator registered under name.
func (r *Registry) Lookup(name string) (model.Validator, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.validators[strings.TrimSpace(name)]
	return fn, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Names lists the registered names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.validators))
	for name := range r.validators {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
