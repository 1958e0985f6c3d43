package ai

import "sync"

// Registry holds the currently selected completion model, validated against
// a fixed allow-list. It is an injectable instance rather than process-wide
// state, and is never persisted: a restart resets it to the default.
type Registry struct {
	mu      sync.RWMutex
	allowed []string
	current string
}

// NewRegistry builds a registry from the allow-list. The first entry is the
// default selection; the list must not be empty.
func NewRegistry(allowed []string) *Registry {
	if len(allowed) == 0 {
		panic("ai: model allow-list must not be empty")
	}
	models := make([]string, len(allowed))
	copy(models, allowed)
	return &Registry{allowed: models, current: models[0]}
}

// Set selects a model. It reports false and leaves the current selection
// unchanged when the name is not allow-listed.
func (r *Registry) Set(model string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.allowed {
		if m == model {
			r.current = model
			return true
		}
	}
	return false
}

// Get returns the current model. Never empty, never outside the allow-list.
func (r *Registry) Get() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Models returns a copy of the allow-list.
func (r *Registry) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.allowed))
	copy(out, r.allowed)
	return out
}
