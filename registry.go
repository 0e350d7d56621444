package ldapauth

import (
	"context"
	"sync"
)

// AuthenticateFunc is the contract an authentication backend registers
// under: it resolves credentials to a Result or the absence-signal,
// optionally narrating progress to the sink.
type AuthenticateFunc func(ctx context.Context, creds Credentials, sink ProgressSink) (*Result, error)

// Registry maps provider names to their authenticate functions. The
// host application owns its lifecycle; providers plug in via Load and
// Unload.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]AuthenticateFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]AuthenticateFunc),
	}
}

// Register installs fn under name, replacing any previous
// registration.
func (r *Registry) Register(name string, fn AuthenticateFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = fn
}

// Deregister removes the named provider. Removing an unknown name is
// a no-op.
func (r *Registry) Deregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.providers, name)
}

// Lookup returns the authenticate function registered under name.
func (r *Registry) Lookup(name string) (AuthenticateFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.providers[name]
	return fn, ok
}

// Names returns the registered provider names in no particular order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
