package wallet

import (
	"context"
	"fmt"
	"sync"

	"github.com/orbitengine/pipeline/internal/model"
)

// Registry dispatches to the Backend registered for a payload's namespace,
// the Go analogue of "namespace selects the wallet-gateway backend"
// (spec.md §4.4), grounded on the teacher's ProviderRegistry shape but
// simplified: backends are registered once at startup, not lazily
// constructed from config, so only a read-mostly RWMutex is needed.
type Registry struct {
	mu       sync.RWMutex
	backends map[model.Namespace]Backend
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[model.Namespace]Backend)}
}

// Register installs a backend for its namespace. Registering the same
// namespace twice replaces the previous backend.
func (r *Registry) Register(backend Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[backend.Namespace()] = backend
}

// Address implements Gateway by looking up the backend for namespace.
func (r *Registry) Address(namespace model.Namespace) (string, bool) {
	r.mu.RLock()
	backend, ok := r.backends[namespace]
	r.mu.RUnlock()
	if !ok {
		return "", false
	}
	return backend.Address(namespace)
}

// SignAndSend implements Gateway by dispatching to the backend registered
// for chainRef.Namespace. An unregistered namespace is a Fatal dispatch
// error — it will never become retryable.
func (r *Registry) SignAndSend(ctx context.Context, chainRef model.ChainRef, payload Payload) (string, error) {
	r.mu.RLock()
	backend, ok := r.backends[chainRef.Namespace]
	r.mu.RUnlock()
	if !ok {
		return "", NewFatalError(fmt.Sprintf("no wallet backend registered for namespace %q", chainRef.Namespace), nil)
	}
	return backend.SignAndSend(ctx, chainRef, payload)
}

var _ Gateway = (*Registry)(nil)
