package webhook

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tradelane/payhook/internal/module/webhook/domain"
	"github.com/tradelane/payhook/internal/module/webhook/provider"
)

// AdapterRegistry routes a provider name to its adapter.
type AdapterRegistry struct {
	mu       sync.RWMutex
	adapters map[domain.Provider]provider.Adapter
}

// NewAdapterRegistry creates a registry holding the given adapters.
func NewAdapterRegistry(adapters ...provider.Adapter) *AdapterRegistry {
	r := &AdapterRegistry{adapters: make(map[domain.Provider]provider.Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// NewDefaultAdapterRegistry registers an adapter for every supported provider.
func NewDefaultAdapterRegistry() *AdapterRegistry {
	return NewAdapterRegistry(provider.Adapters()...)
}

// Register registers an adapter, replacing any previous one for its provider.
func (r *AdapterRegistry) Register(a provider.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Provider()] = a
}

// Get returns the adapter for p.
func (r *AdapterRegistry) Get(p domain.Provider) (provider.Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[p]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownGateway, p)
	}
	return a, nil
}

// Resolve parses a route parameter and returns its adapter.
func (r *AdapterRegistry) Resolve(name string) (provider.Adapter, error) {
	p, err := domain.ParseProvider(name)
	if err != nil {
		return nil, err
	}
	return r.Get(p)
}

// List returns the registered providers in name order.
func (r *AdapterRegistry) List() []domain.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Provider, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
