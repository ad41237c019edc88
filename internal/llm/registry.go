package llm

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/time/rate"
)

// registryEntry pairs a provider with its request rate limiter.
type registryEntry struct {
	provider Provider
	limiter  *rate.Limiter
}

// Registry maps provider identifiers to adapters. It is populated once at
// startup and read-only afterwards, so it is safe to share across concurrent
// coordinator invocations without locking.
type Registry struct {
	entries map[string]registryEntry
	sealed  bool
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registryEntry)}
}

// Register adds a provider under its own name with an optional requests-per-
// second cap (rps <= 0 means unlimited). Registering after Seal or under a
// duplicate name panics: both are wiring bugs, not runtime conditions.
func (r *Registry) Register(p Provider, rps float64, burst int) {
	if r.sealed {
		panic("llm: Register called on sealed registry")
	}
	name := p.Name()
	if _, exists := r.entries[name]; exists {
		panic(fmt.Sprintf("llm: provider %q registered twice", name))
	}
	var limiter *rate.Limiter
	if rps > 0 {
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	r.entries[name] = registryEntry{provider: p, limiter: limiter}
}

// Seal freezes the registry. After Seal the registry is immutable.
func (r *Registry) Seal() {
	r.sealed = true
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, bool) {
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.provider, true
}

// Resolve maps the requested identifiers to providers, failing on the first
// unknown identifier.
func (r *Registry) Resolve(names []string) ([]Provider, error) {
	providers := make([]Provider, 0, len(names))
	for _, name := range names {
		e, ok := r.entries[name]
		if !ok {
			return nil, fmt.Errorf("unknown provider %q", name)
		}
		providers = append(providers, e.provider)
	}
	return providers, nil
}

// Acquire blocks until the named provider's rate limiter admits one request,
// or ctx is cancelled. Providers without a limiter admit immediately.
func (r *Registry) Acquire(ctx context.Context, name string) error {
	e, ok := r.entries[name]
	if !ok {
		return fmt.Errorf("unknown provider %q", name)
	}
	if e.limiter == nil {
		return nil
	}
	return e.limiter.Wait(ctx)
}

// Names returns all registered provider identifiers, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	return len(r.entries)
}
