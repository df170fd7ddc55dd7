package circuit

import (
	"sort"
	"sync"
)

// Registry owns one Breaker per circuit name. Breakers are created on first
// use with the registry's default options.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	defaults []Option
	perName  map[string][]Option
}

func NewRegistry(defaults ...Option) *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
		defaults: defaults,
		perName:  make(map[string][]Option),
	}
}

// Configure sets options for a circuit that has not been created yet.
// Options are applied after the registry defaults.
func (r *Registry) Configure(name string, opts ...Option) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.perName[name] = append(r.perName[name], opts...)
}

// Get returns the breaker for name, creating it if needed.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	opts := append(append([]Option{}, r.defaults...), r.perName[name]...)
	b := New(name, opts...)
	r.breakers[name] = b
	return b
}

// Lookup returns the breaker for name without creating it.
func (r *Registry) Lookup(name string) (*Breaker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[name]
	return b, ok
}

// Stats returns a snapshot of every breaker, sorted by name.
func (r *Registry) Stats() []Stats {
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	out := make([]Stats, 0, len(breakers))
	for _, b := range breakers {
		out = append(out, b.Stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Reset closes the named circuit. It reports whether the circuit exists.
func (r *Registry) Reset(name string) bool {
	b, ok := r.Lookup(name)
	if ok {
		b.Reset()
	}
	return ok
}
