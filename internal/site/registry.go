package site

import (
	"sort"
	"strings"
	"sync"
)

// Registry resolves hostnames to adapters. Its contents can be swapped as a whole;
// adapters already handed out are never mutated.
type Registry struct {
	mu     sync.RWMutex
	byHost map[string]Adapter
}

// NewRegistry creates a registry holding adapters. Later adapters win hostname
// collisions.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{}
	r.Replace(adapters...)
	return r
}

// Resolve returns the adapter for hostname.
func (r *Registry) Resolve(hostname string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byHost[strings.ToLower(hostname)]
	return a, ok
}

// Supported reports whether hostname has an adapter.
func (r *Registry) Supported(hostname string) bool {
	_, ok := r.Resolve(hostname)
	return ok
}

// Replace swaps the registry contents.
func (r *Registry) Replace(adapters ...Adapter) {
	byHost := make(map[string]Adapter)
	for _, a := range adapters {
		for _, h := range a.Hostnames() {
			byHost[strings.ToLower(h)] = a
		}
	}
	r.mu.Lock()
	r.byHost = byHost
	r.mu.Unlock()
}

// Hostnames lists every supported hostname, sorted.
func (r *Registry) Hostnames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byHost))
	for h := range r.byHost {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}
