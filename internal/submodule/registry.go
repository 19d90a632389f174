package submodule

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps (type, name) to module constructors. Constructors run once;
// instances are cached for the process lifetime and dropped only by an
// explicit Reload. An unknown name is a soft miss (nil), not an error.
type Registry struct {
	mu         sync.RWMutex
	discovery  map[string]func() DiscoveryModule
	validation map[string]func() ValidationModule
	discCache  map[string]DiscoveryModule
	validCache map[string]ValidationModule
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		discovery:  make(map[string]func() DiscoveryModule),
		validation: make(map[string]func() ValidationModule),
		discCache:  make(map[string]DiscoveryModule),
		validCache: make(map[string]ValidationModule),
	}
}

// RegisterDiscovery adds a discovery module constructor.
func (r *Registry) RegisterDiscovery(name string, ctor func() DiscoveryModule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.discovery[name]; exists {
		return fmt.Errorf("discovery submodule %q already registered", name)
	}
	r.discovery[name] = ctor
	return nil
}

// RegisterValidation adds a validation module constructor.
func (r *Registry) RegisterValidation(name string, ctor func() ValidationModule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.validation[name]; exists {
		return fmt.Errorf("validation submodule %q already registered", name)
	}
	r.validation[name] = ctor
	return nil
}

// LoadDiscovery returns the cached discovery module for name, or nil when
// no such module is registered.
func (r *Registry) LoadDiscovery(name string) DiscoveryModule {
	r.mu.RLock()
	if m, ok := r.discCache[name]; ok {
		r.mu.RUnlock()
		return m
	}
	ctor, ok := r.discovery[name]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.discCache[name]; ok {
		return m
	}
	m := ctor()
	r.discCache[name] = m
	return m
}

// LoadValidation returns the cached validation module for name, or nil.
func (r *Registry) LoadValidation(name string) ValidationModule {
	r.mu.RLock()
	if m, ok := r.validCache[name]; ok {
		r.mu.RUnlock()
		return m
	}
	ctor, ok := r.validation[name]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.validCache[name]; ok {
		return m
	}
	m := ctor()
	r.validCache[name] = m
	return m
}

// ListAll enumerates descriptor metadata for every registered submodule
// without invoking any module logic beyond construction. Output is sorted
// by type then name for stable UI rendering.
func (r *Registry) ListAll() []Info {
	r.mu.RLock()
	discNames := make([]string, 0, len(r.discovery))
	for name := range r.discovery {
		discNames = append(discNames, name)
	}
	validNames := make([]string, 0, len(r.validation))
	for name := range r.validation {
		validNames = append(validNames, name)
	}
	r.mu.RUnlock()

	sort.Strings(discNames)
	sort.Strings(validNames)

	infos := make([]Info, 0, len(discNames)+len(validNames))
	for _, name := range discNames {
		if m := r.LoadDiscovery(name); m != nil {
			infos = append(infos, m.Info())
		}
	}
	for _, name := range validNames {
		if m := r.LoadValidation(name); m != nil {
			infos = append(infos, m.Info())
		}
	}
	return infos
}

// Reload drops all cached instances; the next load reconstructs them.
func (r *Registry) Reload() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discCache = make(map[string]DiscoveryModule)
	r.validCache = make(map[string]ValidationModule)
}
