package driver

import (
	"fmt"
	"sync"
)

// Registry holds every configured driver by app name and provides
// thread-safe registration and lookup, mirroring the teacher's resource
// registry pattern for managed, named, concurrently-accessed components.
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]Driver
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{drivers: make(map[string]Driver)}
}

// Register adds d under its own Name(). Returns an error if a driver with
// that name is already registered.
func (r *Registry) Register(d Driver) error {
	if d == nil {
		return fmt.Errorf("driver: cannot register a nil driver")
	}
	name := d.Name()
	if name == "" {
		return fmt.Errorf("driver: cannot register a driver with an empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.drivers[name]; exists {
		return fmt.Errorf("driver: %q already registered", name)
	}
	r.drivers[name] = d
	return nil
}

// Get retrieves a driver by app name. The bool is false if no driver with
// that name is registered.
func (r *Registry) Get(name string) (Driver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[name]
	return d, ok
}

// Names returns every registered driver's app name. The returned slice is
// a copy and safe to modify.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	return names
}

// CloseAll closes every registered driver, collecting (not short-circuiting
// on) any errors so that one misbehaving driver doesn't prevent the others
// from releasing their resources during shutdown.
func (r *Registry) CloseAll() error {
	r.mu.RLock()
	drivers := make([]Driver, 0, len(r.drivers))
	for _, d := range r.drivers {
		drivers = append(drivers, d)
	}
	r.mu.RUnlock()

	var errs []error
	for _, d := range drivers {
		if err := d.Close(); err != nil {
			errs = append(errs, fmt.Errorf("driver %q: %w", d.Name(), err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	msg := "driver: errors closing drivers:"
	for _, e := range errs {
		msg += " " + e.Error() + ";"
	}
	return fmt.Errorf("%s", msg)
}
