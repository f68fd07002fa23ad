package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Registry tracks open stores by location so a table can be destroyed by
// name later on. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	stores map[string]*Store
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		stores: make(map[string]*Store),
	}
}

// Register records s under its location, replacing any earlier store
// opened at the same location.
func (r *Registry) Register(s *Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores[s.Location()] = s
}

// Lookup returns the store registered at location.
func (r *Registry) Lookup(location string) (*Store, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stores[location]
	return s, ok
}

// Locations returns every registered location in sorted order.
func (r *Registry) Locations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.stores))
	for loc := range r.stores {
		out = append(out, loc)
	}
	slices.Sort(out)
	return out
}

// Remove forgets location without touching the table.
func (r *Registry) Remove(location string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.stores, location)
}

// Destroy deletes the table behind location and waits until it is gone.
// Every partition of that table is forgotten along with it. Destroying an
// unknown location returns ErrNotRegistered.
func (r *Registry) Destroy(ctx context.Context, location string) error {
	s, ok := r.Lookup(location)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, location)
	}

	if err := s.deleteTable(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for loc, other := range r.stores {
		if other.TableName() == s.TableName() {
			delete(r.stores, loc)
		}
	}
	return nil
}
