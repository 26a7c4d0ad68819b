package service

import (
	"fmt"
	"sync"
)

// Registry maps service ids to services.
type Registry struct {
	mu       sync.RWMutex
	services map[ServiceID]Service
	order    []ServiceID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{services: make(map[ServiceID]Service)}
}

// Attach registers srv. A second service with the same id is logged and
// ignored.
func (r *Registry) Attach(srv Service) error {
	h := srv.GetHandle()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.services[h.ID()]; exists {
		err := fmt.Errorf("attach %s: %w", h, ErrDuplicateService)
		h.Logger().Error().Err(err).Msg("attach service failed")
		return err
	}
	r.services[h.ID()] = srv
	r.order = append(r.order, h.ID())
	return nil
}

// Get returns the service with id.
func (r *Registry) Get(id ServiceID) (Service, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	srv, ok := r.services[id]
	return srv, ok
}

// Len returns the number of attached services.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.services)
}

// snapshot returns the services in reverse attach order.
func (r *Registry) snapshot() []Service {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Service, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		out = append(out, r.services[r.order[i]])
	}
	return out
}

type quitter interface {
	Quit()
}

// StopAll asks every service to quit, last attached first.
func (r *Registry) StopAll() {
	for _, srv := range r.snapshot() {
		if q, ok := srv.(quitter); ok {
			q.Quit()
			continue
		}
		srv.GetHandle().Quit()
	}
}

// JoinAll waits for every service, last attached first.
func (r *Registry) JoinAll() {
	for _, srv := range r.snapshot() {
		srv.Join()
	}
}
