package core

import (
	"sync"

	"github.com/google/uuid"
)

// Registry keys machines by session id so several trainees can share one
// process without seeing each other's turns or results.
type Registry struct {
	mu       sync.RWMutex
	deps     Deps
	machines map[string]*Machine
}

// NewRegistry returns an empty registry whose machines share deps.
func NewRegistry(deps Deps) *Registry {
	return &Registry{deps: deps, machines: make(map[string]*Machine)}
}

// Create starts a new session in the key entry phase.
func (r *Registry) Create() *Machine {
	m := NewMachine(uuid.NewString(), r.deps)
	r.mu.Lock()
	r.machines[m.ID()] = m
	r.mu.Unlock()
	return m
}

// Get returns the machine for id.
func (r *Registry) Get(id string) (*Machine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.machines[id]
	if !ok {
		return nil, ErrUnknownSession
	}
	return m, nil
}

// Delete drops a session.  It reports whether the session existed.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.machines[id]; !ok {
		return false
	}
	delete(r.machines, id)
	return true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.machines)
}
