package gateway

import (
	"sync"

	"github.com/amoylab/tokengate/pkg/metrics"
)

// Registry maps an identity to its live connection ids. Identities with no
// connections are removed, so the registry only ever holds active users.
type Registry struct {
	mu      sync.Mutex
	conns   map[string][]string // identity -> conn ids in registration order
	owners  map[string]string   // conn id -> identity
	metrics *metrics.Metrics
}

func NewRegistry(m *metrics.Metrics) *Registry {
	return &Registry{
		conns:   make(map[string][]string),
		owners:  make(map[string]string),
		metrics: m,
	}
}

// Register adds connID under identity. Registering a known pair again does
// nothing; an id held by another identity moves to this one.
func (r *Registry) Register(identity, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, ok := r.owners[connID]; ok {
		if owner == identity {
			return
		}
		r.remove(owner, connID)
	}
	r.conns[identity] = append(r.conns[identity], connID)
	r.owners[connID] = identity
	r.metrics.ActiveIdentities(len(r.conns))
}

// Unregister removes connID from identity. Unknown pairs are ignored.
func (r *Registry) Unregister(identity, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, ok := r.owners[connID]; !ok || owner != identity {
		return
	}
	r.remove(identity, connID)
	r.metrics.ActiveIdentities(len(r.conns))
}

// remove must be called with mu held
func (r *Registry) remove(identity, connID string) {
	delete(r.owners, connID)
	ids := r.conns[identity]
	for i, id := range ids {
		if id == connID {
			ids = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(r.conns, identity)
		return
	}
	r.conns[identity] = ids
}

// Resolve returns a copy of the connection ids of identity
func (r *Registry) Resolve(identity string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := r.conns[identity]
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// Len returns the number of identities with at least one connection
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Connections returns the number of registered connections
func (r *Registry) Connections() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.owners)
}
