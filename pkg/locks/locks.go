// Package locks provides per-key exclusive leases for serializing
// workflow control operations.
//
// Unlike a mutex map, TryAcquire never queues: a second caller gets an
// immediate error while the lease is held. Release is idempotent so it
// is safe on every exit path, including escalation aborts.
package locks

import (
	"fmt"
	"sync"
)

// ErrHeld is returned by TryAcquire when the key is already leased.
var ErrHeld = fmt.Errorf("lock already held")

// Registry tracks which keys are currently leased.
type Registry struct {
	mu   sync.Mutex
	held map[string]*Lease
}

// Lease is an exclusive hold on one key. Callers must Release it on all
// exit paths.
type Lease struct {
	registry *Registry
	key      string
	once     sync.Once
}

// NewRegistry creates an empty lock registry.
func NewRegistry() *Registry {
	return &Registry{held: make(map[string]*Lease)}
}

// TryAcquire takes the lease for key or fails immediately with ErrHeld.
func (r *Registry) TryAcquire(key string) (*Lease, error) {
	if key == "" {
		return nil, fmt.Errorf("lock key cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.held[key]; ok {
		return nil, fmt.Errorf("%w: %s", ErrHeld, key)
	}

	lease := &Lease{registry: r, key: key}
	r.held[key] = lease
	return lease, nil
}

// IsHeld reports whether key is currently leased.
func (r *Registry) IsHeld(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.held[key]
	return ok
}

// Release returns the lease. Calling it more than once is a no-op.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.registry.mu.Lock()
		defer l.registry.mu.Unlock()
		// Only remove our own lease; a later holder keeps theirs.
		if current, ok := l.registry.held[l.key]; ok && current == l {
			delete(l.registry.held, l.key)
		}
	})
}

// Key returns the key this lease holds.
func (l *Lease) Key() string {
	return l.key
}
