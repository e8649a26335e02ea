package presence

import (
	"sort"
	"sync"
)

// Handle is a live, addressable connection.
type Handle interface {
	ID() string
	Emit(event string, data any) error
}

// Registry maps user ids to their single live handle. The most recent registration wins.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]Handle
}

func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]Handle)}
}

// Register binds h to userID and returns the handle it displaced, if any.
func (r *Registry) Register(userID string, h Handle) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.handles[userID]
	r.handles[userID] = h
	if prev != nil && prev.ID() == h.ID() {
		return nil
	}
	return prev
}

// Unregister removes userID unconditionally.
func (r *Registry) Unregister(userID string) {
	r.mu.Lock()
	delete(r.handles, userID)
	r.mu.Unlock()
}

// UnregisterHandle removes userID only while it is still bound to h.
func (r *Registry) UnregisterHandle(userID string, h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.handles[userID]
	if !ok || cur.ID() != h.ID() {
		return false
	}
	delete(r.handles, userID)
	return true
}

func (r *Registry) Lookup(userID string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[userID]
	return h, ok
}

// Snapshot returns the registered user ids in sorted order.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.handles))
	for id := range r.handles {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}
