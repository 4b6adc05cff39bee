package render

import "sync"

// AgentKey identifies an agent across generations.
type AgentKey struct {
	Generation int
	ID         int
}

// HandleRegistry maps agent identity to whatever a renderer draws it with.
// Agents never carry display state themselves.
type HandleRegistry[H any] struct {
	mu      sync.Mutex
	handles map[AgentKey]H
}

func NewHandleRegistry[H any]() *HandleRegistry[H] {
	return &HandleRegistry[H]{handles: make(map[AgentKey]H)}
}

func (r *HandleRegistry[H]) Get(key AgentKey) (H, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handles[key]
	return h, ok
}

// Ensure returns the handle for key, creating it with create on first use.
func (r *HandleRegistry[H]) Ensure(key AgentKey, create func(AgentKey) H) H {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.handles[key]; ok {
		return h
	}
	h := create(key)
	r.handles[key] = h
	return h
}

func (r *HandleRegistry[H]) Delete(key AgentKey) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.handles, key)
}

// Prune drops handles of generations older than keepFrom.
func (r *HandleRegistry[H]) Prune(keepFrom int) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key := range r.handles {
		if key.Generation < keepFrom {
			delete(r.handles, key)
			removed++
		}
	}
	return removed
}

func (r *HandleRegistry[H]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.handles)
}
