package voicecast

import "sync"

// handlerRegistry is the subscription primitive used across models and
// stores: Add returns a disposer, notify iterates a snapshot so handlers
// may unsubscribe (or subscribe) re-entrantly.
type handlerRegistry[T any] struct {
	mu       sync.Mutex
	nextID   int
	handlers map[int]T
}

func (r *handlerRegistry[T]) add(handler T) (remove func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handlers == nil {
		r.handlers = make(map[int]T)
	}
	id := r.nextID
	r.nextID++
	r.handlers[id] = handler

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.handlers, id)
	}
}

func (r *handlerRegistry[T]) notify(fire func(T)) {
	r.mu.Lock()
	snapshot := make([]T, 0, len(r.handlers))
	for _, handler := range r.handlers {
		snapshot = append(snapshot, handler)
	}
	r.mu.Unlock()

	for _, handler := range snapshot {
		fire(handler)
	}
}

func (r *handlerRegistry[T]) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = nil
}
