// Package events provides a small synchronous emitter. Handlers run on the
// firing goroutine in registration order.
package events

import "sync"

// Subscription undoes a Subscribe. Dispose is safe to call more than once;
// the removal runs exactly once.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Dispose removes the handler from its emitter.
func (s *Subscription) Dispose() {
	s.once.Do(s.cancel)
}

// NewSubscription wraps an arbitrary cleanup function so callers can track it
// alongside emitter subscriptions.
func NewSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

type handler[T any] struct {
	id int
	fn func(T)
}

// Emitter delivers events to subscribed handlers in registration order.
// The zero value is ready to use.
type Emitter[T any] struct {
	mu       sync.Mutex
	nextID   int
	handlers []handler[T]
}

// Subscribe registers fn. It is called synchronously on every Fire until the
// returned subscription is disposed.
func (e *Emitter[T]) Subscribe(fn func(T)) *Subscription {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.handlers = append(e.handlers, handler[T]{id: id, fn: fn})
	e.mu.Unlock()

	return NewSubscription(func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, h := range e.handlers {
			if h.id == id {
				e.handlers = append(e.handlers[:i], e.handlers[i+1:]...)
				break
			}
		}
	})
}

// Fire invokes every registered handler with v, oldest subscription first.
func (e *Emitter[T]) Fire(v T) {
	e.mu.Lock()
	snapshot := make([]handler[T], len(e.handlers))
	copy(snapshot, e.handlers)
	e.mu.Unlock()

	for _, h := range snapshot {
		h.fn(v)
	}
}
