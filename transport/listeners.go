package transport

import "sync"

// Disposer removes a previously registered listener. Calling it more than
// once is a no-op.
type Disposer func()

// Listeners is an insertion-ordered collection of callbacks for one event
// category. Emission calls listeners in registration order. The zero value
// is ready to use.
type Listeners[T any] struct {
	mu      sync.Mutex
	nextID  int
	entries []listenerEntry[T]
}

type listenerEntry[T any] struct {
	id int
	fn func(T)
}

// Add registers fn and returns a Disposer that removes exactly this
// registration. Registering the same function twice yields two independent
// registrations, each with its own disposer.
func (l *Listeners[T]) Add(fn func(T)) Disposer {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	id := l.nextID
	l.entries = append(l.entries, listenerEntry[T]{id: id, fn: fn})
	return func() {
		l.remove(id)
	}
}

func (l *Listeners[T]) remove(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.entries {
		if l.entries[i].id == id {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return
		}
	}
}

// Emit calls every registered listener in registration order with v. It is
// a no-op when nothing is registered. Listeners are invoked outside the
// internal lock, so a listener may register or dispose listeners itself.
func (l *Listeners[T]) Emit(v T) {
	l.mu.Lock()
	if len(l.entries) == 0 {
		l.mu.Unlock()
		return
	}
	snapshot := make([]func(T), len(l.entries))
	for i := range l.entries {
		snapshot[i] = l.entries[i].fn
	}
	l.mu.Unlock()

	for _, fn := range snapshot {
		fn(v)
	}
}

// Len reports the number of registered listeners.
func (l *Listeners[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Hooks is the zero-payload variant of Listeners, used for the connected
// and disconnected categories. The zero value is ready to use.
type Hooks struct {
	inner Listeners[struct{}]
}

// Add registers fn and returns a Disposer that removes exactly this
// registration.
func (h *Hooks) Add(fn func()) Disposer {
	return h.inner.Add(func(struct{}) { fn() })
}

// Emit calls every registered hook in registration order.
func (h *Hooks) Emit() {
	h.inner.Emit(struct{}{})
}

// Len reports the number of registered hooks.
func (h *Hooks) Len() int {
	return h.inner.Len()
}
