package identity

import (
	"maps"
	"slices"
	"sync"
)

// Emitter is the OnChange bookkeeping shared by the providers: it remembers
// the current identity and replays it to new subscribers.
//
// Emissions are serialized, so every subscriber sees changes in the order
// they were made. Callbacks may unsubscribe themselves but must not call
// Subscribe or Set.
type Emitter struct {
	mu          sync.Mutex
	emitMu      sync.Mutex
	current     *Identity
	subscribers map[uint64]func(*Identity)
	nextID      uint64
}

// Subscribe registers callback and immediately emits the current identity to it.
func (e *Emitter) Subscribe(callback func(*Identity)) (unsubscribe func()) {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	e.mu.Lock()
	if e.subscribers == nil {
		e.subscribers = map[uint64]func(*Identity){}
	}
	id := e.nextID
	e.nextID++
	e.subscribers[id] = callback
	current := e.current.Clone()
	e.mu.Unlock()

	callback(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subscribers, id)
			e.mu.Unlock()
		})
	}
}

// Set replaces the current identity and emits it to every subscriber.
func (e *Emitter) Set(current *Identity) {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	e.mu.Lock()
	e.current = current.Clone()
	callbacks := make([]func(*Identity), 0, len(e.subscribers))
	for _, id := range slices.Sorted(maps.Keys(e.subscribers)) {
		callbacks = append(callbacks, e.subscribers[id])
	}
	e.mu.Unlock()

	for _, callback := range callbacks {
		callback(current.Clone())
	}
}

// Current returns a copy of the last identity passed to Set.
func (e *Emitter) Current() *Identity {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.current.Clone()
}

// Subscribers reports how many callbacks are registered.
func (e *Emitter) Subscribers() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.subscribers)
}
