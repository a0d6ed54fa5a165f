package session

import (
	"container/list"
	"sync/atomic"

	"github.com/patric-chuzhbe/sanasto/internal/logger"
	"github.com/patric-chuzhbe/sanasto/internal/models"
)

type listenerHandle struct {
	listener Listener
	element  *list.Element
	active   atomic.Bool
}

// Subscribe registers listener. Once the manager is Ready, the listener first
// receives the current session, then every later change. The returned
// function removes it and may be called any number of times, also from
// inside the listener.
//
// Listeners run on a single dispatcher goroutine, in commit order. They may
// call back into the Manager but must not call Close.
func (m *Manager) Subscribe(listener Listener) (unsubscribe func()) {
	handle := &listenerHandle{listener: listener}
	handle.active.Store(true)

	m.stateMu.Lock()
	handle.element = m.listeners.PushBack(handle)
	if m.state == models.StateReady {
		m.deliveries.push(delivery{
			user:       m.current.Load(),
			recipients: []*listenerHandle{handle},
		})
	}
	m.stateMu.Unlock()

	return func() {
		if !handle.active.CompareAndSwap(true, false) {
			return
		}
		m.stateMu.Lock()
		m.listeners.Remove(handle.element)
		m.stateMu.Unlock()
	}
}

// ListenerCount reports how many listeners are registered.
func (m *Manager) ListenerCount() int {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	return m.listeners.Len()
}

func (m *Manager) dispatchLoop() {
	defer close(m.dispatcherDone)

	for {
		d, ok := m.deliveries.pop()
		if !ok {
			return
		}
		if d.flushed != nil {
			close(d.flushed)
			continue
		}

		for _, handle := range d.recipients {
			if !handle.active.Load() {
				continue
			}
			deliver(handle.listener, d)
		}
	}
}

func deliver(listener Listener, d delivery) {
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Log.Errorw("session listener panicked", "panic", recovered)
		}
	}()

	listener(d.user.Clone())
}
