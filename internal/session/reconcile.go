package session

import (
	"context"

	"github.com/patric-chuzhbe/sanasto/internal/identity"
	"github.com/patric-chuzhbe/sanasto/internal/logger"
	"github.com/patric-chuzhbe/sanasto/internal/models"
)

// reconcileLoop applies provider events one at a time, in arrival order.
// Events that arrive while a mutation holds opMu wait in the queue.
func (m *Manager) reconcileLoop() {
	defer close(m.reconcilerDone)

	for {
		ev, ok := m.events.pop()
		if !ok {
			return
		}
		if ev.flushed != nil {
			close(ev.flushed)
			continue
		}

		m.opMu.Lock()
		m.reconcile(context.Background(), ev.identity)
		m.opMu.Unlock()
	}
}

// reconcile must be called with opMu held.
func (m *Manager) reconcile(ctx context.Context, id *identity.Identity) {
	first := !m.sawFirstEvent
	m.sawFirstEvent = true

	current := m.current.Load()
	var next *models.AppUser

	switch {
	case id != nil:
		next = userFromIdentity(id, models.UnknownEmail)
		if first || !next.SameAs(current) {
			m.saveUser(ctx, next)
		}

	case current == nil:
		// the provider may report "signed out" before the cache is restored
		next = m.loadSlots(ctx)

	case current.IsGuest || m.policy == ReconcileKeepCached || first:
		next = current

	default:
		logger.Log.Infow("provider reports signed out, dropping cached session", "uid", current.UID)
		m.clearSlots(ctx)
	}

	if first {
		logger.Log.Infow("session ready", "signedIn", next != nil)
	}
	if first || !next.SameAs(current) {
		m.commit(next, first)
	}
}

func userFromIdentity(id *identity.Identity, fallbackEmail string) *models.AppUser {
	email := id.Email
	if email == "" {
		email = fallbackEmail
	}
	return &models.AppUser{
		Email:   email,
		IsGuest: false,
		UID:     id.UID,
	}
}
