// Package session owns the answer to "who is signed in". A Manager reconciles
// the identity provider's live feed with the two persisted slots and guest
// mode, serializes every mutation, and fans changes out to listeners.
package session

import (
	"container/list"
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/patric-chuzhbe/sanasto/internal/db/storage"
	"github.com/patric-chuzhbe/sanasto/internal/identity"
	"github.com/patric-chuzhbe/sanasto/internal/logger"
	"github.com/patric-chuzhbe/sanasto/internal/models"
)

// ReconcilePolicy decides what an "absent identity" event does to a cached
// authenticated session.
type ReconcilePolicy int

const (
	// ReconcileKeepCached keeps the cached session; only logout clears it.
	ReconcileKeepCached ReconcilePolicy = iota
	// ReconcileFollowProvider clears an authenticated session when the
	// provider reports signed-out after its first event. Guests are kept.
	ReconcileFollowProvider
)

func (p ReconcilePolicy) String() string {
	if p == ReconcileFollowProvider {
		return "follow-provider"
	}
	return "keep-cached"
}

func ParseReconcilePolicy(value string) (ReconcilePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "keep-cached":
		return ReconcileKeepCached, nil
	case "follow-provider":
		return ReconcileFollowProvider, nil
	}
	return ReconcileKeepCached, fmt.Errorf("unknown reconcile policy %q", value)
}

// Listener receives every committed session change, nil meaning "no user".
type Listener func(user *models.AppUser)

type event struct {
	identity *identity.Identity
	flushed  chan struct{}
}

type delivery struct {
	user       *models.AppUser
	recipients []*listenerHandle
	flushed    chan struct{}
}

// Manager is safe for concurrent use. Build it with New, call Start once,
// and Close it on shutdown.
type Manager struct {
	provider    identity.Provider
	store       storage.Storage
	policy      ReconcilePolicy
	initTimeout time.Duration
	printer     *message.Printer
	now         func() time.Time

	// opMu serializes mutations, including provider and storage calls.
	opMu           sync.Mutex
	sawFirstEvent  bool
	guestSequence  atomic.Uint64
	current        atomic.Pointer[models.AppUser]
	events         *fifo[event]
	deliveries     *fifo[delivery]
	reconcilerDone chan struct{}
	dispatcherDone chan struct{}

	stateMu             sync.Mutex
	state               models.State
	unavailableCause    error
	stateChanged        chan struct{}
	ready               chan struct{}
	closing             chan struct{}
	closed              bool
	listeners           *list.List
	unsubscribeProvider func()
	closeOnce           sync.Once
}

type Option func(*Manager)

func WithReconcilePolicy(policy ReconcilePolicy) Option {
	return func(m *Manager) {
		m.policy = policy
	}
}

// WithInitTimeout bounds the wait for the provider's first event; 0 waits forever.
func WithInitTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		m.initTimeout = timeout
	}
}

// WithLanguage selects the language of AuthError messages. Finnish by default.
func WithLanguage(tag language.Tag) Option {
	return func(m *Manager) {
		m.printer = newPrinter(tag)
	}
}

// WithClock replaces time.Now for guest uid generation.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func New(provider identity.Provider, store storage.Storage, options ...Option) *Manager {
	m := &Manager{
		provider:       provider,
		store:          store,
		policy:         ReconcileKeepCached,
		initTimeout:    10 * time.Second,
		printer:        newPrinter(language.Finnish),
		now:            time.Now,
		events:         newFIFO[event](),
		deliveries:     newFIFO[delivery](),
		reconcilerDone: make(chan struct{}),
		dispatcherDone: make(chan struct{}),
		state:          models.StateUninitialized,
		stateChanged:   make(chan struct{}),
		ready:          make(chan struct{}),
		closing:        make(chan struct{}),
		listeners:      list.New(),
	}
	for _, option := range options {
		option(m)
	}

	go m.reconcileLoop()
	go m.dispatchLoop()

	return m
}

// Start restores the persisted session and subscribes to the provider.
// It returns once the subscription is in place; use WaitReady to wait for
// the provider's first event.
func (m *Manager) Start(ctx context.Context) error {
	m.stateMu.Lock()
	if m.closed {
		m.stateMu.Unlock()
		return ErrClosed
	}
	if m.state != models.StateUninitialized {
		m.stateMu.Unlock()
		return ErrAlreadyStarted
	}
	m.setStateLocked(models.StateInitializing, nil)
	m.stateMu.Unlock()

	m.opMu.Lock()
	restored := m.loadSlots(ctx)
	if m.current.Load() == nil {
		m.current.Store(restored)
	}
	m.opMu.Unlock()

	if restored != nil {
		logger.Log.Infow("restored persisted session", "uid", restored.UID, "guest", restored.IsGuest)
	}

	unsubscribe, err := m.provider.OnChange(m.enqueueEvent)
	if err != nil {
		cause := fmt.Errorf("in internal/session/manager.go/Start(): error while `m.provider.OnChange()` calling: %w", err)
		m.markUnavailable(cause)
		return fmt.Errorf("%w: %w", ErrUnavailable, cause)
	}

	m.stateMu.Lock()
	if m.closed {
		m.stateMu.Unlock()
		unsubscribe()
		return ErrClosed
	}
	m.unsubscribeProvider = unsubscribe
	m.stateMu.Unlock()

	if m.initTimeout > 0 {
		go m.watchInitialization()
	}

	return nil
}

func (m *Manager) watchInitialization() {
	timer := time.NewTimer(m.initTimeout)
	defer timer.Stop()

	select {
	case <-timer.C:
		if m.markUnavailable(ErrProviderTimeout) {
			logger.Log.Warnw("identity provider did not answer in time", "timeout", m.initTimeout)
		}
	case <-m.ready:
	case <-m.closing:
	}
}

func (m *Manager) enqueueEvent(id *identity.Identity) {
	m.events.push(event{identity: id.Clone()})
}

// markUnavailable reports whether the state actually changed.
func (m *Manager) markUnavailable(cause error) bool {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	if m.state != models.StateInitializing {
		return false
	}
	m.setStateLocked(models.StateUnavailable, cause)
	return true
}

func (m *Manager) setStateLocked(state models.State, cause error) {
	m.state = state
	m.unavailableCause = cause
	close(m.stateChanged)
	m.stateChanged = make(chan struct{})
}

// commit publishes next as the current session and queues its delivery to
// the listeners registered right now. becomeReady marks initialization done.
func (m *Manager) commit(next *models.AppUser, becomeReady bool) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	m.current.Store(next)

	if becomeReady && m.state != models.StateReady {
		m.setStateLocked(models.StateReady, nil)
		close(m.ready)
	}

	recipients := make([]*listenerHandle, 0, m.listeners.Len())
	for element := m.listeners.Front(); element != nil; element = element.Next() {
		recipients = append(recipients, element.Value.(*listenerHandle))
	}
	if len(recipients) > 0 {
		m.deliveries.push(delivery{user: next, recipients: recipients})
	}
}

// State reports the lifecycle state.
func (m *Manager) State() models.State {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	return m.state
}

// WaitReady blocks until the provider's first event has been applied. It
// fails fast with ErrUnavailable while the provider is unreachable.
func (m *Manager) WaitReady(ctx context.Context) error {
	for {
		m.stateMu.Lock()
		state, cause, changed, closed := m.state, m.unavailableCause, m.stateChanged, m.closed
		m.stateMu.Unlock()

		if closed {
			return ErrClosed
		}
		switch state {
		case models.StateReady:
			return nil
		case models.StateUnavailable:
			if cause == nil {
				return ErrUnavailable
			}
			return fmt.Errorf("%w: %w", ErrUnavailable, cause)
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// CurrentUser returns a copy of the current session in any state.
func (m *Manager) CurrentUser() *models.AppUser {
	return m.current.Load().Clone()
}

// StoredUser waits for initialization, then returns the current session.
func (m *Manager) StoredUser(ctx context.Context) (*models.AppUser, error) {
	if err := m.WaitReady(ctx); err != nil {
		return nil, err
	}
	return m.CurrentUser(), nil
}

// Close detaches from the provider, applies queued events, delivers queued
// notifications and stops the workers. It must not be called from a Listener.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.stateMu.Lock()
		m.closed = true
		unsubscribe := m.unsubscribeProvider
		m.unsubscribeProvider = nil
		close(m.closing)
		close(m.stateChanged)
		m.stateChanged = make(chan struct{})
		m.stateMu.Unlock()

		if unsubscribe != nil {
			unsubscribe()
		}

		m.events.close()
		<-m.reconcilerDone

		m.deliveries.close()
		<-m.dispatcherDone
	})

	return nil
}

func (m *Manager) isClosed() bool {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	return m.closed
}
