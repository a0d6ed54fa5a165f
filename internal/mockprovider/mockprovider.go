// Package mockprovider provides a testify-based identity provider. The
// credential calls go through mock expectations; the change feed is driven by
// hand with Emit.
package mockprovider

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/patric-chuzhbe/sanasto/internal/identity"
)

// ProviderMock implements identity.Provider.
type ProviderMock struct {
	mock.Mock

	// SubscribeErr, when set, makes OnChange fail.
	SubscribeErr error

	// EmitOnSubscribe sends InitialIdentity to each new subscriber, the way
	// real providers push their current state on registration.
	EmitOnSubscribe bool
	InitialIdentity *identity.Identity

	mu          sync.Mutex
	subscribers map[int]func(*identity.Identity)
	nextID      int
}

func (m *ProviderMock) SignIn(ctx context.Context, email, password string) (*identity.Identity, error) {
	args := m.Called(ctx, email, password)
	id, _ := args.Get(0).(*identity.Identity)
	return id, args.Error(1)
}

func (m *ProviderMock) SignUp(ctx context.Context, email, password string) (*identity.Identity, error) {
	args := m.Called(ctx, email, password)
	id, _ := args.Get(0).(*identity.Identity)
	return id, args.Error(1)
}

func (m *ProviderMock) SignOut(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *ProviderMock) OnChange(callback func(*identity.Identity)) (func(), error) {
	if m.SubscribeErr != nil {
		return nil, m.SubscribeErr
	}

	m.mu.Lock()
	if m.subscribers == nil {
		m.subscribers = map[int]func(*identity.Identity){}
	}
	id := m.nextID
	m.nextID++
	m.subscribers[id] = callback
	m.mu.Unlock()

	if m.EmitOnSubscribe {
		callback(m.InitialIdentity.Clone())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subscribers, id)
			m.mu.Unlock()
		})
	}, nil
}

// Emit pushes id to every current subscriber.
func (m *ProviderMock) Emit(id *identity.Identity) {
	m.mu.Lock()
	callbacks := make([]func(*identity.Identity), 0, len(m.subscribers))
	for i := 0; i < m.nextID; i++ {
		if callback, ok := m.subscribers[i]; ok {
			callbacks = append(callbacks, callback)
		}
	}
	m.mu.Unlock()

	for _, callback := range callbacks {
		callback(id.Clone())
	}
}

// Subscribers reports how many OnChange registrations are live.
func (m *ProviderMock) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.subscribers)
}
