// Package mockstorage provides a testify-based mock implementation
// of the key-value storage contract. Session tests use it to simulate
// failing or slow persistence.
package mockstorage

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// StorageMock is a testify mock that implements storage.Storage.
type StorageMock struct {
	mock.Mock

	// OnPing, when set, replaces the generic mock handler for Ping so
	// health-check tests need not register an expectation.
	OnPing func(ctx context.Context) error
}

// Get mocks reading a slot.
func (m *StorageMock) Get(ctx context.Context, key string) (string, bool, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Bool(1), args.Error(2)
}

// Set mocks writing a slot.
func (m *StorageMock) Set(ctx context.Context, key, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

// Remove mocks clearing a slot.
func (m *StorageMock) Remove(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// Ping mocks the storage health check.
func (m *StorageMock) Ping(ctx context.Context) error {
	if m.OnPing != nil {
		return m.OnPing(ctx)
	}
	args := m.Called(ctx)
	return args.Error(0)
}

// Close mocks closing the storage and releasing resources.
func (m *StorageMock) Close() error {
	args := m.Called()
	return args.Error(0)
}
