// Package storage declares the persistent key-value contract the session
// manager keeps its slots in, and the errors shared by every backend.
package storage

import (
	"context"
	"errors"
)

// Storage is a durable string-keyed store. Implementations are safe for
// concurrent use. Removing a missing key is not an error.
type Storage interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)

	Set(ctx context.Context, key, value string) error

	Remove(ctx context.Context, key string) error

	Ping(ctx context.Context) error

	Close() error
}

var (
	ErrEmptyKey = errors.New("storage key must not be empty")
	ErrClosed   = errors.New("storage is closed")
)
