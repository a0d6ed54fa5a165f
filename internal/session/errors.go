package session

import (
	"errors"
	"fmt"
)

var (
	ErrUnavailable     = errors.New("the identity provider is unavailable")
	ErrClosed          = errors.New("the session manager is closed")
	ErrAlreadyStarted  = errors.New("the session manager is already started")
	ErrProviderTimeout = errors.New("the identity provider did not report the initial state in time")
)

// AuthError is returned when the identity provider rejects a request.
// Message is user-facing and already localized.
type AuthError struct {
	Op      string
	Code    string
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// StorageError describes a failed slot read or write. It is logged, never
// returned from the auth operations.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("session storage %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
