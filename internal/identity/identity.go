// Package identity defines the contract of an external authentication
// backend: credential sign-in/sign-up, sign-out and a push feed of the
// currently signed-in identity.
package identity

import (
	"context"
	"errors"
)

// Identity is what the provider knows about a signed-in account.
type Identity struct {
	Email string
	UID   string
}

// Clone returns a copy, or nil for an absent identity.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}

// Provider is implemented by every identity backend.
//
// OnChange emits the provider's current identity once on registration and
// then on every change, nil meaning "nobody is signed in". Callbacks run on
// the provider's goroutine and must not block.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (*Identity, error)

	SignUp(ctx context.Context, email, password string) (*Identity, error)

	SignOut(ctx context.Context) error

	OnChange(callback func(*Identity)) (unsubscribe func(), err error)
}

// Error codes shared by all providers. They follow the Firebase Auth naming.
const (
	CodeInvalidEmail       = "auth/invalid-email"
	CodeUserNotFound       = "auth/user-not-found"
	CodeWrongPassword      = "auth/wrong-password"
	CodeInvalidCredential  = "auth/invalid-credential"
	CodeTooManyRequests    = "auth/too-many-requests"
	CodeEmailAlreadyInUse  = "auth/email-already-in-use"
	CodeWeakPassword       = "auth/weak-password"
	CodeUserDisabled       = "auth/user-disabled"
	CodeNetworkRequestFail = "auth/network-request-failed"
	CodeInternalError      = "auth/internal-error"
)

// Error is a provider rejection carrying a machine-readable code.
type Error struct {
	Code string
	Err  error
}

func NewError(code string, err error) *Error {
	return &Error{Code: code, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Err.Error()
	}
	return e.Code
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf extracts the provider code from err, or "" when err carries none.
func CodeOf(err error) string {
	var providerErr *Error
	if errors.As(err, &providerErr) {
		return providerErr.Code
	}
	return ""
}
