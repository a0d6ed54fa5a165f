package models

import "errors"

// AppUser is the application-level notion of "who is signed in".
// Values are never mutated once built; a new login replaces the whole value.
type AppUser struct {
	Email   string `json:"email"`
	IsGuest bool   `json:"isGuest"`
	UID     string `json:"uid"`
}

// Clone returns a copy of the user, or nil for an absent user.
func (u *AppUser) Clone() *AppUser {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// SameAs reports whether both values describe the same session, treating two nils as equal.
func (u *AppUser) SameAs(other *AppUser) bool {
	if u == nil || other == nil {
		return u == nil && other == nil
	}
	return *u == *other
}

const (
	// GuestEmail is the sentinel address carried by guest sessions.
	GuestEmail = "guest@example.com"

	// GuestUIDPrefix starts every locally generated guest uid.
	GuestUIDPrefix = "guest-"

	// UnknownEmail replaces an empty email reported by the identity provider.
	UnknownEmail = "Unknown"
)

// State is the lifecycle state of a session manager.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateUnavailable:
		return "unavailable"
	}
	return "unknown"
}

// MarshalText makes State render as its name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var ErrUnknownState = errors.New("unknown session state")

// ParseState is the inverse of State.String.
func ParseState(name string) (State, error) {
	for s := StateUninitialized; s <= StateUnavailable; s++ {
		if s.String() == name {
			return s, nil
		}
	}
	return StateUninitialized, ErrUnknownState
}

func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

type CredentialsRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type SessionResponse struct {
	User  *AppUser `json:"user"`
	State State    `json:"state"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type InternalStatusResponse struct {
	State     State `json:"state"`
	Listeners int   `json:"listeners"`
}

const (
	StorageTypeUnknown = iota
	StorageTypePostgresql
	StorageTypeSQLite
	StorageTypeRedis
	StorageTypeFile
	StorageTypeMemory
)

const (
	IdentityProviderFirebase = "firebase"
	IdentityProviderLocal    = "local"
)

var ErrInvalidRecord = errors.New("the persisted session record is malformed")
