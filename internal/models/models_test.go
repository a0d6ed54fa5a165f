package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppUserJSONShape(t *testing.T) {
	usr := AppUser{Email: "a@x.com", IsGuest: false, UID: "u1"}

	raw, err := json.Marshal(usr)
	require.NoError(t, err)

	assert.JSONEq(t, `{"email":"a@x.com","isGuest":false,"uid":"u1"}`, string(raw))
}

func TestAppUserSameAs(t *testing.T) {
	var absent *AppUser
	a := &AppUser{Email: "a@x.com", UID: "u1"}
	b := a.Clone()

	assert.True(t, absent.SameAs(nil))
	assert.True(t, a.SameAs(b))
	assert.False(t, a.SameAs(nil))
	assert.False(t, absent.SameAs(a))

	b.UID = "u2"
	assert.False(t, a.SameAs(b))
	assert.Equal(t, "u1", a.UID, "Clone must not share memory with the original")
}

func TestStateMarshalsAsName(t *testing.T) {
	raw, err := json.Marshal(SessionResponse{State: StateReady})
	require.NoError(t, err)

	assert.JSONEq(t, `{"user":null,"state":"ready"}`, string(raw))
	assert.Equal(t, "unavailable", StateUnavailable.String())
}

func TestParseState(t *testing.T) {
	for s := StateUninitialized; s <= StateUnavailable; s++ {
		parsed, err := ParseState(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}

	_, err := ParseState("paused")
	assert.ErrorIs(t, err, ErrUnknownState)

	var decoded SessionResponse
	require.NoError(t, json.Unmarshal([]byte(`{"user":null,"state":"initializing"}`), &decoded))
	assert.Equal(t, StateInitializing, decoded.State)
}
