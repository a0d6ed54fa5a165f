package identity

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	base := NewError(CodeUserNotFound, errors.New("EMAIL_NOT_FOUND"))
	wrapped := fmt.Errorf("sign in: %w", base)

	assert.Equal(t, CodeUserNotFound, CodeOf(wrapped))
	assert.Equal(t, "", CodeOf(errors.New("plain")))
	assert.Equal(t, "auth/user-not-found: EMAIL_NOT_FOUND", base.Error())
	assert.Equal(t, CodeWeakPassword, NewError(CodeWeakPassword, nil).Error())
}

func TestEmitterReplaysCurrentOnSubscribe(t *testing.T) {
	var emitter Emitter
	emitter.Set(&Identity{Email: "a@x.com", UID: "u1"})

	var got []*Identity
	unsubscribe := emitter.Subscribe(func(id *Identity) {
		got = append(got, id)
	})
	defer unsubscribe()

	require.Len(t, got, 1)
	assert.Equal(t, &Identity{Email: "a@x.com", UID: "u1"}, got[0])
}

func TestEmitterOrderAndUnsubscribe(t *testing.T) {
	var emitter Emitter

	var first, second []*Identity
	unsubscribeFirst := emitter.Subscribe(func(id *Identity) {
		first = append(first, id)
	})
	emitter.Subscribe(func(id *Identity) {
		second = append(second, id)
	})

	emitter.Set(&Identity{UID: "u1"})
	unsubscribeFirst()
	unsubscribeFirst()
	emitter.Set(nil)

	assert.Equal(t, []*Identity{nil, {UID: "u1"}}, first)
	assert.Equal(t, []*Identity{nil, {UID: "u1"}, nil}, second)
	assert.Equal(t, 1, emitter.Subscribers())
	assert.Nil(t, emitter.Current())
}

func TestEmitterCallbackMayUnsubscribeItself(t *testing.T) {
	var emitter Emitter

	calls := 0
	var unsubscribe func()
	unsubscribe = emitter.Subscribe(func(id *Identity) {
		calls++
		if id != nil {
			unsubscribe()
		}
	})

	emitter.Set(&Identity{UID: "u1"})
	emitter.Set(&Identity{UID: "u2"})

	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, emitter.Subscribers())
}

func TestEmitterHandsOutCopies(t *testing.T) {
	var emitter Emitter
	source := &Identity{UID: "u1"}
	emitter.Set(source)
	source.UID = "mutated"

	assert.Equal(t, "u1", emitter.Current().UID)
}
