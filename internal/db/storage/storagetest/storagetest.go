// Package storagetest holds the behaviour every storage backend must share.
// Backend packages call Run from their own tests.
package storagetest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/sanasto/internal/db/storage"
)

// Run exercises get/set/remove semantics against theStorage.
// The store is expected to start empty for the keys used here.
func Run(t *testing.T, theStorage storage.Storage) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		value, found, err := theStorage.Get(ctx, "@missing")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Empty(t, value)
	})

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, theStorage.Set(ctx, "@user_data", `{"email":"a@x.com"}`))

		value, found, err := theStorage.Get(ctx, "@user_data")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, `{"email":"a@x.com"}`, value)
	})

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, theStorage.Set(ctx, "@user_data", "first"))
		require.NoError(t, theStorage.Set(ctx, "@user_data", "second"))

		value, found, err := theStorage.Get(ctx, "@user_data")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "second", value)
	})

	t.Run("remove", func(t *testing.T) {
		require.NoError(t, theStorage.Set(ctx, "@guest_user", "guest"))
		require.NoError(t, theStorage.Remove(ctx, "@guest_user"))

		_, found, err := theStorage.Get(ctx, "@guest_user")
		require.NoError(t, err)
		assert.False(t, found)

		assert.NoError(t, theStorage.Remove(ctx, "@guest_user"), "removing a missing key is not an error")
	})

	t.Run("empty key", func(t *testing.T) {
		assert.ErrorIs(t, theStorage.Set(ctx, "", "x"), storage.ErrEmptyKey)
		_, _, err := theStorage.Get(ctx, "")
		assert.ErrorIs(t, err, storage.ErrEmptyKey)
		assert.ErrorIs(t, theStorage.Remove(ctx, ""), storage.ErrEmptyKey)
	})

	t.Run("concurrent writers", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				key := "@concurrent"
				if i%2 == 0 {
					assert.NoError(t, theStorage.Set(ctx, key, "v"))
				} else {
					assert.NoError(t, theStorage.Remove(ctx, key))
				}
			}()
		}
		wg.Wait()
		require.NoError(t, theStorage.Remove(ctx, "@concurrent"))
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, theStorage.Ping(ctx))
	})
}
