package sqlitedb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/sanasto/internal/db/storage/storagetest"
)

func TestSQLiteDB(t *testing.T) {
	db, err := New(context.Background(), filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	defer func() {
		require.NoError(t, db.Close())
	}()

	storagetest.Run(t, db)
}

func TestSQLiteDBSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")

	first, err := New(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, first.Set(context.Background(), "@guest_user", `{"isGuest":true}`))
	require.NoError(t, first.Close())

	second, err := New(context.Background(), path)
	require.NoError(t, err)
	defer second.Close()

	value, found, err := second.Get(context.Background(), "@guest_user")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"isGuest":true}`, value)
}

func TestSQLiteDBRequiresPath(t *testing.T) {
	_, err := New(context.Background(), "  ")
	assert.Error(t, err)
}
