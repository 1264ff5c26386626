package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token_cache.json")
	store := NewFileStore(path)

	now := time.Unix(1700000000, 0)
	want := Session{
		Token:     "tok-file",
		ExpiresAt: now.Add(24 * time.Hour),
		CreatedAt: now,
	}
	require.NoError(t, store.Save(want))

	got, ok, err := store.Load(now)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.Token, got.Token)
	assert.True(t, want.ExpiresAt.Equal(got.ExpiresAt))
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
}

func TestFileStoreMissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "absent.json"))

	_, ok, err := store.Load(time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStoreExpiredToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token_cache.json")
	store := NewFileStore(path)

	now := time.Unix(1700000000, 0)
	require.NoError(t, store.Save(Session{
		Token:     "old",
		ExpiresAt: now.Add(-time.Minute),
		CreatedAt: now.Add(-24 * time.Hour),
	}))

	_, ok, err := store.Load(now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token_cache.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	store := NewFileStore(path)
	_, _, err := store.Load(time.Now())
	assert.Error(t, err)
}
