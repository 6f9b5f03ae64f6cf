package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/eid-storefront/internal/config"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "eid-cart")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "eid-cart", "[]"))
	require.NoError(t, s.Set(ctx, "auth_token", "abc"))

	v, ok, err := s.Get(ctx, "auth_token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", v)

	require.NoError(t, s.Delete(ctx, "auth_token", "never-set"))
	_, ok, err = s.Get(ctx, "auth_token")
	require.NoError(t, err)
	assert.False(t, ok)

	v, ok, err = s.Get(ctx, "eid-cart")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "[]", v)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	exerciseStore(t, NewFileStore(path))

	// a second instance sees what the first one wrote
	v, ok, err := NewFileStore(path).Get(context.Background(), "eid-cart")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "[]", v)
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	type user struct {
		Name string `json:"name"`
	}

	var got user
	ok, err := GetJSON(ctx, s, "current-user", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, SetJSON(ctx, s, "current-user", user{Name: "Rahim"}))
	ok, err = GetJSON(ctx, s, "current-user", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Rahim", got.Name)

	require.NoError(t, s.Set(ctx, "broken", "{"))
	_, err = GetJSON(ctx, s, "broken", &got)
	assert.Error(t, err)
}

func TestOpen_LocalDrivers(t *testing.T) {
	cfg := config.FromEnv()

	cfg.Storage.Driver = config.StorageMemory
	s, closer, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
	assert.NoError(t, closer.Close())

	cfg.Storage.Driver = config.StorageFile
	cfg.Storage.FilePath = filepath.Join(t.TempDir(), "s.json")
	s, closer, err = Open(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)
	assert.NoError(t, closer.Close())

	cfg.Storage.Driver = "bogus"
	_, _, err = Open(context.Background(), cfg)
	assert.Error(t, err)
}
