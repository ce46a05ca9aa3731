package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestUnknownUserGetsDefaults(t *testing.T) {
	store := newTestStore(t)

	record, err := store.GetUserState(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, "nobody", record.UserID)
	assert.Equal(t, "en-US", record.Locale)
	assert.Equal(t, "UTC", record.Timezone)
	assert.Empty(t, record.Preferences)
}

func TestUpsertAndLoadUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertUser(ctx, "kim", "a dry-witted butler", "de-DE", "Europe/Berlin"))
	require.NoError(t, store.SetPreference(ctx, "kim", "units", "metric"))
	require.NoError(t, store.SetPreference(ctx, "kim", "units", "imperial")) // overwrite

	record, err := store.GetUserState(ctx, "kim")
	require.NoError(t, err)
	assert.Equal(t, "a dry-witted butler", record.Persona)
	assert.Equal(t, "de-DE", record.Locale)
	assert.Equal(t, map[string]string{"units": "imperial"}, record.Preferences)
}

func TestMigrateIdempotent(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.migrate())
	require.NoError(t, store.Health())
}
