package sqlitestore

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/koscakluka/ema-assistant/core/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, opts ...Option) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	store, err := Open(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, path
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	timestamp := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	turn := history.Turn{
		ID:               "turn-1",
		Query:            "what's the weather",
		Screen:           history.ScreenPayload{Format: "html", Data: []byte("<p>Sunny</p>")},
		Timestamp:        timestamp,
		IsFollowUp:       true,
		Voice:            true,
		SupplementalText: "Sunny",
		Volume:           40,
	}
	require.NoError(t, store.Save(ctx, turn))

	turns, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, turns, 1)

	got := turns[0]
	assert.Equal(t, turn.ID, got.ID)
	assert.Equal(t, turn.Query, got.Query)
	assert.Equal(t, turn.Screen, got.Screen)
	assert.True(t, got.Timestamp.Equal(timestamp))
	assert.True(t, got.IsFollowUp)
	assert.True(t, got.Voice)
	assert.Equal(t, "Sunny", got.SupplementalText)
	assert.Equal(t, 40, got.Volume)
}

func TestSaveIgnoresDuplicateIDs(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	turn := history.Turn{ID: "same", Query: "first", Timestamp: time.Now()}
	require.NoError(t, store.Save(ctx, turn))
	turn.Query = "second"
	require.NoError(t, store.Save(ctx, turn))

	turns, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "first", turns[0].Query)
}

func TestLoadReturnsMostRecentTurnsOldestFirst(t *testing.T) {
	store, _ := openTestStore(t, WithLimit(3))
	ctx := context.Background()

	for i := range 5 {
		require.NoError(t, store.Save(ctx, history.Turn{
			ID:        fmt.Sprintf("turn-%d", i),
			Query:     fmt.Sprintf("query %d", i),
			Timestamp: time.Now(),
		}))
	}

	turns, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "turn-2", turns[0].ID)
	assert.Equal(t, "turn-3", turns[1].ID)
	assert.Equal(t, "turn-4", turns[2].ID)
}

func TestTurnsSurviveReopen(t *testing.T) {
	store, path := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, history.Turn{ID: "kept", Query: "remember me", Timestamp: time.Now()}))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	turns, err := reopened.Load(ctx)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "remember me", turns[0].Query)
}

func TestClear(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, history.Turn{ID: "gone", Timestamp: time.Now()}))

	require.NoError(t, store.Clear(ctx))

	turns, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, turns)
}
