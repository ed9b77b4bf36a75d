package db

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zombar/feedscan/models"
)

// setupTestStore connects to the database named by FEEDSCAN_TEST_DSN and
// skips the test when the variable is unset.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("FEEDSCAN_TEST_DSN")
	if dsn == "" {
		t.Skip("FEEDSCAN_TEST_DSN not set, skipping database integration test")
	}

	store, err := New(Config{DSN: dsn, Slot: "matches_test_" + t.Name()})
	require.NoError(t, err, "failed to connect to test database")

	t.Cleanup(func() {
		_ = store.Clear(context.Background())
		store.Close()
	})

	return store
}

func TestStoreAppendDedup(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	rec := models.MatchRecord{
		URL:         "https://example.com/video/100",
		Description: "وصف الفيديو",
		Prob:        0.91,
		CollectedAt: "2025-03-01T10:00:00Z",
		Page:        "https://example.com/feed",
	}

	inserted, err := store.Append(ctx, rec)
	require.NoError(t, err)
	assert.True(t, inserted, "first append should insert")

	// same record again: rejected, list grows by exactly one overall
	inserted, err = store.Append(ctx, rec)
	require.NoError(t, err)
	assert.False(t, inserted, "duplicate append should be skipped")

	// different URL, identical non-empty description: rejected
	byDesc := rec
	byDesc.URL = "https://example.com/video/101"
	inserted, err = store.Append(ctx, byDesc)
	require.NoError(t, err)
	assert.False(t, inserted, "description duplicate should be skipped")

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, rec, list[0])
}

func TestStoreInsertionOrderAndClear(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	urls := []string{
		"https://example.com/video/1",
		"https://example.com/video/2",
		"https://example.com/video/3",
	}
	for i, u := range urls {
		_, err := store.Append(ctx, models.MatchRecord{
			URL:         u,
			Description: "وصف " + u,
			Prob:        0.7 + float64(i)/100,
			CollectedAt: "2025-03-01T10:00:00Z",
			Page:        "https://example.com/feed",
		})
		require.NoError(t, err)
	}

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i, u := range urls {
		assert.Equal(t, u, list[i].URL, "insertion order must be preserved")
	}

	require.NoError(t, store.Clear(ctx))

	list, err = store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
