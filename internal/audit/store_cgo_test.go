//go:build cgo

package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/SevenOfNine-ai/redditgw/internal/gateway"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestRecordAndList(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	records := []gateway.CallRecord{
		{ID: "a", Tool: "get_top_posts", Mode: "read", Outcome: gateway.OutcomeOK, Duration: 120 * time.Millisecond, CreatedAt: base},
		{ID: "b", Tool: "create_post", Mode: "write", Outcome: gateway.OutcomeDenied, Message: "Write operation blocked: subreddit not in allowlist.", CreatedAt: base.Add(time.Second)},
		{ID: "c", Tool: "get_top_posts", Mode: "read", Outcome: gateway.OutcomeRateLimited, CreatedAt: base.Add(2 * time.Second)},
	}
	for _, rec := range records {
		require.NoError(t, store.Record(ctx, rec))
	}

	t.Run("NewestFirst", func(t *testing.T) {
		entries, err := store.List(ctx, Filter{})
		require.NoError(t, err)
		require.Len(t, entries, 3)
		require.Equal(t, "c", entries[0].ID)
		require.Equal(t, "a", entries[2].ID)
		require.Equal(t, int64(120), entries[2].DurationMs)
		require.True(t, base.Equal(entries[2].CreatedAt))
	})

	t.Run("FilterByTool", func(t *testing.T) {
		entries, err := store.List(ctx, Filter{Tool: "create_post"})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.Equal(t, "denied", entries[0].Outcome)
		require.Equal(t, "write", entries[0].Mode)
		require.Contains(t, entries[0].Message, "not in allowlist")
	})

	t.Run("Limit", func(t *testing.T) {
		entries, err := store.List(ctx, Filter{Limit: 1})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.Equal(t, "c", entries[0].ID)
	})
}

func TestRecordDuplicateID(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	rec := gateway.CallRecord{ID: "dup", Tool: "get_top_posts", Mode: "read", Outcome: gateway.OutcomeOK}

	require.NoError(t, store.Record(ctx, rec))
	require.Error(t, store.Record(ctx, rec))
}
