package archive

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecords(base time.Time) []Record {
	return []Record{
		NewRecord("m-1", "dead-letter", "emails", "welcome",
			map[string]any{"to": "a@example.com"}, 3, "smtp refused", base),
		NewRecord("m-2", "dead-letter", "emails", "welcome",
			map[string]any{"to": "b@example.com"}, 3, "smtp refused", base.Add(time.Minute)),
		NewRecord("m-3", "dead-letter", "analytics", "track",
			nil, 5, "schema mismatch", base.Add(2*time.Minute)),
	}
}

func runStoreTests(t *testing.T, store Store) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	for _, rec := range testRecords(base) {
		require.NoError(t, store.Append(ctx, rec))
	}

	t.Run("list all oldest first", func(t *testing.T) {
		got, err := store.List(ctx, Filter{})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "m-1", got[0].MessageID)
		assert.Equal(t, "m-3", got[2].MessageID)
		assert.Equal(t, "emails", got[0].OriginQueue)
		assert.Contains(t, string(got[0].Payload), "a@example.com")
	})

	t.Run("filter by type", func(t *testing.T) {
		got, err := store.List(ctx, Filter{Type: "track"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "m-3", got[0].MessageID)
		assert.Equal(t, 5, got[0].Attempts)
	})

	t.Run("filter by since", func(t *testing.T) {
		got, err := store.List(ctx, Filter{Since: base.Add(time.Minute)})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("limit", func(t *testing.T) {
		got, err := store.List(ctx, Filter{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("count", func(t *testing.T) {
		n, err := store.Count(ctx, Filter{Queue: "dead-letter"})
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		n, err = store.Count(ctx, Filter{Type: "welcome"})
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("closed store rejects operations", func(t *testing.T) {
		require.NoError(t, store.Close())

		require.ErrorIs(t, store.Append(ctx, Record{MessageID: "m-4"}), ErrStoreClosed)
		_, err := store.List(ctx, Filter{})
		require.ErrorIs(t, err, ErrStoreClosed)
		_, err = store.Count(ctx, Filter{})
		require.ErrorIs(t, err, ErrStoreClosed)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreTests(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	runStoreTests(t, store)
}

func TestSQLiteStoreCloseIdempotent(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)

	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
}
