package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rentals/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) (*InMemoryIdempotencyStore, *time.Time) {
	t.Helper()
	store := NewInMemoryIdempotencyStore(time.Hour)
	t.Cleanup(func() { _ = store.Close() })
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	return store, &now
}

func TestInMemoryIdempotencyStore(t *testing.T) {
	ctx := context.Background()

	t.Run("first mark wins", func(t *testing.T) {
		store, _ := newTestStore(t)

		ok, err := store.MarkProcessed(ctx, "k1", time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.MarkProcessed(ctx, "k1", time.Hour)
		require.NoError(t, err)
		assert.False(t, ok)

		processed, err := store.IsProcessed(ctx, "k1")
		require.NoError(t, err)
		assert.True(t, processed)
	})

	t.Run("expired keys can be marked again", func(t *testing.T) {
		store, now := newTestStore(t)

		ok, _ := store.MarkProcessed(ctx, "k1", time.Minute)
		require.True(t, ok)

		*now = now.Add(2 * time.Minute)
		processed, _ := store.IsProcessed(ctx, "k1")
		assert.False(t, processed)

		ok, _ = store.MarkProcessed(ctx, "k1", time.Minute)
		assert.True(t, ok)
	})

	t.Run("release forgets the key", func(t *testing.T) {
		store, _ := newTestStore(t)

		_, _ = store.MarkProcessed(ctx, "k1", time.Hour)
		require.NoError(t, store.Release(ctx, "k1"))

		ok, _ := store.MarkProcessed(ctx, "k1", time.Hour)
		assert.True(t, ok)
	})

	t.Run("sweep drops expired keys only", func(t *testing.T) {
		store, now := newTestStore(t)

		_, _ = store.MarkProcessed(ctx, "short", time.Minute)
		_, _ = store.MarkProcessed(ctx, "long", time.Hour)
		*now = now.Add(10 * time.Minute)

		store.sweep()
		assert.Equal(t, 1, store.Size())
	})

	t.Run("exactly one concurrent caller wins", func(t *testing.T) {
		store, _ := newTestStore(t)

		var wins atomic.Int32
		var wg sync.WaitGroup
		for range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if ok, _ := store.MarkProcessed(ctx, "race", time.Hour); ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})

	t.Run("close is idempotent", func(t *testing.T) {
		store := NewInMemoryIdempotencyStore(0)
		assert.NoError(t, store.Close())
		assert.NoError(t, store.Close())
	})
}

func TestNewIdempotencyStore(t *testing.T) {
	t.Run("in-memory when redis is disabled", func(t *testing.T) {
		store, err := NewIdempotencyStore(context.Background(), config.RedisConfig{}, "", false, zap.NewNop())
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &InMemoryIdempotencyStore{}, store)
	})

	t.Run("unreachable redis is an error in production", func(t *testing.T) {
		cfg := config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 1}
		_, err := NewIdempotencyStore(context.Background(), cfg, "", true, zap.NewNop())
		assert.Error(t, err)
	})

	t.Run("unreachable redis falls back outside production", func(t *testing.T) {
		cfg := config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 1}
		store, err := NewIdempotencyStore(context.Background(), cfg, "", false, zap.NewNop())
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &InMemoryIdempotencyStore{}, store)
	})
}
