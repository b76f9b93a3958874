package pricecache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market_pulse_backend/models"
)

func TestMemoryStoreTTL(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	snap := models.Snapshot{AssetClass: models.AssetClassCrypto, Assets: []models.CachedAsset{asset("a", 1, 1)}}
	require.NoError(t, store.Set(context.Background(), "k", snap, time.Minute))

	got, err := store.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Len(t, got.Assets, 1)

	now = now.Add(time.Minute)
	_, err = store.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrMiss)

	_, err = store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryStoreCopiesOnWrite(t *testing.T) {
	store := NewMemoryStore()
	assets := []models.CachedAsset{asset("a", 1, 1)}
	require.NoError(t, store.Set(context.Background(), "k", models.Snapshot{Assets: assets}, 0))
	assets[0].ID = "mutated"

	got, err := store.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "a", got.Assets[0].ID)
}

func TestRedisStoreRoundTripAndExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := NewRedisStore(context.Background(), &redis.Options{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	snap := models.Snapshot{
		AssetClass: models.AssetClassEquity,
		Assets: []models.CachedAsset{{
			ID: "AAPL", AssetClass: models.AssetClassEquity, Symbol: "AAPL",
			Price: decimal.RequireFromString("231.45"),
		}},
		UpdatedAt: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Set(context.Background(), "market:equity", snap, 30*time.Second))

	got, err := store.Get(context.Background(), "market:equity")
	require.NoError(t, err)
	require.Len(t, got.Assets, 1)
	assert.True(t, got.Assets[0].Price.Equal(decimal.RequireFromString("231.45")))
	assert.True(t, got.UpdatedAt.Equal(snap.UpdatedAt))

	mr.FastForward(31 * time.Second)
	_, err = store.Get(context.Background(), "market:equity")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestNewRedisStoreFailsWithoutServer(t *testing.T) {
	_, err := NewRedisStore(context.Background(), &redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond})
	assert.Error(t, err)
}
