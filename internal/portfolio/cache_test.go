package portfolio

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testPositions() []Position {
	return []Position{
		{Ticker: "AAPL", Quantity: 10, AvgPrice: 100, CurrentPrice: 105, EstValue: 1050, UnrealizedPL: 50, TotalCost: 1000, PortfolioPct: 100},
	}
}

func TestCacheRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions_cache.json")
	cache := NewCache(path, 300*time.Second, zap.NewNop())

	require.NoError(t, cache.Save(testPositions()))

	loaded, ok := cache.Load()
	require.True(t, ok)
	assert.Equal(t, testPositions(), loaded)

	// No temp file left behind after the atomic replace.
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestCacheTTL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions_cache.json")
	cache := NewCache(path, 300*time.Second, zap.NewNop())

	base := time.Now()
	now := base
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.Save(testPositions()))

	now = base.Add(299 * time.Second)
	_, ok := cache.Load()
	assert.True(t, ok, "cache should be fresh at t=299")

	now = base.Add(301 * time.Second)
	_, ok = cache.Load()
	assert.False(t, ok, "cache should be expired at t=301")
}

func TestCacheReloadsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions_cache.json")
	first := NewCache(path, 300*time.Second, zap.NewNop())
	require.NoError(t, first.Save(testPositions()))

	// A fresh instance has an empty memory layer and must read the file.
	second := NewCache(path, 300*time.Second, zap.NewNop())
	loaded, ok := second.Load()
	require.True(t, ok)
	assert.Equal(t, testPositions(), loaded)
}

func TestCacheMissing(t *testing.T) {
	cache := NewCache(filepath.Join(t.TempDir(), "nope.json"), time.Second, zap.NewNop())
	_, ok := cache.Load()
	assert.False(t, ok)
}

func TestCacheUnreadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions_cache.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	cache := NewCache(path, time.Minute, zap.NewNop())
	_, ok := cache.Load()
	assert.False(t, ok)
}
