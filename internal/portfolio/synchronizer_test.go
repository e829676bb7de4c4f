package portfolio

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubAPI struct {
	positions     []json.RawMessage
	positionsErr  error
	cash          float64
	cashErr       error
	positionCalls int
	cashCalls     int
}

func (s *stubAPI) GetPositions(context.Context) ([]json.RawMessage, error) {
	s.positionCalls++
	return s.positions, s.positionsErr
}

func (s *stubAPI) GetCash(context.Context) (float64, error) {
	s.cashCalls++
	return s.cash, s.cashErr
}

func rawItems() []json.RawMessage {
	return []json.RawMessage{
		json.RawMessage(`{"instrument":{"ticker":"AAPL_US_EQ"},"quantity":10,"averagePricePaid":100,"currentPrice":105,"walletImpact":{"currentValue":1050,"unrealizedProfitLoss":0,"totalCost":1000}}`),
		json.RawMessage(`{"instrument":{"ticker":"VUSA_EQ"},"quantity":5,"averagePricePaid":70,"currentPrice":70,"walletImpact":{"currentValue":350,"unrealizedProfitLoss":0,"totalCost":350}}`),
	}
}

func newTestSynchronizer(t *testing.T, api API) (*Synchronizer, *Cache) {
	t.Helper()
	cache := NewCache(filepath.Join(t.TempDir(), "cache.json"), 300*time.Second, zap.NewNop())
	return NewSynchronizer(api, cache, zap.NewNop()), cache
}

func TestFetchPositionsParsesAndCaches(t *testing.T) {
	api := &stubAPI{positions: rawItems()}
	s, _ := newTestSynchronizer(t, api)

	positions, err := s.FetchPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 2)

	assert.Equal(t, "AAPL", positions[0].Ticker)
	assert.Equal(t, 50.00, positions[0].UnrealizedPL, "zero API P/L with a moved price falls back to local computation")
	assert.Equal(t, 0.00, positions[1].UnrealizedPL)
	assert.InDelta(t, 75.0, positions[0].PortfolioPct, 0.01)
	assert.InDelta(t, 25.0, positions[1].PortfolioPct, 0.01)

	// Second call inside the TTL is answered from the cache.
	_, err = s.FetchPositions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, api.positionCalls)
}

func TestFetchPositionsTTLExpiry(t *testing.T) {
	api := &stubAPI{positions: rawItems()}
	s, cache := newTestSynchronizer(t, api)

	base := time.Now()
	now := base
	cache.now = func() time.Time { return now }
	s.now = cache.now

	_, err := s.FetchPositions(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, api.positionCalls)

	now = base.Add(299 * time.Second)
	_, err = s.FetchPositions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, api.positionCalls, "no network call while the cache is fresh")

	now = base.Add(301 * time.Second)
	_, err = s.FetchPositions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, api.positionCalls, "expired cache forces one live fetch")
}

func TestFetchPositionsSkipsMalformedItems(t *testing.T) {
	items := rawItems()
	items = append(items, json.RawMessage(`{"instrument":{"ticker":"BAD"},"quantity":{"oops":true}}`))
	api := &stubAPI{positions: items}
	s, _ := newTestSynchronizer(t, api)

	positions, err := s.FetchPositions(context.Background())
	require.NoError(t, err)
	assert.Len(t, positions, 2, "malformed item is skipped, not fatal")
}

func TestSyncFatalOnPositionFailure(t *testing.T) {
	api := &stubAPI{positionsErr: errors.New("boom")}
	s, _ := newTestSynchronizer(t, api)

	snap, err := s.Sync(context.Background())
	require.Error(t, err)
	assert.Nil(t, snap)
	assert.False(t, errors.Is(err, ErrCashUnavailable))
}

func TestSyncDegradedOnCashFailure(t *testing.T) {
	api := &stubAPI{positions: rawItems(), cashErr: errors.New("timeout")}
	s, _ := newTestSynchronizer(t, api)

	snap, err := s.Sync(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCashUnavailable))
	require.NotNil(t, snap, "positions survived; the pass is a degraded success")
	assert.Len(t, snap.Positions, 2)
	assert.Equal(t, 0.0, snap.Cash)
	assert.Equal(t, snap, s.Current())
}

func TestSyncFullSuccess(t *testing.T) {
	api := &stubAPI{positions: rawItems(), cash: 123.456}
	s, _ := newTestSynchronizer(t, api)

	snap, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 123.46, snap.Cash, "cash is rounded to 2dp")
	assert.False(t, snap.CapturedAt.IsZero())
}
