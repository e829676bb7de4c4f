package portfolio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rovshanmuradov/portfolio-tracker/internal/broker"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrCashUnavailable marks a pass where positions were fetched but the cash
// balance was not. Callers treat it as a degraded success.
var ErrCashUnavailable = errors.New("portfolio: cash balance unavailable")

// API is the broker surface the synchronizer consumes.
type API interface {
	GetPositions(ctx context.Context) ([]json.RawMessage, error)
	GetCash(ctx context.Context) (float64, error)
}

// Synchronizer keeps the live position and cash state in sync with the
// broker, answering from the cache while it is fresh.
type Synchronizer struct {
	api    API
	cache  *Cache
	logger *zap.Logger
	group  singleflight.Group
	now    func() time.Time

	mu      sync.RWMutex
	current *Snapshot
}

// NewSynchronizer creates a synchronizer over the given API and cache.
func NewSynchronizer(api API, cache *Cache, logger *zap.Logger) *Synchronizer {
	return &Synchronizer{
		api:    api,
		cache:  cache,
		logger: logger.Named("synchronizer"),
		now:    time.Now,
	}
}

// FetchPositions returns cached positions while the cache is within its TTL,
// otherwise performs one live fetch. Concurrent callers share a single
// in-flight fetch.
func (s *Synchronizer) FetchPositions(ctx context.Context) ([]Position, error) {
	if cached, ok := s.cache.Load(); ok {
		s.logger.Debug("Using cached positions", zap.Int("count", len(cached)))
		return cached, nil
	}

	v, err, shared := s.group.Do("positions", func() (interface{}, error) {
		return s.fetchLive(ctx)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.Debug("Joined in-flight position fetch")
	}
	return v.([]Position), nil
}

func (s *Synchronizer) fetchLive(ctx context.Context) ([]Position, error) {
	items, err := s.api.GetPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch positions: %w", err)
	}

	positions := make([]Position, 0, len(items))
	skipped := 0
	fallbackUsed := 0
	for _, raw := range items {
		var item broker.PositionItem
		if err := json.Unmarshal(raw, &item); err != nil {
			skipped++
			s.logger.Debug("Skipping malformed position item", zap.Error(err))
			continue
		}
		pos, usedFallback := newPosition(item)
		if usedFallback {
			fallbackUsed++
			s.logger.Debug("Recomputed implausible zero P/L",
				zap.String("ticker", pos.Ticker),
				zap.Float64("pl", pos.UnrealizedPL))
		}
		positions = append(positions, pos)
	}

	ComputePercentages(positions)

	if skipped > 0 {
		s.logger.Warn("Skipped unparsable position items", zap.Int("skipped", skipped))
	}
	if fallbackUsed > 0 {
		s.logger.Info("Fallback P/L used", zap.Int("positions", fallbackUsed))
	}

	if err := s.cache.Save(positions); err != nil {
		// A cache write failure degrades the next read, not this pass.
		s.logger.Warn("Failed to persist position cache", zap.Error(err))
	}

	s.logger.Info("Positions synchronized", zap.Int("count", len(positions)))
	return positions, nil
}

// FetchCash returns the rounded free cash balance.
func (s *Synchronizer) FetchCash(ctx context.Context) (float64, error) {
	cash, err := s.api.GetCash(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch cash: %w", err)
	}
	return RoundMoney(cash), nil
}

// Sync runs one full pass: positions, then cash. A position failure is fatal
// and returns a nil snapshot. A cash failure still yields a snapshot (with
// the previous semantics of cash 0) and an error wrapping ErrCashUnavailable.
func (s *Synchronizer) Sync(ctx context.Context) (*Snapshot, error) {
	positions, err := s.FetchPositions(ctx)
	if err != nil {
		return nil, err
	}

	cash, cashErr := s.FetchCash(ctx)
	snap := &Snapshot{
		Positions:  positions,
		Cash:       cash,
		CapturedAt: s.now(),
	}
	s.setCurrent(snap)

	if cashErr != nil {
		return snap, fmt.Errorf("%w: %v", ErrCashUnavailable, cashErr)
	}
	return snap, nil
}

func (s *Synchronizer) setCurrent(snap *Snapshot) {
	s.mu.Lock()
	s.current = snap
	s.mu.Unlock()
}

// Current returns the most recent snapshot, or nil before the first pass.
func (s *Synchronizer) Current() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}
