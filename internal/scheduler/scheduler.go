// Package scheduler gates synchronization passes behind a minimum
// inter-request gap, runs the cooldown countdown, and manages the single
// auto-retry after a degraded pass.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rovshanmuradov/portfolio-tracker/internal/analytics"
	"github.com/rovshanmuradov/portfolio-tracker/internal/events"
	"github.com/rovshanmuradov/portfolio-tracker/internal/portfolio"
	"go.uber.org/zap"
)

// State is the scheduler's refresh state.
type State int

const (
	StateIdle State = iota
	StateCooling
	StateDegradedPendingRetry
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCooling:
		return "cooling"
	case StateDegradedPendingRetry:
		return "degraded_pending_retry"
	}
	return "unknown"
}

// Syncer runs one synchronization pass. An error wrapping
// portfolio.ErrCashUnavailable is a degraded success; any other error is
// fatal for the pass.
type Syncer interface {
	Sync(ctx context.Context) (*portfolio.Snapshot, error)
}

// Config carries the scheduling intervals.
type Config struct {
	RefreshGap     time.Duration // minimum gap between live fetch attempts
	RetryDelay     time.Duration // delay before the single degraded-pass retry
	StaleThreshold time.Duration // age after which data is reported stale
	CountdownTick  time.Duration // countdown resolution, 1s in production
}

// RefreshState is the read-only view of the scheduler's bookkeeping.
type RefreshState struct {
	State              State
	CooldownEnd        time.Time
	LastSuccess        time.Time
	AutoRetryScheduled bool
}

// Scheduler owns the refresh bookkeeping for the process lifetime.
type Scheduler struct {
	cfg    Config
	syncer Syncer
	bus    *events.Bus
	logger *zap.Logger
	now    func() time.Time

	mu                 sync.Mutex
	state              State
	cooldownEnd        time.Time
	lastSuccess        time.Time
	lastTotalAssets    float64
	autoRetryScheduled bool
	countdown          *time.Timer
	retryTimer         *time.Timer
}

// New creates a scheduler publishing its results on bus.
func New(cfg Config, syncer Syncer, bus *events.Bus, logger *zap.Logger) *Scheduler {
	if cfg.CountdownTick <= 0 {
		cfg.CountdownTick = time.Second
	}
	return &Scheduler{
		cfg:    cfg,
		syncer: syncer,
		bus:    bus,
		logger: logger.Named("scheduler"),
		now:    time.Now,
	}
}

// RequestRefresh asks for a synchronization pass. Inside the cooldown window
// it starts (or restarts) the countdown instead of fetching; otherwise it
// arms the gap immediately, so a burst of requests cannot bypass it even if
// the fetch fails fast, and runs the pass on a worker goroutine.
func (s *Scheduler) RequestRefresh(ctx context.Context) {
	s.mu.Lock()
	now := s.now()
	if now.Before(s.cooldownEnd) {
		remaining := s.cooldownEnd.Sub(now)
		s.state = StateCooling
		s.mu.Unlock()

		secondsLeft := int(remaining/s.cfg.CountdownTick) + 1
		s.logger.Debug("Refresh gated by cooldown", zap.Int("seconds_left", secondsLeft))
		s.runCountdown(ctx, secondsLeft)
		return
	}
	s.cooldownEnd = now.Add(s.cfg.RefreshGap)
	s.mu.Unlock()

	go s.runPass(ctx, false)
}

// runCountdown publishes one tick and re-arms the timer. Requesting a refresh
// while counting down cancels and replaces the pending tick rather than
// stacking timers. At zero it re-enters RequestRefresh with the gate open.
func (s *Scheduler) runCountdown(ctx context.Context, secondsLeft int) {
	if secondsLeft <= 0 {
		_ = s.bus.Publish(events.StatusChangedEvent{
			BaseEvent: events.NewBase(events.StatusChanged),
			Status:    "Auto-refreshing...",
		})
		s.RequestRefresh(ctx)
		return
	}

	_ = s.bus.Publish(events.CountdownTickEvent{
		BaseEvent:   events.NewBase(events.CountdownTick),
		SecondsLeft: secondsLeft,
	})

	s.mu.Lock()
	if s.countdown != nil {
		s.countdown.Stop()
	}
	s.countdown = time.AfterFunc(s.cfg.CountdownTick, func() {
		s.runCountdown(ctx, secondsLeft-1)
	})
	s.mu.Unlock()
}

// runPass executes one synchronization pass. isAutoRetry marks the single
// gate-bypassing retry of a degraded pass; it never re-arms another retry.
func (s *Scheduler) runPass(ctx context.Context, isAutoRetry bool) {
	log := s.logger.With(zap.Bool("auto_retry", isAutoRetry))
	log.Info("Refresh pass started")

	_ = s.bus.Publish(events.StatusChangedEvent{
		BaseEvent: events.NewBase(events.StatusChanged),
		Status:    "Fetching...",
	})

	snap, err := s.syncer.Sync(ctx)

	if isAutoRetry {
		s.mu.Lock()
		s.autoRetryScheduled = false
		s.mu.Unlock()
	}

	switch {
	case err == nil:
		s.completeSuccess(snap)
		log.Info("Refresh pass completed")

	case errors.Is(err, portfolio.ErrCashUnavailable):
		s.completeDegraded(ctx, err, isAutoRetry)
		log.Warn("Refresh pass degraded", zap.Error(err))

	default:
		// Fatal for this cycle: success bookkeeping stays untouched and the
		// next attempt goes through the normal scheduler path.
		s.mu.Lock()
		if s.state == StateDegradedPendingRetry && !s.autoRetryScheduled {
			s.state = StateIdle
		}
		s.mu.Unlock()
		_ = s.bus.Publish(events.StatusChangedEvent{
			BaseEvent: events.NewBase(events.StatusChanged),
			Status:    fmt.Sprintf("Error: %v", err),
			Err:       err,
		})
		log.Error("Refresh pass failed", zap.Error(err))
	}
}

func (s *Scheduler) completeSuccess(snap *portfolio.Snapshot) {
	totalAssets := snap.Cash
	for _, p := range snap.Positions {
		totalAssets += p.EstValue
	}

	s.mu.Lock()
	now := s.now()
	s.lastSuccess = now
	s.cooldownEnd = now.Add(s.cfg.RefreshGap)
	s.autoRetryScheduled = false
	s.state = StateIdle
	sessionChange := analytics.SessionChange(totalAssets, s.lastTotalAssets)
	s.lastTotalAssets = totalAssets
	s.mu.Unlock()

	_ = s.bus.Publish(events.SnapshotUpdatedEvent{
		BaseEvent:     events.NewBase(events.SnapshotUpdated),
		Snapshot:      snap,
		TotalAssets:   totalAssets,
		SessionChange: sessionChange,
	})
}

func (s *Scheduler) completeDegraded(ctx context.Context, err error, isAutoRetry bool) {
	s.mu.Lock()
	if isAutoRetry {
		// The single retry also degraded; no further retry is armed.
		s.state = StateIdle
	} else {
		s.state = StateDegradedPendingRetry
		s.autoRetryScheduled = true
		if s.retryTimer != nil {
			s.retryTimer.Stop()
		}
		s.retryTimer = time.AfterFunc(s.cfg.RetryDelay, func() {
			// The retry bypasses the cooldown gate and is marked so it does
			// not arm a second retry whatever its outcome.
			s.runPass(ctx, true)
		})
	}
	s.mu.Unlock()

	_ = s.bus.Publish(events.StatusChangedEvent{
		BaseEvent: events.NewBase(events.StatusChanged),
		Status:    "Cash fetch failed – auto-retrying...",
		Err:       err,
	})
}

// Stale reports whether the last successful refresh is older than the stale
// threshold. Purely informational; it never triggers a refresh.
func (s *Scheduler) Stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastSuccess.IsZero() {
		return true
	}
	return s.now().Sub(s.lastSuccess) > s.cfg.StaleThreshold
}

// Snapshot returns the current refresh bookkeeping.
func (s *Scheduler) Snapshot() RefreshState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return RefreshState{
		State:              s.state,
		CooldownEnd:        s.cooldownEnd,
		LastSuccess:        s.lastSuccess,
		AutoRetryScheduled: s.autoRetryScheduled,
	}
}

// Stop cancels any pending countdown or retry timer.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countdown != nil {
		s.countdown.Stop()
		s.countdown = nil
	}
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
}
