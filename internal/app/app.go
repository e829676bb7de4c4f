// Package app wires the tracker together: configuration, broker client,
// synchronizer, ledger, scheduler, and the owning event loop.
package app

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/rovshanmuradov/portfolio-tracker/internal/analytics"
	"github.com/rovshanmuradov/portfolio-tracker/internal/broker"
	"github.com/rovshanmuradov/portfolio-tracker/internal/config"
	"github.com/rovshanmuradov/portfolio-tracker/internal/events"
	"github.com/rovshanmuradov/portfolio-tracker/internal/ledger"
	"github.com/rovshanmuradov/portfolio-tracker/internal/portfolio"
	"github.com/rovshanmuradov/portfolio-tracker/internal/scheduler"
	"go.uber.org/zap"
)

const (
	ledgerFile = "transactions.csv"
	cacheFile  = "positions_cache.json"
)

// App owns all mutable application state. Mutation and consumer notification
// happen on the event bus's single processing goroutine; worker goroutines
// only post results.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	bus          *events.Bus
	store        *ledger.Store
	reconciler   *ledger.Reconciler
	exporter     *ledger.Exporter
	synchronizer *portfolio.Synchronizer
	scheduler    *scheduler.Scheduler

	ctx    context.Context
	cancel context.CancelFunc
}

// New assembles the application from configuration.
func New(parentCtx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	ctx, cancel := context.WithCancel(parentCtx)

	store, err := ledger.Open(filepath.Join(cfg.DataDir, ledgerFile), logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	client := broker.NewClient(broker.ClientConfig{
		BaseURL:          cfg.BaseURL,
		APIKey:           cfg.APIKey,
		APISecret:        cfg.APISecret,
		PositionsTimeout: time.Duration(cfg.PositionsTimeout) * time.Second,
		CashTimeout:      time.Duration(cfg.CashTimeout) * time.Second,
	}, logger)

	cache := portfolio.NewCache(
		filepath.Join(cfg.DataDir, cacheFile),
		time.Duration(cfg.CacheTTLSeconds)*time.Second,
		logger,
	)
	synchronizer := portfolio.NewSynchronizer(client, cache, logger)

	bus := events.NewBus(logger, 64)

	sched := scheduler.New(scheduler.Config{
		RefreshGap:     time.Duration(cfg.RefreshGapSeconds) * time.Second,
		RetryDelay:     time.Duration(cfg.RetryDelaySeconds) * time.Second,
		StaleThreshold: time.Duration(cfg.StaleThresholdMin) * time.Minute,
	}, synchronizer, bus, logger)

	a := &App{
		cfg:          cfg,
		logger:       logger.Named("app"),
		bus:          bus,
		store:        store,
		reconciler:   ledger.NewReconciler(store, logger),
		exporter:     ledger.NewExporter(logger),
		synchronizer: synchronizer,
		scheduler:    sched,
		ctx:          ctx,
		cancel:       cancel,
	}

	// Every successful snapshot is folded into a fresh summary on the owning
	// goroutine.
	bus.Subscribe(events.SnapshotUpdated, events.HandlerFunc(a.onSnapshot))

	return a, nil
}

// Bus exposes the event bus for presentation-layer subscriptions.
func (a *App) Bus() *events.Bus { return a.bus }

// Ledger exposes the ledger store for read-only presentation access.
func (a *App) Ledger() *ledger.Store { return a.store }

// RefreshState returns the scheduler's current bookkeeping.
func (a *App) RefreshState() scheduler.RefreshState { return a.scheduler.Snapshot() }

// Refresh requests a synchronization pass through the scheduler gate.
func (a *App) Refresh() {
	a.scheduler.RequestRefresh(a.ctx)
}

// ImportTransactions reconciles an external export into the ledger. When new
// rows were added, a refresh pass is requested so the summary reflects them.
func (a *App) ImportTransactions(src io.Reader) (int, error) {
	added, err := a.reconciler.ImportCSV(src)
	if err != nil {
		return 0, err
	}
	if added == 0 {
		a.logger.Info("No new transactions found")
		return 0, nil
	}

	_ = a.bus.Publish(events.LedgerUpdatedEvent{
		BaseEvent: events.NewBase(events.LedgerUpdated),
		Added:     added,
		Total:     a.store.Len(),
	})
	a.Refresh()
	return added, nil
}

// ExportLedger writes the ledger (optionally filtered) to disk.
func (a *App) ExportLedger(options ledger.ExportOptions) (string, error) {
	return a.exporter.Export(a.store.All(), options)
}

// ClearLedger wipes the ledger on explicit user request.
func (a *App) ClearLedger() error {
	return a.store.Clear()
}

// onSnapshot derives the summary, warnings, and status from a fresh snapshot.
// Runs on the bus's owning goroutine.
func (a *App) onSnapshot(_ context.Context, event events.Event) error {
	e, ok := event.(events.SnapshotUpdatedEvent)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", event)
	}

	now := time.Now()
	summary := analytics.Compute(a.store.All(), e.Snapshot, now)
	state := a.scheduler.Snapshot()
	warnings := analytics.Warnings(e.Snapshot, state.LastSuccess, now,
		time.Duration(a.cfg.StaleThresholdMin)*time.Minute, a.cfg.ConcentrationPct)
	status := fmt.Sprintf("Last refresh: %s | %s",
		now.Format("2006-01-02 15:04:05"), analytics.Status(e.Snapshot.Positions))

	return a.bus.PublishSync(a.ctx, events.SummaryUpdatedEvent{
		BaseEvent: events.NewBase(events.SummaryUpdated),
		Summary:   summary,
		Warnings:  warnings,
		Status:    status,
	})
}

// Close stops the scheduler and drains the event bus.
func (a *App) Close() error {
	a.scheduler.Stop()
	a.cancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.bus.Shutdown(shutdownCtx)
}
