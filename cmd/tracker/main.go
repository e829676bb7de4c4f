package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/portfolio-tracker/internal/app"
	"github.com/rovshanmuradov/portfolio-tracker/internal/config"
	"github.com/rovshanmuradov/portfolio-tracker/internal/events"
	"github.com/rovshanmuradov/portfolio-tracker/internal/utils/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		zap.NewExample().Fatal("Failed to load config", zap.Error(err))
	}

	log, err := logger.New(&logger.Config{
		LogFile:     "tracker.log",
		MaxSize:     50,
		MaxBackups:  3,
		MaxAge:      7,
		Compress:    true,
		Development: cfg.DebugLogging,
	})
	if err != nil {
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting portfolio tracker")

	tracker, err := app.New(ctx, cfg, log.Logger)
	if err != nil {
		log.Fatal("Failed to initialize tracker", zap.Error(err))
	}
	defer tracker.Close()

	// Presentation stand-in: mirror status lines and summaries to the log.
	tracker.Bus().SubscribeFunc(events.StatusChanged, func(_ context.Context, e events.Event) error {
		if ev, ok := e.(events.StatusChangedEvent); ok {
			log.Info("Status", zap.String("status", ev.Status))
		}
		return nil
	})
	tracker.Bus().SubscribeFunc(events.SummaryUpdated, func(_ context.Context, e events.Event) error {
		if ev, ok := e.(events.SummaryUpdatedEvent); ok {
			log.Info("Summary",
				zap.Float64("total_assets", ev.Summary.TotalAssets),
				zap.Float64("net_gain", ev.Summary.NetGain),
				zap.Float64("total_return_pct", ev.Summary.TotalReturnPct),
				zap.Strings("warnings", ev.Warnings),
				zap.String("status", ev.Status))
		}
		return nil
	})

	tracker.Refresh()

	<-ctx.Done()
	log.Info("Shutting down")
}
