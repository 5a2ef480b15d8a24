package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/neveront/medtenance/internal/config"
	"github.com/neveront/medtenance/internal/redisclient"
	"github.com/neveront/medtenance/internal/reminder"
	"github.com/neveront/medtenance/internal/store"
)

// The reminder worker plays the delivery side of the notification boundary:
// each tick it drains reminders whose fire instant has passed, then tops the
// projected window back up so the horizon keeps sliding forward.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	logger := newLogger(cfg.Env)
	defer logger.Sync()

	logger.Info("reminder-worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.WorkerInterval),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slots, err := store.NewFileSlots(cfg.DataDir)
	if err != nil {
		logger.Fatal("local slots error", zap.Error(err))
	}
	local := store.New(slots, logger.Named("store"))

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", zap.Error(err))
		}
	}()
	logger.Info("connected to Redis")

	scheduler := reminder.NewRedisScheduler(rdb, cfg.LockTTL, logger.Named("scheduler"))
	projector := reminder.NewProjector(local, scheduler, cfg.ReminderWindowDays, logger.Named("projector"))

	// Run once at startup
	runOnce(rootCtx, scheduler, projector, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping reminder worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, scheduler, projector, logger)
		}
	}
}

func runOnce(ctx context.Context, scheduler *reminder.RedisScheduler, projector *reminder.Projector, logger *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()

	due, err := scheduler.Due(runCtx, start)
	if err != nil {
		logger.Error("drain due reminders", zap.Error(err))
		return
	}
	for _, r := range due {
		// Delivery mechanics live outside this core; firing is the handoff.
		logger.Info("reminder fired",
			zap.String("medication_id", r.Payload.MedicationID),
			zap.String("title", r.Payload.Title),
			zap.String("body", r.Payload.Body),
			zap.Time("fire_at", r.FireAt),
		)
	}

	if err := projector.Reschedule(runCtx); err != nil {
		if errors.Is(err, reminder.ErrProjectionBusy) {
			logger.Debug("projection busy, skipping top-up")
			return
		}
		logger.Error("top-up reschedule", zap.Error(err))
		return
	}

	logger.Debug("worker run complete",
		zap.Int("fired", len(due)),
		zap.Duration("took", time.Since(start)),
	)
}

func newLogger(env string) *zap.Logger {
	var logger *zap.Logger
	var err error
	if env == "prod" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic("logger init error: " + err.Error())
	}
	return logger
}
