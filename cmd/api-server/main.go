package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/neveront/medtenance/internal/api"
	"github.com/neveront/medtenance/internal/config"
	"github.com/neveront/medtenance/internal/db"
	"github.com/neveront/medtenance/internal/identity"
	"github.com/neveront/medtenance/internal/redisclient"
	"github.com/neveront/medtenance/internal/reminder"
	"github.com/neveront/medtenance/internal/store"
	medsync "github.com/neveront/medtenance/internal/sync"
)

const version = "0.3.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	logger := newLogger(cfg.Env)
	defer logger.Sync()

	logger.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("data_dir", cfg.DataDir),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Local store first: the app must come up with or without the remote.
	slots, err := store.NewFileSlots(cfg.DataDir)
	if err != nil {
		logger.Fatal("local slots error", zap.Error(err))
	}
	local := store.New(slots, logger.Named("store"))

	// Connect Postgres (remote store)
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	// Connect Redis (notification scheduler)
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

	remote := medsync.NewPgRemote(pgPool)
	if err := remote.EnsureSchema(rootCtx); err != nil {
		logger.Fatal("remote schema error", zap.Error(err))
	}

	// Reminder projection: every medication mutation re-derives the window
	// without blocking the mutator.
	scheduler := reminder.NewRedisScheduler(rdb, cfg.LockTTL, logger.Named("scheduler"))
	projector := reminder.NewProjector(local, scheduler, cfg.ReminderWindowDays, logger.Named("projector"))
	local.OnMedicationsChanged(projector.RescheduleAsync)

	// Identity and connectivity feed the sync reconciler.
	ident := identity.NewAnonymous(local, logger.Named("identity"))
	monitor := identity.NewMonitor(logger.Named("connectivity"))
	reconciler := medsync.NewReconciler(local, remote, ident, monitor, logger.Named("sync"))

	monitor.Subscribe(func(online bool) {
		if online {
			reconciler.TriggerAsync(rootCtx, "connectivity regained")
		}
	})
	go monitor.Run(rootCtx, cfg.ProbeInterval, func(ctx context.Context) error {
		return pgPool.Ping(ctx)
	})

	// Establish identity up front and kick the first cycle once the probe
	// flips the monitor online.
	if userID, err := ident.UserID(rootCtx); err != nil {
		logger.Warn("identity not established yet", zap.Error(err))
	} else {
		logger.Info("identity ready", zap.String("user_id", userID))
		reconciler.TriggerAsync(rootCtx, "identity established")
	}

	// Launch top-up so reminders survive a restart.
	projector.RescheduleAsync()

	router := api.NewRouter(api.RouterConfig{
		Store:      local,
		Reconciler: reconciler,
		PgPool:     pgPool,
		Redis:      rdb,
		Env:        cfg.Env,
		Version:    version,
		Logger:     logger.Named("http"),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logger.Fatal("server error", zap.Error(err))
	case <-rootCtx.Done():
	}

	logger.Info("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
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
