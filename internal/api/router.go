package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/neveront/medtenance/internal/medication"
	"github.com/neveront/medtenance/internal/store"
	medsync "github.com/neveront/medtenance/internal/sync"
)

type RouterConfig struct {
	Store      *store.LocalStore
	Reconciler *medsync.Reconciler
	PgPool     *pgxpool.Pool
	Redis      *redis.Client
	Env        string
	Version    string
	Logger     *zap.Logger
	Now        func() time.Time
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	deps := Deps{Store: cfg.Store, Reconciler: cfg.Reconciler, Now: cfg.Now}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Post("/medications", createMedicationHandler(deps))
	r.Get("/medications", listMedicationsHandler(deps))
	r.Get("/medications/{id}", getMedicationHandler(deps))
	r.Put("/medications/{id}", updateMedicationHandler(deps))
	r.Delete("/medications/{id}", deleteMedicationHandler(deps))

	r.Get("/schedule", scheduleHandler(deps))
	r.Get("/adherence/weekly", weeklyAdherenceHandler(deps))
	r.Get("/adherence/summary", adherenceSummaryHandler(deps))

	r.Get("/logs", listLogsHandler(deps))
	r.Post("/logs", createLogHandler(deps))
	r.Post("/logs/{id}/taken", transitionLogHandler(deps, medication.DoseTaken))
	r.Post("/logs/{id}/missed", transitionLogHandler(deps, medication.DoseMissed))

	r.Post("/sync", syncHandler(deps))

	return r
}
