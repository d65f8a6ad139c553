package floe

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/avensk/floe/internal/cache"
	"github.com/avensk/floe/internal/engine"
	"github.com/avensk/floe/internal/orchestrator"
	"github.com/avensk/floe/internal/persistence"
	"github.com/avensk/floe/internal/tracker"
	"github.com/avensk/floe/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine               = api.Engine
	Orchestrator         = api.Orchestrator
	FlowDefinition       = api.FlowDefinition
	Node                 = api.Node
	Edge                 = api.Edge
	FlowInstance         = api.FlowInstance
	FlowResult           = api.FlowResult
	ExecutionContext     = api.ExecutionContext
	ConditionalWorkflow  = api.ConditionalWorkflow
	OrchestratorMetrics  = api.OrchestratorMetrics
	CacheStats           = api.CacheStats
	Status               = api.Status
	StepContext          = api.StepContext
	HandlerFunc          = api.HandlerFunc
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Re-export common observer helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// Re-export status values for convenience.

const (
	StatusPending   = api.StatusPending
	StatusRunning   = api.StatusRunning
	StatusCompleted = api.StatusCompleted
	StatusFailed    = api.StatusFailed
	StatusCancelled = api.StatusCancelled
)

// EngineConfig tunes engine construction. Zero values fall back to working
// defaults: cache capacity 100, cache TTL 5m, tracker capacity 100MB.
type EngineConfig struct {
	CacheCapacity   int
	CacheTTL        time.Duration
	TrackerCapacity int64
	BackoffBase     time.Duration
	Observer        Observer
	Logger          *slog.Logger

	// DB enables the SQLite result archive when non-nil.
	DB *sql.DB
}

// Engine constructors. These wrap the internal/engine package so external
// callers never need to import internal packages.

// NewEngine returns an Engine with default cache, tracker and handlers, and
// no result archive.
func NewEngine() Engine {
	return engine.New(engine.Config{})
}

// NewEngineWithObserver returns a default Engine with the given Observer.
func NewEngineWithObserver(obs Observer) Engine {
	return engine.New(engine.Config{Observer: obs})
}

// NewSQLiteEngine returns an Engine that archives completed flow results in
// a SQLite database.
func NewSQLiteEngine(db *sql.DB) (Engine, error) {
	return NewEngineWithConfig(EngineConfig{DB: db})
}

// NewEngineWithConfig returns an Engine built from cfg.
func NewEngineWithConfig(cfg EngineConfig) (Engine, error) {
	var archive persistence.ArchiveStore
	if cfg.DB != nil {
		store, err := persistence.NewSQLiteArchiveStore(cfg.DB)
		if err != nil {
			return nil, err
		}
		archive = store
	}

	return engine.New(engine.Config{
		Cache:       cache.New(cfg.CacheCapacity, cfg.CacheTTL),
		Tracker:     tracker.New(cfg.TrackerCapacity, cfg.Logger),
		Archive:     archive,
		Observer:    cfg.Observer,
		Logger:      cfg.Logger,
		BackoffBase: cfg.BackoffBase,
	}), nil
}

// NewOrchestrator returns an Orchestrator with default handlers and timeouts.
func NewOrchestrator() Orchestrator {
	return orchestrator.New(orchestrator.Config{})
}

// NewOrchestratorWithObserver returns an Orchestrator with the given
// Observer.
func NewOrchestratorWithObserver(obs Observer) Orchestrator {
	return orchestrator.New(orchestrator.Config{Observer: obs})
}
