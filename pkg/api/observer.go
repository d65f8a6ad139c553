package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives lifecycle events from the engine and orchestrator.
//
// Delivery is synchronous: every callback fires before the triggering call
// returns. Implementations should be fast and non-blocking; heavy work should
// be done asynchronously so as not to delay flow execution.
type Observer interface {
	// OnFlowRegistered is called when a definition is (re-)registered.
	OnFlowRegistered(ctx context.Context, def *FlowDefinition)

	// OnFlowStarted is called once per execution, before the first step.
	OnFlowStarted(ctx context.Context, inst *FlowInstance)

	// OnStepStarted is called before a node is dispatched to its handler.
	OnStepStarted(ctx context.Context, inst *FlowInstance, nodeID, nodeType string)

	// OnStepCompleted is called after a node's handler returns successfully.
	OnStepCompleted(ctx context.Context, inst *FlowInstance, nodeID string, duration time.Duration)

	// OnStepFailed is called when a node's handler fails (after retries).
	OnStepFailed(ctx context.Context, inst *FlowInstance, nodeID string, err error)

	// OnFlowCompleted is called when an execution finishes successfully,
	// including early exits on unmatched edge conditions.
	OnFlowCompleted(ctx context.Context, result *FlowResult)

	// OnFlowFailed is called when an execution fails, for both business
	// failures and structural errors.
	OnFlowFailed(ctx context.Context, inst *FlowInstance, err error)

	// OnCacheHit is called when ExecuteFlow returns a cached result.
	OnCacheHit(ctx context.Context, flowID, key string)
}

// NoopObserver is an Observer that does nothing. It is the default when no
// observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnFlowRegistered(context.Context, *FlowDefinition)                       {}
func (NoopObserver) OnFlowStarted(context.Context, *FlowInstance)                            {}
func (NoopObserver) OnStepStarted(context.Context, *FlowInstance, string, string)            {}
func (NoopObserver) OnStepCompleted(context.Context, *FlowInstance, string, time.Duration)   {}
func (NoopObserver) OnStepFailed(context.Context, *FlowInstance, string, error)              {}
func (NoopObserver) OnFlowCompleted(context.Context, *FlowResult)                            {}
func (NoopObserver) OnFlowFailed(context.Context, *FlowInstance, error)                      {}
func (NoopObserver) OnCacheHit(context.Context, string, string)                              {}

// CompositeObserver fans out events to multiple observers in order.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnFlowRegistered(ctx context.Context, def *FlowDefinition) {
	for _, o := range c.observers {
		o.OnFlowRegistered(ctx, def)
	}
}

func (c *CompositeObserver) OnFlowStarted(ctx context.Context, inst *FlowInstance) {
	for _, o := range c.observers {
		o.OnFlowStarted(ctx, inst)
	}
}

func (c *CompositeObserver) OnStepStarted(ctx context.Context, inst *FlowInstance, nodeID, nodeType string) {
	for _, o := range c.observers {
		o.OnStepStarted(ctx, inst, nodeID, nodeType)
	}
}

func (c *CompositeObserver) OnStepCompleted(ctx context.Context, inst *FlowInstance, nodeID string, d time.Duration) {
	for _, o := range c.observers {
		o.OnStepCompleted(ctx, inst, nodeID, d)
	}
}

func (c *CompositeObserver) OnStepFailed(ctx context.Context, inst *FlowInstance, nodeID string, err error) {
	for _, o := range c.observers {
		o.OnStepFailed(ctx, inst, nodeID, err)
	}
}

func (c *CompositeObserver) OnFlowCompleted(ctx context.Context, result *FlowResult) {
	for _, o := range c.observers {
		o.OnFlowCompleted(ctx, result)
	}
}

func (c *CompositeObserver) OnFlowFailed(ctx context.Context, inst *FlowInstance, err error) {
	for _, o := range c.observers {
		o.OnFlowFailed(ctx, inst, err)
	}
}

func (c *CompositeObserver) OnCacheHit(ctx context.Context, flowID, key string) {
	for _, o := range c.observers {
		o.OnCacheHit(ctx, flowID, key)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs flow / step lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnFlowRegistered(ctx context.Context, def *FlowDefinition) {
	o.Logger.InfoContext(ctx, "flow_registered",
		slog.String("flow", def.ID),
		slog.Int("nodes", len(def.Nodes)),
		slog.Int("edges", len(def.Edges)),
	)
}

func (o *LoggingObserver) OnFlowStarted(ctx context.Context, inst *FlowInstance) {
	o.Logger.InfoContext(ctx, "flow_started",
		slog.String("flow", inst.FlowID),
		slog.String("execution_id", inst.ID),
	)
}

func (o *LoggingObserver) OnStepStarted(ctx context.Context, inst *FlowInstance, nodeID, nodeType string) {
	o.Logger.DebugContext(ctx, "step_started",
		slog.String("flow", inst.FlowID),
		slog.String("execution_id", inst.ID),
		slog.String("node", nodeID),
		slog.String("type", nodeType),
	)
}

func (o *LoggingObserver) OnStepCompleted(ctx context.Context, inst *FlowInstance, nodeID string, d time.Duration) {
	o.Logger.DebugContext(ctx, "step_completed",
		slog.String("flow", inst.FlowID),
		slog.String("execution_id", inst.ID),
		slog.String("node", nodeID),
		slog.Duration("duration", d),
	)
}

func (o *LoggingObserver) OnStepFailed(ctx context.Context, inst *FlowInstance, nodeID string, err error) {
	o.Logger.ErrorContext(ctx, "step_failed",
		slog.String("flow", inst.FlowID),
		slog.String("execution_id", inst.ID),
		slog.String("node", nodeID),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnFlowCompleted(ctx context.Context, result *FlowResult) {
	o.Logger.InfoContext(ctx, "flow_completed",
		slog.String("flow", result.FlowID),
		slog.String("execution_id", result.ID),
		slog.Duration("execution_time", result.ExecutionTime),
		slog.Int("nodes_executed", result.Performance.NodesExecuted),
	)
}

func (o *LoggingObserver) OnFlowFailed(ctx context.Context, inst *FlowInstance, err error) {
	o.Logger.ErrorContext(ctx, "flow_failed",
		slog.String("flow", inst.FlowID),
		slog.String("execution_id", inst.ID),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnCacheHit(ctx context.Context, flowID, key string) {
	o.Logger.DebugContext(ctx, "cache_hit",
		slog.String("flow", flowID),
		slog.String("key", key),
	)
}

// BasicMetrics collects simple counters and aggregate step durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	flowsStarted      atomic.Int64
	flowsCompleted    atomic.Int64
	flowsFailed       atomic.Int64
	stepsCompleted    atomic.Int64
	stepsFailed       atomic.Int64
	cacheHits         atomic.Int64
	totalStepDuration atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	FlowsStarted   int64
	FlowsCompleted int64
	FlowsFailed    int64
	ActiveFlows    int64

	StepsCompleted  int64
	StepsFailed     int64
	CacheHits       int64
	AvgStepDuration time.Duration
}

func (m *BasicMetrics) OnFlowStarted(ctx context.Context, inst *FlowInstance) {
	m.flowsStarted.Add(1)
}

func (m *BasicMetrics) OnFlowCompleted(ctx context.Context, result *FlowResult) {
	m.flowsCompleted.Add(1)
}

func (m *BasicMetrics) OnFlowFailed(ctx context.Context, inst *FlowInstance, err error) {
	m.flowsFailed.Add(1)
}

func (m *BasicMetrics) OnStepCompleted(ctx context.Context, inst *FlowInstance, nodeID string, d time.Duration) {
	m.stepsCompleted.Add(1)
	m.totalStepDuration.Add(d.Nanoseconds())
}

func (m *BasicMetrics) OnStepFailed(ctx context.Context, inst *FlowInstance, nodeID string, err error) {
	m.stepsFailed.Add(1)
}

func (m *BasicMetrics) OnCacheHit(ctx context.Context, flowID, key string) {
	m.cacheHits.Add(1)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.flowsStarted.Load()
	completed := m.flowsCompleted.Load()
	failed := m.flowsFailed.Load()
	steps := m.stepsCompleted.Load()
	totalNs := m.totalStepDuration.Load()

	var avg time.Duration
	if steps > 0 {
		avg = time.Duration(totalNs / steps)
	}

	return BasicMetricsSnapshot{
		FlowsStarted:    started,
		FlowsCompleted:  completed,
		FlowsFailed:     failed,
		ActiveFlows:     started - completed - failed,
		StepsCompleted:  steps,
		StepsFailed:     m.stepsFailed.Load(),
		CacheHits:       m.cacheHits.Load(),
		AvgStepDuration: avg,
	}
}
