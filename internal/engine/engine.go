// Package engine implements graph traversal: one flow execution walks nodes
// via edges, dispatching each node to its handler, consulting the shared
// result cache and reporting usage to the shared resource tracker.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avensk/floe/internal/cache"
	"github.com/avensk/floe/internal/dispatch"
	"github.com/avensk/floe/internal/expr"
	"github.com/avensk/floe/internal/persistence"
	"github.com/avensk/floe/internal/tracker"
	"github.com/avensk/floe/pkg/api"
)

const (
	// DefaultBackoffBase is the base delay of the retry backoff schedule.
	// Attempt n (zero-based) waits base * 2^n before retrying.
	DefaultBackoffBase = 100 * time.Millisecond

	// maxTraversalSteps bounds a single execution. A definition whose edges
	// form a cycle with always-true conditions would otherwise never stop.
	maxTraversalSteps = 10_000
)

// Config describes how to construct a GraphExecutor. Zero-value fields fall
// back to working defaults, so engine.New(engine.Config{}) is usable as-is.
type Config struct {
	Dispatcher  *dispatch.Dispatcher
	Cache       *cache.Cache
	Tracker     *tracker.Tracker
	Archive     persistence.ArchiveStore
	Observer    api.Observer
	Logger      *slog.Logger
	BackoffBase time.Duration
}

// GraphExecutor is the api.Engine implementation. All registered flows share
// one dispatcher, one result cache and one resource tracker; executions may
// run concurrently from multiple goroutines.
type GraphExecutor struct {
	mu     sync.RWMutex
	flows  map[string]api.FlowDefinition
	active map[string]*api.FlowInstance

	dispatcher  *dispatch.Dispatcher
	cache       *cache.Cache
	tracker     *tracker.Tracker
	archive     persistence.ArchiveStore
	observer    api.Observer
	logger      *slog.Logger
	backoffBase time.Duration
}

var _ api.Engine = (*GraphExecutor)(nil)

// New creates a GraphExecutor from cfg, filling in defaults for any zero
// fields. Tracker evictions are wired to cache invalidation: when the tracker
// evicts a contributor whose ID is a cache key, that entry is dropped so the
// cache cannot serve results the tracker no longer accounts for.
func New(cfg Config) *GraphExecutor {
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = dispatch.New()
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.New(0, 0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Tracker == nil {
		cfg.Tracker = tracker.New(0, cfg.Logger)
	}
	if cfg.Observer == nil {
		cfg.Observer = api.NoopObserver{}
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultBackoffBase
	}

	e := &GraphExecutor{
		flows:       make(map[string]api.FlowDefinition),
		active:      make(map[string]*api.FlowInstance),
		dispatcher:  cfg.Dispatcher,
		cache:       cfg.Cache,
		tracker:     cfg.Tracker,
		archive:     cfg.Archive,
		observer:    cfg.Observer,
		logger:      cfg.Logger,
		backoffBase: cfg.BackoffBase,
	}
	e.tracker.OnEvict(func(contributorID string, amount int64) {
		e.cache.Delete(contributorID)
	})
	return e
}

// RegisterFlow registers a definition by ID, overwriting any previous
// definition with the same ID.
func (e *GraphExecutor) RegisterFlow(def api.FlowDefinition) error {
	if def.ID == "" {
		return errors.New("flow definition requires an ID")
	}
	if len(def.Nodes) == 0 {
		return errors.New("flow definition requires at least one node")
	}

	e.mu.Lock()
	e.flows[def.ID] = def
	e.mu.Unlock()

	e.observer.OnFlowRegistered(context.Background(), &def)
	return nil
}

// RegisterHandler installs a step handler for a node type.
func (e *GraphExecutor) RegisterHandler(nodeType string, h api.HandlerFunc) {
	e.dispatcher.Register(nodeType, h)
}

// ActiveInstances returns snapshots of the currently running flow instances.
// The executing goroutines keep mutating the live instances; callers get
// copies they can inspect freely.
func (e *GraphExecutor) ActiveInstances() []*api.FlowInstance {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*api.FlowInstance, 0, len(e.active))
	for _, inst := range e.active {
		out = append(out, inst.Clone())
	}
	return out
}

// CacheStats returns a snapshot of the shared result cache.
func (e *GraphExecutor) CacheStats() api.CacheStats {
	return e.cache.Stats()
}

// ClearCache drops all cached results.
func (e *GraphExecutor) ClearCache() {
	e.cache.Clear()
}

// ExecuteFlow runs the flow against the given input.
//
// A cache hit short-circuits: the prior result is returned as-is and no
// traversal happens. Concurrent identical calls that both miss the cache each
// traverse the graph; there is no coalescing of in-flight executions.
func (e *GraphExecutor) ExecuteFlow(ctx context.Context, flowID string, input map[string]any) (*api.FlowResult, error) {
	e.mu.RLock()
	def, ok := e.flows[flowID]
	e.mu.RUnlock()
	if !ok {
		return nil, api.NewNotFoundError("flow", flowID)
	}

	key := api.ResultKey(flowID, input)
	if cached, hit := e.cache.Get(key); hit {
		e.observer.OnCacheHit(ctx, flowID, key)
		return cached, nil
	}

	if def.StartNode == "" {
		return nil, api.ErrNoStartNode
	}
	if def.FindNode(def.StartNode) == nil {
		return nil, api.NewNotFoundError("node", def.StartNode)
	}

	inst := &api.FlowInstance{
		ID:          "exec-" + uuid.NewString(),
		FlowID:      flowID,
		Status:      api.StatusRunning,
		StartTime:   time.Now(),
		Variables:   api.CopyVariables(input),
		CurrentNode: def.StartNode,
	}

	e.mu.Lock()
	e.active[inst.ID] = inst
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.active, inst.ID)
		e.mu.Unlock()
		e.tracker.Remove(inst.ID)
	}()

	e.observer.OnFlowStarted(ctx, inst)

	result, err := e.traverse(ctx, &def, inst, input, key)
	if err != nil {
		e.setInstanceStatus(inst, api.StatusFailed)
		e.observer.OnFlowFailed(ctx, inst, err)
		return nil, err
	}
	return result, nil
}

// Instance fields are written by the executing goroutine and read through
// ActiveInstances snapshots; both sides go through e.mu.
func (e *GraphExecutor) setInstanceStatus(inst *api.FlowInstance, status api.Status) {
	e.mu.Lock()
	inst.Status = status
	e.mu.Unlock()
}

func (e *GraphExecutor) setCurrentNode(inst *api.FlowInstance, nodeID string) {
	e.mu.Lock()
	inst.CurrentNode = nodeID
	e.mu.Unlock()
}

func (e *GraphExecutor) mergeInstanceVariables(inst *api.FlowInstance, out map[string]any) {
	e.mu.Lock()
	inst.Variables = api.MergeVariables(inst.Variables, out)
	e.mu.Unlock()
}

// traverse walks the graph from the start node. It returns a FlowResult for
// both completed and business-failed runs; only structural faults surface as
// Go errors.
func (e *GraphExecutor) traverse(ctx context.Context, def *api.FlowDefinition, inst *api.FlowInstance, input map[string]any, key string) (*api.FlowResult, error) {
	var (
		path      []string
		results   = make(map[string]any)
		usage     int64
		memPeak   int64
		nodeID    = def.StartNode
		nodesDone int
	)

	for steps := 0; nodeID != ""; steps++ {
		if steps >= maxTraversalSteps {
			return nil, &api.StepExecutionError{
				NodeID: nodeID,
				Err:    errors.New("traversal step limit exceeded, definition likely cyclic"),
			}
		}

		node := def.FindNode(nodeID)
		if node == nil {
			return nil, api.NewNotFoundError("node", nodeID)
		}

		e.setCurrentNode(inst, nodeID)
		e.observer.OnStepStarted(ctx, inst, node.ID, node.Type)

		out, stepErr := e.runStep(ctx, node, inst, input)
		if stepErr != nil {
			e.observer.OnStepFailed(ctx, inst, node.ID, stepErr)

			var unknown *api.UnknownNodeTypeError
			if errors.As(stepErr, &unknown) ||
				errors.Is(stepErr, context.Canceled) ||
				errors.Is(stepErr, context.DeadlineExceeded) {
				return nil, stepErr
			}

			// Business failure: the step's handler gave up. The run ends
			// with a structured failed result, not a Go error.
			e.setInstanceStatus(inst, api.StatusFailed)
			result := e.buildResult(inst, api.StatusFailed, path, results, usage, memPeak, nodesDone)
			result.Error = stepErr.Error()
			e.observer.OnFlowFailed(ctx, inst, stepErr)
			e.archiveResult(result)
			return result, nil
		}

		path = append(path, node.ID)
		nodesDone++
		results[node.ID] = out.Output
		e.mergeInstanceVariables(inst, out.Output)

		usage += out.MemoryEstimate
		if usage > memPeak {
			memPeak = usage
		}
		e.tracker.UpdateUsage(inst.ID, usage)
		e.observer.OnStepCompleted(ctx, inst, node.ID, out.Duration)

		next, err := e.nextNode(def, node.ID, inst.Variables)
		if err != nil {
			return nil, err
		}
		nodeID = next
	}

	e.setInstanceStatus(inst, api.StatusCompleted)
	result := e.buildResult(inst, api.StatusCompleted, path, results, usage, memPeak, nodesDone)

	e.cache.Set(key, result)
	e.tracker.UpdateUsage(key, e.resultSize(result))
	e.archiveResult(result)
	e.observer.OnFlowCompleted(ctx, result)
	return result, nil
}

// runStep dispatches one node with the per-node retry policy: "retries" in
// the node config allows retries+1 attempts, waiting backoffBase * 2^attempt
// between them. Structural dispatch faults are never retried.
func (e *GraphExecutor) runStep(ctx context.Context, node *api.Node, inst *api.FlowInstance, input map[string]any) (*dispatch.StepOutput, error) {
	retries := node.ConfigInt("retries", 0)
	if retries < 0 {
		retries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		sc := &api.StepContext{
			ExecutionID:     inst.ID,
			FlowID:          inst.FlowID,
			NodeID:          node.ID,
			Variables:       api.CopyVariables(inst.Variables),
			Input:           input,
			Config:          node.Config,
			AvailableMemory: e.tracker.Available(),
		}

		out, err := e.dispatcher.Execute(ctx, node, sc)
		if err == nil {
			return out, nil
		}
		lastErr = err

		var unknown *api.UnknownNodeTypeError
		if errors.As(err, &unknown) {
			return nil, err
		}
		if attempt == retries {
			break
		}

		delay := e.backoffBase << attempt
		e.logger.Debug("retrying step",
			slog.String("execution_id", inst.ID),
			slog.String("node", node.ID),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

// nextNode selects the next node to visit. Outgoing edges are scanned in
// declaration order; the first whose condition is empty or evaluates true is
// followed. No outgoing edges, or none matching, ends traversal ("" return).
func (e *GraphExecutor) nextNode(def *api.FlowDefinition, nodeID string, vars map[string]any) (string, error) {
	for _, edge := range def.OutgoingEdges(nodeID) {
		if edge.Condition == "" {
			return e.checkTarget(def, edge.Target)
		}
		match, err := expr.EvalBool(edge.Condition, vars)
		if err != nil {
			return "", &api.ExpressionError{Expression: edge.Condition, Err: err}
		}
		if match {
			return e.checkTarget(def, edge.Target)
		}
	}
	return "", nil
}

func (e *GraphExecutor) checkTarget(def *api.FlowDefinition, target string) (string, error) {
	if def.FindNode(target) == nil {
		return "", api.NewNotFoundError("node", target)
	}
	return target, nil
}

func (e *GraphExecutor) buildResult(inst *api.FlowInstance, status api.Status, path []string, results map[string]any, usage, memPeak int64, nodesDone int) *api.FlowResult {
	end := time.Now()
	return &api.FlowResult{
		ID:            inst.ID,
		FlowID:        inst.FlowID,
		Status:        status,
		StartTime:     inst.StartTime,
		EndTime:       end,
		ExecutionTime: end.Sub(inst.StartTime),
		ExecutionPath: path,
		Results:       results,
		Output:        api.CopyVariables(inst.Variables),
		MemoryUsage:   usage,
		Performance: api.Performance{
			NodesExecuted: nodesDone,
			MemoryPeak:    memPeak,
			CacheMisses:   1,
		},
	}
}

// archiveResult persists a finished result when an archive is configured.
// Archive faults never fail the flow.
func (e *GraphExecutor) archiveResult(result *api.FlowResult) {
	if e.archive == nil {
		return
	}
	if err := e.archive.SaveResult(result); err != nil {
		e.logger.Warn("archiving flow result failed",
			slog.String("execution_id", result.ID),
			slog.Any("error", err),
		)
	}
}

func (e *GraphExecutor) resultSize(result *api.FlowResult) int64 {
	return api.EstimateSize(result.Output) + api.EstimateSize(result.Results)
}
