package api

import "context"

// Engine is the graph execution API: it runs one flow instance at a time by
// traversing nodes via edges, sharing a result cache and resource tracker
// across concurrent executions.
type Engine interface {
	// RegisterFlow registers a definition by ID. Re-registration overwrites.
	RegisterFlow(def FlowDefinition) error

	// ExecuteFlow runs the flow against the given input and returns its
	// structured result.
	//
	// Outcome model:
	//   - Business failures (a step handler returned a domain error) yield a
	//     FlowResult with StatusFailed and a nil Go error.
	//   - Structural failures (unknown flow, missing node, unknown node
	//     type, bad condition expression) yield (nil, err) with a typed
	//     error from this package.
	ExecuteFlow(ctx context.Context, flowID string, input map[string]any) (*FlowResult, error)

	// RegisterHandler installs a step handler for a node type. The last
	// registration for a type wins.
	RegisterHandler(nodeType string, h HandlerFunc)

	// ActiveInstances returns snapshots of the currently running flow
	// instances, safe to inspect while the executions proceed.
	ActiveInstances() []*FlowInstance

	// CacheStats returns a snapshot of the shared result cache.
	CacheStats() CacheStats

	// ClearCache drops all cached results.
	ClearCache()
}

// Orchestrator is the coarser execution layer composing whole-workflow
// executions: single, parallel, sequential, conditional, and looped.
type Orchestrator interface {
	// RegisterWorkflow registers a definition by ID. Re-registration
	// overwrites.
	RegisterWorkflow(def FlowDefinition) error

	// ExecuteWorkflow runs the workflow's nodes strictly in declaration
	// order, racing each step against its timeout.
	//
	// Business step failures are recorded on the returned context
	// (StatusFailed, Errors populated) with a nil Go error. Structural
	// failures (unknown workflow, unknown node type, unmet dependency)
	// return a typed error alongside whatever context exists.
	ExecuteWorkflow(ctx context.Context, workflowID string, input map[string]any) (*ExecutionContext, error)

	// ExecuteWorkflowsParallel launches independent executions concurrently.
	// Fail-fast: if any execution fails, the whole call returns an error and
	// no partial results.
	ExecuteWorkflowsParallel(ctx context.Context, workflowIDs []string, input map[string]any) ([]*ExecutionContext, error)

	// ExecuteWorkflowsSequence runs workflows one at a time, shallow-merging
	// each execution's output into the input of the next.
	ExecuteWorkflowsSequence(ctx context.Context, workflowIDs []string, input map[string]any) ([]*ExecutionContext, error)

	// ExecuteWorkflowsConditional runs the first workflow whose predicate
	// matches the previous execution context, or the default if none match
	// and defaultID is non-empty. Returns (nil, nil) when nothing ran.
	ExecuteWorkflowsConditional(ctx context.Context, conditions []ConditionalWorkflow, defaultID string, input map[string]any) (*ExecutionContext, error)

	// ExecuteWorkflowsLoop repeats ExecuteWorkflow while the predicate holds
	// for the last execution context. The caller is solely responsible for
	// termination.
	ExecuteWorkflowsLoop(ctx context.Context, workflowID string, predicate func(last *ExecutionContext) bool, input map[string]any) ([]*ExecutionContext, error)

	// CancelExecution transitions a running execution to cancelled and
	// stamps its end time. It does not interrupt an already-dispatched step.
	CancelExecution(executionID string) error

	// RegisterHandler installs a step handler for a node type.
	RegisterHandler(nodeType string, h HandlerFunc)

	// Execution looks up an execution context (running or completed) and
	// returns a snapshot of it, safe to inspect while the execution proceeds.
	Execution(executionID string) (*ExecutionContext, bool)

	// CompletedExecutions returns snapshots of finished execution contexts,
	// retained until ClearCompleted is called.
	CompletedExecutions() []*ExecutionContext

	// ClearCompleted drops the completed-executions list.
	ClearCompleted()

	// Metrics returns aggregate execution metrics.
	Metrics() OrchestratorMetrics
}
