// Package orchestrator runs workflows as flat, declaration-ordered step
// lists with per-step timeouts, and composes whole-workflow executions
// in parallel, in sequence, conditionally and in loops.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avensk/floe/internal/dispatch"
	"github.com/avensk/floe/pkg/api"
)

// DefaultStepTimeout applies when a node has no timeout_ms configured.
const DefaultStepTimeout = 30 * time.Second

// Config describes how to construct an AsyncOrchestrator. Zero-value fields
// fall back to working defaults.
type Config struct {
	Dispatcher         *dispatch.Dispatcher
	Observer           api.Observer
	Logger             *slog.Logger
	DefaultStepTimeout time.Duration
}

// AsyncOrchestrator is the api.Orchestrator implementation.
//
// Unlike the graph engine, it ignores edges entirely: a workflow's nodes run
// strictly in declaration order, each raced against its timeout. Edges in a
// registered definition are preserved but have no effect here.
type AsyncOrchestrator struct {
	mu        sync.RWMutex
	workflows map[string]api.FlowDefinition
	running   map[string]*api.ExecutionContext
	completed []*api.ExecutionContext

	totalExecutions int64
	successful      int64
	failed          int64
	numCancelled    int64
	totalDuration   time.Duration

	dispatcher     *dispatch.Dispatcher
	observer       api.Observer
	logger         *slog.Logger
	defaultTimeout time.Duration
}

var _ api.Orchestrator = (*AsyncOrchestrator)(nil)

// New creates an AsyncOrchestrator from cfg.
func New(cfg Config) *AsyncOrchestrator {
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = dispatch.New()
	}
	if cfg.Observer == nil {
		cfg.Observer = api.NoopObserver{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DefaultStepTimeout <= 0 {
		cfg.DefaultStepTimeout = DefaultStepTimeout
	}
	return &AsyncOrchestrator{
		workflows:      make(map[string]api.FlowDefinition),
		running:        make(map[string]*api.ExecutionContext),
		dispatcher:     cfg.Dispatcher,
		observer:       cfg.Observer,
		logger:         cfg.Logger,
		defaultTimeout: cfg.DefaultStepTimeout,
	}
}

// RegisterWorkflow registers a definition by ID, overwriting any previous
// definition with the same ID.
func (o *AsyncOrchestrator) RegisterWorkflow(def api.FlowDefinition) error {
	if def.ID == "" {
		return errors.New("workflow definition requires an ID")
	}
	if len(def.Nodes) == 0 {
		return errors.New("workflow definition requires at least one node")
	}

	o.mu.Lock()
	o.workflows[def.ID] = def
	o.mu.Unlock()

	o.observer.OnFlowRegistered(context.Background(), &def)
	return nil
}

// RegisterHandler installs a step handler for a node type.
func (o *AsyncOrchestrator) RegisterHandler(nodeType string, h api.HandlerFunc) {
	o.dispatcher.Register(nodeType, h)
}

type stepOutcome struct {
	out *dispatch.StepOutput
	err error
}

// ExecuteWorkflow runs the workflow's nodes in declaration order.
func (o *AsyncOrchestrator) ExecuteWorkflow(ctx context.Context, workflowID string, input map[string]any) (*api.ExecutionContext, error) {
	o.mu.RLock()
	def, ok := o.workflows[workflowID]
	o.mu.RUnlock()
	if !ok {
		return nil, api.NewNotFoundError("workflow", workflowID)
	}

	ec := &api.ExecutionContext{
		ID:         "orch-" + uuid.NewString(),
		WorkflowID: workflowID,
		Status:     api.StatusPending,
		StartTime:  time.Now(),
		Metadata:   map[string]any{"steps": len(def.Nodes)},
	}

	o.mu.Lock()
	o.running[ec.ID] = ec
	o.totalExecutions++
	ec.Status = api.StatusRunning
	o.mu.Unlock()

	inst := &api.FlowInstance{
		ID:        ec.ID,
		FlowID:    workflowID,
		Status:    api.StatusRunning,
		StartTime: ec.StartTime,
		Variables: api.CopyVariables(input),
	}
	o.observer.OnFlowStarted(ctx, inst)

	vars := api.CopyVariables(input)
	executed := make(map[string]bool, len(def.Nodes))
	total := len(def.Nodes)

	for i := range def.Nodes {
		node := &def.Nodes[i]

		// CancelExecution transitions the context itself; observing the
		// terminal state here just stops dispatching further steps.
		if o.statusOf(ec) == api.StatusCancelled {
			return ec, nil
		}
		select {
		case <-ctx.Done():
			o.fail(ec, vars, ctx.Err().Error())
			o.observer.OnFlowFailed(ctx, inst, ctx.Err())
			return ec, ctx.Err()
		default:
		}

		if missing := unmetDependencies(node, executed); len(missing) > 0 {
			err := &api.UnmetDependencyError{StepID: node.ID, Missing: missing}
			o.fail(ec, vars, err.Error())
			o.observer.OnFlowFailed(ctx, inst, err)
			return ec, err
		}

		o.setCurrentStep(ec, node.ID)
		o.observer.OnStepStarted(ctx, inst, node.ID, node.Type)

		outcome := o.runStep(ctx, node, inst, vars, input)
		if outcome.err != nil {
			o.observer.OnStepFailed(ctx, inst, node.ID, outcome.err)
			o.fail(ec, vars, outcome.err.Error())
			o.observer.OnFlowFailed(ctx, inst, outcome.err)

			var unknown *api.UnknownNodeTypeError
			if errors.As(outcome.err, &unknown) {
				return ec, outcome.err
			}
			// Business failure (handler error or timeout): recorded on the
			// context, no Go error.
			return ec, nil
		}

		vars = api.MergeVariables(vars, outcome.out.Output)
		inst.Variables = vars
		executed[node.ID] = true
		o.setProgress(ec, float64(i+1)/float64(total)*100)
		o.observer.OnStepCompleted(ctx, inst, node.ID, outcome.out.Duration)
	}

	o.finish(ec, api.StatusCompleted, vars)
	if o.statusOf(ec) != api.StatusCompleted {
		// Cancelled while the last step was in flight.
		return ec, nil
	}
	o.observer.OnFlowCompleted(ctx, &api.FlowResult{
		ID:            ec.ID,
		FlowID:        workflowID,
		Status:        ec.Status,
		StartTime:     ec.StartTime,
		EndTime:       ec.EndTime,
		ExecutionTime: ec.EndTime.Sub(ec.StartTime),
		Output:        ec.Output,
	})
	return ec, nil
}

// runStep races one dispatch against the step's timeout. The timeout context
// is handed to the handler, so cooperative handlers stop early; the race does
// not wait for uncooperative ones.
func (o *AsyncOrchestrator) runStep(ctx context.Context, node *api.Node, inst *api.FlowInstance, vars, input map[string]any) stepOutcome {
	timeout := o.defaultTimeout
	if ms := node.ConfigInt("timeout_ms", 0); ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}

	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sc := &api.StepContext{
		ExecutionID: inst.ID,
		FlowID:      inst.FlowID,
		NodeID:      node.ID,
		Variables:   api.CopyVariables(vars),
		Input:       input,
		Config:      node.Config,
	}

	ch := make(chan stepOutcome, 1)
	go func() {
		out, err := o.dispatcher.Execute(stepCtx, node, sc)
		ch <- stepOutcome{out: out, err: err}
	}()

	select {
	case res := <-ch:
		return res
	case <-stepCtx.Done():
		if errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
			return stepOutcome{err: &api.StepTimeoutError{NodeID: node.ID, Timeout: timeout}}
		}
		return stepOutcome{err: stepCtx.Err()}
	}
}

// ExecuteWorkflowsParallel launches the workflows concurrently and waits for
// all of them. Fail-fast applies to the aggregate: any structural error or
// failed execution makes the whole call return an error with no results.
func (o *AsyncOrchestrator) ExecuteWorkflowsParallel(ctx context.Context, workflowIDs []string, input map[string]any) ([]*api.ExecutionContext, error) {
	ecs := make([]*api.ExecutionContext, len(workflowIDs))
	errs := make([]error, len(workflowIDs))

	var wg sync.WaitGroup
	for i, id := range workflowIDs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			ecs[i], errs[i] = o.ExecuteWorkflow(ctx, id, api.CopyVariables(input))
		}(i, id)
	}
	wg.Wait()

	for i := range workflowIDs {
		if errs[i] != nil {
			return nil, errs[i]
		}
		if ecs[i].Status == api.StatusFailed {
			return nil, fmt.Errorf("workflow %s failed: %v", workflowIDs[i], ecs[i].Errors)
		}
	}
	return ecs, nil
}

// ExecuteWorkflowsSequence runs the workflows one at a time, shallow-merging
// each execution's output into the next input. A failed or errored execution
// stops the sequence; contexts so far are returned alongside the error.
func (o *AsyncOrchestrator) ExecuteWorkflowsSequence(ctx context.Context, workflowIDs []string, input map[string]any) ([]*api.ExecutionContext, error) {
	current := api.CopyVariables(input)
	var ecs []*api.ExecutionContext

	for _, id := range workflowIDs {
		ec, err := o.ExecuteWorkflow(ctx, id, current)
		if ec != nil {
			ecs = append(ecs, ec)
		}
		if err != nil {
			return ecs, err
		}
		if ec.Status != api.StatusCompleted {
			return ecs, fmt.Errorf("workflow %s did not complete: %s", id, ec.Status)
		}
		current = api.MergeVariables(current, ec.Output)
	}
	return ecs, nil
}

// ExecuteWorkflowsConditional evaluates the predicates against the most
// recently completed execution context (a zero-value context when none
// exists) and runs the first workflow whose predicate matches, falling back
// to defaultID. (nil, nil) means nothing matched and no default was given.
func (o *AsyncOrchestrator) ExecuteWorkflowsConditional(ctx context.Context, conditions []api.ConditionalWorkflow, defaultID string, input map[string]any) (*api.ExecutionContext, error) {
	prev := o.lastCompleted()
	if prev == nil {
		prev = &api.ExecutionContext{}
	}

	for _, cond := range conditions {
		if cond.Condition != nil && cond.Condition(prev) {
			return o.ExecuteWorkflow(ctx, cond.WorkflowID, input)
		}
	}
	if defaultID != "" {
		return o.ExecuteWorkflow(ctx, defaultID, input)
	}
	return nil, nil
}

// ExecuteWorkflowsLoop repeats the workflow while the predicate holds. The
// first evaluation sees a zero-value context; the caller's predicate is the
// only termination condition besides errors and ctx cancellation.
func (o *AsyncOrchestrator) ExecuteWorkflowsLoop(ctx context.Context, workflowID string, predicate func(last *api.ExecutionContext) bool, input map[string]any) ([]*api.ExecutionContext, error) {
	if predicate == nil {
		return nil, errors.New("loop requires a predicate")
	}

	var ecs []*api.ExecutionContext
	last := &api.ExecutionContext{}

	for predicate(last) {
		select {
		case <-ctx.Done():
			return ecs, ctx.Err()
		default:
		}

		ec, err := o.ExecuteWorkflow(ctx, workflowID, api.CopyVariables(input))
		if ec != nil {
			ecs = append(ecs, ec)
		}
		if err != nil {
			return ecs, err
		}
		last = ec
	}
	return ecs, nil
}

// CancelExecution transitions a running execution to cancelled and stamps its
// end time immediately; callers polling Execution see the terminal state as
// soon as this returns. An already-dispatched step is not interrupted; its
// output is discarded when the step loop observes the cancellation.
func (o *AsyncOrchestrator) CancelExecution(executionID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	ec, ok := o.running[executionID]
	if !ok || ec.Status.Terminal() {
		return api.ErrExecutionNotRunning
	}
	o.finishLocked(ec, api.StatusCancelled, nil)
	return nil
}

// Execution looks up an execution context by ID, running or completed. The
// returned context is a snapshot; the live one keeps changing while the
// execution runs.
func (o *AsyncOrchestrator) Execution(executionID string) (*api.ExecutionContext, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if ec, ok := o.running[executionID]; ok {
		return ec.Clone(), true
	}
	for _, ec := range o.completed {
		if ec.ID == executionID {
			return ec.Clone(), true
		}
	}
	return nil, false
}

// CompletedExecutions returns snapshots of finished execution contexts in
// completion order.
func (o *AsyncOrchestrator) CompletedExecutions() []*api.ExecutionContext {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]*api.ExecutionContext, len(o.completed))
	for i, ec := range o.completed {
		out[i] = ec.Clone()
	}
	return out
}

// ClearCompleted drops the completed-executions list.
func (o *AsyncOrchestrator) ClearCompleted() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completed = nil
}

// Metrics returns an aggregate snapshot over all executions.
func (o *AsyncOrchestrator) Metrics() api.OrchestratorMetrics {
	o.mu.RLock()
	defer o.mu.RUnlock()

	finished := o.successful + o.failed + o.numCancelled
	m := api.OrchestratorMetrics{
		TotalExecutions: o.totalExecutions,
		Successful:      o.successful,
		Failed:          o.failed,
		Cancelled:       o.numCancelled,
	}
	if finished > 0 {
		m.AverageExecutionTime = o.totalDuration / time.Duration(finished)
		m.SuccessRate = float64(o.successful) / float64(finished)
		m.FailureRate = float64(o.failed) / float64(finished)
	}
	return m
}

// finish transitions an execution to a terminal status, records its output
// and moves it to the completed list. Terminal states are never overwritten.
func (o *AsyncOrchestrator) finish(ec *api.ExecutionContext, status api.Status, vars map[string]any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finishLocked(ec, status, vars)
}

func (o *AsyncOrchestrator) finishLocked(ec *api.ExecutionContext, status api.Status, vars map[string]any) {
	if ec.Status.Terminal() {
		return
	}
	ec.Status = status
	ec.EndTime = time.Now()
	if vars != nil {
		ec.Output = api.CopyVariables(vars)
	}
	if status == api.StatusCompleted {
		ec.Progress = 100
	}

	delete(o.running, ec.ID)
	o.completed = append(o.completed, ec)

	o.totalDuration += ec.EndTime.Sub(ec.StartTime)
	switch status {
	case api.StatusCompleted:
		o.successful++
	case api.StatusFailed:
		o.failed++
	case api.StatusCancelled:
		o.numCancelled++
	}
}

// fail records the error and finishes the execution as failed in one critical
// section. A concurrent cancellation wins: once terminal, nothing changes.
func (o *AsyncOrchestrator) fail(ec *api.ExecutionContext, vars map[string]any, msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if ec.Status.Terminal() {
		return
	}
	ec.Errors = append(ec.Errors, msg)
	o.finishLocked(ec, api.StatusFailed, vars)
}

func (o *AsyncOrchestrator) statusOf(ec *api.ExecutionContext) api.Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return ec.Status
}

func (o *AsyncOrchestrator) setCurrentStep(ec *api.ExecutionContext, nodeID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if ec.Status.Terminal() {
		return
	}
	ec.CurrentStep = nodeID
}

func (o *AsyncOrchestrator) setProgress(ec *api.ExecutionContext, pct float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if ec.Status.Terminal() {
		return
	}
	ec.Progress = pct
}

// unmetDependencies reads the node's "dependencies" config list and returns
// the IDs that have not executed yet. Steps are never reordered to satisfy
// dependencies; a forward reference is a definition mistake.
func unmetDependencies(node *api.Node, executed map[string]bool) []string {
	deps, _ := node.Config["dependencies"].([]any)
	var missing []string
	for _, d := range deps {
		id, ok := d.(string)
		if !ok {
			continue
		}
		if !executed[id] {
			missing = append(missing, id)
		}
	}
	return missing
}

// lastCompleted returns the most recently finished execution, or nil.
func (o *AsyncOrchestrator) lastCompleted() *api.ExecutionContext {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if len(o.completed) == 0 {
		return nil
	}
	return o.completed[len(o.completed)-1]
}
