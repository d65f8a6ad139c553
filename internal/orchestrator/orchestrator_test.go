package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/avensk/floe/pkg/api"
)

func workflow(id string, nodes ...api.Node) api.FlowDefinition {
	return api.FlowDefinition{ID: id, Name: id, Nodes: nodes}
}

func recorderOrchestrator(t *testing.T) (*AsyncOrchestrator, *[]string) {
	t.Helper()
	o := New(Config{DefaultStepTimeout: time.Second})
	var order []string
	o.RegisterHandler("record", func(ctx context.Context, sc *api.StepContext) (map[string]any, error) {
		order = append(order, sc.NodeID)
		return map[string]any{"done_" + sc.NodeID: true}, nil
	})
	return o, &order
}

func TestExecuteWorkflow_DeclarationOrder(t *testing.T) {
	o, order := recorderOrchestrator(t)

	def := workflow("ordered",
		api.Node{ID: "first", Type: "record"},
		api.Node{ID: "second", Type: "record"},
		api.Node{ID: "third", Type: "record"},
	)
	require.NoError(t, o.RegisterWorkflow(def))

	ec, err := o.ExecuteWorkflow(context.Background(), "ordered", nil)
	require.NoError(t, err)
	require.Equal(t, api.StatusCompleted, ec.Status)
	require.Equal(t, []string{"first", "second", "third"}, *order)
	require.Equal(t, float64(100), ec.Progress)
	require.Equal(t, true, ec.Output["done_third"])
	require.False(t, ec.EndTime.IsZero())
}

func TestExecuteWorkflow_UnknownWorkflow(t *testing.T) {
	o := New(Config{})

	ec, err := o.ExecuteWorkflow(context.Background(), "ghost", nil)
	require.Nil(t, ec)
	require.True(t, api.IsNotFound(err))
}

func TestExecuteWorkflow_StepTimeout(t *testing.T) {
	o := New(Config{})
	o.RegisterHandler("sleepy", func(ctx context.Context, sc *api.StepContext) (map[string]any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return map[string]any{}, nil
		}
	})

	def := workflow("slow",
		api.Node{ID: "nap", Type: "sleepy", Config: map[string]any{"timeout_ms": 20}},
	)
	require.NoError(t, o.RegisterWorkflow(def))

	start := time.Now()
	ec, err := o.ExecuteWorkflow(context.Background(), "slow", nil)
	require.NoError(t, err, "timeouts are business failures")
	require.Less(t, time.Since(start), time.Second, "timeout must cut the wait short")
	require.Equal(t, api.StatusFailed, ec.Status)
	require.NotEmpty(t, ec.Errors)
	require.Contains(t, ec.Errors[0], "timed out")
}

func TestExecuteWorkflow_UnmetDependency(t *testing.T) {
	o, _ := recorderOrchestrator(t)

	def := workflow("deps",
		api.Node{ID: "needs-later", Type: "record", Config: map[string]any{
			"dependencies": []any{"later"},
		}},
		api.Node{ID: "later", Type: "record"},
	)
	require.NoError(t, o.RegisterWorkflow(def))

	ec, err := o.ExecuteWorkflow(context.Background(), "deps", nil)
	require.Equal(t, api.StatusFailed, ec.Status)

	var dep *api.UnmetDependencyError
	require.ErrorAs(t, err, &dep)
	require.Equal(t, "needs-later", dep.StepID)
	require.Equal(t, []string{"later"}, dep.Missing)
}

func TestExecuteWorkflow_SatisfiedDependency(t *testing.T) {
	o, order := recorderOrchestrator(t)

	def := workflow("deps-ok",
		api.Node{ID: "base", Type: "record"},
		api.Node{ID: "dependent", Type: "record", Config: map[string]any{
			"dependencies": []any{"base"},
		}},
	)
	require.NoError(t, o.RegisterWorkflow(def))

	ec, err := o.ExecuteWorkflow(context.Background(), "deps-ok", nil)
	require.NoError(t, err)
	require.Equal(t, api.StatusCompleted, ec.Status)
	require.Equal(t, []string{"base", "dependent"}, *order)
}

func TestExecuteWorkflow_BusinessFailure(t *testing.T) {
	o := New(Config{})
	o.RegisterHandler("flaky", func(ctx context.Context, sc *api.StepContext) (map[string]any, error) {
		return nil, errors.New("payment declined")
	})

	def := workflow("pay", api.Node{ID: "charge", Type: "flaky"})
	require.NoError(t, o.RegisterWorkflow(def))

	ec, err := o.ExecuteWorkflow(context.Background(), "pay", nil)
	require.NoError(t, err)
	require.Equal(t, api.StatusFailed, ec.Status)
	require.Contains(t, ec.Errors[0], "payment declined")
}

func TestExecuteWorkflow_UnknownNodeTypeIsStructural(t *testing.T) {
	o := New(Config{})

	def := workflow("bad", api.Node{ID: "n", Type: "antigravity"})
	require.NoError(t, o.RegisterWorkflow(def))

	ec, err := o.ExecuteWorkflow(context.Background(), "bad", nil)
	require.Equal(t, api.StatusFailed, ec.Status)

	var unknown *api.UnknownNodeTypeError
	require.ErrorAs(t, err, &unknown)
}

func TestExecuteWorkflowsParallel(t *testing.T) {
	o := New(Config{})

	var calls atomic.Int64
	o.RegisterHandler("count", func(ctx context.Context, sc *api.StepContext) (map[string]any, error) {
		calls.Add(1)
		return map[string]any{}, nil
	})

	for _, id := range []string{"w1", "w2", "w3"} {
		require.NoError(t, o.RegisterWorkflow(workflow(id, api.Node{ID: "n", Type: "count"})))
	}

	ecs, err := o.ExecuteWorkflowsParallel(context.Background(), []string{"w1", "w2", "w3"}, nil)
	require.NoError(t, err)
	require.Len(t, ecs, 3)
	require.Equal(t, int64(3), calls.Load())
	for i, ec := range ecs {
		require.Equal(t, []string{"w1", "w2", "w3"}[i], ec.WorkflowID, "results keep request order")
		require.Equal(t, api.StatusCompleted, ec.Status)
	}
}

func TestExecuteWorkflowsParallel_FailFast(t *testing.T) {
	o := New(Config{})
	o.RegisterHandler("ok", func(ctx context.Context, sc *api.StepContext) (map[string]any, error) {
		return map[string]any{}, nil
	})
	o.RegisterHandler("bad", func(ctx context.Context, sc *api.StepContext) (map[string]any, error) {
		return nil, errors.New("broken")
	})

	require.NoError(t, o.RegisterWorkflow(workflow("good", api.Node{ID: "n", Type: "ok"})))
	require.NoError(t, o.RegisterWorkflow(workflow("evil", api.Node{ID: "n", Type: "bad"})))

	ecs, err := o.ExecuteWorkflowsParallel(context.Background(), []string{"good", "evil"}, nil)
	require.Error(t, err)
	require.Nil(t, ecs, "fail-fast returns no partial results")
}

func TestExecuteWorkflowsSequence_MergesOutputs(t *testing.T) {
	o := New(Config{})

	o.RegisterHandler("produce", func(ctx context.Context, sc *api.StepContext) (map[string]any, error) {
		return map[string]any{"produced": "yes"}, nil
	})
	o.RegisterHandler("consume", func(ctx context.Context, sc *api.StepContext) (map[string]any, error) {
		if sc.Variables["produced"] != "yes" {
			return nil, errors.New("upstream output not threaded into input")
		}
		return map[string]any{"consumed": true}, nil
	})

	require.NoError(t, o.RegisterWorkflow(workflow("producer", api.Node{ID: "p", Type: "produce"})))
	require.NoError(t, o.RegisterWorkflow(workflow("consumer", api.Node{ID: "c", Type: "consume"})))

	ecs, err := o.ExecuteWorkflowsSequence(context.Background(), []string{"producer", "consumer"}, nil)
	require.NoError(t, err)
	require.Len(t, ecs, 2)
	require.Equal(t, api.StatusCompleted, ecs[1].Status)
	require.Equal(t, true, ecs[1].Output["consumed"])
}

func TestExecuteWorkflowsSequence_StopsOnFailure(t *testing.T) {
	o := New(Config{})
	o.RegisterHandler("bad", func(ctx context.Context, sc *api.StepContext) (map[string]any, error) {
		return nil, errors.New("broken")
	})

	var ran atomic.Bool
	o.RegisterHandler("later", func(ctx context.Context, sc *api.StepContext) (map[string]any, error) {
		ran.Store(true)
		return map[string]any{}, nil
	})

	require.NoError(t, o.RegisterWorkflow(workflow("failing", api.Node{ID: "n", Type: "bad"})))
	require.NoError(t, o.RegisterWorkflow(workflow("next", api.Node{ID: "n", Type: "later"})))

	ecs, err := o.ExecuteWorkflowsSequence(context.Background(), []string{"failing", "next"}, nil)
	require.Error(t, err)
	require.Len(t, ecs, 1, "contexts so far are returned")
	require.False(t, ran.Load(), "sequence must stop at the first failure")
}

func TestExecuteWorkflowsConditional(t *testing.T) {
	o, _ := recorderOrchestrator(t)

	require.NoError(t, o.RegisterWorkflow(workflow("matched", api.Node{ID: "m", Type: "record"})))
	require.NoError(t, o.RegisterWorkflow(workflow("fallback", api.Node{ID: "f", Type: "record"})))

	ec, err := o.ExecuteWorkflowsConditional(context.Background(), []api.ConditionalWorkflow{
		{Condition: func(prev *api.ExecutionContext) bool { return false }, WorkflowID: "never"},
		{Condition: func(prev *api.ExecutionContext) bool { return true }, WorkflowID: "matched"},
	}, "fallback", nil)
	require.NoError(t, err)
	require.Equal(t, "matched", ec.WorkflowID)
}

func TestExecuteWorkflowsConditional_Default(t *testing.T) {
	o, _ := recorderOrchestrator(t)
	require.NoError(t, o.RegisterWorkflow(workflow("fallback", api.Node{ID: "f", Type: "record"})))

	ec, err := o.ExecuteWorkflowsConditional(context.Background(), []api.ConditionalWorkflow{
		{Condition: func(prev *api.ExecutionContext) bool { return false }, WorkflowID: "never"},
	}, "fallback", nil)
	require.NoError(t, err)
	require.Equal(t, "fallback", ec.WorkflowID)
}

func TestExecuteWorkflowsConditional_NothingMatches(t *testing.T) {
	o := New(Config{})

	ec, err := o.ExecuteWorkflowsConditional(context.Background(), []api.ConditionalWorkflow{
		{Condition: func(prev *api.ExecutionContext) bool { return false }, WorkflowID: "never"},
	}, "", nil)
	require.NoError(t, err)
	require.Nil(t, ec)
}

func TestExecuteWorkflowsLoop(t *testing.T) {
	o, _ := recorderOrchestrator(t)
	require.NoError(t, o.RegisterWorkflow(workflow("looped", api.Node{ID: "n", Type: "record"})))

	iterations := 0
	ecs, err := o.ExecuteWorkflowsLoop(context.Background(), "looped",
		func(last *api.ExecutionContext) bool {
			iterations++
			return iterations <= 3
		}, nil)
	require.NoError(t, err)
	require.Len(t, ecs, 3)
}

func TestExecuteWorkflowsLoop_PredicateSeesLastContext(t *testing.T) {
	o, _ := recorderOrchestrator(t)
	require.NoError(t, o.RegisterWorkflow(workflow("looped", api.Node{ID: "n", Type: "record"})))

	ecs, err := o.ExecuteWorkflowsLoop(context.Background(), "looped",
		func(last *api.ExecutionContext) bool {
			// The first evaluation sees a zero-value context; afterwards
			// stop as soon as a completed run is visible.
			return last.Status != api.StatusCompleted
		}, nil)
	require.NoError(t, err)
	require.Len(t, ecs, 1)
}

func TestCancelExecution(t *testing.T) {
	o := New(Config{})

	started := make(chan string, 1)
	gate := make(chan struct{})
	o.RegisterHandler("slow", func(ctx context.Context, sc *api.StepContext) (map[string]any, error) {
		select {
		case started <- sc.ExecutionID:
		default:
		}
		<-gate
		return map[string]any{}, nil
	})
	o.RegisterHandler("after", func(ctx context.Context, sc *api.StepContext) (map[string]any, error) {
		return map[string]any{"after": true}, nil
	})

	def := workflow("cancellable",
		api.Node{ID: "s1", Type: "slow"},
		api.Node{ID: "s2", Type: "after"},
	)
	require.NoError(t, o.RegisterWorkflow(def))

	done := make(chan *api.ExecutionContext, 1)
	go func() {
		ec, _ := o.ExecuteWorkflow(context.Background(), "cancellable", nil)
		done <- ec
	}()

	execID := <-started
	require.NoError(t, o.CancelExecution(execID))
	close(gate)

	ec := <-done
	require.Equal(t, api.StatusCancelled, ec.Status)
	require.Nil(t, ec.Output["after"], "steps after the cancel flag must not run")

	// Cancelling a finished execution is rejected.
	require.ErrorIs(t, o.CancelExecution(execID), api.ErrExecutionNotRunning)
}

func TestCancelExecution_TransitionsImmediately(t *testing.T) {
	o := New(Config{})

	started := make(chan string, 1)
	gate := make(chan struct{})
	o.RegisterHandler("slow", func(ctx context.Context, sc *api.StepContext) (map[string]any, error) {
		select {
		case started <- sc.ExecutionID:
		default:
		}
		<-gate
		return map[string]any{}, nil
	})

	require.NoError(t, o.RegisterWorkflow(workflow("hanging", api.Node{ID: "s1", Type: "slow"})))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = o.ExecuteWorkflow(context.Background(), "hanging", nil)
	}()

	execID := <-started
	require.NoError(t, o.CancelExecution(execID))

	// The terminal state is visible before the in-flight step returns.
	ec, ok := o.Execution(execID)
	require.True(t, ok)
	require.Equal(t, api.StatusCancelled, ec.Status)
	require.False(t, ec.EndTime.IsZero())

	close(gate)
	<-done

	m := o.Metrics()
	require.Equal(t, int64(1), m.Cancelled)
}

func TestCancelExecution_UnknownID(t *testing.T) {
	o := New(Config{})
	require.ErrorIs(t, o.CancelExecution("nope"), api.ErrExecutionNotRunning)
}

func TestExecutionLookupAndCompleted(t *testing.T) {
	o, _ := recorderOrchestrator(t)
	require.NoError(t, o.RegisterWorkflow(workflow("wf", api.Node{ID: "n", Type: "record"})))

	ec, err := o.ExecuteWorkflow(context.Background(), "wf", nil)
	require.NoError(t, err)

	found, ok := o.Execution(ec.ID)
	require.True(t, ok)
	require.Equal(t, ec.ID, found.ID)

	completed := o.CompletedExecutions()
	require.Len(t, completed, 1)

	o.ClearCompleted()
	require.Empty(t, o.CompletedExecutions())

	_, ok = o.Execution(ec.ID)
	require.False(t, ok, "cleared executions are forgotten")
}

func TestExecution_ReturnsSnapshot(t *testing.T) {
	o := New(Config{})

	started := make(chan string, 1)
	gate := make(chan struct{})
	o.RegisterHandler("slow", func(ctx context.Context, sc *api.StepContext) (map[string]any, error) {
		select {
		case started <- sc.ExecutionID:
		default:
		}
		<-gate
		return map[string]any{}, nil
	})

	require.NoError(t, o.RegisterWorkflow(workflow("observed", api.Node{ID: "s1", Type: "slow"})))

	done := make(chan *api.ExecutionContext, 1)
	go func() {
		ec, _ := o.ExecuteWorkflow(context.Background(), "observed", nil)
		done <- ec
	}()

	execID := <-started
	snap, ok := o.Execution(execID)
	require.True(t, ok)
	require.Equal(t, api.StatusRunning, snap.Status)
	require.Equal(t, "s1", snap.CurrentStep)

	// Mutating the snapshot must not leak into the live execution.
	snap.Status = api.StatusFailed
	snap.Metadata["steps"] = 99
	snap.Errors = append(snap.Errors, "injected")

	close(gate)
	ec := <-done
	require.Equal(t, api.StatusCompleted, ec.Status)
	require.Equal(t, 1, ec.Metadata["steps"])
	require.Empty(t, ec.Errors)
}

func TestExecution_ConcurrentPolling(t *testing.T) {
	o := New(Config{})

	started := make(chan string, 1)
	o.RegisterHandler("tick", func(ctx context.Context, sc *api.StepContext) (map[string]any, error) {
		select {
		case started <- sc.ExecutionID:
		default:
		}
		time.Sleep(time.Millisecond)
		return map[string]any{"at_" + sc.NodeID: true}, nil
	})

	def := api.FlowDefinition{ID: "ticking", Name: "ticking"}
	for i := 0; i < 30; i++ {
		def.Nodes = append(def.Nodes, api.Node{ID: fmt.Sprintf("t%d", i), Type: "tick"})
	}
	require.NoError(t, o.RegisterWorkflow(def))

	done := make(chan *api.ExecutionContext, 1)
	go func() {
		ec, _ := o.ExecuteWorkflow(context.Background(), "ticking", nil)
		done <- ec
	}()

	// Poll the monitoring API while the execution mutates its live context.
	execID := <-started
	for {
		snap, ok := o.Execution(execID)
		require.True(t, ok)
		_ = snap.Progress
		_ = snap.CurrentStep
		for range snap.Output {
		}
		if snap.Status.Terminal() {
			break
		}
	}

	ec := <-done
	require.Equal(t, api.StatusCompleted, ec.Status)
	require.Equal(t, float64(100), ec.Progress)
}

func TestMetrics(t *testing.T) {
	o := New(Config{})
	o.RegisterHandler("ok", func(ctx context.Context, sc *api.StepContext) (map[string]any, error) {
		return map[string]any{}, nil
	})
	o.RegisterHandler("bad", func(ctx context.Context, sc *api.StepContext) (map[string]any, error) {
		return nil, errors.New("broken")
	})

	require.NoError(t, o.RegisterWorkflow(workflow("good", api.Node{ID: "n", Type: "ok"})))
	require.NoError(t, o.RegisterWorkflow(workflow("evil", api.Node{ID: "n", Type: "bad"})))

	for i := 0; i < 3; i++ {
		_, err := o.ExecuteWorkflow(context.Background(), "good", nil)
		require.NoError(t, err)
	}
	_, err := o.ExecuteWorkflow(context.Background(), "evil", nil)
	require.NoError(t, err)

	m := o.Metrics()
	require.Equal(t, int64(4), m.TotalExecutions)
	require.Equal(t, int64(3), m.Successful)
	require.Equal(t, int64(1), m.Failed)
	require.InDelta(t, 0.75, m.SuccessRate, 1e-9)
	require.InDelta(t, 0.25, m.FailureRate, 1e-9)
	require.GreaterOrEqual(t, m.AverageExecutionTime, time.Duration(0))
}

func TestExecutionContext_StateMachine(t *testing.T) {
	o, _ := recorderOrchestrator(t)
	require.NoError(t, o.RegisterWorkflow(workflow("wf", api.Node{ID: "n", Type: "record"})))

	ec, err := o.ExecuteWorkflow(context.Background(), "wf", nil)
	require.NoError(t, err)
	require.Equal(t, api.StatusCompleted, ec.Status)

	// Terminal states are final: a late cancel must not change it.
	require.Error(t, o.CancelExecution(ec.ID))
	require.Equal(t, api.StatusCompleted, ec.Status)
}
