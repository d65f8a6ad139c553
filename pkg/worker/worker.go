// Package worker pulls tasks from a queue and executes them against an
// Engine, enabling fire-and-forget flow execution.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/avensk/floe/internal/taskqueue"
	"github.com/avensk/floe/pkg/api"
)

// Worker pulls tasks from a Queue and executes them using an Engine.
type Worker struct {
	engine api.Engine
	queue  taskqueue.Queue
}

// New creates a new Worker.
func New(engine api.Engine, queue taskqueue.Queue) *Worker {
	return &Worker{
		engine: engine,
		queue:  queue,
	}
}

// EnqueueExecuteFlow enqueues a task to run a flow asynchronously. It does
// NOT run the flow itself; that is done by ProcessOne. The returned task ID
// can be used to correlate logs.
func (w *Worker) EnqueueExecuteFlow(ctx context.Context, flowID string, input map[string]any) (string, error) {
	t := taskqueue.Task{
		ID:         "task-" + uuid.NewString(),
		Type:       taskqueue.TaskTypeExecuteFlow,
		FlowID:     flowID,
		Input:      input,
		EnqueuedAt: time.Now(),
	}
	if err := w.queue.Enqueue(ctx, t); err != nil {
		return "", err
	}
	return t.ID, nil
}

// ProcessOne pulls a single task from the queue and processes it.
// Returns (processed, error):
//   - processed == false: no task was processed (ctx cancelled before one
//     was obtained)
//   - processed == true: a task ran; err reports whether it succeeded.
//
// A business-failed flow counts as processed successfully: the failure lives
// in the archived FlowResult, not in the worker loop.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	task, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	switch task.Type {
	case taskqueue.TaskTypeExecuteFlow:
		_, runErr := w.engine.ExecuteFlow(ctx, task.FlowID, task.Input)
		return true, runErr

	default:
		return true, errors.New("unknown task type: " + string(task.Type))
	}
}
