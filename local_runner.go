package floe

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/avensk/floe/internal/taskqueue"
	"github.com/avensk/floe/pkg/worker"
)

// LocalRunner bundles an in-memory Engine, an in-memory task queue, and a
// Worker to provide a simple "local runner" for development and debugging.
//
// Typical usage:
//
//	runner := floe.NewLocalRunner()
//	floe.New("my-flow").Node(...).MustRegister(runner.Engine)
//
//	// Synchronous run (no queue/worker involved):
//	result, err := runner.Engine.ExecuteFlow(ctx, "my-flow", input)
//
//	// Asynchronous run:
//	_ = runner.StartWorkers(ctx, 2)
//	_, _ = runner.ExecuteFlowAsync(ctx, "my-flow", input)
//	...
//	runner.Stop()
type LocalRunner struct {
	// Engine is the in-memory flow engine used by this runner.
	Engine Engine

	// Queue is the in-memory task queue used by the Worker.
	Queue taskqueue.Queue

	// Worker processes tasks from Queue using Engine.
	Worker *worker.Worker

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewLocalRunner constructs a LocalRunner backed by an in-memory engine and
// queue. Intended for local development, tests, and simple single-process
// deployments.
func NewLocalRunner() *LocalRunner {
	return NewLocalRunnerWithEngine(NewEngine())
}

// NewLocalRunnerWithEngine constructs a LocalRunner around an existing
// Engine, e.g. one built with NewEngineWithConfig.
func NewLocalRunnerWithEngine(eng Engine) *LocalRunner {
	q := taskqueue.NewInMemoryQueue(1024)
	return &LocalRunner{
		Engine: eng,
		Queue:  q,
		Worker: worker.New(eng, q),
	}
}

// StartWorkers starts 'concurrency' worker goroutines that continuously call
// Worker.ProcessOne(ctx) until the context is cancelled via Stop.
//
// If StartWorkers is called more than once without Stop, it returns an error.
func (r *LocalRunner) StartWorkers(ctx context.Context, concurrency int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("floe: LocalRunner already started")
	}

	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer r.wg.Done()

			for {
				if _, err := r.Worker.ProcessOne(ctx); err != nil {
					// Cancellation is a clean shutdown signal.
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return
					}
					// Log other errors and keep going so a single bad task
					// doesn't kill the worker loop.
					log.Printf("floe: local runner worker error: %v", err)
				}
			}
		}()
	}

	return nil
}

// Stop cancels all worker goroutines started by StartWorkers and waits for
// them to exit.
func (r *LocalRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

// ExecuteFlowAsync enqueues a task to run the given flow asynchronously and
// returns the task ID. The flow must already be registered on Engine.
func (r *LocalRunner) ExecuteFlowAsync(ctx context.Context, flowID string, input map[string]any) (string, error) {
	return r.Worker.EnqueueExecuteFlow(ctx, flowID, input)
}
