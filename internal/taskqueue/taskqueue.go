// Package taskqueue decouples flow submission from flow execution: producers
// enqueue "execute flow" tasks and workers drain them.
package taskqueue

import (
	"context"
	"time"
)

// TaskType identifies what the worker should do with a task.
type TaskType string

const (
	TaskTypeExecuteFlow TaskType = "execute-flow"
)

// Task is one unit of asynchronous work.
type Task struct {
	ID   string
	Type TaskType

	// For execute-flow tasks.
	FlowID string
	Input  map[string]any

	EnqueuedAt time.Time
}

// Queue is a simple async task queue.
type Queue interface {
	// Enqueue adds a task, respecting ctx for cancellation.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue removes and returns the next task, blocking until one is
	// available or the context is cancelled.
	Dequeue(ctx context.Context) (*Task, error)

	// Len returns the approximate number of queued tasks.
	Len() int
}
