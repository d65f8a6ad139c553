// Package dispatch maps node types to step handlers and executes single
// steps, measuring duration and estimated memory cost.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/avensk/floe/pkg/api"
)

// StepOutput is the measured result of one step execution.
type StepOutput struct {
	Output         map[string]any
	Duration       time.Duration
	MemoryEstimate int64
}

// Dispatcher holds the type -> handler registry.
//
// Built-in handlers cover the pure step types (validation, transform,
// condition, wait). Integration-style types (api_call, database_query,
// email, notification, external_service, file_processing) are contracts
// only: the host application registers adapters for them via Register.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]api.HandlerFunc
	sizeOf   func(any) int64
}

// New creates a Dispatcher with the built-in handlers registered.
func New() *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[string]api.HandlerFunc),
		sizeOf:   api.EstimateSize,
	}
	d.Register("validation", validationHandler)
	d.Register("transform", transformHandler)
	d.Register("condition", conditionHandler)
	d.Register("wait", waitHandler)
	return d
}

// Register installs a handler for a node type, overwriting any previous
// handler for that type. This supports runtime extension without modifying
// the dispatcher.
func (d *Dispatcher) Register(nodeType string, h api.HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[nodeType] = h
}

// Has reports whether a handler is registered for the node type.
func (d *Dispatcher) Has(nodeType string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[nodeType]
	return ok
}

// SetSizer overrides the cost-estimation strategy applied to step outputs.
func (d *Dispatcher) SetSizer(sizeOf func(any) int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sizeOf = sizeOf
}

// Execute runs one step. It returns UnknownNodeTypeError when no handler is
// registered for the node's type, and wraps handler errors in
// StepExecutionError annotated with the node ID.
//
// Timeout enforcement belongs to the caller; Execute only measures its own
// clock and passes ctx through to the handler.
func (d *Dispatcher) Execute(ctx context.Context, node *api.Node, sc *api.StepContext) (*StepOutput, error) {
	d.mu.RLock()
	h, ok := d.handlers[node.Type]
	sizeOf := d.sizeOf
	d.mu.RUnlock()

	if !ok {
		return nil, &api.UnknownNodeTypeError{NodeID: node.ID, NodeType: node.Type}
	}

	start := time.Now()
	out, err := h(ctx, sc)
	elapsed := time.Since(start)

	if err != nil {
		return nil, &api.StepExecutionError{NodeID: node.ID, Err: err}
	}

	return &StepOutput{
		Output:         out,
		Duration:       elapsed,
		MemoryEstimate: sizeOf(out),
	}, nil
}
