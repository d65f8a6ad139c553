package api

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrExecutionNotRunning is returned by CancelExecution when the target
	// execution is not in a cancellable state.
	ErrExecutionNotRunning = errors.New("execution is not running")

	// ErrNoStartNode is returned when a definition has no usable start node.
	ErrNoStartNode = errors.New("flow definition has no start node")
)

// NotFoundError reports a missing registered entity: an unregistered flow,
// a node referenced by an edge that does not exist in its definition, or an
// unknown execution ID.
type NotFoundError struct {
	Kind string // "flow", "workflow", "node", "execution"
	ID   string
}

func (e *NotFoundError) Error() string {
	return e.Kind + " not found: " + e.ID
}

// NewNotFoundError creates a NotFoundError for the given kind and ID.
func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// UnknownNodeTypeError reports a node whose type has no registered handler.
// It is a structural failure: the flow cannot run as configured.
type UnknownNodeTypeError struct {
	NodeID   string
	NodeType string
}

func (e *UnknownNodeTypeError) Error() string {
	return fmt.Sprintf("no handler registered for node type %q (node %s)", e.NodeType, e.NodeID)
}

// StepExecutionError wraps an error returned by a step handler, annotated
// with the node that failed.
type StepExecutionError struct {
	NodeID string
	Err    error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.NodeID, e.Err)
}

func (e *StepExecutionError) Unwrap() error { return e.Err }

// StepTimeoutError reports that a step did not finish within its allotted
// time. The underlying operation receives context cancellation but is not
// otherwise interrupted.
type StepTimeoutError struct {
	NodeID  string
	Timeout time.Duration
}

func (e *StepTimeoutError) Error() string {
	return fmt.Sprintf("step %s timed out after %s", e.NodeID, e.Timeout)
}

// UnmetDependencyError reports a step whose declared dependencies had not
// executed when the step was reached. The orchestrator checks dependencies
// against already-executed steps; it does not reorder steps to satisfy them.
type UnmetDependencyError struct {
	StepID  string
	Missing []string
}

func (e *UnmetDependencyError) Error() string {
	return fmt.Sprintf("step %s has unmet dependencies: %s", e.StepID, strings.Join(e.Missing, ", "))
}

// ExpressionError reports a condition expression that could not be parsed or
// evaluated. It is a structural failure of the flow definition.
type ExpressionError struct {
	Expression string
	Err        error
}

func (e *ExpressionError) Error() string {
	return fmt.Sprintf("condition %q: %v", e.Expression, e.Err)
}

func (e *ExpressionError) Unwrap() error { return e.Err }
