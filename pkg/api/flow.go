package api

import (
	"context"
	"time"
)

// Status represents the lifecycle state of a flow execution.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether a status is final. Terminal statuses never
// transition to another state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// FlowDefinition describes a flow as a directed graph of typed nodes.
//
// Definitions are registered with an Engine by ID; registering the same ID
// again overwrites the previous definition. Node references held by edges are
// checked lazily, at traversal time, not at registration.
type FlowDefinition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version,omitempty"`
	StartNode   string `json:"startNode"`
	Nodes       []Node `json:"nodes"`
	Edges       []Edge `json:"edges"`
}

// FindNode returns the node with the given ID, or nil if it is not part of
// the definition.
func (d *FlowDefinition) FindNode(id string) *Node {
	for i := range d.Nodes {
		if d.Nodes[i].ID == id {
			return &d.Nodes[i]
		}
	}
	return nil
}

// OutgoingEdges returns the edges whose source is the given node, in
// declaration order.
func (d *FlowDefinition) OutgoingEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range d.Edges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// Node is one unit of work in a flow. Type selects the handler that executes
// it; Config carries handler-specific settings.
type Node struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Label       string         `json:"label,omitempty"`
	Description string         `json:"description,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
}

// ConfigString returns a string config value, or def when absent.
func (n *Node) ConfigString(key, def string) string {
	if s, ok := n.Config[key].(string); ok {
		return s
	}
	return def
}

// ConfigInt returns an integer config value, or def when absent. JSON decodes
// numbers as float64, so both int and float64 are accepted.
func (n *Node) ConfigInt(key string, def int) int {
	switch v := n.Config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// Edge is a directed connection between two nodes. An empty Condition always
// matches; otherwise the condition is a boolean expression over the current
// variables.
type Edge struct {
	ID        string `json:"id"`
	Source    string `json:"source"`
	Target    string `json:"target"`
	Label     string `json:"label,omitempty"`
	Condition string `json:"condition,omitempty"`
}

// FlowInstance is one in-flight run of a flow against a given input.
//
// Variables accumulate step outputs as traversal proceeds; keys are only ever
// added or overwritten, never removed mid-run.
type FlowInstance struct {
	ID          string         `json:"id"`
	FlowID      string         `json:"flowId"`
	Status      Status         `json:"status"`
	StartTime   time.Time      `json:"startTime"`
	Variables   map[string]any `json:"variables"`
	CurrentNode string         `json:"currentNode"`
}

// Clone returns a snapshot of the instance that is safe to inspect while the
// execution keeps running.
func (fi *FlowInstance) Clone() *FlowInstance {
	out := *fi
	out.Variables = CopyVariables(fi.Variables)
	return &out
}

// StepContext is the per-step bundle handed to a handler. Variables is a
// defensive copy: mutating it does not affect the owning instance.
type StepContext struct {
	ExecutionID     string
	FlowID          string
	NodeID          string
	Variables       map[string]any
	Input           map[string]any
	Config          map[string]any
	AvailableMemory int64
}

// HandlerFunc executes one step. The returned map is shallow-merged into the
// instance variables; later keys overwrite earlier ones.
//
// Handlers receive the step's context.Context and should honor its deadline
// and cancellation where their underlying operation allows it.
type HandlerFunc func(ctx context.Context, sc *StepContext) (map[string]any, error)

// Performance holds per-execution counters reported on a FlowResult.
type Performance struct {
	NodesExecuted int   `json:"nodesExecuted"`
	MemoryPeak    int64 `json:"memoryPeak"`
	CacheHits     int   `json:"cacheHits"`
	CacheMisses   int   `json:"cacheMisses"`
}

// FlowResult is the structured outcome of one flow execution.
//
// Status is StatusCompleted or StatusFailed. A failed result represents a
// business-rule failure (a step returned a domain error); structural failures
// such as an unknown flow or a missing node are returned as Go errors instead
// and produce no FlowResult.
type FlowResult struct {
	ID            string         `json:"id"`
	FlowID        string         `json:"flowId"`
	Status        Status         `json:"status"`
	StartTime     time.Time      `json:"startTime"`
	EndTime       time.Time      `json:"endTime"`
	ExecutionTime time.Duration  `json:"executionTime"`
	ExecutionPath []string       `json:"executionPath"`
	Results       map[string]any `json:"results"`
	Output        map[string]any `json:"output"`
	MemoryUsage   int64          `json:"memoryUsage"`
	Error         string         `json:"error,omitempty"`
	Performance   Performance    `json:"performance"`
}

// ExecutionContext tracks one orchestrator-level execution.
//
// State machine: pending -> running -> {completed | failed | cancelled}.
// No transitions leave a terminal state.
type ExecutionContext struct {
	ID          string         `json:"id"`
	WorkflowID  string         `json:"workflowId"`
	Status      Status         `json:"status"`
	StartTime   time.Time      `json:"startTime"`
	EndTime     time.Time      `json:"endTime,omitempty"`
	Progress    float64        `json:"progress"`
	CurrentStep string         `json:"currentStep,omitempty"`
	Errors      []string       `json:"errors,omitempty"`
	Warnings    []string       `json:"warnings,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`

	// Output holds the merged variables recorded when the execution
	// finished. Sequence composition threads it into the next workflow's
	// input.
	Output map[string]any `json:"output,omitempty"`
}

// Clone returns a snapshot of the context that is safe to inspect while the
// execution keeps running.
func (ec *ExecutionContext) Clone() *ExecutionContext {
	out := *ec
	out.Errors = append([]string(nil), ec.Errors...)
	out.Warnings = append([]string(nil), ec.Warnings...)
	if ec.Metadata != nil {
		out.Metadata = CopyVariables(ec.Metadata)
	}
	if ec.Output != nil {
		out.Output = CopyVariables(ec.Output)
	}
	return &out
}

// ConditionalWorkflow pairs a predicate with the workflow to run when it
// matches. The predicate is evaluated against the previous execution's
// context (an empty synthetic context on the first evaluation).
type ConditionalWorkflow struct {
	Condition  func(prev *ExecutionContext) bool
	WorkflowID string
}

// OrchestratorMetrics is an aggregate snapshot over all orchestrator
// executions since construction.
type OrchestratorMetrics struct {
	TotalExecutions      int64
	Successful           int64
	Failed               int64
	Cancelled            int64
	AverageExecutionTime time.Duration
	SuccessRate          float64
	FailureRate          float64
}

// CacheStats is a snapshot of the result cache.
type CacheStats struct {
	Size        int
	Capacity    int
	Hits        int64
	Misses      int64
	MemoryBytes int64
}

// CopyVariables returns a shallow copy of vars, never nil.
func CopyVariables(vars map[string]any) map[string]any {
	out := make(map[string]any, len(vars))
	for k, v := range vars {
		out[k] = v
	}
	return out
}

// MergeVariables shallow-merges src into dst, later keys overwriting earlier
// ones, and returns dst.
func MergeVariables(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
