// Package floe provides a lightweight, embeddable workflow engine for Go.
//
// Floe executes workflows defined as directed graphs of typed nodes. It runs
// fully in-process, caches results of identical executions, tracks resource
// usage across concurrent flows, and integrates cleanly into existing
// codebases without external infrastructure.
//
// # Core Concepts
//
// The programming model is intentionally small:
//
//  1. Engine
//  2. Orchestrator
//  3. FlowBuilder
//  4. HandlerFunc
//  5. LocalRunner
//
// # Engine
//
// The Engine holds flow definitions and executes them by walking the graph
// from the start node: each node is dispatched to the handler registered for
// its type, the node's output is merged into the flow variables, and the
// next node is chosen by scanning the outgoing edges in declaration order
// for the first whose condition holds. Identical (flow, input) executions
// are served from a bounded TTL + LRU result cache.
//
// Outcomes are split in two: a flow that ran but whose step failed returns a
// FlowResult with StatusFailed and a nil error, while a flow that could not
// run as configured (unknown flow, missing node, unregistered node type, bad
// condition expression) returns a typed Go error and no result.
//
// # Orchestrator
//
// The Orchestrator is the coarser layer: it runs a workflow's nodes strictly
// in declaration order, races every step against a timeout, and composes
// whole workflows in parallel, in sequence, conditionally and in loops. Use
// it when the unit of coordination is "run these workflows" rather than
// "walk this graph".
//
// # FlowBuilder
//
// FlowBuilder is the fluent way to construct definitions:
//
//	flow := floe.New("signup").
//	    Node("check", "validation", checkConfig).
//	    Node("greet", "transform", greetConfig).
//	    EdgeIf("check", "greet", "isValid == true")
//	flow.MustRegister(engine)
//
// # HandlerFunc
//
// Node types map to handlers. Four pure types are built in: validation,
// transform, condition and wait. Integration types (HTTP calls, database
// queries, email) are contracts: the host application registers its own
// adapters with Engine.RegisterHandler.
//
// # LocalRunner
//
// LocalRunner bundles an engine, an in-memory task queue and a worker pool
// for fire-and-forget execution in a single process.
//
// # Observability
//
// Every lifecycle transition is delivered synchronously to an Observer.
// LoggingObserver (log/slog), BasicMetrics (atomic counters) and
// metrics.PrometheusObserver ship in the box and compose via
// NewCompositeObserver.
package floe
