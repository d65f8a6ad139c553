// Package api contains the core building blocks used by the floe flow
// orchestrator. It provides the data model for flow graphs, the Engine and
// Orchestrator contracts, the error taxonomy, and the Observer interface
// used for lifecycle events.
//
// Most users interact with the higher-level floe package, which re-exports
// selected types and helpers from this package. The api package is intended
// for advanced use cases, custom integrations, or contributors extending the
// engine itself.
//
// # Flows
//
// A FlowDefinition is a named directed graph: typed nodes connected by edges,
// each edge optionally guarded by a boolean condition over the accumulated
// variables. Definitions are registered with an Engine by ID and executed
// against a JSON-like input map. Each execution produces a FlowResult holding
// the ordered execution path, per-node outputs, merged variables, and
// performance counters.
//
// # Outcomes
//
// The engine distinguishes two failure kinds and never conflates them:
//
//   - Business failures: a step handler returned a domain error. The flow
//     ran but a step failed; the caller gets a FlowResult with StatusFailed,
//     the error message, and the partial execution path.
//   - Structural failures: the flow could not run as configured (unknown
//     flow, missing node, unregistered node type, malformed condition).
//     These are returned as typed Go errors with no FlowResult.
//
// # Observability
//
// Observers receive lifecycle events (flow registered/started/completed/
// failed, step started/completed/failed, cache hit) synchronously, before
// the triggering call returns. Ready-made implementations cover structured
// logging via log/slog and in-memory counters; see also the metrics package
// for a Prometheus-backed observer.
package api
