package floe_test

import (
	"context"
	"fmt"

	"github.com/avensk/floe"
)

// ExampleFlowBuilder shows the typical synchronous path: build a flow,
// register it, execute it, inspect the result.
func ExampleFlowBuilder() {
	eng := floe.NewEngine()

	floe.New("greeter").
		Node("check", "validation", map[string]any{
			"rules": []any{map[string]any{"field": "name", "rule": "required"}},
		}).
		Node("greet", "transform", map[string]any{
			"mapping": map[string]any{"message": "Hello $name"},
		}).
		EdgeIf("check", "greet", "isValid == true").
		MustRegister(eng)

	result, err := eng.ExecuteFlow(context.Background(), "greeter", map[string]any{"name": "ada"})
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Println(result.Status)
	fmt.Println(result.Output["message"])
	// Output:
	// COMPLETED
	// Hello ada
}

// ExampleOrchestrator shows declaration-order execution with a step timeout
// and composed sequencing.
func ExampleOrchestrator() {
	orch := floe.NewOrchestrator()

	orch.RegisterHandler("stamp", func(ctx context.Context, sc *floe.StepContext) (map[string]any, error) {
		return map[string]any{"stamped_by": sc.NodeID}, nil
	})

	_ = orch.RegisterWorkflow(floe.FlowDefinition{
		ID: "stamping",
		Nodes: []floe.Node{
			{ID: "first", Type: "stamp", Config: map[string]any{"timeout_ms": 1000}},
			{ID: "second", Type: "stamp"},
		},
	})

	ec, err := orch.ExecuteWorkflow(context.Background(), "stamping", nil)
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Println(ec.Status)
	fmt.Println(ec.Output["stamped_by"])
	// Output:
	// COMPLETED
	// second
}
