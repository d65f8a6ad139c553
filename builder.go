package floe

import (
	"fmt"

	"github.com/avensk/floe/pkg/api"
)

// FlowBuilder provides a fluent API for defining flow graphs:
//
//	flow := floe.New("signup").
//	    Node("check", "validation", map[string]any{
//	        "rules": []any{map[string]any{"field": "email", "rule": "required"}},
//	    }).
//	    Node("greet", "transform", map[string]any{
//	        "mapping": map[string]any{"message": "Welcome, $name"},
//	    }).
//	    Start("check").
//	    EdgeIf("check", "greet", "isValid == true")
//
//	if err := flow.Register(engine); err != nil {
//	    log.Fatal(err)
//	}
type FlowBuilder struct {
	def   api.FlowDefinition
	edges int
}

// New creates a new flow builder with the given ID. The flow's name defaults
// to its ID; use Name to override it.
func New(id string) *FlowBuilder {
	return &FlowBuilder{
		def: api.FlowDefinition{
			ID:   id,
			Name: id,
		},
	}
}

// Name sets the human-readable flow name.
func (b *FlowBuilder) Name(name string) *FlowBuilder {
	b.def.Name = name
	return b
}

// ID returns the flow ID.
func (b *FlowBuilder) ID() string {
	return b.def.ID
}

// Definition returns the underlying FlowDefinition. Typically used when
// interacting with lower-level APIs.
func (b *FlowBuilder) Definition() FlowDefinition {
	return b.def
}

// Node appends a node. The first node added becomes the start node unless
// Start overrides it.
func (b *FlowBuilder) Node(id, nodeType string, config map[string]any) *FlowBuilder {
	if id == "" {
		panic("floe: node ID must not be empty")
	}
	if nodeType == "" {
		panic(fmt.Sprintf("floe: node %q has empty type", id))
	}

	b.def.Nodes = append(b.def.Nodes, api.Node{
		ID:     id,
		Type:   nodeType,
		Config: config,
	})
	if b.def.StartNode == "" {
		b.def.StartNode = id
	}
	return b
}

// Start marks the node traversal begins at.
func (b *FlowBuilder) Start(nodeID string) *FlowBuilder {
	b.def.StartNode = nodeID
	return b
}

// Edge connects two nodes unconditionally.
func (b *FlowBuilder) Edge(source, target string) *FlowBuilder {
	return b.EdgeIf(source, target, "")
}

// EdgeIf connects two nodes behind a boolean condition over the flow
// variables. Edges added earlier win when several conditions match.
func (b *FlowBuilder) EdgeIf(source, target, condition string) *FlowBuilder {
	b.edges++
	b.def.Edges = append(b.def.Edges, api.Edge{
		ID:        fmt.Sprintf("%s-e%d", b.def.ID, b.edges),
		Source:    source,
		Target:    target,
		Condition: condition,
	})
	return b
}

// Register registers the built definition with the engine.
func (b *FlowBuilder) Register(eng Engine) error {
	return eng.RegisterFlow(b.def)
}

// MustRegister registers the built definition and panics on error. Intended
// for program initialization where a bad definition is a programming error.
func (b *FlowBuilder) MustRegister(eng Engine) {
	if err := b.Register(eng); err != nil {
		panic(fmt.Sprintf("floe: register flow %q: %v", b.def.ID, err))
	}
}
