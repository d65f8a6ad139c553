package api

import (
	"errors"
	"fmt"
	"testing"
)

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("flow", "signup")
	if !IsNotFound(err) {
		t.Fatal("IsNotFound should match NotFoundError")
	}
	if IsNotFound(errors.New("other")) {
		t.Fatal("IsNotFound should reject unrelated errors")
	}

	wrapped := fmt.Errorf("running: %w", err)
	if !IsNotFound(wrapped) {
		t.Fatal("IsNotFound should see through wrapping")
	}
}

func TestStepExecutionError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &StepExecutionError{NodeID: "n1", Err: cause}

	if !errors.Is(err, cause) {
		t.Fatal("StepExecutionError should unwrap to its cause")
	}
	if err.Error() == "" {
		t.Fatal("error message should not be empty")
	}
}

func TestExpressionError_Unwrap(t *testing.T) {
	cause := errors.New("unexpected end of expression")
	err := &ExpressionError{Expression: "score >", Err: cause}

	if !errors.Is(err, cause) {
		t.Fatal("ExpressionError should unwrap to its cause")
	}
}

func TestErrorMessages(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&UnknownNodeTypeError{NodeID: "n1", NodeType: "warp"}, `no handler registered for node type "warp" (node n1)`},
		{&UnmetDependencyError{StepID: "s2", Missing: []string{"s1", "s0"}}, "step s2 has unmet dependencies: s1, s0"},
		{NewNotFoundError("node", "ghost"), "node not found: ghost"},
	}
	for _, tc := range cases {
		if got := tc.err.Error(); got != tc.want {
			t.Fatalf("got %q, want %q", got, tc.want)
		}
	}
}
