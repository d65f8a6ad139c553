package persistence

import (
	"testing"
	"time"

	"github.com/avensk/floe/pkg/api"
)

func sampleResult(id, flowID string, status api.Status) *api.FlowResult {
	start := time.Now().Add(-time.Second)
	return &api.FlowResult{
		ID:            id,
		FlowID:        flowID,
		Status:        status,
		StartTime:     start,
		EndTime:       start.Add(time.Second),
		ExecutionTime: time.Second,
		ExecutionPath: []string{"a", "b"},
		Results:       map[string]any{"a": map[string]any{"ok": true}},
		Output:        map[string]any{"value": "done"},
		MemoryUsage:   128,
		Performance: api.Performance{
			NodesExecuted: 2,
			MemoryPeak:    128,
			CacheMisses:   1,
		},
	}
}

func TestInMemoryStore_RoundTrip(t *testing.T) {
	s := NewInMemoryStore()

	if _, err := s.GetResult("missing"); err != ErrResultNotFound {
		t.Fatalf("expected ErrResultNotFound, got %v", err)
	}

	r := sampleResult("exec-1", "flow-a", api.StatusCompleted)
	if err := s.SaveResult(r); err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}

	got, err := s.GetResult("exec-1")
	if err != nil {
		t.Fatalf("GetResult failed: %v", err)
	}
	if got.FlowID != "flow-a" || got.Status != api.StatusCompleted {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestInMemoryStore_ListFilters(t *testing.T) {
	s := NewInMemoryStore()

	must := func(err error) {
		if err != nil {
			t.Fatalf("SaveResult failed: %v", err)
		}
	}
	must(s.SaveResult(sampleResult("e1", "flow-a", api.StatusCompleted)))
	must(s.SaveResult(sampleResult("e2", "flow-a", api.StatusFailed)))
	must(s.SaveResult(sampleResult("e3", "flow-b", api.StatusCompleted)))

	all, err := s.ListResults(ResultFilter{})
	if err != nil {
		t.Fatalf("ListResults failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}

	byFlow, _ := s.ListResults(ResultFilter{FlowID: "flow-a"})
	if len(byFlow) != 2 {
		t.Fatalf("flow-a results = %d, want 2", len(byFlow))
	}

	failed, _ := s.ListResults(ResultFilter{Status: api.StatusFailed})
	if len(failed) != 1 || failed[0].ID != "e2" {
		t.Fatalf("unexpected failed results: %v", failed)
	}

	both, _ := s.ListResults(ResultFilter{FlowID: "flow-b", Status: api.StatusFailed})
	if len(both) != 0 {
		t.Fatalf("expected no flow-b failed results, got %v", both)
	}
}

func TestInMemoryStore_SaveOverwrites(t *testing.T) {
	s := NewInMemoryStore()

	r := sampleResult("e1", "flow-a", api.StatusRunning)
	if err := s.SaveResult(r); err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}

	r2 := sampleResult("e1", "flow-a", api.StatusCompleted)
	if err := s.SaveResult(r2); err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}

	got, _ := s.GetResult("e1")
	if got.Status != api.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", got.Status)
	}
}
