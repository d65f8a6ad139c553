package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/avensk/floe/pkg/api"
)

func result(id string) *api.FlowResult {
	return &api.FlowResult{
		ID:     id,
		FlowID: "flow",
		Status: api.StatusCompleted,
		Output: map[string]any{"value": id},
	}
}

func TestCache_GetSet(t *testing.T) {
	c := New(10, time.Minute)

	if _, ok := c.Get("missing"); ok {
		t.Fatal("empty cache should miss")
	}

	c.Set("k1", result("r1"))
	got, ok := c.Get("k1")
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if got.ID != "r1" {
		t.Fatalf("got %s, want r1", got.ID)
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Size != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestCache_TTLExpiry(t *testing.T) {
	c := New(10, time.Minute)

	now := time.Unix(1000, 0)
	c.SetClock(func() time.Time { return now })

	c.Set("k1", result("r1"))

	now = now.Add(30 * time.Second)
	if _, ok := c.Get("k1"); !ok {
		t.Fatal("entry should still be fresh")
	}

	now = now.Add(31 * time.Second)
	if _, ok := c.Get("k1"); ok {
		t.Fatal("entry should have expired")
	}
	if c.Stats().Size != 0 {
		t.Fatal("expired entry should be removed on access")
	}
}

func TestCache_LRUEviction(t *testing.T) {
	c := New(3, time.Minute)

	c.Set("a", result("a"))
	c.Set("b", result("b"))
	c.Set("c", result("c"))

	// Touch "a" so it is the most recently used.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected hit for a")
	}

	// Inserting a fourth entry evicts the LRU, which is now "b".
	c.Set("d", result("d"))

	if _, ok := c.Get("a"); !ok {
		t.Fatal("recently-accessed entry a was evicted")
	}
	if _, ok := c.Get("b"); ok {
		t.Fatal("least-recently-used entry b should have been evicted")
	}
	if _, ok := c.Get("c"); !ok {
		t.Fatal("expected hit for c")
	}
	if _, ok := c.Get("d"); !ok {
		t.Fatal("expected hit for d")
	}
}

func TestCache_ReplaceDoesNotGrow(t *testing.T) {
	c := New(5, time.Minute)

	c.Set("k", result("v1"))
	c.Set("k", result("v2"))

	if size := c.Stats().Size; size != 1 {
		t.Fatalf("size = %d, want 1", size)
	}
	got, _ := c.Get("k")
	if got.ID != "v2" {
		t.Fatalf("got %s, want v2", got.ID)
	}
}

func TestCache_CapacityBound(t *testing.T) {
	c := New(4, time.Minute)

	for i := 0; i < 20; i++ {
		c.Set(fmt.Sprintf("k%d", i), result(fmt.Sprintf("r%d", i)))
	}
	if size := c.Stats().Size; size != 4 {
		t.Fatalf("size = %d, want 4", size)
	}
}

func TestCache_Delete(t *testing.T) {
	c := New(10, time.Minute)

	c.Set("k", result("r"))
	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Fatal("deleted entry should miss")
	}
	// Deleting an absent key is a no-op.
	c.Delete("missing")
}

func TestCache_ClearPreservesCounters(t *testing.T) {
	c := New(10, time.Minute)

	c.Set("k", result("r"))
	c.Get("k")
	c.Get("missing")

	c.Clear()

	stats := c.Stats()
	if stats.Size != 0 || stats.MemoryBytes != 0 {
		t.Fatalf("clear should empty the cache: %+v", stats)
	}
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("clear should preserve counters: %+v", stats)
	}
}

func TestCache_MemoryAccounting(t *testing.T) {
	c := New(10, time.Minute)
	c.SetSizer(func(any) int64 { return 100 })

	c.Set("a", result("a"))
	c.Set("b", result("b"))
	if mem := c.Stats().MemoryBytes; mem != 200 {
		t.Fatalf("memory = %d, want 200", mem)
	}

	c.Delete("a")
	if mem := c.Stats().MemoryBytes; mem != 100 {
		t.Fatalf("memory = %d, want 100", mem)
	}
}

func TestCache_DefaultsApplied(t *testing.T) {
	c := New(0, 0)
	if cap := c.Stats().Capacity; cap != DefaultCapacity {
		t.Fatalf("capacity = %d, want %d", cap, DefaultCapacity)
	}
}
