package persistence

import (
	"sync"

	"github.com/avensk/floe/pkg/api"
)

// InMemoryStore is a simple, goroutine-safe ArchiveStore backed by a map.
type InMemoryStore struct {
	mu      sync.RWMutex
	results map[string]*api.FlowResult
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		results: make(map[string]*api.FlowResult),
	}
}

var _ ArchiveStore = (*InMemoryStore)(nil)

func (s *InMemoryStore) SaveResult(result *api.FlowResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results[result.ID] = result
	return nil
}

func (s *InMemoryStore) GetResult(executionID string) (*api.FlowResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, ok := s.results[executionID]
	if !ok {
		return nil, ErrResultNotFound
	}
	return result, nil
}

func (s *InMemoryStore) ListResults(filter ResultFilter) ([]*api.FlowResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*api.FlowResult
	for _, r := range s.results {
		if filter.FlowID != "" && r.FlowID != filter.FlowID {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
