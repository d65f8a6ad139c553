// Package persistence stores completed flow results for later inspection.
package persistence

import (
	"errors"

	"github.com/avensk/floe/pkg/api"
)

// ErrResultNotFound is returned when a stored result is not found.
var ErrResultNotFound = errors.New("result not found")

// ResultFilter selects results from the store. Empty fields mean "no filter".
type ResultFilter struct {
	FlowID string
	Status api.Status
}

// ArchiveStore handles storage of completed flow results. Stores must be
// safe for concurrent use; the engine writes from many executions at once.
//
// Archive faults never fail a flow: the engine treats a failed save as a
// logged no-op.
type ArchiveStore interface {
	SaveResult(result *api.FlowResult) error
	GetResult(executionID string) (*api.FlowResult, error)
	ListResults(filter ResultFilter) ([]*api.FlowResult, error)
}
