package persistence

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/avensk/floe/pkg/api"
)

// SQLiteArchiveStore is an ArchiveStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing the
// driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteArchiveStore struct {
	db *sql.DB
}

var _ ArchiveStore = (*SQLiteArchiveStore)(nil)

// NewSQLiteArchiveStore initializes the required schema in the given
// database and returns a new SQLiteArchiveStore.
func NewSQLiteArchiveStore(db *sql.DB) (*SQLiteArchiveStore, error) {
	s := &SQLiteArchiveStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteArchiveStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS flow_results (
			id TEXT PRIMARY KEY,
			flow_id TEXT NOT NULL,
			status TEXT NOT NULL,
			start_time INTEGER NOT NULL,
			end_time INTEGER NOT NULL,
			execution_time_ns INTEGER NOT NULL,
			execution_path TEXT NOT NULL,
			results BLOB,
			output BLOB,
			memory_usage INTEGER NOT NULL,
			error TEXT,
			nodes_executed INTEGER NOT NULL,
			memory_peak INTEGER NOT NULL,
			cache_hits INTEGER NOT NULL,
			cache_misses INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_flow_results_flow_id
			ON flow_results (flow_id);`,
	)
	return err
}

func (s *SQLiteArchiveStore) SaveResult(result *api.FlowResult) error {
	path, err := json.Marshal(result.ExecutionPath)
	if err != nil {
		return err
	}
	results, err := json.Marshal(result.Results)
	if err != nil {
		return err
	}
	output, err := json.Marshal(result.Output)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO flow_results (
			id, flow_id, status, start_time, end_time, execution_time_ns,
			execution_path, results, output, memory_usage, error,
			nodes_executed, memory_peak, cache_hits, cache_misses
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			end_time = excluded.end_time,
			execution_time_ns = excluded.execution_time_ns,
			execution_path = excluded.execution_path,
			results = excluded.results,
			output = excluded.output,
			memory_usage = excluded.memory_usage,
			error = excluded.error,
			nodes_executed = excluded.nodes_executed,
			memory_peak = excluded.memory_peak,
			cache_hits = excluded.cache_hits,
			cache_misses = excluded.cache_misses`,
		result.ID,
		result.FlowID,
		string(result.Status),
		result.StartTime.UnixNano(),
		result.EndTime.UnixNano(),
		int64(result.ExecutionTime),
		string(path),
		results,
		output,
		result.MemoryUsage,
		result.Error,
		result.Performance.NodesExecuted,
		result.Performance.MemoryPeak,
		result.Performance.CacheHits,
		result.Performance.CacheMisses,
	)
	return err
}

func (s *SQLiteArchiveStore) GetResult(executionID string) (*api.FlowResult, error) {
	row := s.db.QueryRow(`
		SELECT id, flow_id, status, start_time, end_time, execution_time_ns,
			execution_path, results, output, memory_usage, error,
			nodes_executed, memory_peak, cache_hits, cache_misses
		FROM flow_results WHERE id = ?`, executionID)

	result, err := scanResult(row)
	if err == sql.ErrNoRows {
		return nil, ErrResultNotFound
	}
	return result, err
}

func (s *SQLiteArchiveStore) ListResults(filter ResultFilter) ([]*api.FlowResult, error) {
	query := `
		SELECT id, flow_id, status, start_time, end_time, execution_time_ns,
			execution_path, results, output, memory_usage, error,
			nodes_executed, memory_peak, cache_hits, cache_misses
		FROM flow_results WHERE 1=1`
	var args []any
	if filter.FlowID != "" {
		query += " AND flow_id = ?"
		args = append(args, filter.FlowID)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	query += " ORDER BY start_time"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*api.FlowResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (*api.FlowResult, error) {
	var (
		r                 api.FlowResult
		status            string
		startNs, endNs    int64
		execNs            int64
		path              string
		resultsB, outputB []byte
	)

	err := row.Scan(
		&r.ID, &r.FlowID, &status, &startNs, &endNs, &execNs,
		&path, &resultsB, &outputB, &r.MemoryUsage, &r.Error,
		&r.Performance.NodesExecuted, &r.Performance.MemoryPeak,
		&r.Performance.CacheHits, &r.Performance.CacheMisses,
	)
	if err != nil {
		return nil, err
	}

	r.Status = api.Status(status)
	r.StartTime = time.Unix(0, startNs)
	r.EndTime = time.Unix(0, endNs)
	r.ExecutionTime = time.Duration(execNs)

	if err := json.Unmarshal([]byte(path), &r.ExecutionPath); err != nil {
		return nil, err
	}
	if len(resultsB) > 0 {
		if err := json.Unmarshal(resultsB, &r.Results); err != nil {
			return nil, err
		}
	}
	if len(outputB) > 0 {
		if err := json.Unmarshal(outputB, &r.Output); err != nil {
			return nil, err
		}
	}
	return &r, nil
}
