package floe

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestLocalRunner_AsyncExecution(t *testing.T) {
	ctx := context.Background()
	runner := NewLocalRunner()

	New("async-flow").
		Node("shape", "transform", map[string]any{
			"mapping": map[string]any{"greeting": "Hello $name"},
		}).
		MustRegister(runner.Engine)

	require.NoError(t, runner.StartWorkers(ctx, 2))
	defer runner.Stop()

	taskID, err := runner.ExecuteFlowAsync(ctx, "async-flow", map[string]any{"name": "ada"})
	require.NoError(t, err)
	require.NotEmpty(t, taskID)

	// The worker ran the flow when the identical synchronous call hits the
	// cache instead of recomputing.
	require.Eventually(t, func() bool {
		return runner.Engine.CacheStats().Size == 1
	}, 2*time.Second, 5*time.Millisecond)

	result, err := runner.Engine.ExecuteFlow(ctx, "async-flow", map[string]any{"name": "ada"})
	require.NoError(t, err)
	require.Equal(t, "Hello ada", result.Output["greeting"])
	require.Equal(t, int64(1), runner.Engine.CacheStats().Hits)
}

func TestLocalRunner_StartTwiceFails(t *testing.T) {
	runner := NewLocalRunner()
	ctx := context.Background()

	require.NoError(t, runner.StartWorkers(ctx, 1))
	require.Error(t, runner.StartWorkers(ctx, 1))

	runner.Stop()
	// Stop is idempotent.
	runner.Stop()

	// After Stop the runner can start again.
	require.NoError(t, runner.StartWorkers(ctx, 1))
	runner.Stop()
}

func TestNewEngineWithConfig_SQLiteArchive(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	eng, err := NewEngineWithConfig(EngineConfig{DB: db})
	require.NoError(t, err)

	New("archived").
		Node("shape", "transform", map[string]any{
			"mapping": map[string]any{"out": "$in"},
		}).
		MustRegister(eng)

	result, err := eng.ExecuteFlow(context.Background(), "archived", map[string]any{"in": "value"})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, result.Status)

	// The archive row exists in the backing database.
	var count int
	require.NoError(t, db.QueryRow(
		"SELECT COUNT(*) FROM flow_results WHERE id = ?", result.ID,
	).Scan(&count))
	require.Equal(t, 1, count)
}

func TestNewSQLiteEngine(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	eng, err := NewSQLiteEngine(db)
	require.NoError(t, err)
	require.NotNil(t, eng)
}
