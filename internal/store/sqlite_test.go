package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/clinical-extract/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSQLiteRunLifecycle(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "doc-1", "anthropic", []string{"Observation", "Condition"})
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusQueued, run.Status)

	require.NoError(t, s.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning))

	result := &model.RunResult{
		RecordCounts:   map[string]int{"Observation": 2},
		TotalRecords:   2,
		DurationMillis: 1200,
	}
	require.NoError(t, s.UpdateRunResult(ctx, run.ID, model.RunStatusComplete, result))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "doc-1", got.DocumentID)
	assert.Equal(t, "anthropic", got.Provider)
	assert.Equal(t, []string{"Observation", "Condition"}, got.ResourceTypes)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, 2, got.Result.RecordCounts["Observation"])
}

func TestSQLiteRunFailure(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "doc-2", "openai", []string{"Observation"})
	require.NoError(t, err)

	result := &model.RunResult{Error: "total timeout exceeded"}
	require.NoError(t, s.UpdateRunResult(ctx, run.ID, model.RunStatusFailed, result))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Equal(t, "total timeout exceeded", got.Result.Error)
}

func TestSQLiteUpdateMissingRun(t *testing.T) {
	s := newTestSQLite(t)

	err := s.UpdateRunStatus(context.Background(), "no-such-run", model.RunStatusRunning)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLiteListRunsFiltered(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	a, err := s.CreateRun(ctx, "doc-a", "anthropic", []string{"Observation"})
	require.NoError(t, err)
	_, err = s.CreateRun(ctx, "doc-b", "anthropic", []string{"Condition"})
	require.NoError(t, err)
	require.NoError(t, s.UpdateRunStatus(ctx, a.ID, model.RunStatusRunning))

	running, err := s.ListRuns(ctx, RunFilter{Status: model.RunStatusRunning})
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, a.ID, running[0].ID)

	byDoc, err := s.ListRuns(ctx, RunFilter{DocumentID: "doc-b"})
	require.NoError(t, err)
	require.Len(t, byDoc, 1)
	assert.Equal(t, "doc-b", byDoc[0].DocumentID)

	limited, err := s.ListRuns(ctx, RunFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
