package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/clinical-extract/internal/extract"
	"github.com/sells-group/clinical-extract/internal/model"
	"github.com/sells-group/clinical-extract/internal/schema"
	"github.com/sells-group/clinical-extract/internal/store"
)

// fakeExtractor scripts Extract outcomes per attempt.
type fakeExtractor struct {
	calls   int
	outcome func(attempt int, ctx context.Context) (map[string][]model.CitedRecord, error)
}

func (f *fakeExtractor) Extract(ctx context.Context, doc *model.Document, targets []schema.Resource) (map[string][]model.CitedRecord, error) {
	f.calls++
	return f.outcome(f.calls, ctx)
}

type obsResource struct{}

func (obsResource) ResourceType() string { return "Observation" }

func (obsResource) Construct(fields map[string]any) (map[string]any, error) {
	if _, ok := fields["code"]; !ok {
		return nil, errors.New("code is required")
	}
	return fields, nil
}

func testDoc() *model.Document {
	return model.NewDocument("doc-1", "Heart rate 72 bpm. Heart rate 72 bpm.")
}

func observation(code string, citation string) model.CitedRecord {
	return model.CitedRecord{Record: map[string]any{"code": code}, Citation: citation}
}

func TestRunnerSuccessPersistsRun(t *testing.T) {
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	fx := &fakeExtractor{outcome: func(int, context.Context) (map[string][]model.CitedRecord, error) {
		return map[string][]model.CitedRecord{
			"Observation": {
				observation("heart rate", "Heart rate 72 bpm"),
				observation("heart rate", "Heart rate 72 bpm"),
			},
		}, nil
	}}

	metrics := extract.NewMetrics()
	r := &Runner{
		Extractor: fx,
		Provider:  "anthropic",
		Metrics:   metrics,
		Store:     st,
	}

	results, err := r.ExtractMultiType(context.Background(), testDoc(), []schema.Resource{obsResource{}})
	require.NoError(t, err)

	// Post-processing deduplicates the identical records.
	require.Len(t, results["Observation"], 1)

	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusComplete, runs[0].Status)
	assert.Equal(t, "anthropic", runs[0].Provider)
	assert.Equal(t, []string{"Observation"}, runs[0].ResourceTypes)
	require.NotNil(t, runs[0].Result)
}

func TestRunnerRetriesWholeExtraction(t *testing.T) {
	fx := &fakeExtractor{outcome: func(attempt int, _ context.Context) (map[string][]model.CitedRecord, error) {
		if attempt < 3 {
			return nil, errors.New("transient upstream failure")
		}
		return map[string][]model.CitedRecord{
			"Observation": {observation("heart rate", "Heart rate 72 bpm")},
		}, nil
	}}

	r := &Runner{
		Extractor: fx,
		Metrics:   extract.NewMetrics(),
		Config:    Config{MaxRetries: 2, RetryBackoff: time.Millisecond},
	}

	results, err := r.ExtractMultiType(context.Background(), testDoc(), []schema.Resource{obsResource{}})
	require.NoError(t, err)
	assert.Equal(t, 3, fx.calls)
	assert.Len(t, results["Observation"], 1)
}

func TestRunnerRetriesExhausted(t *testing.T) {
	fx := &fakeExtractor{outcome: func(int, context.Context) (map[string][]model.CitedRecord, error) {
		return nil, errors.New("persistent failure")
	}}

	r := &Runner{
		Extractor: fx,
		Metrics:   extract.NewMetrics(),
		Config:    Config{MaxRetries: 1, RetryBackoff: time.Millisecond},
	}

	_, err := r.ExtractMultiType(context.Background(), testDoc(), []schema.Resource{obsResource{}})
	require.Error(t, err)
	assert.Equal(t, 2, fx.calls)
}

func TestRunnerTotalTimeout(t *testing.T) {
	fx := &fakeExtractor{outcome: func(_ int, ctx context.Context) (map[string][]model.CitedRecord, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	r := &Runner{
		Extractor: fx,
		Metrics:   extract.NewMetrics(),
		Config:    Config{TotalTimeout: 30 * time.Millisecond, MaxRetries: 3},
	}

	_, err := r.ExtractMultiType(context.Background(), testDoc(), []schema.Resource{obsResource{}})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	// No retries once the total budget is gone.
	assert.Equal(t, 1, fx.calls)
}

func TestRunnerPostProcessDropsInvalid(t *testing.T) {
	fx := &fakeExtractor{outcome: func(int, context.Context) (map[string][]model.CitedRecord, error) {
		return map[string][]model.CitedRecord{
			"Observation": {
				observation("heart rate", "Heart rate 72 bpm"),
				{Record: map[string]any{"status": "final"}, Citation: "no code"},
			},
		}, nil
	}}

	metrics := extract.NewMetrics()
	r := &Runner{Extractor: fx, Metrics: metrics}

	results, err := r.ExtractMultiType(context.Background(), testDoc(), []schema.Resource{obsResource{}})
	require.NoError(t, err)
	require.Len(t, results["Observation"], 1)
	assert.Equal(t, 1, metrics.Snapshot().ValidationFailures)
}

func TestRunnerRejectsEmptyTargets(t *testing.T) {
	r := &Runner{Extractor: &fakeExtractor{}, Metrics: extract.NewMetrics()}
	_, err := r.ExtractMultiType(context.Background(), testDoc(), nil)
	require.Error(t, err)
}

func TestRunnerExtractSingleType(t *testing.T) {
	fx := &fakeExtractor{outcome: func(int, context.Context) (map[string][]model.CitedRecord, error) {
		return map[string][]model.CitedRecord{
			"Observation": {observation("heart rate", "Heart rate 72 bpm")},
		}, nil
	}}

	r := &Runner{Extractor: fx, Metrics: extract.NewMetrics()}
	records, err := r.ExtractSingleType(context.Background(), testDoc(), obsResource{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "heart rate", records[0].Record["code"])
}
