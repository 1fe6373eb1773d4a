// Package runner wraps the extraction engine with run-level concerns: a
// total timeout, whole-run retry with exponential backoff, post-processing,
// metrics scoping, and optional run persistence.
package runner

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/clinical-extract/internal/extract"
	"github.com/sells-group/clinical-extract/internal/model"
	"github.com/sells-group/clinical-extract/internal/parse"
	"github.com/sells-group/clinical-extract/internal/resilience"
	"github.com/sells-group/clinical-extract/internal/schema"
	"github.com/sells-group/clinical-extract/internal/store"
)

// Config tunes run-level behavior.
type Config struct {
	// TotalTimeout bounds one orchestrated call end to end, retries
	// included.
	TotalTimeout time.Duration

	// MaxRetries is the number of whole-run retries after the first
	// attempt fails.
	MaxRetries int

	// RetryBackoff is the base delay; attempt n waits RetryBackoff * 2^n.
	RetryBackoff time.Duration
}

func (c Config) totalTimeout() time.Duration {
	if c.TotalTimeout > 0 {
		return c.TotalTimeout
	}
	return 5 * time.Minute
}

func (c Config) retryBackoff() time.Duration {
	if c.RetryBackoff > 0 {
		return c.RetryBackoff
	}
	return 500 * time.Millisecond
}

// Extractor is the engine contract the runner orchestrates; GuidedExtractor
// is the production implementation.
type Extractor interface {
	Extract(ctx context.Context, doc *model.Document, targets []schema.Resource) (map[string][]model.CitedRecord, error)
}

// Runner orchestrates extraction runs. Targets is the registry of schemas
// ExtractDocument covers; Store is optional and purely observational.
type Runner struct {
	Extractor Extractor
	Provider  string
	Targets   []schema.Resource
	Config    Config
	Metrics   *extract.Metrics
	Store     store.Store
}

// ExtractDocument runs citation-guided extraction for every registered
// target type.
func (r *Runner) ExtractDocument(ctx context.Context, doc *model.Document) (map[string][]model.CitedRecord, error) {
	return r.ExtractMultiType(ctx, doc, r.Targets)
}

// ExtractSingleType runs citation-guided extraction for one type.
func (r *Runner) ExtractSingleType(ctx context.Context, doc *model.Document, target schema.Resource) ([]model.CitedRecord, error) {
	results, err := r.ExtractMultiType(ctx, doc, []schema.Resource{target})
	if err != nil {
		return nil, err
	}
	return results[target.ResourceType()], nil
}

// ExtractMultiType runs citation-guided extraction for the given types
// under the total timeout, retrying the entire extraction on failure.
func (r *Runner) ExtractMultiType(ctx context.Context, doc *model.Document, targets []schema.Resource) (map[string][]model.CitedRecord, error) {
	if len(targets) == 0 {
		return nil, eris.New("runner: no target types")
	}

	r.Metrics.Reset()
	r.Metrics.Start()

	run := r.createRun(ctx, doc, targets)

	ctx, cancel := context.WithTimeout(ctx, r.Config.totalTimeout())
	defer cancel()

	var results map[string][]model.CitedRecord
	err := resilience.Do(ctx, resilience.RetryConfig{
		MaxAttempts:    r.Config.MaxRetries + 1,
		InitialBackoff: r.Config.retryBackoff(),
		Multiplier:     2.0,
		ShouldRetry:    func(error) bool { return true },
		OnRetry: func(attempt int, err error) {
			zap.L().Warn("runner: extraction attempt failed, retrying",
				zap.String("document_id", doc.ID()),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		},
	}, func(ctx context.Context) error {
		out, err := r.Extractor.Extract(ctx, doc, targets)
		if err != nil {
			return err
		}
		results = out
		return nil
	})

	r.Metrics.Stop()

	if err != nil {
		r.finishRun(run, model.RunStatusFailed, err)
		return nil, eris.Wrapf(err, "runner: extract document %s", doc.ID())
	}

	results = r.postProcess(results, targets)
	r.finishRun(run, model.RunStatusComplete, nil)
	return results, nil
}

// postProcess re-validates every record against its schema and deduplicates
// per resource type. Records that no longer validate are dropped.
func (r *Runner) postProcess(results map[string][]model.CitedRecord, targets []schema.Resource) map[string][]model.CitedRecord {
	byType := make(map[string]schema.Resource, len(targets))
	for _, t := range targets {
		byType[t.ResourceType()] = t
	}

	out := make(map[string][]model.CitedRecord, len(results))
	for name, items := range results {
		target := byType[name]
		kept := make([]model.CitedRecord, 0, len(items))
		for _, item := range items {
			if target != nil {
				if _, err := parse.Apply(item.Record, target, nil, parse.ModeGuide); err != nil {
					r.Metrics.IncValidationFailure()
					zap.L().Debug("runner: record failed re-validation",
						zap.String("resource_type", name),
						zap.Error(err),
					)
					continue
				}
			}
			kept = append(kept, item)
		}
		out[name] = extract.Dedupe(name, kept)
	}
	return out
}

// createRun persists the initial run record when a store is configured.
// Persistence failures are logged, never fatal.
func (r *Runner) createRun(ctx context.Context, doc *model.Document, targets []schema.Resource) *model.Run {
	if r.Store == nil {
		return nil
	}

	names := make([]string, 0, len(targets))
	for _, t := range targets {
		names = append(names, t.ResourceType())
	}

	run, err := r.Store.CreateRun(ctx, doc.ID(), r.Provider, names)
	if err != nil {
		zap.L().Warn("runner: create run record failed", zap.Error(err))
		return nil
	}
	if err := r.Store.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning); err != nil {
		zap.L().Warn("runner: update run status failed", zap.Error(err))
	}
	return run
}

func (r *Runner) finishRun(run *model.Run, status model.RunStatus, runErr error) {
	if r.Store == nil || run == nil {
		return
	}

	snap := r.Metrics.Snapshot()
	result := &model.RunResult{
		RecordCounts:       snap.RecordCounts,
		TotalRecords:       snap.TotalRecords,
		WindowTimeouts:     snap.WindowTimeouts,
		ValidationFailures: snap.ValidationFailures,
		ProviderErrors:     snap.ProviderErrors,
		DurationMillis:     snap.Duration.Milliseconds(),
	}
	if runErr != nil {
		result.Error = runErr.Error()
	}

	// Persist with a fresh context: the run context may already be dead.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Store.UpdateRunResult(ctx, run.ID, status, result); err != nil {
		zap.L().Warn("runner: persist run result failed", zap.Error(err))
	}
}
