package extract

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/clinical-extract/internal/parse"
	"github.com/sells-group/clinical-extract/internal/prompt"
	"github.com/sells-group/clinical-extract/internal/provider"
	"github.com/sells-group/clinical-extract/internal/schema"
)

// Pipeline turns one instruction into validated records, trying provider
// capabilities in a fixed order: native structured output, adapter
// structured output, then raw text with fenced parsing and a repair loop.
// Stage failures are contained; the pipeline only errors after every stage
// and every repair attempt is exhausted.
type Pipeline struct {
	Provider   provider.Provider
	Prompt     prompt.Builder
	MaxRetries int
	Injected   map[string]any
	Mode       parse.InjectionMode
	Debug      *DebugSink
	Metrics    *Metrics
}

// stageResult carries one stage's outcome so the driver can decide the next
// stage explicitly instead of using errors as control flow.
type stageResult struct {
	records []map[string]any
	err     error
}

// Extract runs the fallback chain with the pipeline's configured injected
// fields.
func (p *Pipeline) Extract(ctx context.Context, target schema.Resource, instruction string, many bool, maxItems int) ([]map[string]any, error) {
	return p.ExtractWith(ctx, target, instruction, many, maxItems, p.Injected)
}

// ExtractWith runs the fallback chain with an explicit injected-field set,
// overriding the pipeline default.
func (p *Pipeline) ExtractWith(ctx context.Context, target schema.Resource, instruction string, many bool, maxItems int, injected map[string]any) ([]map[string]any, error) {
	caps := provider.Detect(p.Provider)
	var last error

	if caps.Structured != nil {
		res := p.runStage(ctx, "native", target, injected, func(ctx context.Context) ([]map[string]any, error) {
			return caps.Structured.StructuredOutput(ctx, instruction, target, many, maxItems)
		})
		if res.err == nil {
			return res.records, nil
		}
		last = res.err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	if caps.Adapter != nil {
		bound := caps.Adapter.WithStructuredOutput(target, many, maxItems)
		res := p.runStage(ctx, "adapter", target, injected, func(ctx context.Context) ([]map[string]any, error) {
			return bound(ctx, instruction)
		})
		if res.err == nil {
			return res.records, nil
		}
		last = res.err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	records, err := p.rawStage(ctx, target, instruction, many, maxItems, injected)
	if err == nil {
		return records, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if last == nil {
		last = err
	}
	return nil, &RepairExhaustedError{
		ResourceType: target.ResourceType(),
		Attempts:     p.MaxRetries,
		Last:         last,
	}
}

// runStage invokes one structured stage and validates its records. A stage
// with raw records but zero surviving validation is a failed stage.
func (p *Pipeline) runStage(ctx context.Context, stage string, target schema.Resource, injected map[string]any, fn func(context.Context) ([]map[string]any, error)) stageResult {
	raw, err := fn(ctx)
	if err != nil {
		p.Metrics.IncProviderError()
		zap.L().Warn("extract: stage failed",
			zap.String("stage", stage),
			zap.String("resource_type", target.ResourceType()),
			zap.Error(err),
		)
		return stageResult{err: err}
	}

	valid, vErr := p.applyAll(raw, target, injected)
	if len(valid) == 0 && len(raw) > 0 {
		return stageResult{err: vErr}
	}
	return stageResult{records: valid}
}

// rawStage renders the full schema prompt, invokes the provider generically,
// and parses fenced JSON/YAML, repairing malformed responses up to
// MaxRetries times.
func (p *Pipeline) rawStage(ctx context.Context, target schema.Resource, instruction string, many bool, maxItems int, injected map[string]any) ([]map[string]any, error) {
	promptText := p.Prompt.Build(target, instruction, many)
	var lastErr error

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n := p.Debug.NextAttempt()
		p.Debug.WritePrompt(n, promptText)

		raw, err := p.Provider.Invoke(ctx, promptText)
		if err != nil {
			// Reprompting cannot fix an invocation failure.
			p.Metrics.IncProviderError()
			zap.L().Warn("extract: raw invoke failed",
				zap.String("resource_type", target.ResourceType()),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return nil, err
		}
		p.Debug.WriteResponse(n, raw)

		records, err := parse.ParseRecords(raw)
		if err != nil {
			lastErr = err
			p.Debug.WriteValidation(n, err.Error())
			if attempt < p.MaxRetries {
				p.Metrics.AddRepairAttempts(1)
				promptText = p.Prompt.BuildRepair(target, instruction, raw, many)
			}
			continue
		}
		records = unwrapEnvelope(records, many)
		if many && maxItems > 0 && len(records) > maxItems {
			records = records[:maxItems]
		}

		valid, vErr := p.applyAll(records, target, injected)
		if len(valid) == 0 && len(records) > 0 {
			lastErr = vErr
			if vErr != nil {
				p.Debug.WriteValidation(n, vErr.Error())
			}
			if attempt < p.MaxRetries {
				p.Metrics.AddRepairAttempts(1)
				promptText = p.Prompt.BuildRepair(target, instruction, raw, many)
			}
			continue
		}
		p.Debug.WriteParsed(n, valid)
		return valid, nil
	}
	return nil, lastErr
}

// applyAll merges, coerces, and validates each record, skipping records that
// fail validation. Returns the survivors and the last validation error.
func (p *Pipeline) applyAll(records []map[string]any, target schema.Resource, injected map[string]any) ([]map[string]any, error) {
	valid := make([]map[string]any, 0, len(records))
	var lastErr error
	for _, r := range records {
		applied, err := parse.Apply(r, target, injected, p.Mode)
		if err != nil {
			lastErr = err
			p.Metrics.IncValidationFailure()
			zap.L().Debug("extract: record dropped",
				zap.String("resource_type", target.ResourceType()),
				zap.Error(err),
			)
			continue
		}
		valid = append(valid, applied)
	}
	return valid, lastErr
}

// unwrapEnvelope flattens a one-record {items: [...]} response, which models
// sometimes emit for list requests even in the raw stage.
func unwrapEnvelope(records []map[string]any, many bool) []map[string]any {
	if !many || len(records) != 1 {
		return records
	}
	items, ok := records[0]["items"].([]any)
	if !ok || len(records[0]) != 1 {
		return records
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return records
		}
		out = append(out, m)
	}
	return out
}
