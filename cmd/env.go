package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/clinical-extract/internal/chunk"
	"github.com/sells-group/clinical-extract/internal/config"
	"github.com/sells-group/clinical-extract/internal/extract"
	"github.com/sells-group/clinical-extract/internal/parse"
	"github.com/sells-group/clinical-extract/internal/prompt"
	"github.com/sells-group/clinical-extract/internal/provider"
	"github.com/sells-group/clinical-extract/internal/runner"
	"github.com/sells-group/clinical-extract/internal/schema"
	"github.com/sells-group/clinical-extract/internal/store"
	"github.com/sells-group/clinical-extract/pkg/anthropic"
	"github.com/sells-group/clinical-extract/pkg/openai"
)

// initStore opens the configured run store, or returns nil when persistence
// is off.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "", "off":
		return nil, nil
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "clinical-extract.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// newProvider builds the configured LLM provider, honoring an optional
// CLI override.
func newProvider(override string) (provider.Provider, error) {
	name := override
	if name == "" {
		name = cfg.Provider.Name
	}
	switch name {
	case "anthropic":
		if cfg.Anthropic.Key == "" {
			return nil, eris.New("anthropic.key is not configured")
		}
		return provider.NewAnthropic(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model), nil
	case "openai":
		if cfg.OpenAI.Key == "" {
			return nil, eris.New("openai.key is not configured")
		}
		return provider.NewOpenAI(openai.NewClient(cfg.OpenAI.Key), cfg.OpenAI.Model), nil
	default:
		return nil, eris.Errorf("unknown provider %q", name)
	}
}

// chunkPolicy maps the chunk config onto a chunker policy.
func chunkPolicy(c config.ChunkConfig) chunk.Policy {
	return chunk.Policy{
		Strategy:  chunk.Strategy(c.Strategy),
		ChunkSize: c.Size,
		Overlap:   c.Overlap,
	}
}

// newRunner wires the full extraction stack from config.
func newRunner(p provider.Provider, st store.Store, targets []schema.Resource) *runner.Runner {
	metrics := extract.NewMetrics()

	pipeline := &extract.Pipeline{
		Provider:   p,
		Prompt:     prompt.Builder{MaxFields: cfg.Extract.MaxFields, MaxItems: cfg.Extract.MaxItems},
		MaxRetries: cfg.Extract.MaxRetries,
		Mode:       parse.InjectionMode(cfg.Extract.InjectionMode),
		Debug:      extract.NewDebugSink(cfg.Extract.DebugDir),
		Metrics:    metrics,
	}

	policy := chunkPolicy(cfg.Chunk)
	guided := &extract.GuidedExtractor{
		Pipeline: pipeline,
		Config: extract.GuidedConfig{
			ConcurrencyLimit:    cfg.Extract.ConcurrencyLimit,
			WindowTimeout:       cfg.Extract.WindowTimeout(),
			ContextWindowMargin: cfg.Extract.ContextWindowMargin,
			MaxItemsPerWindow:   cfg.Extract.MaxItems,
			MergedFallbackTypes: cfg.Extract.MergedFallbackTypes,
			Chunking:            &policy,
		},
		Metrics: metrics,
	}

	return &runner.Runner{
		Extractor: guided,
		Provider:  p.Name(),
		Targets:   targets,
		Config: runner.Config{
			TotalTimeout: cfg.Extract.TotalTimeout(),
			MaxRetries:   cfg.Extract.MaxRetries,
			RetryBackoff: cfg.Extract.RetryBackoff(),
		},
		Metrics: metrics,
		Store:   st,
	}
}
