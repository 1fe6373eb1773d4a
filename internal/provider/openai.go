package provider

import (
	"context"
	"strings"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/sells-group/clinical-extract/internal/resilience"
	"github.com/sells-group/clinical-extract/internal/schema"
	"github.com/sells-group/clinical-extract/pkg/openai"
)

// OpenAIProvider implements Provider and StructuredOutputter on top of the
// Responses API, using JSON-schema constrained output.
type OpenAIProvider struct {
	client  openai.Client
	model   string
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker

	inputTokens  atomic.Int64
	outputTokens atomic.Int64
}

// NewOpenAI creates an OpenAI-backed provider.
func NewOpenAI(client openai.Client, model string) *OpenAIProvider {
	return &OpenAIProvider{
		client:  client,
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		breaker: resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig()),
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Invoke(ctx context.Context, prompt string) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", wrapErr(p.Name(), err)
	}

	resp, err := resilience.ExecuteVal(ctx, p.breaker, func(ctx context.Context) (*openai.TextResponse, error) {
		return p.client.CreateText(ctx, openai.TextRequest{
			Model:        p.model,
			Instructions: extractSystemPrompt,
			Prompt:       prompt,
		})
	})
	if err != nil {
		return "", wrapErr(p.Name(), err)
	}

	p.inputTokens.Add(resp.Usage.InputTokens)
	p.outputTokens.Add(resp.Usage.OutputTokens)
	return resp.Text, nil
}

// Usage reports cumulative token consumption across Invoke calls.
// CreateStructured returns only the raw record payload, so structured
// calls are not counted.
func (p *OpenAIProvider) Usage() (int64, int64) {
	return p.inputTokens.Load(), p.outputTokens.Load()
}

// StructuredOutput constrains the response to the resource's schema via the
// JSON-schema response format, unwrapping the list envelope for array output.
func (p *OpenAIProvider) StructuredOutput(ctx context.Context, prompt string, res schema.Resource, many bool, maxItems int) ([]map[string]any, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, wrapErr(p.Name(), err)
	}

	raw, err := resilience.ExecuteVal(ctx, p.breaker, func(ctx context.Context) ([]byte, error) {
		out, err := p.client.CreateStructured(ctx, openai.StructuredRequest{
			Model:        p.model,
			Instructions: extractSystemPrompt,
			Prompt:       prompt,
			SchemaName:   strings.ToLower(res.ResourceType()),
			Schema:       envelopeSchema(res, many, maxItems),
		})
		return out, err
	})
	if err != nil {
		return nil, wrapErr(p.Name(), err)
	}

	records, err := decodeEnvelope(raw, many)
	if err != nil {
		return nil, wrapErr(p.Name(), err)
	}
	return records, nil
}
