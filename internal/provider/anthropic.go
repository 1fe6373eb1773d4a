package provider

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/sells-group/clinical-extract/internal/resilience"
	"github.com/sells-group/clinical-extract/internal/schema"
	"github.com/sells-group/clinical-extract/pkg/anthropic"
)

// Rate limiter defaults: 50 requests per minute with small bursts.
const (
	defaultRateLimit = 50.0 / 60.0
	defaultBurst     = 5
)

const extractSystemPrompt = "You are a clinical information extraction engine. " +
	"Extract only facts stated in the provided text. Never invent values."

// AnthropicProvider implements Provider and StructuredOutputter on top of
// the Anthropic messages API, using forced tool use for structured output.
type AnthropicProvider struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	limiter   *rate.Limiter
	breaker   *resilience.CircuitBreaker

	inputTokens  atomic.Int64
	outputTokens atomic.Int64
}

// NewAnthropic creates an Anthropic-backed provider.
func NewAnthropic(client anthropic.Client, model string) *AnthropicProvider {
	return &AnthropicProvider{
		client:    client,
		model:     model,
		maxTokens: 4096,
		limiter:   rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		breaker:   resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig()),
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Invoke(ctx context.Context, prompt string) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", wrapErr(p.Name(), err)
	}

	resp, err := resilience.ExecuteVal(ctx, p.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return p.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     p.model,
			MaxTokens: p.maxTokens,
			System:    extractSystemPrompt,
			Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
		})
	})
	if err != nil {
		return "", wrapErr(p.Name(), err)
	}
	p.inputTokens.Add(resp.Usage.InputTokens)
	p.outputTokens.Add(resp.Usage.OutputTokens)
	return resp.Text(), nil
}

// Usage returns cumulative token counts across all Invoke calls. Forced
// tool-use responses do not surface usage, so structured calls are not
// counted.
func (p *AnthropicProvider) Usage() (int64, int64) {
	return p.inputTokens.Load(), p.outputTokens.Load()
}

// StructuredOutput forces a single tool call whose input schema is derived
// from the target resource, and decodes the tool input as the record(s).
func (p *AnthropicProvider) StructuredOutput(ctx context.Context, prompt string, res schema.Resource, many bool, maxItems int) ([]map[string]any, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, wrapErr(p.Name(), err)
	}

	full := envelopeSchema(res, many, maxItems)
	props, _ := full["properties"].(map[string]any)
	var required []string
	if r, ok := full["required"].([]string); ok {
		required = r
	}

	toolName := "record_" + strings.ToLower(res.ResourceType())
	raw, err := resilience.ExecuteVal(ctx, p.breaker, func(ctx context.Context) ([]byte, error) {
		out, err := p.client.CreateStructured(ctx, anthropic.StructuredRequest{
			Model:       p.model,
			MaxTokens:   p.maxTokens,
			System:      extractSystemPrompt,
			Prompt:      prompt,
			ToolName:    toolName,
			Description: fmt.Sprintf("Record extracted %s data.", res.ResourceType()),
			InputSchema: props,
			Required:    required,
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
