// Package provider defines the LLM invocation contract consumed by the
// extraction pipeline. Providers are duck-typed: every provider can Invoke;
// structured-output capabilities are optional interfaces detected once per
// call rather than probed dynamically on every use.
package provider

import (
	"context"
	"fmt"

	"github.com/sells-group/clinical-extract/internal/schema"
)

// Provider is the minimal invocation contract.
type Provider interface {
	// Name identifies the provider for logging and run records.
	Name() string

	// Invoke sends a prompt and returns the response text.
	Invoke(ctx context.Context, prompt string) (string, error)
}

// StructuredOutputter is the provider-native "parse into schema" capability.
// Implementations return raw (unvalidated) record maps; list requests are
// wrapped in a single-field list envelope internally because structured
// output roots must be objects.
type StructuredOutputter interface {
	StructuredOutput(ctx context.Context, prompt string, res schema.Resource, many bool, maxItems int) ([]map[string]any, error)
}

// AdapterOutputter is the adapter-framework capability: it binds a schema
// once and returns a callable for repeated structured generation.
type AdapterOutputter interface {
	WithStructuredOutput(res schema.Resource, many bool, maxItems int) func(ctx context.Context, prompt string) ([]map[string]any, error)
}

// UsageReporter exposes cumulative token consumption for cost reporting.
// Providers whose transport does not surface usage simply omit it.
type UsageReporter interface {
	Usage() (inputTokens, outputTokens int64)
}

// Capabilities records which optional capabilities a provider exposes.
type Capabilities struct {
	Structured StructuredOutputter
	Adapter    AdapterOutputter
}

// Detect probes p for optional capabilities.
func Detect(p Provider) Capabilities {
	var caps Capabilities
	if v, ok := p.(StructuredOutputter); ok {
		caps.Structured = v
	}
	if v, ok := p.(AdapterOutputter); ok {
		caps.Adapter = v
	}
	return caps
}

// Error wraps any failure raised by an LLM invocation.
type Error struct {
	Provider string
	Cause    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// wrapErr tags a non-nil error with the provider name.
func wrapErr(name string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Provider: name, Cause: err}
}
