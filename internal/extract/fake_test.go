package extract

import (
	"context"
	"sync"

	"github.com/sells-group/clinical-extract/internal/schema"
)

// fakeProvider scripts Invoke and StructuredOutput behavior and tracks
// concurrency so tests can assert the semaphore bound.
type fakeProvider struct {
	name string

	invoke     func(ctx context.Context, prompt string) (string, error)
	structured func(ctx context.Context, prompt string, res schema.Resource, many bool, maxItems int) ([]map[string]any, error)

	mu          sync.Mutex
	inFlight    int
	maxInFlight int
	calls       int
}

func (f *fakeProvider) Name() string {
	if f.name == "" {
		return "fake"
	}
	return f.name
}

func (f *fakeProvider) Invoke(ctx context.Context, prompt string) (string, error) {
	f.enter()
	defer f.leave()
	return f.invoke(ctx, prompt)
}

func (f *fakeProvider) enter() {
	f.mu.Lock()
	f.calls++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()
}

func (f *fakeProvider) leave() {
	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
}

// structuredProvider adds the native structured-output capability.
type structuredProvider struct {
	fakeProvider
}

func (f *structuredProvider) StructuredOutput(ctx context.Context, prompt string, res schema.Resource, many bool, maxItems int) ([]map[string]any, error) {
	f.enter()
	defer f.leave()
	return f.structured(ctx, prompt, res, many, maxItems)
}

// adapterProvider adds the adapter capability on top of raw invocation.
type adapterProvider struct {
	fakeProvider
	adapter func(ctx context.Context, prompt string) ([]map[string]any, error)
}

func (f *adapterProvider) WithStructuredOutput(res schema.Resource, many bool, maxItems int) func(ctx context.Context, prompt string) ([]map[string]any, error) {
	return f.adapter
}

// vitalsResource is a permissive test schema with one required field.
type vitalsResource struct {
	name string
}

func (r vitalsResource) ResourceType() string {
	if r.name == "" {
		return "Observation"
	}
	return r.name
}

func (r vitalsResource) Construct(fields map[string]any) (map[string]any, error) {
	return fields, nil
}

func (r vitalsResource) ExtractableFields() []string {
	return []string{"code", "value_quantity", "status"}
}

func (r vitalsResource) RequiredExtractables() []string {
	return []string{"code"}
}
