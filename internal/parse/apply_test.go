package parse

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// obsResource mimics an Observation-like schema with coercion and
// extractable-subset validation hooks.
type obsResource struct{}

func (obsResource) ResourceType() string { return "Observation" }

func (obsResource) Construct(fields map[string]any) (map[string]any, error) {
	return fields, nil
}

func (obsResource) CanonicalDefaults() map[string]any {
	return map[string]any{"status": "final"}
}

func (obsResource) CoerceExtractable(fields map[string]any, relax bool) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch k {
		case "code":
			if s, ok := v.(string); ok {
				out[k] = map[string]any{"text": s}
				continue
			}
		case "value_quantity":
			switch n := v.(type) {
			case int64:
				out[k] = map[string]any{"value": n}
				continue
			case float64:
				out[k] = map[string]any{"value": n}
				continue
			}
		}
		out[k] = v
	}
	return out
}

func (obsResource) ValidateExtractable(fields map[string]any) (map[string]any, error) {
	if _, ok := fields["code"]; !ok {
		return nil, fmt.Errorf("code is required")
	}
	return fields, nil
}

// strictResource has no hooks; Construct rejects unknown fields.
type strictResource struct{}

func (strictResource) ResourceType() string { return "Strict" }
func (strictResource) Construct(fields map[string]any) (map[string]any, error) {
	for k := range fields {
		if k != "name" {
			return nil, fmt.Errorf("unknown field %q", k)
		}
	}
	return fields, nil
}

func TestApply_CoercesAndValidates(t *testing.T) {
	raw := map[string]any{"code": "BP", "value_quantity": int64(110)}

	rec, err := Apply(raw, obsResource{}, nil, ModeGuide)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"text": "BP"}, rec["code"])
	assert.Equal(t, map[string]any{"value": int64(110)}, rec["value_quantity"])
	// Canonical default survives the merge.
	assert.Equal(t, "final", rec["status"])
}

func TestApply_GuideInjection(t *testing.T) {
	raw := map[string]any{"code": "HR"}
	injected := map[string]any{"code": "BP", "subject": "Patient/1"}

	rec, err := Apply(raw, obsResource{}, injected, ModeGuide)
	require.NoError(t, err)

	// Extracted wins in guide mode; injected fills gaps.
	assert.Equal(t, map[string]any{"text": "HR"}, rec["code"])
	assert.Equal(t, "Patient/1", rec["subject"])
}

func TestApply_FrozenInjection(t *testing.T) {
	raw := map[string]any{"code": "HR"}
	injected := map[string]any{"code": "BP"}

	rec, err := Apply(raw, obsResource{}, injected, ModeFrozen)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"text": "BP"}, rec["code"])
}

func TestApply_ValidationFailure(t *testing.T) {
	_, err := Apply(map[string]any{"note": "no code"}, obsResource{}, nil, ModeGuide)
	require.Error(t, err)

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "Observation", ve.ResourceType)
}

func TestApply_FallsBackToConstruct(t *testing.T) {
	rec, err := Apply(map[string]any{"name": "Dr. Adams"}, strictResource{}, nil, ModeGuide)
	require.NoError(t, err)
	assert.Equal(t, "Dr. Adams", rec["name"])

	_, err = Apply(map[string]any{"bogus": true}, strictResource{}, nil, ModeGuide)
	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestCoerceGeneric_QuantityKeys(t *testing.T) {
	out := coerceGeneric(map[string]any{
		"value_quantity": int64(42),
		"quantity":       1.5,
		"note":           "unchanged",
	})
	assert.Equal(t, map[string]any{"value": int64(42)}, out["value_quantity"])
	assert.Equal(t, map[string]any{"value": 1.5}, out["quantity"])
	assert.Equal(t, "unchanged", out["note"])
}
