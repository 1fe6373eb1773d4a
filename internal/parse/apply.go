package parse

import (
	"github.com/sells-group/clinical-extract/internal/schema"
)

// Apply runs the full record pipeline: merge canonical defaults, injected
// fields, and extracted data under the injection mode, coerce loosely typed
// values through the schema's coercion hook, and validate. The result is a
// fully validated record. Validation failures return a *ValidationError;
// the caller decides whether to skip the item or abort the batch.
func Apply(raw map[string]any, res schema.Resource, injected map[string]any, mode InjectionMode) (map[string]any, error) {
	caps := schema.Detect(res)

	merged := Merge(caps.CanonicalDefaults(), injected, raw, mode)

	if caps.Coercer != nil {
		merged = caps.Coercer.CoerceExtractable(merged, true)
	} else {
		merged = coerceGeneric(merged)
	}

	var (
		validated map[string]any
		err       error
	)
	if caps.Validator != nil {
		validated, err = caps.Validator.ValidateExtractable(merged)
	} else {
		validated, err = res.Construct(merged)
	}
	if err != nil {
		return nil, &ValidationError{ResourceType: res.ResourceType(), Cause: err}
	}
	return validated, nil
}

// coerceGeneric applies the relaxations available without a schema hook:
// numeric strings become numbers, and numeric values under *_quantity keys
// become single-field quantity objects.
func coerceGeneric(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = coerceValue(k, v)
	}
	return out
}

func coerceValue(key string, v any) any {
	if !isQuantityKey(key) {
		return v
	}
	switch n := v.(type) {
	case int64:
		return map[string]any{"value": n}
	case float64:
		return map[string]any{"value": n}
	case int:
		return map[string]any{"value": n}
	default:
		return v
	}
}

func isQuantityKey(key string) bool {
	return len(key) > 9 && key[len(key)-9:] == "_quantity" || key == "quantity"
}
