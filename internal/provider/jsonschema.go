package provider

import (
	"encoding/json"

	"github.com/sells-group/clinical-extract/internal/schema"
)

// listEnvelopeField is the single field wrapping array results, because
// structured-output roots must be objects.
const listEnvelopeField = "items"

// recordSchema builds a permissive JSON schema for one record of res: the
// extractable fields are enumerated when the schema exposes them, required
// fields marked, values left unconstrained so coercion can handle loose
// types downstream.
func recordSchema(res schema.Resource) (props map[string]any, required []string) {
	caps := schema.Detect(res)

	fields := caps.ExtractableFields()
	props = make(map[string]any, len(fields))
	for _, f := range fields {
		props[f] = map[string]any{}
	}
	if caps.Required != nil {
		required = caps.Required.RequiredExtractables()
	}
	return props, required
}

// envelopeSchema wraps the record schema in a list envelope when many is
// requested, returning a full JSON schema document.
func envelopeSchema(res schema.Resource, many bool, maxItems int) map[string]any {
	props, required := recordSchema(res)

	record := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		record["required"] = required
	}

	if !many {
		return record
	}

	items := map[string]any{
		"type":  "array",
		"items": record,
	}
	if maxItems > 0 {
		items["maxItems"] = maxItems
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			listEnvelopeField: items,
		},
		"required": []string{listEnvelopeField},
	}
}

// decodeEnvelope parses a structured-output payload back into record maps,
// unwrapping the list envelope when present.
func decodeEnvelope(raw json.RawMessage, many bool) ([]map[string]any, error) {
	if !many {
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return []map[string]any{m}, nil
	}

	var env struct {
		Items []map[string]any `json:"items"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	return env.Items, nil
}
