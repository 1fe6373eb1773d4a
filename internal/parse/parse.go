// Package parse turns raw LLM output into validated records: fenced-block
// extraction, JSON-with-YAML-fallback parsing, loose-value coercion,
// injection merging, and schema validation.
package parse

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseError means fenced content was not valid JSON or YAML.
type ParseError struct {
	Cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse: content is neither valid JSON nor YAML: %v", e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// ValidationError means coerced data failed schema validation.
type ValidationError struct {
	ResourceType string
	Cause        error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("parse: %s validation failed: %v", e.ResourceType, e.Cause)
}

func (e *ValidationError) Unwrap() error { return e.Cause }

// ExtractFenced returns the content of the first fenced code block in s, or
// s unchanged when no fence is present. Language tags after the opening
// fence are dropped.
func ExtractFenced(s string) string {
	start := strings.Index(s, "```")
	if start < 0 {
		return strings.TrimSpace(s)
	}
	rest := s[start+3:]

	// Drop the language tag line, if any.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(rest[:nl])
		if firstLine != "" && !strings.ContainsAny(firstLine, "{}[]:") {
			rest = rest[nl+1:]
		}
	}

	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

// ParseLoose parses s as JSON, falling back to YAML.
func ParseLoose(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err == nil {
		return normalizeNumbers(v), nil
	}

	var y any
	if err := yaml.Unmarshal([]byte(s), &y); err != nil {
		return nil, &ParseError{Cause: err}
	}
	// yaml.v3 decodes mappings as map[string]any already; scalars parsed as
	// plain strings are not records.
	switch y.(type) {
	case map[string]any, []any:
		return y, nil
	default:
		return nil, &ParseError{Cause: fmt.Errorf("top-level value is %T, expected object or array", y)}
	}
}

// ParseRecords extracts fenced content from s, parses it, and returns the
// record maps. A single object yields one record; an array yields its
// object elements.
func ParseRecords(s string) ([]map[string]any, error) {
	v, err := ParseLoose(ExtractFenced(s))
	if err != nil {
		return nil, err
	}

	switch t := v.(type) {
	case map[string]any:
		return []map[string]any{t}, nil
	case []any:
		records := make([]map[string]any, 0, len(t))
		for _, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, &ParseError{Cause: fmt.Errorf("array element is %T, expected object", item)}
			}
			records = append(records, m)
		}
		return records, nil
	default:
		return nil, &ParseError{Cause: fmt.Errorf("top-level value is %T, expected object or array", v)}
	}
}

// normalizeNumbers rewrites json.Number values into int64 where possible,
// float64 otherwise, so downstream coercion sees plain Go numbers.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeNumbers(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = normalizeNumbers(val)
		}
		return t
	default:
		return v
	}
}
