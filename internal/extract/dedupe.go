package extract

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/clinical-extract/internal/model"
)

// Dedupe removes semantically duplicate records for one resource type,
// keeping the first occurrence per key and preserving input order. The key
// is type-specific: names for people and organizations, code + value + unit
// for observations, code + citation for conditions, citation otherwise.
// Idempotent.
func Dedupe(resourceType string, items []model.CitedRecord) []model.CitedRecord {
	if len(items) <= 1 {
		return items
	}

	seen := make(map[string]bool, len(items))
	out := make([]model.CitedRecord, 0, len(items))
	for _, item := range items {
		key := dedupeKey(resourceType, item)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	return out
}

func dedupeKey(resourceType string, item model.CitedRecord) string {
	switch strings.ToLower(resourceType) {
	case "organization", "practitioner":
		if name := normalizeText(fieldText(item.Record["name"])); name != "" {
			return "name|" + name
		}
	case "observation":
		return "obs|" + normalizeText(fieldText(item.Record["code"])) +
			"|" + quantityKey(item.Record)
	case "condition":
		return "cond|" + normalizeText(fieldText(item.Record["code"])) +
			"|" + normalizeText(item.Citation)
	}
	return "cite|" + normalizeText(item.Citation)
}

// quantityKey renders an observation's value and unit, looking through both
// the wrapped quantity object and bare value fields.
func quantityKey(record map[string]any) string {
	v := record["value_quantity"]
	if v == nil {
		v = record["value"]
	}
	if q, ok := v.(map[string]any); ok {
		return fmt.Sprintf("%v|%s", q["value"], normalizeText(fieldText(q["unit"])))
	}
	return fmt.Sprintf("%v|%s", v, normalizeText(fieldText(record["unit"])))
}

// fieldText extracts a comparable string from a value that may be a bare
// string or a {text: ...} wrapper.
func fieldText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case map[string]any:
		if s, ok := t["text"].(string); ok {
			return s
		}
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// normalizeText case-folds, applies unicode compatibility normalization, and
// collapses whitespace.
func normalizeText(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}
