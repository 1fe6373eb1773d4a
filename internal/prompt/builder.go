// Package prompt builds extraction prompts from a target schema's
// introspected shape. Builders are pure functions of their inputs; schema
// introspection failures degrade to a minimal placeholder example instead
// of returning an error.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sells-group/clinical-extract/internal/schema"
)

// Defaults applied when the builder is zero-valued.
const (
	defaultMaxFields = 10
	defaultMaxItems  = 5
)

// placeholderExample stands in when a schema exposes no extractable fields.
const placeholderExample = `{
  "field_name": "extracted value"
}`

// Builder renders schema-constrained extraction prompts.
type Builder struct {
	// MaxFields bounds how many extractable fields appear in the compact
	// example; required fields are prioritized. Default: 10.
	MaxFields int

	// MaxItems bounds array output when requesting multiple records.
	// Default: 5.
	MaxItems int
}

func (b Builder) maxFields() int {
	if b.MaxFields > 0 {
		return b.MaxFields
	}
	return defaultMaxFields
}

func (b Builder) maxItems() int {
	if b.MaxItems > 0 {
		return b.MaxItems
	}
	return defaultMaxItems
}

// Build renders the full extraction prompt for res: schema context, a
// compact example restricted to the bounded extractable subset, and
// explicit formatting rules.
func (b Builder) Build(res schema.Resource, instruction string, many bool) string {
	caps := schema.Detect(res)

	var sb strings.Builder
	sb.WriteString(instruction)
	sb.WriteString("\n\n")

	if ctx := schemaContext(res, caps); ctx != "" {
		sb.WriteString(ctx)
		sb.WriteString("\n\n")
	}

	sb.WriteString("Return the result as a fenced JSON code block")
	if many {
		fmt.Fprintf(&sb, " containing an array of at most %d objects", b.maxItems())
	} else {
		sb.WriteString(" containing a single object")
	}
	sb.WriteString(" with this shape:\n\n```json\n")
	sb.WriteString(b.compactExample(caps))
	sb.WriteString("\n```\n")

	sb.WriteString("\nRules:\n")
	sb.WriteString("- Populate only fields you can support with the source text; omit the rest\n")
	sb.WriteString("- Do not invent values\n")
	if many {
		sb.WriteString("- Return a JSON array even when only one object is found; return [] when nothing is found\n")
	}
	if caps.Hinter != nil {
		for _, hint := range caps.Hinter.LLMHints() {
			sb.WriteString("- ")
			sb.WriteString(hint)
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// BuildRepair asks for a corrected version of a previous malformed response,
// re-stating the same schema materials.
func (b Builder) BuildRepair(res schema.Resource, instruction, previous string, many bool) string {
	var sb strings.Builder
	sb.WriteString("Your previous response could not be parsed or failed validation.\n\n")
	sb.WriteString("Previous response:\n```\n")
	sb.WriteString(previous)
	sb.WriteString("\n```\n\n")
	sb.WriteString("Produce a corrected response to the original request below. ")
	sb.WriteString("Respond with valid JSON in a fenced code block and nothing else.\n\n")
	sb.WriteString(b.Build(res, instruction, many))
	return sb.String()
}

// compactExample renders a JSON example with at most maxFields extractable
// fields, required first. Falls back to a placeholder when the schema
// exposes nothing.
func (b Builder) compactExample(caps schema.Capabilities) string {
	fields := caps.ExtractableFields()
	if len(fields) == 0 {
		return placeholderExample
	}
	if len(fields) > b.maxFields() {
		fields = fields[:b.maxFields()]
	}

	example := make(map[string]any, len(fields))
	defaults := caps.CanonicalDefaults()
	for _, f := range fields {
		if dv, ok := defaults[f]; ok {
			example[f] = dv
			continue
		}
		example[f] = exampleValue(f)
	}

	out, err := json.MarshalIndent(example, "", "  ")
	if err != nil {
		return placeholderExample
	}
	return string(out)
}

// schemaContext renders title + one-line description + scope note when the
// schema exposes them.
func schemaContext(res schema.Resource, caps schema.Capabilities) string {
	var parts []string
	if caps.Describer != nil {
		if t := caps.Describer.Title(); t != "" {
			parts = append(parts, fmt.Sprintf("Target schema: %s (%s)", t, res.ResourceType()))
		}
		if d := caps.Describer.Description(); d != "" {
			parts = append(parts, firstLine(d))
		}
		if n := caps.Describer.ScopeNote(); n != "" {
			parts = append(parts, "Scope: "+firstLine(n))
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "Target schema: "+res.ResourceType())
	}
	return strings.Join(parts, "\n")
}

// exampleValue picks a generic placeholder for a field name so the model
// sees the expected key without committing to domain values.
func exampleValue(field string) any {
	lower := strings.ToLower(field)
	switch {
	case strings.Contains(lower, "quantity") || strings.Contains(lower, "value") || strings.Contains(lower, "count"):
		return map[string]any{"value": 0, "unit": "unit"}
	case strings.Contains(lower, "date") || strings.Contains(lower, "time"):
		return "YYYY-MM-DD"
	default:
		return map[string]any{"text": "..."}
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
