// Package schema defines the capability contract consumed by the extraction
// engine. Target resource schemas live outside this repository; the engine
// only depends on the narrow set of methods below, all optional except
// ResourceType and Construct. Missing capabilities degrade to simpler
// default behavior rather than failing.
package schema

// Resource is the minimal contract every target schema must satisfy.
type Resource interface {
	// ResourceType returns the schema's type name, e.g. "Observation".
	ResourceType() string

	// Construct validates fields against the full schema and returns the
	// validated record.
	Construct(fields map[string]any) (map[string]any, error)
}

// ExtractableFielder exposes the bounded subset of fields the engine asks
// an LLM to populate.
type ExtractableFielder interface {
	ExtractableFields() []string
}

// RequiredExtractabler exposes which extractable fields are required.
type RequiredExtractabler interface {
	RequiredExtractables() []string
}

// CanonicalDefaulter exposes schema-declared default values applied before
// any extraction or injection.
type CanonicalDefaulter interface {
	CanonicalDefaults() map[string]any
}

// Coercer rewrites loosely typed extracted values into schema shape
// (bare string into a text wrapper, bare number into a quantity object).
type Coercer interface {
	CoerceExtractable(fields map[string]any, relax bool) map[string]any
}

// ExtractableValidator validates merged data against the schema's declared
// extractable subset, returning the validated subset record.
type ExtractableValidator interface {
	ValidateExtractable(fields map[string]any) (map[string]any, error)
}

// Hinter exposes per-schema prompting hints.
type Hinter interface {
	LLMHints() []string
}

// Describer exposes human-readable schema context for prompts.
type Describer interface {
	Title() string
	Description() string
	ScopeNote() string
}

// Capabilities records which optional capabilities a resource exposes.
// Detected once per call instead of repeated dynamic probing.
type Capabilities struct {
	Extractables ExtractableFielder
	Required     RequiredExtractabler
	Defaults     CanonicalDefaulter
	Coercer      Coercer
	Validator    ExtractableValidator
	Hinter       Hinter
	Describer    Describer
}

// Detect probes res for every optional capability.
func Detect(res Resource) Capabilities {
	var caps Capabilities
	if v, ok := res.(ExtractableFielder); ok {
		caps.Extractables = v
	}
	if v, ok := res.(RequiredExtractabler); ok {
		caps.Required = v
	}
	if v, ok := res.(CanonicalDefaulter); ok {
		caps.Defaults = v
	}
	if v, ok := res.(Coercer); ok {
		caps.Coercer = v
	}
	if v, ok := res.(ExtractableValidator); ok {
		caps.Validator = v
	}
	if v, ok := res.(Hinter); ok {
		caps.Hinter = v
	}
	if v, ok := res.(Describer); ok {
		caps.Describer = v
	}
	return caps
}

// ExtractableFields returns the schema's extractable field names with
// required fields first, or nil when the capability is absent.
func (c Capabilities) ExtractableFields() []string {
	if c.Extractables == nil {
		return nil
	}
	fields := c.Extractables.ExtractableFields()
	if c.Required == nil {
		return fields
	}

	required := make(map[string]bool)
	for _, f := range c.Required.RequiredExtractables() {
		required[f] = true
	}

	ordered := make([]string, 0, len(fields))
	for _, f := range fields {
		if required[f] {
			ordered = append(ordered, f)
		}
	}
	for _, f := range fields {
		if !required[f] {
			ordered = append(ordered, f)
		}
	}
	return ordered
}

// CanonicalDefaults returns a copy of the schema defaults, or an empty map.
func (c Capabilities) CanonicalDefaults() map[string]any {
	out := make(map[string]any)
	if c.Defaults == nil {
		return out
	}
	for k, v := range c.Defaults.CanonicalDefaults() {
		out[k] = v
	}
	return out
}
