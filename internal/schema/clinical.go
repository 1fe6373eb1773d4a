package schema

import (
	"github.com/rotisserie/eris"
)

// clinicalResource is the built-in schema implementation backing the
// catalog. It exposes every optional capability except a custom coercer,
// which the generic coercion path covers.
type clinicalResource struct {
	name        string
	title       string
	description string
	scopeNote   string
	fields      []string
	required    []string
	defaults    map[string]any
	hints       []string
}

func (r clinicalResource) ResourceType() string { return r.name }

func (r clinicalResource) Construct(fields map[string]any) (map[string]any, error) {
	return r.ValidateExtractable(fields)
}

// ValidateExtractable keeps only declared fields and checks required ones.
func (r clinicalResource) ValidateExtractable(fields map[string]any) (map[string]any, error) {
	declared := make(map[string]bool, len(r.fields))
	for _, f := range r.fields {
		declared[f] = true
	}

	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if declared[k] {
			out[k] = v
		}
	}
	for _, req := range r.required {
		v, ok := out[req]
		if !ok || v == nil || v == "" {
			return nil, eris.Errorf("schema: %s requires field %q", r.name, req)
		}
	}
	return out, nil
}

func (r clinicalResource) ExtractableFields() []string    { return append([]string(nil), r.fields...) }
func (r clinicalResource) RequiredExtractables() []string { return append([]string(nil), r.required...) }

func (r clinicalResource) CanonicalDefaults() map[string]any {
	out := make(map[string]any, len(r.defaults))
	for k, v := range r.defaults {
		out[k] = v
	}
	return out
}

func (r clinicalResource) LLMHints() []string { return append([]string(nil), r.hints...) }

func (r clinicalResource) Title() string       { return r.title }
func (r clinicalResource) Description() string { return r.description }
func (r clinicalResource) ScopeNote() string   { return r.scopeNote }

// Catalog returns the built-in clinical resource schemas.
func Catalog() []Resource {
	return []Resource{
		clinicalResource{
			name:        "Observation",
			title:       "Observation",
			description: "A measurement or finding about the patient, such as a vital sign or lab value.",
			scopeNote:   "One observation per measured value; do not combine readings.",
			fields:      []string{"code", "value_quantity", "value_string", "unit", "status", "effective_date", "body_site"},
			required:    []string{"code"},
			defaults:    map[string]any{"status": "final"},
			hints:       []string{"code is the name of the measured concept, e.g. 'heart rate'"},
		},
		clinicalResource{
			name:        "Condition",
			title:       "Condition",
			description: "A diagnosis, problem, or clinical state attributed to the patient.",
			scopeNote:   "Exclude negated findings and family history.",
			fields:      []string{"code", "clinical_status", "severity", "onset", "abatement", "body_site"},
			required:    []string{"code"},
			defaults:    map[string]any{"clinical_status": "active"},
		},
		clinicalResource{
			name:        "MedicationStatement",
			title:       "Medication Statement",
			description: "A medication the patient is taking or has been prescribed.",
			scopeNote:   "One statement per drug; combine dose, route, and frequency of the same drug.",
			fields:      []string{"medication", "dose_quantity", "dose_unit", "route", "frequency", "status"},
			required:    []string{"medication"},
			defaults:    map[string]any{"status": "active"},
			hints:       []string{"medication is the drug name only, without dose"},
		},
		clinicalResource{
			name:        "DiagnosticReport",
			title:       "Diagnostic Report",
			description: "A grouped set of results from a diagnostic service, such as imaging or pathology.",
			fields:      []string{"code", "conclusion", "status", "effective_date", "category"},
			required:    []string{"code"},
			defaults:    map[string]any{"status": "final"},
		},
		clinicalResource{
			name:        "Practitioner",
			title:       "Practitioner",
			description: "A clinician mentioned as involved in the patient's care.",
			fields:      []string{"name", "role", "specialty"},
			required:    []string{"name"},
		},
		clinicalResource{
			name:        "Organization",
			title:       "Organization",
			description: "A healthcare facility or organization mentioned in the document.",
			fields:      []string{"name", "type"},
			required:    []string{"name"},
		},
	}
}

// ByName resolves catalog schemas by resource type name.
func ByName(names []string) ([]Resource, error) {
	byType := make(map[string]Resource)
	for _, r := range Catalog() {
		byType[r.ResourceType()] = r
	}

	out := make([]Resource, 0, len(names))
	for _, name := range names {
		r, ok := byType[name]
		if !ok {
			return nil, eris.Errorf("schema: unknown resource type %q", name)
		}
		out = append(out, r)
	}
	return out, nil
}
