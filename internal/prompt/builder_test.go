package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type obsSchema struct{}

func (obsSchema) ResourceType() string { return "Observation" }
func (obsSchema) Construct(fields map[string]any) (map[string]any, error) {
	return fields, nil
}
func (obsSchema) ExtractableFields() []string {
	return []string{"note", "code", "value_quantity", "effective_date", "status", "category", "interpretation", "body_site", "method", "device", "reference_range", "performer"}
}
func (obsSchema) RequiredExtractables() []string { return []string{"code"} }
func (obsSchema) CanonicalDefaults() map[string]any {
	return map[string]any{"status": "final"}
}
func (obsSchema) LLMHints() []string { return []string{"Copy numeric values verbatim"} }
func (obsSchema) Title() string      { return "Clinical Observation" }
func (obsSchema) Description() string {
	return "A measurement or assertion about a patient.\nSecond line is trimmed."
}
func (obsSchema) ScopeNote() string { return "vitals and labs only" }

type bareSchema struct{}

func (bareSchema) ResourceType() string { return "Bare" }
func (bareSchema) Construct(fields map[string]any) (map[string]any, error) {
	return fields, nil
}

func TestBuild_SchemaContext(t *testing.T) {
	p := Builder{}.Build(obsSchema{}, "Extract observations from the text.", false)

	assert.Contains(t, p, "Extract observations from the text.")
	assert.Contains(t, p, "Clinical Observation")
	assert.Contains(t, p, "Observation")
	assert.Contains(t, p, "A measurement or assertion about a patient.")
	assert.NotContains(t, p, "Second line is trimmed")
	assert.Contains(t, p, "Scope: vitals and labs only")
	assert.Contains(t, p, "Copy numeric values verbatim")
	assert.Contains(t, p, "```json")
}

func TestBuild_BoundsFieldsRequiredFirst(t *testing.T) {
	p := Builder{MaxFields: 3}.Build(obsSchema{}, "Extract.", false)

	// Required field always makes the cut.
	assert.Contains(t, p, `"code"`)
	// The 12-field schema is truncated to 3; late optional fields drop out.
	assert.NotContains(t, p, `"performer"`)
}

func TestBuild_ManyRequestsArray(t *testing.T) {
	p := Builder{MaxItems: 7}.Build(obsSchema{}, "Extract.", true)
	assert.Contains(t, p, "array of at most 7 objects")
	assert.Contains(t, p, "return [] when nothing is found")

	single := Builder{}.Build(obsSchema{}, "Extract.", false)
	assert.Contains(t, single, "a single object")
	assert.NotContains(t, single, "array of at most")
}

func TestBuild_DegradesToPlaceholder(t *testing.T) {
	p := Builder{}.Build(bareSchema{}, "Extract.", false)

	assert.Contains(t, p, "Target schema: Bare")
	assert.Contains(t, p, "field_name")
}

func TestBuildRepair_EmbedsPreviousResponse(t *testing.T) {
	prev := `{"code": "BP", "value_quantity": oops}`
	p := Builder{}.BuildRepair(obsSchema{}, "Extract observations.", prev, true)

	assert.Contains(t, p, "could not be parsed")
	assert.Contains(t, p, prev)
	// The original request is restated in full.
	assert.Contains(t, p, "Extract observations.")
	assert.True(t, strings.Count(p, "```json") >= 1)
}

func TestBuild_DefaultsAppearInExample(t *testing.T) {
	p := Builder{}.Build(obsSchema{}, "Extract.", false)
	assert.Contains(t, p, `"status": "final"`)
}
