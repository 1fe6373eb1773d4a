package align

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/clinical-extract/internal/model"
)

func TestAlign_ExactMatch(t *testing.T) {
	text := "Patient presented with BP 110/70 mmHg and mild headache."
	extractions := []model.Extraction{
		{ExtractionClass: "Observation", ExtractionText: "BP 110/70 mmHg"},
	}

	out := Align(extractions, text, 0, false)
	require.Len(t, out, 1)

	e := out[0]
	require.True(t, e.CharInterval.Located())
	assert.Equal(t, model.AlignmentMatchExact, e.AlignmentStatus)

	// Soundness: the addressed substring is exactly the extraction text.
	assert.Equal(t, e.ExtractionText, text[*e.CharInterval.StartPos:*e.CharInterval.EndPos])
}

func TestAlign_CharOffset(t *testing.T) {
	// Chunk-local text at document offset 100.
	chunkText := "BP 110/70 mmHg"
	out := Align([]model.Extraction{{ExtractionText: "110/70"}}, chunkText, 100, false)

	require.True(t, out[0].CharInterval.Located())
	assert.Equal(t, 103, *out[0].CharInterval.StartPos)
	assert.Equal(t, 109, *out[0].CharInterval.EndPos)
}

func TestAlign_CaseInsensitive(t *testing.T) {
	text := "Prescribed Lisinopril 10mg daily."

	out := Align([]model.Extraction{{ExtractionText: "lisinopril 10MG"}}, text, 0, true)
	require.True(t, out[0].CharInterval.Located())
	assert.Equal(t, "Lisinopril 10mg", text[*out[0].CharInterval.StartPos:*out[0].CharInterval.EndPos])

	out = Align([]model.Extraction{{ExtractionText: "lisinopril 10MG"}}, text, 0, false)
	assert.False(t, out[0].CharInterval.Located())
	assert.Empty(t, out[0].AlignmentStatus)
}

func TestAlign_NoFabricatedPositions(t *testing.T) {
	out := Align([]model.Extraction{
		{ExtractionText: "not present anywhere"},
		{ExtractionText: ""},
	}, "some source text", 0, false)

	for _, e := range out {
		assert.Nil(t, e.CharInterval)
		assert.Empty(t, e.AlignmentStatus)
	}
}

func TestAlign_MultibyteCaseMapping(t *testing.T) {
	// U+212B ANGSTROM SIGN is three bytes but lowers to the two-byte å, so
	// a match after it must not inherit a shifted offset.
	text := "Pore size 5 Å measured. BP 110/70 mmHg."

	out := Align([]model.Extraction{{ExtractionText: "bp 110/70 mmhg"}}, text, 0, true)
	require.True(t, out[0].CharInterval.Located())
	assert.Equal(t, "BP 110/70 mmHg", text[*out[0].CharInterval.StartPos:*out[0].CharInterval.EndPos])
}

func TestLocate(t *testing.T) {
	text := "Diagnosed with type 2 diabetes in 2019."

	ci := Locate("type 2 diabetes", text, 0, false)
	require.True(t, ci.Located())
	assert.Equal(t, "type 2 diabetes", text[*ci.StartPos:*ci.EndPos])

	assert.Nil(t, Locate("hypertension", text, 0, false))
	assert.Nil(t, Locate("", text, 0, false))
}

func TestLocate_MultibyteCaseMapping(t *testing.T) {
	text := "Pore size 5 Å measured. BP 110/70 mmHg."

	ci := Locate("BP 110/70 mmHg", text, 0, true)
	require.True(t, ci.Located())
	assert.Equal(t, "BP 110/70 mmHg", text[*ci.StartPos:*ci.EndPos])

	// A needle spelled with the two-byte Å must still report the width of
	// the three-byte span it matched in the text.
	ci = Locate("5 Å", text, 0, true)
	require.True(t, ci.Located())
	assert.Equal(t, "5 Å", text[*ci.StartPos:*ci.EndPos])
}
