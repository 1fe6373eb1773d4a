// Package align locates extraction text within source text and assigns
// character provenance. Literal matching only — precision over recall: an
// extraction whose text cannot be found verbatim keeps a nil interval
// rather than a fabricated position.
package align

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sells-group/clinical-extract/internal/model"
)

// Align searches text for each extraction's ExtractionText and, on success,
// assigns a CharInterval offset by charOffset and AlignmentMatchExact.
// Failed lookups leave interval and status unset. The input slice is
// returned with elements updated in place.
func Align(extractions []model.Extraction, text string, charOffset int, caseInsensitive bool) []model.Extraction {
	for i := range extractions {
		needle := extractions[i].ExtractionText
		if needle == "" {
			continue
		}

		start, end := index(text, needle, caseInsensitive)
		if start < 0 {
			continue
		}

		extractions[i].CharInterval = model.NewCharInterval(charOffset+start, charOffset+end)
		extractions[i].AlignmentStatus = model.AlignmentMatchExact
	}
	return extractions
}

// Locate finds the first occurrence of citation in text (case-insensitively
// when configured) and returns its absolute interval, or nil.
func Locate(citation, text string, charOffset int, caseInsensitive bool) *model.CharInterval {
	if citation == "" {
		return nil
	}
	start, end := index(text, citation, caseInsensitive)
	if start < 0 {
		return nil
	}
	return model.NewCharInterval(charOffset+start, charOffset+end)
}

// index reports the [start, end) byte offsets of the first occurrence of
// needle in text, or (-1, -1). Offsets are always taken in text itself:
// case mapping is applied per rune during comparison, never to the
// haystack as a whole, because lowering can change byte lengths (U+212B
// ANGSTROM SIGN lowers from three bytes to two) and shift every offset
// after it.
func index(text, needle string, caseInsensitive bool) (int, int) {
	if !caseInsensitive {
		idx := strings.Index(text, needle)
		if idx < 0 {
			return -1, -1
		}
		return idx, idx + len(needle)
	}
	for i := range text {
		if n, ok := foldPrefix(text[i:], needle); ok {
			return i, i + n
		}
	}
	return -1, -1
}

// foldPrefix reports whether s begins with a case-insensitive match of
// needle, and if so how many bytes of s the match spans.
func foldPrefix(s, needle string) (int, bool) {
	var n int
	for _, want := range needle {
		got, size := utf8.DecodeRuneInString(s[n:])
		if size == 0 || !runeEqualFold(got, want) {
			return 0, false
		}
		n += size
	}
	return n, true
}

func runeEqualFold(a, b rune) bool {
	if a == b {
		return true
	}
	for r := unicode.SimpleFold(a); r != a; r = unicode.SimpleFold(r) {
		if r == b {
			return true
		}
	}
	return false
}
