package model

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// Document is a unit of source text submitted for extraction. Immutable
// once created; the ID is lazily assigned on first access when absent.
type Document struct {
	id                string
	Text              string
	AdditionalContext string
}

// NewDocument creates a document with an optional pre-assigned ID.
func NewDocument(id, text string) *Document {
	return &Document{id: id, Text: text}
}

// ID returns the document ID, assigning a fresh UUID on first access
// if none was provided.
func (d *Document) ID() string {
	if d.id == "" {
		d.id = uuid.New().String()
	}
	return d.id
}

// TextChunk is a character-addressed window into a document's text.
// Never mutated after creation.
type TextChunk struct {
	StartIndex int       `json:"start_index"`
	EndIndex   int       `json:"end_index"`
	Document   *Document `json:"-"`
}

// NewTextChunk validates the interval against the document and returns
// the chunk. Invariant: 0 <= start < end <= len(text).
func NewTextChunk(doc *Document, start, end int) (TextChunk, error) {
	if doc == nil {
		return TextChunk{}, eris.New("model: text chunk requires a document")
	}
	if start < 0 || start >= end || end > len(doc.Text) {
		return TextChunk{}, eris.Errorf("model: invalid chunk interval [%d,%d) for text of length %d", start, end, len(doc.Text))
	}
	return TextChunk{StartIndex: start, EndIndex: end, Document: doc}, nil
}

// Text returns the chunk's slice of the document text.
func (c TextChunk) Text() string {
	return c.Document.Text[c.StartIndex:c.EndIndex]
}

// CharInterval is a [start,end) character span locating a citation within a
// document. Positions are nil when the citation could not be located.
type CharInterval struct {
	StartPos *int `json:"start_pos"`
	EndPos   *int `json:"end_pos"`
}

// NewCharInterval builds an interval from concrete positions.
func NewCharInterval(start, end int) *CharInterval {
	return &CharInterval{StartPos: &start, EndPos: &end}
}

// Located reports whether both endpoints are known.
func (ci *CharInterval) Located() bool {
	return ci != nil && ci.StartPos != nil && ci.EndPos != nil
}

func (ci *CharInterval) String() string {
	if !ci.Located() {
		return "[?,?)"
	}
	return fmt.Sprintf("[%d,%d)", *ci.StartPos, *ci.EndPos)
}

// AlignmentStatus classifies how an extraction's text was matched against
// the source document.
type AlignmentStatus string

// AlignmentMatchExact means the extraction text was found verbatim (modulo
// configured case folding). It is the only status the aligner assigns;
// an unset status means the text could not be located.
const AlignmentMatchExact AlignmentStatus = "match_exact"

// Extraction is a citation-bearing atomic fact lifted from source text.
type Extraction struct {
	ExtractionClass string          `json:"extraction_class"`
	ExtractionText  string          `json:"extraction_text"`
	CharInterval    *CharInterval   `json:"char_interval,omitempty"`
	AlignmentStatus AlignmentStatus `json:"alignment_status,omitempty"`
	ExtractionIndex int             `json:"extraction_index,omitempty"`
	GroupIndex      int             `json:"group_index,omitempty"`
	Description     string          `json:"description,omitempty"`
	Attributes      map[string]any  `json:"attributes,omitempty"`
}

// ResourceTypeCitation is the stage-1 discovery unit of citation-guided
// extraction: a resource type name plus the literal snippet claimed as
// evidence, with optional model-reported character positions.
type ResourceTypeCitation struct {
	ResourceType string `json:"resource_type"`
	Citation     string `json:"citation"`
	StartPos     *int   `json:"start_pos,omitempty"`
	EndPos       *int   `json:"end_pos,omitempty"`
}

// CitedRecord pairs a validated record with the citation and character
// interval that justify it. This is the only value returned to callers.
type CitedRecord struct {
	Record   map[string]any `json:"record"`
	Citation string         `json:"citation"`
	Interval *CharInterval  `json:"char_interval,omitempty"`
}
