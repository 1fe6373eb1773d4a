package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentID_LazyAssignment(t *testing.T) {
	doc := NewDocument("", "some text")

	id := doc.ID()
	assert.NotEmpty(t, id)
	// Stable across accesses.
	assert.Equal(t, id, doc.ID())
}

func TestDocumentID_Preassigned(t *testing.T) {
	doc := NewDocument("doc-1", "some text")
	assert.Equal(t, "doc-1", doc.ID())
}

func TestNewTextChunk_Valid(t *testing.T) {
	doc := NewDocument("d", "hello world")

	chunk, err := NewTextChunk(doc, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", chunk.Text())

	chunk, err = NewTextChunk(doc, 6, 11)
	require.NoError(t, err)
	assert.Equal(t, "world", chunk.Text())
}

func TestNewTextChunk_InvalidIntervals(t *testing.T) {
	doc := NewDocument("d", "hello")

	cases := []struct {
		name       string
		start, end int
	}{
		{"negative start", -1, 3},
		{"start equals end", 2, 2},
		{"start after end", 4, 2},
		{"end past text", 0, 6},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewTextChunk(doc, tc.start, tc.end)
			assert.Error(t, err)
		})
	}
}

func TestCharInterval(t *testing.T) {
	ci := NewCharInterval(3, 10)
	assert.True(t, ci.Located())
	assert.Equal(t, "[3,10)", ci.String())

	var unlocated *CharInterval
	assert.False(t, unlocated.Located())
	assert.Equal(t, "[?,?)", (&CharInterval{}).String())
}
