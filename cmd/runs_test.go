//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/clinical-extract/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2026, 4, 10, 9, 15, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:            "abc12345-6789-0000-0000-000000000000",
			DocumentID:    "discharge-note-1",
			Provider:      "anthropic",
			ResourceTypes: []string{"Observation"},
			Status:        model.RunStatusComplete,
			Result:        &model.RunResult{TotalRecords: 7},
			CreatedAt:     now,
			UpdatedAt:     now.Add(time.Minute),
		},
		{
			ID:         "def12345-6789-0000-0000-000000000000",
			DocumentID: "intake-form-2",
			Provider:   "openai",
			Status:     model.RunStatusRunning,
			CreatedAt:  now.Add(-time.Hour),
			UpdatedAt:  now.Add(-time.Hour),
		},
	}

	var buf bytes.Buffer
	err := formatRunsList(&buf, runs)
	assert.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "DOCUMENT")
	assert.Contains(t, output, "discharge-note-1")
	assert.Contains(t, output, "anthropic")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "7")
	assert.Contains(t, output, "intake-form-2")
	assert.Contains(t, output, "running")
	assert.Contains(t, output, "2026-04-10 09:15")
}

func TestFormatRunsList_NoResult(t *testing.T) {
	runs := []model.Run{
		{
			ID:         "abc",
			DocumentID: "doc",
			Provider:   "anthropic",
			Status:     model.RunStatusQueued,
			CreatedAt:  time.Now(),
		},
	}

	var buf bytes.Buffer
	err := formatRunsList(&buf, runs)
	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "-")
}
