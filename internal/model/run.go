package model

import "time"

// RunStatus tracks an extraction run's lifecycle in the store.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// RunResult summarizes a completed extraction run.
type RunResult struct {
	RecordCounts       map[string]int `json:"record_counts"`
	TotalRecords       int            `json:"total_records"`
	WindowTimeouts     int            `json:"window_timeouts"`
	ValidationFailures int            `json:"validation_failures"`
	ProviderErrors     int            `json:"provider_errors"`
	DurationMillis     int64          `json:"duration_ms"`
	Error              string         `json:"error,omitempty"`
}

// Run is a persisted record of one orchestrated extraction call.
type Run struct {
	ID            string     `json:"id"`
	DocumentID    string     `json:"document_id"`
	Provider      string     `json:"provider"`
	ResourceTypes []string   `json:"resource_types"`
	Status        RunStatus  `json:"status"`
	Result        *RunResult `json:"result,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
