package extract

import (
	"sync"
	"time"
)

// MetricsSnapshot is a point-in-time copy of run counters.
type MetricsSnapshot struct {
	Duration           time.Duration  `json:"duration"`
	RecordCounts       map[string]int `json:"record_counts"`
	TotalRecords       int            `json:"total_records"`
	WindowTimeouts     int            `json:"window_timeouts"`
	ValidationFailures int            `json:"validation_failures"`
	ProviderErrors     int            `json:"provider_errors"`
	RepairAttempts     int            `json:"repair_attempts"`
}

// Metrics accumulates counters for exactly one run. Increments are
// mutex-protected so concurrent windows can share one accumulator.
type Metrics struct {
	mu      sync.Mutex
	started time.Time
	snap    MetricsSnapshot
}

func NewMetrics() *Metrics {
	return &Metrics{snap: MetricsSnapshot{RecordCounts: map[string]int{}}}
}

// Start marks the beginning of a run; Stop fixes the duration.
func (m *Metrics) Start() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = time.Now()
}

func (m *Metrics) Stop() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started.IsZero() {
		m.snap.Duration = time.Since(m.started)
	}
}

// AddRecords counts n validated records under resourceType.
func (m *Metrics) AddRecords(resourceType string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.RecordCounts[resourceType] += n
	m.snap.TotalRecords += n
}

func (m *Metrics) IncWindowTimeout() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.WindowTimeouts++
}

func (m *Metrics) IncValidationFailure() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.ValidationFailures++
}

func (m *Metrics) IncProviderError() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.ProviderErrors++
}

func (m *Metrics) AddRepairAttempts(n int) {
	if m == nil || n == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.RepairAttempts += n
}

// Reset clears all counters so the accumulator can be reused for the next
// run.
func (m *Metrics) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = time.Time{}
	m.snap = MetricsSnapshot{RecordCounts: map[string]int{}}
}

// Snapshot returns a copy safe to read while windows are still running.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{RecordCounts: map[string]int{}}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.snap
	out.RecordCounts = make(map[string]int, len(m.snap.RecordCounts))
	for k, v := range m.snap.RecordCounts {
		out.RecordCounts[k] = v
	}
	return out
}
