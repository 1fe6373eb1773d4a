package extract

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// DebugSink writes per-attempt artifacts (prompt, raw response, parsed
// records, validation report) to a directory for offline inspection.
// A nil sink is a no-op. Files are write-only; the engine never reads
// them back.
type DebugSink struct {
	Dir string

	mu  sync.Mutex
	seq int
}

// NewDebugSink returns a sink writing to dir, or nil when dir is empty.
func NewDebugSink(dir string) *DebugSink {
	if dir == "" {
		return nil
	}
	return &DebugSink{Dir: dir}
}

// NextAttempt reserves the next attempt number.
func (s *DebugSink) NextAttempt() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

func (s *DebugSink) WritePrompt(attempt int, prompt string) {
	s.write(attempt, "prompt.txt", []byte(prompt))
}

func (s *DebugSink) WriteResponse(attempt int, response string) {
	s.write(attempt, "response.txt", []byte(response))
}

func (s *DebugSink) WriteParsed(attempt int, records []map[string]any) {
	if s == nil {
		return
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return
	}
	s.write(attempt, "parsed.json", data)
}

func (s *DebugSink) WriteValidation(attempt int, report string) {
	s.write(attempt, "validation.txt", []byte(report))
}

func (s *DebugSink) write(attempt int, suffix string, data []byte) {
	if s == nil {
		return
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		zap.L().Warn("debug sink: create dir failed", zap.String("dir", s.Dir), zap.Error(err))
		return
	}
	name := filepath.Join(s.Dir, fmt.Sprintf("attempt-%03d-%s", attempt, suffix))
	if err := os.WriteFile(name, data, 0o644); err != nil {
		zap.L().Warn("debug sink: write failed", zap.String("file", name), zap.Error(err))
	}
}
