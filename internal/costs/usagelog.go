package costs

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Clukay-Fun/OmniAgent-sub000/internal/logging"
)

// UsageRecord is one JSONL line in the usage log.
type UsageRecord struct {
	At           time.Time `json:"at"`
	UserID       string    `json:"user_id"`
	Skill        string    `json:"skill"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Cost         float64   `json:"cost"`
	Status       string    `json:"status"`
}

// UsageLogger appends usage records to a JSONL file. When the file cannot be
// written, records fall through to the fallback hook so spend data is never
// silently lost.
type UsageLogger struct {
	mu       sync.Mutex
	path     string
	fallback func(UsageRecord)
	onWrite  func(status string)
	logger   logging.Logger
}

// NewUsageLogger builds a logger writing to path. fallback and onWrite may be
// nil.
func NewUsageLogger(path string, fallback func(UsageRecord), onWrite func(status string), logger logging.Logger) *UsageLogger {
	return &UsageLogger{
		path:     path,
		fallback: fallback,
		onWrite:  onWrite,
		logger:   logging.OrNop(logger),
	}
}

// Write appends one record.
func (l *UsageLogger) Write(rec UsageRecord) {
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	if err := l.append(rec); err != nil {
		l.logger.Error("usage log write failed: %v", err)
		if l.fallback != nil {
			l.fallback(rec)
			l.report("fallback")
			return
		}
		l.report("error")
		return
	}
	l.report("ok")
}

func (l *UsageLogger) report(status string) {
	if l.onWrite != nil {
		l.onWrite(status)
	}
}

func (l *UsageLogger) append(rec UsageRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode usage record: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open usage log: %w", err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append usage log: %w", err)
	}
	return nil
}
