// internal/audit/logger.go
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sink persists audit entries somewhere durable.
type Sink interface {
	Write(ctx context.Context, entry *Entry) error
}

// Logger fans audit entries out to its sinks. Record never fails the
// calling operation: sink errors go to the fallback zap logger (stderr
// in production) and nothing else.
type Logger struct {
	sinks    []Sink
	fallback *zap.Logger
}

// NewLogger creates an audit logger over the given sinks.
func NewLogger(fallback *zap.Logger, sinks ...Sink) *Logger {
	return &Logger{sinks: sinks, fallback: fallback}
}

// Record appends an entry to every sink.
func (l *Logger) Record(ctx context.Context, entry *Entry) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	for _, sink := range l.sinks {
		if err := sink.Write(ctx, entry); err != nil {
			l.fallback.Error("audit write failed",
				zap.String("team", entry.Team),
				zap.String("action", string(entry.Action)),
				zap.String("outcome", string(entry.Outcome)),
				zap.Error(err))
		}
	}
}

// FileSink appends entries to a JSONL file, one record per line.
type FileSink struct {
	path string
	mu   sync.Mutex
}

// NewFileSink creates (or reuses) the append-only audit file.
func NewFileSink(path string) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("audit: create log dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	_ = f.Close()

	return &FileSink{path: path}, nil
}

// Write appends one entry.
func (s *FileSink) Write(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640) // #nosec G304
	if err != nil {
		return fmt.Errorf("audit: open %s: %w", s.path, err)
	}
	defer func() { _ = f.Close() }()

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: append: %w", err)
	}

	return nil
}

// Read returns all entries in the file, oldest first. Used by tests and
// the status API, not on the switch path.
func (s *FileSink) Read() ([]*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path) // #nosec G304
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("audit: read %s: %w", s.path, err)
	}

	var entries []*Entry
	for _, line := range bytes.Split(data, []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("audit: parse entry: %w", err)
		}
		entries = append(entries, &entry)
	}

	return entries, nil
}
