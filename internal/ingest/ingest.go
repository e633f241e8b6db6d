// Package ingest defines the handoff between a scrape run and whatever
// persists its results.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/baxromumarov/job-scraper/internal/dedup"
	"github.com/baxromumarov/job-scraper/internal/normalize"
)

type Stats struct {
	CompaniesAttempted int `json:"companies_attempted"`
	JobsFound          int `json:"jobs_found"`
	JobsIngested       int `json:"jobs_ingested"`
	ErrorCount         int `json:"error_count"`
}

// Batch is the result of one run: unique jobs plus the duplicate groups
// folded into them.
type Batch struct {
	RunID      string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Jobs       []normalize.Job `json:"jobs"`
	Duplicates []dedup.Group   `json:"duplicates,omitempty"`
	Stats      Stats           `json:"stats"`
}

// NewBatch starts a batch with a fresh run id.
func NewBatch(started time.Time) Batch {
	return Batch{RunID: uuid.NewString(), StartedAt: started.UTC()}
}

// Sink receives finished batches. Implementations must be safe for use by
// one run at a time; Ingest is not retried.
type Sink interface {
	Ingest(ctx context.Context, b Batch) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, b Batch) error

func (f SinkFunc) Ingest(ctx context.Context, b Batch) error { return f(ctx, b) }

// JSONSink writes each batch as one JSON document.
type JSONSink struct {
	mu     sync.Mutex
	w      io.Writer
	path   string
	indent bool
}

// NewJSONWriter writes batches to w, one document per line.
func NewJSONWriter(w io.Writer) *JSONSink {
	return &JSONSink{w: w}
}

// NewJSONFile replaces the file at path with the latest batch.
func NewJSONFile(path string) *JSONSink {
	return &JSONSink{path: path, indent: true}
}

func (s *JSONSink) Ingest(ctx context.Context, b Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return json.NewEncoder(s.w).Encode(b)
	}

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	// Write then rename so readers never see a partial file.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write batch: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace batch file: %w", err)
	}
	return nil
}

// MultiSink hands the batch to every sink, even after one fails, and joins
// the errors.
type MultiSink []Sink

func (m MultiSink) Ingest(ctx context.Context, b Batch) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Ingest(ctx, b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Memory keeps batches in memory. The API server reads the latest one.
type Memory struct {
	mu      sync.RWMutex
	batches []Batch
	limit   int
}

// NewMemory keeps at most limit batches; limit <= 0 keeps one.
func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = 1
	}
	return &Memory{limit: limit}
}

func (m *Memory) Ingest(_ context.Context, b Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, b)
	if over := len(m.batches) - m.limit; over > 0 {
		m.batches = append([]Batch(nil), m.batches[over:]...)
	}
	return nil
}

// Latest returns the most recent batch.
func (m *Memory) Latest() (Batch, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.batches) == 0 {
		return Batch{}, false
	}
	return m.batches[len(m.batches)-1], true
}

func (m *Memory) Batches() []Batch {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Batch(nil), m.batches...)
}
