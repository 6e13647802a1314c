// Package audit writes a JSONL trail of assembly passes, one file per day,
// pruned after a retention window.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kayz/promptforge/internal/assembly"
)

// Record is one audited assembly pass.
type Record struct {
	ID            string `json:"id"`
	Timestamp     string `json:"timestamp"`
	RequestDigest string `json:"request_digest"`
	Model         string `json:"model,omitempty"`

	ContextSize      int `json:"context_size"`
	ReservedResponse int `json:"reserved_response"`
	RemainingBudget  int `json:"remaining_budget"`

	Messages         int  `json:"messages"`
	HistoryInserted  int  `json:"history_inserted"`
	HistoryDropped   int  `json:"history_dropped"`
	ExamplesInserted int  `json:"examples_inserted"`
	ExamplesDropped  int  `json:"examples_dropped"`
	Squashed         bool `json:"squashed,omitempty"`

	Error string `json:"error,omitempty"`
}

// Writer appends records to daily JSONL files.
type Writer struct {
	enabled       bool
	dir           string
	prefix        string
	retentionDays int

	mu sync.Mutex

	// onRecord, when set, receives every written record. The inspection
	// service uses it to feed live trace subscribers.
	onRecord func(Record)
}

// NewWriter creates a writer. A disabled writer accepts and discards
// records.
func NewWriter(enabled bool, dir, prefix string, retentionDays int) *Writer {
	if prefix == "" {
		prefix = "assembly"
	}
	return &Writer{
		enabled:       enabled,
		dir:           dir,
		prefix:        prefix,
		retentionDays: retentionDays,
	}
}

// OnRecord registers a callback invoked for every written record.
func (w *Writer) OnRecord(fn func(Record)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onRecord = fn
}

// NewRecord builds a record from an assembly report.
func NewRecord(report *assembly.Report, model string, requestData []byte) Record {
	sum := sha256.Sum256(requestData)
	return Record{
		ID:               uuid.NewString(),
		Timestamp:        time.Now().Format(time.RFC3339),
		RequestDigest:    hex.EncodeToString(sum[:]),
		Model:            model,
		ContextSize:      report.ContextSize,
		ReservedResponse: report.ReservedResponse,
		RemainingBudget:  report.RemainingBudget,
		Messages:         report.Messages,
		HistoryInserted:  report.HistoryInserted,
		HistoryDropped:   report.HistoryDropped,
		ExamplesInserted: report.ExamplesInserted,
		ExamplesDropped:  report.ExamplesDropped,
		Squashed:         report.Squashed,
	}
}

// Write appends one record and prunes expired files.
func (w *Writer) Write(rec Record) error {
	w.mu.Lock()
	callback := w.onRecord
	w.mu.Unlock()
	if callback != nil {
		callback(rec)
	}

	if !w.enabled {
		return nil
	}

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	now := time.Now()
	path := filepath.Join(w.dir, fmt.Sprintf("%s-%s.jsonl", w.prefix, now.Format("2006-01-02")))

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := appendJSONL(path, line); err != nil {
		return err
	}
	return w.cleanupWithNow(now)
}

// Cleanup removes audit files older than the retention window.
func (w *Writer) Cleanup() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cleanupWithNow(time.Now())
}

func (w *Writer) cleanupWithNow(now time.Time) error {
	if w.retentionDays <= 0 {
		return nil
	}
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read audit dir: %w", err)
	}
	cutoff := now.AddDate(0, 0, -w.retentionDays)
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, w.prefix+"-") || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		dateStr := strings.TrimSuffix(strings.TrimPrefix(name, w.prefix+"-"), ".jsonl")
		fileDate, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			continue
		}
		if fileDate.Before(cutoff) {
			if err := os.Remove(filepath.Join(w.dir, name)); err != nil {
				return fmt.Errorf("remove expired audit file %s: %w", name, err)
			}
		}
	}
	return nil
}

func appendJSONL(path string, line []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	return nil
}
