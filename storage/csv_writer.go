package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"leilao-insights/models"
)

// CSVWriter exports extraction logs to a CSV file.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	w := csv.NewWriter(f)

	if err := w.Write([]string{
		"created_at", "portal", "status", "via", "missing_fields", "url", "error",
	}); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()

	return &CSVWriter{file: f, writer: w}, nil
}

// WriteLogs appends one row per extraction log.
func (c *CSVWriter) WriteLogs(logs []models.ExtractionLog) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, l := range logs {
		missing := make([]string, len(l.MissingFields))
		for i, f := range l.MissingFields {
			missing[i] = string(f)
		}
		row := []string{
			l.CreatedAt.Format(time.RFC3339),
			l.Portal,
			string(l.Status),
			string(l.Via),
			strings.Join(missing, ";"),
			l.URL,
			l.Error,
		}
		if err := c.writer.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	return c.file.Close()
}
