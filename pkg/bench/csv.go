package bench

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

var csvHeader = []string{
	"use_case",
	"technology",
	"operation_description",
	"test_dataset",
	"execution_time_s",
	"num_runs",
	"output_size_mb",
	"notes",
}

// CSVSink appends benchmark results to a single shared CSV file. The
// header is written only when the file does not exist yet, so several
// benchmark invocations accumulate rows in the same file.
type CSVSink struct {
	mu   sync.Mutex
	path string
}

func NewCSVSink(path string) *CSVSink {
	return &CSVSink{path: path}
}

func (s *CSVSink) Path() string {
	return s.path
}

func (s *CSVSink) Append(result Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating results directory: %w", err)
	}

	_, statErr := os.Stat(s.path)
	writeHeader := errors.Is(statErr, fs.ErrNotExist)

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening results file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(csvHeader); err != nil {
			return fmt.Errorf("writing results header: %w", err)
		}
	}
	if err := w.Write(result.record()); err != nil {
		return fmt.Errorf("writing result row: %w", err)
	}
	w.Flush()
	return w.Error()
}
