package bench

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// RunRecord is one timed execution, cold or hot. The CSV keeps only the
// cold time and the hot average; the run log keeps every sample so the
// distribution can be inspected afterwards.
type RunRecord struct {
	UseCase    string    `json:"use_case"`
	Technology string    `json:"technology"`
	Operation  string    `json:"operation"`
	Run        int       `json:"run"`
	Kind       string    `json:"kind"` // "cold" or "hot"
	Seconds    float64   `json:"seconds"`
	At         time.Time `json:"at"`
}

// RunLog appends run records as zstd-compressed JSON lines. Each Open
// starts a new zstd frame, which decoders concatenate transparently.
type RunLog struct {
	mu  sync.Mutex
	f   *os.File
	zw  *zstd.Encoder
	enc *json.Encoder
}

func OpenRunLog(path string) (*RunLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating run log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening run log: %w", err)
	}
	zw, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &RunLog{f: f, zw: zw, enc: json.NewEncoder(zw)}, nil
}

func (l *RunLog) Append(rec RunRecord) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	return l.enc.Encode(rec)
}

func (l *RunLog) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.zw.Close(); err != nil {
		l.f.Close()
		return err
	}
	return l.f.Close()
}
