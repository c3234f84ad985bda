package bench

import (
	"fmt"
	"os"
)

// NotApplicable marks result fields that have no meaningful value for a
// given operation, e.g. output size when the engine writes no artifact.
const NotApplicable = "N/A"

// Result is one row of the shared benchmark results CSV. Unsupported
// combinations of engine and data type set NoTiming, which records the
// row with N/A in the timing columns instead of a number.
type Result struct {
	UseCase       string
	Technology    string
	Operation     string
	Dataset       string
	ExecutionTime float64
	NumRuns       int
	NoTiming      bool
	OutputSizeMB  string
	Notes         string
}

func (r Result) record() []string {
	execution := fmt.Sprintf("%.6f", r.ExecutionTime)
	runs := fmt.Sprintf("%d", r.NumRuns)
	if r.NoTiming {
		execution = NotApplicable
		runs = NotApplicable
	}
	size := r.OutputSizeMB
	if size == "" {
		size = NotApplicable
	}
	notes := r.Notes
	if notes == "" {
		notes = NotApplicable
	}
	return []string{
		r.UseCase,
		r.Technology,
		r.Operation,
		r.Dataset,
		execution,
		runs,
		size,
		notes,
	}
}

// FileSizeMB stats path and formats its size in megabytes with four
// decimals, the precision the results file has always used.
func FileSizeMB(path string) (string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return NotApplicable, err
	}
	return fmt.Sprintf("%.4f", float64(fi.Size())/(1024*1024)), nil
}
