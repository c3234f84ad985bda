package bench

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStopwatch(t *testing.T) {
	t.Run("measures elapsed time", func(t *testing.T) {
		sw := NewStopwatch()
		sw.Start()
		time.Sleep(10 * time.Millisecond)
		elapsed := sw.Stop()
		assert.GreaterOrEqual(t, elapsed, 10*time.Millisecond)
		assert.Equal(t, elapsed, sw.Elapsed())
	})

	t.Run("time helper returns duration on error", func(t *testing.T) {
		sentinel := errors.New("boom")
		elapsed, err := Time(func() error {
			time.Sleep(time.Millisecond)
			return sentinel
		})
		assert.ErrorIs(t, err, sentinel)
		assert.Greater(t, elapsed, time.Duration(0))
	})
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results", "benchmark_results.csv")
	sink := NewCSVSink(path)

	t.Run("writes header once", func(t *testing.T) {
		err := sink.Append(Result{
			UseCase:       "2. Filtering (Vector Data)",
			Technology:    "DuckDB Spatial",
			Operation:     "Filter table by attribute",
			Dataset:       "comuni.shp",
			ExecutionTime: 0.1234,
			NumRuns:       1,
			Notes:         "Filtered to 10 features. Cold start (first run).",
		})
		require.NoError(t, err)
		require.NoError(t, sink.Append(Result{
			UseCase:       "2. Filtering (Vector Data)",
			Technology:    "DuckDB Spatial",
			Operation:     "Filter table by attribute",
			Dataset:       "comuni.shp",
			ExecutionTime: 0.1,
			NumRuns:       99,
		}))

		rows := readCSV(t, path)
		require.Len(t, rows, 3)
		assert.Equal(t, csvHeader, rows[0])
		assert.Equal(t, "0.123400", rows[1][4])
		assert.Equal(t, "N/A", rows[1][6])
		assert.Equal(t, "99", rows[2][5])
		assert.Equal(t, "N/A", rows[2][7])
	})

	t.Run("unsupported rows use N/A timing", func(t *testing.T) {
		require.NoError(t, sink.Append(Result{
			UseCase:    "1. Ingestion (Raster Data)",
			Technology: "DuckDB Spatial",
			Operation:  "Load GeoTIFF file",
			Dataset:    "dem.tif",
			NoTiming:   true,
			Notes:      "Technology not supported for this data type.",
		}))
		rows := readCSV(t, path)
		last := rows[len(rows)-1]
		assert.Equal(t, "N/A", last[4])
		assert.Equal(t, "N/A", last[5])
	})
}

func TestFileSizeMB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifact.bin")
	require.NoError(t, os.WriteFile(path, make([]byte, 1024*1024), 0644))

	size, err := FileSizeMB(path)
	require.NoError(t, err)
	assert.Equal(t, "1.0000", size)

	_, err = FileSizeMB(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestRunLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run_log.jsonl.zst")

	log, err := OpenRunLog(path)
	require.NoError(t, err)
	require.NoError(t, log.Append(RunRecord{
		UseCase:    "3. Single Table Analysis (OSM Data)",
		Technology: "GeoBench Native",
		Operation:  "3.1. Top 10 Largest Areas (sqm)",
		Run:        1,
		Kind:       "cold",
		Seconds:    0.5,
	}))
	require.NoError(t, log.Append(RunRecord{Run: 2, Kind: "hot", Seconds: 0.2}))
	require.NoError(t, log.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	zr, err := zstd.NewReader(f)
	require.NoError(t, err)
	defer zr.Close()

	var records []RunRecord
	scanner := bufio.NewScanner(zr)
	for scanner.Scan() {
		var rec RunRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		records = append(records, rec)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, records, 2)
	assert.Equal(t, "cold", records[0].Kind)
	assert.False(t, records[0].At.IsZero())
	assert.Equal(t, 2, records[1].Run)
}

func TestRunner(t *testing.T) {
	newRunner := func(t *testing.T) (*Runner, string) {
		t.Helper()
		dir := t.TempDir()
		csvPath := filepath.Join(dir, "benchmark_results.csv")
		return NewRunner(NewCSVSink(csvPath), nil, zap.NewNop(), false), csvPath
	}

	t.Run("cold row then averaged hot row", func(t *testing.T) {
		runner, csvPath := newRunner(t)
		calls := 0
		err := runner.Run(context.Background(), RunSpec{
			Op: Operation{
				UseCase:     "2. Filtering (Vector Data)",
				Technology:  "GeoBench Native",
				Description: "Filter features by attribute",
				Dataset:     "comuni.shp",
			},
			Runs: 4,
			Fn: func(context.Context) (string, error) {
				calls++
				return "Filtered to 7 features.", nil
			},
		})
		require.NoError(t, err)
		assert.Equal(t, 4, calls)

		rows := readCSV(t, csvPath)
		require.Len(t, rows, 3)
		assert.Equal(t, "1", rows[1][5])
		assert.Contains(t, rows[1][7], "Cold start (first run).")
		assert.Equal(t, "3", rows[2][5])
		assert.Contains(t, rows[2][7], "Average of 3 hot cache runs.")
	})

	t.Run("cold failure aborts and records nothing", func(t *testing.T) {
		runner, csvPath := newRunner(t)
		err := runner.Run(context.Background(), RunSpec{
			Op:   Operation{Description: "always fails"},
			Runs: 3,
			Fn: func(context.Context) (string, error) {
				return "", errors.New("engine down")
			},
		})
		require.Error(t, err)
		_, statErr := os.Stat(csvPath)
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("hot failures are skipped", func(t *testing.T) {
		runner, csvPath := newRunner(t)
		calls := 0
		err := runner.Run(context.Background(), RunSpec{
			Op:   Operation{Description: "flaky"},
			Runs: 4,
			Fn: func(context.Context) (string, error) {
				calls++
				if calls == 3 {
					return "", errors.New("transient")
				}
				return "ok.", nil
			},
		})
		require.NoError(t, err)
		rows := readCSV(t, csvPath)
		require.Len(t, rows, 3)
		assert.Equal(t, "2", rows[2][5])
	})

	t.Run("artifact size recorded on both rows", func(t *testing.T) {
		runner, csvPath := newRunner(t)
		artifact := filepath.Join(t.TempDir(), "out.geoparquet")
		err := runner.Run(context.Background(), RunSpec{
			Op:   Operation{Description: "with artifact"},
			Runs: 2,
			Fn: func(context.Context) (string, error) {
				return "Found 1 feature.", nil
			},
			Artifact: func() (string, error) {
				return artifact, os.WriteFile(artifact, make([]byte, 512*1024), 0644)
			},
		})
		require.NoError(t, err)
		rows := readCSV(t, csvPath)
		require.Len(t, rows, 3)
		assert.Equal(t, "0.5000", rows[1][6])
		assert.Equal(t, "0.5000", rows[2][6])
	})
}
