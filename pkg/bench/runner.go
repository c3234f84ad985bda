package bench

import (
	"context"
	"fmt"

	"github.com/k0kubun/go-ansi"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

// Operation identifies what is being measured. The strings end up
// verbatim in the results CSV.
type Operation struct {
	UseCase     string
	Technology  string
	Description string
	Dataset     string
}

// RunSpec describes one benchmarked operation.
//
// Fn is executed Runs times. The first execution is the cold start and
// is recorded as its own row; the remaining executions are hot starts
// recorded as a single averaged row. Fn returns a note fragment such as
// "Found 812 buildings." that is reused across both rows.
//
// Artifact, when set, is called once after the cold run to persist the
// operation's output; its file size fills the output_size_mb column.
type RunSpec struct {
	Op       Operation
	Runs     int
	Fn       func(ctx context.Context) (string, error)
	Artifact func() (string, error)
}

// Runner drives cold/hot benchmark loops and records rows through the
// CSV sink and the run log.
type Runner struct {
	sink     *CSVSink
	log      *RunLog
	logger   *zap.Logger
	progress bool
}

func NewRunner(sink *CSVSink, log *RunLog, logger *zap.Logger, progress bool) *Runner {
	return &Runner{sink: sink, log: log, logger: logger, progress: progress}
}

func (r *Runner) Run(ctx context.Context, spec RunSpec) error {
	if spec.Runs < 1 {
		return fmt.Errorf("operation %q: runs must be >= 1", spec.Op.Description)
	}

	r.logger.Info("running cold start",
		zap.String("technology", spec.Op.Technology),
		zap.String("operation", spec.Op.Description),
	)

	var note string
	coldElapsed, err := Time(func() error {
		var fnErr error
		note, fnErr = spec.Fn(ctx)
		return fnErr
	})
	if err != nil {
		return fmt.Errorf("cold start of %q failed: %w", spec.Op.Description, err)
	}
	cold := coldElapsed.Seconds()
	_ = r.log.Append(RunRecord{
		UseCase:    spec.Op.UseCase,
		Technology: spec.Op.Technology,
		Operation:  spec.Op.Description,
		Run:        1,
		Kind:       "cold",
		Seconds:    cold,
	})

	size := NotApplicable
	if spec.Artifact != nil {
		path, artErr := spec.Artifact()
		if artErr != nil {
			r.logger.Warn("artifact write failed", zap.Error(artErr))
		} else if path != "" {
			if mb, sizeErr := FileSizeMB(path); sizeErr == nil {
				size = mb
			}
		}
	}

	if err := r.sink.Append(Result{
		UseCase:       spec.Op.UseCase,
		Technology:    spec.Op.Technology,
		Operation:     spec.Op.Description,
		Dataset:       spec.Op.Dataset,
		ExecutionTime: cold,
		NumRuns:       1,
		OutputSizeMB:  size,
		Notes:         fmt.Sprintf("%s Cold start (first run).", note),
	}); err != nil {
		return err
	}
	r.logger.Info("cold start done", zap.Float64("seconds", cold))

	if spec.Runs == 1 {
		return nil
	}

	bar := r.newBar(spec.Runs-1, spec.Op.Description)
	hotTimes := make([]float64, 0, spec.Runs-1)
	for i := 0; i < spec.Runs-1; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		elapsed, runErr := Time(func() error {
			_, fnErr := spec.Fn(ctx)
			return fnErr
		})
		if bar != nil {
			_ = bar.Add(1)
		}
		if runErr != nil {
			r.logger.Warn("hot run failed",
				zap.Int("run", i+2),
				zap.Error(runErr),
			)
			continue
		}
		hotTimes = append(hotTimes, elapsed.Seconds())
		_ = r.log.Append(RunRecord{
			UseCase:    spec.Op.UseCase,
			Technology: spec.Op.Technology,
			Operation:  spec.Op.Description,
			Run:        i + 2,
			Kind:       "hot",
			Seconds:    elapsed.Seconds(),
		})
	}

	if len(hotTimes) == 0 {
		r.logger.Warn("no successful hot runs", zap.String("operation", spec.Op.Description))
		return nil
	}

	var sum float64
	for _, t := range hotTimes {
		sum += t
	}
	avg := sum / float64(len(hotTimes))

	if err := r.sink.Append(Result{
		UseCase:       spec.Op.UseCase,
		Technology:    spec.Op.Technology,
		Operation:     spec.Op.Description,
		Dataset:       spec.Op.Dataset,
		ExecutionTime: avg,
		NumRuns:       len(hotTimes),
		OutputSizeMB:  size,
		Notes:         fmt.Sprintf("%s Average of %d hot cache runs.", note, len(hotTimes)),
	}); err != nil {
		return err
	}
	r.logger.Info("hot runs done",
		zap.Int("runs", len(hotTimes)),
		zap.Float64("avg_seconds", avg),
	)
	return nil
}

func (r *Runner) newBar(total int, description string) *progressbar.ProgressBar {
	if !r.progress {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(ansi.NewAnsiStdout()),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(15),
		progressbar.OptionSetDescription(fmt.Sprintf("[cyan]Hot runs: %s[reset]", description)),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}
