package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/dimuzzo/geobench/pkg/bench"
	"github.com/dimuzzo/geobench/pkg/config"
	"github.com/dimuzzo/geobench/pkg/logger"
	"github.com/dimuzzo/geobench/pkg/postgis"
	"github.com/dimuzzo/geobench/pkg/vector"
)

var (
	configFile = flag.String("config", "", "path to config.yaml (defaults + env when empty)")
	input      = flag.String("in", "", "vector file to load (shapefile or GeoParquet)")
	table      = flag.String("table", "", "destination table (defaults to the file name)")
	record     = flag.Bool("record", true, "append an ingestion row to the results CSV")
)

func main() {
	flag.Parse()
	if *input == "" {
		log.Fatal("-in is required")
	}

	cfg, err := config.New(*configFile)
	if err != nil {
		log.Fatal(err)
	}
	if cfg.PostgresDSN == "" {
		log.Fatal("postgres_dsn is not configured")
	}

	zapLogger, cleanup, err := logger.New(logger.Configuration{
		Level:      cfg.LogLevel,
		TimeFormat: cfg.LogTimeFormat,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := postgis.New(ctx, cfg.PostgresDSN, zapLogger)
	if err != nil {
		zapLogger.Fatal("connecting to postgis", zap.Error(err))
	}
	defer pg.Close()

	dest := *table
	if dest == "" {
		base := filepath.Base(*input)
		dest = strings.TrimSuffix(base, filepath.Ext(base))
	}

	load := func(ctx context.Context) (string, error) {
		var ds *vector.Dataset
		var loadErr error
		if strings.HasSuffix(*input, ".geoparquet") || strings.HasSuffix(*input, ".parquet") {
			ds, loadErr = vector.LoadGeoParquet(dest, *input)
		} else {
			ds, loadErr = vector.LoadOGR(dest, *input)
		}
		if loadErr != nil {
			return "", loadErr
		}
		if err := pg.LoadFeatures(ctx, dest, ds.Features); err != nil {
			return "", err
		}
		return fmt.Sprintf("Loaded %d features into %s.", ds.Len(), dest), nil
	}

	if !*record {
		note, err := load(ctx)
		if err != nil {
			zapLogger.Fatal("load failed", zap.Error(err))
		}
		zapLogger.Info(note)
		return
	}

	sink := bench.NewCSVSink(cfg.ResultsFile())
	runLog, err := bench.OpenRunLog(cfg.RunLogFile())
	if err != nil {
		zapLogger.Fatal("opening run log", zap.Error(err))
	}
	defer runLog.Close()

	runner := bench.NewRunner(sink, runLog, zapLogger, false)
	err = runner.Run(ctx, bench.RunSpec{
		Op: bench.Operation{
			UseCase:     suiteIngestion,
			Technology:  "PostGIS",
			Description: fmt.Sprintf("Load %s into PostGIS", filepath.Base(*input)),
			Dataset:     dest,
		},
		Runs: 1,
		Fn:   load,
	})
	if err != nil {
		zapLogger.Fatal("load failed", zap.Error(err))
	}
}

// Matches the label the suite drivers use so the rows group together.
const suiteIngestion = "1. Ingestion (Vector Data)"
