package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/dimuzzo/geobench/pkg/bench"
	"github.com/dimuzzo/geobench/pkg/config"
	"github.com/dimuzzo/geobench/pkg/duck"
	"github.com/dimuzzo/geobench/pkg/geo"
	"github.com/dimuzzo/geobench/pkg/logger"
	"github.com/dimuzzo/geobench/pkg/postgis"
	"github.com/dimuzzo/geobench/pkg/suite"
)

var (
	configFile = flag.String("config", "", "path to config.yaml (defaults + env when empty)")
	place      = flag.String("place", "", "override the configured place, e.g. \"Milan, Italy\"")
	runs       = flag.Int("runs", 0, "override the configured number of runs per operation")
	useCases   = flag.String("suite", "all", "comma separated use cases (uc1..uc5) or \"all\"")
	noProgress = flag.Bool("no-progress", false, "disable the hot run progress bar")
)

func main() {
	flag.Parse()

	cfg, err := config.New(*configFile)
	if err != nil {
		log.Fatal(err)
	}
	if *place != "" {
		cfg.Place = *place
	}
	if *runs > 0 {
		cfg.Runs = *runs
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

	sink := bench.NewCSVSink(cfg.ResultsFile())
	runLog, err := bench.OpenRunLog(cfg.RunLogFile())
	if err != nil {
		zapLogger.Fatal("opening run log", zap.Error(err))
	}
	defer runLog.Close()
	runner := bench.NewRunner(sink, runLog, zapLogger, !*noProgress)

	cache, err := geo.OpenBoundaryCache(cfg.BoundaryCache)
	if err != nil {
		zapLogger.Fatal("opening boundary cache", zap.Error(err))
	}
	defer cache.Close()
	geocoder := geo.NewGeocoder(cfg.NominatimEndpoint, cache, zapLogger)

	duckEngine, err := duck.New(zapLogger)
	if err != nil {
		zapLogger.Fatal("starting duckdb", zap.Error(err))
	}
	defer duckEngine.Close()

	var pg *postgis.Engine
	if cfg.PostgresDSN != "" {
		pg, err = postgis.New(ctx, cfg.PostgresDSN, zapLogger)
		if err != nil {
			zapLogger.Warn("postgis unavailable, its rows will be skipped", zap.Error(err))
			pg = nil
		} else {
			defer pg.Close()
		}
	}

	s := suite.New(cfg, zapLogger, runner, sink, geocoder, duckEngine, pg)
	if err := s.Run(ctx, strings.Split(*useCases, ",")); err != nil {
		zapLogger.Fatal("benchmark suite failed", zap.Error(err))
	}
	zapLogger.Info("benchmark suite finished",
		zap.String("results", cfg.ResultsFile()),
		zap.String("run_log", cfg.RunLogFile()),
	)
}
