// Package suite wires the engines to the benchmark runner: one driver
// per use case, iterating the configured cities and appending result
// rows to the shared CSV.
package suite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"go.uber.org/zap"

	"github.com/dimuzzo/geobench/pkg/bench"
	"github.com/dimuzzo/geobench/pkg/config"
	"github.com/dimuzzo/geobench/pkg/duck"
	"github.com/dimuzzo/geobench/pkg/geo"
	"github.com/dimuzzo/geobench/pkg/postgis"
)

// Use case labels, written verbatim to the use_case CSV column so rows
// from every engine group together in the shared results file.
const (
	UCVectorIngestion = "1. Ingestion (Vector Data)"
	UCVectorFiltering = "2. Filtering (Vector Data)"
	UCRasterIngestion = "1. Ingestion (Raster Data)"
	UCRasterFiltering = "2. Filtering (Raster Data)"
	UCOSM             = "1&2. Ingestion & Filtering (OSM Data)"
	UCSingleTable     = "3. Single Table Analysis (OSM Data)"
	UCJoin            = "4. Complex Spatial Join (OSM Data)"
	UCZonal           = "5. Vector-Raster Analysis (Vector Data & Raster Data)"
)

// Technology labels, one per engine.
const (
	TechDuckDB  = "DuckDB Spatial"
	TechPostGIS = "PostGIS"
	TechVector  = "Go (orb + GEOS)"
	TechRaster  = "Go (GDAL)"
	TechOSM     = "Go (osmpbf)"
)

// City is one benchmark target. RegionCode is the ISTAT region the
// attribute-filter operations select.
type City struct {
	Name       string
	Slug       string
	RegionCode int
}

var Cities = []City{
	{Name: "Pinerolo, Italy", Slug: "pinerolo", RegionCode: 1},
	{Name: "Milan, Italy", Slug: "milan", RegionCode: 3},
	{Name: "Rome, Italy", Slug: "rome", RegionCode: 12},
}

// CityByPlace matches a configured place like "Milan, Italy" to the
// registry, falling back to a slugged ad-hoc entry.
func CityByPlace(place string) City {
	for _, c := range Cities {
		if strings.EqualFold(c.Name, place) {
			return c
		}
	}
	slug := strings.ToLower(strings.SplitN(place, ",", 2)[0])
	slug = strings.ReplaceAll(strings.TrimSpace(slug), " ", "_")
	return City{Name: place, Slug: slug, RegionCode: 1}
}

// Suite holds the shared pieces every driver needs. The PostGIS engine
// is nil when no DSN is configured; drivers skip those rows.
type Suite struct {
	cfg      *config.Config
	logger   *zap.Logger
	runner   *bench.Runner
	sink     *bench.CSVSink
	geocoder *geo.Geocoder
	duck     *duck.Engine
	pg       *postgis.Engine
}

func New(cfg *config.Config, logger *zap.Logger, runner *bench.Runner, sink *bench.CSVSink,
	geocoder *geo.Geocoder, duckEngine *duck.Engine, pg *postgis.Engine) *Suite {
	return &Suite{
		cfg:      cfg,
		logger:   logger,
		runner:   runner,
		sink:     sink,
		geocoder: geocoder,
		duck:     duckEngine,
		pg:       pg,
	}
}

// Run executes the named use cases ("uc1".."uc5", or "all") for the
// configured place.
func (s *Suite) Run(ctx context.Context, useCases []string) error {
	city := CityByPlace(s.cfg.Place)

	boundary, err := s.geocoder.Boundary(ctx, city.Name)
	if err != nil {
		return fmt.Errorf("geocoding %s: %w", city.Name, err)
	}

	selected := make(map[string]bool, len(useCases))
	for _, uc := range useCases {
		selected[strings.ToLower(strings.TrimSpace(uc))] = true
	}
	all := selected["all"]

	type driver struct {
		key string
		fn  func(context.Context, City, orb.Geometry) error
	}
	drivers := []driver{
		{"uc1", s.runIngestion},
		{"uc2", s.runFiltering},
		{"uc3", s.runSingleTable},
		{"uc4", s.runJoins},
		{"uc5", s.runZonal},
	}
	for _, d := range drivers {
		if !all && !selected[d.key] {
			continue
		}
		s.logger.Info("running use case", zap.String("use_case", d.key), zap.String("city", city.Name))
		if err := d.fn(ctx, city, boundary); err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
	}
	return nil
}

func (s *Suite) datasetPath(city City, class string) string {
	return filepath.Join(s.cfg.ProcessedDataDir, fmt.Sprintf("%s_%s.geoparquet", city.Slug, class))
}

// haveDataset reports whether the processed file exists; missing
// datasets skip their operations with a log line rather than failing
// the whole suite.
func (s *Suite) haveDataset(path string) bool {
	if _, err := os.Stat(path); err != nil {
		s.logger.Warn("dataset missing, skipping", zap.String("path", path))
		return false
	}
	return true
}

func boundaryWKT(boundary orb.Geometry) string {
	return wkt.MarshalString(boundary)
}

// unsupported records the explicit row for engine/datatype combos that
// cannot run.
func (s *Suite) unsupported(useCase, technology, operation, dataset, reason string) error {
	return s.sink.Append(bench.Result{
		UseCase:    useCase,
		Technology: technology,
		Operation:  operation,
		Dataset:    dataset,
		NoTiming:   true,
		NumRuns:    1,
		Notes:      reason,
	})
}
