package suite

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dimuzzo/geobench/pkg/bench"
	"github.com/dimuzzo/geobench/pkg/config"
)

func TestCityByPlace(t *testing.T) {
	t.Run("registered", func(t *testing.T) {
		city := CityByPlace("milan, italy")
		assert.Equal(t, "milan", city.Slug)
		assert.Equal(t, 3, city.RegionCode)
	})

	t.Run("ad hoc", func(t *testing.T) {
		city := CityByPlace("Reggio Emilia, Italy")
		assert.Equal(t, "reggio_emilia", city.Slug)
	})
}

func TestDatasetPath(t *testing.T) {
	s := &Suite{cfg: &config.Config{ProcessedDataDir: "/data/processed"}}
	assert.Equal(t,
		filepath.Join("/data/processed", "milan_restaurants.geoparquet"),
		s.datasetPath(City{Slug: "milan"}, "restaurants"))
}

func TestBoundaryWKT(t *testing.T) {
	got := boundaryWKT(orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}})
	assert.Equal(t, "POLYGON((0 0,1 0,1 1,0 0))", got)
}

func TestUnsupportedRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	sink := bench.NewCSVSink(path)
	s := &Suite{sink: sink, logger: zap.NewNop()}

	require.NoError(t, s.unsupported(UCZonal, TechDuckDB,
		"Population per municipality (zonal sum)", "GHS_POP_ITALY_100m.tif",
		"Technology not supported for raster data."))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, UCZonal, rows[1][0])
	assert.Equal(t, "N/A", rows[1][4])
	assert.Equal(t, "N/A", rows[1][5])
	assert.Equal(t, "Technology not supported for raster data.", rows[1][7])
}

// The use_case column is a contract with existing result files and the
// plotting notebooks that read them; the labels must not drift.
func TestUseCaseLabels(t *testing.T) {
	assert.Equal(t, "1. Ingestion (Vector Data)", UCVectorIngestion)
	assert.Equal(t, "2. Filtering (Vector Data)", UCVectorFiltering)
	assert.Equal(t, "1. Ingestion (Raster Data)", UCRasterIngestion)
	assert.Equal(t, "2. Filtering (Raster Data)", UCRasterFiltering)
	assert.Equal(t, "1&2. Ingestion & Filtering (OSM Data)", UCOSM)
	assert.Equal(t, "3. Single Table Analysis (OSM Data)", UCSingleTable)
	assert.Equal(t, "4. Complex Spatial Join (OSM Data)", UCJoin)
	assert.Equal(t, "5. Vector-Raster Analysis (Vector Data & Raster Data)", UCZonal)
	assert.Equal(t, "DuckDB Spatial", TechDuckDB)
	assert.Equal(t, "PostGIS", TechPostGIS)
}
