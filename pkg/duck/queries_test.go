package duck

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSQLPathEscaping(t *testing.T) {
	assert.Equal(t, "C:/data/comuni.shp", sqlPath(`C:\data\comuni.shp`))
	assert.Equal(t, "it''s.shp", sqlPath("it's.shp"))
}

func TestIngestShapefileSQL(t *testing.T) {
	sql := ingestShapefileSQL("/data/raw/comuni_istat/Com01012025_WGS84.shp")
	assert.Contains(t, sql, "CREATE OR REPLACE TABLE comuni")
	assert.Contains(t, sql, "ST_Read('/data/raw/comuni_istat/Com01012025_WGS84.shp')")
}

func TestFilterByRegionSQL(t *testing.T) {
	sql := filterByRegionSQL(1)
	assert.Contains(t, sql, "WHERE COD_REG = 1")
	assert.Contains(t, sql, "ST_AsWKB(geom) AS geom_wkb")
	assert.Contains(t, sql, "EXCLUDE (geom)")
}

func TestExtractBuildingsSQL(t *testing.T) {
	sql := extractBuildingsSQL("/data/raw/lombardy-latest.osm.pbf", "POLYGON((9 45, 10 45, 10 46, 9 46, 9 45))")
	assert.Equal(t, 2, strings.Count(sql, "ST_ReadOSM('/data/raw/lombardy-latest.osm.pbf')"))
	assert.Contains(t, sql, "map_extract(tags, 'building')")
	assert.Contains(t, sql, "kind = 'node'")
	assert.Contains(t, sql, "ST_GeomFromText('POLYGON((9 45, 10 45, 10 46, 9 46, 9 45))')")
}

func TestAnalysisSQLUsesMetricCRS(t *testing.T) {
	t.Run("top areas", func(t *testing.T) {
		sql := topAreasSQL("/p/milan_buildings.geoparquet", 10)
		assert.Contains(t, sql, "'EPSG:32632'")
		assert.Contains(t, sql, "LIMIT 10")
		assert.Contains(t, sql, "ST_MakeValid")
	})

	t.Run("buffered area", func(t *testing.T) {
		sql := totalBufferedAreaSQL("/p/milan_buildings.geoparquet", 10)
		assert.Contains(t, sql, "ST_Buffer")
		assert.Contains(t, sql, ", 10)")
	})

	t.Run("restaurants away from bus stops", func(t *testing.T) {
		sql := restaurantsAwayFromBusStopsSQL("/p/r.geoparquet", "/p/b.geoparquet", 50)
		assert.Contains(t, sql, "NOT EXISTS")
		assert.Contains(t, sql, "ST_DWithin")
		assert.Contains(t, sql, "50)")
	})
}

func TestJoinSQL(t *testing.T) {
	t.Run("restaurants per neighborhood", func(t *testing.T) {
		sql := restaurantsPerNeighborhoodSQL("/p/n.geoparquet", "/p/r.geoparquet")
		assert.Contains(t, sql, "LEFT JOIN")
		assert.Contains(t, sql, "ST_Within")
		assert.Contains(t, sql, "GROUP BY n.feature_id")
	})

	t.Run("trees near streets near hospitals", func(t *testing.T) {
		sql := treesNearStreetsNearHospitalsSQL("/p/h.geoparquet", "/p/s.geoparquet", "/p/t.geoparquet")
		assert.Contains(t, sql, "100.0")
		assert.Contains(t, sql, "20.0")
		assert.Contains(t, sql, "ST_Length")
	})

	t.Run("area not covered by parks", func(t *testing.T) {
		sql := areaNotCoveredByParksSQL("/p/parks.geoparquet", "POLYGON((0 0, 1 0, 1 1, 0 1, 0 0))")
		assert.Contains(t, sql, "ST_Union_Agg")
		assert.Contains(t, sql, "ST_Difference")
	})
}

func TestExportParquetSQL(t *testing.T) {
	sql := exportParquetSQL("SELECT 1;", "/out/result.geoparquet")
	assert.Equal(t, "COPY (SELECT 1) TO '/out/result.geoparquet' (FORMAT PARQUET);", sql)
}
