package duck

import (
	"fmt"
	"strings"
)

const metricCRS = "EPSG:32632"

// sqlPath embeds a file path into a SQL string literal. DuckDB takes
// forward slashes on every platform.
func sqlPath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	return strings.ReplaceAll(path, "'", "''")
}

func sqlText(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func ingestShapefileSQL(path string) string {
	return fmt.Sprintf(
		"CREATE OR REPLACE TABLE comuni AS SELECT * FROM ST_Read('%s');",
		sqlPath(path))
}

func filterByRegionSQL(regionCode int) string {
	return fmt.Sprintf(
		"SELECT * EXCLUDE (geom), ST_AsWKB(geom) AS geom_wkb FROM comuni WHERE COD_REG = %d;",
		regionCode)
}

// extractBuildingsSQL counts building ways with at least one node
// inside the boundary. ST_ReadOSM exposes raw elements, so the way
// geometry is approximated by its member nodes; relation assembly is
// out of reach in SQL.
func extractBuildingsSQL(pbfPath, boundaryWKT string) string {
	return fmt.Sprintf(`
WITH nodes AS (
    SELECT id, ST_Point(lon, lat) AS geom
    FROM ST_ReadOSM('%[1]s')
    WHERE kind = 'node'
),
building_way_nodes AS (
    SELECT id, UNNEST(refs) AS ref
    FROM ST_ReadOSM('%[1]s')
    WHERE kind = 'way' AND len(map_extract(tags, 'building')) > 0
)
SELECT COUNT(DISTINCT w.id)
FROM building_way_nodes w
JOIN nodes n ON n.id = w.ref
WHERE ST_Intersects(n.geom, ST_GeomFromText('%[2]s'));`,
		sqlPath(pbfPath), sqlText(boundaryWKT))
}

func topAreasSQL(buildingsFile string, limit int) string {
	return fmt.Sprintf(`
SELECT feature_id,
       ST_Area(ST_Transform(ST_MakeValid(ST_GeomFromWKB(geometry)), 'EPSG:4326', '%s')) AS area_sqm
FROM read_parquet('%s')
ORDER BY area_sqm DESC
LIMIT %d;`,
		metricCRS, sqlPath(buildingsFile), limit)
}

func totalBufferedAreaSQL(buildingsFile string, bufferMeters float64) string {
	return fmt.Sprintf(`
SELECT SUM(ST_Area(ST_Buffer(ST_Transform(ST_MakeValid(ST_GeomFromWKB(geometry)), 'EPSG:4326', '%s'), %g))) AS total_buffered_area
FROM read_parquet('%s');`,
		metricCRS, bufferMeters, sqlPath(buildingsFile))
}

func restaurantsAwayFromBusStopsSQL(restaurantsFile, busStopsFile string, distanceMeters float64) string {
	return fmt.Sprintf(`
SELECT r.feature_id, ST_AsWKB(ST_GeomFromWKB(r.geometry)) AS geom_wkb
FROM read_parquet('%s') AS r
WHERE NOT EXISTS (
    SELECT 1
    FROM read_parquet('%s') AS b
    WHERE ST_DWithin(
        ST_Transform(ST_GeomFromWKB(r.geometry), 'EPSG:4326', '%s'),
        ST_Transform(ST_GeomFromWKB(b.geometry), 'EPSG:4326', '%s'),
        %g)
);`,
		sqlPath(restaurantsFile), sqlPath(busStopsFile), metricCRS, metricCRS, distanceMeters)
}

func restaurantsPerNeighborhoodSQL(neighborhoodsFile, restaurantsFile string) string {
	return fmt.Sprintf(`
SELECT n.feature_id        AS neighborhood_id,
       COUNT(r.feature_id) AS restaurant_count,
       ST_AsWKB(ST_GeomFromWKB(n.geometry)) AS geom_wkb
FROM (SELECT *
      FROM read_parquet('%s')
      WHERE ST_GeometryType(ST_GeomFromWKB(geometry)) IN ('POLYGON', 'MULTIPOLYGON')) AS n
         LEFT JOIN read_parquet('%s') AS r
                   ON ST_Within(ST_GeomFromWKB(r.geometry), ST_GeomFromWKB(n.geometry))
GROUP BY n.feature_id, n.geometry;`,
		sqlPath(neighborhoodsFile), sqlPath(restaurantsFile))
}

func treesNearStreetsNearHospitalsSQL(hospitalsFile, streetsFile, treesFile string) string {
	return fmt.Sprintf(`
WITH streets_near_hospitals AS (
    SELECT DISTINCT s.feature_id, s.geometry
    FROM read_parquet('%[2]s') AS s,
         read_parquet('%[1]s') AS h
    WHERE ST_DWithin(
        ST_Transform(ST_GeomFromWKB(s.geometry), 'EPSG:4326', '%[4]s'),
        ST_Transform(ST_GeomFromWKB(h.geometry), 'EPSG:4326', '%[4]s'),
        100.0)),
     trees_near_streets AS (
    SELECT DISTINCT t.feature_id
    FROM read_parquet('%[3]s') AS t,
         streets_near_hospitals AS snh
    WHERE ST_DWithin(
        ST_Transform(ST_GeomFromWKB(t.geometry), 'EPSG:4326', '%[4]s'),
        ST_Transform(ST_GeomFromWKB(snh.geometry), 'EPSG:4326', '%[4]s'),
        20.0))
SELECT (SELECT COUNT(*) FROM trees_near_streets) AS total_tree_count,
       (SELECT SUM(ST_Length(ST_Transform(ST_GeomFromWKB(geometry), 'EPSG:4326', '%[4]s')))
        FROM streets_near_hospitals) AS total_street_length_m;`,
		sqlPath(hospitalsFile), sqlPath(streetsFile), sqlPath(treesFile), metricCRS)
}

func areaNotCoveredByParksSQL(parksFile, cityBoundaryWKT string) string {
	return fmt.Sprintf(`
WITH parks_area AS (
    SELECT ST_Union_Agg(ST_GeomFromWKB(geometry)) AS geom
    FROM read_parquet('%s')
    WHERE ST_GeometryType(ST_GeomFromWKB(geometry)) IN ('POLYGON', 'MULTIPOLYGON'))
SELECT ST_Area(
           ST_Difference(
               ST_Transform(ST_GeomFromText('%s'), 'EPSG:4326', '%s'),
               ST_Transform((SELECT geom FROM parks_area), 'EPSG:4326', '%s')
           )
       ) AS non_park_area_sqm;`,
		sqlPath(parksFile), sqlText(cityBoundaryWKT), metricCRS, metricCRS)
}

func exportParquetSQL(query, outPath string) string {
	query = strings.TrimSuffix(strings.TrimSpace(query), ";")
	return fmt.Sprintf("COPY (%s) TO '%s' (FORMAT PARQUET);", query, sqlPath(outPath))
}
