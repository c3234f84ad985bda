// Package postgis drives the PostGIS side of the benchmarks through a
// pgx connection pool. Ingestion into the database is a separate
// one-time step (cmd/loader); the queries here assume the
// planet_osm_polygon, comuni_istat and raster tables exist.
package postgis

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type Engine struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func New(ctx context.Context, dsn string, logger *zap.Logger) (*Engine, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgis: empty DSN")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgis: creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgis: ping: %w", err)
	}
	return &Engine{pool: pool, logger: logger}, nil
}

func (e *Engine) Close() {
	e.pool.Close()
}

// ExtractBuildings pulls building polygons intersecting the boundary
// from planet_osm_polygon. The table stores Web Mercator, so the WGS84
// boundary is transformed to 3857 inside the query.
func (e *Engine) ExtractBuildings(ctx context.Context, boundaryWKT string) (int, error) {
	rows, err := e.pool.Query(ctx, `
SELECT ST_AsBinary(way)
FROM planet_osm_polygon
WHERE building IS NOT NULL
  AND ST_Intersects(
      way,
      ST_Transform(ST_SetSRID(ST_GeomFromText($1), 4326), 3857)
  );`, boundaryWKT)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var wkb []byte
		if err := rows.Scan(&wkb); err != nil {
			return 0, err
		}
		count++
	}
	return count, rows.Err()
}

// FilterByRegion runs the plain attribute filter over the loaded
// municipality table.
func (e *Engine) FilterByRegion(ctx context.Context, regionCode int) (int, error) {
	rows, err := e.pool.Query(ctx,
		`SELECT * FROM comuni_istat WHERE cod_reg = $1;`, regionCode)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		count++
	}
	return count, rows.Err()
}

// TopAreas returns the N largest building footprints in square meters.
func (e *Engine) TopAreas(ctx context.Context, table string, limit int) ([]AreaRow, error) {
	rows, err := e.pool.Query(ctx, fmt.Sprintf(`
SELECT feature_id,
       ST_Area(ST_Transform(ST_MakeValid(geometry), 32632)) AS area_sqm
FROM %s
ORDER BY area_sqm DESC
LIMIT $1;`, quoteIdent(table)), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AreaRow
	for rows.Next() {
		var row AreaRow
		if err := rows.Scan(&row.FeatureID, &row.AreaSqm); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

type AreaRow struct {
	FeatureID int64
	AreaSqm   float64
}

// TotalBufferedArea sums the area of 10 m (or any) buffers around every
// geometry of the table.
func (e *Engine) TotalBufferedArea(ctx context.Context, table string, bufferMeters float64) (float64, error) {
	var total *float64
	err := e.pool.QueryRow(ctx, fmt.Sprintf(`
SELECT SUM(ST_Area(ST_Buffer(ST_Transform(ST_MakeValid(geometry), 32632), $1)))
FROM %s;`, quoteIdent(table)), bufferMeters).Scan(&total)
	if err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

// RestaurantsAwayFromBusStops counts restaurants with no bus stop
// within the given distance.
func (e *Engine) RestaurantsAwayFromBusStops(ctx context.Context, restaurants, busStops string, distanceMeters float64) (int, error) {
	var count int
	err := e.pool.QueryRow(ctx, fmt.Sprintf(`
SELECT COUNT(*)
FROM %s r
WHERE NOT EXISTS (
    SELECT 1
    FROM %s b
    WHERE ST_DWithin(
        ST_Transform(r.geometry, 32632),
        ST_Transform(b.geometry, 32632),
        $1)
);`, quoteIdent(restaurants), quoteIdent(busStops)), distanceMeters).Scan(&count)
	return count, err
}

type NeighborhoodRow struct {
	NeighborhoodID  int64
	RestaurantCount int64
	GeomWKB         []byte
}

// RestaurantsPerNeighborhood counts restaurants contained in each
// polygonal neighborhood.
func (e *Engine) RestaurantsPerNeighborhood(ctx context.Context, neighborhoods, restaurants string) ([]NeighborhoodRow, error) {
	rows, err := e.pool.Query(ctx, fmt.Sprintf(`
SELECT n.feature_id,
       COUNT(r.feature_id),
       ST_AsBinary(n.geometry)
FROM (SELECT *
      FROM %s
      WHERE GeometryType(geometry) IN ('POLYGON', 'MULTIPOLYGON')) n
         LEFT JOIN %s r ON ST_Within(r.geometry, n.geometry)
GROUP BY n.feature_id, n.geometry;`,
		quoteIdent(neighborhoods), quoteIdent(restaurants)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NeighborhoodRow
	for rows.Next() {
		var row NeighborhoodRow
		if err := rows.Scan(&row.NeighborhoodID, &row.RestaurantCount, &row.GeomWKB); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// TreesAndStreetsNearHospitals mirrors the CTE pipeline: residential
// streets within 100 m of a hospital, trees within 20 m of those
// streets, reporting tree count and summed street length.
func (e *Engine) TreesAndStreetsNearHospitals(ctx context.Context, hospitals, streets, trees string) (int64, float64, error) {
	var treeCount *int64
	var streetLength *float64
	err := e.pool.QueryRow(ctx, fmt.Sprintf(`
WITH streets_near_hospitals AS (
    SELECT DISTINCT s.feature_id, s.geometry
    FROM %s s, %s h
    WHERE ST_DWithin(
        ST_Transform(s.geometry, 32632),
        ST_Transform(h.geometry, 32632),
        100.0)),
     trees_near_streets AS (
    SELECT DISTINCT t.feature_id
    FROM %s t, streets_near_hospitals snh
    WHERE ST_DWithin(
        ST_Transform(t.geometry, 32632),
        ST_Transform(snh.geometry, 32632),
        20.0))
SELECT (SELECT COUNT(*) FROM trees_near_streets),
       (SELECT SUM(ST_Length(ST_Transform(geometry, 32632))) FROM streets_near_hospitals);`,
		quoteIdent(streets), quoteIdent(hospitals), quoteIdent(trees))).Scan(&treeCount, &streetLength)
	if err != nil {
		return 0, 0, err
	}
	var count int64
	if treeCount != nil {
		count = *treeCount
	}
	var length float64
	if streetLength != nil {
		length = *streetLength
	}
	return count, length, nil
}

// AreaNotCoveredByParks unions the park polygons and subtracts them
// from the city boundary, in square meters.
func (e *Engine) AreaNotCoveredByParks(ctx context.Context, parks, cityBoundaryWKT string) (float64, error) {
	var area *float64
	err := e.pool.QueryRow(ctx, fmt.Sprintf(`
WITH parks_area AS (
    SELECT ST_Union(geometry) AS geom
    FROM %s
    WHERE GeometryType(geometry) IN ('POLYGON', 'MULTIPOLYGON'))
SELECT ST_Area(
    ST_Difference(
        ST_Transform(ST_SetSRID(ST_GeomFromText($1), 4326), 32632),
        ST_Transform((SELECT geom FROM parks_area), 32632)
    )
);`, quoteIdent(parks)), cityBoundaryWKT).Scan(&area)
	if err != nil {
		return 0, err
	}
	if area == nil {
		return 0, nil
	}
	return *area, nil
}

type ZonalRow struct {
	Name       string
	Population float64
}

// PopulationPerMunicipality joins the municipality polygons with the
// population raster tiles, counting pixel values clipped to each
// polygon. ST_ValueCount avoids the -inf pixels ST_SummaryStats trips
// over in this dataset.
func (e *Engine) PopulationPerMunicipality(ctx context.Context, regionCode int) ([]ZonalRow, float64, error) {
	rows, err := e.pool.Query(ctx, `
SELECT c.comune,
       COALESCE(
           SUM(
               CASE
                   WHEN (pvc).value > 0 AND (pvc).value < 1e10
                   THEN (pvc).value * (pvc).count
                   ELSE 0
               END
           ), 0
       ) AS total_population
FROM vector_data.comuni_istat_clean c
CROSS JOIN LATERAL (
    SELECT ST_ValueCount(ST_Clip(p.rast, c.geometry, true)) AS pvc
    FROM raster_data.ghs_population p
    WHERE ST_Intersects(p.rast, c.geometry)
) subq
WHERE c.cod_reg = $1
  AND (pvc).value IS NOT NULL
GROUP BY c.comune;`, regionCode)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []ZonalRow
	var total float64
	for rows.Next() {
		var row ZonalRow
		if err := rows.Scan(&row.Name, &row.Population); err != nil {
			return nil, 0, err
		}
		total += row.Population
		out = append(out, row)
	}
	return out, total, rows.Err()
}

// ClipRaster clips the DEM raster tiles to the boundary and returns
// the number of exported GTiff blobs.
func (e *Engine) ClipRaster(ctx context.Context, boundaryWKT string) (int, error) {
	rows, err := e.pool.Query(ctx, `
SELECT ST_AsGDALRaster(
           ST_Clip(rast, ST_Transform(ST_SetSRID(ST_GeomFromText($1), 4326), ST_SRID(rast))),
           'GTiff')
FROM public.dem_table
WHERE ST_Intersects(rast, ST_Transform(ST_SetSRID(ST_GeomFromText($1), 4326), ST_SRID(rast)));`,
		boundaryWKT)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return 0, err
		}
		count++
	}
	return count, rows.Err()
}
