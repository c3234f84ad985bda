// Package duck wraps an in-memory DuckDB instance with the spatial
// extension loaded, covering the DuckDB Spatial side of every use
// case: ST_Read ingestion, attribute filters, ST_ReadOSM extraction
// and the analysis/join SQL over GeoParquet inputs.
package duck

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/duckdb/duckdb-go/v2"
	"go.uber.org/zap"
)

type Engine struct {
	db     *sql.DB
	logger *zap.Logger
}

func New(logger *zap.Logger) (*Engine, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("opening duckdb: %w", err)
	}
	if _, err := db.Exec("INSTALL spatial; LOAD spatial;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("loading spatial extension: %w", err)
	}
	return &Engine{db: db, logger: logger}, nil
}

func (e *Engine) Close() error {
	return e.db.Close()
}

// IngestShapefile reads the shapefile into the comuni table and
// returns the feature count.
func (e *Engine) IngestShapefile(ctx context.Context, path string) (int, error) {
	if _, err := e.db.ExecContext(ctx, ingestShapefileSQL(path)); err != nil {
		return 0, fmt.Errorf("ST_Read ingestion: %w", err)
	}
	var count int
	if err := e.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM comuni;").Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// Row is one generically scanned result row: column values as strings
// plus the WKB geometry when the query exposes a geom_wkb column.
type Row struct {
	Values  map[string]string
	GeomWKB []byte
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []Row
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := Row{Values: make(map[string]string, len(cols))}
		for i, col := range cols {
			if col == "geom_wkb" {
				if b, ok := raw[i].([]byte); ok {
					row.GeomWKB = b
				}
				continue
			}
			if raw[i] == nil {
				continue
			}
			row.Values[col] = fmt.Sprint(raw[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (e *Engine) query(ctx context.Context, sqlText string) ([]Row, error) {
	rows, err := e.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

// FilterByRegion filters the ingested comuni table by region code and
// returns the matching rows with their WKB geometries.
func (e *Engine) FilterByRegion(ctx context.Context, regionCode int) ([]Row, error) {
	return e.query(ctx, filterByRegionSQL(regionCode))
}

// CountBuildings counts building ways with a node inside the boundary,
// straight from the PBF via ST_ReadOSM.
func (e *Engine) CountBuildings(ctx context.Context, pbfPath, boundaryWKT string) (int, error) {
	var count int
	err := e.db.QueryRowContext(ctx, extractBuildingsSQL(pbfPath, boundaryWKT)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ST_ReadOSM extraction: %w", err)
	}
	return count, nil
}

func (e *Engine) TopAreas(ctx context.Context, buildingsFile string, limit int) ([]Row, error) {
	return e.query(ctx, topAreasSQL(buildingsFile, limit))
}

func (e *Engine) TotalBufferedArea(ctx context.Context, buildingsFile string, bufferMeters float64) (float64, error) {
	var total sql.NullFloat64
	err := e.db.QueryRowContext(ctx, totalBufferedAreaSQL(buildingsFile, bufferMeters)).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total.Float64, nil
}

func (e *Engine) RestaurantsAwayFromBusStops(ctx context.Context, restaurantsFile, busStopsFile string, distanceMeters float64) ([]Row, error) {
	return e.query(ctx, restaurantsAwayFromBusStopsSQL(restaurantsFile, busStopsFile, distanceMeters))
}

func (e *Engine) RestaurantsPerNeighborhood(ctx context.Context, neighborhoodsFile, restaurantsFile string) ([]Row, error) {
	return e.query(ctx, restaurantsPerNeighborhoodSQL(neighborhoodsFile, restaurantsFile))
}

// TreesAndStreetsNearHospitals returns the tree count and the summed
// residential street length near hospitals, in meters.
func (e *Engine) TreesAndStreetsNearHospitals(ctx context.Context, hospitalsFile, streetsFile, treesFile string) (int64, float64, error) {
	var trees sql.NullInt64
	var length sql.NullFloat64
	err := e.db.QueryRowContext(ctx,
		treesNearStreetsNearHospitalsSQL(hospitalsFile, streetsFile, treesFile)).Scan(&trees, &length)
	if err != nil {
		return 0, 0, err
	}
	return trees.Int64, length.Float64, nil
}

func (e *Engine) AreaNotCoveredByParks(ctx context.Context, parksFile, cityBoundaryWKT string) (float64, error) {
	var area sql.NullFloat64
	err := e.db.QueryRowContext(ctx, areaNotCoveredByParksSQL(parksFile, cityBoundaryWKT)).Scan(&area)
	if err != nil {
		return 0, err
	}
	return area.Float64, nil
}

// ExportFilteredRegion writes the region filter result as Parquet so
// the artifact size can be recorded.
func (e *Engine) ExportFilteredRegion(ctx context.Context, regionCode int, outPath string) error {
	_, err := e.db.ExecContext(ctx, exportParquetSQL(filterByRegionSQL(regionCode), outPath))
	if err != nil {
		return fmt.Errorf("parquet export: %w", err)
	}
	return nil
}
