package postgis

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/paulmach/orb/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/dimuzzo/geobench/pkg/geoparquet"
)

const sridWGS84 = 4326

// copyRows shapes features for the COPY protocol. Geometries go over
// the wire as EWKB with the SRID embedded, which the geometry column
// accepts directly without an ST_GeomFromWKB round trip.
func copyRows(features []geoparquet.Feature) ([][]any, error) {
	rows := make([][]any, 0, len(features))
	for _, f := range features {
		geom, err := ewkb.Marshal(f.Geometry, sridWGS84)
		if err != nil {
			return nil, fmt.Errorf("encoding feature %d: %w", f.ID, err)
		}
		props := f.Properties
		if props == nil {
			props = map[string]string{}
		}
		rows = append(rows, []any{f.ID, props, geom})
	}
	return rows, nil
}

// LoadFeatures (re)creates a table and bulk-loads the features with
// WGS84 geometries through CopyFrom. The query methods above expect
// tables shaped like this: feature_id, properties jsonb, geometry.
func (e *Engine) LoadFeatures(ctx context.Context, table string, features []geoparquet.Feature) error {
	ident := quoteIdent(table)

	ddl := fmt.Sprintf(`
DROP TABLE IF EXISTS %[1]s;
CREATE TABLE %[1]s (
    feature_id BIGINT PRIMARY KEY,
    properties JSONB,
    geometry   geometry(Geometry, %[2]d)
);`, ident, sridWGS84)
	if _, err := e.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("creating table %s: %w", table, err)
	}

	rows, err := copyRows(features)
	if err != nil {
		return err
	}
	copied, err := e.pool.CopyFrom(ctx,
		pgx.Identifier(strings.Split(table, ".")),
		[]string{"feature_id", "properties", "geometry"},
		pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copying into %s: %w", table, err)
	}

	if _, err := e.pool.Exec(ctx, fmt.Sprintf(
		`CREATE INDEX ON %s USING GIST (geometry);`, ident)); err != nil {
		return fmt.Errorf("indexing %s: %w", table, err)
	}

	e.logger.Info("loaded features into postgis",
		zap.String("table", table), zap.Int64("count", copied))
	return nil
}
