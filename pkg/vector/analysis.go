package vector

import (
	"context"
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/quadtree"
	"github.com/twpayne/go-geos"

	"github.com/dimuzzo/geobench/pkg/concurrent"
	"github.com/dimuzzo/geobench/pkg/geo"
	"github.com/dimuzzo/geobench/pkg/geoparquet"
)

const bufferQuadSegs = 8

// AreaRow pairs a feature with its footprint area in square meters.
type AreaRow struct {
	FeatureID int64
	AreaSqm   float64
}

// TopAreas returns the limit largest features by valid footprint area.
func TopAreas(d *Dataset, limit int) ([]AreaRow, error) {
	c := geos.NewContext()
	rows := make([]AreaRow, 0, d.Len())
	for _, f := range d.Features {
		g, err := utmGeos(c, f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", f.ID, err)
		}
		if !g.IsValid() {
			g = g.MakeValid()
		}
		rows = append(rows, AreaRow{FeatureID: f.ID, AreaSqm: g.Area()})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].AreaSqm > rows[j].AreaSqm })
	if limit < len(rows) {
		rows = rows[:limit]
	}
	return rows, nil
}

// TotalBufferedArea sums the areas of fixed-width buffers around every
// feature, fanning the buffer work out over the pool.
func TotalBufferedArea(ctx context.Context, d *Dataset, bufferMeters float64, workers int) (float64, error) {
	pool := concurrent.NewWorkerPool[geoparquet.Feature, float64](workers,
		func(ctx context.Context, f geoparquet.Feature) (float64, error) {
			c := geos.NewContext()
			g, err := utmGeos(c, f.Geometry)
			if err != nil {
				return 0, fmt.Errorf("feature %d: %w", f.ID, err)
			}
			if !g.IsValid() {
				g = g.MakeValid()
			}
			return g.Buffer(bufferMeters, bufferQuadSegs).Area(), nil
		})

	areas, err := pool.Process(ctx, d.Features)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, a := range areas {
		total += a
	}
	return total, nil
}

type qtPoint struct {
	pt orb.Point
}

func (q qtPoint) Point() orb.Point { return q.pt }

// RestaurantsAwayFromBusStops counts restaurant points with no bus
// stop within distanceMeters, using a quadtree over the projected bus
// stops so each restaurant only checks its nearest one.
func RestaurantsAwayFromBusStops(restaurants, busStops *Dataset, distanceMeters float64) (int, error) {
	if busStops.Len() == 0 {
		return restaurants.Len(), nil
	}

	bound := orb.Bound{Min: orb.Point{1e18, 1e18}, Max: orb.Point{-1e18, -1e18}}
	stops := make([]orb.Point, 0, busStops.Len())
	for _, f := range busStops.Features {
		pt, ok := geo.ProjectToUTM32N(f.Geometry).(orb.Point)
		if !ok {
			continue
		}
		stops = append(stops, pt)
		bound = bound.Extend(pt)
	}
	qt := quadtree.New(bound.Pad(1))
	for _, pt := range stops {
		if err := qt.Add(qtPoint{pt}); err != nil {
			return 0, err
		}
	}

	count := 0
	for _, f := range restaurants.Features {
		pt, ok := geo.ProjectToUTM32N(f.Geometry).(orb.Point)
		if !ok {
			continue
		}
		nearest := qt.Find(pt)
		if nearest == nil || geo.DistanceUTM(pt, nearest.Point()) > distanceMeters {
			count++
		}
	}
	return count, nil
}
