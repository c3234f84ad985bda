package vector

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/twpayne/go-geos"
)

// NeighborhoodRow is a polygonal zone with its contained point count.
type NeighborhoodRow struct {
	FeatureID int64
	Count     int64
}

func isPolygonal(g orb.Geometry) bool {
	switch g.(type) {
	case orb.Polygon, orb.MultiPolygon:
		return true
	}
	return false
}

// CountPointsPerZone counts the points contained in each polygonal
// zone. Non-polygonal zone features are skipped, matching how place
// tags often land on nodes.
func CountPointsPerZone(zones, points *Dataset) ([]NeighborhoodRow, error) {
	c := geos.NewContext()

	pts := make([]*geos.Geom, 0, points.Len())
	bounds := make([]orb.Bound, 0, points.Len())
	for _, f := range points.Features {
		g, err := toGeos(c, f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("point %d: %w", f.ID, err)
		}
		pts = append(pts, g)
		bounds = append(bounds, f.Geometry.Bound())
	}

	var out []NeighborhoodRow
	for _, zf := range zones.Features {
		if !isPolygonal(zf.Geometry) {
			continue
		}
		zg, err := toGeos(c, zf.Geometry)
		if err != nil {
			return nil, fmt.Errorf("zone %d: %w", zf.ID, err)
		}
		// one zone is tested against every point, prepare it once
		zg.Prepare()
		zb := zf.Geometry.Bound()

		row := NeighborhoodRow{FeatureID: zf.ID}
		for i, pg := range pts {
			if !zb.Intersects(bounds[i]) {
				continue
			}
			if zg.Contains(pg) {
				row.Count++
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// ProximityChain finds streets within streetDist meters of any
// hospital, then trees within treeDist meters of any such street. It
// reports the tree count and the summed street length in meters.
func ProximityChain(hospitals, streets, trees *Dataset, streetDist, treeDist float64) (int64, float64, error) {
	c := geos.NewContext()

	hg := make([]*geos.Geom, 0, hospitals.Len())
	for _, f := range hospitals.Features {
		g, err := utmGeos(c, f.Geometry)
		if err != nil {
			return 0, 0, fmt.Errorf("hospital %d: %w", f.ID, err)
		}
		hg = append(hg, g)
	}

	var nearStreets []*geos.Geom
	var totalLength float64
	for _, f := range streets.Features {
		sg, err := utmGeos(c, f.Geometry)
		if err != nil {
			return 0, 0, fmt.Errorf("street %d: %w", f.ID, err)
		}
		for _, h := range hg {
			if sg.Distance(h) <= streetDist {
				nearStreets = append(nearStreets, sg)
				totalLength += sg.Length()
				break
			}
		}
	}

	var treeCount int64
	for _, f := range trees.Features {
		tg, err := utmGeos(c, f.Geometry)
		if err != nil {
			return 0, 0, fmt.Errorf("tree %d: %w", f.ID, err)
		}
		for _, sg := range nearStreets {
			if tg.Distance(sg) <= treeDist {
				treeCount++
				break
			}
		}
	}
	return treeCount, totalLength, nil
}

// AreaNotCoveredByParks unions the polygonal park features and
// subtracts them from the boundary, returning square meters.
func AreaNotCoveredByParks(parks *Dataset, boundary orb.Geometry) (float64, error) {
	c := geos.NewContext()

	bg, err := utmGeos(c, boundary)
	if err != nil {
		return 0, fmt.Errorf("boundary: %w", err)
	}

	var union *geos.Geom
	for _, f := range parks.Features {
		if !isPolygonal(f.Geometry) {
			continue
		}
		pg, err := utmGeos(c, f.Geometry)
		if err != nil {
			return 0, fmt.Errorf("park %d: %w", f.ID, err)
		}
		if !pg.IsValid() {
			pg = pg.MakeValid()
		}
		if union == nil {
			union = pg
		} else {
			union = union.Union(pg)
		}
	}
	if union == nil {
		return bg.Area(), nil
	}
	return bg.Difference(union).Area(), nil
}
