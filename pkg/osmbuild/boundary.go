package osmbuild

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/twpayne/go-geos"
)

// boundaryClip wraps the geocoded city polygon for intersection tests:
// an orb bounding-box prefilter in front of a prepared GEOS geometry,
// so features straddling the boundary count even when none of their
// vertices fall inside it.
type boundaryClip struct {
	bound orb.Bound
	gctx  *geos.Context
	geom  *geos.Geom
}

// newBoundaryClip builds the clip; the GEOS context it holds is not
// goroutine-safe, callers stay single-threaded.
func newBoundaryClip(boundary orb.Geometry) (*boundaryClip, error) {
	raw, err := wkb.Marshal(boundary)
	if err != nil {
		return nil, fmt.Errorf("encoding boundary: %w", err)
	}
	gctx := geos.NewContext()
	g, err := gctx.NewGeomFromWKB(raw)
	if err != nil {
		return nil, fmt.Errorf("boundary: %w", err)
	}
	g.Prepare()
	return &boundaryClip{bound: boundary.Bound(), gctx: gctx, geom: g}, nil
}

func (bc *boundaryClip) intersects(g orb.Geometry) (bool, error) {
	if g == nil || !bc.bound.Intersects(g.Bound()) {
		return false, nil
	}
	raw, err := wkb.Marshal(g)
	if err != nil {
		return false, fmt.Errorf("encoding feature: %w", err)
	}
	gg, err := bc.gctx.NewGeomFromWKB(raw)
	if err != nil {
		return false, err
	}
	return bc.geom.Intersects(gg), nil
}
