package geo

import (
	"github.com/paulmach/orb"
)

// CloseRing appends the first point when the ring is not closed yet.
// OSM ways that form polygon rings are usually closed already, but
// relation members assembled from several ways may not be.
func CloseRing(ring orb.Ring) orb.Ring {
	if len(ring) < 3 {
		return ring
	}
	if ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	return ring
}

// RingFromPoints builds a closed ring, returning false when fewer than
// four points remain after closing. Mirrors the minimum ring length the
// building assembler enforces.
func RingFromPoints(points []orb.Point) (orb.Ring, bool) {
	if len(points) < 3 {
		return nil, false
	}
	ring := CloseRing(orb.Ring(points))
	if len(ring) < 4 {
		return nil, false
	}
	return ring, true
}

func crossProduct(h, t, q orb.Point) float64 {
	return (t[0]-h[0])*(q[1]-h[1]) - (q[0]-h[0])*(t[1]-h[1])
}

func onSegment(p, a, b orb.Point) bool {
	return p[0] >= min(a[0], b[0]) && p[0] <= max(a[0], b[0]) &&
		p[1] >= min(a[1], b[1]) && p[1] <= max(a[1], b[1])
}

func windingNumber(p orb.Point, ring orb.Ring) int {
	wn := 0
	for i := 0; i < len(ring)-1; i++ {
		if onSegment(p, ring[i], ring[i+1]) &&
			crossProduct(ring[i], ring[i+1], p) == 0 {
			return 1
		}
		if ring[i][1] <= p[1] {
			if ring[i+1][1] > p[1] && crossProduct(ring[i], ring[i+1], p) > 0 {
				wn++
			}
		} else if ring[i+1][1] <= p[1] && crossProduct(ring[i], ring[i+1], p) < 0 {
			wn--
		}
	}
	return wn
}

// PointInRing reports whether p lies inside (or on) the closed ring,
// using the winding number so non-convex municipality boundaries work.
func PointInRing(p orb.Point, ring orb.Ring) bool {
	if len(ring) < 4 {
		return false
	}
	return windingNumber(p, ring) != 0
}

// PointInPolygon tests the outer ring and subtracts the holes.
func PointInPolygon(p orb.Point, poly orb.Polygon) bool {
	if len(poly) == 0 || !PointInRing(p, poly[0]) {
		return false
	}
	for _, hole := range poly[1:] {
		if PointInRing(p, hole) {
			return false
		}
	}
	return true
}

// PointInGeometry accepts the polygonal geometries a geocoded boundary
// can be.
func PointInGeometry(p orb.Point, g orb.Geometry) bool {
	switch geom := g.(type) {
	case orb.Polygon:
		return PointInPolygon(p, geom)
	case orb.MultiPolygon:
		for _, poly := range geom {
			if PointInPolygon(p, poly) {
				return true
			}
		}
	}
	return false
}
