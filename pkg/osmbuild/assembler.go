package osmbuild

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"

	"github.com/dimuzzo/geobench/pkg/geo"
)

// minRingPoints is the smallest closed ring worth keeping: triangle
// plus the repeated closing point.
const minRingPoints = 4

// Building is one reconstructed footprint, a Polygon or MultiPolygon
// with the tags of the way or relation it came from.
type Building struct {
	ID       int64
	Geometry orb.Geometry
	Tags     map[string]string
}

type cachedWay struct {
	nodeIDs []osm.NodeID
	tags    map[string]string
}

type relationMember struct {
	wayID osm.WayID
	role  string
}

type cachedRelation struct {
	id      osm.RelationID
	members []relationMember
	tags    map[string]string
}

// Assembler is the second pass: it caches the node locations, ways and
// building relations the collector flagged, then assembles geometries.
type Assembler struct {
	requiredWays  map[osm.WayID]struct{}
	requiredNodes map[osm.NodeID]struct{}

	nodes     map[osm.NodeID]orb.Point
	ways      map[osm.WayID]cachedWay
	relations []cachedRelation
}

func NewAssembler(c *Collector) *Assembler {
	return &Assembler{
		requiredWays:  c.RequiredWays,
		requiredNodes: c.RequiredNodes,
		nodes:         make(map[osm.NodeID]orb.Point),
		ways:          make(map[osm.WayID]cachedWay),
	}
}

// Scan fills the node/way/relation caches from the PBF.
func (a *Assembler) Scan(ctx context.Context, mapfile string) error {
	f, err := os.Open(mapfile)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := osmpbf.New(ctx, f, pbfProcs)
	defer scanner.Close()

	for scanner.Scan() {
		o := scanner.Object()
		switch o.ObjectID().Type() {
		case osm.TypeNode:
			node := o.(*osm.Node)
			if _, ok := a.requiredNodes[node.ID]; ok {
				a.nodes[node.ID] = orb.Point{node.Lon, node.Lat}
			}
		case osm.TypeWay:
			way := o.(*osm.Way)
			if _, ok := a.requiredWays[way.ID]; !ok {
				continue
			}
			nodeIDs := make([]osm.NodeID, 0, len(way.Nodes))
			for _, wn := range way.Nodes {
				nodeIDs = append(nodeIDs, wn.ID)
			}
			a.ways[way.ID] = cachedWay{nodeIDs: nodeIDs, tags: way.TagMap()}
		case osm.TypeRelation:
			rel := o.(*osm.Relation)
			if !isBuildingRelation(rel.Tags) {
				continue
			}
			members := make([]relationMember, 0, len(rel.Members))
			for _, m := range rel.Members {
				if m.Type == osm.TypeWay {
					members = append(members, relationMember{
						wayID: osm.WayID(m.Ref),
						role:  m.Role,
					})
				}
			}
			a.relations = append(a.relations, cachedRelation{
				id:      rel.ID,
				members: members,
				tags:    rel.TagMap(),
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("caching building elements: %w", err)
	}
	return nil
}

func (a *Assembler) wayRing(wayID osm.WayID) (orb.Ring, bool) {
	way, ok := a.ways[wayID]
	if !ok {
		return nil, false
	}
	points := make([]orb.Point, 0, len(way.nodeIDs))
	for _, nodeID := range way.nodeIDs {
		if p, ok := a.nodes[nodeID]; ok {
			points = append(points, p)
		}
	}
	ring, ok := geo.RingFromPoints(points)
	if !ok || len(ring) < minRingPoints {
		return nil, false
	}
	return ring, true
}

// Buildings assembles the cached elements. Relations first: members are
// partitioned into outer and inner rings by role; one outer ring gives
// a polygon with holes, several give a multipolygon. Ways consumed by a
// relation are not emitted again as standalone buildings.
func (a *Assembler) Buildings() []Building {
	usedWays := make(map[osm.WayID]struct{})
	buildings := make([]Building, 0, len(a.ways))

	for _, rel := range a.relations {
		var outer, inner []orb.Ring
		for _, m := range rel.members {
			ring, ok := a.wayRing(m.wayID)
			if !ok {
				continue
			}
			usedWays[m.wayID] = struct{}{}
			if m.role == "outer" {
				outer = append(outer, ring)
			} else {
				inner = append(inner, ring)
			}
		}
		if len(outer) == 0 {
			continue
		}

		var geom orb.Geometry
		if len(outer) == 1 {
			poly := orb.Polygon{outer[0]}
			poly = append(poly, inner...)
			geom = poly
		} else {
			// with several shells the data does not say which one an
			// inner ring belongs to; the shells are emitted alone
			mp := make(orb.MultiPolygon, 0, len(outer))
			for _, ring := range outer {
				mp = append(mp, orb.Polygon{ring})
			}
			geom = mp
		}
		buildings = append(buildings, Building{
			ID:       int64(rel.id),
			Geometry: geom,
			Tags:     rel.tags,
		})
	}

	wayIDs := make([]osm.WayID, 0, len(a.ways))
	for wayID := range a.ways {
		wayIDs = append(wayIDs, wayID)
	}
	sort.Slice(wayIDs, func(i, j int) bool { return wayIDs[i] < wayIDs[j] })

	for _, wayID := range wayIDs {
		way := a.ways[wayID]
		if way.tags["building"] == "" {
			continue
		}
		if _, used := usedWays[wayID]; used {
			continue
		}
		ring, ok := a.wayRing(wayID)
		if !ok {
			continue
		}
		buildings = append(buildings, Building{
			ID:       int64(wayID),
			Geometry: orb.Polygon{ring},
			Tags:     way.tags,
		})
	}
	return buildings
}

// FilterByBoundary keeps the buildings intersecting the boundary
// geometry, the same post-filter the ingestion benchmark times. The
// test is exact: the bbox check only prunes, GEOS decides.
func FilterByBoundary(buildings []Building, boundary orb.Geometry) ([]Building, error) {
	if boundary == nil {
		return buildings, nil
	}
	clip, err := newBoundaryClip(boundary)
	if err != nil {
		return nil, err
	}
	filtered := make([]Building, 0, len(buildings))
	for _, b := range buildings {
		hit, err := clip.intersects(b.Geometry)
		if err != nil {
			return nil, fmt.Errorf("building %d: %w", b.ID, err)
		}
		if hit {
			filtered = append(filtered, b)
		}
	}
	return filtered, nil
}
