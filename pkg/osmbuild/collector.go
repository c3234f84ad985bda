// Package osmbuild reconstructs building geometries from an OSM PBF
// extract in two passes over the file: the first pass collects the IDs
// of every way and node a building references, the second caches only
// those elements and assembles polygons and multipolygons (with holes)
// from them. Keeping an ID set between the passes bounds memory by the
// building footprint of the extract instead of its full node count.
package osmbuild

import (
	"context"
	"fmt"
	"os"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
)

const pbfProcs = 1

// Collector is the first pass: it records which ways belong to a
// building (tagged ways plus members of building multipolygon
// relations) and which nodes those ways reference.
type Collector struct {
	RequiredWays  map[osm.WayID]struct{}
	RequiredNodes map[osm.NodeID]struct{}
}

func NewCollector() *Collector {
	return &Collector{
		RequiredWays:  make(map[osm.WayID]struct{}),
		RequiredNodes: make(map[osm.NodeID]struct{}),
	}
}

func isBuildingRelation(tags osm.Tags) bool {
	return tags.Find("type") == "multipolygon" && tags.Find("building") != ""
}

// CollectIDs scans the PBF twice: once for building ways and relation
// members, once for the node IDs of the required ways. Two scans are
// needed because relations can appear after the ways they reference.
func (c *Collector) CollectIDs(ctx context.Context, mapfile string) error {
	f, err := os.Open(mapfile)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := osmpbf.New(ctx, f, pbfProcs)
	for scanner.Scan() {
		o := scanner.Object()
		switch o.ObjectID().Type() {
		case osm.TypeWay:
			way := o.(*osm.Way)
			if way.Tags.Find("building") != "" {
				c.RequiredWays[way.ID] = struct{}{}
			}
		case osm.TypeRelation:
			rel := o.(*osm.Relation)
			if !isBuildingRelation(rel.Tags) {
				continue
			}
			for _, m := range rel.Members {
				if m.Type == osm.TypeWay {
					c.RequiredWays[osm.WayID(m.Ref)] = struct{}{}
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return fmt.Errorf("collecting way ids: %w", err)
	}
	scanner.Close()

	fNodes, err := os.Open(mapfile)
	if err != nil {
		return err
	}
	defer fNodes.Close()

	nodeScanner := osmpbf.New(ctx, fNodes, pbfProcs)
	defer nodeScanner.Close()
	for nodeScanner.Scan() {
		o := nodeScanner.Object()
		if o.ObjectID().Type() != osm.TypeWay {
			continue
		}
		way := o.(*osm.Way)
		if _, ok := c.RequiredWays[way.ID]; !ok {
			continue
		}
		for _, wn := range way.Nodes {
			c.RequiredNodes[wn.ID] = struct{}{}
		}
	}
	if err := nodeScanner.Err(); err != nil {
		return fmt.Errorf("collecting node ids: %w", err)
	}
	return nil
}
