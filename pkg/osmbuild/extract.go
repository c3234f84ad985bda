package osmbuild

import (
	"context"
	"fmt"
	"os"

	"github.com/k0kubun/go-ansi"
	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/schollz/progressbar/v3"

	"github.com/dimuzzo/geobench/pkg/geo"
)

// GeometryKind says what geometry a feature class is extracted as.
type GeometryKind int

const (
	KindPoint GeometryKind = iota
	KindLine
	KindPolygon
)

// FeatureClass selects OSM elements by tag for the analysis datasets.
type FeatureClass struct {
	Name string
	Kind GeometryKind
	Key  string
	// Values restricts the tag to these values; empty means any value.
	Values []string
}

func (fc FeatureClass) matches(tags map[string]string) bool {
	v, ok := tags[fc.Key]
	if !ok || v == "" {
		return false
	}
	if len(fc.Values) == 0 {
		return true
	}
	for _, want := range fc.Values {
		if v == want {
			return true
		}
	}
	return false
}

// The dataset classes the single-table and join use cases consume.
var (
	Restaurants        = FeatureClass{Name: "restaurants", Kind: KindPoint, Key: "amenity", Values: []string{"restaurant"}}
	BusStops           = FeatureClass{Name: "bus_stops", Kind: KindPoint, Key: "highway", Values: []string{"bus_stop"}}
	Trees              = FeatureClass{Name: "trees", Kind: KindPoint, Key: "natural", Values: []string{"tree"}}
	Hospitals          = FeatureClass{Name: "hospitals", Kind: KindPoint, Key: "amenity", Values: []string{"hospital"}}
	Parks              = FeatureClass{Name: "parks", Kind: KindPolygon, Key: "leisure", Values: []string{"park"}}
	ResidentialStreets = FeatureClass{Name: "residential_streets", Kind: KindLine, Key: "highway", Values: []string{"residential"}}
	Neighborhoods      = FeatureClass{Name: "neighborhoods", Kind: KindPolygon, Key: "place", Values: []string{"suburb", "neighbourhood", "quarter"}}
)

// Feature is one extracted element.
type Feature struct {
	ID       int64
	Geometry orb.Geometry
	Tags     map[string]string
}

// Extract pulls all requested feature classes out of the PBF in one
// way pass, one node pass and a final assembly, keeping only features
// intersecting the boundary (nil boundary keeps everything).
func Extract(ctx context.Context, mapfile string, boundary orb.Geometry, classes ...FeatureClass) (map[string][]Feature, error) {
	type taggedWay struct {
		id      osm.WayID
		class   int
		nodeIDs []osm.NodeID
		tags    map[string]string
	}

	bar := newPassBar(3, fmt.Sprintf("Extracting %d feature classes", len(classes)))

	// pass 1: ways matching a line/polygon class
	var ways []taggedWay
	neededNodes := make(map[osm.NodeID]struct{})

	fWays, err := os.Open(mapfile)
	if err != nil {
		return nil, err
	}
	wayScanner := osmpbf.New(ctx, fWays, pbfProcs)
	for wayScanner.Scan() {
		o := wayScanner.Object()
		if o.ObjectID().Type() != osm.TypeWay {
			continue
		}
		way := o.(*osm.Way)
		tags := way.TagMap()
		for ci, fc := range classes {
			if fc.Kind == KindPoint || !fc.matches(tags) {
				continue
			}
			nodeIDs := make([]osm.NodeID, 0, len(way.Nodes))
			for _, wn := range way.Nodes {
				neededNodes[wn.ID] = struct{}{}
				nodeIDs = append(nodeIDs, wn.ID)
			}
			ways = append(ways, taggedWay{id: way.ID, class: ci, nodeIDs: nodeIDs, tags: tags})
			break
		}
	}
	scanErr := wayScanner.Err()
	wayScanner.Close()
	fWays.Close()
	if scanErr != nil {
		return nil, fmt.Errorf("scanning ways: %w", scanErr)
	}
	bar.Add(1)

	// pass 2: node locations, plus point-class nodes
	nodeLocs := make(map[osm.NodeID]orb.Point, len(neededNodes))
	results := make(map[string][]Feature, len(classes))

	fNodes, err := os.Open(mapfile)
	if err != nil {
		return nil, err
	}
	nodeScanner := osmpbf.New(ctx, fNodes, pbfProcs)
	for nodeScanner.Scan() {
		o := nodeScanner.Object()
		if o.ObjectID().Type() != osm.TypeNode {
			continue
		}
		node := o.(*osm.Node)
		if _, ok := neededNodes[node.ID]; ok {
			nodeLocs[node.ID] = orb.Point{node.Lon, node.Lat}
		}
		tags := node.TagMap()
		if len(tags) == 0 {
			continue
		}
		for _, fc := range classes {
			if fc.Kind != KindPoint || !fc.matches(tags) {
				continue
			}
			p := orb.Point{node.Lon, node.Lat}
			if boundary != nil && !geo.PointInGeometry(p, boundary) {
				continue
			}
			results[fc.Name] = append(results[fc.Name], Feature{
				ID:       int64(node.ID),
				Geometry: p,
				Tags:     tags,
			})
			break
		}
	}
	scanErr = nodeScanner.Err()
	nodeScanner.Close()
	fNodes.Close()
	if scanErr != nil {
		return nil, fmt.Errorf("scanning nodes: %w", scanErr)
	}
	bar.Add(1)

	// assembly: resolve way node refs into lines and rings
	var clip *boundaryClip
	if boundary != nil {
		clip, err = newBoundaryClip(boundary)
		if err != nil {
			return nil, err
		}
	}
	for _, tw := range ways {
		fc := classes[tw.class]
		points := make([]orb.Point, 0, len(tw.nodeIDs))
		for _, nodeID := range tw.nodeIDs {
			if p, ok := nodeLocs[nodeID]; ok {
				points = append(points, p)
			}
		}

		var geom orb.Geometry
		switch fc.Kind {
		case KindLine:
			if len(points) < 2 {
				continue
			}
			geom = orb.LineString(points)
		case KindPolygon:
			ring, ok := geo.RingFromPoints(points)
			if !ok {
				continue
			}
			geom = orb.Polygon{ring}
		}
		if clip != nil {
			hit, err := clip.intersects(geom)
			if err != nil {
				return nil, fmt.Errorf("way %d: %w", tw.id, err)
			}
			if !hit {
				continue
			}
		}
		results[fc.Name] = append(results[fc.Name], Feature{
			ID:       int64(tw.id),
			Geometry: geom,
			Tags:     tw.tags,
		})
	}
	bar.Add(1)

	return results, nil
}

func newPassBar(passes int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(passes,
		progressbar.OptionSetWriter(ansi.NewAnsiStdout()),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(15),
		progressbar.OptionSetDescription(fmt.Sprintf("[cyan]%s[reset]", description)),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}
