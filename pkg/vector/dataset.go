// Package vector is the in-process engine: datasets held as orb
// geometries, metric math done in EPSG:32632 and the heavier
// predicates delegated to GEOS.
package vector

import (
	"fmt"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/twpayne/go-geos"

	"github.com/dimuzzo/geobench/pkg/geo"
	"github.com/dimuzzo/geobench/pkg/geoparquet"
)

// Dataset is an in-memory feature collection in WGS84.
type Dataset struct {
	Name     string
	Features []geoparquet.Feature
}

func (d *Dataset) Len() int {
	return len(d.Features)
}

// LoadGeoParquet reads a dataset file written by the extraction step.
func LoadGeoParquet(name, path string) (*Dataset, error) {
	features, err := geoparquet.Read(path)
	if err != nil {
		return nil, err
	}
	return &Dataset{Name: name, Features: features}, nil
}

var registerOnce sync.Once

// LoadOGR reads any OGR-supported vector file (shapefiles here) into
// a dataset, keeping every attribute as a string property.
func LoadOGR(name, path string) (*Dataset, error) {
	registerOnce.Do(godal.RegisterInternalDrivers)

	ds, err := godal.Open(path, godal.VectorOnly())
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer ds.Close()

	layers := ds.Layers()
	if len(layers) == 0 {
		return nil, fmt.Errorf("no layers in %s", path)
	}
	layer := layers[0]
	layer.ResetReading()

	var features []geoparquet.Feature
	id := int64(0)
	for f := layer.NextFeature(); f != nil; f = layer.NextFeature() {
		g := f.Geometry()
		if g == nil {
			continue
		}
		raw, err := g.WKB()
		if err != nil {
			return nil, fmt.Errorf("reading geometry %d of %s: %w", id, path, err)
		}
		geom, err := wkb.Unmarshal(raw)
		if err != nil {
			return nil, fmt.Errorf("decoding geometry %d of %s: %w", id, path, err)
		}
		props := make(map[string]string)
		for key, field := range f.Fields() {
			props[key] = field.String()
		}
		features = append(features, geoparquet.Feature{
			ID:         id,
			Geometry:   geom,
			Properties: props,
		})
		id++
	}
	return &Dataset{Name: name, Features: features}, nil
}

// FilterByProperty keeps features whose property equals value.
func (d *Dataset) FilterByProperty(key, value string) *Dataset {
	out := &Dataset{Name: d.Name}
	for _, f := range d.Features {
		if f.Properties[key] == value {
			out.Features = append(out.Features, f)
		}
	}
	return out
}

// toGeos converts an orb geometry through WKB. The context must only
// be used from the calling goroutine.
func toGeos(c *geos.Context, g orb.Geometry) (*geos.Geom, error) {
	raw, err := wkb.Marshal(g)
	if err != nil {
		return nil, err
	}
	return c.NewGeomFromWKB(raw)
}

// utmGeos projects to EPSG:32632 first so GEOS works in meters.
func utmGeos(c *geos.Context, g orb.Geometry) (*geos.Geom, error) {
	return toGeos(c, geo.ProjectToUTM32N(g))
}
