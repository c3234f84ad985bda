package geo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"
)

// Geocoder resolves a place name to its administrative boundary polygon
// through a Nominatim /search endpoint, with a bbolt-backed cache in
// front of it.
type Geocoder struct {
	endpoint string
	client   *http.Client
	cache    *BoundaryCache
	logger   *zap.Logger
}

const geocoderUserAgent = "geobench/1.0 (geospatial benchmark harness)"

func NewGeocoder(endpoint string, cache *BoundaryCache, logger *zap.Logger) *Geocoder {
	return &Geocoder{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
		cache:    cache,
		logger:   logger,
	}
}

// Boundary returns the polygonal boundary for a place such as
// "Milan, Italy". Cache hits never touch the network.
func (g *Geocoder) Boundary(ctx context.Context, place string) (orb.Geometry, error) {
	if g.cache != nil {
		geom, displayName, err := g.cache.Get(place)
		if err == nil {
			g.logger.Debug("boundary cache hit",
				zap.String("place", place),
				zap.String("display_name", displayName),
			)
			return geom, nil
		}
		if !errors.Is(err, ErrBoundaryNotCached) {
			g.logger.Warn("boundary cache read failed", zap.Error(err))
		}
	}

	geom, displayName, err := g.fetch(ctx, place)
	if err != nil {
		return nil, err
	}

	if g.cache != nil {
		if err := g.cache.Put(place, displayName, geom); err != nil {
			g.logger.Warn("boundary cache write failed", zap.Error(err))
		}
	}
	return geom, nil
}

func (g *Geocoder) fetch(ctx context.Context, place string) (orb.Geometry, string, error) {
	query := url.Values{}
	query.Set("q", place)
	query.Set("format", "geojson")
	query.Set("polygon_geojson", "1")
	query.Set("limit", "5")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/search?%s", g.endpoint, query.Encode()), nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", geocoderUserAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("geocoding %q: %w", place, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("geocoding %q: unexpected status %d", place, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}

	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, "", fmt.Errorf("geocoding %q: parsing response: %w", place, err)
	}

	for _, feature := range fc.Features {
		switch feature.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
			name, _ := feature.Properties["display_name"].(string)
			return feature.Geometry, name, nil
		}
	}
	return nil, "", fmt.Errorf("no polygonal boundary found for %q", place)
}
