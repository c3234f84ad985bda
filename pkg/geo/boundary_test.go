package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const nominatimResponse = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"display_name": "Milano, Lombardia, Italia", "osm_type": "relation"},
      "geometry": {
        "type": "Polygon",
        "coordinates": [[[9.04, 45.38], [9.28, 45.38], [9.28, 45.54], [9.04, 45.54], [9.04, 45.38]]]
      }
    }
  ]
}`

const pointOnlyResponse = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"display_name": "Somewhere"},
      "geometry": {"type": "Point", "coordinates": [9.19, 45.46]}
    }
  ]
}`

func TestGeocoder(t *testing.T) {
	t.Run("fetches polygonal boundary", func(t *testing.T) {
		requests := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests++
			assert.Equal(t, "/search", r.URL.Path)
			assert.Equal(t, "geojson", r.URL.Query().Get("format"))
			assert.Equal(t, "1", r.URL.Query().Get("polygon_geojson"))
			assert.NotEmpty(t, r.Header.Get("User-Agent"))
			w.Write([]byte(nominatimResponse))
		}))
		defer srv.Close()

		g := NewGeocoder(srv.URL, nil, zap.NewNop())
		geom, err := g.Boundary(context.Background(), "Milan, Italy")
		require.NoError(t, err)
		require.Equal(t, 1, requests)

		poly, ok := geom.(orb.Polygon)
		require.True(t, ok)
		assert.Len(t, poly[0], 5)
	})

	t.Run("point-only results are an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(pointOnlyResponse))
		}))
		defer srv.Close()

		g := NewGeocoder(srv.URL, nil, zap.NewNop())
		_, err := g.Boundary(context.Background(), "Somewhere")
		assert.ErrorContains(t, err, "no polygonal boundary")
	})

	t.Run("cache hit skips the network", func(t *testing.T) {
		cache, err := OpenBoundaryCache(filepath.Join(t.TempDir(), "boundary_cache.db"))
		require.NoError(t, err)
		defer cache.Close()

		requests := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests++
			w.Write([]byte(nominatimResponse))
		}))

		g := NewGeocoder(srv.URL, cache, zap.NewNop())
		first, err := g.Boundary(context.Background(), "Milan, Italy")
		require.NoError(t, err)
		require.Equal(t, 1, requests)

		// no server anymore: only the cache can answer
		srv.Close()

		second, err := g.Boundary(context.Background(), "Milan, Italy")
		require.NoError(t, err)
		assert.Equal(t, 1, requests)
		assert.Equal(t, first.Bound(), second.Bound())
	})
}

func TestBoundaryCache(t *testing.T) {
	cache, err := OpenBoundaryCache(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer cache.Close()

	t.Run("miss", func(t *testing.T) {
		_, _, err := cache.Get("Rome, Italy")
		assert.ErrorIs(t, err, ErrBoundaryNotCached)
	})

	t.Run("round trip", func(t *testing.T) {
		poly := orb.Polygon{milanRing}
		require.NoError(t, cache.Put("Milan, Italy", "Milano, Lombardia", poly))

		geom, name, err := cache.Get("  milan, italy ")
		require.NoError(t, err)
		assert.Equal(t, "Milano, Lombardia", name)
		assert.Equal(t, poly.Bound(), geom.Bound())
	})
}
