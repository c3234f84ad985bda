package geoparquet

import (
	"path/filepath"
	"testing"

	"github.com/hangxie/parquet-go/v2/reader"
	"github.com/hangxie/parquet-go/v2/source/local"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "milan_buildings.geoparquet")

	features := []Feature{
		{
			ID: 101,
			Geometry: orb.Polygon{{
				{9.18, 45.45}, {9.19, 45.45}, {9.19, 45.46}, {9.18, 45.46}, {9.18, 45.45},
			}},
			Properties: map[string]string{"building": "yes"},
		},
		{
			ID:         102,
			Geometry:   orb.Point{9.19, 45.46},
			Properties: map[string]string{"amenity": "restaurant", "name": "Da Mario"},
		},
	}

	require.NoError(t, Write(path, features))

	got, err := Read(path)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, int64(101), got[0].ID)
	assert.Equal(t, features[0].Geometry.Bound(), got[0].Geometry.Bound())
	assert.Equal(t, "yes", got[0].Properties["building"])

	point, ok := got[1].Geometry.(orb.Point)
	require.True(t, ok)
	assert.InDelta(t, 9.19, point[0], 1e-9)
	assert.Equal(t, "Da Mario", got[1].Properties["name"])
}

func TestGeoMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.geoparquet")
	require.NoError(t, Write(path, nil))

	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(featureRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	var geoValue string
	for _, kv := range pr.Footer.KeyValueMetadata {
		if kv.Key == "geo" && kv.Value != nil {
			geoValue = *kv.Value
		}
	}
	require.NotEmpty(t, geoValue, "geo file metadata missing")
	assert.Contains(t, geoValue, `"primary_column":"geometry"`)
	assert.Contains(t, geoValue, `"encoding":"WKB"`)
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "nope.geoparquet"))
	assert.Error(t, err)
}
