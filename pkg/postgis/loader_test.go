package postgis

import (
	"encoding/binary"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dimuzzo/geobench/pkg/geoparquet"
)

func TestCopyRows(t *testing.T) {
	rows, err := copyRows([]geoparquet.Feature{{
		ID:         7,
		Geometry:   orb.Point{9.19, 45.46},
		Properties: map[string]string{"name": "duomo"},
	}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Len(t, rows[0], 3)

	assert.Equal(t, int64(7), rows[0][0])
	assert.Equal(t, map[string]string{"name": "duomo"}, rows[0][1])

	// little-endian EWKB point with the SRID flag and SRID 4326
	raw, ok := rows[0][2].([]byte)
	require.True(t, ok)
	require.GreaterOrEqual(t, len(raw), 9)
	assert.Equal(t, byte(1), raw[0])
	assert.Equal(t, uint32(0x20000001), binary.LittleEndian.Uint32(raw[1:5]))
	assert.Equal(t, uint32(sridWGS84), binary.LittleEndian.Uint32(raw[5:9]))
}

func TestCopyRowsNilProperties(t *testing.T) {
	rows, err := copyRows([]geoparquet.Feature{{
		ID:       1,
		Geometry: orb.Point{0, 0},
	}})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{}, rows[0][1])
}
