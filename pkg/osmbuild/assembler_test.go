package osmbuild

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestAssembler seeds the second-pass caches directly, as if Scan
// had run over a PBF containing the given elements.
func newTestAssembler() *Assembler {
	return &Assembler{
		nodes: make(map[osm.NodeID]orb.Point),
		ways:  make(map[osm.WayID]cachedWay),
	}
}

func (a *Assembler) addNode(id osm.NodeID, lon, lat float64) {
	a.nodes[id] = orb.Point{lon, lat}
}

func (a *Assembler) addWay(id osm.WayID, tags map[string]string, nodeIDs ...osm.NodeID) {
	a.ways[id] = cachedWay{nodeIDs: nodeIDs, tags: tags}
}

func square(a *Assembler, base osm.NodeID, x, y, size float64) []osm.NodeID {
	a.addNode(base, x, y)
	a.addNode(base+1, x+size, y)
	a.addNode(base+2, x+size, y+size)
	a.addNode(base+3, x, y+size)
	return []osm.NodeID{base, base + 1, base + 2, base + 3, base}
}

func TestBuildingsFromWays(t *testing.T) {
	t.Run("closed building way becomes a polygon", func(t *testing.T) {
		a := newTestAssembler()
		ids := square(a, 1, 9.18, 45.45, 0.001)
		a.addWay(100, map[string]string{"building": "yes"}, ids...)

		buildings := a.Buildings()
		require.Len(t, buildings, 1)
		poly, ok := buildings[0].Geometry.(orb.Polygon)
		require.True(t, ok)
		assert.Len(t, poly, 1)
		assert.Len(t, poly[0], 5)
		assert.Equal(t, int64(100), buildings[0].ID)
	})

	t.Run("unclosed way is closed during assembly", func(t *testing.T) {
		a := newTestAssembler()
		a.addNode(1, 0, 0)
		a.addNode(2, 1, 0)
		a.addNode(3, 1, 1)
		a.addNode(4, 0, 1)
		a.addWay(100, map[string]string{"building": "yes"}, 1, 2, 3, 4)

		buildings := a.Buildings()
		require.Len(t, buildings, 1)
		ring := buildings[0].Geometry.(orb.Polygon)[0]
		assert.Equal(t, ring[0], ring[len(ring)-1])
	})

	t.Run("degenerate ring is dropped", func(t *testing.T) {
		a := newTestAssembler()
		a.addNode(1, 0, 0)
		a.addNode(2, 1, 1)
		a.addWay(100, map[string]string{"building": "yes"}, 1, 2, 1)

		assert.Empty(t, a.Buildings())
	})

	t.Run("non-building way is ignored", func(t *testing.T) {
		a := newTestAssembler()
		ids := square(a, 1, 0, 0, 1)
		a.addWay(100, map[string]string{"highway": "residential"}, ids...)

		assert.Empty(t, a.Buildings())
	})

	t.Run("way missing from node cache is skipped", func(t *testing.T) {
		a := newTestAssembler()
		a.addWay(100, map[string]string{"building": "yes"}, 1, 2, 3, 4, 1)

		assert.Empty(t, a.Buildings())
	})
}

func TestBuildingsFromRelations(t *testing.T) {
	t.Run("single outer with hole", func(t *testing.T) {
		a := newTestAssembler()
		outer := square(a, 1, 0, 0, 10)
		hole := square(a, 10, 4, 4, 2)
		a.addWay(100, nil, outer...)
		a.addWay(101, nil, hole...)
		a.relations = []cachedRelation{{
			id: 500,
			members: []relationMember{
				{wayID: 100, role: "outer"},
				{wayID: 101, role: "inner"},
			},
			tags: map[string]string{"type": "multipolygon", "building": "yes"},
		}}

		buildings := a.Buildings()
		require.Len(t, buildings, 1)
		poly, ok := buildings[0].Geometry.(orb.Polygon)
		require.True(t, ok)
		require.Len(t, poly, 2, "outer ring plus hole")
		assert.Equal(t, int64(500), buildings[0].ID)
	})

	t.Run("two outers become a multipolygon", func(t *testing.T) {
		a := newTestAssembler()
		first := square(a, 1, 0, 0, 1)
		second := square(a, 10, 5, 5, 1)
		a.addWay(100, nil, first...)
		a.addWay(101, nil, second...)
		a.relations = []cachedRelation{{
			id: 500,
			members: []relationMember{
				{wayID: 100, role: "outer"},
				{wayID: 101, role: "outer"},
			},
			tags: map[string]string{"type": "multipolygon", "building": "yes"},
		}}

		buildings := a.Buildings()
		require.Len(t, buildings, 1)
		mp, ok := buildings[0].Geometry.(orb.MultiPolygon)
		require.True(t, ok)
		assert.Len(t, mp, 2)
	})

	t.Run("inner rings are dropped when several outers exist", func(t *testing.T) {
		a := newTestAssembler()
		first := square(a, 1, 0, 0, 10)
		second := square(a, 10, 20, 20, 10)
		hole := square(a, 20, 4, 4, 2)
		a.addWay(100, nil, first...)
		a.addWay(101, nil, second...)
		a.addWay(102, nil, hole...)
		a.relations = []cachedRelation{{
			id: 500,
			members: []relationMember{
				{wayID: 100, role: "outer"},
				{wayID: 101, role: "outer"},
				{wayID: 102, role: "inner"},
			},
			tags: map[string]string{"type": "multipolygon", "building": "yes"},
		}}

		buildings := a.Buildings()
		require.Len(t, buildings, 1)
		mp, ok := buildings[0].Geometry.(orb.MultiPolygon)
		require.True(t, ok)
		require.Len(t, mp, 2)
		for _, poly := range mp {
			assert.Len(t, poly, 1, "shells carry no holes")
		}
	})

	t.Run("relation members are not emitted twice", func(t *testing.T) {
		a := newTestAssembler()
		outer := square(a, 1, 0, 0, 10)
		// the outer way itself carries a building tag
		a.addWay(100, map[string]string{"building": "yes"}, outer...)
		a.relations = []cachedRelation{{
			id:      500,
			members: []relationMember{{wayID: 100, role: "outer"}},
			tags:    map[string]string{"type": "multipolygon", "building": "apartments"},
		}}

		buildings := a.Buildings()
		require.Len(t, buildings, 1)
		assert.Equal(t, "apartments", buildings[0].Tags["building"])
	})

	t.Run("relation without resolvable outers is skipped", func(t *testing.T) {
		a := newTestAssembler()
		a.relations = []cachedRelation{{
			id:      500,
			members: []relationMember{{wayID: 999, role: "outer"}},
			tags:    map[string]string{"type": "multipolygon", "building": "yes"},
		}}

		assert.Empty(t, a.Buildings())
	})
}

func TestFilterByBoundary(t *testing.T) {
	boundary := orb.Polygon{{
		{9.0, 45.0}, {9.3, 45.0}, {9.3, 45.6}, {9.0, 45.6}, {9.0, 45.0},
	}}

	t.Run("inside kept, outside dropped", func(t *testing.T) {
		inside := Building{Geometry: orb.Polygon{{
			{9.1, 45.1}, {9.11, 45.1}, {9.11, 45.11}, {9.1, 45.11}, {9.1, 45.1},
		}}}
		outside := Building{Geometry: orb.Polygon{{
			{12.4, 41.8}, {12.5, 41.8}, {12.5, 41.9}, {12.4, 41.9}, {12.4, 41.8},
		}}}

		filtered, err := FilterByBoundary([]Building{inside, outside}, boundary)
		require.NoError(t, err)
		require.Len(t, filtered, 1)
		assert.Equal(t, inside.Geometry, filtered[0].Geometry)
	})

	t.Run("straddling building with no vertex inside is kept", func(t *testing.T) {
		// a strip crossing the whole boundary: every vertex lies
		// outside, the overlap is interior-only
		strip := Building{Geometry: orb.Polygon{{
			{9.1, 44.5}, {9.2, 44.5}, {9.2, 46.0}, {9.1, 46.0}, {9.1, 44.5},
		}}}

		filtered, err := FilterByBoundary([]Building{strip}, boundary)
		require.NoError(t, err)
		require.Len(t, filtered, 1)
	})

	t.Run("nil boundary keeps everything", func(t *testing.T) {
		b := Building{Geometry: orb.Polygon{{
			{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0},
		}}}
		filtered, err := FilterByBoundary([]Building{b}, nil)
		require.NoError(t, err)
		assert.Len(t, filtered, 1)
	})
}

func TestFeatureClassMatches(t *testing.T) {
	assert.True(t, Restaurants.matches(map[string]string{"amenity": "restaurant"}))
	assert.False(t, Restaurants.matches(map[string]string{"amenity": "school"}))
	assert.True(t, Neighborhoods.matches(map[string]string{"place": "suburb"}))
	assert.False(t, Neighborhoods.matches(map[string]string{"place": "city"}))
	assert.False(t, Trees.matches(map[string]string{}))
}

func TestIsBuildingRelation(t *testing.T) {
	assert.True(t, isBuildingRelation(osm.Tags{
		{Key: "type", Value: "multipolygon"},
		{Key: "building", Value: "yes"},
	}))
	assert.False(t, isBuildingRelation(osm.Tags{
		{Key: "type", Value: "multipolygon"},
	}))
	assert.False(t, isBuildingRelation(osm.Tags{
		{Key: "type", Value: "route"},
		{Key: "building", Value: "yes"},
	}))
}
