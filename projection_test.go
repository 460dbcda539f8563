package main

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTileAt(t *testing.T) {
	tests := []struct {
		name  string
		point GeoPoint
		zoom  maptile.Zoom
		want  maptile.Tile
	}{
		{"world", GeoPoint{Lat: 51.5, Lon: -0.12}, 0, maptile.New(0, 0, 0)},
		{"just south east of null island", GeoPoint{Lat: -0.1, Lon: 0.1}, 1, maptile.New(1, 1, 1)},
		{"just north west of null island", GeoPoint{Lat: 0.1, Lon: -0.1}, 1, maptile.New(0, 0, 1)},
		{"london", GeoPoint{Lat: 51.5074, Lon: -0.1278}, 10, maptile.New(511, 340, 10)},
		{"sydney", GeoPoint{Lat: -33.8688, Lon: 151.2093}, 12, maptile.New(3768, 2457, 12)},
		{"date line west edge", GeoPoint{Lat: 0.1, Lon: -180}, 3, maptile.New(0, 3, 3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TileAt(tt.point, tt.zoom)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTileAtMatchesOrb(t *testing.T) {
	points := []GeoPoint{
		{Lat: 43.7384, Lon: 7.4246},
		{Lat: -54.8019, Lon: -68.303},
		{Lat: 64.1466, Lon: -21.9426},
		{Lat: 1.3521, Lon: 103.8198},
	}
	for _, p := range points {
		for z := maptile.Zoom(0); z <= ZoomMax; z++ {
			got, err := TileAt(p, z)
			require.NoError(t, err)
			assert.Equal(t, maptile.At(p.Point(), z), got, "point %s zoom %d", p, z)
		}
	}
}

func TestTileAtDomainErrors(t *testing.T) {
	for _, lat := range []float64{90, -90, 91} {
		_, err := TileAt(GeoPoint{Lat: lat, Lon: 0}, 5)
		assert.ErrorIs(t, err, ErrLatitudeDomain, "lat %g", lat)
	}

	_, err := TileAt(GeoPoint{Lat: 89, Lon: 0}, 5)
	assert.ErrorIs(t, err, ErrTileOutOfRange)

	_, err = TileAt(GeoPoint{Lat: 0, Lon: 180}, 5)
	assert.ErrorIs(t, err, ErrTileOutOfRange)

	_, err = TileAt(GeoPoint{Lat: 0, Lon: -181}, 5)
	assert.ErrorIs(t, err, ErrTileOutOfRange)
}

func TestTileAtInGridAndMonotonic(t *testing.T) {
	for z := maptile.Zoom(0); z <= ZoomMax; z++ {
		n := uint32(1) << z
		var prev uint32
		for lon := -180.0; lon < 180; lon += 7.3 {
			for _, lat := range []float64{-85, -45.5, 0, 33.3, 85} {
				tile, err := TileAt(GeoPoint{Lat: lat, Lon: lon}, z)
				require.NoError(t, err)
				assert.Less(t, tile.X, n)
				assert.Less(t, tile.Y, n)
			}
			tile, err := TileAt(GeoPoint{Lat: 10, Lon: lon}, z)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, tile.X, prev, "zoom %d lon %g", z, lon)
			prev = tile.X
		}
	}
}

func TestTileFloat(t *testing.T) {
	x, y := TileFloat(GeoPoint{Lat: 0, Lon: 0}, 1)
	assert.InDelta(t, 1.0, x, 1e-12)
	assert.InDelta(t, 1.0, y, 1e-12)

	x, y = TileFloat(GeoPoint{Lat: 0, Lon: -180}, 4)
	assert.InDelta(t, 0.0, x, 1e-12)
	assert.InDelta(t, 8.0, y, 1e-12)
}

func TestFlipY(t *testing.T) {
	for z := maptile.Zoom(0); z <= ZoomMax; z++ {
		n := uint32(1) << z
		for y := uint32(0); y < n; y++ {
			tile := maptile.New(0, y, z)
			stored := FlipY(tile)
			if stored != n-y-1 {
				t.Fatalf("zoom %d row %d: stored %d, want %d", z, y, stored, n-y-1)
			}
			if back := FlipY(maptile.New(0, stored, z)); back != y {
				t.Fatalf("zoom %d row %d: inverse gave %d", z, y, back)
			}
		}
	}
}

func TestLayerEach(t *testing.T) {
	box := BoundingBox{
		SouthEast: GeoPoint{Lat: -0.1, Lon: 0.1},
		NorthWest: GeoPoint{Lat: 0.1, Lon: -0.1},
	}
	layer, err := NewLayer(box, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(4), layer.Count)

	var got []maptile.Tile
	layer.Each(func(tile maptile.Tile) bool {
		got = append(got, tile)
		return true
	})
	want := []maptile.Tile{
		maptile.New(0, 1, 1), maptile.New(1, 1, 1),
		maptile.New(0, 0, 1), maptile.New(1, 0, 1),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tile order mismatch (-want +got):\n%s", diff)
	}
}

func TestLayerSingleTile(t *testing.T) {
	// the four corners of tile 5/16/10 shrunk slightly inward
	tile := maptile.New(16, 10, 5)
	b := tile.Bound()
	box := BoundingBoxFromBound(b.Pad(-1e-6))

	layer, err := NewLayer(box, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), layer.Count)

	var got []maptile.Tile
	layer.Each(func(tile maptile.Tile) bool {
		got = append(got, tile)
		return true
	})
	assert.Equal(t, []maptile.Tile{tile}, got)
}

func TestLayerEachStops(t *testing.T) {
	box := BoundingBox{
		SouthEast: GeoPoint{Lat: -10, Lon: 10},
		NorthWest: GeoPoint{Lat: 10, Lon: -10},
	}
	layer, err := NewLayer(box, 6)
	require.NoError(t, err)

	calls := 0
	layer.Each(func(maptile.Tile) bool {
		calls++
		return calls < 3
	})
	assert.Equal(t, 3, calls)
}

func TestBoundingBoxValidate(t *testing.T) {
	ok := BoundingBox{SouthEast: GeoPoint{Lat: 1, Lon: 2}, NorthWest: GeoPoint{Lat: 3, Lon: 1}}
	assert.NoError(t, ok.Validate())

	swappedLat := BoundingBox{SouthEast: GeoPoint{Lat: 3, Lon: 2}, NorthWest: GeoPoint{Lat: 1, Lon: 1}}
	assert.ErrorIs(t, swappedLat.Validate(), ErrInvalidBounds)

	swappedLon := BoundingBox{SouthEast: GeoPoint{Lat: 1, Lon: 1}, NorthWest: GeoPoint{Lat: 3, Lon: 2}}
	assert.ErrorIs(t, swappedLon.Validate(), ErrInvalidBounds)
}
