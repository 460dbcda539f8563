package main

import (
	"fmt"
	"math"

	"github.com/paulmach/orb/maptile"
)

// TileFloat returns the fractional tile position of p at zoom z using the spherical
// mercator slippy map formula. The integer part is the tile, the fraction the offset
// inside it.
func TileFloat(p GeoPoint, z maptile.Zoom) (x, y float64) {
	n := float64(uint64(1) << z)
	latRad := p.Lat * math.Pi / 180.0
	x = (p.Lon + 180.0) / 360.0 * n
	y = (1.0 - math.Log(math.Tan(latRad)+1.0/math.Cos(latRad))/math.Pi) / 2.0 * n
	return x, y
}

// TileAt returns the tile containing p at zoom z. Poles and non-finite input are a
// domain error; results outside the 2^z grid are reported, never wrapped or clamped.
func TileAt(p GeoPoint, z maptile.Zoom) (maptile.Tile, error) {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lon, 0) || math.Abs(p.Lat) >= 90 {
		return maptile.Tile{}, fmt.Errorf("%w: point %s", ErrLatitudeDomain, p)
	}

	fx, fy := TileFloat(p, z)
	x, y := math.Floor(fx), math.Floor(fy)
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return maptile.Tile{}, fmt.Errorf("%w: point %s", ErrLatitudeDomain, p)
	}

	last := float64(uint64(1)<<z) - 1
	if x < 0 || x > last || y < 0 || y > last {
		return maptile.Tile{}, fmt.Errorf("%w: point %s projects to x=%.0f y=%.0f at zoom %d",
			ErrTileOutOfRange, p, x, y, z)
	}
	return maptile.New(uint32(x), uint32(y), z), nil
}

// FlipY converts between the top-down slippy row and the bottom-up TMS row. It is its
// own inverse.
func FlipY(t maptile.Tile) uint32 {
	return (1 << uint32(t.Z)) - t.Y - 1
}
