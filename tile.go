package main

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// TileSize 默认瓦片大小
const TileSize = 256

// ZoomMin 最小级别
const ZoomMin = 0

// ZoomMax 最大级别
const ZoomMax = 19

// Tile 自定义瓦片存储
type Tile struct {
	T maptile.Tile
	C []byte
}

// GeoPoint is a latitude/longitude pair in degrees.
type GeoPoint struct {
	Lat float64
	Lon float64
}

// Point returns the point in orb's lon/lat order.
func (p GeoPoint) Point() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

func (p GeoPoint) String() string {
	return fmt.Sprintf("(%g, %g)", p.Lat, p.Lon)
}

// BoundingBox is the extent to cache, given by its south-east and north-west corners.
type BoundingBox struct {
	SouthEast GeoPoint
	NorthWest GeoPoint
}

// BoundingBoxFromBound converts an orb bound (min = south-west, max = north-east).
func BoundingBoxFromBound(b orb.Bound) BoundingBox {
	return BoundingBox{
		SouthEast: GeoPoint{Lat: b.Min.Lat(), Lon: b.Max.Lon()},
		NorthWest: GeoPoint{Lat: b.Max.Lat(), Lon: b.Min.Lon()},
	}
}

// Validate rejects boxes whose corners are swapped.
func (b BoundingBox) Validate() error {
	if b.SouthEast.Lat > b.NorthWest.Lat {
		return fmt.Errorf("%w: south-east latitude %g is north of north-west latitude %g",
			ErrInvalidBounds, b.SouthEast.Lat, b.NorthWest.Lat)
	}
	if b.SouthEast.Lon < b.NorthWest.Lon {
		return fmt.Errorf("%w: south-east longitude %g is west of north-west longitude %g",
			ErrInvalidBounds, b.SouthEast.Lon, b.NorthWest.Lon)
	}
	return nil
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("SE%s NW%s", b.SouthEast, b.NorthWest)
}

// Layer 级别&瓦片数
type Layer struct {
	Zoom maptile.Zoom
	// Min is the south-east corner tile, Max the north-west one.
	Min   maptile.Tile
	Max   maptile.Tile
	Count int64
}

// NewLayer projects both corners of the box at zoom z.
func NewLayer(box BoundingBox, z maptile.Zoom) (Layer, error) {
	se, err := TileAt(box.SouthEast, z)
	if err != nil {
		return Layer{}, fmt.Errorf("south-east corner: %w", err)
	}
	nw, err := TileAt(box.NorthWest, z)
	if err != nil {
		return Layer{}, fmt.Errorf("north-west corner: %w", err)
	}
	l := Layer{Zoom: z, Min: se, Max: nw}
	rows := int64(se.Y) - int64(nw.Y) + 1
	cols := int64(se.X) - int64(nw.X) + 1
	if rows > 0 && cols > 0 {
		l.Count = rows * cols
	}
	return l, nil
}

// Each calls fn for every tile of the layer, rows south to north and columns west to
// east within a row. It stops early when fn returns false.
func (l Layer) Each(fn func(maptile.Tile) bool) {
	for y := int64(l.Min.Y); y >= int64(l.Max.Y); y-- {
		for x := l.Max.X; x <= l.Min.X; x++ {
			if !fn(maptile.New(x, uint32(y), l.Zoom)) {
				return
			}
		}
	}
}

func (l Layer) String() string {
	return fmt.Sprintf("zoom %d [%d,%d]-[%d,%d] (%d tiles)", l.Zoom, l.Max.X, l.Max.Y, l.Min.X, l.Min.Y, l.Count)
}

// Constants representing TileFormat types
const (
	PNG  = "png"
	JPG  = "jpg"
	JPEG = "jpeg"
	WEBP = "webp"
)
