// Package shadows locates fixed-size TM35FIN map tiles for WGS84 coordinates
// and renders translucent terrain shadow masks for them.
package shadows

import (
	"context"
	"math"
)

const (
	// TileSize is the side length of a map tile in TM35FIN meters.
	TileSize = 400

	// Resolution is the number of heightmap samples along each side of a
	// tile.
	Resolution = TileSize / 2
)

// A GeodeticCoord is a WGS84 longitude and latitude in degrees.
type GeodeticCoord struct {
	Lon float64
	Lat float64
}

// Bounds is a rectangle in degrees.
type Bounds struct {
	MinLon float64
	MaxLon float64
	MinLat float64
	MaxLat float64
}

// ValidDomain is the area of WGS84 for which TM35FIN is defined.
var ValidDomain = Bounds{
	MinLon: -16.1,
	MaxLon: 32.88,
	MinLat: 40.18,
	MaxLat: 84.73,
}

// Contains returns if coord lies within b. Bounds are inclusive.
func (b Bounds) Contains(coord GeodeticCoord) bool {
	return b.MinLon <= coord.Lon && coord.Lon <= b.MaxLon &&
		b.MinLat <= coord.Lat && coord.Lat <= b.MaxLat
}

// Valid returns if c can be projected to TM35FIN.
func (c GeodeticCoord) Valid() bool {
	return ValidDomain.Contains(c)
}

// A PlanarCoord is a TM35FIN easting and northing in meters.
type PlanarCoord struct {
	X float64
	Y float64
}

func (c PlanarCoord) finite() bool {
	return !math.IsNaN(c.X) && !math.IsInf(c.X, 0) && !math.IsNaN(c.Y) && !math.IsInf(c.Y, 0)
}

// A TileAddress identifies a tile by coordinates that are multiples of the
// tile size.
type TileAddress struct {
	Lon int64 `json:"longitude"`
	Lat int64 `json:"latitude"`
}

// A TileOffset is the position of a point relative to its tile's address.
type TileOffset struct {
	X int64 `json:"x"`
	Y int64 `json:"y"`
}

// TileInformation is the result of locating a WGS84 coordinate.
type TileInformation struct {
	Longitude  int64 `json:"longitude"`
	Latitude   int64 `json:"latitude"`
	TileHeight int   `json:"tile_height"`
	TileWidth  int   `json:"tile_width"`
	X          int64 `json:"x"` // Distance of the point from the left side of the tile.
	Y          int64 `json:"y"` // Distance of the point from the bottom side of the tile.
}

// A Coord is an integer model coordinate.
type Coord struct {
	X int
	Y int
}

// A TileCoord is a block coordinate within a raster.
type TileCoord struct {
	C int // Column.
	R int // Row.
}

// A Raster returns samples at model coordinates.
type Raster interface {
	Samples(ctx context.Context, coords []Coord) ([]float64, error)
	Scale() (int, int)
}
