package shadows

import (
	"fmt"
	"math"
)

// A TileGrid describes the fixed tiling of the TM35FIN plane and the sampling
// resolution of the heightmaps stored for each tile.
type TileGrid struct {
	TileSize   int
	Resolution int
}

// DefaultTileGrid is the grid used by the map viewer.
var DefaultTileGrid = TileGrid{
	TileSize:   TileSize,
	Resolution: Resolution,
}

// Validate returns an error if g cannot be used.
func (g TileGrid) Validate() error {
	switch {
	case g.TileSize <= 0:
		return fmt.Errorf("tile size must be positive, got %d", g.TileSize)
	case g.Resolution <= 0:
		return fmt.Errorf("resolution must be positive, got %d", g.Resolution)
	case g.TileSize%g.Resolution != 0:
		return fmt.Errorf("tile size %d is not a multiple of resolution %d", g.TileSize, g.Resolution)
	default:
		return nil
	}
}

// CellSize returns the distance between neighbouring heightmap samples.
func (g TileGrid) CellSize() int {
	return g.TileSize / g.Resolution
}

// Locate returns the address of the tile nearest to p and the offset of p
// from that address.
//
// Each axis is floored to a whole meter first, so 399.9 is treated as 399.
// The floored value then selects the nearest multiple of the tile size, with
// exact half-tile values going to the upper multiple. Consequently the offset
// lies in [-TileSize/2, TileSize/2).
//
// Coordinates are clamped to ±2^53, the range in which float64 represents
// every whole meter exactly. NaN is treated as zero.
func (g TileGrid) Locate(p PlanarCoord) (TileAddress, TileOffset) {
	x := floor(p.X)
	y := floor(p.Y)
	tile := TileAddress{
		Lon: g.nearestTile(x),
		Lat: g.nearestTile(y),
	}
	offset := TileOffset{
		X: x - tile.Lon,
		Y: y - tile.Lat,
	}
	return tile, offset
}

// Aligned returns if both of tile's coordinates are multiples of the tile
// size.
func (g TileGrid) Aligned(tile TileAddress) bool {
	size := int64(g.TileSize)
	return tile.Lon%size == 0 && tile.Lat%size == 0
}

func (g TileGrid) nearestTile(value int64) int64 {
	size := int64(g.TileSize)
	return floorDiv(value+size/2, size) * size
}

// maxCoord is the largest magnitude of a floored coordinate.
const maxCoord = 1 << 53

// floor returns value rounded towards negative infinity and clamped to
// [-maxCoord, maxCoord].
func floor(value float64) int64 {
	switch {
	case math.IsNaN(value):
		return 0
	case value >= maxCoord:
		return maxCoord
	case value <= -maxCoord:
		return -maxCoord
	default:
		return int64(math.Floor(value))
	}
}

// floorDiv returns a/b rounded towards negative infinity. b must be positive.
func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && a < 0 {
		q--
	}
	return q
}
