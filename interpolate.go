package shadows

import (
	"context"
	"math"
)

// InterpolateBilinear returns the bilinear interpolation of raster at each of
// coords. Neighbours with zero weight are not included, so coordinates that
// fall exactly on the raster's grid return the sample there even at the
// raster's edge.
func InterpolateBilinear(ctx context.Context, raster Raster, coords [][]float64) ([]float64, error) {
	scaleX, scaleY := raster.Scale()
	rasterCoords := make([]Coord, 4*len(coords))
	for i, coord := range coords {
		x0 := scaleX * int(math.Floor(coord[0]/float64(scaleX)))
		y0 := scaleY * int(math.Floor(coord[1]/float64(scaleY)))
		x1 := x0 + scaleX
		y1 := y0 + scaleY
		rasterCoords[4*i+0] = Coord{X: x0, Y: y0}
		rasterCoords[4*i+1] = Coord{X: x1, Y: y0}
		rasterCoords[4*i+2] = Coord{X: x0, Y: y1}
		rasterCoords[4*i+3] = Coord{X: x1, Y: y1}
	}
	samples, err := raster.Samples(ctx, rasterCoords)
	if err != nil {
		return nil, err
	}
	result := make([]float64, len(coords))
	for i, coord := range coords {
		dx := (coord[0] - float64(rasterCoords[4*i].X)) / float64(scaleX)
		dy := (coord[1] - float64(rasterCoords[4*i].Y)) / float64(scaleY)
		weights := [4]float64{
			(1 - dx) * (1 - dy),
			dx * (1 - dy),
			(1 - dx) * dy,
			dx * dy,
		}
		for j, weight := range weights {
			if weight != 0 {
				result[i] += samples[4*i+j] * weight
			}
		}
	}
	return result, nil
}
