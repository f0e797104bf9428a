package shadows_test

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/spf13/afero"

	"github.com/twpayne/go-shadows"
)

// funcRaster is a raster whose samples are computed by a function of the
// model coordinate.
type funcRaster struct {
	scale  int
	extent shadows.Extent
	f      func(x, y int) float64
}

func (r *funcRaster) Samples(ctx context.Context, coords []shadows.Coord) ([]float64, error) {
	samples := make([]float64, len(coords))
	for i, coord := range coords {
		if coord.X < r.extent.MinX || r.extent.MaxX <= coord.X || coord.Y <= r.extent.MinY || r.extent.MaxY < coord.Y {
			samples[i] = math.NaN()
			continue
		}
		samples[i] = r.f(coord.X, coord.Y)
	}
	return samples, nil
}

func (r *funcRaster) Scale() (int, int) {
	return r.scale, r.scale
}

func (r *funcRaster) Extent() shadows.Extent {
	return r.extent
}

func TestSlicer_Slice(t *testing.T) {
	grid := shadows.TileGrid{TileSize: 4, Resolution: 2}
	src := &funcRaster{
		scale:  2,
		extent: shadows.Extent{MinX: 0, MinY: 0, MaxX: 10, MaxY: 4},
		f: func(x, y int) float64 {
			return float64(x + 10*y)
		},
	}

	dst := afero.NewMemMapFs()
	slicer, err := shadows.NewSlicer(dst, grid, shadows.WithConcurrency(1))
	assert.NoError(t, err)
	stats, err := slicer.Slice(t.Context(), src)
	assert.NoError(t, err)
	assert.Equal(t, shadows.SliceStats{Written: 2}, stats)

	names, err := afero.Glob(dst, "*")
	assert.NoError(t, err)
	assert.Equal(t, []string{"0x4", "4x4"}, names)

	store := shadows.NewHeightmapStore(afero.NewIOFS(dst), grid)
	for _, tc := range []struct {
		tile     shadows.TileAddress
		expected [][]int
	}{
		{
			tile: shadows.TileAddress{Lon: 0, Lat: 4},
			expected: [][]int{
				{40, 42},
				{20, 22},
			},
		},
		{
			tile: shadows.TileAddress{Lon: 4, Lat: 4},
			expected: [][]int{
				{44, 46},
				{24, 26},
			},
		},
	} {
		heightmap, err := store.Load(t.Context(), tc.tile)
		assert.NoError(t, err)
		assert.Equal(t, len(tc.expected), heightmap.Size())
		for row, expectedRow := range tc.expected {
			for col, expected := range expectedRow {
				assert.Equal(t, expected, heightmap.At(row, col))
			}
		}
	}
}

func TestSlicer_SliceUnalignedExtent(t *testing.T) {
	grid := shadows.TileGrid{TileSize: 4, Resolution: 2}
	src := &funcRaster{
		scale:  2,
		extent: shadows.Extent{MinX: 2, MinY: 2, MaxX: 14, MaxY: 10},
		f: func(x, y int) float64 {
			return 100
		},
	}

	dst := afero.NewMemMapFs()
	slicer, err := shadows.NewSlicer(dst, grid)
	assert.NoError(t, err)
	stats, err := slicer.Slice(t.Context(), src)
	assert.NoError(t, err)
	assert.Equal(t, shadows.SliceStats{Written: 2}, stats)

	names, err := afero.Glob(dst, "*")
	assert.NoError(t, err)
	assert.Equal(t, []string{"4x8", "8x8"}, names)

	service, err := shadows.NewService(afero.NewIOFS(dst),
		shadows.WithProjector(projectorFunc(nil)),
		shadows.WithServiceTileGrid(grid),
	)
	assert.NoError(t, err)
	for _, name := range names {
		var tile shadows.TileAddress
		_, err := fmt.Sscanf(name, "%dx%d", &tile.Lon, &tile.Lat)
		assert.NoError(t, err)
		_, err = service.Shadows(t.Context(), tile)
		assert.NoError(t, err)
	}
}

func TestSlicer_SliceResamples(t *testing.T) {
	grid := shadows.TileGrid{TileSize: 4, Resolution: 2}
	src := &funcRaster{
		scale:  1,
		extent: shadows.Extent{MinX: 100, MinY: 200, MaxX: 104, MaxY: 204},
		f: func(x, y int) float64 {
			return float64(x) + 0.4
		},
	}

	dst := afero.NewMemMapFs()
	slicer, err := shadows.NewSlicer(dst, grid)
	assert.NoError(t, err)
	stats, err := slicer.Slice(t.Context(), src)
	assert.NoError(t, err)
	assert.Equal(t, shadows.SliceStats{Written: 1}, stats)

	heightmap, err := shadows.NewHeightmapStore(afero.NewIOFS(dst), grid).Load(t.Context(), shadows.TileAddress{Lon: 100, Lat: 204})
	assert.NoError(t, err)
	assert.Equal(t, 100, heightmap.At(0, 0))
	assert.Equal(t, 102, heightmap.At(0, 1))
	assert.Equal(t, 100, heightmap.At(1, 0))
	assert.Equal(t, 102, heightmap.At(1, 1))
}

func TestSlicer_SliceMissingData(t *testing.T) {
	grid := shadows.TileGrid{TileSize: 4, Resolution: 2}
	src := &funcRaster{
		scale:  2,
		extent: shadows.Extent{MinX: 0, MinY: 0, MaxX: 8, MaxY: 4},
		f: func(x, y int) float64 {
			switch {
			case x >= 4:
				return math.NaN()
			case x == 2 && y == 4:
				return math.NaN()
			default:
				return 70
			}
		},
	}

	dst := afero.NewMemMapFs()
	slicer, err := shadows.NewSlicer(dst, grid)
	assert.NoError(t, err)
	stats, err := slicer.Slice(t.Context(), src)
	assert.NoError(t, err)
	assert.Equal(t, shadows.SliceStats{Written: 1, Skipped: 1}, stats)

	store := shadows.NewHeightmapStore(afero.NewIOFS(dst), grid)
	heightmap, err := store.Load(t.Context(), shadows.TileAddress{Lon: 0, Lat: 4})
	assert.NoError(t, err)
	assert.Equal(t, 70, heightmap.At(0, 0))
	assert.Equal(t, 0, heightmap.At(0, 1))
	assert.Equal(t, 70, heightmap.At(1, 1))

	_, err = store.Load(t.Context(), shadows.TileAddress{Lon: 4, Lat: 4})
	assert.IsError(t, err, shadows.ErrArtifactNotFound)
}

func TestSlicer_SliceCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	src := &funcRaster{
		scale:  2,
		extent: shadows.Extent{MinX: 0, MinY: 0, MaxX: 800, MaxY: 800},
		f: func(x, y int) float64 {
			return 0
		},
	}
	slicer, err := shadows.NewSlicer(afero.NewMemMapFs(), shadows.DefaultTileGrid)
	assert.NoError(t, err)
	_, err = slicer.Slice(ctx, src)
	assert.IsError(t, err, context.Canceled)
}

func TestNewSlicer_InvalidGrid(t *testing.T) {
	_, err := shadows.NewSlicer(afero.NewMemMapFs(), shadows.TileGrid{TileSize: 5, Resolution: 2})
	assert.Error(t, err)
}
