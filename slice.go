package shadows

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

var slicerTiles = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "shadows_slicer_tiles_total",
	Help: "The total number of tiles considered by the heightmap slicer by result",
}, []string{"result"})

// An Extent is an axis-aligned rectangle in model coordinates. MinX and MaxY
// are inclusive, MaxX and MinY are exclusive.
type Extent struct {
	MinX int
	MinY int
	MaxX int
	MaxY int
}

// A SliceSource is a raster with a known extent.
type SliceSource interface {
	Raster
	Extent() Extent
}

// SliceStats summarizes a call to Slice.
type SliceStats struct {
	Written int
	Skipped int
}

// A Slicer cuts elevation rasters into per-tile heightmap artifacts.
type Slicer struct {
	dst              afero.Fs
	grid             TileGrid
	concurrency      int
	tileFilenameFunc TileFilenameFunc
}

// A SlicerOption sets an option on a Slicer.
type SlicerOption func(*Slicer)

// NewSlicer returns a new Slicer that writes artifacts to dst.
func NewSlicer(dst afero.Fs, grid TileGrid, options ...SlicerOption) (*Slicer, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	s := &Slicer{
		dst:              dst,
		grid:             grid,
		concurrency:      4,
		tileFilenameFunc: TileFilename,
	}
	for _, option := range options {
		option(s)
	}
	return s, nil
}

func WithConcurrency(concurrency int) SlicerOption {
	return func(s *Slicer) {
		s.concurrency = concurrency
	}
}

func WithSlicerFilenameFunc(tileFilenameFunc TileFilenameFunc) SlicerOption {
	return func(s *Slicer) {
		s.tileFilenameFunc = tileFilenameFunc
	}
}

// Slice writes an artifact for every whole tile in src's extent. Artifacts
// are named after their tile's upper-left corner, which is always a multiple
// of the tile size. Tiles without any data are skipped and missing samples in
// other tiles are written as zero.
func (s *Slicer) Slice(ctx context.Context, src SliceSource) (SliceStats, error) {
	return s.forEachTile(ctx, src.Extent(), func(ctx context.Context, corner TileAddress) (bool, error) {
		return s.sliceTile(ctx, src, corner)
	})
}

// tileCorners returns the upper-left corners of the whole tiles in extent,
// from north to south and west to east.
func (s *Slicer) tileCorners(extent Extent) []TileAddress {
	tileSize := int64(s.grid.TileSize)
	minX := -floorDiv(-int64(extent.MinX), tileSize) * tileSize
	maxY := floorDiv(int64(extent.MaxY), tileSize) * tileSize
	var corners []TileAddress
	for y := maxY; y-tileSize >= int64(extent.MinY); y -= tileSize {
		for x := minX; x+tileSize <= int64(extent.MaxX); x += tileSize {
			corners = append(corners, TileAddress{Lon: x, Lat: y})
		}
	}
	return corners
}

// forEachTile calls sliceTile concurrently for every whole tile in extent.
func (s *Slicer) forEachTile(ctx context.Context, extent Extent, sliceTile func(context.Context, TileAddress) (bool, error)) (SliceStats, error) {
	var written, skipped atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, corner := range s.tileCorners(extent) {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ok, err := sliceTile(ctx, corner)
			switch {
			case err != nil:
				slicerTiles.WithLabelValues("error").Inc()
				return err
			case ok:
				slicerTiles.WithLabelValues("written").Inc()
				written.Add(1)
			default:
				slicerTiles.WithLabelValues("skipped").Inc()
				skipped.Add(1)
			}
			return nil
		})
	}
	err := g.Wait()
	return SliceStats{
		Written: int(written.Load()),
		Skipped: int(skipped.Load()),
	}, err
}

// sliceTile writes the artifact for the tile whose upper-left corner is
// corner. It returns false if the tile has no data.
func (s *Slicer) sliceTile(ctx context.Context, src Raster, corner TileAddress) (bool, error) {
	rows, ok, err := s.sampleTile(ctx, src, corner)
	if err != nil || !ok {
		return false, err
	}
	data, err := encodeHeightmap(rows)
	if err != nil {
		return false, err
	}
	filename := s.tileFilenameFunc(corner)
	if err := afero.WriteFile(s.dst, filename, data, 0o644); err != nil {
		return false, fmt.Errorf("%s: %w", filename, err)
	}
	return true, nil
}

// sampleTile returns the heightmap of the tile whose upper-left corner is
// corner, sampled at the upper-left corner of each cell.
func (s *Slicer) sampleTile(ctx context.Context, src Raster, corner TileAddress) ([][]int, bool, error) {
	resolution := s.grid.Resolution
	cellSize := float64(s.grid.CellSize())
	coords := make([][]float64, 0, resolution*resolution)
	for row := range resolution {
		for col := range resolution {
			coords = append(coords, []float64{
				float64(corner.Lon) + float64(col)*cellSize,
				float64(corner.Lat) - float64(row)*cellSize,
			})
		}
	}

	samples, err := InterpolateBilinear(ctx, src, coords)
	if err != nil {
		return nil, false, err
	}

	hasData := false
	rows := make([][]int, resolution)
	for row := range resolution {
		rows[row] = make([]int, resolution)
		for col := range resolution {
			sample := samples[row*resolution+col]
			if math.IsNaN(sample) {
				continue
			}
			hasData = true
			rows[row][col] = int(math.Round(sample))
		}
	}
	return rows, hasData, nil
}
