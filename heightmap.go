package shadows

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var heightmapLoads = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "shadows_heightmap_loads_total",
	Help: "The total number of heightmap loads by result",
}, []string{"result"})

// A Heightmap is an immutable square grid of integer elevations. Rows run
// from north to south and columns from west to east.
type Heightmap struct {
	size    int
	samples []int
}

// NewHeightmap returns a new Heightmap containing a copy of rows, which must
// be square.
func NewHeightmap(rows [][]int) (*Heightmap, error) {
	size := len(rows)
	samples := make([]int, 0, size*size)
	for i, row := range rows {
		if len(row) != size {
			return nil, &Error{
				Kind: DimensionMismatch,
				Err:  fmt.Errorf("row %d has %d samples, expected %d", i, len(row), size),
			}
		}
		samples = append(samples, row...)
	}
	return &Heightmap{
		size:    size,
		samples: samples,
	}, nil
}

// Size returns the number of rows, which is also the number of columns.
func (h *Heightmap) Size() int {
	return h.size
}

// At returns the elevation at row, col.
func (h *Heightmap) At(row, col int) int {
	return h.samples[row*h.size+col]
}

// A TileFilenameFunc returns the filename of the artifact for a tile.
type TileFilenameFunc func(TileAddress) string

// TileFilename returns the default artifact name for tile.
func TileFilename(tile TileAddress) string {
	return fmt.Sprintf("%dx%d", tile.Lon, tile.Lat)
}

// A HeightmapStore loads gzipped JSON heightmaps from a filesystem.
type HeightmapStore struct {
	fsys             fs.FS
	grid             TileGrid
	tileFilenameFunc TileFilenameFunc
}

// A HeightmapStoreOption sets an option on a HeightmapStore.
type HeightmapStoreOption func(*HeightmapStore)

// NewHeightmapStore returns a new HeightmapStore reading from fsys. Loaded
// heightmaps must have grid's resolution.
func NewHeightmapStore(fsys fs.FS, grid TileGrid, options ...HeightmapStoreOption) *HeightmapStore {
	s := &HeightmapStore{
		fsys:             fsys,
		grid:             grid,
		tileFilenameFunc: TileFilename,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

func WithHeightmapFilenameFunc(tileFilenameFunc TileFilenameFunc) HeightmapStoreOption {
	return func(s *HeightmapStore) {
		s.tileFilenameFunc = tileFilenameFunc
	}
}

// Load returns the heightmap for tile. Nothing is cached: every call reads
// and decodes the artifact again.
func (s *HeightmapStore) Load(ctx context.Context, tile TileAddress) (*Heightmap, error) {
	heightmap, err := s.load(ctx, tile)
	switch kind := KindOf(err); {
	case err == nil:
		heightmapLoads.WithLabelValues("ok").Inc()
	case kind != 0:
		heightmapLoads.WithLabelValues(kind.String()).Inc()
	default:
		heightmapLoads.WithLabelValues("error").Inc()
	}
	return heightmap, err
}

func (s *HeightmapStore) load(ctx context.Context, tile TileAddress) (*Heightmap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filename := s.tileFilenameFunc(tile)
	compressedData, err := fs.ReadFile(s.fsys, filename)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, newTileError(ArtifactNotFound, tile, err)
	case err != nil:
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	data, err := decompress(compressedData, s.maxDecompressedSize())
	if err != nil {
		return nil, newTileError(DecodeFailure, tile, err)
	}

	var rows [][]int
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, newTileError(DecodeFailure, tile, err)
	}

	if err := s.checkDimensions(rows); err != nil {
		return nil, newTileError(DimensionMismatch, tile, err)
	}

	heightmap, err := NewHeightmap(rows)
	if err != nil {
		return nil, newTileError(DimensionMismatch, tile, err)
	}
	return heightmap, nil
}

// checkDimensions returns an error unless rows is exactly resolution by
// resolution.
func (s *HeightmapStore) checkDimensions(rows [][]int) error {
	resolution := s.grid.Resolution
	if len(rows) != resolution {
		return fmt.Errorf("found %d rows, expected %d", len(rows), resolution)
	}
	for i, row := range rows {
		if len(row) != resolution {
			return fmt.Errorf("row %d has %d samples, expected %d", i, len(row), resolution)
		}
	}
	return nil
}

// maxSampleBytes is the generous upper bound on the encoded size of a single
// sample, including its separator and any whitespace.
const maxSampleBytes = 24

var errTooLarge = errors.New("decompressed data too large")

// maxDecompressedSize returns the largest decompressed artifact that s will
// decode.
func (s *HeightmapStore) maxDecompressedSize() int64 {
	n := int64(s.grid.Resolution) + 1
	return n * n * maxSampleBytes
}

func decompress(compressedData []byte, limit int64) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(compressedData))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	switch {
	case err != nil:
		return nil, err
	case int64(len(data)) > limit:
		return nil, fmt.Errorf("%w: more than %d bytes", errTooLarge, limit)
	default:
		return data, nil
	}
}

// encodeHeightmap returns rows as gzipped JSON.
func encodeHeightmap(rows [][]int) ([]byte, error) {
	data, err := json.Marshal(rows)
	if err != nil {
		return nil, err
	}
	var buffer bytes.Buffer
	w := gzip.NewWriter(&buffer)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}
