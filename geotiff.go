package shadows

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"strconv"
	"strings"

	"github.com/google/tiff"
	_ "github.com/google/tiff/bigtiff"
	_ "github.com/google/tiff/geotiff"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/image/tiff/lzw"
)

const (
	compressionNone = 1
	compressionLZW  = 5

	sampleFormatFloat = 3
)

var (
	errShortRead = errors.New("short read")

	blockCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shadows_geotiff_block_cache_hits_total",
		Help: "The total number of hits on the GeoTIFF block cache",
	})
	blockCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shadows_geotiff_block_cache_misses_total",
		Help: "The total number of misses on the GeoTIFF block cache",
	})
)

// A geoTIFFFile is a file that github.com/google/tiff can parse.
type geoTIFFFile interface {
	fs.File
	io.ReaderAt
	io.Seeker
}

// A GeoTIFF is an open single-band float32 GeoTIFF elevation model. Blocks
// are either tiles or strips.
type GeoTIFF struct {
	file                geoTIFFFile
	compression         int
	imageWidth          int
	imageLength         int
	blockWidth          int
	blockLength         int
	blocksAcross        int
	blocksDown          int
	blockOffsets        []uint64
	blockByteCounts     []uint64
	noData              float32
	hasNoData           bool
	blockCacheSizeBytes int
	blockSamplesCache   *lru.Cache[TileCoord, []float32]
	scaleX              int
	scaleY              int
	translateX          int
	translateY          int
	epsg                int
}

// A GeoTIFFOption sets an option on a GeoTIFF.
type GeoTIFFOption func(*GeoTIFF)

// A geoTIFFIFD is a struct into which github.com/google/tiff can unmarshal an
// IFD.
type geoTIFFIFD struct {
	ImageWidth          uint16    `tiff:"field,tag=256"`
	ImageLength         uint16    `tiff:"field,tag=257"`
	BitsPerSample       uint16    `tiff:"field,tag=258"`
	Compression         uint16    `tiff:"field,tag=259"`
	StripOffsets        []uint64  `tiff:"field,tag=273"`
	SamplesPerPixel     uint16    `tiff:"field,tag=277"`
	RowsPerStrip        uint32    `tiff:"field,tag=278"`
	StripByteCounts     []uint64  `tiff:"field,tag=279"`
	PlanarConfiguration uint16    `tiff:"field,tag=284"`
	Predictor           uint16    `tiff:"field,tag=317"`
	TileWidth           uint16    `tiff:"field,tag=322"`
	TileLength          uint16    `tiff:"field,tag=323"`
	TileOffsets         []uint64  `tiff:"field,tag=324"`
	TileByteCounts      []uint64  `tiff:"field,tag=325"`
	SampleFormat        uint16    `tiff:"field,tag=339"`
	ModelPixelScaleTag  []float64 `tiff:"field,tag=33550"`
	ModelTiepointTag    []float64 `tiff:"field,tag=33922"`
	GeoKeyDirectoryTag  []uint16  `tiff:"field,tag=34735"`
	GeoDoubleParamsTag  []float64 `tiff:"field,tag=34736"`
	GeoASCIIParamsTag   string    `tiff:"field,tag=34737"`
	GDALNoData          string    `tiff:"field,tag=42113"`
}

// OpenGeoTIFF opens the GeoTIFF filename in fsys.
func OpenGeoTIFF(fsys fs.FS, filename string, options ...GeoTIFFOption) (*GeoTIFF, error) {
	var err error
	ok := false

	g := &GeoTIFF{
		blockCacheSizeBytes: 64 << 20, // 64MB.
	}
	for _, option := range options {
		option(g)
	}

	file, err := fsys.Open(filename)
	if err != nil {
		return nil, err
	}
	defer func() {
		if !ok {
			_ = file.Close()
		}
	}()
	f, isGeoTIFFFile := file.(geoTIFFFile)
	if !isGeoTIFFFile {
		return nil, errors.ErrUnsupported
	}
	g.file = f

	tiffTIFF, err := tiff.Parse(g.file, tiff.GetTagSpace("GeoTIFF"), nil)
	if err != nil {
		return nil, err
	}
	if len(tiffTIFF.IFDs()) != 1 {
		return nil, fmt.Errorf("%s: found %d IFDs, expected 1", filename, len(tiffTIFF.IFDs()))
	}

	var ifd geoTIFFIFD
	if err := tiff.UnmarshalIFD(tiffTIFF.IFDs()[0], &ifd); err != nil {
		return nil, err
	}
	if err := g.setLayout(&ifd); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	if err := g.setGeoreference(&ifd); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	blockBytes := g.blockWidth * g.blockLength * 4
	blockCacheCount := max(g.blockCacheSizeBytes/blockBytes, 1)
	g.blockSamplesCache, err = lru.New[TileCoord, []float32](blockCacheCount)
	if err != nil {
		return nil, err
	}

	ok = true
	return g, nil
}

func WithBlockCacheSize(blockCacheSizeBytes int) GeoTIFFOption {
	return func(g *GeoTIFF) {
		g.blockCacheSizeBytes = blockCacheSizeBytes
	}
}

// setLayout sets g's sample layout from ifd.
func (g *GeoTIFF) setLayout(ifd *geoTIFFIFD) error {
	if ifd.BitsPerSample != 32 ||
		ifd.SampleFormat != sampleFormatFloat ||
		ifd.SamplesPerPixel != 1 ||
		ifd.PlanarConfiguration > 1 ||
		ifd.Predictor > 1 {
		return errors.ErrUnsupported
	}
	switch ifd.Compression {
	case compressionNone, compressionLZW:
		g.compression = int(ifd.Compression)
	default:
		return errors.ErrUnsupported
	}

	g.imageWidth = int(ifd.ImageWidth)
	g.imageLength = int(ifd.ImageLength)
	if ifd.TileWidth != 0 {
		g.blockWidth = int(ifd.TileWidth)
		g.blockLength = int(ifd.TileLength)
		g.blockOffsets = ifd.TileOffsets
		g.blockByteCounts = ifd.TileByteCounts
	} else {
		g.blockWidth = g.imageWidth
		g.blockLength = int(ifd.RowsPerStrip)
		if g.blockLength == 0 || g.blockLength > g.imageLength {
			g.blockLength = g.imageLength
		}
		g.blockOffsets = ifd.StripOffsets
		g.blockByteCounts = ifd.StripByteCounts
	}
	if g.blockWidth <= 0 || g.blockLength <= 0 {
		return errors.New("invalid block size")
	}
	g.blocksAcross = (g.imageWidth + g.blockWidth - 1) / g.blockWidth
	g.blocksDown = (g.imageLength + g.blockLength - 1) / g.blockLength
	blocksPerImage := g.blocksAcross * g.blocksDown
	if len(g.blockOffsets) != blocksPerImage || len(g.blockByteCounts) != blocksPerImage {
		return errors.New("incorrect number of block byte counts or offsets")
	}

	if noData := strings.TrimRight(strings.TrimSpace(ifd.GDALNoData), "\x00"); noData != "" {
		value, err := strconv.ParseFloat(noData, 32)
		if err != nil {
			return fmt.Errorf("GDAL_NODATA: %w", err)
		}
		g.noData = float32(value)
		g.hasNoData = true
	}
	return nil
}

// setGeoreference sets g's affine transform and CRS from ifd. Only
// north-up rasters with integer pixel sizes and origins are supported.
func (g *GeoTIFF) setGeoreference(ifd *geoTIFFIFD) error {
	if len(ifd.ModelPixelScaleTag) != 3 || len(ifd.ModelTiepointTag) != 6 {
		return errors.ErrUnsupported
	}
	scaleX, scaleY, scaleZ := ifd.ModelPixelScaleTag[0], ifd.ModelPixelScaleTag[1], ifd.ModelPixelScaleTag[2]
	if scaleX != float64(int(scaleX)) || scaleY != float64(int(scaleY)) || scaleX <= 0 || scaleY <= 0 || scaleZ != 0 {
		return errors.ErrUnsupported
	}
	i, j, k := ifd.ModelTiepointTag[0], ifd.ModelTiepointTag[1], ifd.ModelTiepointTag[2]
	if i != 0 || j != 0 || k != 0 {
		return errors.ErrUnsupported
	}
	x, y, z := ifd.ModelTiepointTag[3], ifd.ModelTiepointTag[4], ifd.ModelTiepointTag[5]
	if x != float64(int(x)) || y != float64(int(y)) || z != 0 {
		return errors.ErrUnsupported
	}
	g.scaleX = int(scaleX)
	g.scaleY = int(scaleY)
	g.translateX = int(x)
	g.translateY = int(y)

	if len(ifd.GeoKeyDirectoryTag) != 0 {
		geoKeys, err := ParseGeoKeys(ifd.GeoKeyDirectoryTag, ifd.GeoDoubleParamsTag, []byte(ifd.GeoASCIIParamsTag))
		if err != nil {
			return err
		}
		g.epsg = geoKeys.EPSG()
	}
	return nil
}

func (g *GeoTIFF) Close() error {
	return g.file.Close()
}

// EPSG returns the EPSG code of g's CRS, or zero if it is unknown.
func (g *GeoTIFF) EPSG() int {
	return g.epsg
}

// Scale returns g's pixel size.
func (g *GeoTIFF) Scale() (int, int) {
	return g.scaleX, g.scaleY
}

// Extent returns the area covered by g.
func (g *GeoTIFF) Extent() Extent {
	return Extent{
		MinX: g.translateX,
		MinY: g.translateY - g.imageLength*g.scaleY,
		MaxX: g.translateX + g.imageWidth*g.scaleX,
		MaxY: g.translateY,
	}
}

// Samples returns the samples at coords. Missing samples are represented by
// NaNs.
func (g *GeoTIFF) Samples(ctx context.Context, coords []Coord) ([]float64, error) {
	samples := make([]float64, len(coords))

	// Group indexes by block coord.
	indexesByBlockCoord := make(map[TileCoord][]int)
	localCoords := make([]Coord, len(coords))
	for index, coord := range coords {
		localCoords[index] = g.localCoord(coord)
		blockCoord, ok := g.blockCoord(localCoords[index])
		if !ok {
			samples[index] = math.NaN()
			continue
		}
		indexesByBlockCoord[blockCoord] = append(indexesByBlockCoord[blockCoord], index)
	}

	// Populate samples one block at a time.
	for blockCoord, indexes := range indexesByBlockCoord {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		blockSamples, err := g.getBlockSamplesCached(blockCoord)
		if err != nil {
			return nil, err
		}
		for _, index := range indexes {
			samples[index] = g.blockSample(blockSamples, localCoords[index])
		}
	}

	return samples, nil
}

// localCoord returns the pixel coordinate of coord.
func (g *GeoTIFF) localCoord(coord Coord) Coord {
	return Coord{
		X: int(floorDiv(int64(coord.X-g.translateX), int64(g.scaleX))),
		Y: int(floorDiv(int64(g.translateY-coord.Y), int64(g.scaleY))),
	}
}

// blockCoord returns the block containing localCoord.
func (g *GeoTIFF) blockCoord(localCoord Coord) (TileCoord, bool) {
	if localCoord.X < 0 || g.imageWidth <= localCoord.X || localCoord.Y < 0 || g.imageLength <= localCoord.Y {
		return TileCoord{}, false
	}
	return TileCoord{
		C: localCoord.X / g.blockWidth,
		R: localCoord.Y / g.blockLength,
	}, true
}

// blockSampleCount returns the number of samples stored in the block at
// blockCoord. The last strip of a stripped image may be short.
func (g *GeoTIFF) blockSampleCount(blockCoord TileCoord) int {
	rows := g.blockLength
	if g.blockWidth == g.imageWidth {
		rows = min(rows, g.imageLength-blockCoord.R*g.blockLength)
	}
	return g.blockWidth * rows
}

// getBlockSamplesCached returns the samples of the block at blockCoord using
// g's cache.
func (g *GeoTIFF) getBlockSamplesCached(blockCoord TileCoord) ([]float32, error) {
	if blockSamples, ok := g.blockSamplesCache.Get(blockCoord); ok {
		blockCacheHits.Inc()
		return blockSamples, nil
	}
	blockCacheMisses.Inc()
	blockSamples, err := g.getBlockSamples(blockCoord)
	if err != nil {
		return nil, err
	}
	g.blockSamplesCache.Add(blockCoord, blockSamples)
	return blockSamples, nil
}

// getBlockSamples reads, decompresses, and decodes the block at blockCoord.
func (g *GeoTIFF) getBlockSamples(blockCoord TileCoord) ([]float32, error) {
	blockIndex := blockCoord.C + g.blocksAcross*blockCoord.R
	byteCount := g.blockByteCounts[blockIndex]
	compressedData := make([]byte, byteCount)
	switch n, err := g.file.ReadAt(compressedData, int64(g.blockOffsets[blockIndex])); {
	case n == int(byteCount):
	case err != nil:
		return nil, err
	default:
		return nil, errShortRead
	}

	blockData, err := g.decompressBlockData(compressedData, 4*g.blockSampleCount(blockCoord))
	if err != nil {
		return nil, err
	}
	return decodeFloat32s(blockData), nil
}

// decompressBlockData returns the first size bytes of compressedData after
// decompression.
func (g *GeoTIFF) decompressBlockData(compressedData []byte, size int) ([]byte, error) {
	if g.compression == compressionNone {
		if len(compressedData) < size {
			return nil, errShortRead
		}
		return compressedData[:size], nil
	}
	blockData := make([]byte, size)
	r := lzw.NewReader(bytes.NewReader(compressedData), lzw.MSB, 8)
	defer r.Close()
	if _, err := io.ReadFull(r, blockData); err != nil {
		return nil, err
	}
	return blockData, nil
}

// blockSample returns the sample from blockSamples at localCoord.
func (g *GeoTIFF) blockSample(blockSamples []float32, localCoord Coord) float64 {
	sample := blockSamples[localCoord.X%g.blockWidth+(localCoord.Y%g.blockLength)*g.blockWidth]
	if g.hasNoData && sample == g.noData {
		return math.NaN()
	}
	return float64(sample)
}

func decodeFloat32s(data []byte) []float32 {
	samples := make([]float32, len(data)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i : 4*(i+1)]))
	}
	return samples
}
