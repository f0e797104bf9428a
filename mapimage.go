package shadows

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/image/draw"
)

// MapImageExt is the extension of map image tiles.
const MapImageExt = ".png"

// A WorldFile is the georeference of a raster image, as stored in .pgw files.
type WorldFile struct {
	PixelSizeX float64
	RotationY  float64
	RotationX  float64
	PixelSizeY float64 // Negative for north-up images.
	CenterX    float64 // X coordinate of the center of the upper-left pixel.
	CenterY    float64 // Y coordinate of the center of the upper-left pixel.
}

// ParseWorldFile parses the six lines of a world file.
func ParseWorldFile(r io.Reader) (WorldFile, error) {
	var values []float64
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		value, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return WorldFile{}, err
		}
		values = append(values, value)
	}
	if err := scanner.Err(); err != nil {
		return WorldFile{}, err
	}
	if len(values) != 6 {
		return WorldFile{}, fmt.Errorf("found %d values, expected 6", len(values))
	}
	return WorldFile{
		PixelSizeX: values[0],
		RotationY:  values[1],
		RotationX:  values[2],
		PixelSizeY: values[3],
		CenterX:    values[4],
		CenterY:    values[5],
	}, nil
}

// pixelSize returns w's pixel size. Only north-up images with square,
// integer-sized pixels are supported.
func (w WorldFile) pixelSize() (int, error) {
	if w.RotationX != 0 || w.RotationY != 0 ||
		w.PixelSizeX <= 0 || w.PixelSizeY != -w.PixelSizeX ||
		w.PixelSizeX != math.Trunc(w.PixelSizeX) {
		return 0, errors.ErrUnsupported
	}
	return int(w.PixelSizeX), nil
}

// UpperLeft returns the coordinates of the upper-left corner of the image.
func (w WorldFile) UpperLeft() (int, int) {
	return int(math.Round(w.CenterX - w.PixelSizeX/2)), int(math.Round(w.CenterY - w.PixelSizeY/2))
}

// SliceMapImage writes a PNG for every whole tile covered by img, which is
// georeferenced by world. Each PNG is Resolution pixels square and is named
// after its tile's upper-left corner with MapImageExt appended.
func (s *Slicer) SliceMapImage(ctx context.Context, img image.Image, world WorldFile) (SliceStats, error) {
	pixelSize, err := world.pixelSize()
	if err != nil {
		return SliceStats{}, err
	}
	if s.grid.TileSize%pixelSize != 0 {
		return SliceStats{}, fmt.Errorf("pixel size %d does not divide tile size %d", pixelSize, s.grid.TileSize)
	}

	bounds := img.Bounds()
	minX, maxY := world.UpperLeft()
	extent := Extent{
		MinX: minX,
		MinY: maxY - bounds.Dy()*pixelSize,
		MaxX: minX + bounds.Dx()*pixelSize,
		MaxY: maxY,
	}
	tilePixels := s.grid.TileSize / pixelSize

	return s.forEachTile(ctx, extent, func(ctx context.Context, corner TileAddress) (bool, error) {
		origin := image.Point{
			X: (int(corner.Lon) - minX) / pixelSize,
			Y: (maxY - int(corner.Lat)) / pixelSize,
		}.Add(bounds.Min)
		sr := image.Rectangle{Min: origin, Max: origin.Add(image.Pt(tilePixels, tilePixels))}
		tile := image.NewNRGBA(image.Rect(0, 0, s.grid.Resolution, s.grid.Resolution))
		if tilePixels == s.grid.Resolution {
			draw.Copy(tile, image.Point{}, img, sr, draw.Src, nil)
		} else {
			draw.ApproxBiLinear.Scale(tile, tile.Bounds(), img, sr, draw.Src, nil)
		}

		var buffer bytes.Buffer
		if err := EncodePNG(&buffer, tile); err != nil {
			return false, err
		}
		filename := s.tileFilenameFunc(corner) + MapImageExt
		if err := afero.WriteFile(s.dst, filename, buffer.Bytes(), 0o644); err != nil {
			return false, fmt.Errorf("%s: %w", filename, err)
		}
		return true, nil
	})
}

// PruneUnpaired removes the map images in mapImages that have no heightmap
// in heightmaps, and the heightmaps that have no map image. It returns the
// number of files removed.
func PruneUnpaired(mapImages, heightmaps afero.Fs) (int, error) {
	mapImageNames, err := fileNames(mapImages)
	if err != nil {
		return 0, err
	}
	heightmapNames, err := fileNames(heightmaps)
	if err != nil {
		return 0, err
	}

	removed := 0
	for name := range mapImageNames {
		tile, ok := strings.CutSuffix(name, MapImageExt)
		if ok && heightmapNames[tile] {
			continue
		}
		if err := mapImages.Remove(name); err != nil {
			return removed, err
		}
		removed++
	}
	for name := range heightmapNames {
		if mapImageNames[name+MapImageExt] {
			continue
		}
		if err := heightmaps.Remove(name); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// fileNames returns the names of the regular files in the root of fsys.
func fileNames(fsys afero.Fs) (map[string]bool, error) {
	fileInfos, err := afero.ReadDir(fsys, "/")
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool, len(fileInfos))
	for _, fileInfo := range fileInfos {
		if fileInfo.Mode().IsRegular() {
			names[fileInfo.Name()] = true
		}
	}
	return names, nil
}
