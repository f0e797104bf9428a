package shadows

import (
	"context"
	"fmt"
	"image"
	"io/fs"
)

// A Service answers the map viewer's two questions: which tile contains a
// coordinate, and what the shadows on a tile look like.
type Service struct {
	projector Projector
	grid      TileGrid
	store     *HeightmapStore
	renderer  *Renderer
}

// A ServiceOption sets an option on a Service.
type ServiceOption func(*Service)

// NewService returns a new Service reading heightmaps from fsys. Unless
// WithProjector is given, it uses a PROJ-backed Transformer.
func NewService(fsys fs.FS, options ...ServiceOption) (*Service, error) {
	s := &Service{
		grid: DefaultTileGrid,
	}
	for _, option := range options {
		option(s)
	}
	if err := s.grid.Validate(); err != nil {
		return nil, err
	}
	if s.projector == nil {
		transformer, err := NewTransformer()
		if err != nil {
			return nil, err
		}
		s.projector = transformer
	}
	if s.renderer == nil {
		s.renderer = NewRenderer()
	}
	s.store = NewHeightmapStore(fsys, s.grid)
	return s, nil
}

func WithProjector(projector Projector) ServiceOption {
	return func(s *Service) {
		s.projector = projector
	}
}

func WithRenderer(renderer *Renderer) ServiceOption {
	return func(s *Service) {
		s.renderer = renderer
	}
}

func WithServiceTileGrid(grid TileGrid) ServiceOption {
	return func(s *Service) {
		s.grid = grid
	}
}

// TileInformation returns the tile containing coord and the position of coord
// within it.
func (s *Service) TileInformation(coord GeodeticCoord) (TileInformation, error) {
	if !coord.Valid() {
		return TileInformation{}, &Error{
			Kind: InvalidInputDomain,
			Err:  fmt.Errorf("longitude %g, latitude %g", coord.Lon, coord.Lat),
		}
	}
	planar, err := s.projector.Transform(coord)
	if err != nil {
		return TileInformation{}, err
	}
	tile, offset := s.grid.Locate(planar)
	return TileInformation{
		Longitude:  tile.Lon,
		Latitude:   tile.Lat,
		TileHeight: s.grid.TileSize,
		TileWidth:  s.grid.TileSize,
		X:          offset.X,
		Y:          offset.Y,
	}, nil
}

// Shadows returns the shadow mask of tile.
func (s *Service) Shadows(ctx context.Context, tile TileAddress) (*image.NRGBA, error) {
	if !s.grid.Aligned(tile) {
		return nil, newTileError(InvalidInputDomain, tile, fmt.Errorf("not a multiple of %d", s.grid.TileSize))
	}
	heightmap, err := s.store.Load(ctx, tile)
	if err != nil {
		return nil, err
	}
	return s.renderer.Render(heightmap), nil
}

// ShadowsDataURI returns the shadow mask of tile as a PNG data URI.
func (s *Service) ShadowsDataURI(ctx context.Context, tile TileAddress) (string, error) {
	mask, err := s.Shadows(ctx, tile)
	if err != nil {
		return "", err
	}
	return EncodeDataURI(mask)
}
