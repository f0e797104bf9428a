package shadows

import (
	"errors"

	"github.com/twpayne/go-proj/v10"
)

const (
	sourceCRS = "epsg:4326" // WGS84.
	targetCRS = "epsg:3067" // ETRS89 / TM35FIN(E,N).
)

var errNonFinite = errors.New("non-finite result")

// A Projector projects WGS84 coordinates to TM35FIN.
type Projector interface {
	Transform(coord GeodeticCoord) (PlanarCoord, error)
}

// A Transformer projects WGS84 coordinates to TM35FIN using PROJ.
type Transformer struct {
	pj *proj.PJ
}

// NewTransformer returns a new Transformer.
func NewTransformer() (*Transformer, error) {
	pj, err := proj.NewCRSToCRS(sourceCRS, targetCRS, nil)
	if err != nil {
		return nil, err
	}
	return &Transformer{
		pj: pj,
	}, nil
}

// Transform projects coord. It does not check coord against ValidDomain; any
// failure of the projection itself is returned as a ProjectionFailure.
func (t *Transformer) Transform(coord GeodeticCoord) (PlanarCoord, error) {
	// EPSG:4326 has latitude first, EPSG:3067 has easting first.
	result, err := t.pj.Forward(proj.NewCoord(coord.Lat, coord.Lon, 0, 0))
	if err != nil {
		return PlanarCoord{}, &Error{Kind: ProjectionFailure, Err: err}
	}
	planar := PlanarCoord{
		X: result.X(),
		Y: result.Y(),
	}
	if !planar.finite() {
		return PlanarCoord{}, &Error{Kind: ProjectionFailure, Err: errNonFinite}
	}
	return planar, nil
}
