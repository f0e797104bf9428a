package shadows

import (
	"errors"
	"fmt"
)

// An ErrorKind classifies the failures of the shadows pipelines.
type ErrorKind int

const (
	InvalidInputDomain ErrorKind = iota + 1
	ProjectionFailure
	ArtifactNotFound
	DecodeFailure
	DimensionMismatch
)

var errorKindStrings = map[ErrorKind]string{
	InvalidInputDomain: "invalid input domain",
	ProjectionFailure:  "projection failure",
	ArtifactNotFound:   "artifact not found",
	DecodeFailure:      "decode failure",
	DimensionMismatch:  "dimension mismatch",
}

func (k ErrorKind) String() string {
	if s, ok := errorKindStrings[k]; ok {
		return s
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Sentinels for use with errors.Is. They match any *Error of the same kind.
var (
	ErrInvalidInputDomain = &Error{Kind: InvalidInputDomain}
	ErrProjectionFailure  = &Error{Kind: ProjectionFailure}
	ErrArtifactNotFound   = &Error{Kind: ArtifactNotFound}
	ErrDecodeFailure      = &Error{Kind: DecodeFailure}
	ErrDimensionMismatch  = &Error{Kind: DimensionMismatch}
)

// An Error is a classified failure.
type Error struct {
	Kind ErrorKind
	Tile *TileAddress
	Err  error
}

func newTileError(kind ErrorKind, tile TileAddress, err error) *Error {
	return &Error{
		Kind: kind,
		Tile: &tile,
		Err:  err,
	}
}

func (e *Error) Error() string {
	s := e.Kind.String()
	if e.Tile != nil {
		s += fmt.Sprintf(": tile %dx%d", e.Tile.Lon, e.Tile.Lat)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or zero if there
// is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
