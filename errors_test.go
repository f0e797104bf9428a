package shadows_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/twpayne/go-shadows"
)

func TestErrorKind_String(t *testing.T) {
	assert.Equal(t, "artifact not found", shadows.ArtifactNotFound.String())
	assert.Equal(t, "ErrorKind(0)", shadows.ErrorKind(0).String())
}

func TestError(t *testing.T) {
	errEOF := errors.New("unexpected EOF")
	err := fmt.Errorf("wrapped: %w", &shadows.Error{
		Kind: shadows.DecodeFailure,
		Tile: &shadows.TileAddress{Lon: 240000, Lat: 6710800},
		Err:  errEOF,
	})

	assert.Equal(t, "wrapped: decode failure: tile 240000x6710800: unexpected EOF", err.Error())
	assert.IsError(t, err, shadows.ErrDecodeFailure)
	assert.IsError(t, err, errEOF)
	assert.False(t, errors.Is(err, shadows.ErrArtifactNotFound))
	assert.Equal(t, shadows.DecodeFailure, shadows.KindOf(err))

	var shadowsErr *shadows.Error
	assert.True(t, errors.As(err, &shadowsErr))
	assert.Equal(t, shadows.TileAddress{Lon: 240000, Lat: 6710800}, *shadowsErr.Tile)
}

func TestKindOf(t *testing.T) {
	for _, tc := range []struct {
		name     string
		err      error
		expected shadows.ErrorKind
	}{
		{
			name: "nil",
		},
		{
			name: "unclassified",
			err:  errors.New("disk on fire"),
		},
		{
			name:     "sentinel",
			err:      shadows.ErrProjectionFailure,
			expected: shadows.ProjectionFailure,
		},
		{
			name:     "no_tile",
			err:      &shadows.Error{Kind: shadows.InvalidInputDomain},
			expected: shadows.InvalidInputDomain,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, shadows.KindOf(tc.err))
		})
	}
}
