package shadows

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"io"
)

const (
	// DefaultThreshold is the elevation above which terrain is shadowed.
	DefaultThreshold = 50

	// DefaultShadowAlpha is the opacity of shadowed pixels.
	DefaultShadowAlpha = 120
)

const dataURIPrefix = "data:image/png;base64,"

// A Renderer renders heightmaps as shadow masks.
type Renderer struct {
	threshold int
	shadow    color.NRGBA
}

// A RendererOption sets an option on a Renderer.
type RendererOption func(*Renderer)

// NewRenderer returns a new Renderer.
func NewRenderer(options ...RendererOption) *Renderer {
	r := &Renderer{
		threshold: DefaultThreshold,
		shadow:    color.NRGBA{A: DefaultShadowAlpha},
	}
	for _, option := range options {
		option(r)
	}
	return r
}

func WithThreshold(threshold int) RendererOption {
	return func(r *Renderer) {
		r.threshold = threshold
	}
}

func WithShadowAlpha(alpha uint8) RendererOption {
	return func(r *Renderer) {
		r.shadow = color.NRGBA{A: alpha}
	}
}

// Render returns a mask with the same dimensions as heightmap. Samples
// strictly above the threshold are translucent black, all others are fully
// transparent. Row i of heightmap is row i of the image.
func (r *Renderer) Render(heightmap *Heightmap) *image.NRGBA {
	size := heightmap.Size()
	mask := image.NewNRGBA(image.Rect(0, 0, size, size))
	for row := range size {
		for col := range size {
			if heightmap.At(row, col) > r.threshold {
				mask.SetNRGBA(col, row, r.shadow)
			}
		}
	}
	return mask
}

// EncodePNG writes img to w as a PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}

// EncodeDataURI returns img as a base64 PNG data URI.
func EncodeDataURI(img image.Image) (string, error) {
	var buffer bytes.Buffer
	if err := EncodePNG(&buffer, img); err != nil {
		return "", err
	}
	return dataURIPrefix + base64.StdEncoding.EncodeToString(buffer.Bytes()), nil
}
