package variant

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// ErrInput marks source bytes that do not decode to a raster image. Not
// retryable; callers skip the variant and move on.
var ErrInput = errors.New("variant: undecodable image input")

// Generator turns source image bytes into encoded variant bytes. It is pure:
// no I/O, safe for concurrent use.
type Generator struct {
	// Background is composited under any transparent pixels before JPEG
	// encoding. Defaults to white.
	Background color.Color
}

// NewGenerator returns a Generator with a white flatten background.
func NewGenerator() Generator {
	return Generator{Background: color.White}
}

// Generate decodes data, flattens transparency, downscales the longest edge
// to spec.MaxDimension (never upscaling, aspect ratio preserved) and encodes
// JPEG at spec.Quality.
func (g Generator) Generate(data []byte, spec Spec) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInput, err)
	}

	img = g.flatten(img)

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	nw, nh := ResizeDimensions(w, h, spec.MaxDimension)
	if nw < w || nh < h {
		img = imaging.Resize(img, nw, nh, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(spec.Quality)); err != nil {
		return nil, fmt.Errorf("encode %s: %w", spec.Name, err)
	}
	return buf.Bytes(), nil
}

// flatten composites transparent or partially transparent images over the
// configured background. Already-opaque images pass through untouched.
func (g Generator) flatten(img image.Image) image.Image {
	if op, ok := img.(interface{ Opaque() bool }); ok && op.Opaque() {
		return img
	}
	bg := g.Background
	if bg == nil {
		bg = color.White
	}
	canvas := imaging.New(img.Bounds().Dx(), img.Bounds().Dy(), bg)
	return imaging.Overlay(canvas, img, image.Pt(0, 0), 1.0)
}

// ResizeDimensions computes target dimensions for a longest-edge bound. The
// scale factor is min(1, maxDim/longest); both edges share it, the shorter
// edge rounding to the nearest pixel. Sources already within the bound keep
// their dimensions.
func ResizeDimensions(width, height, maxDim int) (int, int) {
	if width <= 0 || height <= 0 || maxDim <= 0 {
		return width, height
	}
	longest := width
	if height > longest {
		longest = height
	}
	if longest <= maxDim {
		return width, height
	}
	scale := float64(maxDim) / float64(longest)
	nw := int(math.Round(float64(width) * scale))
	nh := int(math.Round(float64(height) * scale))
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh
}
