package variant

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"testing"
)

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func solidJPEG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return encodeJPEG(t, img)
}

func decodeDims(t *testing.T, data []byte) (int, int) {
	t.Helper()
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	b := img.Bounds()
	return b.Dx(), b.Dy()
}

func TestGenerate_DownscalesLongestEdge(t *testing.T) {
	src := solidJPEG(t, 4000, 3000, color.NRGBA{R: 90, G: 120, B: 60, A: 255})
	gen := NewGenerator()
	cases := []struct {
		spec       Spec
		wantW      int
		wantH      int
	}{
		{Spec{Name: NameThumbnail, MaxDimension: 200, Quality: 80}, 200, 150},
		{Spec{Name: NamePreview, MaxDimension: 800, Quality: 85}, 800, 600},
		{Spec{Name: NameFull, MaxDimension: 1920, Quality: 90}, 1920, 1440},
	}
	for _, tc := range cases {
		out, err := gen.Generate(src, tc.spec)
		if err != nil {
			t.Fatalf("%s: %v", tc.spec.Name, err)
		}
		w, h := decodeDims(t, out)
		if w != tc.wantW || h != tc.wantH {
			t.Fatalf("%s: got %dx%d want %dx%d", tc.spec.Name, w, h, tc.wantW, tc.wantH)
		}
	}
}

func TestGenerate_NeverUpscales(t *testing.T) {
	src := solidJPEG(t, 160, 120, color.NRGBA{R: 10, G: 10, B: 10, A: 255})
	out, err := NewGenerator().Generate(src, Spec{Name: NameThumbnail, MaxDimension: 200, Quality: 80})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if w, h := decodeDims(t, out); w != 160 || h != 120 {
		t.Fatalf("got %dx%d, want original 160x120", w, h)
	}
}

func TestGenerate_PreservesAspectWithinOnePixel(t *testing.T) {
	src := solidJPEG(t, 1013, 771, color.NRGBA{R: 40, G: 80, B: 160, A: 255})
	out, err := NewGenerator().Generate(src, Spec{Name: NamePreview, MaxDimension: 800, Quality: 85})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	w, h := decodeDims(t, out)
	if w != 800 {
		t.Fatalf("longest edge = %d, want 800", w)
	}
	// 771 * 800/1013 = 608.9...
	if h < 608 || h > 610 {
		t.Fatalf("short edge = %d, want 609 within one pixel", h)
	}
}

func TestGenerate_FlattensAlphaOntoWhite(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 100, 100))
	// fully transparent canvas with an opaque red center block
	draw.Draw(img, image.Rect(40, 40, 60, 60), image.NewUniform(color.NRGBA{R: 255, A: 255}), image.Point{}, draw.Src)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png fixture: %v", err)
	}

	out, err := NewGenerator().Generate(buf.Bytes(), Spec{Name: NameFull, MaxDimension: 1920, Quality: 90})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	decoded, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	r, g, b, a := decoded.At(5, 5).RGBA()
	if a != 0xffff {
		t.Fatalf("output pixel not opaque: a=%d", a)
	}
	if r>>8 < 240 || g>>8 < 240 || b>>8 < 240 {
		t.Fatalf("transparent region not flattened to white: rgb=(%d,%d,%d)", r>>8, g>>8, b>>8)
	}
	cr, _, _, _ := decoded.At(50, 50).RGBA()
	if cr>>8 < 200 {
		t.Fatalf("opaque region lost: r=%d", cr>>8)
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	src := solidJPEG(t, 640, 480, color.NRGBA{R: 77, G: 77, B: 77, A: 255})
	gen := NewGenerator()
	spec := Spec{Name: NamePreview, MaxDimension: 320, Quality: 85}
	a, err := gen.Generate(src, spec)
	if err != nil {
		t.Fatalf("first generate: %v", err)
	}
	b, err := gen.Generate(src, spec)
	if err != nil {
		t.Fatalf("second generate: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("same input and spec produced different bytes")
	}
}

func TestGenerate_UndecodableInput(t *testing.T) {
	_, err := NewGenerator().Generate([]byte("not an image"), Spec{Name: NameThumbnail, MaxDimension: 200, Quality: 80})
	if !errors.Is(err, ErrInput) {
		t.Fatalf("got %v, want ErrInput", err)
	}
}

func TestResizeDimensions(t *testing.T) {
	cases := []struct {
		w, h, max    int
		wantW, wantH int
	}{
		{4000, 3000, 200, 200, 150},
		{3000, 4000, 200, 150, 200},
		{4000, 3000, 1920, 1920, 1440},
		{100, 100, 200, 100, 100}, // already within bound
		{200, 200, 200, 200, 200}, // exactly at bound
		{1013, 771, 800, 800, 609},
		{5000, 1, 200, 200, 1}, // short edge clamps to 1px
	}
	for _, tc := range cases {
		w, h := ResizeDimensions(tc.w, tc.h, tc.max)
		if w != tc.wantW || h != tc.wantH {
			t.Fatalf("ResizeDimensions(%d,%d,%d) = %dx%d, want %dx%d", tc.w, tc.h, tc.max, w, h, tc.wantW, tc.wantH)
		}
	}
}

func TestDefaultSpecs(t *testing.T) {
	specs := DefaultSpecs()
	if len(specs) != 3 {
		t.Fatalf("expected 3 specs, got %d", len(specs))
	}
	want := map[string][2]int{
		NameThumbnail: {200, 80},
		NamePreview:   {800, 85},
		NameFull:      {1920, 90},
	}
	for _, s := range specs {
		cfg, ok := want[s.Name]
		if !ok {
			t.Fatalf("unexpected spec %q", s.Name)
		}
		if s.MaxDimension != cfg[0] || s.Quality != cfg[1] {
			t.Fatalf("%s: got %d/%d want %d/%d", s.Name, s.MaxDimension, s.Quality, cfg[0], cfg[1])
		}
	}
}
