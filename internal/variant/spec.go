// Package variant derives web-delivery renditions of camera-trap photographs.
// A Spec names one rendition; Generator applies a Spec to source image bytes.
package variant

// Variant names form a closed set. The dashboard and the persisted reference
// columns key on these exact strings.
const (
	NameThumbnail = "thumbnail"
	NamePreview   = "preview"
	NameFull      = "full"
)

// Encoded output is always JPEG.
const (
	Extension   = "jpg"
	ContentType = "image/jpeg"
)

// Spec is one named rendition configuration. MaxDimension bounds the longest
// edge in pixels; Quality is the JPEG encode quality (1-100).
type Spec struct {
	Name         string
	MaxDimension int
	Quality      int
}

// DefaultSpecs returns the three standard renditions in delivery order.
func DefaultSpecs() []Spec {
	return []Spec{
		{Name: NameThumbnail, MaxDimension: 200, Quality: 80},
		{Name: NamePreview, MaxDimension: 800, Quality: 85},
		{Name: NameFull, MaxDimension: 1920, Quality: 90},
	}
}

// Names returns the closed name set in delivery order.
func Names() []string {
	return []string{NameThumbnail, NamePreview, NameFull}
}
