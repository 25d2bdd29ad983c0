package pipeline

import (
	"path"
	"strings"

	"trailvision/internal/variant"
)

// derivedPrefix is the sub-directory holding generated renditions, a sibling
// of the source object.
const derivedPrefix = "optimized"

// DerivedKey returns the deterministic object key for one rendition of a
// source. `a/b/img.jpg` + `thumbnail` -> `a/b/optimized/img_thumbnail.jpg`.
// The same (source, variant) pair always maps to the same key, so
// reprocessing overwrites in place.
func DerivedKey(sourceKey, variantName string) string {
	dir := path.Dir(sourceKey)
	base := path.Base(sourceKey)
	stem := strings.TrimSuffix(base, path.Ext(base))
	name := stem + "_" + variantName + "." + variant.Extension
	if dir == "." || dir == "/" {
		return path.Join(derivedPrefix, name)
	}
	return path.Join(dir, derivedPrefix, name)
}
