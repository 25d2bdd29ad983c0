package variant

// SizeStat reports the encoded size of one variant relative to its source.
type SizeStat struct {
	Name             string  `json:"name"`
	SizeBytes        int     `json:"size_bytes"`
	ReductionPercent float64 `json:"reduction_percent"`
}

// Stats summarizes compression results for logging and operational output.
// Entries follow the iteration order of sizes' keys as passed in names.
func Stats(originalSize int, names []string, sizes map[string]int) []SizeStat {
	out := make([]SizeStat, 0, len(sizes))
	for _, name := range names {
		n, ok := sizes[name]
		if !ok {
			continue
		}
		var reduction float64
		if originalSize > 0 {
			reduction = (1 - float64(n)/float64(originalSize)) * 100
		}
		out = append(out, SizeStat{Name: name, SizeBytes: n, ReductionPercent: reduction})
	}
	return out
}
