package compose

import (
	"fmt"
	"strconv"

	"foley/internal/textutil"
)

// Asset is one synthesized clip for a tag.
type Asset struct {
	Tag             string  `json:"tag"`
	Path            string  `json:"path"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// AssetName returns the file name for a clip: {label}_{sample}_{duration}s.wav.
// The label is sanitized so the name stays a single path element.
func AssetName(label string, sample int, duration float64) string {
	return fmt.Sprintf("%s_%d_%ss.wav", textutil.SanitizeFileName(label), sample, strconv.FormatFloat(duration, 'f', -1, 64))
}
