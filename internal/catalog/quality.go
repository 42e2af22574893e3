package catalog

import "strings"

// Quality represents video quality levels
type Quality string

const (
	QualityUnknown Quality = "unknown"
	Quality360     Quality = "360"
	Quality480     Quality = "480"
	Quality720     Quality = "720"
	Quality1080    Quality = "1080"
	Quality4K      Quality = "4k"
)

// MapQuality normalizes an upstream quality label. Providers send
// anything from "1080p" to "FHD 1080" to "4K UHD".
func MapQuality(raw string) Quality {
	q := strings.ToLower(raw)

	switch {
	case strings.Contains(q, "4k"), strings.Contains(q, "2160"):
		return Quality4K
	case strings.Contains(q, "1080"):
		return Quality1080
	case strings.Contains(q, "720"):
		return Quality720
	case strings.Contains(q, "480"):
		return Quality480
	case strings.Contains(q, "360"):
		return Quality360
	}
	return QualityUnknown
}

// String returns the string representation of Quality
func (q Quality) String() string {
	return string(q)
}
