// Package captions aggregates subtitle tracks from content metadata
// and provider responses into one deduplicated list, and picks the
// default track to show.
package captions

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/mnflix/mnflix-cli/internal/api"
)

// SourceKind tells where a track came from
type SourceKind string

const (
	SourceEmbedded SourceKind = "embedded" // from content metadata
	SourceProvider SourceKind = "provider" // returned alongside a stream
)

// Track is one aggregated caption track
type Track struct {
	ID           string
	Language     string // canonical code or "und"
	URL          string
	DisplayLabel string
	Source       SourceKind
}

// mongolianHints are label substrings that identify a Mongolian track
// when the language tag itself is unusable.
var mongolianHints = []string{"монгол", "mongol", "mgl"}

// Aggregate merges embedded and provider subtitle entries. Embedded
// tracks come first and win URL ties. Entries without a resolvable URL
// are dropped; relative URLs are rewritten against baseURL.
func Aggregate(embedded, provider []api.RawSubtitle, baseURL string) []Track {
	var tracks []Track
	seen := make(map[string]bool)

	add := func(entries []api.RawSubtitle, source SourceKind) {
		for i, entry := range entries {
			resolved := absolutize(entry.ResolvedURL(), baseURL)
			if resolved == "" {
				continue
			}
			if seen[resolved] {
				continue
			}
			seen[resolved] = true

			label := entry.Label
			if label == "" {
				label = entry.ResolvedLanguage()
			}

			tracks = append(tracks, Track{
				ID:           trackID(source, i, label),
				Language:     NormalizeLanguage(entry.ResolvedLanguage()),
				URL:          resolved,
				DisplayLabel: label,
				Source:       source,
			})
		}
	}

	add(embedded, SourceEmbedded)
	add(provider, SourceProvider)

	return tracks
}

// trackID is stable across recomputation within one session so a
// cached selection still resolves after a reload.
func trackID(source SourceKind, index int, label string) string {
	slug := strings.ToLower(strings.TrimSpace(label))
	slug = strings.ReplaceAll(slug, " ", "-")
	return fmt.Sprintf("%s-%d-%s", source, index, slug)
}

// NormalizeLanguage maps an upstream language tag to the canonical
// set {mn, en, ko, ja} or "und" when unrecognized. Region suffixes
// are stripped first ("en-US" normalizes like "en").
func NormalizeLanguage(raw string) string {
	lang := strings.ToLower(strings.TrimSpace(raw))
	if idx := strings.IndexAny(lang, "-_"); idx >= 0 {
		lang = lang[:idx]
	}

	switch lang {
	case "mn", "mon", "mongol", "mongolian":
		return "mn"
	case "en", "eng", "english":
		return "en"
	case "ko", "kor", "korean":
		return "ko"
	case "ja", "jpn", "jap", "japanese":
		return "ja"
	}
	for _, hint := range mongolianHints {
		if strings.Contains(lang, hint) {
			return "mn"
		}
	}
	return "und"
}

// DefaultTrack picks the caption to enable by default. A stored
// language preference wins when a matching track exists; otherwise the
// policy is Mongolian-first: an "mn" track, then a track whose label
// carries a Mongolian hint, then the first track.
func DefaultTrack(tracks []Track, preferred string) *Track {
	if len(tracks) == 0 {
		return nil
	}

	if preferred != "" {
		for i := range tracks {
			if tracks[i].Language == preferred {
				return &tracks[i]
			}
		}
	}

	for i := range tracks {
		if tracks[i].Language == "mn" {
			return &tracks[i]
		}
	}
	for i := range tracks {
		label := strings.ToLower(tracks[i].DisplayLabel)
		for _, hint := range mongolianHints {
			if strings.Contains(label, hint) {
				return &tracks[i]
			}
		}
	}
	return &tracks[0]
}

// FindByID returns the track with the given id, or nil
func FindByID(tracks []Track, id string) *Track {
	for i := range tracks {
		if tracks[i].ID == id {
			return &tracks[i]
		}
	}
	return nil
}

// absolutize rewrites relative subtitle URLs against the API base.
// Unparseable URLs resolve to "" and the entry gets dropped upstream.
func absolutize(raw, baseURL string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if u.IsAbs() {
		return raw
	}
	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return ""
	}
	return base.ResolveReference(u).String()
}
