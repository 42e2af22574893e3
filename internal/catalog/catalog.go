// Package catalog fetches and normalizes the per-provider stream
// catalog for a content item from the streaming aggregation service.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mnflix/mnflix-cli/internal/api"
)

// ErrNoSources indicates the aggregation service answered successfully
// but returned zero streams. A valid, unplayable result; distinct from
// a fetch failure.
var ErrNoSources = errors.New("no streaming sources available")

// FetchError wraps a network or backend failure during a catalog fetch
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("catalog fetch failed: %v", e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Kind classifies how a stream is delivered
type Kind string

const (
	KindHLS     Kind = "hls"
	KindFile    Kind = "file"
	KindUnknown Kind = ""
)

// StreamCandidate is a single playable stream. Immutable once fetched.
type StreamCandidate struct {
	URL      string
	Kind     Kind
	Quality  Quality
	Provider string
	Intro    *api.Marker
	Outro    *api.Marker
}

// ProviderGroup holds all candidates of one provider. Qualities is the
// set of distinct qualities among the streams, order-preserved by
// first occurrence.
type ProviderGroup struct {
	Provider  string
	Streams   []StreamCandidate
	Qualities []Quality
}

// HasQuality reports whether the group contains the given quality
func (g *ProviderGroup) HasQuality(q Quality) bool {
	for _, have := range g.Qualities {
		if have == q {
			return true
		}
	}
	return false
}

// FirstWithQuality returns the group's first stream of the given
// quality, or nil.
func (g *ProviderGroup) FirstWithQuality(q Quality) *StreamCandidate {
	for i := range g.Streams {
		if g.Streams[i].Quality == q {
			return &g.Streams[i]
		}
	}
	return nil
}

// ProviderCatalog is the ordered list of provider groups for one
// content item. Each provider appears in at most one group.
type ProviderCatalog struct {
	Groups []ProviderGroup
}

// Group returns the group for the named provider, or nil
func (c *ProviderCatalog) Group(provider string) *ProviderGroup {
	for i := range c.Groups {
		if c.Groups[i].Provider == provider {
			return &c.Groups[i]
		}
	}
	return nil
}

// Providers returns the provider names in catalog order
func (c *ProviderCatalog) Providers() []string {
	names := make([]string, len(c.Groups))
	for i := range c.Groups {
		names[i] = c.Groups[i].Provider
	}
	return names
}

// Empty reports whether the catalog has no groups
func (c *ProviderCatalog) Empty() bool {
	return c == nil || len(c.Groups) == 0
}

// StreamSource is the aggregation-service surface the fetcher needs
type StreamSource interface {
	GetMovieStreams(ctx context.Context, contentID string) (*api.StreamsResponse, error)
	GetSeriesStreams(ctx context.Context, contentID string, hints api.SeriesHints) (*api.StreamsResponse, error)
}

// Fetcher retrieves and normalizes stream catalogs
type Fetcher struct {
	source   StreamSource
	priority []string
	logger   *slog.Logger
}

// NewFetcher creates a Fetcher ordering providers by the given
// priority list.
func NewFetcher(source StreamSource, priority []string, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{source: source, priority: priority, logger: logger}
}

// FetchCatalog retrieves the provider catalog for a content item.
// hints is nil for movies. Every call produces a fresh catalog value;
// previously returned catalogs are never mutated.
func (f *Fetcher) FetchCatalog(ctx context.Context, contentID string, hints *api.SeriesHints) (*ProviderCatalog, []api.RawSubtitle, error) {
	var (
		resp *api.StreamsResponse
		err  error
	)
	if hints != nil {
		resp, err = f.source.GetSeriesStreams(ctx, contentID, *hints)
	} else {
		resp, err = f.source.GetMovieStreams(ctx, contentID)
	}
	if err != nil {
		return nil, nil, &FetchError{Err: err}
	}

	if len(resp.Streams) == 0 {
		return nil, nil, ErrNoSources
	}

	cat := f.buildCatalog(resp.Streams)
	f.logger.Debug("fetched stream catalog",
		"content", contentID,
		"streams", len(resp.Streams),
		"providers", cat.Providers())

	return cat, collectSubtitles(resp), nil
}

// buildCatalog normalizes raw streams and groups them per provider,
// ordered by the priority list first, then discovery order.
func (f *Fetcher) buildCatalog(raw []api.RawStream) *ProviderCatalog {
	groups := make(map[string]*ProviderGroup)
	var discovery []string

	for _, rs := range raw {
		if rs.File == "" {
			continue
		}
		provider := strings.ToLower(strings.TrimSpace(rs.Provider))
		if provider == "" {
			continue
		}

		candidate := StreamCandidate{
			URL:      rs.File,
			Kind:     classifyKind(rs),
			Quality:  MapQuality(rs.Quality),
			Provider: provider,
			Intro:    rs.Intro,
			Outro:    rs.Outro,
		}

		group, ok := groups[provider]
		if !ok {
			group = &ProviderGroup{Provider: provider}
			groups[provider] = group
			discovery = append(discovery, provider)
		}
		group.Streams = append(group.Streams, candidate)
		if !group.HasQuality(candidate.Quality) {
			group.Qualities = append(group.Qualities, candidate.Quality)
		}
	}

	cat := &ProviderCatalog{}
	seen := make(map[string]bool)
	for _, name := range f.priority {
		if group, ok := groups[name]; ok {
			cat.Groups = append(cat.Groups, *group)
			seen[name] = true
		}
	}
	for _, name := range discovery {
		if !seen[name] {
			cat.Groups = append(cat.Groups, *groups[name])
		}
	}
	return cat
}

// classifyKind maps a raw stream to its delivery kind, preferring the
// explicit type flag and falling back to URL shape.
func classifyKind(rs api.RawStream) Kind {
	switch strings.ToLower(rs.Type) {
	case "hls":
		return KindHLS
	case "mp4", "file", "mkv":
		return KindFile
	}

	url := strings.ToLower(rs.File)
	if idx := strings.IndexAny(url, "?#"); idx >= 0 {
		url = url[:idx]
	}
	switch {
	case strings.HasSuffix(url, ".m3u8"), strings.Contains(url, "/hls/"):
		return KindHLS
	case strings.HasSuffix(url, ".mp4"), strings.HasSuffix(url, ".mkv"), strings.HasSuffix(url, ".webm"):
		return KindFile
	}
	return KindUnknown
}

// collectSubtitles gathers provider subtitles from the response,
// top-level entries first, then per-stream ones.
func collectSubtitles(resp *api.StreamsResponse) []api.RawSubtitle {
	subs := make([]api.RawSubtitle, 0, len(resp.Subtitles))
	subs = append(subs, resp.Subtitles...)
	for _, rs := range resp.Streams {
		subs = append(subs, rs.Subtitles...)
	}
	return subs
}
