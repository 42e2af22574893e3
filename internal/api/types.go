package api

// Movie represents a movie from the metadata service
type Movie struct {
	ID             string        `json:"id"`
	Title          string        `json:"title"`
	Overview       string        `json:"overview,omitempty"`
	PosterPath     string        `json:"posterPath,omitempty"`
	ReleaseDate    string        `json:"releaseDate,omitempty"` // YYYY-MM-DD
	SubtitleTracks []RawSubtitle `json:"subtitleTracks,omitempty"`
}

// Show represents a TV show from the metadata service
type Show struct {
	ID              string        `json:"id"`
	Title           string        `json:"title"`
	Overview        string        `json:"overview,omitempty"`
	PosterPath      string        `json:"posterPath,omitempty"`
	FirstAirDate    string        `json:"firstAirDate,omitempty"`
	NumberOfSeasons int           `json:"numberOfSeasons,omitempty"`
	SubtitleTracks  []RawSubtitle `json:"subtitleTracks,omitempty"`
}

// Episode represents a single episode from the metadata service
type Episode struct {
	ID             string        `json:"id"`
	EpisodeNumber  int           `json:"episodeNumber"`
	SeasonNumber   int           `json:"seasonNumber"`
	Name           string        `json:"name"`
	AirDate        string        `json:"airDate,omitempty"`
	SubtitleTracks []RawSubtitle `json:"subtitleTracks,omitempty"`
}

// SeasonResponse is the metadata service's season listing
type SeasonResponse struct {
	Episodes []Episode `json:"episodes"`
}

// StreamsResponse is the streaming-aggregation service's response
type StreamsResponse struct {
	Streams   []RawStream   `json:"streams"`
	Subtitles []RawSubtitle `json:"subtitles,omitempty"`
	ContentID string        `json:"contentId"`
	Title     string        `json:"title,omitempty"`
}

// RawStream is a single upstream stream entry, as returned by the
// aggregation service before normalization
type RawStream struct {
	File      string        `json:"file"`
	Type      string        `json:"type"` // "hls" or "mp4"; may be absent
	Quality   string        `json:"quality"`
	Provider  string        `json:"provider"`
	Name      string        `json:"name,omitempty"`
	Subtitles []RawSubtitle `json:"subtitles,omitempty"`
	Intro     *Marker       `json:"intro,omitempty"`
	Outro     *Marker       `json:"outro,omitempty"`
}

// RawSubtitle is an upstream subtitle entry before normalization.
// Some providers fill `lang`, others `language`; some use `file`
// instead of `url`. Malformed entries (no URL at all) are expected.
type RawSubtitle struct {
	URL      string `json:"url,omitempty"`
	File     string `json:"file,omitempty"`
	Lang     string `json:"lang,omitempty"`
	Language string `json:"language,omitempty"`
	Label    string `json:"label,omitempty"`
}

// ResolvedURL returns the subtitle's resource URL, whichever field the
// provider used, or "" when the entry is unusable.
func (s RawSubtitle) ResolvedURL() string {
	if s.URL != "" {
		return s.URL
	}
	return s.File
}

// ResolvedLanguage returns the raw language tag, preferring `lang`.
func (s RawSubtitle) ResolvedLanguage() string {
	if s.Lang != "" {
		return s.Lang
	}
	return s.Language
}

// Marker is an intro/outro time range in seconds
type Marker struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// SeriesHints carries episodic-content hints for the aggregation query
type SeriesHints struct {
	Title   string
	Year    int
	Season  int
	Episode int
}

// IssueReport is a playback problem report
type IssueReport struct {
	ID        string `json:"id"`
	ContentID string `json:"contentId"`
	Provider  string `json:"provider,omitempty"`
	Quality   string `json:"quality,omitempty"`
	StreamURL string `json:"streamUrl,omitempty"`
	Category  string `json:"category"`
	Message   string `json:"message,omitempty"`
}

// ErrorResponse is the backend's error body
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
