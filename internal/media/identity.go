// Package media defines content identity, the per-content cache, and
// the session-scoped sticky preferences.
package media

import (
	"fmt"
	"strings"
)

// PlayRequest carries the raw navigation parameters a play request
// arrives with.
type PlayRequest struct {
	ID      string
	Title   string
	Year    int
	Season  int
	Episode int
}

// Identity is the canonical content key. Two identities are equal iff
// all fields match; a zero Season and Episode means a movie.
type Identity struct {
	ContentID string
	Title     string
	Year      int
	Season    int
	Episode   int
}

// Resolve derives the canonical identity from navigation parameters.
// Pure: identical inputs yield identical identities.
func Resolve(req PlayRequest) Identity {
	return Identity{
		ContentID: strings.TrimSpace(req.ID),
		Title:     strings.TrimSpace(req.Title),
		Year:      req.Year,
		Season:    req.Season,
		Episode:   req.Episode,
	}
}

// IsEpisode reports whether the identity refers to episodic content
func (id Identity) IsEpisode() bool {
	return id.Season > 0 || id.Episode > 0
}

// Key serializes the identity for cache keying. Locally fabricated;
// the aggregation service is always queried with ContentID alone.
func (id Identity) Key() string {
	if id.IsEpisode() {
		return fmt.Sprintf("show:%s:%d:%d:%s:%d", id.ContentID, id.Season, id.Episode, id.Title, id.Year)
	}
	return fmt.Sprintf("movie:%s:%s:%d", id.ContentID, id.Title, id.Year)
}

// String is the human-readable form used in logs and errors
func (id Identity) String() string {
	if id.IsEpisode() {
		return fmt.Sprintf("%s s%de%d", id.ContentID, id.Season, id.Episode)
	}
	return id.ContentID
}
