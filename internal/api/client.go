// Package api implements the client for the MNFLIX backend: the
// metadata service (movie/show/episode details) and the streaming
// aggregation service that returns per-provider stream candidates.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/mnflix/mnflix-cli/internal/config"
)

// Client handles communication with the MNFLIX backend
type Client struct {
	baseURL string
	http    *httpClient
	logger  *slog.Logger
}

// NewClient creates a new API client
func NewClient(cfg *config.Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: cfg.API.BaseURL,
		logger:  logger,
		http: newHTTPClient(httpClientConfig{
			Timeout: cfg.API.Timeout,
			Debug:   cfg.Advanced.Debug,
			Logger:  logger,
		}),
	}
}

// BaseURL returns the configured API base, used to absolutize
// relative subtitle URLs.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetMovie retrieves movie details by canonical ID
func (c *Client) GetMovie(ctx context.Context, id string) (*Movie, error) {
	var movie Movie
	url := fmt.Sprintf("%s/api/tmdb/movie/%s", c.baseURL, id)
	if err := c.http.getJSON(ctx, url, nil, &movie); err != nil {
		return nil, fmt.Errorf("get movie %s: %w", id, err)
	}
	return &movie, nil
}

// GetShow retrieves show details by canonical ID
func (c *Client) GetShow(ctx context.Context, id string) (*Show, error) {
	var show Show
	url := fmt.Sprintf("%s/api/tmdb/tv/%s", c.baseURL, id)
	if err := c.http.getJSON(ctx, url, nil, &show); err != nil {
		return nil, fmt.Errorf("get show %s: %w", id, err)
	}
	return &show, nil
}

// GetSeasonEpisodes retrieves the episode list for one season
func (c *Client) GetSeasonEpisodes(ctx context.Context, showID string, season int) ([]Episode, error) {
	var resp SeasonResponse
	url := fmt.Sprintf("%s/api/tmdb/tv/%s/season/%d", c.baseURL, showID, season)
	if err := c.http.getJSON(ctx, url, nil, &resp); err != nil {
		return nil, fmt.Errorf("get season %d of show %s: %w", season, showID, err)
	}
	return resp.Episodes, nil
}

// GetMovieStreams queries the aggregation service for a movie's streams
func (c *Client) GetMovieStreams(ctx context.Context, contentID string) (*StreamsResponse, error) {
	var resp StreamsResponse
	url := fmt.Sprintf("%s/api/zentlify/movie/%s", c.baseURL, contentID)
	if err := c.http.getJSON(ctx, url, nil, &resp); err != nil {
		return nil, fmt.Errorf("get movie streams for %s: %w", contentID, err)
	}
	if resp.ContentID == "" {
		resp.ContentID = contentID
	}
	return &resp, nil
}

// GetSeriesStreams queries the aggregation service for an episode's
// streams. Hints help upstream providers that match by title/year.
func (c *Client) GetSeriesStreams(ctx context.Context, contentID string, hints SeriesHints) (*StreamsResponse, error) {
	params := map[string]string{
		"season":  strconv.Itoa(hints.Season),
		"episode": strconv.Itoa(hints.Episode),
	}
	if hints.Title != "" {
		params["title"] = hints.Title
	}
	if hints.Year != 0 {
		params["year"] = strconv.Itoa(hints.Year)
	}

	var resp StreamsResponse
	url := fmt.Sprintf("%s/api/zentlify/series/%s", c.baseURL, contentID)
	if err := c.http.getJSON(ctx, url, params, &resp); err != nil {
		return nil, fmt.Errorf("get series streams for %s s%de%d: %w",
			contentID, hints.Season, hints.Episode, err)
	}
	if resp.ContentID == "" {
		resp.ContentID = contentID
	}
	return &resp, nil
}

// ReportIssue submits a playback problem report. Best effort: callers
// treat a failure here as non-fatal.
func (c *Client) ReportIssue(ctx context.Context, report IssueReport) error {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	url := fmt.Sprintf("%s/api/reports", c.baseURL)
	if err := c.http.postJSON(ctx, url, report); err != nil {
		return fmt.Errorf("report issue: %w", err)
	}
	c.logger.Debug("submitted playback report", "id", report.ID, "category", report.Category)
	return nil
}
