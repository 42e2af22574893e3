// Package playback orchestrates the player page: it resolves content,
// fetches the provider catalog, aggregates captions, commits the
// selected stream to the engine, and falls back between candidates on
// playback failure.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mnflix/mnflix-cli/internal/api"
	"github.com/mnflix/mnflix-cli/internal/captions"
	"github.com/mnflix/mnflix-cli/internal/catalog"
	"github.com/mnflix/mnflix-cli/internal/media"
	"github.com/mnflix/mnflix-cli/internal/player"
	"github.com/mnflix/mnflix-cli/internal/selection"
)

const (
	// captionRetryDelay is the deferred second attempt at applying the
	// chosen caption: subtitle tracks may not exist in the engine's
	// track list at the instant the source begins loading.
	captionRetryDelay = 500 * time.Millisecond

	progressSaveInterval = 30 * time.Second
)

// CatalogFetcher is the stream-catalog surface the session needs
type CatalogFetcher interface {
	FetchCatalog(ctx context.Context, contentID string, hints *api.SeriesHints) (*catalog.ProviderCatalog, []api.RawSubtitle, error)
}

// MetadataSource is the metadata-service surface the session needs
type MetadataSource interface {
	GetMovie(ctx context.Context, id string) (*api.Movie, error)
	GetShow(ctx context.Context, id string) (*api.Show, error)
	GetSeasonEpisodes(ctx context.Context, showID string, season int) ([]api.Episode, error)
}

// Reporter submits playback problem reports, best effort
type Reporter interface {
	ReportIssue(ctx context.Context, report api.IssueReport) error
}

// ProgressStore persists and recalls watch progress
type ProgressStore interface {
	Resume(id media.Identity) int
	Record(id media.Identity, provider string, progressSeconds, totalSeconds int) error
}

// positionReporter is the optional engine surface for progress saving
type positionReporter interface {
	Position() (currentSeconds, totalSeconds int, ok bool)
}

// Meta is the content metadata the surrounding page displays
type Meta struct {
	Title        string
	Year         int
	Poster       string
	Season       int
	Episode      int
	EpisodeTitle string
	Episodes     []api.Episode
}

// Event is delivered to the page on every observable change
type Event struct {
	Status player.Status
	Err    *Error
}

// Params wires a session's collaborators
type Params struct {
	Fetcher          CatalogFetcher
	Metadata         MetadataSource
	Engine           player.Engine
	Cache            *media.Cache
	Prefs            *media.SessionPrefs
	Reporter         Reporter
	Progress         ProgressStore
	FallbackProvider string
	BaseURL          string
	Logger           *slog.Logger
}

// Session is the playback orchestrator for one player page mount
type Session struct {
	mu sync.Mutex

	id       string
	fetcher  CatalogFetcher
	metadata MetadataSource
	engine   player.Engine
	cache    *media.Cache
	prefs    *media.SessionPrefs
	reporter Reporter
	progress ProgressStore
	machine  *selection.Machine
	baseURL  string
	logger   *slog.Logger

	identity media.Identity
	// gen guards against stale fetch completions: a fetch started for
	// one identity must never write state once another is current.
	gen int

	meta            *Meta
	tracks          []captions.Track
	chosenCaptionID string
	lastCommitKey   string
	lastErr         *Error

	captionTimer *time.Timer
	onEvent      func(Event)
	done         chan struct{}
	closeOnce    sync.Once
}

// NewSession creates a playback session and hooks the engine's status
// transitions to the fallback controller.
func NewSession(p Params) *Session {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	s := &Session{
		id:       id,
		fetcher:  p.Fetcher,
		metadata: p.Metadata,
		engine:   p.Engine,
		cache:    p.Cache,
		prefs:    p.Prefs,
		reporter: p.Reporter,
		progress: p.Progress,
		machine:  selection.NewMachine(p.FallbackProvider),
		baseURL:  p.BaseURL,
		logger:   logger.With("session", id[:8]),
		done:     make(chan struct{}),
	}

	s.engine.OnStatus(s.handleStatus)

	if s.progress != nil {
		go s.saveProgressLoop()
	}
	return s
}

// OnEvent registers the page's change callback
func (s *Session) OnEvent(cb func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvent = cb
}

// Status returns the engine's current playback status
func (s *Session) Status() player.Status {
	return s.engine.Status()
}

// Err returns the current session-level error, nil when none
func (s *Session) Err() *Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Meta returns the loaded content metadata, nil before Load
func (s *Session) Meta() *Meta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}

// Captions returns the aggregated caption list
func (s *Session) Captions() []captions.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracks
}

// Providers returns the provider names of the loaded catalog in order
func (s *Session) Providers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.cache.Get(s.identity); ok {
		return entry.Catalog.Providers()
	}
	return nil
}

// Selection returns the current provider and quality
func (s *Session) Selection() (provider string, quality catalog.Quality) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Provider(), s.machine.Quality()
}

// FailedURLs returns fallback candidates that failed, display only
func (s *Session) FailedURLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.FailedURLs()
}

// Load runs the full load sequence for a content identity: metadata,
// catalog and captions (or the cached entry), default selection, and
// the initial commit.
func (s *Session) Load(ctx context.Context, id media.Identity) error {
	s.mu.Lock()
	s.identity = id
	s.gen++
	gen := s.gen
	s.lastErr = nil
	s.lastCommitKey = ""
	s.chosenCaptionID = ""
	s.stopCaptionTimer()

	if entry, ok := s.cache.Get(id); ok {
		err := s.restoreLocked(ctx, id, entry)
		s.mu.Unlock()
		s.emit()
		return err
	}
	s.mu.Unlock()

	meta, embedded, hints, err := s.loadMetadata(ctx, id)
	if err != nil {
		return s.failLoad(gen, ErrorFetchFailed, err)
	}

	cat, providerSubs, err := s.fetcher.FetchCatalog(ctx, id.ContentID, hints)
	if err != nil {
		if errors.Is(err, catalog.ErrNoSources) {
			return s.failLoad(gen, ErrorNoSources, err)
		}
		return s.failLoad(gen, ErrorFetchFailed, err)
	}

	tracks := captions.Aggregate(embedded, providerSubs, s.baseURL)

	s.mu.Lock()
	if s.gen != gen {
		// Identity changed while the fetch was in flight; discard.
		s.mu.Unlock()
		s.logger.Debug("discarding stale fetch result", "content", id.String())
		return nil
	}

	s.meta = meta
	s.tracks = tracks

	if err := s.machine.LoadCatalog(cat, s.prefs.LastProvider()); err != nil {
		serr := &Error{Kind: ErrorNoSources, Err: err}
		s.lastErr = serr
		s.mu.Unlock()
		s.emit()
		return serr
	}

	if chosen := captions.DefaultTrack(tracks, s.prefs.CaptionLanguage()); chosen != nil {
		s.chosenCaptionID = chosen.ID
	}

	s.cache.Put(id, media.CacheEntry{
		Catalog:   cat,
		Captions:  tracks,
		Selection: s.machine.Snapshot(),
	})

	err = s.commitLocked(ctx)
	s.mu.Unlock()
	s.emit()
	return err
}

// restoreLocked replays a cached entry for a remount of the same
// content without touching the network.
func (s *Session) restoreLocked(ctx context.Context, id media.Identity, entry media.CacheEntry) error {
	s.logger.Debug("content cache hit", "content", id.String())

	if err := s.machine.Restore(entry.Catalog, entry.Selection); err != nil {
		// Cache entry no longer usable; drop it and refetch on the
		// caller's next attempt.
		s.cache.Clear()
		s.lastErr = &Error{Kind: ErrorFetchFailed, Err: err}
		return s.lastErr
	}
	s.tracks = entry.Captions
	if chosen := captions.DefaultTrack(entry.Captions, s.prefs.CaptionLanguage()); chosen != nil {
		s.chosenCaptionID = chosen.ID
	}
	return s.commitLocked(ctx)
}

// loadMetadata fetches movie or show metadata, collecting embedded
// subtitle tracks and the episodic hints for the aggregation query.
func (s *Session) loadMetadata(ctx context.Context, id media.Identity) (*Meta, []api.RawSubtitle, *api.SeriesHints, error) {
	if !id.IsEpisode() {
		movie, err := s.metadata.GetMovie(ctx, id.ContentID)
		if err != nil {
			return nil, nil, nil, err
		}
		return &Meta{
			Title:  movie.Title,
			Year:   yearOf(movie.ReleaseDate),
			Poster: movie.PosterPath,
		}, movie.SubtitleTracks, nil, nil
	}

	show, err := s.metadata.GetShow(ctx, id.ContentID)
	if err != nil {
		return nil, nil, nil, err
	}
	episodes, err := s.metadata.GetSeasonEpisodes(ctx, id.ContentID, id.Season)
	if err != nil {
		return nil, nil, nil, err
	}

	var current *api.Episode
	for i := range episodes {
		if episodes[i].EpisodeNumber == id.Episode {
			current = &episodes[i]
			break
		}
	}
	if current == nil {
		return nil, nil, nil, fmt.Errorf("episode %d not found in season %d", id.Episode, id.Season)
	}

	embedded := append([]api.RawSubtitle{}, show.SubtitleTracks...)
	embedded = append(embedded, current.SubtitleTracks...)

	meta := &Meta{
		Title:        show.Title,
		Year:         yearOf(show.FirstAirDate),
		Poster:       show.PosterPath,
		Season:       id.Season,
		Episode:      id.Episode,
		EpisodeTitle: current.Name,
		Episodes:     episodes,
	}
	hints := &api.SeriesHints{
		Title:   show.Title,
		Year:    meta.Year,
		Season:  id.Season,
		Episode: id.Episode,
	}
	return meta, embedded, hints, nil
}

// failLoad records a load-sequence failure unless the result is stale
func (s *Session) failLoad(gen int, kind ErrorKind, err error) error {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return nil
	}
	serr := &Error{
		Kind:     kind,
		Provider: s.machine.Provider(),
		Quality:  s.machine.Quality().String(),
		Err:      err,
	}
	s.lastErr = serr
	s.mu.Unlock()
	s.emit()
	return serr
}

// commitLocked converts the current selection into engine commands.
// The commit-key check runs synchronously before any engine command so
// two near-simultaneous triggers cannot produce two engine reloads.
// Callers must hold s.mu.
func (s *Session) commitLocked(ctx context.Context) error {
	for {
		candidate := s.machine.Candidate()
		if candidate == nil {
			s.lastErr = &Error{Kind: ErrorNoSources, Provider: s.machine.Provider()}
			return s.lastErr
		}

		key := CommitKey(candidate.Provider, candidate.Quality, candidate.URL, len(s.tracks))
		if key == s.lastCommitKey {
			// A repeated selection still completes the manual action,
			// so automatic fallback must re-arm even without a reload.
			s.machine.AcknowledgeCommit()
			return nil
		}

		desc, err := s.describe(candidate)
		if err == nil {
			return s.commitCandidate(ctx, candidate, desc, key)
		}

		// Unsupported format: implicit failure for this candidate.
		s.logger.Warn("candidate has no playable format",
			"provider", candidate.Provider, "url", candidate.URL)
		if !s.machine.FallbackMode() {
			s.lastErr = &Error{
				Kind:     ErrorUnsupportedFormat,
				Provider: candidate.Provider,
				Quality:  candidate.Quality.String(),
				Err:      err,
			}
			return s.lastErr
		}
		s.machine.AcknowledgeCommit()
		next, ferr := s.machine.OnPlaybackFailure()
		if next == nil {
			s.lastErr = s.exhaustedError(ferr, candidate)
			s.reportFailure(s.lastErr, candidate.URL)
			return s.lastErr
		}
	}
}

// commitCandidate issues the engine commands for one candidate
func (s *Session) commitCandidate(ctx context.Context, candidate *catalog.StreamCandidate, desc player.SourceDescriptor, key string) error {
	s.stopCaptionTimer()

	// Clear any previously displayed caption before the new source
	_ = s.engine.SelectCaption("")

	s.engine.SetCaptionList(toPlayerCaptions(s.tracks))

	if s.progress != nil {
		desc.StartSeconds = s.progress.Resume(s.identity)
	}

	if err := s.engine.SetSource(ctx, desc); err != nil {
		s.lastErr = &Error{
			Kind:     ErrorPlayback,
			Provider: candidate.Provider,
			Quality:  candidate.Quality.String(),
			Err:      err,
		}
		return s.lastErr
	}

	s.lastCommitKey = key
	s.lastErr = nil
	s.machine.AcknowledgeCommit()

	s.logger.Info("committed playback",
		"provider", candidate.Provider,
		"quality", candidate.Quality,
		"fallback", s.machine.FallbackMode(),
		"candidate", s.machine.FallbackIndex())

	// Apply the chosen caption once now and once shortly after: the
	// engine may not have registered its tracks yet when the source
	// starts loading.
	if chosen := s.chosenCaptionID; chosen != "" {
		_ = s.engine.SelectCaption(chosen)
		gen := s.gen
		s.captionTimer = time.AfterFunc(captionRetryDelay, func() {
			s.mu.Lock()
			stale := s.gen != gen || s.lastCommitKey != key
			s.mu.Unlock()
			if !stale {
				_ = s.engine.SelectCaption(chosen)
			}
		})
	}
	return nil
}

// describe maps a candidate to an engine source descriptor
func (s *Session) describe(candidate *catalog.StreamCandidate) (player.SourceDescriptor, error) {
	var format player.Format
	switch candidate.Kind {
	case catalog.KindHLS:
		format = player.FormatHLS
	case catalog.KindFile:
		format = player.FormatMP4
	default:
		return player.SourceDescriptor{}, fmt.Errorf("no playable descriptor for %q", candidate.URL)
	}

	desc := player.SourceDescriptor{
		URL:    candidate.URL,
		Format: format,
	}
	if s.meta != nil {
		desc.Title = s.meta.Title
		if s.meta.Episode > 0 {
			desc.Title = fmt.Sprintf("%s S%02dE%02d", s.meta.Title, s.meta.Season, s.meta.Episode)
		}
	}
	if candidate.Intro != nil {
		desc.Chapters = append(desc.Chapters, player.Chapter{Name: "intro", Start: candidate.Intro.Start, End: candidate.Intro.End})
	}
	if candidate.Outro != nil {
		desc.Chapters = append(desc.Chapters, player.Chapter{Name: "outro", Start: candidate.Outro.Start, End: candidate.Outro.End})
	}
	return desc, nil
}

// handleStatus consumes engine status transitions; PlaybackError
// drives the fallback controller.
func (s *Session) handleStatus(st player.Status) {
	if st != player.StatusPlaybackError {
		s.emit()
		return
	}

	s.mu.Lock()
	next, err := s.machine.OnPlaybackFailure()
	switch {
	case next != nil:
		s.logger.Info("playback failed, trying next candidate",
			"provider", s.machine.Provider(),
			"candidate", s.machine.FallbackIndex())
		_ = s.commitLocked(context.Background())
	case err != nil:
		candidate := s.machine.Candidate()
		url := ""
		if candidate != nil {
			url = candidate.URL
		}
		s.lastErr = s.exhaustedError(err, candidate)
		s.reportFailure(s.lastErr, url)
	default:
		// Not fallback-eligible (or a manual selection is pending):
		// surface the failure for a manual provider/quality change.
		s.lastErr = &Error{
			Kind:     ErrorPlayback,
			Provider: s.machine.Provider(),
			Quality:  s.machine.Quality().String(),
		}
	}
	s.mu.Unlock()
	s.emit()
}

func (s *Session) exhaustedError(err error, candidate *catalog.StreamCandidate) *Error {
	quality := s.machine.Quality().String()
	if candidate != nil {
		quality = candidate.Quality.String()
	}
	return &Error{
		Kind:     ErrorExhausted,
		Provider: s.machine.Provider(),
		Quality:  quality,
		Err:      err,
	}
}

// reportFailure submits a problem report, best effort
func (s *Session) reportFailure(serr *Error, url string) {
	if s.reporter == nil {
		return
	}
	report := api.IssueReport{
		ContentID: s.identity.ContentID,
		Provider:  serr.Provider,
		Quality:   serr.Quality,
		StreamURL: url,
		Category:  string(serr.Kind),
		Message:   serr.Message(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.reporter.ReportIssue(ctx, report); err != nil {
			s.logger.Debug("problem report failed", "error", err)
		}
	}()
}

// SelectProvider applies a manual provider choice and re-commits
func (s *Session) SelectProvider(ctx context.Context, name string) error {
	s.mu.Lock()
	if err := s.machine.SelectProvider(name); err != nil {
		s.mu.Unlock()
		return err
	}
	s.lastErr = nil
	s.prefs.SetLastProvider(name)
	s.updateCacheLocked()
	err := s.commitLocked(ctx)
	s.mu.Unlock()
	s.emit()
	return err
}

// SelectQuality applies a manual quality choice and re-commits
func (s *Session) SelectQuality(ctx context.Context, q catalog.Quality) error {
	s.mu.Lock()
	if err := s.machine.SelectQuality(q); err != nil {
		s.mu.Unlock()
		return err
	}
	s.lastErr = nil
	s.updateCacheLocked()
	err := s.commitLocked(ctx)
	s.mu.Unlock()
	s.emit()
	return err
}

// SelectCaption displays the identified caption and records its
// language as the standing preference for future content. An empty id
// disables captions without touching the preference.
func (s *Session) SelectCaption(id string) error {
	s.mu.Lock()
	s.chosenCaptionID = id
	var lang string
	if track := captions.FindByID(s.tracks, id); track != nil {
		lang = track.Language
	}
	s.mu.Unlock()

	if lang != "" && lang != "und" {
		s.prefs.SetCaptionLanguage(lang)
	}
	return s.engine.SelectCaption(id)
}

// Retry is the user's manual retry action. Fetch-level failures rerun
// the whole load sequence from scratch; playback failures restart the
// fallback sequence from the first candidate.
func (s *Session) Retry(ctx context.Context) error {
	s.mu.Lock()
	lastErr := s.lastErr
	id := s.identity
	s.mu.Unlock()

	if lastErr != nil && lastErr.NeedsFullReload() {
		return s.Load(ctx, id)
	}

	s.mu.Lock()
	s.machine.ResetFallback()
	s.lastErr = nil
	s.lastCommitKey = ""
	err := s.commitLocked(ctx)
	s.mu.Unlock()
	s.emit()
	return err
}

// AdvanceEpisode moves to another episode of the current show. The
// content cache is cleared first: carrying provider/caption state
// across an episode boundary is a known source of stale selections.
func (s *Session) AdvanceEpisode(ctx context.Context, season, episode int) error {
	s.mu.Lock()
	id := s.identity
	s.mu.Unlock()

	if !id.IsEpisode() {
		return fmt.Errorf("current content is not episodic")
	}

	s.cache.Clear()

	next := id
	next.Season = season
	next.Episode = episode
	return s.Load(ctx, next)
}

// updateCacheLocked refreshes the cached selection snapshot for the
// current identity. Whole-entry replacement only.
func (s *Session) updateCacheLocked() {
	entry, ok := s.cache.Get(s.identity)
	if !ok {
		return
	}
	entry.Selection = s.machine.Snapshot()
	s.cache.Put(s.identity, entry)
}

// saveProgressLoop periodically records the engine position
func (s *Session) saveProgressLoop() {
	reporter, ok := s.engine.(positionReporter)
	if !ok {
		return
	}
	ticker := time.NewTicker(progressSaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}
		if s.engine.Status() != player.StatusPlaying {
			continue
		}
		current, total, ok := reporter.Position()
		if !ok || total <= 0 {
			continue
		}
		s.recordProgress(current, total)
	}
}

// recordProgress writes one progress sample to the store. The identity
// arrives from navigation without a display title, so the recorded row
// takes its title from the loaded metadata.
func (s *Session) recordProgress(current, total int) {
	s.mu.Lock()
	id := s.identity
	if s.meta != nil && s.meta.Title != "" {
		id.Title = s.meta.Title
	}
	provider := s.machine.Provider()
	s.mu.Unlock()
	if err := s.progress.Record(id, provider, current, total); err != nil {
		s.logger.Warn("failed to save progress", "error", err)
	}
}

// Close tears down the session and the engine
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	s.mu.Lock()
	s.stopCaptionTimer()
	s.mu.Unlock()
	return s.engine.Stop(ctx)
}

// stopCaptionTimer cancels a pending deferred caption application.
// Callers must hold s.mu.
func (s *Session) stopCaptionTimer() {
	if s.captionTimer != nil {
		s.captionTimer.Stop()
		s.captionTimer = nil
	}
}

// emit delivers the current state to the page callback. Never called
// with s.mu held.
func (s *Session) emit() {
	s.mu.Lock()
	cb := s.onEvent
	ev := Event{Status: s.engine.Status(), Err: s.lastErr}
	s.mu.Unlock()
	if cb != nil {
		cb(ev)
	}
}

func toPlayerCaptions(tracks []captions.Track) []player.Caption {
	list := make([]player.Caption, len(tracks))
	for i, t := range tracks {
		list[i] = player.Caption{
			ID:       t.ID,
			Language: t.Language,
			URL:      t.URL,
			Label:    t.DisplayLabel,
		}
	}
	return list
}

func yearOf(date string) int {
	if len(date) < 4 {
		return 0
	}
	var year int
	_, err := fmt.Sscanf(date[:4], "%d", &year)
	if err != nil {
		return 0
	}
	return year
}
