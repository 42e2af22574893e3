package playback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnflix/mnflix-cli/internal/api"
	"github.com/mnflix/mnflix-cli/internal/catalog"
	"github.com/mnflix/mnflix-cli/internal/media"
	"github.com/mnflix/mnflix-cli/internal/player"
)

type fakeEngine struct {
	mu        sync.Mutex
	status    player.Status
	cb        func(player.Status)
	sources   []player.SourceDescriptor
	selected  []string
	stopCalls int
}

func (e *fakeEngine) SetSource(ctx context.Context, src player.SourceDescriptor) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sources = append(e.sources, src)
	e.status = player.StatusPlaying
	return nil
}

func (e *fakeEngine) SetCaptionList(list []player.Caption) {}

func (e *fakeEngine) SelectCaption(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selected = append(e.selected, id)
	return nil
}

func (e *fakeEngine) Status() player.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *fakeEngine) OnStatus(cb func(player.Status)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cb = cb
}

func (e *fakeEngine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopCalls++
	e.status = player.StatusIdle
	return nil
}

// failPlayback simulates the engine reporting a dead stream
func (e *fakeEngine) failPlayback() {
	e.mu.Lock()
	e.status = player.StatusPlaybackError
	cb := e.cb
	e.mu.Unlock()
	if cb != nil {
		cb(player.StatusPlaybackError)
	}
}

func (e *fakeEngine) sourceURLs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	urls := make([]string, len(e.sources))
	for i, s := range e.sources {
		urls[i] = s.URL
	}
	return urls
}

type fakeFetcher struct {
	mu       sync.Mutex
	streams  map[string][]api.RawStream
	subs     []api.RawSubtitle
	calls    int
	gate     chan struct{} // when set, FetchCatalog blocks until closed
	priority []string
}

func (f *fakeFetcher) FetchCatalog(ctx context.Context, contentID string, hints *api.SeriesHints) (*catalog.ProviderCatalog, []api.RawSubtitle, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	f.gate = nil
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	source := &staticSource{resp: &api.StreamsResponse{
		Streams:   f.streams[contentID],
		Subtitles: f.subs,
	}}
	return catalog.NewFetcher(source, f.priority, nil).FetchCatalog(ctx, contentID, hints)
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type staticSource struct {
	resp *api.StreamsResponse
}

func (s *staticSource) GetMovieStreams(ctx context.Context, contentID string) (*api.StreamsResponse, error) {
	return s.resp, nil
}

func (s *staticSource) GetSeriesStreams(ctx context.Context, contentID string, hints api.SeriesHints) (*api.StreamsResponse, error) {
	return s.resp, nil
}

type fakeMetadata struct{}

func (fakeMetadata) GetMovie(ctx context.Context, id string) (*api.Movie, error) {
	return &api.Movie{ID: id, Title: "Movie " + id, ReleaseDate: "2021-06-01"}, nil
}

func (fakeMetadata) GetShow(ctx context.Context, id string) (*api.Show, error) {
	return &api.Show{ID: id, Title: "Show " + id, FirstAirDate: "2019-01-01"}, nil
}

func (fakeMetadata) GetSeasonEpisodes(ctx context.Context, showID string, season int) ([]api.Episode, error) {
	return []api.Episode{
		{ID: "e1", EpisodeNumber: 1, SeasonNumber: season, Name: "One"},
		{ID: "e2", EpisodeNumber: 2, SeasonNumber: season, Name: "Two"},
	}, nil
}

type fakeReporter struct {
	mu      sync.Mutex
	reports []api.IssueReport
}

func (r *fakeReporter) ReportIssue(ctx context.Context, report api.IssueReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
	return nil
}

func (r *fakeReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}

type recordedProgress struct {
	id       media.Identity
	provider string
	current  int
	total    int
}

type fakeProgress struct {
	mu      sync.Mutex
	records []recordedProgress
}

func (p *fakeProgress) Resume(id media.Identity) int { return 0 }

func (p *fakeProgress) Record(id media.Identity, provider string, current, total int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, recordedProgress{id, provider, current, total})
	return nil
}

func zenStreams() []api.RawStream {
	return []api.RawStream{
		{File: "https://cdn/zen-1.m3u8", Type: "hls", Quality: "1080p", Provider: "zen"},
		{File: "https://cdn/zen-2.m3u8", Type: "hls", Quality: "720p", Provider: "zen"},
		{File: "https://cdn/zen-3.m3u8", Type: "hls", Quality: "480p", Provider: "zen"},
	}
}

func mixedStreams() []api.RawStream {
	return append([]api.RawStream{
		{File: "https://cdn/lush-1.m3u8", Type: "hls", Quality: "1080p", Provider: "lush"},
		{File: "https://cdn/flux-1.mp4", Type: "mp4", Quality: "720p", Provider: "flux"},
	}, zenStreams()...)
}

func newTestSession(t *testing.T, fetcher *fakeFetcher, engine *fakeEngine) *Session {
	t.Helper()
	if fetcher.priority == nil {
		fetcher.priority = []string{"lush", "flow", "flux", "sonata", "zen", "breeze", "nova"}
	}
	return NewSession(Params{
		Fetcher:          fetcher,
		Metadata:         fakeMetadata{},
		Engine:           engine,
		Cache:            media.NewCache(),
		Prefs:            media.LoadSessionPrefs(nil, "mn", nil),
		FallbackProvider: "zen",
		BaseURL:          "https://api.test",
	})
}

func TestSession_LoadCommitsFirstProvider(t *testing.T) {
	engine := &fakeEngine{status: player.StatusIdle}
	fetcher := &fakeFetcher{streams: map[string][]api.RawStream{"m1": mixedStreams()}}
	s := newTestSession(t, fetcher, engine)
	defer func() { _ = s.Close(context.Background()) }()

	require.NoError(t, s.Load(context.Background(), media.Identity{ContentID: "m1"}))

	provider, quality := s.Selection()
	assert.Equal(t, "lush", provider)
	assert.Equal(t, catalog.Quality1080, quality)
	assert.Equal(t, []string{"https://cdn/lush-1.m3u8"}, engine.sourceURLs())
	assert.Equal(t, 1, fetcher.callCount())

	meta := s.Meta()
	require.NotNil(t, meta)
	assert.Equal(t, "Movie m1", meta.Title)
	assert.Equal(t, 2021, meta.Year)
}

func TestSession_RepeatLoadUsesCache(t *testing.T) {
	engine := &fakeEngine{status: player.StatusIdle}
	fetcher := &fakeFetcher{streams: map[string][]api.RawStream{"m1": mixedStreams()}}
	s := newTestSession(t, fetcher, engine)
	defer func() { _ = s.Close(context.Background()) }()

	id := media.Identity{ContentID: "m1"}
	require.NoError(t, s.Load(context.Background(), id))
	require.NoError(t, s.Load(context.Background(), id))

	assert.Equal(t, 1, fetcher.callCount())
	// Both mounts commit, but from the cached catalog
	assert.Len(t, engine.sourceURLs(), 2)
}

func TestSession_IdempotentCommit(t *testing.T) {
	engine := &fakeEngine{status: player.StatusIdle}
	fetcher := &fakeFetcher{streams: map[string][]api.RawStream{"m1": mixedStreams()}}
	s := newTestSession(t, fetcher, engine)
	defer func() { _ = s.Close(context.Background()) }()

	require.NoError(t, s.Load(context.Background(), media.Identity{ContentID: "m1"}))
	require.Len(t, engine.sourceURLs(), 1)

	// Re-selecting the identical quality produces the same commit key
	// and must not reload the engine.
	_, quality := s.Selection()
	require.NoError(t, s.SelectQuality(context.Background(), quality))
	assert.Len(t, engine.sourceURLs(), 1)
}

func TestSession_ManualProviderSwitch(t *testing.T) {
	engine := &fakeEngine{status: player.StatusIdle}
	fetcher := &fakeFetcher{streams: map[string][]api.RawStream{"m1": mixedStreams()}}
	s := newTestSession(t, fetcher, engine)
	defer func() { _ = s.Close(context.Background()) }()

	require.NoError(t, s.Load(context.Background(), media.Identity{ContentID: "m1"}))
	require.NoError(t, s.SelectProvider(context.Background(), "flux"))

	provider, _ := s.Selection()
	assert.Equal(t, "flux", provider)
	urls := engine.sourceURLs()
	require.Len(t, urls, 2)
	assert.Equal(t, "https://cdn/flux-1.mp4", urls[1])
}

func TestSession_FallbackAdvancesOnPlaybackError(t *testing.T) {
	engine := &fakeEngine{status: player.StatusIdle}
	fetcher := &fakeFetcher{streams: map[string][]api.RawStream{"m1": zenStreams()}}
	s := newTestSession(t, fetcher, engine)
	defer func() { _ = s.Close(context.Background()) }()

	require.NoError(t, s.Load(context.Background(), media.Identity{ContentID: "m1"}))
	provider, _ := s.Selection()
	require.Equal(t, "zen", provider)

	engine.failPlayback()
	urls := engine.sourceURLs()
	require.Len(t, urls, 2)
	assert.Equal(t, "https://cdn/zen-2.m3u8", urls[1])
	assert.Nil(t, s.Err())
	assert.Equal(t, []string{"https://cdn/zen-1.m3u8"}, s.FailedURLs())
}

func TestSession_FallbackExhaustion(t *testing.T) {
	engine := &fakeEngine{status: player.StatusIdle}
	fetcher := &fakeFetcher{streams: map[string][]api.RawStream{"m1": zenStreams()}}
	reporter := &fakeReporter{}
	fetcher.priority = []string{"zen"}
	s := NewSession(Params{
		Fetcher:          fetcher,
		Metadata:         fakeMetadata{},
		Engine:           engine,
		Cache:            media.NewCache(),
		Prefs:            media.LoadSessionPrefs(nil, "mn", nil),
		Reporter:         reporter,
		FallbackProvider: "zen",
		BaseURL:          "https://api.test",
	})
	defer func() { _ = s.Close(context.Background()) }()

	require.NoError(t, s.Load(context.Background(), media.Identity{ContentID: "m1"}))

	engine.failPlayback()
	engine.failPlayback()
	engine.failPlayback()

	serr := s.Err()
	require.NotNil(t, serr)
	assert.Equal(t, ErrorExhausted, serr.Kind)
	assert.Equal(t, "zen", serr.Provider)
	assert.Len(t, engine.sourceURLs(), 3)

	// A problem report goes out in the background
	require.Eventually(t, func() bool { return reporter.count() > 0 },
		time.Second, 10*time.Millisecond)
}

func TestSession_RetryAfterExhaustionRestartsSequence(t *testing.T) {
	engine := &fakeEngine{status: player.StatusIdle}
	fetcher := &fakeFetcher{streams: map[string][]api.RawStream{"m1": zenStreams()}}
	s := newTestSession(t, fetcher, engine)
	defer func() { _ = s.Close(context.Background()) }()

	require.NoError(t, s.Load(context.Background(), media.Identity{ContentID: "m1"}))
	engine.failPlayback()
	engine.failPlayback()
	engine.failPlayback()
	require.NotNil(t, s.Err())

	require.NoError(t, s.Retry(context.Background()))
	assert.Nil(t, s.Err())

	urls := engine.sourceURLs()
	require.Len(t, urls, 4)
	assert.Equal(t, "https://cdn/zen-1.m3u8", urls[3])
	assert.Empty(t, s.FailedURLs())
	// No refetch for a playback-level retry
	assert.Equal(t, 1, fetcher.callCount())
}

func TestSession_ReselectProviderKeepsFallbackArmed(t *testing.T) {
	engine := &fakeEngine{status: player.StatusIdle}
	fetcher := &fakeFetcher{streams: map[string][]api.RawStream{"m1": zenStreams()}}
	s := newTestSession(t, fetcher, engine)
	defer func() { _ = s.Close(context.Background()) }()

	require.NoError(t, s.Load(context.Background(), media.Identity{ContentID: "m1"}))
	provider, _ := s.Selection()
	require.Equal(t, "zen", provider)

	// Re-selecting the playing provider is a no-op commit, but the
	// manual action completes and must not pin the fallback sequence.
	require.NoError(t, s.SelectProvider(context.Background(), "zen"))
	require.Len(t, engine.sourceURLs(), 1)

	engine.failPlayback()

	urls := engine.sourceURLs()
	require.Len(t, urls, 2)
	assert.Equal(t, "https://cdn/zen-2.m3u8", urls[1])
	assert.Nil(t, s.Err())
}

func TestSession_NonFallbackProviderSurfacesError(t *testing.T) {
	engine := &fakeEngine{status: player.StatusIdle}
	fetcher := &fakeFetcher{streams: map[string][]api.RawStream{"m1": mixedStreams()}}
	s := newTestSession(t, fetcher, engine)
	defer func() { _ = s.Close(context.Background()) }()

	require.NoError(t, s.Load(context.Background(), media.Identity{ContentID: "m1"}))
	provider, _ := s.Selection()
	require.Equal(t, "lush", provider)

	engine.failPlayback()

	serr := s.Err()
	require.NotNil(t, serr)
	assert.Equal(t, ErrorPlayback, serr.Kind)
	// No automatic advance happened
	assert.Len(t, engine.sourceURLs(), 1)
}

func TestSession_AdvanceEpisodeClearsCache(t *testing.T) {
	engine := &fakeEngine{status: player.StatusIdle}
	fetcher := &fakeFetcher{streams: map[string][]api.RawStream{"show1": zenStreams()}}
	s := newTestSession(t, fetcher, engine)
	defer func() { _ = s.Close(context.Background()) }()

	ep1 := media.Identity{ContentID: "show1", Season: 1, Episode: 1}
	require.NoError(t, s.Load(context.Background(), ep1))
	require.Equal(t, 1, fetcher.callCount())

	require.NoError(t, s.AdvanceEpisode(context.Background(), 1, 2))
	assert.Equal(t, 2, fetcher.callCount())

	meta := s.Meta()
	require.NotNil(t, meta)
	assert.Equal(t, 2, meta.Episode)
	assert.Equal(t, "Two", meta.EpisodeTitle)

	// Returning to the first episode refetches: the transition cleared
	// its cached entry.
	require.NoError(t, s.AdvanceEpisode(context.Background(), 1, 1))
	assert.Equal(t, 3, fetcher.callCount())
}

func TestSession_StaleFetchDiscarded(t *testing.T) {
	engine := &fakeEngine{status: player.StatusIdle}
	gate := make(chan struct{})
	fetcher := &fakeFetcher{
		streams: map[string][]api.RawStream{
			"slow": {{File: "https://cdn/slow.m3u8", Type: "hls", Quality: "1080p", Provider: "lush"}},
			"fast": {{File: "https://cdn/fast.m3u8", Type: "hls", Quality: "1080p", Provider: "lush"}},
		},
		gate: gate,
	}
	s := newTestSession(t, fetcher, engine)
	defer func() { _ = s.Close(context.Background()) }()

	done := make(chan error, 1)
	go func() {
		done <- s.Load(context.Background(), media.Identity{ContentID: "slow"})
	}()

	// Wait until the slow fetch is in flight, then supersede it
	require.Eventually(t, func() bool { return fetcher.callCount() == 1 },
		time.Second, time.Millisecond)
	require.NoError(t, s.Load(context.Background(), media.Identity{ContentID: "fast"}))

	close(gate)
	require.NoError(t, <-done)

	// Only the fast identity's stream reached the engine
	assert.Equal(t, []string{"https://cdn/fast.m3u8"}, engine.sourceURLs())
	meta := s.Meta()
	require.NotNil(t, meta)
	assert.Equal(t, "Movie fast", meta.Title)
}

func TestSession_NoSourcesError(t *testing.T) {
	engine := &fakeEngine{status: player.StatusIdle}
	fetcher := &fakeFetcher{streams: map[string][]api.RawStream{}}
	s := newTestSession(t, fetcher, engine)
	defer func() { _ = s.Close(context.Background()) }()

	err := s.Load(context.Background(), media.Identity{ContentID: "m1"})
	require.Error(t, err)

	serr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrorNoSources, serr.Kind)
	assert.True(t, serr.NeedsFullReload())
	assert.Empty(t, engine.sourceURLs())
}

func TestSession_UnsupportedFormatAdvancesFallback(t *testing.T) {
	engine := &fakeEngine{status: player.StatusIdle}
	fetcher := &fakeFetcher{streams: map[string][]api.RawStream{
		"m1": {
			{File: "https://cdn/zen-1.bin", Quality: "1080p", Provider: "zen"},
			{File: "https://cdn/zen-2.m3u8", Type: "hls", Quality: "720p", Provider: "zen"},
		},
	}}
	s := newTestSession(t, fetcher, engine)
	defer func() { _ = s.Close(context.Background()) }()

	require.NoError(t, s.Load(context.Background(), media.Identity{ContentID: "m1"}))

	// The undecodable first candidate is skipped without an engine call
	assert.Equal(t, []string{"https://cdn/zen-2.m3u8"}, engine.sourceURLs())
}

func TestSession_CaptionDefaultAppliedOnCommit(t *testing.T) {
	engine := &fakeEngine{status: player.StatusIdle}
	fetcher := &fakeFetcher{
		streams: map[string][]api.RawStream{"m1": zenStreams()},
		subs: []api.RawSubtitle{
			{URL: "https://cdn/en.vtt", Lang: "en", Label: "English"},
			{URL: "https://cdn/mn.vtt", Lang: "mn", Label: "Монгол"},
		},
	}
	s := newTestSession(t, fetcher, engine)
	defer func() { _ = s.Close(context.Background()) }()

	require.NoError(t, s.Load(context.Background(), media.Identity{ContentID: "m1"}))

	tracks := s.Captions()
	require.Len(t, tracks, 2)

	// Clear first, then the preferred (Mongolian) track
	engine.mu.Lock()
	selected := append([]string{}, engine.selected...)
	engine.mu.Unlock()
	require.NotEmpty(t, selected)
	assert.Equal(t, "", selected[0])
	assert.Equal(t, "mn", mustLanguage(t, s, selected[1]))
}

func mustLanguage(t *testing.T, s *Session, trackID string) string {
	t.Helper()
	for _, track := range s.Captions() {
		if track.ID == trackID {
			return track.Language
		}
	}
	t.Fatalf("track %q not in session captions", trackID)
	return ""
}

func TestSession_SelectCaptionTracksPreference(t *testing.T) {
	engine := &fakeEngine{status: player.StatusIdle}
	fetcher := &fakeFetcher{
		streams: map[string][]api.RawStream{"m1": zenStreams()},
		subs: []api.RawSubtitle{
			{URL: "https://cdn/en.vtt", Lang: "en", Label: "English"},
			{URL: "https://cdn/mn.vtt", Lang: "mn", Label: "Монгол"},
		},
	}
	prefs := media.LoadSessionPrefs(nil, "mn", nil)
	s := NewSession(Params{
		Fetcher:          fetcher,
		Metadata:         fakeMetadata{},
		Engine:           engine,
		Cache:            media.NewCache(),
		Prefs:            prefs,
		FallbackProvider: "zen",
		BaseURL:          "https://api.test",
	})
	fetcher.priority = []string{"zen"}
	defer func() { _ = s.Close(context.Background()) }()

	require.NoError(t, s.Load(context.Background(), media.Identity{ContentID: "m1"}))

	var enTrack string
	for _, track := range s.Captions() {
		if track.Language == "en" {
			enTrack = track.ID
		}
	}
	require.NotEmpty(t, enTrack)

	require.NoError(t, s.SelectCaption(enTrack))
	assert.Equal(t, "en", prefs.CaptionLanguage())

	// Disabling captions leaves the standing preference alone
	require.NoError(t, s.SelectCaption(""))
	assert.Equal(t, "en", prefs.CaptionLanguage())
}

func TestSession_StickyProviderAcrossContent(t *testing.T) {
	engine := &fakeEngine{status: player.StatusIdle}
	fetcher := &fakeFetcher{streams: map[string][]api.RawStream{
		"m1": mixedStreams(),
		"m2": mixedStreams(),
	}}
	prefs := media.LoadSessionPrefs(nil, "mn", nil)
	s := NewSession(Params{
		Fetcher:          fetcher,
		Metadata:         fakeMetadata{},
		Engine:           engine,
		Cache:            media.NewCache(),
		Prefs:            prefs,
		FallbackProvider: "zen",
		BaseURL:          "https://api.test",
	})
	fetcher.priority = []string{"lush", "flux", "zen"}
	defer func() { _ = s.Close(context.Background()) }()

	require.NoError(t, s.Load(context.Background(), media.Identity{ContentID: "m1"}))
	require.NoError(t, s.SelectProvider(context.Background(), "flux"))

	require.NoError(t, s.Load(context.Background(), media.Identity{ContentID: "m2"}))
	provider, _ := s.Selection()
	assert.Equal(t, "flux", provider)
}

func TestSession_ProgressRecordsMetadataTitle(t *testing.T) {
	engine := &fakeEngine{status: player.StatusIdle}
	fetcher := &fakeFetcher{streams: map[string][]api.RawStream{"m1": zenStreams()}}
	store := &fakeProgress{}
	s := NewSession(Params{
		Fetcher:          fetcher,
		Metadata:         fakeMetadata{},
		Engine:           engine,
		Cache:            media.NewCache(),
		Prefs:            media.LoadSessionPrefs(nil, "mn", nil),
		Progress:         store,
		FallbackProvider: "zen",
		BaseURL:          "https://api.test",
	})
	fetcher.priority = []string{"zen"}
	defer func() { _ = s.Close(context.Background()) }()

	// Navigation identities carry no display title
	require.NoError(t, s.Load(context.Background(), media.Identity{ContentID: "m1"}))

	s.recordProgress(120, 600)

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.records, 1)
	rec := store.records[0]
	assert.Equal(t, "Movie m1", rec.id.Title)
	assert.Equal(t, "m1", rec.id.ContentID)
	assert.Equal(t, "zen", rec.provider)
	assert.Equal(t, 120, rec.current)
	assert.Equal(t, 600, rec.total)
}

func TestCommitKey(t *testing.T) {
	a := CommitKey("zen", catalog.Quality1080, "https://cdn/a.m3u8", 2)
	same := CommitKey("zen", catalog.Quality1080, "https://cdn/a.m3u8", 2)
	assert.Equal(t, a, same)

	assert.NotEqual(t, a, CommitKey("lush", catalog.Quality1080, "https://cdn/a.m3u8", 2))
	assert.NotEqual(t, a, CommitKey("zen", catalog.Quality720, "https://cdn/a.m3u8", 2))
	assert.NotEqual(t, a, CommitKey("zen", catalog.Quality1080, "https://cdn/b.m3u8", 2))
	assert.NotEqual(t, a, CommitKey("zen", catalog.Quality1080, "https://cdn/a.m3u8", 3))
}

func TestError_Classification(t *testing.T) {
	assert.True(t, (&Error{Kind: ErrorNoSources}).NeedsFullReload())
	assert.True(t, (&Error{Kind: ErrorFetchFailed}).NeedsFullReload())
	assert.False(t, (&Error{Kind: ErrorExhausted}).NeedsFullReload())
	assert.False(t, (&Error{Kind: ErrorPlayback}).NeedsFullReload())
}
