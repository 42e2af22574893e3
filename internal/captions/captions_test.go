package captions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnflix/mnflix-cli/internal/api"
)

const testBase = "https://api.mnflix.mn"

func TestAggregate_EmbeddedFirstAndDedup(t *testing.T) {
	embedded := []api.RawSubtitle{
		{URL: "https://cdn/a.vtt", Lang: "mn", Label: "Монгол"},
	}
	provider := []api.RawSubtitle{
		{URL: "https://cdn/a.vtt", Lang: "mn", Label: "Mongolian (zen)"},
		{URL: "https://cdn/b.vtt", Lang: "en", Label: "English"},
	}

	tracks := Aggregate(embedded, provider, testBase)
	require.Len(t, tracks, 2)

	// The duplicate URL keeps its first (embedded) appearance
	assert.Equal(t, "https://cdn/a.vtt", tracks[0].URL)
	assert.Equal(t, SourceEmbedded, tracks[0].Source)
	assert.Equal(t, "Монгол", tracks[0].DisplayLabel)

	assert.Equal(t, "https://cdn/b.vtt", tracks[1].URL)
	assert.Equal(t, SourceProvider, tracks[1].Source)
}

func TestAggregate_DropsEntriesWithoutURL(t *testing.T) {
	provider := []api.RawSubtitle{
		{Lang: "en", Label: "English"},
		{URL: "https://cdn/ok.vtt", Lang: "ko"},
	}

	tracks := Aggregate(nil, provider, testBase)
	require.Len(t, tracks, 1)
	assert.Equal(t, "https://cdn/ok.vtt", tracks[0].URL)
}

func TestAggregate_ResolvesRelativeURLs(t *testing.T) {
	provider := []api.RawSubtitle{
		{File: "/subs/movie-mn.vtt", Lang: "mn"},
	}

	tracks := Aggregate(nil, provider, testBase)
	require.Len(t, tracks, 1)
	assert.Equal(t, "https://api.mnflix.mn/subs/movie-mn.vtt", tracks[0].URL)
}

func TestAggregate_AcceptsEitherURLField(t *testing.T) {
	provider := []api.RawSubtitle{
		{File: "https://cdn/file-field.vtt", Language: "en"},
		{URL: "https://cdn/url-field.vtt", Lang: "ko"},
	}

	tracks := Aggregate(nil, provider, testBase)
	require.Len(t, tracks, 2)
	assert.Equal(t, "en", tracks[0].Language)
	assert.Equal(t, "ko", tracks[1].Language)
}

func TestNormalizeLanguage(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"mn", "mn"},
		{"mon", "mn"},
		{"Mongolian", "mn"},
		{"mn-MN", "mn"},
		{"en", "en"},
		{"eng", "en"},
		{"en-US", "en"},
		{"en_GB", "en"},
		{"ko", "ko"},
		{"korean", "ko"},
		{"ja", "ja"},
		{"jpn", "ja"},
		{"монгол", "mn"},
		{"mgl", "mn"},
		{"fr", "und"},
		{"", "und"},
		{"  DE ", "und"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeLanguage(tt.raw))
		})
	}
}

func TestDefaultTrack_PreferenceWins(t *testing.T) {
	tracks := []Track{
		{ID: "t-mn", Language: "mn"},
		{ID: "t-en", Language: "en"},
	}

	chosen := DefaultTrack(tracks, "en")
	require.NotNil(t, chosen)
	assert.Equal(t, "t-en", chosen.ID)
}

func TestDefaultTrack_MongolianFirstWithoutPreference(t *testing.T) {
	tracks := []Track{
		{ID: "t-en", Language: "en"},
		{ID: "t-mn", Language: "mn"},
	}

	chosen := DefaultTrack(tracks, "")
	require.NotNil(t, chosen)
	assert.Equal(t, "t-mn", chosen.ID)
}

func TestDefaultTrack_LabelHintFallback(t *testing.T) {
	tracks := []Track{
		{ID: "t-1", Language: "und", DisplayLabel: "Subtitles 1"},
		{ID: "t-2", Language: "und", DisplayLabel: "Монгол хадмал"},
	}

	chosen := DefaultTrack(tracks, "")
	require.NotNil(t, chosen)
	assert.Equal(t, "t-2", chosen.ID)
}

func TestDefaultTrack_PreferenceMissFallsThrough(t *testing.T) {
	tracks := []Track{
		{ID: "t-en", Language: "en"},
		{ID: "t-ko", Language: "ko"},
	}

	// Preferred language absent and no Mongolian track: first track
	chosen := DefaultTrack(tracks, "ja")
	require.NotNil(t, chosen)
	assert.Equal(t, "t-en", chosen.ID)
}

func TestDefaultTrack_Empty(t *testing.T) {
	assert.Nil(t, DefaultTrack(nil, "mn"))
}

func TestFindByID(t *testing.T) {
	tracks := []Track{
		{ID: "a", Language: "mn"},
		{ID: "b", Language: "en"},
	}

	require.NotNil(t, FindByID(tracks, "b"))
	assert.Equal(t, "en", FindByID(tracks, "b").Language)
	assert.Nil(t, FindByID(tracks, "missing"))
}

func TestTrackIDStableAcrossRecomputation(t *testing.T) {
	provider := []api.RawSubtitle{
		{URL: "https://cdn/a.vtt", Lang: "mn", Label: "Монгол хадмал"},
		{URL: "https://cdn/b.vtt", Lang: "en", Label: "English"},
	}

	first := Aggregate(nil, provider, testBase)
	second := Aggregate(nil, provider, testBase)
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
}
