package media

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnflix/mnflix-cli/internal/captions"
	"github.com/mnflix/mnflix-cli/internal/catalog"
	"github.com/mnflix/mnflix-cli/internal/selection"
)

func TestResolve(t *testing.T) {
	id := Resolve(PlayRequest{ID: "  tt123 ", Title: " Some Show ", Year: 2021, Season: 2, Episode: 5})

	assert.Equal(t, "tt123", id.ContentID)
	assert.Equal(t, "Some Show", id.Title)
	assert.True(t, id.IsEpisode())

	// Pure: identical requests resolve to equal identities
	again := Resolve(PlayRequest{ID: "  tt123 ", Title: " Some Show ", Year: 2021, Season: 2, Episode: 5})
	assert.Equal(t, id, again)
}

func TestIdentity_Key(t *testing.T) {
	movie := Identity{ContentID: "tt1", Title: "A Movie", Year: 2020}
	episode := Identity{ContentID: "tt1", Title: "A Show", Year: 2020, Season: 1, Episode: 1}
	other := Identity{ContentID: "tt1", Title: "A Show", Year: 2020, Season: 1, Episode: 2}

	assert.NotEqual(t, movie.Key(), episode.Key())
	assert.NotEqual(t, episode.Key(), other.Key())
	assert.Equal(t, episode.Key(), Identity{ContentID: "tt1", Title: "A Show", Year: 2020, Season: 1, Episode: 1}.Key())
}

func TestIdentity_IsEpisode(t *testing.T) {
	assert.False(t, Identity{ContentID: "tt1"}.IsEpisode())
	assert.True(t, Identity{ContentID: "tt1", Season: 1}.IsEpisode())
	assert.True(t, Identity{ContentID: "tt1", Episode: 3}.IsEpisode())
}

func testEntry(provider string) CacheEntry {
	return CacheEntry{
		Catalog: &catalog.ProviderCatalog{
			Groups: []catalog.ProviderGroup{{Provider: provider}},
		},
		Captions:  []captions.Track{{ID: "t-1", Language: "mn"}},
		Selection: selection.Snapshot{Provider: provider},
	}
}

func TestCache_PutGetClear(t *testing.T) {
	c := NewCache()
	id := Identity{ContentID: "tt1"}

	_, ok := c.Get(id)
	assert.False(t, ok)

	c.Put(id, testEntry("zen"))
	entry, ok := c.Get(id)
	require.True(t, ok)
	assert.Equal(t, "zen", entry.Selection.Provider)
	assert.Equal(t, 1, c.Len())

	c.Clear()
	_, ok = c.Get(id)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCache_WholeEntryReplacement(t *testing.T) {
	c := NewCache()
	id := Identity{ContentID: "tt1"}

	c.Put(id, testEntry("zen"))
	c.Put(id, testEntry("lush"))

	entry, ok := c.Get(id)
	require.True(t, ok)
	assert.Equal(t, "lush", entry.Selection.Provider)
	assert.Equal(t, 1, c.Len())
}

func TestCache_EpisodesAreDistinctEntries(t *testing.T) {
	c := NewCache()
	ep1 := Identity{ContentID: "tt1", Season: 1, Episode: 1}
	ep2 := Identity{ContentID: "tt1", Season: 1, Episode: 2}

	c.Put(ep1, testEntry("zen"))
	_, ok := c.Get(ep2)
	assert.False(t, ok)
}

type fakeStore struct {
	values map[string]string
	setErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: make(map[string]string)}
}

func (f *fakeStore) GetSetting(key string) (string, error) {
	return f.values[key], nil
}

func (f *fakeStore) SetSetting(key, value string) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.values[key] = value
	return nil
}

func TestSessionPrefs_DefaultSeed(t *testing.T) {
	prefs := LoadSessionPrefs(newFakeStore(), "mn", nil)
	assert.Equal(t, "mn", prefs.CaptionLanguage())
	assert.Equal(t, "", prefs.LastProvider())
}

func TestSessionPrefs_StoredValuesWin(t *testing.T) {
	store := newFakeStore()
	store.values["caption_language"] = "en"
	store.values["last_provider"] = "flux"

	prefs := LoadSessionPrefs(store, "mn", nil)
	assert.Equal(t, "en", prefs.CaptionLanguage())
	assert.Equal(t, "flux", prefs.LastProvider())
}

func TestSessionPrefs_SetPersists(t *testing.T) {
	store := newFakeStore()
	prefs := LoadSessionPrefs(store, "mn", nil)

	prefs.SetCaptionLanguage("ko")
	prefs.SetLastProvider("zen")

	assert.Equal(t, "ko", store.values["caption_language"])
	assert.Equal(t, "zen", store.values["last_provider"])
	assert.Equal(t, "ko", prefs.CaptionLanguage())
}

func TestSessionPrefs_IgnoresEmptyUpdates(t *testing.T) {
	store := newFakeStore()
	prefs := LoadSessionPrefs(store, "mn", nil)

	prefs.SetCaptionLanguage("")
	prefs.SetLastProvider("")

	assert.Equal(t, "mn", prefs.CaptionLanguage())
	assert.NotContains(t, store.values, "caption_language")
}

func TestSessionPrefs_PersistFailureKeepsInMemoryValue(t *testing.T) {
	store := newFakeStore()
	store.setErr = fmt.Errorf("disk full")
	prefs := LoadSessionPrefs(store, "mn", nil)

	prefs.SetCaptionLanguage("en")
	assert.Equal(t, "en", prefs.CaptionLanguage())
}

func TestSessionPrefs_NilStore(t *testing.T) {
	prefs := LoadSessionPrefs(nil, "mn", nil)
	prefs.SetCaptionLanguage("en")
	assert.Equal(t, "en", prefs.CaptionLanguage())
}
