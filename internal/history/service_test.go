package history

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mnflix/mnflix-cli/internal/config"
	"github.com/mnflix/mnflix-cli/internal/database"
	"github.com/mnflix/mnflix-cli/internal/media"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Init(&config.DatabaseConfig{
		Path: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func TestRecordAndResume(t *testing.T) {
	svc := NewService(openTestDB(t))
	id := media.Identity{ContentID: "tt1", Title: "A Movie"}

	require.NoError(t, svc.Record(id, "zen", 600, 6000))
	assert.Equal(t, 600, svc.Resume(id))
}

func TestRecord_UpsertsPerIdentity(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db)
	id := media.Identity{ContentID: "tt1", Title: "A Movie"}

	require.NoError(t, svc.Record(id, "zen", 100, 6000))
	require.NoError(t, svc.Record(id, "zen", 900, 6000))

	var count int64
	require.NoError(t, db.Model(&database.WatchHistory{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, 900, svc.Resume(id))
}

func TestRecord_EpisodesAreSeparateRows(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db)
	ep1 := media.Identity{ContentID: "tt1", Title: "A Show", Season: 1, Episode: 1}
	ep2 := media.Identity{ContentID: "tt1", Title: "A Show", Season: 1, Episode: 2}

	require.NoError(t, svc.Record(ep1, "zen", 100, 1200))
	require.NoError(t, svc.Record(ep2, "zen", 200, 1200))

	var count int64
	require.NoError(t, db.Model(&database.WatchHistory{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, 100, svc.Resume(ep1))
	assert.Equal(t, 200, svc.Resume(ep2))
}

func TestResume_CompletedReturnsZero(t *testing.T) {
	svc := NewService(openTestDB(t))
	id := media.Identity{ContentID: "tt1", Title: "A Movie"}

	// Past the completion threshold the next watch starts over
	require.NoError(t, svc.Record(id, "zen", 5700, 6000))
	assert.Equal(t, 0, svc.Resume(id))
}

func TestResume_UnknownIdentity(t *testing.T) {
	svc := NewService(openTestDB(t))
	assert.Equal(t, 0, svc.Resume(media.Identity{ContentID: "missing"}))
}

func TestList(t *testing.T) {
	svc := NewService(openTestDB(t))

	require.NoError(t, svc.Record(media.Identity{ContentID: "a", Title: "A"}, "zen", 10, 100))
	require.NoError(t, svc.Record(media.Identity{ContentID: "b", Title: "B"}, "lush", 20, 100))

	entries, err := svc.List(10)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = svc.List(1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
