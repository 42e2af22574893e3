package playback

import (
	"fmt"

	"github.com/mnflix/mnflix-cli/internal/catalog"
)

// CommitKey is the idempotency guard for playback commits. Two
// commits with the same key are the same commit; the second one must
// not restart the engine.
func CommitKey(provider string, quality catalog.Quality, url string, captionCount int) string {
	return fmt.Sprintf("%s|%s|%s|%d", provider, quality, url, captionCount)
}
