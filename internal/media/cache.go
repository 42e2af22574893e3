package media

import (
	"sync"

	"github.com/mnflix/mnflix-cli/internal/captions"
	"github.com/mnflix/mnflix-cli/internal/catalog"
	"github.com/mnflix/mnflix-cli/internal/selection"
)

// CacheEntry holds everything resolved for one content identity.
// Entries are replaced whole; partial updates are never written.
type CacheEntry struct {
	Catalog   *catalog.ProviderCatalog
	Captions  []captions.Track
	Selection selection.Snapshot
}

// Cache maps content identities to previously resolved catalogs so a
// remount for the same content skips the network. Never persisted.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]CacheEntry
}

// NewCache creates an empty content cache
func NewCache() *Cache {
	return &Cache{entries: make(map[string]CacheEntry)}
}

// Get retrieves the cached entry for an identity
func (c *Cache) Get(id Identity) (CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[id.Key()]
	return entry, ok
}

// Put stores an entry, replacing any previous one for the identity
func (c *Cache) Put(id Identity, entry CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id.Key()] = entry
}

// Clear drops every entry. Called on episode transitions: carrying
// provider or caption state across an episode boundary produces stale
// selections, so the whole cache goes.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]CacheEntry)
}

// Len returns the number of cached entries
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
