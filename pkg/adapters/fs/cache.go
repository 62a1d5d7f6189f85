package fs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/aether/pkg/core"
)

// indexEntry is the cached content of one row file.
type indexEntry struct {
	ID           string      `json:"id"`
	Table        string      `json:"table"`
	Fields       core.Fields `json:"fields"`
	LastModified time.Time   `json:"lastModified"`
	Size         int64       `json:"size"`
}

// index represents the persistent cache state.
type index struct {
	Version int                    `json:"version"`
	Entries map[string]*indexEntry `json:"entries"` // Key is relative path (e.g. "actions/42.json")
	dirty   bool
	mu      sync.RWMutex
}

// cache keeps parsed rows keyed by file so that a query only re-reads files
// whose mtime changed.
type cache struct {
	Path  string // Path to .aether/index.json
	index *index
}

const indexVersion = 2

func newCache(storePath, systemDir string) *cache {
	return &cache{
		Path: filepath.Join(storePath, systemDir, "index.json"),
		index: &index{
			Version: indexVersion,
			Entries: make(map[string]*indexEntry),
		},
	}
}

// Load reads the cache from disk. A missing, corrupt or outdated index starts
// empty.
func (c *cache) Load() error {
	c.index.mu.Lock()
	defer c.index.mu.Unlock()

	data, err := os.ReadFile(c.Path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read cache: %w", err)
	}

	var loaded struct {
		Version int                    `json:"version"`
		Entries map[string]*indexEntry `json:"entries"`
	}
	if err := json.Unmarshal(data, &loaded); err != nil || loaded.Version != indexVersion || loaded.Entries == nil {
		c.index.Entries = make(map[string]*indexEntry)
		return nil
	}

	c.index.Entries = loaded.Entries
	c.index.dirty = false
	return nil
}

// Save persists the cache if it changed.
func (c *cache) Save() error {
	c.index.mu.RLock()
	if !c.index.dirty {
		c.index.mu.RUnlock()
		return nil
	}
	data, err := json.MarshalIndent(c.index, "", "  ")
	c.index.mu.RUnlock()

	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(c.Path), 0755); err != nil {
		return err
	}
	if err := writeFileAtomic(c.Path, data, 0644); err != nil {
		return err
	}

	c.index.mu.Lock()
	c.index.dirty = false
	c.index.mu.Unlock()
	return nil
}

// Get returns the entry for relPath if its mtime and size still match.
func (c *cache) Get(relPath string, currentMtime time.Time, size int64) (*indexEntry, bool) {
	c.index.mu.RLock()
	defer c.index.mu.RUnlock()

	entry, ok := c.index.Entries[relPath]
	if !ok || !entry.LastModified.Equal(currentMtime) || entry.Size != size {
		return nil, false
	}
	return entry, true
}

// Peek returns the entry for relPath regardless of freshness.
func (c *cache) Peek(relPath string) (*indexEntry, bool) {
	c.index.mu.RLock()
	defer c.index.mu.RUnlock()
	entry, ok := c.index.Entries[relPath]
	return entry, ok
}

// Set updates an entry in the cache.
func (c *cache) Set(relPath string, entry *indexEntry) {
	c.index.mu.Lock()
	defer c.index.mu.Unlock()

	c.index.Entries[relPath] = entry
	c.index.dirty = true
}

// PruneTable removes entries of table that are not in keep.
func (c *cache) PruneTable(table string, keep map[string]bool) {
	c.index.mu.Lock()
	defer c.index.mu.Unlock()

	prefix := table + "/"
	for path := range c.index.Entries {
		if strings.HasPrefix(path, prefix) && !keep[path] {
			delete(c.index.Entries, path)
			c.index.dirty = true
		}
	}
}

// Delete removes a single entry from the cache.
func (c *cache) Delete(relPath string) {
	c.index.mu.Lock()
	defer c.index.mu.Unlock()

	delete(c.index.Entries, relPath)
	c.index.dirty = true
}

// Snapshot copies the entries (path -> entry) for diffing.
func (c *cache) Snapshot() map[string]indexEntry {
	c.index.mu.RLock()
	defer c.index.mu.RUnlock()

	out := make(map[string]indexEntry, len(c.index.Entries))
	for k, v := range c.index.Entries {
		out[k] = *v
	}
	return out
}

// Len returns the number of entries in the cache.
func (c *cache) Len() int {
	c.index.mu.RLock()
	defer c.index.mu.RUnlock()
	return len(c.index.Entries)
}
