package identify

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StoredDescriptor is the cached descriptor of one reference photo. NoFace records photos
// that were processed but contain no detectable face, so they aren't downloaded again.
type StoredDescriptor struct {
	PhotoURL   string
	Descriptor []float32
	NoFace     bool
	ComputedAt time.Time
}

// DescriptorCache holds reference photo descriptors keyed by photo URL. It is read-mostly
// shared data: lookups take a read lock, new descriptors are added under the write lock.
type DescriptorCache struct {
	mu      sync.RWMutex
	entries map[string]*StoredDescriptor
	path    string
	dirty   bool
}

// NewDescriptorCache creates an empty cache. A non-empty path enables Load and Save.
func NewDescriptorCache(path string) *DescriptorCache {
	return &DescriptorCache{
		entries: make(map[string]*StoredDescriptor),
		path:    path,
	}
}

// Get returns the cached entry for a photo URL.
func (c *DescriptorCache) Get(photoURL string) (StoredDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[photoURL]
	if !ok {
		return StoredDescriptor{}, false
	}
	return *e, true
}

// Put stores a descriptor.
func (c *DescriptorCache) Put(photoURL string, descriptor []float32) {
	c.put(&StoredDescriptor{
		PhotoURL:   photoURL,
		Descriptor: append([]float32(nil), descriptor...),
		ComputedAt: time.Now(),
	})
}

// PutNoFace records that a photo has no usable face.
func (c *DescriptorCache) PutNoFace(photoURL string) {
	c.put(&StoredDescriptor{PhotoURL: photoURL, NoFace: true, ComputedAt: time.Now()})
}

func (c *DescriptorCache) put(e *StoredDescriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[e.PhotoURL] = e
	c.dirty = true
}

// Retain drops entries whose URL is not in keep. Returns the number removed.
func (c *DescriptorCache) Retain(keep map[string]bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for url := range c.entries {
		if !keep[url] {
			delete(c.entries, url)
			removed++
		}
	}
	if removed > 0 {
		c.dirty = true
	}
	return removed
}

// Len returns the number of cached photos.
func (c *DescriptorCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Load reads the gob file at the cache path. A missing file is not an error.
func (c *DescriptorCache) Load() error {
	if c.path == "" {
		return nil
	}

	f, err := os.Open(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open descriptor cache: %w", err)
	}
	defer f.Close()

	var stored []StoredDescriptor
	if err := gob.NewDecoder(f).Decode(&stored); err != nil {
		return fmt.Errorf("failed to decode descriptor cache: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*StoredDescriptor, len(stored))
	for i := range stored {
		c.entries[stored[i].PhotoURL] = &stored[i]
	}
	c.dirty = false
	return nil
}

// Save writes the cache to its path if anything changed since the last Load or Save.
func (c *DescriptorCache) Save() error {
	if c.path == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return nil
	}

	stored := make([]StoredDescriptor, 0, len(c.entries))
	for _, e := range c.entries {
		stored = append(stored, *e)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	tmp := c.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create descriptor cache file: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(stored); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to encode descriptor cache: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close descriptor cache file: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("failed to replace descriptor cache: %w", err)
	}

	c.dirty = false
	return nil
}
