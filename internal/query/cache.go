package query

import (
	"context"
	"sync"
	"time"

	"todo-cli/internal/model"
)

// Entry is one cached list page.
type Entry struct {
	Data      model.TodosResponse
	FetchedAt time.Time
}

// Cache stores list pages by key string; every entry carries the tag of the
// list it belongs to so a whole list can be invalidated at once.
type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Put(ctx context.Context, key, tag string, e Entry) error
	InvalidateTag(ctx context.Context, tag string) error
	Clear(ctx context.Context) error
}

type memoryEntry struct {
	tag   string
	entry Entry
}

// MemoryCache is the in-process Cache used by the TUI.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: map[string]memoryEntry{}}
}

func (c *MemoryCache) Get(_ context.Context, key string) (Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	me, ok := c.entries[key]
	return me.entry, ok, nil
}

func (c *MemoryCache) Put(_ context.Context, key, tag string, e Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{tag: tag, entry: e}
	return nil
}

func (c *MemoryCache) InvalidateTag(_ context.Context, tag string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, me := range c.entries {
		if me.tag == tag {
			delete(c.entries, k)
		}
	}
	return nil
}

func (c *MemoryCache) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]memoryEntry{}
	return nil
}

func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
