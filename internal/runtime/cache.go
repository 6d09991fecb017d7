package runtime

import "sync"

type cacheKey struct {
	stageID    string
	generation uint64
}

// PromptCache memoizes rendered prompts per stage and generation.
// Bumping the generation invalidates every entry at once.
type PromptCache struct {
	mu         sync.RWMutex
	generation uint64
	entries    map[cacheKey]string
}

// NewPromptCache creates an empty cache at generation zero.
func NewPromptCache() *PromptCache {
	return &PromptCache{entries: make(map[cacheKey]string)}
}

// Generation returns the current generation.
func (c *PromptCache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// Get returns the prompt stored for stageID at the given generation.
func (c *PromptCache) Get(stageID string, generation uint64) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	text, ok := c.entries[cacheKey{stageID, generation}]
	return text, ok
}

// Put stores a prompt. Entries for a stale generation are dropped.
func (c *PromptCache) Put(stageID string, generation uint64, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		return
	}
	c.entries[cacheKey{stageID, generation}] = text
}

// Invalidate starts a new generation and discards all entries.
func (c *PromptCache) Invalidate() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.entries = make(map[cacheKey]string)
	return c.generation
}

// Len returns the number of cached prompts.
func (c *PromptCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
