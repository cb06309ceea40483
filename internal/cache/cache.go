package cache

import (
	"fmt"
	"strings"

	"github.com/dgraph-io/ristretto"

	"github.com/memoirlabs/memoir/internal/store"
)

// Invalidator receives a signal whenever a user's memory set changes in a
// way that affects assembled context. Implementations must be cheap — the
// engine calls this inline after every mutation.
type Invalidator interface {
	Invalidate(userID string)
}

// Nop is an Invalidator that does nothing. Used when no cache is wired.
type Nop struct{}

func (Nop) Invalidate(string) {}

// MemorySource provides the active memory snapshot for a user.
type MemorySource interface {
	GetActiveMemories(userID string) ([]store.Memory, error)
}

// ContextCache memoizes the assembled memory context per user. Entries are
// rebuilt on demand after invalidation rather than eagerly refreshed.
type ContextCache struct {
	cache  *ristretto.Cache
	source MemorySource
	limit  int
}

// NewContextCache builds a cache over the given memory source. limit caps
// how many memories a context may include.
func NewContextCache(source MemorySource, limit int) (*ContextCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     10 << 20, // 10 MiB of rendered context
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create context cache: %w", err)
	}
	return &ContextCache{cache: c, source: source, limit: limit}, nil
}

// Context returns the rendered memory context for a user, building and
// caching it on miss.
func (c *ContextCache) Context(userID string) (string, error) {
	if v, ok := c.cache.Get(userID); ok {
		return v.(string), nil
	}

	memories, err := c.source.GetActiveMemories(userID)
	if err != nil {
		return "", fmt.Errorf("load memories for context: %w", err)
	}
	if len(memories) > c.limit {
		memories = memories[:c.limit]
	}

	rendered := Render(memories)
	c.cache.Set(userID, rendered, int64(len(rendered)))
	return rendered, nil
}

// Invalidate drops the cached context for a user.
func (c *ContextCache) Invalidate(userID string) {
	c.cache.Del(userID)
}

// Wait blocks until pending cache writes are visible. Test helper.
func (c *ContextCache) Wait() {
	c.cache.Wait()
}

// Render formats a memory snapshot as injectable context text. Memories
// arrive ordered by importance, so the most load-bearing facts lead.
func Render(memories []store.Memory) string {
	if len(memories) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("What you know about this user:\n")
	for _, m := range memories {
		fmt.Fprintf(&b, "- (%s/%s) %s\n", m.Type, m.Category, m.Content)
	}
	return b.String()
}
