package tts

import (
	"container/list"
	"context"
	"hash/fnv"
	"sync"

	"github.com/MrWong99/vocepta/pkg/types"
)

// DefaultCacheSize is the number of synthesized utterances a [Cached]
// provider keeps. Greetings, menu prompts and farewells repeat across calls,
// so a small cache removes most synthesis round-trips.
const DefaultCacheSize = 100

// cacheEntry pairs a hash key with its synthesis result in the LRU list.
type cacheEntry struct {
	key uint64
	res Result
}

// Cached wraps a [Provider] with an LRU cache keyed by text, language, voice
// and format. Only successful syntheses are cached; errors always pass
// through to the caller.
type Cached struct {
	inner   Provider
	maxSize int

	mu    sync.RWMutex
	cache map[uint64]*list.Element // hash → list element
	order *list.List               // LRU order: most-recently-used at back

	hits   uint64
	misses uint64
}

// NewCached wraps inner with an LRU synthesis cache of maxSize entries.
// If maxSize <= 0, the inner provider is returned directly (no caching).
func NewCached(inner Provider, maxSize int) Provider {
	if maxSize <= 0 {
		return inner
	}
	return &Cached{
		inner:   inner,
		maxSize: maxSize,
		cache:   make(map[uint64]*list.Element, maxSize),
		order:   list.New(),
	}
}

// Synthesize implements [Provider]. Repeated prompts are served from the
// cache without contacting the backend.
func (c *Cached) Synthesize(ctx context.Context, text string, lang types.Language, voiceID string, format Format) (*Result, error) {
	key := hashKey(text, lang, voiceID, format)

	// Fast path: cache hit.
	c.mu.RLock()
	elem, ok := c.cache[key]
	c.mu.RUnlock()

	if ok {
		// Promote in LRU order (needs write lock).
		c.mu.Lock()
		c.order.MoveToBack(elem)
		c.hits++
		res := elem.Value.(*cacheEntry).res
		c.mu.Unlock()
		return &res, nil
	}

	res, err := c.inner.Synthesize(ctx, text, lang, voiceID, format)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.misses++
	c.put(key, *res)
	c.mu.Unlock()

	return res, nil
}

// AvailableVoices implements [Provider]. Voice listings pass through uncached.
func (c *Cached) AvailableVoices(ctx context.Context, lang types.Language) ([]Voice, error) {
	return c.inner.AvailableVoices(ctx, lang)
}

// Stats returns the number of cache hits and misses since creation.
func (c *Cached) Stats() (hits, misses uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

// hashKey returns an FNV-1a hash over all fields that affect the audio.
func hashKey(text string, lang types.Language, voiceID string, format Format) uint64 {
	h := fnv.New64a()
	h.Write([]byte(text))
	h.Write([]byte{0})
	h.Write([]byte(lang))
	h.Write([]byte{0})
	h.Write([]byte(voiceID))
	h.Write([]byte{0})
	h.Write([]byte(format))
	return h.Sum64()
}

// put inserts a key/result into the cache, evicting the LRU entry if at
// capacity. Caller must hold c.mu (write lock).
func (c *Cached) put(key uint64, res Result) {
	if elem, exists := c.cache[key]; exists {
		c.order.MoveToBack(elem)
		elem.Value.(*cacheEntry).res = res
		return
	}

	if c.order.Len() >= c.maxSize {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.cache, oldest.Value.(*cacheEntry).key)
	}

	entry := &cacheEntry{key: key, res: res}
	elem := c.order.PushBack(entry)
	c.cache[key] = elem
}

// Compile-time interface check.
var _ Provider = (*Cached)(nil)
