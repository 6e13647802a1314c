package tokenizer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
)

// CachedCounter memoizes another Counter by payload digest. Counters are
// required to be deterministic, so a hit is always valid.
type CachedCounter struct {
	inner Counter

	mu     sync.RWMutex
	counts map[string]int
}

// NewCachedCounter wraps inner with a digest cache.
func NewCachedCounter(inner Counter) *CachedCounter {
	return &CachedCounter{
		inner:  inner,
		counts: make(map[string]int),
	}
}

// Count implements Counter.
func (c *CachedCounter) Count(ctx context.Context, p Payload) (int, error) {
	key := payloadDigest(p)

	c.mu.RLock()
	n, ok := c.counts[key]
	c.mu.RUnlock()
	if ok {
		return n, nil
	}

	n, err := c.inner.Count(ctx, p)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.counts[key] = n
	c.mu.Unlock()
	return n, nil
}

// Size returns the number of cached entries.
func (c *CachedCounter) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.counts)
}

func payloadDigest(p Payload) string {
	data, err := json.Marshal(p)
	if err != nil {
		// Payload is plain data; marshal cannot realistically fail.
		data = []byte(p.Role + "\x00" + p.Content + "\x00" + p.Name)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
