package cache

import (
	"context"
	"sync"
	"time"

	"github.com/amirasaad/treasury/pkg/cache"
	"github.com/amirasaad/treasury/pkg/domain/sunset"
)

// MemoryProgressCache implements ProgressCache in process memory.
type MemoryProgressCache struct {
	mu        sync.RWMutex
	progress  *sunset.Progress
	expiresAt time.Time
	now       func() time.Time
}

// NewMemoryProgressCache creates a new in-memory cache.
func NewMemoryProgressCache() *MemoryProgressCache {
	return &MemoryProgressCache{now: time.Now}
}

func (c *MemoryProgressCache) Get(context.Context) (*sunset.Progress, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.progress == nil || c.now().After(c.expiresAt) {
		return nil, nil
	}
	p := *c.progress
	return &p, nil
}

// Set stores a copy of p. A non-positive ttl never expires.
func (c *MemoryProgressCache) Set(_ context.Context, p sunset.Progress, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.progress = &p
	if ttl <= 0 {
		c.expiresAt = time.Unix(1<<62, 0)
	} else {
		c.expiresAt = c.now().Add(ttl)
	}
	return nil
}

func (c *MemoryProgressCache) Delete(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.progress = nil
	return nil
}

var _ cache.ProgressCache = (*MemoryProgressCache)(nil)
