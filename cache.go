package xstreams

import (
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
	"github.com/trickstertwo/xlog"
)

const DefaultCacheSize = 4096

// CacheOptions bounds every per-queue cache built by a QueueAdapterCache.
type CacheOptions struct {
	CacheSize int
}

func DefaultCacheOptions() CacheOptions { return CacheOptions{CacheSize: DefaultCacheSize} }

func (o CacheOptions) Validate() error {
	if o.CacheSize < 1 {
		return &ArgumentError{Name: "CacheSize", Reason: fmt.Sprintf("must be >= 1, got %d", o.CacheSize)}
	}
	return nil
}

// QueueAdapterCache builds one QueueCache per queue for a provider.
type QueueAdapterCache struct {
	opts     CacheOptions
	provider string
	logger   *xlog.Logger
}

func NewQueueAdapterCache(opts CacheOptions, provider string, logger *xlog.Logger) *QueueAdapterCache {
	if opts.CacheSize < 1 {
		opts = DefaultCacheOptions()
	}
	if logger == nil {
		logger = xlog.Default()
	}
	return &QueueAdapterCache{opts: opts, provider: provider, logger: logger}
}

// CreateQueueCache returns an empty cache for q.
func (c *QueueAdapterCache) CreateQueueCache(q QueueID) *QueueCache {
	// lru.New only fails for a non-positive size, which the constructor rules out.
	inner, _ := lru.New(c.opts.CacheSize)
	return &QueueCache{
		queue: q,
		size:  c.opts.CacheSize,
		inner: inner,
		logger: c.logger.With(
			xlog.Str("provider", c.provider),
			xlog.Str("queue", q.String()),
		),
	}
}

// QueueCache keeps containers that were delivered but not yet acknowledged. Entries are
// kept in delivery order and the oldest is evicted when the cache is full.
type QueueCache struct {
	queue   QueueID
	size    int
	inner   *lru.Cache
	evicted atomic.Uint64
	logger  *xlog.Logger
}

func cacheKey(bc BatchContainer) string {
	if t := bc.Token(); t != nil {
		return t.String()
	}
	return bc.EventID()
}

// Add caches a batch in delivery order.
func (c *QueueCache) Add(batch []BatchContainer) {
	for _, bc := range batch {
		if bc == nil {
			continue
		}
		if c.inner.Add(cacheKey(bc), bc) {
			c.evicted.Add(1)
			c.logger.Warn().Str("entry", cacheKey(bc)).Msg("queue cache full, evicted oldest entry")
		}
	}
}

// Remove drops acknowledged containers.
func (c *QueueCache) Remove(batch []BatchContainer) {
	for _, bc := range batch {
		if bc != nil {
			c.inner.Remove(cacheKey(bc))
		}
	}
}

// Since returns the cached containers ordered after t, oldest first. A nil token
// returns everything.
func (c *QueueCache) Since(t Token) []BatchContainer {
	keys := c.inner.Keys()
	out := make([]BatchContainer, 0, len(keys))
	for _, k := range keys {
		v, ok := c.inner.Peek(k)
		if !ok {
			continue
		}
		bc := v.(BatchContainer)
		if t == nil || Less(t, bc.Token()) {
			out = append(out, bc)
		}
	}
	return out
}

func (c *QueueCache) Len() int { return c.inner.Len() }

// Evicted counts entries dropped because the cache was full.
func (c *QueueCache) Evicted() uint64 { return c.evicted.Load() }

// UnderPressure reports a full cache; a puller should stop reading until entries are
// acknowledged.
func (c *QueueCache) UnderPressure() bool { return c.inner.Len() >= c.size }

func (c *QueueCache) Queue() QueueID { return c.queue }
