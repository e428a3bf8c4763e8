package filewarden

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gobeaver/filewarden/filescanner"
)

var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filewarden_verdict_cache_hits_total",
		Help: "Classification verdicts served from the content-hash cache.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filewarden_verdict_cache_misses_total",
		Help: "Classification requests that missed the content-hash cache.",
	})
)

// VerdictCache is a TTL-bound LRU of classification verdicts keyed by
// content sha256. Verdicts are only valid for this instance's rule set,
// so the cache is deliberately per-process: the TTL makes rule-pack
// upgrades age out stale verdicts, and nothing is ever shared across
// instances.
type VerdictCache struct {
	cache *expirable.LRU[string, *filescanner.ThreatVerdict]
}

// NewVerdictCache creates a verdict cache holding at most size entries,
// each expiring ttl after insertion.
func NewVerdictCache(size int, ttl time.Duration) *VerdictCache {
	return &VerdictCache{
		cache: expirable.NewLRU[string, *filescanner.ThreatVerdict](size, nil, ttl),
	}
}

// Key returns the cache key for a content buffer.
func (c *VerdictCache) Key(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Get returns the cached verdict for a content key, if present.
func (c *VerdictCache) Get(key string) (*filescanner.ThreatVerdict, bool) {
	v, ok := c.cache.Get(key)
	if ok {
		cacheHitsTotal.Inc()
		return v, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Add stores a verdict under a content key.
func (c *VerdictCache) Add(key string, verdict *filescanner.ThreatVerdict) {
	c.cache.Add(key, verdict)
}

// Remove invalidates one entry.
func (c *VerdictCache) Remove(key string) {
	c.cache.Remove(key)
}

// Len returns the number of live entries.
func (c *VerdictCache) Len() int {
	return c.cache.Len()
}
