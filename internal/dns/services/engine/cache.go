package engine

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/etdns/etdns/internal/dns/common/clock"
	"github.com/etdns/etdns/internal/dns/domain"
)

// cacheEntry pairs a stored response with its expiry, derived from the
// answer set's minimum TTL at store time.
type cacheEntry struct {
	resp    domain.DNSResponse
	expires time.Time
}

// responseCache is an LRU of answered responses keyed by question. It only
// ever holds authoritative data the catalog already has, so eviction and
// expiry are purely a throughput concern, never a correctness one. Any
// catalog write purges it wholesale.
type responseCache struct {
	entries *lru.Cache[string, cacheEntry]
	clock   clock.Clock
}

func newResponseCache(size int, clk clock.Clock) (*responseCache, error) {
	entries, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, err
	}
	return &responseCache{entries: entries, clock: clk}, nil
}

// Get returns the cached response for a question, with the transaction ID
// rewritten to the caller's. Expired entries are evicted on access.
func (c *responseCache) Get(q domain.Question) (domain.DNSResponse, bool) {
	entry, ok := c.entries.Get(q.Key())
	if !ok {
		return domain.DNSResponse{}, false
	}
	if c.clock.Now().After(entry.expires) {
		c.entries.Remove(q.Key())
		return domain.DNSResponse{}, false
	}
	resp := entry.resp
	resp.ID = q.ID
	resp.Question = q
	return resp, true
}

// Put stores a response for the lifetime of its shortest answer TTL.
// Responses with no positive TTL are not cached.
func (c *responseCache) Put(q domain.Question, resp domain.DNSResponse) {
	ttl := resp.MinAnswerTTL()
	if ttl == 0 {
		return
	}
	c.entries.Add(q.Key(), cacheEntry{
		resp:    resp,
		expires: c.clock.Now().Add(time.Duration(ttl) * time.Second),
	})
}

// Purge drops every entry. Called on any catalog mutation.
func (c *responseCache) Purge() {
	c.entries.Purge()
}

// Len returns the number of live entries, expired or not.
func (c *responseCache) Len() int {
	return c.entries.Len()
}
