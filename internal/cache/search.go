package cache

import (
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/kanit/internal/metrics"
	"github.com/hyperjump/kanit/internal/models"
)

// Defaults for the search result cache.
const (
	DefaultSearchCapacity = 100
	DefaultSearchTTL      = time.Hour
)

// SearchKey normalizes a query into a cache key: lower-cased, whitespace
// collapsed, plus the result limit and language.
func SearchKey(query string, maxResults int, language string) string {
	q := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	return q + "|" + strconv.Itoa(maxResults) + "|" + strings.ToLower(language)
}

// SearchCache memoizes web search results. Empty result sets are never
// stored, so a query with no results always runs again.
type SearchCache struct {
	lru   *LRU[string, []models.WebResult]
	stats *metrics.Stats
}

// NewSearchCache creates a search cache. stats may be nil.
func NewSearchCache(capacity int, ttl time.Duration, stats *metrics.Stats, opts ...LRUOption) *SearchCache {
	return &SearchCache{
		lru:   NewLRU[string, []models.WebResult](capacity, ttl, opts...),
		stats: stats,
	}
}

// Get returns the cached results for key and records a hit or miss.
func (c *SearchCache) Get(key string) ([]models.WebResult, bool) {
	v, ok := c.lru.Get(key)
	if ok {
		c.stats.Inc(metrics.CacheHits)
	} else {
		c.stats.Inc(metrics.CacheMisses)
	}
	return v, ok
}

// Put stores results under key unless results is empty.
func (c *SearchCache) Put(key string, results []models.WebResult) {
	if len(results) == 0 {
		return
	}
	c.lru.Put(key, results)
}

// Len returns the number of cached queries.
func (c *SearchCache) Len() int {
	return c.lru.Len()
}

// Clear drops every cached query.
func (c *SearchCache) Clear() {
	c.lru.Clear()
}
