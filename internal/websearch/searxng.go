// Package websearch queries SearXNG instances and scrapes result pages.
package websearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/hyperjump/kanit/internal/cache"
	"github.com/hyperjump/kanit/internal/metrics"
	"github.com/hyperjump/kanit/internal/models"
	"github.com/hyperjump/kanit/pkg/utils"
)

// Defaults for result filtering.
const (
	DefaultQualityFloor   = 0.15
	DefaultRequestTimeout = 15 * time.Second
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

	titleRunes   = 150
	contentRunes = 400
	trustedAbove = 0.8
	maxBodyBytes = 4 << 20
)

// DefaultVariations are the query templates tried against every instance.
var DefaultVariations = []string{"{query}", "{query} {year}", "{query} detaylı"}

// DefaultSkipDomains are URL fragments whose results are never used.
var DefaultSkipDomains = []string{
	"facebook.com", "twitter.com", "instagram.com",
	"youtube.com", "tiktok.com", "pinterest.com",
}

// Assessor scores a search result.
type Assessor interface {
	Assess(content, title, url string) models.QualityAssessment
}

// Client searches a list of SearXNG instances. Each instance sits behind its
// own circuit breaker so a dead instance is skipped until its open timeout ends.
type Client struct {
	instances   []instance
	httpClient  *http.Client
	assessor    Assessor
	cache       *cache.SearchCache
	stats       *metrics.Stats
	logger      *zap.Logger
	variations  []string
	skipDomains []string
	floor       float64
	userAgent   string
	maxFailures uint32
	openTimeout time.Duration
	now         func() time.Time
}

type instance struct {
	baseURL string
	breaker *gobreaker.CircuitBreaker
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client used for search requests.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.httpClient = c }
}

// WithCache enables result caching.
func WithCache(c *cache.SearchCache) ClientOption {
	return func(cl *Client) { cl.cache = c }
}

// WithStats records rejected results.
func WithStats(s *metrics.Stats) ClientOption {
	return func(cl *Client) { cl.stats = s }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ClientOption {
	return func(cl *Client) { cl.logger = utils.OrNop(l) }
}

// WithVariations sets the query templates. "{query}" and "{year}" are substituted.
func WithVariations(v []string) ClientOption {
	return func(cl *Client) {
		if len(v) > 0 {
			cl.variations = v
		}
	}
}

// WithSkipDomains replaces the skipped domain list.
func WithSkipDomains(d []string) ClientOption {
	return func(cl *Client) { cl.skipDomains = d }
}

// WithQualityFloor sets the minimum quality score a result needs to be kept.
func WithQualityFloor(f float64) ClientOption {
	return func(cl *Client) { cl.floor = f }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(cl *Client) {
		if ua != "" {
			cl.userAgent = ua
		}
	}
}

// WithBreaker sets the consecutive failures that open an instance breaker and
// how long it stays open.
func WithBreaker(maxFailures uint32, openTimeout time.Duration) ClientOption {
	return func(cl *Client) {
		if maxFailures > 0 {
			cl.maxFailures = maxFailures
		}
		if openTimeout > 0 {
			cl.openTimeout = openTimeout
		}
	}
}

// WithClock sets the time source used for the "{year}" variation.
func WithClock(now func() time.Time) ClientOption {
	return func(cl *Client) { cl.now = now }
}

// NewClient creates a client for the given SearXNG base URLs.
func NewClient(baseURLs []string, assessor Assessor, opts ...ClientOption) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: DefaultRequestTimeout},
		assessor:    assessor,
		logger:      zap.NewNop(),
		variations:  DefaultVariations,
		skipDomains: DefaultSkipDomains,
		floor:       DefaultQualityFloor,
		userAgent:   DefaultUserAgent,
		maxFailures: 5,
		openTimeout: 30 * time.Second,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	for _, u := range baseURLs {
		u = strings.TrimRight(u, "/")
		c.instances = append(c.instances, instance{baseURL: u, breaker: c.newBreaker(u)})
	}
	return c
}

func (c *Client) newBreaker(name string) *gobreaker.CircuitBreaker {
	maxFailures := c.maxFailures
	logger := c.logger
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: c.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("searxng breaker state changed",
				zap.String("instance", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

// Search returns up to maxResults filtered results for query. Results are
// served from the cache when present; non-empty result sets are cached.
// Instance failures are logged and skipped, never returned.
func (c *Client) Search(ctx context.Context, query string, maxResults int, language string) []models.WebResult {
	if maxResults <= 0 {
		maxResults = 5
	}
	key := cache.SearchKey(query, maxResults, language)
	if c.cache != nil {
		if cached, ok := c.cache.Get(key); ok {
			c.logger.Debug("search cache hit", zap.String("query", query), zap.Int("results", len(cached)))
			return cached
		}
	}

	// Reaching limit ends the current instance; later instances still run.
	limit := maxResults * 2
	var collected []models.WebResult
	seen := make(map[string]struct{})
	raw := 0

instances:
	for _, inst := range c.instances {
		for _, q := range c.expand(query) {
			for _, lang := range languages(language) {
				if ctx.Err() != nil {
					break instances
				}
				items, err := c.query(ctx, inst, q, lang)
				if err != nil {
					c.logger.Warn("searxng query failed",
						zap.String("instance", inst.baseURL),
						zap.String("query", q),
						zap.String("language", lang),
						zap.Error(err))
					if errors.Is(err, gobreaker.ErrOpenState) {
						continue instances
					}
					continue
				}
				if len(items) == 0 {
					c.logger.Debug("searxng empty result set",
						zap.String("query", q), zap.String("language", lang))
					continue
				}
				for _, it := range items {
					raw++
					r, ok := c.filter(it)
					if !ok {
						continue
					}
					if _, dup := seen[r.URL]; dup {
						continue
					}
					seen[r.URL] = struct{}{}
					if r.DomainTrust > trustedAbove {
						collected = append([]models.WebResult{r}, collected...)
					} else {
						collected = append(collected, r)
					}
					if len(collected) >= limit {
						continue instances
					}
				}
			}
		}
	}

	sort.SliceStable(collected, func(i, j int) bool {
		return collected[i].QualityScore*collected[i].DomainTrust > collected[j].QualityScore*collected[j].DomainTrust
	})
	final := collected
	if len(final) > maxResults {
		final = final[:maxResults]
	}

	c.logger.Info("web search finished",
		zap.String("query", query),
		zap.Int("results", len(final)),
		zap.Int("filtered", len(collected)),
		zap.Int("raw", raw))

	if c.cache != nil {
		c.cache.Put(key, final)
	}
	return final
}

// filter applies the skip list and quality floor, then truncates the result.
func (c *Client) filter(it searxItem) (models.WebResult, bool) {
	for _, d := range c.skipDomains {
		if d != "" && strings.Contains(it.URL, d) {
			return models.WebResult{}, false
		}
	}
	qa := c.assessor.Assess(it.Content, it.Title, it.URL)
	if qa.QualityScore < c.floor {
		c.stats.Inc(metrics.QualityRejected)
		return models.WebResult{}, false
	}
	return models.WebResult{
		Title:        utils.Prefix(it.Title, titleRunes),
		URL:          it.URL,
		Content:      utils.Prefix(it.Content, contentRunes),
		QualityScore: qa.QualityScore,
		DomainTrust:  qa.DomainTrust,
	}, true
}

// expand substitutes the query and current year into each variation.
func (c *Client) expand(query string) []string {
	year := strconv.Itoa(c.now().Year())
	out := make([]string, 0, len(c.variations))
	for _, v := range c.variations {
		q := strings.ReplaceAll(v, "{query}", query)
		q = strings.ReplaceAll(q, "{year}", year)
		out = append(out, strings.TrimSpace(q))
	}
	return out
}

// languages returns the requested language followed by "all".
func languages(language string) []string {
	if language == "" || language == "all" {
		return []string{"all"}
	}
	return []string{language, "all"}
}

type searxItem struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

type searxResponse struct {
	Results []searxItem `json:"results"`
}

// errStatus is a non-200 answer that does not count against the breaker.
type errStatus struct{ code int }

func (e errStatus) Error() string { return fmt.Sprintf("searxng returned HTTP %d", e.code) }

func (c *Client) query(ctx context.Context, inst instance, q, lang string) ([]searxItem, error) {
	var status errStatus
	out, err := inst.breaker.Execute(func() (interface{}, error) {
		items, err := c.do(ctx, inst.baseURL, q, lang)
		if errors.As(err, &status) && status.code < http.StatusInternalServerError {
			return nil, nil
		}
		return items, err
	})
	if err != nil {
		return nil, err
	}
	if status.code != 0 {
		return nil, status
	}
	items, _ := out.([]searxItem)
	return items, nil
}

func (c *Client) do(ctx context.Context, baseURL, q, lang string) ([]searxItem, error) {
	params := url.Values{}
	params.Set("q", q)
	params.Set("format", "json")
	params.Set("safesearch", "0")
	if lang != "" {
		params.Set("language", lang)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, errStatus{code: resp.StatusCode}
	}
	var body searxResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return body.Results, nil
}
