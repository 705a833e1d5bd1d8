package websearch

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kanit/internal/cache"
	"github.com/hyperjump/kanit/internal/metrics"
	"github.com/hyperjump/kanit/internal/models"
)

type stubAssessor map[string]models.QualityAssessment

func (s stubAssessor) Assess(content, title, url string) models.QualityAssessment {
	if qa, ok := s[url]; ok {
		return qa
	}
	return models.QualityAssessment{QualityScore: 0.5, DomainTrust: 0.5}
}

type searxRequest struct {
	Query    string
	Language string
}

// fakeSearx serves canned results and records every request.
type fakeSearx struct {
	mu       sync.Mutex
	requests []searxRequest
	status   int
	results  func(q, lang string) []searxItem
}

func (f *fakeSearx) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f.mu.Lock()
	f.requests = append(f.requests, searxRequest{Query: q.Get("q"), Language: q.Get("language")})
	f.mu.Unlock()
	if r.URL.Path != "/search" || q.Get("format") != "json" || q.Get("safesearch") != "0" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if f.status != 0 {
		w.WriteHeader(f.status)
		return
	}
	var items []searxItem
	if f.results != nil {
		items = f.results(q.Get("q"), q.Get("language"))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(searxResponse{Results: items})
}

func (f *fakeSearx) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func newSearx(t *testing.T, f *fakeSearx) string {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return srv.URL
}

func fixedYear() time.Time {
	return time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
}

func TestClient_SearchFiltersAndRanks(t *testing.T) {
	fake := &fakeSearx{results: func(q, lang string) []searxItem {
		if q != "istanbul" || lang != "tr" {
			return nil
		}
		return []searxItem{
			{URL: "https://a.com/1", Title: "A", Content: "a content"},
			{URL: "https://facebook.com/x", Title: "FB", Content: "social"},
			{URL: "https://low.com/1", Title: "Low", Content: "x"},
			{URL: "https://www.istanbul.gov.tr/", Title: "Gov", Content: "gov content"},
			{URL: "https://b.com/1", Title: "B", Content: "b content"},
		}
	}}
	assessor := stubAssessor{
		"https://a.com/1":             {QualityScore: 0.5, DomainTrust: 0.5},
		"https://low.com/1":           {QualityScore: 0.1, DomainTrust: 0.5},
		"https://www.istanbul.gov.tr/": {QualityScore: 0.6, DomainTrust: 0.95},
		"https://b.com/1":             {QualityScore: 0.9, DomainTrust: 0.5},
	}
	stats := metrics.NewStats()
	c := NewClient([]string{newSearx(t, fake)}, assessor, WithStats(stats), WithClock(fixedYear))

	got := c.Search(t.Context(), "istanbul", 2, "tr")
	require.Len(t, got, 2)
	assert.Equal(t, "https://www.istanbul.gov.tr/", got[0].URL)
	assert.Equal(t, "https://b.com/1", got[1].URL)
	assert.InDelta(t, 0.95, got[0].DomainTrust, 1e-9)
	assert.Equal(t, int64(1), stats.Get(metrics.QualityRejected))
}

func TestClient_SearchTruncatesRunes(t *testing.T) {
	title := strings.Repeat("ş", 200)
	content := strings.Repeat("ğ", 500)
	fake := &fakeSearx{results: func(q, lang string) []searxItem {
		return []searxItem{{URL: "https://a.com/", Title: title, Content: content}}
	}}
	c := NewClient([]string{newSearx(t, fake)}, stubAssessor{})

	got := c.Search(t.Context(), "x", 5, "tr")
	require.Len(t, got, 1)
	assert.Equal(t, strings.Repeat("ş", 150), got[0].Title)
	assert.Equal(t, strings.Repeat("ğ", 400), got[0].Content)
}

func TestClient_SearchVariationsAndLanguages(t *testing.T) {
	fake := &fakeSearx{}
	sc := cache.NewSearchCache(10, time.Hour, nil)
	c := NewClient([]string{newSearx(t, fake)}, stubAssessor{}, WithCache(sc), WithClock(fixedYear))

	got := c.Search(t.Context(), "kedi", 5, "tr")
	assert.Empty(t, got)
	assert.Equal(t, []searxRequest{
		{"kedi", "tr"}, {"kedi", "all"},
		{"kedi 2026", "tr"}, {"kedi 2026", "all"},
		{"kedi detaylı", "tr"}, {"kedi detaylı", "all"},
	}, fake.requests)
	assert.Equal(t, 0, sc.Len(), "empty results are never cached")
}

func TestClient_SearchStopsAtTwiceMax(t *testing.T) {
	fake := &fakeSearx{results: func(q, lang string) []searxItem {
		items := make([]searxItem, 10)
		for i := range items {
			items[i] = searxItem{URL: "https://site.com/" + string(rune('a'+i)) + "/" + q + lang, Title: "t", Content: "c"}
		}
		return items
	}}
	c := NewClient([]string{newSearx(t, fake)}, stubAssessor{})

	got := c.Search(t.Context(), "q", 2, "tr")
	assert.Len(t, got, 2)
	assert.Equal(t, 1, fake.count())
}

func TestClient_SearchCapStopsOnlyCurrentInstance(t *testing.T) {
	page := func(host string) func(q, lang string) []searxItem {
		return func(q, lang string) []searxItem {
			items := make([]searxItem, 10)
			for i := range items {
				items[i] = searxItem{URL: "https://" + host + "/" + string(rune('a'+i)), Title: "t", Content: "c"}
			}
			return items
		}
	}
	first := &fakeSearx{results: page("one.com")}
	second := &fakeSearx{results: page("two.com")}
	c := NewClient([]string{newSearx(t, first), newSearx(t, second)}, stubAssessor{})

	got := c.Search(t.Context(), "q", 2, "tr")
	assert.Len(t, got, 2)
	assert.Equal(t, 1, first.count())
	assert.Equal(t, 1, second.count(), "the next instance is still queried after the cap")
}

func TestClient_SearchDeduplicatesURLs(t *testing.T) {
	fake := &fakeSearx{results: func(q, lang string) []searxItem {
		return []searxItem{{URL: "https://same.com/", Title: "t", Content: "c"}}
	}}
	c := NewClient([]string{newSearx(t, fake)}, stubAssessor{})

	got := c.Search(t.Context(), "q", 5, "tr")
	assert.Len(t, got, 1)
	assert.Equal(t, 6, fake.count())
}

func TestClient_SearchUsesCache(t *testing.T) {
	fake := &fakeSearx{results: func(q, lang string) []searxItem {
		return []searxItem{{URL: "https://a.com/", Title: "t", Content: "c"}}
	}}
	stats := metrics.NewStats()
	sc := cache.NewSearchCache(10, time.Hour, stats)
	c := NewClient([]string{newSearx(t, fake)}, stubAssessor{}, WithCache(sc))

	first := c.Search(t.Context(), "Ankara  Nüfus", 5, "tr")
	require.Len(t, first, 1)
	calls := fake.count()

	second := c.Search(t.Context(), "ankara nüfus", 5, "tr")
	assert.Equal(t, first, second)
	assert.Equal(t, calls, fake.count(), "cache hit must not query searxng")
	assert.Equal(t, int64(1), stats.Get(metrics.CacheHits))
	assert.Equal(t, int64(1), stats.Get(metrics.CacheMisses))
}

func TestClient_BreakerOpensOnServerErrors(t *testing.T) {
	fake := &fakeSearx{status: http.StatusBadGateway}
	c := NewClient([]string{newSearx(t, fake)}, stubAssessor{}, WithBreaker(2, time.Minute))

	assert.Empty(t, c.Search(t.Context(), "a", 5, "tr"))
	assert.Equal(t, 2, fake.count())

	assert.Empty(t, c.Search(t.Context(), "b", 5, "tr"))
	assert.Equal(t, 2, fake.count(), "open breaker skips the instance")
}

func TestClient_ClientErrorsDoNotTripBreaker(t *testing.T) {
	fake := &fakeSearx{status: http.StatusNotFound}
	c := NewClient([]string{newSearx(t, fake)}, stubAssessor{}, WithBreaker(1, time.Minute))

	assert.Empty(t, c.Search(t.Context(), "a", 5, "tr"))
	assert.Equal(t, 6, fake.count())
}

func TestClient_FallsThroughToNextInstance(t *testing.T) {
	dead := &fakeSearx{status: http.StatusInternalServerError}
	live := &fakeSearx{results: func(q, lang string) []searxItem {
		return []searxItem{{URL: "https://a.com/", Title: "t", Content: "c"}}
	}}
	c := NewClient([]string{newSearx(t, dead), newSearx(t, live)}, stubAssessor{}, WithBreaker(1, time.Minute))

	got := c.Search(t.Context(), "q", 5, "tr")
	require.Len(t, got, 1)
	assert.Equal(t, 1, dead.count())
}

func TestExpandAndLanguages(t *testing.T) {
	c := NewClient(nil, stubAssessor{}, WithClock(fixedYear), WithVariations([]string{"{query}", "{year} {query} haber"}))
	assert.Equal(t, []string{"deprem", "2026 deprem haber"}, c.expand("deprem"))
	assert.Equal(t, []string{"tr", "all"}, languages("tr"))
	assert.Equal(t, []string{"all"}, languages(""))
	assert.Equal(t, []string{"all"}, languages("all"))
}
