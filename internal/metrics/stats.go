// Package metrics holds the process-wide pipeline counters and exports them
// to Prometheus.
package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/hyperjump/kanit/pkg/utils"
)

// Counter names one pipeline counter.
type Counter int

const (
	TotalQueries Counter = iota
	TotalWebSearches
	TotalScraped
	TotalDocuments
	CacheHits
	CacheMisses
	QualityRejected
	CrossVerified
	ConflictsResolved
	numCounters
)

var counterNames = [numCounters]string{
	TotalQueries:      "total_queries",
	TotalWebSearches:  "total_web_searches",
	TotalScraped:      "total_scraped",
	TotalDocuments:    "total_documents",
	CacheHits:         "cache_hits",
	CacheMisses:       "cache_misses",
	QualityRejected:   "quality_rejected",
	CrossVerified:     "cross_verified",
	ConflictsResolved: "conflicts_resolved",
}

// String returns the snake_case counter name.
func (c Counter) String() string {
	if c < 0 || c >= numCounters {
		return "unknown"
	}
	return counterNames[c]
}

// confidenceWindow is how many recent confidence values are averaged.
const confidenceWindow = 100

// Stats is safe for concurrent use. All methods accept a nil receiver and
// do nothing, so components can run without metrics.
type Stats struct {
	counters [numCounters]atomic.Int64

	mu          sync.Mutex
	confidences []float64
	next        int
}

// NewStats returns zeroed stats.
func NewStats() *Stats {
	return &Stats{confidences: make([]float64, 0, confidenceWindow)}
}

// Inc adds one to c.
func (s *Stats) Inc(c Counter) {
	s.Add(c, 1)
}

// Add adds n to c.
func (s *Stats) Add(c Counter, n int64) {
	if s == nil || c < 0 || c >= numCounters {
		return
	}
	s.counters[c].Add(n)
}

// Set overwrites c. Used for gauges that mirror storage, such as
// TotalDocuments.
func (s *Stats) Set(c Counter, n int64) {
	if s == nil || c < 0 || c >= numCounters {
		return
	}
	s.counters[c].Store(n)
}

// Get returns the current value of c.
func (s *Stats) Get(c Counter) int64 {
	if s == nil || c < 0 || c >= numCounters {
		return 0
	}
	return s.counters[c].Load()
}

// RecordConfidence appends v to the ring of recent confidence values.
func (s *Stats) RecordConfidence(v float64) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.confidences) < confidenceWindow {
		s.confidences = append(s.confidences, v)
		return
	}
	s.confidences[s.next] = v
	s.next = (s.next + 1) % confidenceWindow
}

// AvgConfidence returns the mean of the recorded values rounded to 2 places,
// or 0 when none were recorded.
func (s *Stats) AvgConfidence() float64 {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.confidences) == 0 {
		return 0
	}
	var sum float64
	for _, v := range s.confidences {
		sum += v
	}
	return utils.Round(sum/float64(len(s.confidences)), 2)
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	TotalQueries      int64   `json:"total_queries"`
	TotalWebSearches  int64   `json:"total_web_searches"`
	TotalScraped      int64   `json:"total_scraped"`
	TotalDocuments    int64   `json:"total_documents"`
	CacheHits         int64   `json:"cache_hits"`
	CacheMisses       int64   `json:"cache_misses"`
	QualityRejected   int64   `json:"quality_rejected"`
	CrossVerified     int64   `json:"cross_verified"`
	ConflictsResolved int64   `json:"conflicts_resolved"`
	AvgConfidence     float64 `json:"avg_confidence"`
}

// CacheHitRate returns hits / (hits + misses) as a percentage rounded to 1 place.
func (s Snapshot) CacheHitRate() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return utils.Round(float64(s.CacheHits)/float64(total)*100, 1)
}

// Snapshot returns a copy of the current values.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		TotalQueries:      s.Get(TotalQueries),
		TotalWebSearches:  s.Get(TotalWebSearches),
		TotalScraped:      s.Get(TotalScraped),
		TotalDocuments:    s.Get(TotalDocuments),
		CacheHits:         s.Get(CacheHits),
		CacheMisses:       s.Get(CacheMisses),
		QualityRejected:   s.Get(QualityRejected),
		CrossVerified:     s.Get(CrossVerified),
		ConflictsResolved: s.Get(ConflictsResolved),
		AvgConfidence:     s.AvgConfidence(),
	}
}

// Reset zeroes every counter and drops recorded confidences.
func (s *Stats) Reset() {
	if s == nil {
		return
	}
	for i := range s.counters {
		s.counters[i].Store(0)
	}
	s.mu.Lock()
	s.confidences = s.confidences[:0]
	s.next = 0
	s.mu.Unlock()
}
