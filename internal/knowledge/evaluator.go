package knowledge

import (
	"sort"
	"time"

	"github.com/hyperjump/kanit/internal/metrics"
	"github.com/hyperjump/kanit/internal/models"
	"github.com/hyperjump/kanit/internal/quality"
	"github.com/hyperjump/kanit/internal/trust"
	"github.com/hyperjump/kanit/internal/verify"
	"github.com/hyperjump/kanit/pkg/utils"
)

const (
	// freshnessWindow is the span over which freshness decays linearly.
	freshnessWindow = 30 * 24 * time.Hour
	minFreshness    = 0.3
)

// Assessor scores snippet content.
type Assessor interface {
	Assess(content, title, url string) models.QualityAssessment
}

// Evaluator turns web and knowledge base snippets into a ranked evidence set.
// It holds no mutable state and is safe for concurrent use.
type Evaluator struct {
	assessor Assessor
	weights  SourceWeights
	facts    *FactTable
	verifier verify.Verifier
	detector verify.ConflictDetector
	stats    *metrics.Stats
	now      func() time.Time
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithAssessor replaces the default quality assessor.
func WithAssessor(a Assessor) Option {
	return func(e *Evaluator) { e.assessor = a }
}

// WithSourceWeights replaces the source prior table.
func WithSourceWeights(w SourceWeights) Option {
	return func(e *Evaluator) { e.weights = w }
}

// WithFacts replaces the core fact table.
func WithFacts(t *FactTable) Option {
	return func(e *Evaluator) { e.facts = t }
}

// WithVerifier replaces the cross verifier.
func WithVerifier(v verify.Verifier) Option {
	return func(e *Evaluator) { e.verifier = v }
}

// WithConflictDetector replaces the conflict detector.
func WithConflictDetector(d verify.ConflictDetector) Option {
	return func(e *Evaluator) { e.detector = d }
}

// WithMetrics counts cross verifications and resolved conflicts in s.
func WithMetrics(s *metrics.Stats) Option {
	return func(e *Evaluator) { e.stats = s }
}

// WithClock sets the time source used for freshness.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

// NewEvaluator returns an evaluator with the default tables, a lexical
// verifier and a no-op conflict detector.
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{
		weights:  DefaultSourceWeights(),
		verifier: verify.NewLexical(),
		detector: verify.NoConflicts{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.assessor == nil {
		e.assessor = quality.NewAssessor(trust.NewScorer(trust.DefaultTiers()))
	}
	if e.facts == nil {
		e.facts = NewFactTable(DefaultFacts(), e.now())
	}
	return e
}

// Evaluate scores every snippet, appends relevant core facts, cross-verifies
// the set and ranks it by confidence. Input slices are not modified.
func (e *Evaluator) Evaluate(web, db []models.InformationSnippet, query string) models.EvaluationResult {
	facts := e.facts.Relevant(query)

	all := make([]models.InformationSnippet, 0, len(web)+len(db)+len(facts))
	all = append(all, web...)
	all = append(all, db...)
	for _, f := range facts {
		s := models.NewSnippet(f.Fact, models.SourceCoreKnowledge, "", f.LastVerified)
		s.Confidence = f.Confidence
		s.Category = f.Category
		all = append(all, s)
	}

	now := e.now()
	for i := range all {
		s := &all[i]
		s.Freshness = Freshness(s.Timestamp, now)

		// The URL stands in for the title here.
		qa := e.assessor.Assess(s.Content, s.SourceURL, s.SourceURL)
		s.QualityScore = qa.QualityScore
		s.DomainTrust = qa.DomainTrust

		w := e.weights.Weight(s.SourceType)
		s.Confidence = utils.Round(w*s.Freshness*s.QualityScore*s.DomainTrust, 2)
	}

	cv := e.verifier.Verify(all, query)
	if len(all) >= 2 {
		e.stats.Inc(metrics.CrossVerified)
	}
	conflicts := e.detector.Detect(all)
	if conflicts == nil {
		conflicts = []models.Conflict{}
	}
	e.stats.Add(metrics.ConflictsResolved, int64(len(conflicts)))

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Confidence > all[j].Confidence
	})

	highest := 0.0
	if len(all) > 0 {
		highest = all[0].Confidence
	}
	return models.EvaluationResult{
		Snippets:          all,
		HasConflicts:      len(conflicts) > 0,
		Conflicts:         conflicts,
		HighestConfidence: highest,
		CoreKnowledgeUsed: len(facts),
		CrossVerification: cv,
	}
}

// Freshness decays linearly from 1.0 to 0.3 over 30 days. Timestamps in the
// future count as zero elapsed time.
func Freshness(ts, now time.Time) float64 {
	elapsed := now.Sub(ts)
	if elapsed < 0 {
		elapsed = 0
	}
	f := 1.0 - elapsed.Hours()/freshnessWindow.Hours()
	if f < minFreshness {
		return minFreshness
	}
	return f
}
