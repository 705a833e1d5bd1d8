// Package quality scores the intrinsic quality of a text snippet.
package quality

import (
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/kanit/internal/models"
	"github.com/hyperjump/kanit/pkg/utils"
)

// Score bounds.
const (
	MinScore  = 0.1
	MaxScore  = 1.0
	baseScore = 0.5
)

// structureMarkers are bullet and ordinal markers that indicate structured text.
var structureMarkers = []string{"•", "- ", "1.", "2.", "3."}

// TrustScorer returns the a priori trust of a URL.
type TrustScorer interface {
	Score(url string) float64
}

// Assessor computes QualityAssessments. It is pure: identical inputs always
// produce identical outputs.
type Assessor struct {
	trust TrustScorer
}

// NewAssessor creates an assessor that uses trust for the domain component.
func NewAssessor(trust TrustScorer) *Assessor {
	return &Assessor{trust: trust}
}

// Assess scores content. Every adjustment is additive and only the final
// score is clamped to [MinScore, MaxScore].
func (a *Assessor) Assess(content, title, url string) models.QualityAssessment {
	score := baseScore

	length := utf8.RuneCountInString(content)
	score += lengthAdjustment(length)

	sentences := strings.Count(content, ".") + strings.Count(content, "!") + strings.Count(content, "?")
	if sentences > 3 {
		score += 0.2
	}

	if strings.Count(content, "\n\n") > 1 {
		score += 0.1
	}

	score += diversityAdjustment(strings.Fields(content))

	if hasStructure(content) {
		score += 0.1
	}

	domainTrust := a.trust.Score(url)
	score += domainTrust * 0.2

	if title != "" && content != "" && titleOverlaps(title, content) {
		score += 0.1
	}

	return models.QualityAssessment{
		QualityScore:  utils.Clamp(score, MinScore, MaxScore),
		DomainTrust:   domainTrust,
		ContentLength: length,
		SentenceCount: sentences,
	}
}

// lengthAdjustment rewards longer content and penalizes very short content.
// The <50 and <20 penalties stack.
func lengthAdjustment(n int) float64 {
	adj := 0.0
	switch {
	case n > 500:
		adj += 0.3
	case n > 200:
		adj += 0.2
	case n > 100:
		adj += 0.1
	}
	if n < 50 {
		adj -= 0.3
	}
	if n < 20 {
		adj -= 0.5
	}
	return adj
}

// diversityAdjustment penalizes repetitive text and rewards varied vocabulary.
// Only applies to content with more than 10 words.
func diversityAdjustment(words []string) float64 {
	if len(words) <= 10 {
		return 0
	}
	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		unique[w] = struct{}{}
	}
	ratio := float64(len(unique)) / float64(len(words))
	switch {
	case ratio < 0.4:
		return -0.3
	case ratio > 0.8:
		return 0.1
	}
	return 0
}

func hasStructure(content string) bool {
	for _, m := range structureMarkers {
		if strings.Contains(content, m) {
			return true
		}
	}
	return false
}

// titleOverlaps reports whether any of the first 5 title words appears among
// the first 20 content words (both lower-cased).
func titleOverlaps(title, content string) bool {
	titleWords := firstN(strings.Fields(strings.ToLower(title)), 5)
	contentWords := firstN(strings.Fields(strings.ToLower(content)), 20)
	start := make(map[string]struct{}, len(contentWords))
	for _, w := range contentWords {
		start[w] = struct{}{}
	}
	for _, w := range titleWords {
		if _, ok := start[w]; ok {
			return true
		}
	}
	return false
}

func firstN(words []string, n int) []string {
	if len(words) > n {
		return words[:n]
	}
	return words
}
