package verify

import (
	"strings"

	"github.com/hyperjump/kanit/internal/models"
	"github.com/hyperjump/kanit/pkg/utils"
)

const (
	// maxPhrases is how many leading key phrases are checked.
	maxPhrases = 3
	// previewRunes bounds SourceRef.ContentPreview.
	previewRunes = 100
)

// negations are prefixed to a phrase to detect a contradicting snippet.
var negations = []string{"değil ", "yanlış ", "olmamış ", "iptal "}

// Verifier reports how far a set of snippets agrees on a query.
type Verifier interface {
	Verify(snippets []models.InformationSnippet, query string) models.CrossVerificationResult
}

// Lexical verifies by literal substring matching. A snippet supports a phrase
// when it contains the phrase and conflicts when it contains a negated form of
// it. This is word overlap, not entailment: paraphrases never support, and a
// negation elsewhere in the sentence never conflicts.
type Lexical struct{}

// NewLexical returns the substring based verifier.
func NewLexical() *Lexical {
	return &Lexical{}
}

// Verify implements Verifier. Fewer than two snippets cannot be verified and
// yield a zero result.
func (Lexical) Verify(snippets []models.InformationSnippet, query string) models.CrossVerificationResult {
	if len(snippets) < 2 {
		return models.CrossVerificationResult{TotalSources: len(snippets)}
	}

	phrases := KeyPhrases(query)
	if len(phrases) > maxPhrases {
		phrases = phrases[:maxPhrases]
	}

	lowered := make([]string, len(snippets))
	for i, s := range snippets {
		lowered[i] = strings.ToLower(s.Content)
	}

	results := make([]models.PhraseVerification, 0, len(phrases))
	supported := 0
	for _, phrase := range phrases {
		p := strings.ToLower(phrase)
		pv := models.PhraseVerification{
			Phrase:             phrase,
			SupportingSources:  []models.SourceRef{},
			ConflictingSources: []models.SourceRef{},
		}
		for i, s := range snippets {
			switch {
			case strings.Contains(lowered[i], p):
				pv.SupportingSources = append(pv.SupportingSources, sourceRef(s))
			case negated(lowered[i], p):
				pv.ConflictingSources = append(pv.ConflictingSources, sourceRef(s))
			}
		}
		pv.SupportingCount = len(pv.SupportingSources)
		pv.ConflictingCount = len(pv.ConflictingSources)
		if pv.Supported() {
			supported++
		}
		results = append(results, pv)
	}

	consensus := 0.0
	if len(results) > 0 {
		consensus = float64(supported) / float64(len(results))
	}
	return models.CrossVerificationResult{
		Verified:     consensus > 0.5,
		Consensus:    utils.Round(consensus, 2),
		Results:      results,
		TotalSources: len(snippets),
	}
}

func negated(content, phrase string) bool {
	for _, n := range negations {
		if strings.Contains(content, n+phrase) {
			return true
		}
	}
	return false
}

func sourceRef(s models.InformationSnippet) models.SourceRef {
	return models.SourceRef{
		Source:         s.SourceURL,
		Confidence:     s.Confidence,
		ContentPreview: utils.Prefix(s.Content, previewRunes),
	}
}
