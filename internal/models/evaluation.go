package models

// SourceRef describes one snippet that supports or contradicts a key phrase.
type SourceRef struct {
	Source         string  `json:"source"`
	Confidence     float64 `json:"confidence"`
	ContentPreview string  `json:"content_preview"`
}

// PhraseVerification is the per-phrase outcome of cross-verification.
type PhraseVerification struct {
	Phrase             string      `json:"key_phrase"`
	SupportingCount    int         `json:"supporting_count"`
	ConflictingCount   int         `json:"conflicting_count"`
	SupportingSources  []SourceRef `json:"supporting_sources"`
	ConflictingSources []SourceRef `json:"conflicting_sources"`
}

// Supported reports whether supporting evidence outweighs conflicting evidence.
func (p PhraseVerification) Supported() bool {
	return p.SupportingCount > p.ConflictingCount
}

// CrossVerificationResult summarizes multi-source agreement on query key phrases.
type CrossVerificationResult struct {
	Verified     bool                 `json:"verified"`
	Consensus    float64              `json:"consensus"`
	Results      []PhraseVerification `json:"verification_results"`
	TotalSources int                  `json:"total_sources"`
}

// Conflict is a detected contradiction between snippets.
type Conflict struct {
	Kind        string      `json:"kind"`
	Description string      `json:"description"`
	Sources     []SourceRef `json:"sources"`
}

// EvaluationResult is the ranked, confidence-scored evidence set.
type EvaluationResult struct {
	Snippets          []InformationSnippet    `json:"snippets"`
	HasConflicts      bool                    `json:"has_conflicts"`
	Conflicts         []Conflict              `json:"conflicts"`
	HighestConfidence float64                 `json:"highest_confidence"`
	CoreKnowledgeUsed int                     `json:"core_knowledge_used"`
	CrossVerification CrossVerificationResult `json:"cross_verification"`
}

// Top returns at most n leading snippets.
func (r *EvaluationResult) Top(n int) []InformationSnippet {
	if n < 0 || n >= len(r.Snippets) {
		return r.Snippets
	}
	return r.Snippets[:n]
}
