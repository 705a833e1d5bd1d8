// Package models defines evidence, evaluation, search and conversation types.
package models

import (
	"encoding/json"
	"time"
)

// SourceType identifies where a piece of evidence came from.
type SourceType string

const (
	SourceInternalKB    SourceType = "internal_kb"
	SourceGeneralWeb    SourceType = "general_web"
	SourceOfficialSite  SourceType = "official_site"
	SourceReputableNews SourceType = "reputable_news"
	SourceUserUploaded  SourceType = "user_uploaded"
	SourceCoreKnowledge SourceType = "core_knowledge"
	SourceUnknown       SourceType = "unknown"
)

// SourceTypes lists the closed set of known source types.
var SourceTypes = []SourceType{
	SourceInternalKB,
	SourceGeneralWeb,
	SourceOfficialSite,
	SourceReputableNews,
	SourceUserUploaded,
	SourceCoreKnowledge,
	SourceUnknown,
}

// Valid reports whether s is one of the known source types.
func (s SourceType) Valid() bool {
	for _, t := range SourceTypes {
		if s == t {
			return true
		}
	}
	return false
}

// InformationSnippet is one unit of retrieved evidence with provenance metadata.
// Confidence is derived: the evaluator overwrites it before ranking.
type InformationSnippet struct {
	Content      string     `json:"content"`
	SourceType   SourceType `json:"source_type"`
	SourceURL    string     `json:"source_url,omitempty"`
	Confidence   float64    `json:"confidence"`
	Timestamp    time.Time  `json:"timestamp"`
	Freshness    float64    `json:"freshness"`
	Category     string     `json:"category,omitempty"`
	QualityScore float64    `json:"quality_score"`
	DomainTrust  float64    `json:"domain_trust"`
}

// NewSnippet returns a snippet with the documented defaults
// (confidence, quality and trust 0.5, freshness 1.0).
func NewSnippet(content string, sourceType SourceType, sourceURL string, ts time.Time) InformationSnippet {
	return InformationSnippet{
		Content:      content,
		SourceType:   sourceType,
		SourceURL:    sourceURL,
		Confidence:   0.5,
		Timestamp:    ts,
		Freshness:    1.0,
		QualityScore: 0.5,
		DomainTrust:  0.5,
	}
}

// UnmarshalJSON decodes a snippet, keeping the NewSnippet defaults for
// fields the input omits.
func (s *InformationSnippet) UnmarshalJSON(data []byte) error {
	type plain InformationSnippet
	v := plain(NewSnippet("", "", "", time.Time{}))
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = InformationSnippet(v)
	return nil
}

// CoreKnowledgeFact is a static, always-available fact.
type CoreKnowledgeFact struct {
	Fact         string    `json:"fact" yaml:"fact" validate:"required"`
	Category     string    `json:"category" yaml:"category"`
	LastVerified time.Time `json:"last_verified" yaml:"-"`
	Confidence   float64   `json:"confidence" yaml:"confidence" validate:"gte=0,lte=1"`
}

// QualityAssessment is the transient per-snippet output of the quality assessor.
type QualityAssessment struct {
	QualityScore  float64 `json:"quality_score"`
	DomainTrust   float64 `json:"domain_trust"`
	ContentLength int     `json:"content_length"`
	SentenceCount int     `json:"sentence_count"`
}
