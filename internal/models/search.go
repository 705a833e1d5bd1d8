package models

import "time"

// WebResult is one filtered web search candidate.
type WebResult struct {
	Title        string  `json:"title"`
	URL          string  `json:"url"`
	Content      string  `json:"content"`
	QualityScore float64 `json:"quality_score"`
	DomainTrust  float64 `json:"domain_trust"`
}

// KBHit is one similarity search hit from the knowledge base.
// Relevance is a percentage and is informational only.
type KBHit struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata"`
	Relevance float64           `json:"relevance"`
}

// KBDocument is a knowledge base document as persisted in storage.
type KBDocument struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"created_at"`
}
