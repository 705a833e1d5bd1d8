// Package knowledge fuses retrieved evidence with static core facts into a
// ranked, confidence-scored result.
package knowledge

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"

	"github.com/hyperjump/kanit/internal/models"
)

// maxRelevantFacts bounds how many core facts join one evaluation.
const maxRelevantFacts = 3

// DefaultFacts returns the built-in core knowledge.
func DefaultFacts() []models.CoreKnowledgeFact {
	return []models.CoreKnowledgeFact{
		{Fact: "Türkiye'nin başkenti Ankara'dır", Category: "coğrafya", Confidence: 0.95},
		{Fact: "İstanbul Türkiye'nin en kalabalık şehridir", Category: "coğrafya", Confidence: 0.90},
		{Fact: "Python popüler bir programlama dilidir", Category: "teknoloji", Confidence: 0.85},
		{Fact: "Yapay zeka makine öğrenimi ve derin öğrenme tekniklerini kullanır", Category: "teknoloji", Confidence: 0.80},
	}
}

// FactTable is an immutable set of core facts keyed by the md5 of the fact
// text. Iteration follows insertion order.
type FactTable struct {
	keys  []string
	facts map[string]models.CoreKnowledgeFact
}

// NewFactTable builds a table from facts. Facts with identical text collapse
// to the first occurrence. A zero LastVerified is set to verifiedAt.
func NewFactTable(facts []models.CoreKnowledgeFact, verifiedAt time.Time) *FactTable {
	t := &FactTable{facts: make(map[string]models.CoreKnowledgeFact, len(facts))}
	for _, f := range facts {
		key := FactKey(f.Fact)
		if _, ok := t.facts[key]; ok {
			continue
		}
		if f.LastVerified.IsZero() {
			f.LastVerified = verifiedAt
		}
		t.keys = append(t.keys, key)
		t.facts[key] = f
	}
	return t
}

// FactKey returns the hex md5 of fact.
func FactKey(fact string) string {
	sum := md5.Sum([]byte(fact))
	return hex.EncodeToString(sum[:])
}

// Len returns the number of facts.
func (t *FactTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.keys)
}

// Get returns the fact stored under key.
func (t *FactTable) Get(key string) (models.CoreKnowledgeFact, bool) {
	if t == nil {
		return models.CoreKnowledgeFact{}, false
	}
	f, ok := t.facts[key]
	return f, ok
}

// All returns a copy of the facts in insertion order.
func (t *FactTable) All() []models.CoreKnowledgeFact {
	if t == nil {
		return nil
	}
	out := make([]models.CoreKnowledgeFact, len(t.keys))
	for i, k := range t.keys {
		out[i] = t.facts[k]
	}
	return out
}

// Relevant returns at most three facts whose lower-cased text contains the
// lower-cased query, or contains any whitespace-separated query word.
func (t *FactTable) Relevant(query string) []models.CoreKnowledgeFact {
	if t == nil {
		return nil
	}
	q := strings.ToLower(query)
	words := strings.Fields(q)

	var out []models.CoreKnowledgeFact
	for _, k := range t.keys {
		f := t.facts[k]
		if matches(strings.ToLower(f.Fact), q, words) {
			out = append(out, f)
			if len(out) == maxRelevantFacts {
				break
			}
		}
	}
	return out
}

func matches(fact, query string, words []string) bool {
	if strings.Contains(fact, query) {
		return true
	}
	for _, w := range words {
		if strings.Contains(fact, w) {
			return true
		}
	}
	return false
}
