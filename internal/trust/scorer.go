// Package trust classifies URLs into a priori domain trust tiers.
package trust

import "strings"

// Tier scores.
const (
	OfficialScore = 0.95
	NewsScore     = 0.85
	CuratedScore  = 0.80
	SpamScore     = 0.10
	DefaultScore  = 0.50
)

// Tiers holds the domain fragments for each trust tier. Matching is a
// case-insensitive substring test against the full URL.
type Tiers struct {
	Official []string `yaml:"official"`
	News     []string `yaml:"news"`
	Curated  []string `yaml:"curated"`
	Spam     []string `yaml:"spam"`
}

// DefaultTiers returns the built-in tier lists.
func DefaultTiers() Tiers {
	return Tiers{
		Official: []string{".gov.tr", ".edu.tr", ".k12.tr", ".tbb.org.tr", ".tbmm.gov.tr"},
		News: []string{
			"ntv.com.tr", "haberturk.com", "hurriyet.com.tr", "milliyet.com.tr",
			"cnnturk.com", "aa.com.tr", "trthaber.com", "bloomberght.com",
			"bbc.com/turkce", "dw.com/tr", "euronews.com/tr",
		},
		Curated: []string{
			// tech
			"webrazzi.com", "shiftdelete.net", "technopat.net", "chip.com.tr",
			"donanimhaber.com", "logic.com.tr",
			// health
			"saglik.gov.tr", "medicalpark.com.tr", "acibadem.com.tr", "memorial.com.tr",
			// sports
			"ntvspor.net", "aspor.com.tr", "fanatik.com.tr", "tff.org",
			"transfermarkt.com.tr", "beinsports.com.tr", "eurosport.com.tr",
		},
		Spam: []string{"click.com", "spam.com", "fake.com"},
	}
}

// Scorer maps a URL to a trust score. It is immutable and safe for concurrent use.
type Scorer struct {
	tiers []tier
}

type tier struct {
	domains []string
	score   float64
}

// NewScorer builds a scorer from tiers. Domain fragments are lower-cased once here.
func NewScorer(t Tiers) *Scorer {
	return &Scorer{tiers: []tier{
		{domains: lowerAll(t.Official), score: OfficialScore},
		{domains: lowerAll(t.News), score: NewsScore},
		{domains: lowerAll(t.Curated), score: CuratedScore},
		{domains: lowerAll(t.Spam), score: SpamScore},
	}}
}

// Score returns the trust score of url. Tiers are checked in order and the
// first match wins; an empty or unmatched URL scores DefaultScore.
func (s *Scorer) Score(url string) float64 {
	if url == "" {
		return DefaultScore
	}
	u := strings.ToLower(url)
	for _, t := range s.tiers {
		for _, d := range t.domains {
			if d != "" && strings.Contains(u, d) {
				return t.score
			}
		}
	}
	return DefaultScore
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
