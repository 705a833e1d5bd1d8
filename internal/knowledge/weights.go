package knowledge

import "github.com/hyperjump/kanit/internal/models"

// fallbackWeight applies to source types missing from a SourceWeights table.
const fallbackWeight = 0.5

// SourceWeights maps each source type to its prior in the confidence formula.
type SourceWeights map[models.SourceType]float64

// DefaultSourceWeights returns the built-in prior table.
func DefaultSourceWeights() SourceWeights {
	return SourceWeights{
		models.SourceOfficialSite:  0.95,
		models.SourceReputableNews: 0.90,
		models.SourceGeneralWeb:    0.75,
		models.SourceUserUploaded:  0.70,
		models.SourceInternalKB:    0.85,
		models.SourceCoreKnowledge: 0.80,
		models.SourceUnknown:       0.50,
	}
}

// Weight returns the prior for t, or 0.5 when t is not in the table.
func (w SourceWeights) Weight(t models.SourceType) float64 {
	if v, ok := w[t]; ok {
		return v
	}
	return fallbackWeight
}

// Merge returns a copy of w with overrides applied. Unknown source types in
// overrides are kept; Weight treats them like any other key.
func (w SourceWeights) Merge(overrides map[string]float64) SourceWeights {
	out := make(SourceWeights, len(w)+len(overrides))
	for k, v := range w {
		out[k] = v
	}
	for k, v := range overrides {
		out[models.SourceType(k)] = v
	}
	return out
}
