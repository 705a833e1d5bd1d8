package verify

import "github.com/hyperjump/kanit/internal/models"

// ConflictDetector finds contradictions between snippets.
type ConflictDetector interface {
	Detect(snippets []models.InformationSnippet) []models.Conflict
}

// NoConflicts is the default detector. It never reports a conflict; numeric
// and date contradiction checks plug in behind ConflictDetector.
type NoConflicts struct{}

// Detect implements ConflictDetector.
func (NoConflicts) Detect([]models.InformationSnippet) []models.Conflict {
	return []models.Conflict{}
}
