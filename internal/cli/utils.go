// Package cli provides output helpers for the kanit command.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/kanit/internal/models"
	"github.com/hyperjump/kanit/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat validates a -format flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case OutputText, OutputJSON:
		return f, nil
	case "":
		return OutputText, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text or json)", s)
}

const previewRunes = 200

// WriteEvaluation writes ranked evidence for query to w in the given format.
func WriteEvaluation(w io.Writer, query string, result *models.EvaluationResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, result)
	}
	fmt.Fprintf(w, "\nQuery: %s\n", query)
	fmt.Fprintf(w, "%d snippets | highest confidence %.3f | core facts %d\n",
		len(result.Snippets), result.HighestConfidence, result.CoreKnowledgeUsed)
	cv := result.CrossVerification
	fmt.Fprintf(w, "Cross-verification: verified=%t consensus=%.2f sources=%d\n\n",
		cv.Verified, cv.Consensus, cv.TotalSources)
	for i, s := range result.Snippets {
		writeSnippet(w, i+1, s)
	}
	if result.HasConflicts {
		fmt.Fprintln(w, "--- Conflicts ---")
		for _, c := range result.Conflicts {
			fmt.Fprintf(w, "[%s] %s\n", c.Kind, c.Description)
		}
	}
	return nil
}

func writeSnippet(w io.Writer, rank int, s models.InformationSnippet) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "#%d [%s] Confidence: %.4f (Quality: %.2f, Trust: %.2f, Freshness: %.2f)\n",
		rank, s.SourceType, s.Confidence, s.QualityScore, s.DomainTrust, s.Freshness)
	if s.SourceURL != "" {
		fmt.Fprintf(w, "URL: %s\n", s.SourceURL)
	}
	fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(s.Content, previewRunes))
}

// WriteChatResponse writes an answer and its evidence summary to w.
func WriteChatResponse(w io.Writer, resp *models.ChatResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "%s\n\n", resp.Response)
	fmt.Fprintf(w, "mode=%s confidence=%.2f db=%d web=%d\n",
		resp.Mode, resp.ConfidenceScore, resp.DBCount, resp.WebCount)
	for _, src := range resp.Sources {
		fmt.Fprintf(w, "  - %s (%s) quality=%.2f trust=%.2f\n",
			TruncateWords(src.Title, 12), src.URL, src.QualityScore, src.DomainTrust)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
