package assistant

import (
	"fmt"
	"strings"

	"github.com/hyperjump/kanit/internal/models"
	"github.com/hyperjump/kanit/pkg/utils"
)

// Prompt limits.
const (
	PromptSnippets     = 5
	PromptSnippetRunes = 800
)

const newConversation = "Yeni sohbet"

// BuildPrompt renders the answer prompt from the question, the conversation
// context and the ranked evidence. Only the first PromptSnippets snippets are
// used, each cut to PromptSnippetRunes.
func BuildPrompt(question, history string, snippets []models.InformationSnippet) string {
	var sb strings.Builder
	writeHeader(&sb, question, history)
	if len(snippets) == 0 {
		sb.WriteString("\n\nBu konuda bilgi bulunamadı. Sohbet geçmişini dikkate alarak bilgine dayanarak cevap ver.")
		return sb.String()
	}

	sb.WriteString("\n\nBİLGİLER:\n")
	for i, s := range snippets {
		if i == PromptSnippets {
			break
		}
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[KAYNAK %d]: %s", i+1, utils.Prefix(s.Content, PromptSnippetRunes))
	}
	sb.WriteString("\n\nYukarıdaki bilgileri ve sohbet geçmişini kullanarak soruyu cevapla. Doğal ve samimi konuş.")
	return sb.String()
}

// BuildStreamPrompt renders the short prompt used for streamed answers.
func BuildStreamPrompt(question, history string) string {
	var sb strings.Builder
	writeHeader(&sb, question, history)
	sb.WriteString("\n\nSoruyu cevapla. Doğal ve samimi konuş.")
	return sb.String()
}

func writeHeader(sb *strings.Builder, question, history string) {
	if history == "" {
		history = newConversation
	}
	fmt.Fprintf(sb, "SORU: %s\n\nSOHBET GEÇMİŞİ:\n%s", question, history)
}

// SystemPrompt returns the prompt for mode, falling back to "normal".
func SystemPrompt(modes map[string]string, mode string) string {
	if p, ok := modes[mode]; ok {
		return p
	}
	return modes["normal"]
}
