package assistant

import (
	"strings"
	"unicode"
)

// followUpTriggers are words and phrases that mark a question as depending on
// earlier turns.
var followUpTriggers = []string{"yarın", "peki", "devam", "sonra", "o", "bu", "yarın nasıl", "hangisi"}

// LooksFollowUp reports whether text reads like a follow-up question: it has
// fewer than 3 words or contains a trigger word or phrase.
func LooksFollowUp(text string) bool {
	words := strings.FieldsFunc(strings.ToLower(strings.TrimSpace(text)), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	if len(words) < 3 {
		return true
	}
	joined := " " + strings.Join(words, " ") + " "
	for _, t := range followUpTriggers {
		if strings.Contains(joined, " "+t+" ") {
			return true
		}
	}
	return false
}

// AugmentQuery prefixes a follow-up question with the user's earlier
// questions. previous excludes the current message.
func AugmentQuery(message string, previous []string) string {
	if len(previous) == 0 || !LooksFollowUp(message) {
		return message
	}
	return strings.Join(previous, " ") + " " + message
}
