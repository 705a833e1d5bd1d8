// Package verify checks snippets against each other for agreement on the
// key phrases of a query.
package verify

import (
	"strings"
	"unicode/utf8"
)

// stopWords are dropped before phrase extraction.
var stopWords = map[string]struct{}{
	"nedir": {}, "nasıl": {}, "nerede": {}, "ne": {},
	"bir": {}, "ve": {}, "ile": {}, "için": {},
}

// KeyPhrases lower-cases text, drops stop words and tokens of two runes or
// fewer, and returns the adjacent-pair bigrams followed by the unigrams.
// Order is preserved and nothing is deduplicated.
func KeyPhrases(text string) []string {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if _, stop := stopWords[w]; stop {
			continue
		}
		if utf8.RuneCountInString(w) <= 2 {
			continue
		}
		words = append(words, w)
	}
	if len(words) == 0 {
		return nil
	}

	phrases := make([]string, 0, 2*len(words)-1)
	for i := 0; i+1 < len(words); i++ {
		phrases = append(phrases, words[i]+" "+words[i+1])
	}
	return append(phrases, words...)
}
