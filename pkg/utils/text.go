// Package utils provides shared utilities for text, math, and logging.
package utils

import (
	"strings"
	"unicode/utf8"
)

// Truncate returns s truncated to maxLen runes, with "..." appended if truncated.
// If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return Prefix(s, maxLen) + "..."
}

// Prefix returns the first n runes of s.
func Prefix(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// CollapseSpace collapses runs of whitespace to single spaces.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
