// Package textutil provides rune-aware text shaping for prompt construction:
// truncating document snippets at natural boundaries for setup analysis and
// full-context injection, and extracting a trailing context fragment.
package textutil

import (
	"strings"
	"unicode"
)

// Truncate cuts text down to at most maxChars unicode code points, preferring
// (in order) a paragraph boundary, a sentence-ending punctuation mark
// followed by whitespace, then a word boundary, and hard-cutting only when
// none exists. maxChars <= 0 returns text unchanged.
func Truncate(text string, maxChars int) string {
	runes := []rune(text)
	if maxChars <= 0 || len(runes) <= maxChars {
		return text
	}
	candidate := runes[:maxChars]
	s := string(candidate)

	if idx := strings.LastIndex(s, "\n\n"); idx > 0 {
		return strings.TrimSpace(s[:idx])
	}

	for i := len(candidate) - 1; i > 0; i-- {
		r := candidate[i]
		if (r == '.' || r == '!' || r == '?' || r == '。' || r == '！' || r == '？') &&
			(i+1 >= len(candidate) || unicode.IsSpace(candidate[i+1])) {
			return strings.TrimSpace(string(candidate[:i+1]))
		}
	}

	for i := len(candidate) - 1; i > 0; i-- {
		if unicode.IsSpace(candidate[i]) {
			return strings.TrimSpace(string(candidate[:i]))
		}
	}
	return strings.TrimSpace(s)
}

// TailWords returns the last wordCount whitespace-separated words of text,
// joined by single spaces. Texts with fewer words are returned whole. Used
// for compact trailing-context fragments in prompts.
func TailWords(text string, wordCount int) string {
	if wordCount <= 0 {
		return strings.TrimSpace(text)
	}
	words := strings.Fields(text)
	if len(words) <= wordCount {
		return strings.TrimSpace(text)
	}
	return strings.Join(words[len(words)-wordCount:], " ")
}
