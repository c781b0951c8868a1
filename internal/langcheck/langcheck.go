// Package langcheck wraps the lingua-go language detector for the QA
// sub-stage: it verifies that a produced translation is actually written in
// the expected target language and detects the source language for prompt
// phrasing. The detector is expensive to build; construct one Checker per
// run and reuse it.
package langcheck

import (
	"fmt"
	"strings"

	lingua "github.com/pemistahl/lingua-go"
)

// minCheckLength is the minimum rune count required to attempt detection.
// Shorter texts produce unreliable results and are accepted without checking.
const minCheckLength = 20

// Checker detects languages and validates translation output language.
type Checker struct {
	detector lingua.LanguageDetector
}

// New builds a Checker over all languages lingua supports.
func New() *Checker {
	return &Checker{
		detector: lingua.NewLanguageDetectorBuilder().
			FromAllLanguages().
			Build(),
	}
}

// DetectISO returns the ISO 639-1 code of the detected language of text, or
// ok=false when the text is empty or ambiguous.
func (c *Checker) DetectISO(text string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	lang, ok := c.detector.DetectLanguageOf(text)
	if !ok {
		return "", false
	}
	return strings.ToLower(lang.IsoCode639_1().String()), true
}

// Verify returns nil when text appears to be written in the wantISO
// language. Short texts and texts whose language cannot be determined pass
// without error; a confident mismatch returns an error naming both codes,
// which callers surface as a QA flag rather than a failure.
func (c *Checker) Verify(text, wantISO string) error {
	if wantISO == "" {
		return nil
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return fmt.Errorf("translation is empty")
	}
	if len([]rune(trimmed)) < minCheckLength {
		return nil
	}
	detected, ok := c.DetectISO(trimmed)
	if !ok {
		return nil
	}
	if !strings.EqualFold(detected, wantISO) {
		return fmt.Errorf("expected %s but detected %s", wantISO, detected)
	}
	return nil
}
