package textutil

import (
	"strings"
	"testing"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxChars int
		expected string
	}{
		{
			name:     "short text unchanged",
			input:    "short",
			maxChars: 100,
			expected: "short",
		},
		{
			name:     "zero max unchanged",
			input:    "anything at all",
			maxChars: 0,
			expected: "anything at all",
		},
		{
			name:     "paragraph boundary preferred",
			input:    "First paragraph.\n\nSecond paragraph that runs long enough to be cut somewhere.",
			maxChars: 40,
			expected: "First paragraph.",
		},
		{
			name:     "sentence boundary",
			input:    "One sentence here. Another sentence that will not fit in the budget at all.",
			maxChars: 30,
			expected: "One sentence here.",
		},
		{
			name:     "cjk sentence boundary",
			input:    "第一句话。 第二句话很长很长很长很长很长很长很长",
			maxChars: 10,
			expected: "第一句话。",
		},
		{
			name:     "word boundary fallback",
			input:    "no sentence punctuation just many words flowing on and on",
			maxChars: 20,
			expected: "no sentence",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Truncate(tt.input, tt.maxChars)
			if got != tt.expected {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.input, tt.maxChars, got, tt.expected)
			}
		})
	}
}

func TestTruncateNeverExceedsBudget(t *testing.T) {
	input := strings.Repeat("word ", 100)
	for _, max := range []int{5, 17, 63, 200} {
		got := Truncate(input, max)
		if n := len([]rune(got)); n > max {
			t.Errorf("Truncate(..., %d) returned %d runes", max, n)
		}
	}
}

func TestTruncateHardCut(t *testing.T) {
	input := strings.Repeat("x", 50)
	got := Truncate(input, 10)
	if len([]rune(got)) != 10 {
		t.Errorf("Truncate() = %q, want hard cut at 10 runes", got)
	}
}

func TestTailWords(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		count    int
		expected string
	}{
		{"fewer words than count", "one two", 5, "one two"},
		{"exact tail", "a b c d e", 2, "d e"},
		{"zero count returns all", "  a b  ", 0, "a b"},
		{"collapses whitespace", "a  b\tc\nd", 3, "b c d"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TailWords(tt.input, tt.count); got != tt.expected {
				t.Errorf("TailWords(%q, %d) = %q, want %q", tt.input, tt.count, got, tt.expected)
			}
		})
	}
}
