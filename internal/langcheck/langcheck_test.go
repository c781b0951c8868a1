package langcheck

import (
	"strings"
	"testing"
)

// Building the detector is slow; share one across the package tests.
var checker = New()

func TestDetectISO(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"english", "This is a perfectly ordinary English sentence about translation.", "en"},
		{"chinese", "这是一个关于翻译质量检查的完整中文句子，内容足够长。", "zh"},
		{"ukrainian", "Це звичайне українське речення про переклад документів.", "uk"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := checker.DetectISO(tt.text)
			if !ok {
				t.Fatalf("DetectISO(%q) ok = false", tt.text)
			}
			if got != tt.want {
				t.Errorf("DetectISO() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectISOEmpty(t *testing.T) {
	if _, ok := checker.DetectISO("   "); ok {
		t.Error("DetectISO(blank) ok = true, want false")
	}
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    string
		wantErr bool
	}{
		{
			name: "match passes",
			text: "这是一个足够长的中文句子，用来进行语言验证测试。",
			want: "zh",
		},
		{
			name:    "mismatch fails",
			text:    "This text is clearly written in English, not the expected target language.",
			want:    "zh",
			wantErr: true,
		},
		{
			name: "short text passes unchecked",
			text: "short",
			want: "zh",
		},
		{
			name: "no expectation passes",
			text: "anything goes here when no language is expected",
			want: "",
		},
		{
			name:    "empty translation fails",
			text:    "  ",
			want:    "zh",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checker.Verify(tt.text, tt.want)
			if (err != nil) != tt.wantErr {
				t.Errorf("Verify(%q, %q) error = %v, wantErr %v", tt.text, tt.want, err, tt.wantErr)
			}
		})
	}
}

func TestVerifyMismatchNamesBothCodes(t *testing.T) {
	err := checker.Verify("This text is clearly written in English, not anything else at all.", "zh")
	if err == nil {
		t.Fatal("Verify() error = nil, want mismatch")
	}
	if !strings.Contains(err.Error(), "zh") || !strings.Contains(err.Error(), "en") {
		t.Errorf("error = %v, want both language codes named", err)
	}
}
