package glossary

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"off", Off},
		{"none", Off},
		{"", Off},
		{"strict", Strict},
		{"STRICT", Strict},
		{"moderate", Moderate},
		{"anything-else", Moderate},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.expected {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestLoadSkipsHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gloss.tsv")
	content := "Term\tTranslation\nforce majeure\t不可抗力\ncourt\t法院\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	g, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if g.Len() != 2 {
		t.Errorf("Len() = %d, want 2 (header skipped)", g.Len())
	}
}

func TestLoadHeaderlessFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gloss.tsv")
	content := "force majeure\t不可抗力\ncourt\t法院\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	g, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if g.Len() != 2 {
		t.Errorf("Len() = %d, want 2 (first line is data)", g.Len())
	}
}

func TestCheckViolations(t *testing.T) {
	g := New()
	g.Add("court", "法院")
	g.Add("licence", "許可證/许可证")

	tests := []struct {
		name       string
		source     string
		target     string
		violations int
	}{
		{"term absent from source", "nothing relevant", "任何译文", 0},
		{"mandated rendering used", "the court ruled", "法院已裁决", 0},
		{"violation", "the court ruled", "法庭已裁决", 1},
		{"first alternative", "a licence is required", "需要許可證", 0},
		{"second alternative", "a licence is required", "需要许可证", 0},
		{"both terms violated", "the court issued a licence", "错误译文", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := g.Check(tt.source, tt.target)
			if len(got) != tt.violations {
				t.Errorf("Check() = %v, want %d violations", got, tt.violations)
			}
		})
	}
}

func TestCheckEmptyGlossary(t *testing.T) {
	if got := New().Check("anything", "anything"); got != nil {
		t.Errorf("Check() on empty glossary = %v, want nil", got)
	}
}

func TestPromptSection(t *testing.T) {
	g := New()
	if got := g.PromptSection(); got != "(No glossary provided)" {
		t.Errorf("empty PromptSection() = %q", got)
	}

	g.Add("court", "法院")
	g.Add("judge", "法官")
	section := g.PromptSection()
	if !strings.Contains(section, "court -> 法院") || !strings.Contains(section, "judge -> 法官") {
		t.Errorf("PromptSection() = %q", section)
	}
	// Insertion order is preserved.
	if strings.Index(section, "court") > strings.Index(section, "judge") {
		t.Errorf("PromptSection() order changed: %q", section)
	}
}

func TestAddReplacesAndNormalizes(t *testing.T) {
	g := New()
	g.Add("  court  ", "法庭")
	g.Add("court", "法院")
	if g.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (replaced, not duplicated)", g.Len())
	}
	if got := g.Check("the court", "法院"); len(got) != 0 {
		t.Errorf("Check() = %v, want updated rendering accepted", got)
	}
}
