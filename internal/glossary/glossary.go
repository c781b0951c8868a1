// Package glossary loads user-supplied terminology and checks produced
// translations against it. A glossary maps a source term to its mandated
// target rendering; alternatives may be separated by "/". Enforcement has
// three levels: off (skipped entirely), moderate (violations annotated), and
// strict (violations fail the row).
package glossary

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Level is the glossary enforcement level.
type Level int

const (
	Off Level = iota
	Moderate
	Strict
)

// ParseLevel maps a config string to a Level. Unknown values default to
// Moderate, matching the historical behavior of the tooling around this
// format.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none", "":
		return Off
	case "strict":
		return Strict
	default:
		return Moderate
	}
}

func (l Level) String() string {
	switch l {
	case Off:
		return "off"
	case Strict:
		return "strict"
	default:
		return "moderate"
	}
}

// Glossary is an ordered source-term to target-term mapping. Keys are
// NFC-normalized so lookups are insensitive to unicode composition.
type Glossary struct {
	terms map[string]string
	order []string
}

// New returns an empty glossary.
func New() *Glossary {
	return &Glossary{terms: make(map[string]string)}
}

// Add inserts or replaces a term.
func (g *Glossary) Add(sourceTerm, targetTerm string) {
	key := normalizeTerm(sourceTerm)
	if key == "" {
		return
	}
	if _, exists := g.terms[key]; !exists {
		g.order = append(g.order, key)
	}
	g.terms[key] = strings.TrimSpace(targetTerm)
}

// Len reports the number of terms.
func (g *Glossary) Len() int { return len(g.terms) }

// Load reads a two-column TSV glossary file. A first line whose leading cell
// looks like a header (term/english/source/en) is skipped; otherwise it is
// treated as data.
func Load(path string) (*Glossary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open glossary: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '\t'
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read glossary: %w", err)
	}

	g := New()
	for i, rec := range records {
		if len(rec) < 2 {
			continue
		}
		if i == 0 && isHeaderCell(rec[0]) {
			continue
		}
		g.Add(rec[0], rec[1])
	}
	return g, nil
}

func isHeaderCell(cell string) bool {
	switch strings.ToLower(strings.TrimSpace(cell)) {
	case "term", "english", "source", "en", "src":
		return true
	}
	return false
}

// PromptSection renders the glossary as a mandatory-terminology block for
// inclusion in a system prompt. Empty glossaries render a placeholder line.
func (g *Glossary) PromptSection() string {
	if g.Len() == 0 {
		return "(No glossary provided)"
	}
	var sb strings.Builder
	for _, key := range g.order {
		fmt.Fprintf(&sb, "- %s -> %s\n", key, g.terms[key])
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Check returns a violation description for every glossary source term that
// occurs in source but whose mandated target rendering (any "/"-separated
// alternative) is absent from target.
func (g *Glossary) Check(source, target string) []string {
	if g.Len() == 0 {
		return nil
	}
	src := norm.NFC.String(source)
	tgt := norm.NFC.String(target)

	var violations []string
	for _, term := range g.order {
		if !strings.Contains(src, term) {
			continue
		}
		want := g.terms[term]
		found := false
		for _, opt := range strings.Split(want, "/") {
			if opt = strings.TrimSpace(opt); opt != "" && strings.Contains(tgt, opt) {
				found = true
				break
			}
		}
		if !found {
			violations = append(violations, fmt.Sprintf("%s should be %s", term, want))
		}
	}
	return violations
}

func normalizeTerm(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
