package strategy

import (
	"context"
	"fmt"
	"strings"

	"github.com/perelab/tabletran/internal/glossary"
	"github.com/perelab/tabletran/internal/postprocess"
	"github.com/perelab/tabletran/internal/table"
	"github.com/perelab/tabletran/internal/textutil"
	"github.com/perelab/tabletran/internal/window"
)

// Legal reviews legal translations row by row using the CIL methodology:
// Setup derives a Context note, domain Insight, and a layman's Logic
// explanation from the document, and ProcessBatch replays each row through
// the backend against that knowledge plus a local sliding window. Glossary
// terms are mandatory; enforcement level decides what a violation does.
type Legal struct {
	base
	deps Deps

	gloss          *glossary.Glossary
	enforcement    glossary.Level
	contextNote    string
	domainInsights string
	laymanLogic    string
}

func newLegal(deps Deps) *Legal {
	l := &Legal{base: newBase("legal", deps), deps: deps}
	l.enforcement = glossary.ParseLevel(l.cfg.GlossaryEnforcement)
	return l
}

// Setup loads the glossary and generates the three CIL knowledge pieces.
// Any backend failure here aborts the run before the first batch.
func (l *Legal) Setup(ctx context.Context, doc *table.Document) error {
	if err := l.beginSetup(doc); err != nil {
		return err
	}

	g, err := glossaryFromDeps(l.deps)
	if err != nil {
		return &SetupError{Strategy: l.name, Err: err}
	}
	l.gloss = g

	snippet := textutil.Truncate(joinSources(doc.Rows, 100), 5000)
	model := l.knowledgeModel()

	contextPrompt := fmt.Sprintf(`Analyze the following legal text.
Identify: core topic, document type, intended audience, general tone.
Summarize in one concise paragraph (under 100 words).

Text:
%q`, snippet)
	note, err := l.llm.Generate(ctx, promptReq(contextPrompt, model, 0.5))
	if err != nil {
		return &SetupError{Strategy: l.name, Err: fmt.Errorf("context note: %w", err)}
	}
	l.contextNote = strings.TrimSpace(note)

	insightPrompt := fmt.Sprintf(`ROLE: Senior Legal Analyst.
TASK: Passage insight.
GLOBAL CONTEXT: %q

1. Identify the specific micro-domain (e.g. "HK IP Litigation").
2. Define 3-5 key terms.
3. Flag "false friends" and translation pitfalls.

OUTPUT:
- Domain Context: ...
- Key Definitions: ...
- Pitfalls: ...

TEXT:
%q`, l.contextNote, snippet)
	insight, err := l.llm.Generate(ctx, promptReq(insightPrompt, model, 0.5))
	if err != nil {
		return &SetupError{Strategy: l.name, Err: fmt.Errorf("domain insight: %w", err)}
	}
	l.domainInsights = strings.TrimSpace(insight)

	logicPrompt := fmt.Sprintf(`ROLE: "Layman in the Loop" (Feynman technique).
CONTEXT: %s

1. Explain what this text *means* to an outsider.
2. Extract the LOGIC. No word-for-word translation.
3. Explain in the opposite language of the source.

TEXT:
%q`, textutil.Truncate(l.contextNote, 500), snippet)
	logic, err := l.llm.Generate(ctx, promptReq(logicPrompt, model, 0.7))
	if err != nil {
		return &SetupError{Strategy: l.name, Err: fmt.Errorf("layman logic: %w", err)}
	}
	l.laymanLogic = strings.TrimSpace(logic)

	l.finishSetup()
	return nil
}

// cilSection renders the knowledge block shared by every per-row prompt.
func (l *Legal) cilSection() string {
	orDefault := func(s, def string) string {
		if s == "" {
			return def
		}
		return s
	}
	return fmt.Sprintf(`=== CIL TRANSLATION METHODOLOGY ===

[1. CONTEXT - Document Background]
%s

[2. INSIGHT - Domain Analysis]
%s

[2.5 MANDATORY GLOSSARY]
The following terminology MUST be used EXACTLY as specified.
DO NOT use any alternative translations. This is NON-NEGOTIABLE.

%s

[3. LAYMAN'S LOGIC - Feynman Explanation]
%s

=== END CIL ===`,
		orDefault(l.contextNote, "(Not available)"),
		orDefault(l.domainInsights, "(See glossary below)"),
		l.gloss.PromptSection(),
		orDefault(l.laymanLogic, "(Not available)"))
}

// ProcessBatch reviews each row individually against a locally built window:
// finalized history plus rows already corrected earlier in this batch form
// the "before" side, the remaining raw batch rows and the after-window form
// the "after" side. A backend failure on one row fails that row only.
func (l *Legal) ProcessBatch(ctx context.Context, batch []table.Row, win window.Window) ([]RowResult, error) {
	if err := l.checkReady(); err != nil {
		return nil, err
	}

	system := fmt.Sprintf(`You are a legal translation expert specializing in Hong Kong law.

%s
%s
[Task]
Review the Target translation for the marked segment.
1. Check glossary compliance first.
2. Ensure logic flow (Logic).
3. Ensure context coherence (Context).
4. Fix grammar and punctuation.
If the Target is empty, produce the translation from the Source.

[CRITICAL WARNING]
If you use a translation different from the glossary, your output will be REJECTED.

[Output Format]
Return ONLY the corrected Target text. If no changes are needed, return the original.`,
		l.cilSection(), l.fullContextSection())

	results := make([]RowResult, len(batch))
	finalized := make([]table.Row, 0, len(batch))

	for i, row := range batch {
		res := RowResult{ID: row.ID, Comments: row.Comments}
		if strings.TrimSpace(row.Source) == "" {
			res.Target = row.Target
			results[i] = res
			finalized = append(finalized, row)
			continue
		}

		prompt := fmt.Sprintf("[Context Window]\n%s\n\nPlease review and correct the Target for the marked segment.",
			l.windowText(row, batch[i+1:], finalized, win))

		raw, err := l.llm.Generate(ctx, promptReqWithSystem(system, prompt, l.cfg.Model, 0.5))
		if err != nil {
			res.Err = err
			results[i] = res
			finalized = append(finalized, row)
			continue
		}

		corrected := postprocess.Clean(raw)
		corrected = strings.ReplaceAll(corrected, "，，", "，")

		if l.enforcement != glossary.Off {
			if violations := l.gloss.Check(row.Source, corrected); len(violations) > 0 {
				if l.enforcement == glossary.Strict {
					res.Err = fmt.Errorf("glossary violation: %s", strings.Join(violations, "; "))
					results[i] = res
					finalized = append(finalized, row)
					continue
				}
				res.Comments = appendComment(res.Comments,
					fmt.Sprintf("[[GLOSSARY_VIOLATION: %s]]", strings.Join(violations, "; ")))
			}
		}

		res.Target = corrected
		results[i] = res

		done := row
		done.Target = corrected
		finalized = append(finalized, done)
	}
	return results, nil
}

// windowText builds the per-row review window: up to three corrected rows
// behind the current one, the marked segment, then up to two raw upcoming
// sources.
func (l *Legal) windowText(current table.Row, rest []table.Row, doneInBatch []table.Row, win window.Window) string {
	var parts []string

	past := append(append([]table.Row{}, win.Before...), doneInBatch...)
	lo := len(past) - 3
	if lo < 0 {
		lo = 0
	}
	for _, p := range past[lo:] {
		parts = append(parts, fmt.Sprintf("[Segment %s]: %s -> %s", p.ID, p.Source, p.Target))
	}

	parts = append(parts, fmt.Sprintf(">>> [Segment %s - TARGET]:\n    Source: %s\n    Target: %s",
		current.ID, current.Source, current.Target))

	upcoming := append(append([]table.Row{}, rest...), win.After...)
	if len(upcoming) > 2 {
		upcoming = upcoming[:2]
	}
	for _, f := range upcoming {
		parts = append(parts, fmt.Sprintf("[Segment %s]: %s...", f.ID, f.Source))
	}
	return strings.Join(parts, "\n")
}

func appendComment(comments, note string) string {
	if comments == "" {
		return note
	}
	return comments + " " + note
}
