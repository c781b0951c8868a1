package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/perelab/tabletran/internal/langcheck"
	"github.com/perelab/tabletran/internal/merge"
	"github.com/perelab/tabletran/internal/postprocess"
	"github.com/perelab/tabletran/internal/table"
	"github.com/perelab/tabletran/internal/textutil"
	"github.com/perelab/tabletran/internal/window"
)

// Academic translates scholarly prose with a dual-persona workflow: Setup
// derives a literal-translator persona, an academic-editor persona, and a
// standing terminology list from the document; ProcessBatch sends the whole
// batch as JSON through both personas in one call, optionally allowing
// cross-row sentence merging, and re-checks the result with a QA pass.
type Academic struct {
	base
	checker *langcheck.Checker

	personaTranslator string
	personaEditor     string
	terms             []term
}

type term struct {
	Term        string `json:"term"`
	Translation string `json:"translation"`
}

func newAcademic(deps Deps) *Academic {
	return &Academic{
		base:              newBase("academic", deps),
		checker:           deps.Checker,
		personaTranslator: "You are a precise literal translator.",
		personaEditor:     "You are an expert academic editor.",
	}
}

// Setup analyzes the document to generate the two personas and extract the
// recurring technical terms. Both calls are part of the one atomic setup
// step; a backend failure aborts the run.
func (a *Academic) Setup(ctx context.Context, doc *table.Document) error {
	if err := a.beginSetup(doc); err != nil {
		return err
	}

	snippet := textutil.Truncate(joinSources(doc.Rows, 60), 8000)
	model := a.knowledgeModel()

	personaPrompt := fmt.Sprintf(`Analyze the following academic text snippet (field, tone).

Define TWO distinct personas:
1. "literalTranslator": focuses on semantic precision, suppresses the urge to polish.
2. "academicEditor": focuses on publication-level flow and register, blind to source typos.

OUTPUT FORMAT (JSON):
{"analysis": "...", "literalTranslator": "...", "academicEditor": "..."}

TEXT:
%s`, snippet)

	raw, err := a.llm.Generate(ctx, jsonReq(personaPrompt, model, 0.5))
	if err != nil {
		return &SetupError{Strategy: a.name, Err: fmt.Errorf("persona generation: %w", err)}
	}
	var personas struct {
		LiteralTranslator string `json:"literalTranslator"`
		AcademicEditor    string `json:"academicEditor"`
	}
	if err := json.Unmarshal([]byte(postprocess.ExtractJSON(raw)), &personas); err != nil {
		return &SetupError{Strategy: a.name, Err: fmt.Errorf("persona generation: malformed response: %w", err)}
	}
	if personas.LiteralTranslator != "" {
		a.personaTranslator = personas.LiteralTranslator
	}
	if personas.AcademicEditor != "" {
		a.personaEditor = personas.AcademicEditor
	}

	termPrompt := fmt.Sprintf(`Extract the top 20 recurring technical terms/concepts from this text.
Output a JSON list of objects: {"term": "...", "translation": "..."}.
Standardize translations to the target language (%s).

TEXT:
%s`, a.conf.TargetLang, snippet)

	raw, err = a.llm.Generate(ctx, jsonReq(termPrompt, model, 0.5))
	if err != nil {
		return &SetupError{Strategy: a.name, Err: fmt.Errorf("term extraction: %w", err)}
	}
	if err := json.Unmarshal([]byte(postprocess.ExtractJSON(raw)), &a.terms); err != nil {
		return &SetupError{Strategy: a.name, Err: fmt.Errorf("term extraction: malformed response: %w", err)}
	}

	a.finishSetup()
	return nil
}

func (a *Academic) termSection() string {
	if len(a.terms) == 0 {
		return "None"
	}
	var sb strings.Builder
	for _, t := range a.terms {
		fmt.Fprintf(&sb, "- %s: %s\n", t.Term, t.Translation)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// ProcessBatch runs one dual-persona call over the whole batch, then the
// optional QA sub-stage. The response is re-keyed by id; ids the backend
// dropped surface as per-row failures.
func (a *Academic) ProcessBatch(ctx context.Context, batch []table.Row, win window.Window) ([]RowResult, error) {
	if err := a.checkReady(); err != nil {
		return nil, err
	}

	var protocol string
	if a.cfg.CrossRowMerging {
		protocol = mergeProtocol
	}

	prompt := fmt.Sprintf(`[ROLES]
Phase 1 (internal): %s
Phase 2 (output): %s
CRITICAL: the Phase 2 editor must NOT look at the source-language structure. Polish the draft into impeccable academic prose in the target language (%s).

[TERMINOLOGY]
%s

[PREVIOUS CONTEXT (for flow continuity)]
%s

[UPCOMING SOURCE (do not translate yet)]
%s
%s
[TASK]
Translate or polish each row's "source" into academic %s prose as "target".
Use the "draft" if provided, but override it when imprecise.
%s
[INPUT DATA]
%s

[OUTPUT FORMAT]
JSON array of {"id": "...", "target": "..."%s}`,
		a.personaTranslator,
		a.personaEditor,
		a.conf.TargetLang,
		a.termSection(),
		historySnippet(win.Before, 8),
		upcomingSnippet(win.After),
		a.fullContextSection(),
		a.conf.TargetLang,
		protocol,
		encodeBatch(batch),
		mergeFieldHint(a.cfg.CrossRowMerging))

	raw, err := a.generate(ctx, "You are an automated academic publishing engine. Output strictly valid JSON.", prompt, true, 0.5)
	if err != nil {
		return nil, err
	}

	results, err := a.decodeBatch(raw, batch)
	if err != nil {
		return nil, err
	}

	if a.cfg.EnableQACheck {
		a.qaCheck(ctx, batch, results)
		a.languageCheck(results)
	}
	return results, nil
}

func mergeFieldHint(merging bool) string {
	if merging {
		return `, "merge": "forward"|"backward" (only when merging)`
	}
	return ""
}

// qaCheck asks the backend to re-read the batch for omissions,
// misinterpretations, and hallucinations, and appends a QA flag to the
// comments of any row with an issue. QA flags but never silently alters
// results, and a failing QA call degrades to no check.
func (a *Academic) qaCheck(ctx context.Context, batch []table.Row, results []RowResult) {
	type qaRow struct {
		ID       string `json:"id"`
		Source   string `json:"source"`
		Revision string `json:"revision"`
	}
	input := make([]qaRow, 0, len(batch))
	for i, row := range batch {
		if results[i].Err != nil {
			continue
		}
		input = append(input, qaRow{ID: row.ID, Source: row.Source, Revision: results[i].Target})
	}
	if len(input) == 0 {
		return
	}
	data, _ := json.MarshalIndent(input, "", "  ")

	prompt := fmt.Sprintf(`TASK: QA check. Identify:
1. Omissions (source information missing in the revision).
2. Misinterpretations (meaning contradicted).
3. Hallucinations (added information not in the source).

Ignore stylistic changes. Focus on FACTUAL errors.

INPUT:
%s

OUTPUT FORMAT (JSON):
Array of objects: {"id": "...", "issue": "description or 'PASS'"}.
Only include rows with issues.`, string(data))

	raw, err := a.generate(ctx, "", prompt, true, 0.3)
	if err != nil {
		fmt.Fprintf(os.Stderr, "QA check failed: %v\n", err)
		return
	}
	var issues []struct {
		ID    string `json:"id"`
		Issue string `json:"issue"`
	}
	if err := json.Unmarshal([]byte(postprocess.ExtractJSON(raw)), &issues); err != nil {
		fmt.Fprintf(os.Stderr, "QA check returned malformed response: %v\n", err)
		return
	}

	byID := make(map[string]string, len(issues))
	for _, iss := range issues {
		if iss.Issue != "" && iss.Issue != "PASS" {
			byID[iss.ID] = iss.Issue
		}
	}
	for i := range results {
		if issue, ok := byID[results[i].ID]; ok {
			results[i].Comments = appendComment(results[i].Comments, fmt.Sprintf("[[QA FLAG]] %s", issue))
		}
	}
}

// languageCheck flags rows whose produced target does not appear to be in
// the configured target language. Merge placeholders and failed rows are
// skipped.
func (a *Academic) languageCheck(results []RowResult) {
	if a.checker == nil {
		return
	}
	for i := range results {
		r := &results[i]
		if r.Err != nil || r.Target == "" || r.Marker != merge.None {
			continue
		}
		if err := a.checker.Verify(r.Target, a.conf.TargetLang); err != nil {
			r.Comments = appendComment(r.Comments, fmt.Sprintf("[[QA FLAG]] language check: %v", err))
		}
	}
}
