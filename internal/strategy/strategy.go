// Package strategy implements the pluggable domain policies that turn a
// batch of rows plus its context window into per-row translation results.
// A strategy has two phases: a one-time Setup pass over the whole document
// (persona/style-guide/terminology generation through the LLM backend) and a
// repeated ProcessBatch call. Setup state is produced once and read-only
// afterwards; ProcessBatch is a pure function of batch, window, and that
// state.
package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/perelab/tabletran/internal/config"
	"github.com/perelab/tabletran/internal/glossary"
	"github.com/perelab/tabletran/internal/langcheck"
	"github.com/perelab/tabletran/internal/llm"
	"github.com/perelab/tabletran/internal/merge"
	"github.com/perelab/tabletran/internal/postprocess"
	"github.com/perelab/tabletran/internal/table"
	"github.com/perelab/tabletran/internal/textutil"
	"github.com/perelab/tabletran/internal/window"
)

// RowResult is the outcome for a single input row. Exactly one result is
// produced per batch row, in document order. A non-nil Err marks a row-level
// translation failure: the scheduler keeps the original source, leaves the
// target empty, and annotates the comments; the run continues.
type RowResult struct {
	ID       string
	Target   string
	Comments string
	Marker   merge.Marker
	Err      error
}

// SetupError reports a failed one-time strategy analysis. It is fatal: the
// run aborts before any batch executes, partial setup is never used.
type SetupError struct {
	Strategy string
	Err      error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("%s setup failed: %v", e.Strategy, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// Strategy is the closed contract between the batch scheduler and a domain
// policy. Implementations must not retain mutable state across ProcessBatch
// calls beyond what Setup produced.
type Strategy interface {
	Name() string
	Config() config.Strategy

	// Setup runs the whole-document analysis phase. It must be called
	// exactly once, before any ProcessBatch.
	Setup(ctx context.Context, doc *table.Document) error

	// ProcessBatch translates or proofreads one contiguous batch. A batch
	// error (e.g. backend retries exhausted on the batch call) fails every
	// row in the batch at the scheduler; per-row problems are reported in
	// the individual RowResult instead.
	ProcessBatch(ctx context.Context, batch []table.Row, win window.Window) ([]RowResult, error)
}

// Deps carries the collaborators a strategy needs. GlossaryPath may be
// empty; StoreTerms holds additional terminology from the database and is
// merged into the run glossary.
type Deps struct {
	Config       *config.Config
	LLM          llm.Client
	Checker      *langcheck.Checker
	GlossaryPath string
	StoreTerms   map[string]string
}

// New resolves a strategy by name. This is the single variant-dispatch point
// of the engine; the returned value is used for the whole run.
func New(name string, deps Deps) (Strategy, error) {
	if deps.Config == nil || deps.LLM == nil {
		return nil, fmt.Errorf("strategy %q: missing configuration or LLM client", name)
	}
	switch strings.ToLower(name) {
	case "legal":
		return newLegal(deps), nil
	case "academic":
		return newAcademic(deps), nil
	case "video":
		return newVideo(deps), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q (available: legal, academic, video)", name)
	}
}

// base holds what every strategy shares: merged configuration, the LLM
// client, and the optional full-document context computed during Setup.
type base struct {
	name        string
	cfg         config.Strategy
	conf        *config.Config
	llm         llm.Client
	ready       bool
	fullContext string
}

func newBase(name string, deps Deps) base {
	return base{
		name: name,
		cfg:  deps.Config.StrategyConfig(name),
		conf: deps.Config,
		llm:  deps.LLM,
	}
}

func (b *base) Name() string { return b.name }

func (b *base) Config() config.Strategy { return b.cfg }

// beginSetup validates the document and computes the injected full context.
// Strategies call it first from their Setup.
func (b *base) beginSetup(doc *table.Document) error {
	if doc == nil || len(doc.Rows) == 0 {
		return &SetupError{Strategy: b.name, Err: fmt.Errorf("document is empty")}
	}
	if b.ready {
		return &SetupError{Strategy: b.name, Err: fmt.Errorf("setup already performed")}
	}
	if b.cfg.InjectFullContext {
		b.fullContext = textutil.Truncate(joinSources(doc.Rows, len(doc.Rows)), b.cfg.FullContextMaxChars)
	}
	return nil
}

func (b *base) finishSetup() { b.ready = true }

func (b *base) checkReady() error {
	if !b.ready {
		return fmt.Errorf("%s strategy used before setup", b.name)
	}
	return nil
}

// joinSources concatenates the Source text of up to n leading rows.
func joinSources(rows []table.Row, n int) string {
	if n > len(rows) {
		n = len(rows)
	}
	parts := make([]string, 0, n)
	for _, r := range rows[:n] {
		if r.Source != "" {
			parts = append(parts, r.Source)
		}
	}
	return strings.Join(parts, " ")
}

// rowPayload is the JSON wire shape exchanged with the backend for batch
// strategies: the request carries id/source/draft, the response carries
// id/target/comments and an optional merge direction.
type rowPayload struct {
	ID       string `json:"id"`
	Source   string `json:"source,omitempty"`
	Draft    string `json:"draft,omitempty"`
	Target   string `json:"target"`
	Comments string `json:"comments,omitempty"`
	Merge    string `json:"merge,omitempty"`
}

// encodeBatch renders the batch rows as the JSON input block of a prompt.
func encodeBatch(batch []table.Row) string {
	payload := make([]rowPayload, len(batch))
	for i, r := range batch {
		payload[i] = rowPayload{ID: r.ID, Source: r.Source, Draft: r.Target}
	}
	data, _ := json.MarshalIndent(payload, "", "  ")
	return string(data)
}

// historySnippet renders the trailing n finalized rows of the window as a
// compact JSON continuity block.
func historySnippet(before []table.Row, n int) string {
	if len(before) == 0 {
		return "None"
	}
	if n > 0 && len(before) > n {
		before = before[len(before)-n:]
	}
	type histRow struct {
		ID     string `json:"id"`
		Target string `json:"target"`
	}
	rows := make([]histRow, len(before))
	for i, r := range before {
		rows[i] = histRow{ID: r.ID, Target: r.Target}
	}
	data, _ := json.MarshalIndent(rows, "", "  ")
	return string(data)
}

// upcomingSnippet lists the raw source of the "after" window rows, giving
// the model sight of what follows without inviting it to translate ahead.
func upcomingSnippet(after []table.Row) string {
	if len(after) == 0 {
		return "None"
	}
	var sb strings.Builder
	for _, r := range after {
		fmt.Fprintf(&sb, "[%s] %s\n", r.ID, r.Source)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// decodeBatch parses a JSON array response and aligns it with the batch.
// The backend may return rows in any order; they are re-keyed by id here.
// Rows missing from the response become per-row failures, not a batch
// abort. Merge directions are honored only when merging is enabled.
func (b *base) decodeBatch(raw string, batch []table.Row) ([]RowResult, error) {
	var payload []rowPayload
	if err := json.Unmarshal([]byte(postprocess.ExtractJSON(raw)), &payload); err != nil {
		return nil, fmt.Errorf("malformed batch response: %w", err)
	}

	byID := make(map[string]rowPayload, len(payload))
	for _, p := range payload {
		byID[p.ID] = p
	}

	results := make([]RowResult, len(batch))
	for i, row := range batch {
		res := RowResult{ID: row.ID}
		p, ok := byID[row.ID]
		if !ok {
			res.Err = fmt.Errorf("backend response missing row id %s", row.ID)
			results[i] = res
			continue
		}
		res.Target = strings.TrimSpace(p.Target)
		res.Comments = strings.TrimSpace(p.Comments)
		if b.cfg.CrossRowMerging {
			res.Marker = merge.ParseMarker(p.Merge)
		}
		results[i] = res
	}
	return results, nil
}

// generate performs one backend call with the strategy's model override.
func (b *base) generate(ctx context.Context, system, prompt string, jsonOut bool, temperature float64) (string, error) {
	return b.llm.Generate(ctx, llm.Request{
		System:       system,
		Prompt:       prompt,
		Model:        b.cfg.Model,
		Temperature:  temperature,
		JSONResponse: jsonOut,
	})
}

func promptReq(prompt, model string, temperature float64) llm.Request {
	return llm.Request{Prompt: prompt, Model: model, Temperature: temperature}
}

func promptReqWithSystem(system, prompt, model string, temperature float64) llm.Request {
	return llm.Request{System: system, Prompt: prompt, Model: model, Temperature: temperature}
}

func jsonReq(prompt, model string, temperature float64) llm.Request {
	return llm.Request{Prompt: prompt, Model: model, Temperature: temperature, JSONResponse: true}
}

// knowledgeModel is the model used for setup-time analysis calls.
func (b *base) knowledgeModel() string {
	if b.cfg.Model != "" {
		return b.cfg.Model
	}
	return b.conf.LLM.KnowledgeModel
}

// fullContextSection renders the optional injected document context.
func (b *base) fullContextSection() string {
	if b.fullContext == "" {
		return ""
	}
	return fmt.Sprintf("\n[DOCUMENT CONTEXT]\n%s\n", b.fullContext)
}

// mergeProtocol is the instruction block appended when cross-row merging is
// enabled. The model marks the leading row "forward" and places the combined
// translation on the trailing row marked "backward"; row count must be
// preserved.
const mergeProtocol = `
CROSS-ROW MERGING PROTOCOL:
1. If one sentence is split across two ADJACENT rows A and B, translate the
   pair as a single sentence:
   - set row A "merge" to "forward" and leave its "target" empty,
   - set row B "merge" to "backward" and put the FULL combined translation
     in row B's "target".
2. Never merge non-adjacent rows and never merge more than two rows.
3. ROW COUNT INVARIANCE: return exactly one object per input row id.`

// glossaryFromDeps builds the run glossary from the optional file plus any
// stored terms.
func glossaryFromDeps(deps Deps) (*glossary.Glossary, error) {
	g := glossary.New()
	if deps.GlossaryPath != "" {
		loaded, err := glossary.Load(deps.GlossaryPath)
		if err != nil {
			return nil, err
		}
		g = loaded
	}
	keys := make([]string, 0, len(deps.StoreTerms))
	for src := range deps.StoreTerms {
		keys = append(keys, src)
	}
	sort.Strings(keys)
	for _, src := range keys {
		g.Add(src, deps.StoreTerms[src])
	}
	return g, nil
}
