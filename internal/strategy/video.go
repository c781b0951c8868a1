package strategy

import (
	"context"
	"fmt"
	"strings"

	"github.com/perelab/tabletran/internal/table"
	"github.com/perelab/tabletran/internal/textutil"
	"github.com/perelab/tabletran/internal/window"
)

// Video proofreads subtitle tables. Setup optionally generates a style guide
// distinguishing voice-over from on-screen text; ProcessBatch sends the
// batch as JSON, audits the source transcript for ASR errors when the
// transcription audit is enabled (annotating comments, never touching the
// source), and applies a translationese blacklist.
type Video struct {
	base
	styleGuide string
}

func newVideo(deps Deps) *Video {
	return &Video{
		base:       newBase("video", deps),
		styleGuide: "No specific style guide generated.",
	}
}

// Setup generates the style guide when enabled; otherwise the strategy is
// ready immediately.
func (v *Video) Setup(ctx context.Context, doc *table.Document) error {
	if err := v.beginSetup(doc); err != nil {
		return err
	}

	if v.cfg.GenerateStyleGuide {
		snippet := textutil.Truncate(joinSources(doc.Rows, 300), 5000)
		prompt := fmt.Sprintf(`You are a Senior Localization Architect for video content.
Task: create a "Best Efficient Style Guide".

Sections required:
1. **Project Context**: topic, vibe (e.g. casual YouTube vs. formal documentary).
2. **Stylistic Protocols**:
   - **Voice-Over (VO)**: guidelines for spoken narrative (fluidity, breath).
   - **On-Screen Text (OS)**: guidelines for titles and labels (conciseness, nominal style).
3. **Formatting**: rules for numbers and punctuation in subtitles.

Source text snippet:
%s`, snippet)

		guide, err := v.llm.Generate(ctx, promptReq(prompt, v.knowledgeModel(), 0.5))
		if err != nil {
			return &SetupError{Strategy: v.name, Err: fmt.Errorf("style guide generation: %w", err)}
		}
		if strings.TrimSpace(guide) != "" {
			v.styleGuide = strings.TrimSpace(guide)
		}
	}

	v.finishSetup()
	return nil
}

func (v *Video) blacklistSection() string {
	if len(v.cfg.BlacklistTerms) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\n**NEGATIVE CONSTRAINTS (translationese blacklist)** — never use these renderings:\n")
	for _, t := range v.cfg.BlacklistTerms {
		fmt.Fprintf(&sb, "- %s\n", t)
	}
	return sb.String()
}

func (v *Video) auditSection() string {
	if !v.cfg.EnableTranscriptionAudit {
		return ""
	}
	return `
1. **Transcription Audit**: check each "source" for typos, ASR errors (homophones), or wrong names.
   Protocol: if an error is found, prepend "[TRANSCRIPTION FLAG] <note>" to that row's "comments".
   NEVER modify the "source" itself.`
}

// ProcessBatch sends the batch through one backend call: determine VO vs OS
// per segment, translate or proofread in the appropriate register, and
// optionally audit the transcription.
func (v *Video) ProcessBatch(ctx context.Context, batch []table.Row, win window.Window) ([]RowResult, error) {
	if err := v.checkReady(); err != nil {
		return nil, err
	}

	var protocol string
	if v.cfg.CrossRowMerging {
		protocol = mergeProtocol
	}

	prompt := fmt.Sprintf(`[STYLE GUIDE]
%s
%s
[PREVIOUS CONTEXT]
%s
%s
[TASK]%s
%d. **Translation**:
   - Determine whether each segment is VO (spoken) or OS (on-screen text).
   - Apply the appropriate style (VO = fluid, OS = concise).
   - Target language: %s. Use the "draft" when present, correcting it as needed.
%s
[INPUT DATA]
%s

[OUTPUT FORMAT]
JSON array of {"id": "...", "target": "...", "comments": "..."%s}`,
		v.styleGuide,
		v.blacklistSection(),
		historySnippet(win.Before, 5),
		v.fullContextSection(),
		v.auditSection(),
		taskNumber(v.cfg.EnableTranscriptionAudit),
		v.conf.TargetLang,
		protocol,
		encodeBatch(batch),
		mergeFieldHint(v.cfg.CrossRowMerging))

	raw, err := v.generate(ctx, "You are an automated subtitle localization engine. Output strictly valid JSON.", prompt, true, 0.5)
	if err != nil {
		return nil, err
	}

	results, err := v.decodeBatch(raw, batch)
	if err != nil {
		return nil, err
	}

	// Preserve pre-existing comments: audit notes are appended after them.
	for i, row := range batch {
		if results[i].Err != nil {
			continue
		}
		if row.Comments != "" && results[i].Comments != "" {
			results[i].Comments = row.Comments + " | " + results[i].Comments
		} else if row.Comments != "" {
			results[i].Comments = row.Comments
		}
	}
	return results, nil
}

func taskNumber(auditEnabled bool) int {
	if auditEnabled {
		return 2
	}
	return 1
}
