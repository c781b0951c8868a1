// Package processor drives a document run from start to end: it carves the
// document into contiguous batches of the strategy's batch size, supplies
// each batch with its context window, routes results through the merge
// resolver, and appends finalized rows to the run history and the output
// table. Batches are strictly sequential: the "before" window of batch k+1
// is drawn from the finalized output of batch k, so later batches cannot
// start before earlier ones finish.
package processor

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/perelab/tabletran/internal/config"
	"github.com/perelab/tabletran/internal/merge"
	"github.com/perelab/tabletran/internal/store"
	"github.com/perelab/tabletran/internal/strategy"
	"github.com/perelab/tabletran/internal/table"
	"github.com/perelab/tabletran/internal/window"
)

// RowFailure wraps a per-row translation failure. Failures are recovered
// locally: the row keeps its source, the target stays as it was, comments
// get an error marker, and the run continues.
type RowFailure struct {
	ID  string
	Err error
}

func (e *RowFailure) Error() string {
	return fmt.Sprintf("row %s failed: %v", e.ID, e.Err)
}

func (e *RowFailure) Unwrap() error { return e.Err }

// Summary reports run-level accounting at completion.
type Summary struct {
	Rows      int
	Batches   int
	Succeeded int
	Failed    int
	Merged    int
	Flagged   int
	Resumed   int
	MergeErrs int
	Canceled  bool
	Duration  time.Duration
}

// Options configures one run. Store and RunID enable checkpointing; Resume
// holds previously finalized rows keyed by row id (from an interrupted run)
// that will not be re-sent to the backend.
type Options struct {
	Store  *store.Store
	RunID  string
	Resume map[string]store.RowRecord
	Quiet  bool
}

// Processor schedules batches for one document run. It is the sole writer of
// the run history; strategies see it read-only through their windows.
type Processor struct {
	cfg  config.Strategy
	opts Options
}

// New creates a processor for the given merged strategy configuration.
func New(cfg config.Strategy, opts Options) *Processor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 15
	}
	return &Processor{cfg: cfg, opts: opts}
}

// Run processes doc through strat, appending finalized rows to out after
// every batch. The returned error is non-nil only for fatal conditions
// (output I/O); row-level failures are absorbed into the Summary. The ctx
// is checked between batches only, never mid-batch, so cancellation leaves
// previously written output valid and resumable.
func (p *Processor) Run(ctx context.Context, doc *table.Document, strat strategy.Strategy, out *table.IncrementalWriter) (*Summary, error) {
	start := time.Now()
	total := len(doc.Rows)
	batchSize := p.cfg.BatchSize
	totalBatches := (total + batchSize - 1) / batchSize

	builder := window.NewBuilder(doc, p.cfg.ContextWindow.Before, p.cfg.ContextWindow.After)
	history := make([]table.Row, 0, total)

	summary := &Summary{Rows: total, Batches: totalBatches}

	for batchStart := 0; batchStart < total; batchStart += batchSize {
		select {
		case <-ctx.Done():
			summary.Canceled = true
			summary.Duration = time.Since(start)
			return summary, nil
		default:
		}

		batchEnd := batchStart + batchSize
		if batchEnd > total {
			batchEnd = total
		}
		batch := doc.Rows[batchStart:batchEnd]
		batchNum := batchStart/batchSize + 1

		var finalized []table.Row
		if rows, ok := p.resumedRows(batch); ok {
			finalized = rows
			summary.Resumed += len(rows)
			p.progressf("Batch %d/%d (rows %d-%d): restored from checkpoint\n",
				batchNum, totalBatches, batchStart+1, batchEnd)
		} else {
			p.progressf("Processing batch %d/%d (rows %d-%d)...\n",
				batchNum, totalBatches, batchStart+1, batchEnd)
			win := builder.Build(batchStart, batchEnd, history)
			finalized = p.processBatch(ctx, strat, batch, win, summary)
		}

		if err := out.Append(finalized); err != nil {
			return summary, fmt.Errorf("failed to write batch %d: %w", batchNum, err)
		}
		p.checkpoint(ctx, batchStart, finalized)
		history = append(history, finalized...)
	}

	if p.opts.Store != nil && p.opts.RunID != "" {
		if err := p.opts.Store.CompleteRun(ctx, p.opts.RunID); err != nil {
			p.progressf("Warning: failed to mark checkpoint complete: %v\n", err)
		}
	}
	summary.Duration = time.Since(start)
	return summary, nil
}

// processBatch invokes the strategy, re-keys results by id, resolves merge
// markers, and folds failures into the summary. It always returns exactly
// one finalized row per batch row, in document order.
func (p *Processor) processBatch(ctx context.Context, strat strategy.Strategy, batch []table.Row, win window.Window, summary *Summary) []table.Row {
	results, err := strat.ProcessBatch(ctx, batch, win)

	byID := make(map[string]strategy.RowResult, len(results))
	if err == nil {
		for _, r := range results {
			byID[r.ID] = r
		}
	}

	entries := make([]merge.Entry, len(batch))
	rowErrs := make([]error, len(batch))
	for i, row := range batch {
		entry := merge.Entry{ID: row.ID, Target: row.Target, Comments: row.Comments}

		switch {
		case err != nil:
			rowErrs[i] = &RowFailure{ID: row.ID, Err: err}
		default:
			res, ok := byID[row.ID]
			if !ok {
				rowErrs[i] = &RowFailure{ID: row.ID, Err: fmt.Errorf("no result for row id %s", row.ID)}
			} else if res.Err != nil {
				rowErrs[i] = &RowFailure{ID: row.ID, Err: res.Err}
			} else {
				entry.Target = res.Target
				entry.Comments = res.Comments
				entry.Marker = res.Marker
			}
		}
		if rowErrs[i] != nil {
			entry.Comments = appendNote(entry.Comments, fmt.Sprintf("[[TRANSLATION ERROR: %v]]", unwrapRowErr(rowErrs[i])))
		}
		entries[i] = entry
	}

	resolved, mergeErrs := merge.Resolve(entries)
	for _, me := range mergeErrs {
		summary.MergeErrs++
		p.progressf("Warning: %v\n", me)
	}

	finalized := make([]table.Row, len(batch))
	for i, row := range batch {
		finalized[i] = table.Row{
			ID:       row.ID,
			Source:   row.Source,
			Target:   resolved[i].Target,
			Comments: resolved[i].Comments,
			Extra:    row.Extra,
		}
		switch {
		case rowErrs[i] != nil:
			summary.Failed++
		default:
			summary.Succeeded++
		}
		if resolved[i].Marker == merge.Forward {
			summary.Merged++
		}
		if strings.Contains(resolved[i].Comments, "[[QA FLAG]]") ||
			strings.Contains(resolved[i].Comments, "[TRANSCRIPTION FLAG]") {
			summary.Flagged++
		}
	}
	return finalized
}

// resumedRows returns finalized rows for the batch when every row is
// covered by the resume checkpoint. Partially covered batches are processed
// normally so the strategy sees a coherent window.
func (p *Processor) resumedRows(batch []table.Row) ([]table.Row, bool) {
	if len(p.opts.Resume) == 0 {
		return nil, false
	}
	rows := make([]table.Row, len(batch))
	for i, row := range batch {
		rec, ok := p.opts.Resume[row.ID]
		if !ok {
			return nil, false
		}
		rows[i] = table.Row{
			ID:       row.ID,
			Source:   row.Source,
			Target:   rec.Target,
			Comments: rec.Comments,
			Extra:    row.Extra,
		}
	}
	return rows, true
}

// checkpoint persists finalized rows under the run id. Checkpoint failures
// are warnings: the output table remains the source of truth.
func (p *Processor) checkpoint(ctx context.Context, batchStart int, rows []table.Row) {
	if p.opts.Store == nil || p.opts.RunID == "" {
		return
	}
	for i, row := range rows {
		if err := p.opts.Store.SaveRow(ctx, p.opts.RunID, row.ID, batchStart+i, row.Target, row.Comments); err != nil {
			p.progressf("Warning: failed to checkpoint row %s: %v\n", row.ID, err)
			return
		}
	}
}

func (p *Processor) progressf(format string, args ...any) {
	if p.opts.Quiet {
		return
	}
	fmt.Fprintf(os.Stderr, format, args...)
}

func appendNote(comments, note string) string {
	if comments == "" {
		return note
	}
	return comments + " " + note
}

func unwrapRowErr(err error) error {
	if rf, ok := err.(*RowFailure); ok {
		return rf.Err
	}
	return err
}
