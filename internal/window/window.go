// Package window assembles the bounded slice of neighboring rows supplied as
// context to a batch: up to N already-finalized rows before the batch and up
// to M raw source rows after it. Windows clip at document boundaries and a
// zero-sized window is valid.
package window

import (
	"github.com/perelab/tabletran/internal/table"
)

// Window is a derived, non-owning view around a batch. Before holds only
// finalized rows (Target filled by earlier batches); After holds raw source
// rows that have not been processed yet.
type Window struct {
	Before []table.Row
	After  []table.Row
}

// Builder produces windows for one document run.
type Builder struct {
	doc    *table.Document
	before int
	after  int
}

// NewBuilder creates a window builder over doc. Negative sizes are clamped
// to zero.
func NewBuilder(doc *table.Document, before, after int) *Builder {
	if before < 0 {
		before = 0
	}
	if after < 0 {
		after = 0
	}
	return &Builder{doc: doc, before: before, after: after}
}

// Build returns the window for the batch spanning [batchStart, batchEnd) of
// the document. The "before" slice is drawn exclusively from history, the
// finalized output of earlier batches, never from raw document rows, so a
// strategy cannot see stale untranslated context. The "after" slice comes
// from the raw document beyond batchEnd. Both sides shrink at document
// boundaries without error or padding.
func (b *Builder) Build(batchStart, batchEnd int, history []table.Row) Window {
	var win Window

	lo := batchStart - b.before
	if lo < 0 {
		lo = 0
	}
	hi := batchStart
	if hi > len(history) {
		hi = len(history)
	}
	if lo < hi {
		win.Before = history[lo:hi]
	}

	end := batchEnd + b.after
	if end > len(b.doc.Rows) {
		end = len(b.doc.Rows)
	}
	if batchEnd < end {
		win.After = b.doc.Rows[batchEnd:end]
	}
	return win
}
