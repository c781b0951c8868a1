package window

import (
	"strconv"
	"testing"

	"github.com/perelab/tabletran/internal/table"
)

func makeDoc(n int) *table.Document {
	doc := &table.Document{Columns: []string{table.ColID, table.ColSource, table.ColTarget, table.ColComments}}
	for i := 0; i < n; i++ {
		id := strconv.Itoa(i + 1)
		doc.Rows = append(doc.Rows, table.Row{ID: id, Source: "src" + id})
	}
	return doc
}

func finalize(doc *table.Document, upTo int) []table.Row {
	history := make([]table.Row, upTo)
	for i := 0; i < upTo; i++ {
		history[i] = doc.Rows[i]
		history[i].Target = "tgt" + history[i].ID
	}
	return history
}

func TestBuildMiddleBatch(t *testing.T) {
	doc := makeDoc(10)
	b := NewBuilder(doc, 3, 2)

	// Batch covering rows 4..6 (indices 3..6), first three rows finalized.
	win := b.Build(3, 6, finalize(doc, 3))

	if len(win.Before) != 3 {
		t.Fatalf("before = %d rows, want 3", len(win.Before))
	}
	if win.Before[0].ID != "1" || win.Before[2].ID != "3" {
		t.Errorf("before ids = %s..%s, want 1..3", win.Before[0].ID, win.Before[2].ID)
	}
	for _, r := range win.Before {
		if r.Target == "" {
			t.Errorf("before row %s not finalized", r.ID)
		}
	}

	if len(win.After) != 2 {
		t.Fatalf("after = %d rows, want 2", len(win.After))
	}
	if win.After[0].ID != "7" || win.After[1].ID != "8" {
		t.Errorf("after ids = %s, %s, want 7, 8", win.After[0].ID, win.After[1].ID)
	}
	for _, r := range win.After {
		if r.Target != "" {
			t.Errorf("after row %s should be raw source", r.ID)
		}
	}
}

func TestBuildClipsAtDocumentStart(t *testing.T) {
	doc := makeDoc(10)
	b := NewBuilder(doc, 3, 2)

	win := b.Build(0, 3, nil)
	if len(win.Before) != 0 {
		t.Errorf("before = %d rows at document start, want 0", len(win.Before))
	}
	if len(win.After) != 2 {
		t.Errorf("after = %d rows, want 2", len(win.After))
	}
}

func TestBuildClipsAtDocumentEnd(t *testing.T) {
	doc := makeDoc(10)
	b := NewBuilder(doc, 3, 2)

	win := b.Build(8, 10, finalize(doc, 8))
	if len(win.Before) != 3 {
		t.Errorf("before = %d rows, want 3", len(win.Before))
	}
	if len(win.After) != 0 {
		t.Errorf("after = %d rows at document end, want 0", len(win.After))
	}
}

// Five-row document, batch size two, before-window one: the second batch
// must see exactly the finalized row 2, and the after side shrinks to the
// single remaining row for the final batch.
func TestBuildSmallDocumentScenario(t *testing.T) {
	doc := makeDoc(5)
	b := NewBuilder(doc, 1, 2)

	win := b.Build(2, 4, finalize(doc, 2))
	if len(win.Before) != 1 || win.Before[0].ID != "2" {
		t.Fatalf("before = %+v, want exactly finalized row 2", win.Before)
	}
	if len(win.After) != 1 || win.After[0].ID != "5" {
		t.Fatalf("after = %+v, want exactly row 5", win.After)
	}
}

func TestBuildZeroWindow(t *testing.T) {
	doc := makeDoc(5)
	b := NewBuilder(doc, 0, 0)

	win := b.Build(2, 4, finalize(doc, 2))
	if len(win.Before) != 0 || len(win.After) != 0 {
		t.Errorf("zero window = %d before, %d after, want 0, 0", len(win.Before), len(win.After))
	}
}

func TestBuildNegativeSizesClamped(t *testing.T) {
	doc := makeDoc(5)
	b := NewBuilder(doc, -1, -5)

	win := b.Build(2, 4, finalize(doc, 2))
	if len(win.Before) != 0 || len(win.After) != 0 {
		t.Errorf("negative sizes = %d before, %d after, want 0, 0", len(win.Before), len(win.After))
	}
}

// The before side never reaches past the finalized history, even when the
// window size would allow more.
func TestBuildBeforeLimitedToHistory(t *testing.T) {
	doc := makeDoc(10)
	b := NewBuilder(doc, 5, 0)

	win := b.Build(3, 6, finalize(doc, 2))
	if len(win.Before) != 2 {
		t.Errorf("before = %d rows, want 2 (only finalized history)", len(win.Before))
	}
}
