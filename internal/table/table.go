// Package table loads and persists row-oriented bilingual documents stored as
// TSV. It owns row identity and the column schema: headers are normalized to
// the canonical ID / Source / Target / Comments names through an alias list,
// extra columns are preserved verbatim, and embedded tabs and newlines survive
// a write/read round trip through standard TSV quoting.
package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Canonical column names.
const (
	ColID       = "ID"
	ColSource   = "Source"
	ColTarget   = "Target"
	ColComments = "Comments"
)

// headerAliases maps a canonical column name to the lowercase header
// spellings accepted on input.
var headerAliases = map[string][]string{
	ColID:       {"id", "#", "no.", "index", "key"},
	ColSource:   {"english", "source", "en", "src", "original"},
	ColTarget:   {"chinese", "target", "zh", "tgt", "translation", "cn"},
	ColComments: {"comments", "comment", "notes", "note", "remark"},
}

// Row is one identified unit of source/target text. ID and Source are
// immutable once loaded; Target and Comments are the only fields mutated
// during processing. Extra holds preserved non-canonical columns.
type Row struct {
	ID       string
	Source   string
	Target   string
	Comments string
	Extra    map[string]string
}

// Document is an ordered sequence of rows plus the normalized column order
// used when writing. Row order is the unit of context adjacency and is
// preserved end to end.
type Document struct {
	Columns []string
	Rows    []Row
}

// FormatError reports a malformed input table: missing required columns or
// duplicated row ids. It is fatal and aborts a run before any processing.
type FormatError struct {
	Path   string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed table %s: %s", e.Path, e.Reason)
}

// normalizeHeader maps the raw header row onto canonical column names.
// It returns the normalized header and the index of each canonical column
// (-1 when absent). When no standard headers are recognised it falls back to
// positional mapping (col 1 = ID, col 2 = Source, col 3 = Target).
func normalizeHeader(headers []string) ([]string, map[string]int, error) {
	lower := make([]string, len(headers))
	for i, h := range headers {
		lower[i] = strings.ToLower(strings.TrimSpace(h))
	}

	find := func(aliases []string) int {
		for i, h := range lower {
			for _, a := range aliases {
				if h == a {
					return i
				}
			}
		}
		// Partial match as a fallback, e.g. "source text".
		for i, h := range lower {
			for _, a := range aliases {
				if strings.Contains(h, a) {
					return i
				}
			}
		}
		return -1
	}

	idx := map[string]int{
		ColID:       find(headerAliases[ColID]),
		ColSource:   find(headerAliases[ColSource]),
		ColTarget:   find(headerAliases[ColTarget]),
		ColComments: find(headerAliases[ColComments]),
	}

	if idx[ColID] == -1 || idx[ColSource] == -1 {
		// No recognisable headers: fall back to positional mapping.
		switch {
		case len(headers) >= 3:
			idx[ColID], idx[ColSource], idx[ColTarget] = 0, 1, 2
			idx[ColComments] = -1
		case len(headers) == 2:
			idx[ColID], idx[ColSource] = 0, 1
			idx[ColTarget], idx[ColComments] = -1, -1
		default:
			return nil, nil, fmt.Errorf("could not identify required columns (ID, Source) in header %v", headers)
		}
	}

	normalized := make([]string, len(headers))
	for i, h := range headers {
		switch i {
		case idx[ColID]:
			normalized[i] = ColID
		case idx[ColSource]:
			normalized[i] = ColSource
		case idx[ColTarget]:
			normalized[i] = ColTarget
		case idx[ColComments]:
			normalized[i] = ColComments
		default:
			normalized[i] = h
		}
	}
	return normalized, idx, nil
}

// Read loads a TSV document from path. It fails with *FormatError when the
// required ID/Source columns are absent or when a row id occurs twice.
func Read(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input table: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '\t'
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, &FormatError{Path: path, Reason: err.Error()}
	}
	if len(records) == 0 {
		return nil, &FormatError{Path: path, Reason: "empty file"}
	}

	normalized, _, err := normalizeHeader(records[0])
	if err != nil {
		return nil, &FormatError{Path: path, Reason: err.Error()}
	}

	columns := canonicalOrder(normalized)
	doc := &Document{Columns: columns}

	seen := make(map[string]bool, len(records)-1)
	for _, rec := range records[1:] {
		row := Row{}
		for i, val := range rec {
			if i >= len(normalized) {
				break
			}
			switch normalized[i] {
			case ColID:
				row.ID = val
			case ColSource:
				row.Source = val
			case ColTarget:
				row.Target = val
			case ColComments:
				row.Comments = val
			default:
				if row.Extra == nil {
					row.Extra = make(map[string]string)
				}
				row.Extra[normalized[i]] = val
			}
		}
		if row.ID == "" && row.Source == "" {
			continue // skip fully blank trailing lines
		}
		if seen[row.ID] {
			return nil, &FormatError{Path: path, Reason: fmt.Sprintf("duplicate row id %q", row.ID)}
		}
		seen[row.ID] = true
		doc.Rows = append(doc.Rows, row)
	}
	return doc, nil
}

// canonicalOrder returns the output column order: ID, Source, Target,
// Comments first, then any extra columns in their original order. Target and
// Comments are always present on output even when the input had no such
// column, since processing fills them in.
func canonicalOrder(normalized []string) []string {
	columns := []string{ColID, ColSource, ColTarget, ColComments}
	for _, c := range normalized {
		if c != ColID && c != ColSource && c != ColTarget && c != ColComments {
			columns = append(columns, c)
		}
	}
	return columns
}

func (r Row) field(column string) string {
	switch column {
	case ColID:
		return r.ID
	case ColSource:
		return r.Source
	case ColTarget:
		return r.Target
	case ColComments:
		return r.Comments
	default:
		return r.Extra[column]
	}
}

// Write persists the document to path atomically: the content is written to a
// temporary file in the same directory and renamed over the destination, so a
// crash mid-write never leaves a truncated table behind.
func Write(path string, doc *Document) error {
	if doc == nil || len(doc.Columns) == 0 {
		return errors.New("nothing to write")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tabletran-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := csv.NewWriter(tmp)
	w.Comma = '\t'
	if err := writeAll(w, doc); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace output file: %w", err)
	}
	return nil
}

func writeAll(w *csv.Writer, doc *Document) error {
	if err := w.Write(doc.Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, row := range doc.Rows {
		if err := w.Write(recordFor(doc.Columns, row)); err != nil {
			return fmt.Errorf("failed to write row %s: %w", row.ID, err)
		}
	}
	w.Flush()
	return w.Error()
}

func recordFor(columns []string, row Row) []string {
	rec := make([]string, len(columns))
	for i, c := range columns {
		rec[i] = row.field(c)
	}
	return rec
}

// IncrementalWriter appends finalized rows to an output table as batches
// complete. The header goes out first and every Append is flushed and synced,
// so a crash mid-run leaves previously written rows intact and readable.
type IncrementalWriter struct {
	f       *os.File
	w       *csv.Writer
	columns []string
}

// NewIncrementalWriter creates (truncating) the output table at path and
// writes the header immediately.
func NewIncrementalWriter(path string, columns []string) (*IncrementalWriter, error) {
	if len(columns) == 0 {
		return nil, errors.New("no columns for output table")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output table: %w", err)
	}

	w := csv.NewWriter(f)
	w.Comma = '\t'
	iw := &IncrementalWriter{f: f, w: w, columns: columns}
	if err := w.Write(columns); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	if err := iw.flush(); err != nil {
		f.Close()
		return nil, err
	}
	return iw, nil
}

// Append writes the rows and flushes them to disk before returning.
func (iw *IncrementalWriter) Append(rows []Row) error {
	for _, row := range rows {
		if err := iw.w.Write(recordFor(iw.columns, row)); err != nil {
			return fmt.Errorf("failed to write row %s: %w", row.ID, err)
		}
	}
	return iw.flush()
}

func (iw *IncrementalWriter) flush() error {
	iw.w.Flush()
	if err := iw.w.Error(); err != nil {
		return fmt.Errorf("failed to flush output table: %w", err)
	}
	if err := iw.f.Sync(); err != nil {
		return fmt.Errorf("failed to sync output table: %w", err)
	}
	return nil
}

// Close flushes any buffered rows and closes the file.
func (iw *IncrementalWriter) Close() error {
	iw.w.Flush()
	if err := iw.w.Error(); err != nil {
		iw.f.Close()
		return err
	}
	return iw.f.Close()
}
