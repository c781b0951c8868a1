// Package merge reconciles cross-row merge markers emitted by a strategy
// against the fixed row-id space of the document. A source sentence may span
// two adjacent rows and be translated as one unit; the resolver keeps one
// output record per original id by parking a placeholder on the leading row
// and the combined translation on the trailing row. The resolver never drops
// or duplicates a row.
package merge

import (
	"fmt"
)

// Marker is the per-row directional merge tag attached to a translation
// result. It is an internal representation only; the bracketed wire tokens
// below are applied at the table-write boundary.
type Marker int

const (
	None Marker = iota
	// Forward means this row's translation is carried by the next row.
	Forward
	// Backward means this row carries the combined translation of itself
	// and the preceding Forward row.
	Backward
)

// Wire-format tokens. ForwardPlaceholder is a distinguishable sentinel
// written into Target so downstream consumers can detect and strip it;
// the tags annotate Comments.
const (
	ForwardPlaceholder = "[[MERGED-FORWARD]]"
	ForwardTag         = "[MERGED-FORWARD]"
	BackwardTag        = "[MERGED-BACKWARD]"
)

// ParseMarker maps a strategy response tag to a Marker. Unknown values are
// treated as None.
func ParseMarker(s string) Marker {
	switch s {
	case "forward", "merged-forward":
		return Forward
	case "backward", "merged-backward":
		return Backward
	default:
		return None
	}
}

func (m Marker) String() string {
	switch m {
	case Forward:
		return "merged-forward"
	case Backward:
		return "merged-backward"
	default:
		return "none"
	}
}

// AlignmentError reports a dangling or mismatched merge marker. It is
// recovered locally: the affected row is treated as unmerged and annotated,
// the batch continues.
type AlignmentError struct {
	ID     string
	Reason string
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("merge alignment error on row %s: %s", e.ID, e.Reason)
}

// Entry is one row's resolved translation in document order, before merge
// reconciliation.
type Entry struct {
	ID       string
	Target   string
	Comments string
	Marker   Marker
}

// Resolve walks the entries of one batch in document order and applies the
// merge protocol: every Forward row must be immediately followed by a
// Backward row. Valid pairs get the placeholder/combined-translation
// treatment; dangling or non-adjacent markers are left unmerged and
// annotated. The returned slice always has exactly len(entries) elements in
// the same order; the returned errors describe each recovered misalignment.
func Resolve(entries []Entry) ([]Entry, []error) {
	out := make([]Entry, len(entries))
	copy(out, entries)

	var errs []error
	for i := range out {
		switch out[i].Marker {
		case Forward:
			if i+1 >= len(out) || out[i+1].Marker != Backward {
				err := &AlignmentError{ID: out[i].ID, Reason: "merged-forward row has no adjacent merged-backward partner"}
				errs = append(errs, err)
				out[i].Marker = None
				out[i].Comments = appendNote(out[i].Comments, "[[MERGE ERROR: dangling merged-forward, treated as unmerged]]")
				continue
			}
			out[i].Target = ForwardPlaceholder
			out[i].Comments = appendNote(out[i].Comments, ForwardTag)
			out[i+1].Comments = appendNote(out[i+1].Comments, fmt.Sprintf("%s ref=%s", BackwardTag, out[i].ID))
		case Backward:
			if i == 0 || entries[i-1].Marker != Forward {
				err := &AlignmentError{ID: out[i].ID, Reason: "merged-backward row has no preceding merged-forward partner"}
				errs = append(errs, err)
				out[i].Marker = None
				out[i].Comments = appendNote(out[i].Comments, "[[MERGE ERROR: dangling merged-backward, treated as unmerged]]")
			}
		}
	}
	return out, errs
}

func appendNote(comments, note string) string {
	if comments == "" {
		return note
	}
	return comments + " " + note
}
