package merge

import (
	"strings"
	"testing"
)

func TestParseMarker(t *testing.T) {
	tests := []struct {
		input    string
		expected Marker
	}{
		{"forward", Forward},
		{"merged-forward", Forward},
		{"backward", Backward},
		{"merged-backward", Backward},
		{"", None},
		{"sideways", None},
	}
	for _, tt := range tests {
		if got := ParseMarker(tt.input); got != tt.expected {
			t.Errorf("ParseMarker(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestResolveValidPair(t *testing.T) {
	entries := []Entry{
		{ID: "1", Target: "first"},
		{ID: "2", Target: "", Marker: Forward},
		{ID: "3", Target: "combined translation", Marker: Backward},
		{ID: "4", Target: "last"},
	}

	out, errs := Resolve(entries)
	if len(errs) != 0 {
		t.Fatalf("Resolve() errs = %v, want none", errs)
	}
	if len(out) != 4 {
		t.Fatalf("Resolve() returned %d entries, want 4", len(out))
	}

	if out[1].Target != ForwardPlaceholder {
		t.Errorf("forward target = %q, want placeholder", out[1].Target)
	}
	if !strings.Contains(out[1].Comments, ForwardTag) {
		t.Errorf("forward comments = %q, want %s tag", out[1].Comments, ForwardTag)
	}
	if out[2].Target != "combined translation" {
		t.Errorf("backward target = %q, want combined translation", out[2].Target)
	}
	if !strings.Contains(out[2].Comments, BackwardTag) || !strings.Contains(out[2].Comments, "ref=2") {
		t.Errorf("backward comments = %q, want %s with ref=2", out[2].Comments, BackwardTag)
	}
	if out[0].Target != "first" || out[3].Target != "last" {
		t.Errorf("unmerged rows altered: %+v, %+v", out[0], out[3])
	}
}

func TestResolveDanglingForward(t *testing.T) {
	entries := []Entry{
		{ID: "1", Target: "a", Marker: Forward},
		{ID: "2", Target: "b"},
	}

	out, errs := Resolve(entries)
	if len(errs) != 1 {
		t.Fatalf("Resolve() errs = %d, want 1", len(errs))
	}
	var ae *AlignmentError
	if !asAlignmentError(errs[0], &ae) {
		t.Fatalf("err type = %T, want *AlignmentError", errs[0])
	}
	if ae.ID != "1" {
		t.Errorf("err id = %s, want 1", ae.ID)
	}
	if out[0].Marker != None {
		t.Errorf("dangling forward marker = %v, want None", out[0].Marker)
	}
	if out[0].Target != "a" {
		t.Errorf("dangling forward target = %q, want kept as unmerged", out[0].Target)
	}
	if !strings.Contains(out[0].Comments, "MERGE ERROR") {
		t.Errorf("dangling forward comments = %q, want MERGE ERROR note", out[0].Comments)
	}
}

func TestResolveDanglingBackward(t *testing.T) {
	entries := []Entry{
		{ID: "1", Target: "a"},
		{ID: "2", Target: "b", Marker: Backward},
	}

	out, errs := Resolve(entries)
	if len(errs) != 1 {
		t.Fatalf("Resolve() errs = %d, want 1", len(errs))
	}
	if out[1].Marker != None {
		t.Errorf("dangling backward marker = %v, want None", out[1].Marker)
	}
	if !strings.Contains(out[1].Comments, "MERGE ERROR") {
		t.Errorf("dangling backward comments = %q, want MERGE ERROR note", out[1].Comments)
	}
}

func TestResolveBackwardAtBatchStart(t *testing.T) {
	entries := []Entry{
		{ID: "5", Target: "x", Marker: Backward},
	}

	out, errs := Resolve(entries)
	if len(errs) != 1 {
		t.Fatalf("Resolve() errs = %d, want 1 (merges never span batches)", len(errs))
	}
	if out[0].Marker != None || out[0].Target != "x" {
		t.Errorf("batch-start backward = %+v, want unmerged with target kept", out[0])
	}
}

func TestResolveForwardAtBatchEnd(t *testing.T) {
	entries := []Entry{
		{ID: "5", Target: "x"},
		{ID: "6", Target: "y", Marker: Forward},
	}

	_, errs := Resolve(entries)
	if len(errs) != 1 {
		t.Fatalf("Resolve() errs = %d, want 1 (merges never span batches)", len(errs))
	}
}

func TestResolveRowCountInvariant(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
	}{
		{"empty", nil},
		{"all plain", []Entry{{ID: "1"}, {ID: "2"}}},
		{"valid pair", []Entry{{ID: "1", Marker: Forward}, {ID: "2", Marker: Backward}}},
		{"all dangling", []Entry{{ID: "1", Marker: Backward}, {ID: "2", Marker: Forward}}},
		{"two pairs", []Entry{
			{ID: "1", Marker: Forward}, {ID: "2", Marker: Backward},
			{ID: "3", Marker: Forward}, {ID: "4", Marker: Backward},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _ := Resolve(tt.entries)
			if len(out) != len(tt.entries) {
				t.Errorf("Resolve() returned %d entries, want %d", len(out), len(tt.entries))
			}
			for i := range tt.entries {
				if out[i].ID != tt.entries[i].ID {
					t.Errorf("entry %d id = %s, want %s (order must be preserved)", i, out[i].ID, tt.entries[i].ID)
				}
			}
		})
	}
}

func TestResolveConsecutiveForwardThenPair(t *testing.T) {
	entries := []Entry{
		{ID: "1", Marker: Forward},
		{ID: "2", Marker: Forward},
		{ID: "3", Target: "combined", Marker: Backward},
	}

	out, errs := Resolve(entries)
	if len(errs) != 1 {
		t.Fatalf("Resolve() errs = %d, want 1 (first forward is dangling)", len(errs))
	}
	if out[0].Marker != None {
		t.Errorf("entry 1 marker = %v, want None", out[0].Marker)
	}
	if out[1].Target != ForwardPlaceholder || out[2].Target != "combined" {
		t.Errorf("pair 2+3 not resolved: %+v, %+v", out[1], out[2])
	}
}

func asAlignmentError(err error, target **AlignmentError) bool {
	ae, ok := err.(*AlignmentError)
	if ok {
		*target = ae
	}
	return ok
}
