package gapaudit

import (
	"encoding/json"

	"github.com/pmezard/go-difflib/difflib"
)

// Pair is one matched source/target pair and its field gaps. GappedFields
// holds display names in table order.
type Pair struct {
	TargetID     int64    `json:"target_id"`
	SourceIndex  int      `json:"source_index"`
	MatchedBy    string   `json:"matched_by"`
	GappedFields []string `json:"gapped_fields,omitempty"`
	HighGaps     int      `json:"high_gaps"`
}

// Summary aggregates the audit.
type Summary struct {
	Matched          int `json:"matched"`
	WithGaps         int `json:"with_gaps"`
	HighPriorityGaps int `json:"high_priority_gaps"`
}

// Report is the audit result. Pairs are sorted by target id then source
// index and every serialized field is a struct or ordered slice, so the
// same inputs always produce the same bytes. No timestamps on purpose:
// archived reports from different days diff clean.
type Report struct {
	Pairs   []Pair  `json:"pairs"`
	Summary Summary `json:"summary"`
}

// Serialize renders the report for stdout or archival.
func (r *Report) Serialize() ([]byte, error) {
	out, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// Diff renders a unified diff between two archived reports.
func Diff(previous, current []byte) (string, error) {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(previous)),
		B:        difflib.SplitLines(string(current)),
		FromFile: "previous",
		ToFile:   "current",
		Context:  3,
	}
	return difflib.GetUnifiedDiffString(diff)
}
