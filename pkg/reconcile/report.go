package reconcile

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/Ramsey-B/tansy/pkg/faults"
	"github.com/Ramsey-B/tansy/pkg/merging"
	"github.com/Ramsey-B/tansy/pkg/models"
	"github.com/Ramsey-B/tansy/pkg/repair"
)

// GroupOutcome states what happened to one group.
type GroupOutcome string

const (
	OutcomeMerged          GroupOutcome = "merged"
	OutcomePlanned         GroupOutcome = "planned"
	OutcomeNeedsReview     GroupOutcome = "needs_review"
	OutcomeAlreadyResolved GroupOutcome = "already_resolved"
	OutcomeAborted         GroupOutcome = "aborted"
	OutcomeFailed          GroupOutcome = "failed"
)

// GroupReport is one group's entry in the run report. Plan carries the
// field-level diff applied, or planned under dry run and no-auto-merge.
type GroupReport struct {
	Strategy    models.Strategy    `json:"strategy,omitempty"`
	MatchKey    string             `json:"match_key,omitempty"`
	MemberIDs   []int64            `json:"member_ids"`
	Disposition models.Disposition `json:"disposition,omitempty"`
	PrimaryID   int64              `json:"primary_id,omitempty"`
	Reason      string             `json:"reason,omitempty"`
	Outcome     GroupOutcome       `json:"outcome"`
	Plan        *merging.MergePlan `json:"plan,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// Summary aggregates the run.
type Summary struct {
	Groups          int `json:"groups"`
	Merged          int `json:"merged"`
	Planned         int `json:"planned"`
	Ambiguous       int `json:"ambiguous"`
	AlreadyResolved int `json:"already_resolved"`
	Aborted         int `json:"aborted"`
	Failed          int `json:"failed"`
	RepairsApplied  int `json:"repairs_applied"`
}

// RunReport is the structured outcome of one run, printed to stdout or
// archived with --out.
type RunReport struct {
	RunID   string                   `json:"run_id"`
	Options Options                  `json:"options"`
	Groups  []GroupReport            `json:"groups"`
	Repair  *repair.Report           `json:"repair,omitempty"`
	Defects []faults.IntegrityDefect `json:"defects,omitempty"`
	Summary Summary                  `json:"summary"`
}

// NewRunReport creates an empty report with a fresh run id.
func NewRunReport(opts Options) *RunReport {
	return &RunReport{
		RunID:   uuid.NewString(),
		Options: opts,
		Groups:  []GroupReport{},
	}
}

func (r *RunReport) addGroup(entry GroupReport) {
	r.Groups = append(r.Groups, entry)
	r.Summary.Groups++
	switch entry.Outcome {
	case OutcomeMerged:
		r.Summary.Merged++
	case OutcomePlanned:
		r.Summary.Planned++
	case OutcomeNeedsReview:
		r.Summary.Ambiguous++
	case OutcomeAlreadyResolved:
		r.Summary.AlreadyResolved++
	case OutcomeAborted:
		r.Summary.Aborted++
	case OutcomeFailed:
		r.Summary.Failed++
	}
}

// AttachRepair folds a repair pass into the run report.
func (r *RunReport) AttachRepair(rep *repair.Report) {
	if rep == nil {
		return
	}
	r.Repair = rep
	r.Summary.RepairsApplied = rep.Repaired
	for _, kind := range rep.Kinds {
		r.Defects = append(r.Defects, kind.Defects...)
	}
}

// Serialize renders the report for stdout or archival.
func (r *RunReport) Serialize() ([]byte, error) {
	out, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}
