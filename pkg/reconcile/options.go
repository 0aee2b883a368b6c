// Package reconcile orchestrates a deduplication run: candidate
// grouping, classification, merge execution and the review queue, with
// one report per run. Every entry point interprets the same Options.
package reconcile

import (
	"github.com/go-playground/validator/v10"

	"github.com/Ramsey-B/tansy/pkg/faults"
	"github.com/Ramsey-B/tansy/pkg/models"
)

var validate = validator.New()

// ExplicitGroup names a caller-designated merge: the full member set and
// the surviving primary. It bypasses grouping and classification.
type ExplicitGroup struct {
	MemberIDs []int64 `json:"member_ids" validate:"min=2,dive,gt=0"`
	PrimaryID int64   `json:"primary_id" validate:"gt=0"`
}

// Options controls one run. The zero value classifies every group and
// reports without writing anything but pending review candidates.
type Options struct {
	DryRun        bool              `json:"dry_run"`
	AutoMerge     bool              `json:"auto_merge"`
	ExplicitGroup *ExplicitGroup    `json:"explicit_group,omitempty"`
	Strategies    []models.Strategy `json:"match_strategy,omitempty" validate:"dive,oneof=email_exact person_name_exact org_name_exact"`
}

// Validate rejects malformed options before the run starts.
func (o *Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		return faults.NewValidationErrorf("invalid options: %v", err)
	}
	if o.ExplicitGroup != nil {
		found := false
		for _, id := range o.ExplicitGroup.MemberIDs {
			if id == o.ExplicitGroup.PrimaryID {
				found = true
				break
			}
		}
		if !found {
			return faults.NewValidationErrorf("explicit group primary %d is not a member", o.ExplicitGroup.PrimaryID)
		}
	}
	return nil
}
