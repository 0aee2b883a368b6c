package merging

import (
	"fmt"
	"strings"

	"github.com/Ramsey-B/tansy/pkg/faults"
	"github.com/Ramsey-B/tansy/pkg/models"
	"github.com/Ramsey-B/tansy/pkg/normalizers"
)

// FieldChange records one attribute write the merge will perform. From is
// the primary's value before the merge; SourceID names the duplicate that
// contributed the value and is zero for concatenated fields, which can
// draw from several members.
type FieldChange struct {
	Field    string `json:"field"`
	From     string `json:"from,omitempty"`
	To       string `json:"to"`
	SourceID int64  `json:"source_id,omitempty"`
}

// MergePlan describes every write a merge will perform. Plans are
// computed before the transaction opens, validated, and applied verbatim;
// under dry run the plan itself is the result. Duplicates are walked in
// member order, so identical inputs always produce an identical plan.
type MergePlan struct {
	PrimaryID      int64          `json:"primary_id"`
	DuplicateIDs   []int64        `json:"duplicate_ids"`
	MissingIDs     []int64        `json:"missing_ids,omitempty"`
	ContactChanges []FieldChange  `json:"contact_changes,omitempty"`
	CreateDetail   bool           `json:"create_detail,omitempty"`
	DetailChanges  []FieldChange  `json:"detail_changes,omitempty"`
	Repoints       map[string]int `json:"repoints,omitempty"`
}

// NoOp reports whether the plan has nothing left to merge, usually
// because every duplicate was already resolved by an earlier group.
func (p *MergePlan) NoOp() bool {
	return len(p.DuplicateIDs) == 0
}

// attrSource reads named attributes off a contact or detail snapshot.
type attrSource interface {
	Field(name string) (string, bool)
}

type sourced struct {
	id  int64
	src attrSource
}

// BuildPlan computes the writes that merging the duplicates into the
// primary would perform. It never mutates its inputs and touches no
// store; the engine supplies loaded snapshots and applies the result.
func BuildPlan(
	spec *FieldSpec,
	primary models.Contact,
	duplicates []models.Contact,
	primaryDetail models.Detail,
	duplicateDetails map[int64]models.Detail,
) (*MergePlan, error) {
	plan := &MergePlan{PrimaryID: primary.ID}

	dups := make([]models.Contact, 0, len(duplicates))
	for _, dup := range duplicates {
		if dup.ID == primary.ID {
			continue
		}
		if dup.Kind != primary.Kind {
			return nil, faults.NewValidationErrorf(
				"cannot merge %s contact %d into %s contact %d", dup.Kind, dup.ID, primary.Kind, primary.ID)
		}
		dups = append(dups, dup)
		plan.DuplicateIDs = append(plan.DuplicateIDs, dup.ID)
	}

	if len(dups) == 0 {
		return plan, nil
	}

	contactSources := make([]sourced, len(dups))
	for i := range dups {
		contactSources[i] = sourced{id: dups[i].ID, src: &dups[i]}
	}

	for _, name := range models.ContactFields {
		rule := spec.ContactRule(name)
		if change, ok := planField(name, rule, &primary, contactSources); ok {
			plan.ContactChanges = append(plan.ContactChanges, change)
		}
	}

	if err := checkEmailRetention(plan, primary, dups); err != nil {
		return nil, err
	}

	detail := primaryDetail
	if detail == nil {
		plan.CreateDetail = true
		detail = models.NewDetail(primary.Kind, primary.ID)
	}

	detailSources := make([]sourced, 0, len(dups))
	for _, dup := range dups {
		if d := duplicateDetails[dup.ID]; d != nil {
			detailSources = append(detailSources, sourced{id: dup.ID, src: d})
		}
	}

	for _, name := range models.DetailFieldsFor(primary.Kind) {
		rule := spec.DetailRule(primary.Kind, name)
		if change, ok := planField(name, rule, detail, detailSources); ok {
			plan.DetailChanges = append(plan.DetailChanges, change)
		}
	}

	return plan, nil
}

// planField applies one field rule. Blank fill takes the first non-blank
// value in member order and only when the primary's value is blank;
// concatenation appends every non-blank value behind an origin marker.
func planField(name string, rule FieldRule, current attrSource, sources []sourced) (FieldChange, bool) {
	cur, ok := current.Field(name)
	if !ok {
		return FieldChange{}, false
	}

	switch {
	case rule.Concatenate:
		merged := cur
		for _, s := range sources {
			v, _ := s.src.Field(name)
			if normalizers.IsBlank(v) {
				continue
			}
			block := fmt.Sprintf("[merged from contact %d]\n%s", s.id, strings.TrimSpace(v))
			if normalizers.IsBlank(merged) {
				merged = block
			} else {
				merged = merged + "\n\n" + block
			}
		}
		if merged == cur {
			return FieldChange{}, false
		}
		return FieldChange{Field: name, From: cur, To: merged}, true

	case rule.BlankFill:
		if !normalizers.IsBlank(cur) {
			return FieldChange{}, false
		}
		for _, s := range sources {
			v, _ := s.src.Field(name)
			if normalizers.IsBlank(v) {
				continue
			}
			return FieldChange{Field: name, From: cur, To: v, SourceID: s.id}, true
		}
	}

	return FieldChange{}, false
}

// checkEmailRetention rejects plans that would silently drop a duplicate's
// email. After the union, every member's non-blank email must fold to the
// primary's surviving one; anything else needs a human.
func checkEmailRetention(plan *MergePlan, primary models.Contact, dups []models.Contact) error {
	finalEmail := primary.Email
	for _, change := range plan.ContactChanges {
		if change.Field == "email" {
			finalEmail = change.To
			break
		}
	}

	for _, dup := range dups {
		if normalizers.IsBlank(dup.Email) {
			continue
		}
		if normalizers.FoldEmail(dup.Email) != normalizers.FoldEmail(finalEmail) {
			return faults.NewValidationErrorf(
				"merge would discard email %q from contact %d", strings.TrimSpace(dup.Email), dup.ID).AddField("email")
		}
	}

	return nil
}
