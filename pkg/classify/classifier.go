// Package classify decides whether a duplicate-candidate group is safe to
// merge unattended. The classifier only inspects the snapshot it is
// handed; it never loads or mutates anything.
package classify

import (
	"context"
	"sort"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/tansy/pkg/models"
	"github.com/Ramsey-B/tansy/pkg/normalizers"
	"github.com/Ramsey-B/tansy/pkg/tracing"
)

const (
	ReasonSharedEmail       = "all members share the same email"
	ReasonSingleEmail       = "only one member carries an email"
	ReasonCompleteness      = "one member is strictly more complete"
	ReasonDifferentEmails   = "different emails - likely different entities"
	ReasonNeedsManualReview = "needs manual review"
)

// completenessFields are the scalar attributes counted toward a member's
// completeness score.
var completenessFields = []string{"email", "phone", "address_line1", "notes"}

type Classifier struct {
	logger ectologger.Logger
}

func NewClassifier(logger ectologger.Logger) *Classifier {
	return &Classifier{logger: logger}
}

// Classify applies the dedup rules in order, first match wins. Members
// may arrive in any order; evaluation always sees them oldest first, so
// the verdict is deterministic for a given snapshot.
func (c *Classifier) Classify(ctx context.Context, group models.DuplicateGroup, members []models.Contact) models.Classification {
	ctx, span := tracing.StartSpan(ctx, "classify.Classifier.Classify")
	defer span.End()

	snapshot := make([]models.Contact, len(members))
	copy(snapshot, members)
	sort.Slice(snapshot, func(i, j int) bool {
		if !snapshot[i].CreatedAt.Equal(snapshot[j].CreatedAt) {
			return snapshot[i].CreatedAt.Before(snapshot[j].CreatedAt)
		}
		return snapshot[i].ID < snapshot[j].ID
	})

	verdict := c.evaluate(snapshot)

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"strategy":    group.Strategy,
		"members":     len(snapshot),
		"disposition": verdict.Disposition,
		"primary_id":  verdict.PrimaryID,
	}).Debug("Classified duplicate group")

	return verdict
}

func (c *Classifier) evaluate(snapshot []models.Contact) models.Classification {
	if len(snapshot) == 0 {
		return models.Classification{
			Disposition: models.DispositionAmbiguous,
			Reason:      ReasonNeedsManualReview,
		}
	}

	if verdict, ok := ruleSharedEmail(snapshot); ok {
		return verdict
	}
	if verdict, ok := ruleSingleEmail(snapshot); ok {
		return verdict
	}
	if verdict, ok := ruleCompleteness(snapshot); ok {
		return verdict
	}
	if verdict, ok := ruleDifferentEmails(snapshot); ok {
		return verdict
	}

	return models.Classification{
		Disposition: models.DispositionAmbiguous,
		Reason:      ReasonNeedsManualReview,
	}
}

// Rule 1: every member carries the same non-blank email. The oldest
// member is kept.
func ruleSharedEmail(members []models.Contact) (models.Classification, bool) {
	first := normalizers.FoldEmail(members[0].Email)
	if first == "" {
		return models.Classification{}, false
	}
	for i := range members[1:] {
		if normalizers.FoldEmail(members[i+1].Email) != first {
			return models.Classification{}, false
		}
	}
	return models.Classification{
		Disposition: models.DispositionObvious,
		PrimaryID:   members[0].ID,
		Reason:      ReasonSharedEmail,
	}, true
}

// Rule 2: exactly one member has an email and the names otherwise match.
// The member with the email is kept.
func ruleSingleEmail(members []models.Contact) (models.Classification, bool) {
	withEmail := -1
	for i := range members {
		if normalizers.IsBlank(members[i].Email) {
			continue
		}
		if withEmail >= 0 {
			return models.Classification{}, false
		}
		withEmail = i
	}
	if withEmail < 0 || !namesMatch(members) {
		return models.Classification{}, false
	}
	return models.Classification{
		Disposition: models.DispositionObvious,
		PrimaryID:   members[withEmail].ID,
		Reason:      ReasonSingleEmail,
	}, true
}

// Rule 3: exactly two members whose completeness scores strictly differ.
// Guarded against pairs carrying two distinct emails, which can never be
// merged without discarding one.
func ruleCompleteness(members []models.Contact) (models.Classification, bool) {
	if len(members) != 2 {
		return models.Classification{}, false
	}
	if distinctEmails(members) > 1 {
		return models.Classification{}, false
	}

	a := completeness(&members[0])
	b := completeness(&members[1])
	if a == b {
		return models.Classification{}, false
	}

	primary := members[0].ID
	if b > a {
		primary = members[1].ID
	}
	return models.Classification{
		Disposition: models.DispositionObvious,
		PrimaryID:   primary,
		Reason:      ReasonCompleteness,
	}, true
}

// Rule 4: two or more distinct non-blank emails in one group.
func ruleDifferentEmails(members []models.Contact) (models.Classification, bool) {
	if distinctEmails(members) < 2 {
		return models.Classification{}, false
	}
	return models.Classification{
		Disposition: models.DispositionAmbiguous,
		Reason:      ReasonDifferentEmails,
	}, true
}

func completeness(c *models.Contact) int {
	score := 0
	for _, field := range completenessFields {
		if v, _ := c.Field(field); !normalizers.IsBlank(v) {
			score++
		}
	}
	return score
}

func distinctEmails(members []models.Contact) int {
	seen := map[string]bool{}
	for i := range members {
		email := normalizers.FoldEmail(members[i].Email)
		if email != "" {
			seen[email] = true
		}
	}
	return len(seen)
}

func namesMatch(members []models.Contact) bool {
	first := &members[0]
	for i := range members[1:] {
		m := &members[i+1]
		if m.Kind != first.Kind {
			return false
		}
		if first.Kind == models.KindOrganization {
			if m.OrgName != first.OrgName {
				return false
			}
			continue
		}
		if m.FirstName != first.FirstName || m.LastName != first.LastName {
			return false
		}
	}
	return true
}
