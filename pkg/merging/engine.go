// Package merging implements duplicate contact merges: field union, note
// concatenation, detail union, dependent repointing and duplicate removal,
// one transaction per group.
package merging

import (
	"context"
	"database/sql"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/tansy/internal/database"
	"github.com/Ramsey-B/tansy/pkg/faults"
	"github.com/Ramsey-B/tansy/pkg/models"
	"github.com/Ramsey-B/tansy/pkg/tracing"
)

// ContactStore loads and mutates base contact rows.
type ContactStore interface {
	GetByIDs(ctx context.Context, ids []int64) ([]models.Contact, error)
	UpdateFields(ctx context.Context, id int64, fields map[string]string) error
	Delete(ctx context.Context, id int64) error
}

// DetailStore loads and mutates the kind-specific extension rows.
// GetByOwner returns nil without error when the owner has no row.
type DetailStore interface {
	GetByOwner(ctx context.Context, kind models.Kind, ownerID int64) (models.Detail, error)
	Create(ctx context.Context, detail models.Detail) error
	UpdateFields(ctx context.Context, kind models.Kind, ownerID int64, fields map[string]string) error
	Delete(ctx context.Context, kind models.Kind, ownerID int64) error
}

// DependentStore re-points rows that reference a contact. RelationKinds
// reports the registered relations in a fixed order; VerifyCoverage
// fails when the store declares a referencing table the registry does
// not cover.
type DependentStore interface {
	RelationKinds() []string
	Count(ctx context.Context, relation string, contactID int64) (int, error)
	Repoint(ctx context.Context, relation string, fromID, toID int64) (int, error)
	VerifyCoverage(ctx context.Context) error
}

// Result is the outcome of one merge.
type Result struct {
	Plan            *MergePlan `json:"plan"`
	Applied         bool       `json:"applied"`
	AlreadyResolved bool       `json:"already_resolved,omitempty"`
}

// Engine executes merges. It owns the group transaction; everything it
// writes for one group commits or rolls back together.
type Engine struct {
	logger     ectologger.Logger
	db         database.DB
	spec       *FieldSpec
	contacts   ContactStore
	details    DetailStore
	dependents DependentStore
}

// NewEngine creates a merge engine.
func NewEngine(
	logger ectologger.Logger,
	db database.DB,
	spec *FieldSpec,
	contacts ContactStore,
	details DetailStore,
	dependents DependentStore,
) *Engine {
	return &Engine{
		logger:     logger,
		db:         db,
		spec:       spec,
		contacts:   contacts,
		details:    details,
		dependents: dependents,
	}
}

// Execute merges the group's duplicates into the primary. Members that no
// longer exist are dropped from the plan; a group whose duplicates are all
// gone is reported already resolved. Under dryRun the validated plan is
// returned and nothing is written.
func (e *Engine) Execute(ctx context.Context, memberIDs []int64, primaryID int64, dryRun bool) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.Execute")
	defer span.End()

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"primary_id":   primaryID,
		"member_count": len(memberIDs),
		"dry_run":      dryRun,
	})

	found := false
	for _, id := range memberIDs {
		if id == primaryID {
			found = true
			break
		}
	}
	if !found {
		return nil, faults.NewValidationErrorf("primary %d is not a group member", primaryID)
	}

	loaded, err := e.contacts.GetByIDs(ctx, memberIDs)
	if err != nil {
		return nil, faults.NewStoreError("contacts.get_by_ids", err)
	}

	byID := make(map[int64]models.Contact, len(loaded))
	for _, c := range loaded {
		byID[c.ID] = c
	}

	primary, ok := byID[primaryID]
	if !ok {
		return nil, faults.NewNotFoundError(primaryID)
	}

	var duplicates []models.Contact
	var missing []int64
	for _, id := range memberIDs {
		if id == primaryID {
			continue
		}
		if c, ok := byID[id]; ok {
			duplicates = append(duplicates, c)
		} else {
			missing = append(missing, id)
		}
	}

	if len(duplicates) == 0 {
		log.Info("Group already resolved; nothing to merge")
		return &Result{
			Plan:            &MergePlan{PrimaryID: primaryID, MissingIDs: missing},
			AlreadyResolved: true,
		}, nil
	}

	primaryDetail, err := e.details.GetByOwner(ctx, primary.Kind, primary.ID)
	if err != nil {
		return nil, faults.NewStoreError("details.get_by_owner", err)
	}

	duplicateDetails := make(map[int64]models.Detail, len(duplicates))
	for _, dup := range duplicates {
		d, err := e.details.GetByOwner(ctx, dup.Kind, dup.ID)
		if err != nil {
			return nil, faults.NewStoreError("details.get_by_owner", err)
		}
		if d != nil {
			duplicateDetails[dup.ID] = d
		}
	}

	plan, err := BuildPlan(e.spec, primary, duplicates, primaryDetail, duplicateDetails)
	if err != nil {
		return nil, err
	}
	plan.MissingIDs = missing

	if err := e.dependents.VerifyCoverage(ctx); err != nil {
		if faults.IsValidationError(err) {
			return nil, err
		}
		return nil, faults.NewStoreError("dependents.verify_coverage", err)
	}

	if dryRun {
		if err := e.countRepoints(ctx, plan); err != nil {
			return nil, err
		}
		log.WithFields(map[string]any{
			"duplicate_count": len(plan.DuplicateIDs),
			"field_changes":   len(plan.ContactChanges),
		}).Info("Planned merge (dry run)")
		return &Result{Plan: plan}, nil
	}

	if err := e.apply(ctx, plan, primary); err != nil {
		return nil, err
	}

	log.WithFields(map[string]any{
		"duplicate_count": len(plan.DuplicateIDs),
		"field_changes":   len(plan.ContactChanges),
	}).Info("Merged duplicates into primary")

	return &Result{Plan: plan, Applied: true}, nil
}

// apply runs the plan inside one transaction: fields, detail, repoints,
// then deletions, duplicates' detail rows before their base rows.
func (e *Engine) apply(ctx context.Context, plan *MergePlan, primary models.Contact) error {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.apply")
	defer span.End()

	ctxTx, tx, err := e.db.GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return faults.NewStoreError("begin_tx", err)
	}
	defer tx.Rollback(ctxTx)

	// A duplicate donating its email still holds it until the deletes
	// below run; clear the donor first or the unique email index rejects
	// the fill on the primary.
	for _, change := range plan.ContactChanges {
		if change.Field == "email" && change.SourceID != 0 {
			if err := e.contacts.UpdateFields(ctxTx, change.SourceID, map[string]string{"email": ""}); err != nil {
				return faults.NewStoreError("contacts.release_email", err)
			}
		}
	}

	if len(plan.ContactChanges) > 0 {
		if err := e.contacts.UpdateFields(ctxTx, primary.ID, changesToMap(plan.ContactChanges)); err != nil {
			return faults.NewStoreError("contacts.update_fields", err)
		}
	}

	if plan.CreateDetail {
		detail := models.NewDetail(primary.Kind, primary.ID)
		for _, change := range plan.DetailChanges {
			detail.SetField(change.Field, change.To)
		}
		if err := e.details.Create(ctxTx, detail); err != nil {
			return faults.NewStoreError("details.create", err)
		}
	} else if len(plan.DetailChanges) > 0 {
		if err := e.details.UpdateFields(ctxTx, primary.Kind, primary.ID, changesToMap(plan.DetailChanges)); err != nil {
			return faults.NewStoreError("details.update_fields", err)
		}
	}

	for _, relation := range e.dependents.RelationKinds() {
		for _, dupID := range plan.DuplicateIDs {
			n, err := e.dependents.Repoint(ctxTx, relation, dupID, primary.ID)
			if err != nil {
				return faults.NewStoreError("dependents.repoint", err)
			}
			if n > 0 {
				if plan.Repoints == nil {
					plan.Repoints = make(map[string]int)
				}
				plan.Repoints[relation] += n
			}
		}
	}

	for _, dupID := range plan.DuplicateIDs {
		if err := e.details.Delete(ctxTx, primary.Kind, dupID); err != nil {
			return faults.NewStoreError("details.delete", err)
		}
		if err := e.contacts.Delete(ctxTx, dupID); err != nil {
			return faults.NewStoreError("contacts.delete", err)
		}
	}

	if err := tx.Commit(ctxTx); err != nil {
		return faults.NewStoreError("commit", err)
	}

	return nil
}

// countRepoints fills the plan's repoint counts without writing anything.
func (e *Engine) countRepoints(ctx context.Context, plan *MergePlan) error {
	for _, relation := range e.dependents.RelationKinds() {
		for _, dupID := range plan.DuplicateIDs {
			n, err := e.dependents.Count(ctx, relation, dupID)
			if err != nil {
				return faults.NewStoreError("dependents.count", err)
			}
			if n > 0 {
				if plan.Repoints == nil {
					plan.Repoints = make(map[string]int)
				}
				plan.Repoints[relation] += n
			}
		}
	}
	return nil
}

func changesToMap(changes []FieldChange) map[string]string {
	fields := make(map[string]string, len(changes))
	for _, change := range changes {
		fields[change.Field] = change.To
	}
	return fields
}
