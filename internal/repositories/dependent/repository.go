// Package dependent re-points rows that reference a contact, for every
// registered relation kind.
package dependent

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/tansy/internal/database"
	"github.com/Ramsey-B/tansy/pkg/faults"
	"github.com/Ramsey-B/tansy/pkg/tracing"
)

// Relation names a dependent table and the column in it that points at
// contacts.
type Relation struct {
	Table  string
	Column string
}

// registry lists every relation a merge re-points, in a fixed order.
// Adding a dependent table to the schema means adding it here;
// VerifyCoverage fails any merge attempted before that happens.
var registry = []Relation{
	{Table: "messages", Column: "contact_id"},
	{Table: "stage_assignments", Column: "contact_id"},
	{Table: "tasks", Column: "contact_id"},
}

// detailTables are owned 1:1 extensions. They merge field-wise and are
// deleted with their contact, never repointed.
var detailTables = map[string]bool{
	"person_details": true,
	"org_details":    true,
}

// Repository handles dependent repointing
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new dependent repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// RelationKinds reports the registered relation tables in registry order.
func (r *Repository) RelationKinds() []string {
	kinds := make([]string, len(registry))
	for i, rel := range registry {
		kinds[i] = rel.Table
	}
	return kinds
}

func relationFor(name string) (Relation, bool) {
	for _, rel := range registry {
		if rel.Table == name {
			return rel, true
		}
	}
	return Relation{}, false
}

// Count returns how many rows of one relation reference the contact.
func (r *Repository) Count(ctx context.Context, relation string, contactID int64) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "dependent.Repository.Count")
	defer span.End()

	rel, ok := relationFor(relation)
	if !ok {
		return 0, httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown relation %q", relation)
	}

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = $1", rel.Table, rel.Column)
	var count int
	if err := r.db.GetContext(ctx, &count, query, contactID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"relation": relation, "contact_id": contactID}).Error("Failed to count dependents")
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to count dependents: %v", err)
	}
	return count, nil
}

// Repoint moves every row of one relation from one contact to another
// and reports how many rows moved.
func (r *Repository) Repoint(ctx context.Context, relation string, fromID, toID int64) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "dependent.Repository.Repoint")
	defer span.End()

	rel, ok := relationFor(relation)
	if !ok {
		return 0, httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown relation %q", relation)
	}

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	query := fmt.Sprintf("UPDATE %s SET %s = $1 WHERE %s = $2", rel.Table, rel.Column, rel.Column)
	result, err := tx.ExecContext(ctx, query, toID, fromID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"relation": relation, "from_id": fromID, "to_id": toID}).Error("Failed to repoint dependents")
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to repoint dependents: %v", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to count repointed rows: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"relation": relation}).Error("Failed to commit repoint")
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to repoint dependents: %v", err)
	}
	return int(affected), nil
}

type referencingColumn struct {
	TableName  string `db:"table_name"`
	ColumnName string `db:"column_name"`
}

// VerifyCoverage checks that every foreign key the store declares
// against contacts.id belongs to a registered relation or a detail
// table. A merge that ran with an uncovered reference would either break
// it or fail mid-transaction, so this runs before any merge transaction
// opens.
func (r *Repository) VerifyCoverage(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "dependent.Repository.VerifyCoverage")
	defer span.End()

	query := `
		SELECT tc.table_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON kcu.constraint_name = tc.constraint_name
		 AND kcu.table_schema = tc.table_schema
		JOIN information_schema.constraint_column_usage ccu
		  ON ccu.constraint_name = tc.constraint_name
		 AND ccu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND ccu.table_name = 'contacts'
		  AND ccu.column_name = 'id'
		ORDER BY tc.table_name, kcu.column_name
	`

	var refs []referencingColumn
	if err := r.db.SelectContext(ctx, &refs, query); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list foreign keys referencing contacts")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to verify dependent coverage: %v", err)
	}

	for _, ref := range refs {
		if detailTables[ref.TableName] {
			continue
		}
		rel, ok := relationFor(ref.TableName)
		if !ok || rel.Column != ref.ColumnName {
			return faults.NewValidationErrorf(
				"dependent table %s.%s references contacts but is not registered for repointing", ref.TableName, ref.ColumnName)
		}
	}

	return nil
}
