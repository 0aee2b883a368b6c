// Package detail persists the kind-specific detail rows and carries the
// repair port every integrity pass goes through.
package detail

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/tansy/internal/database"
	"github.com/Ramsey-B/tansy/pkg/models"
	"github.com/Ramsey-B/tansy/pkg/tracing"
)

var personColumns = []string{"contact_id", "birthday", "spouse_name", "home_church", "marital_status"}
var orgColumns = []string{"contact_id", "denomination", "congregation_size", "pastor_name", "pastor_email", "website"}

// Repository handles detail persistence. Reads and writes on the merge
// path assume the migrated schema; the repair methods discover the key
// column actually declared on the deployed table, because legacy
// bulk-load layouts named it id, declared no primary key, and allowed
// nulls in it.
type Repository struct {
	db     database.DB
	logger ectologger.Logger

	mu      sync.Mutex
	keyCols map[string]string
}

// NewRepository creates a new detail repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:      db,
		logger:  logger,
		keyCols: make(map[string]string),
	}
}

func tableFor(kind models.Kind) string {
	if kind == models.KindOrganization {
		return "org_details"
	}
	return "person_details"
}

func columnsFor(kind models.Kind) []string {
	if kind == models.KindOrganization {
		return orgColumns
	}
	return personColumns
}

// GetByOwner returns the detail row for one contact, or nil when the
// contact has none.
func (r *Repository) GetByOwner(ctx context.Context, kind models.Kind, ownerID int64) (models.Detail, error) {
	ctx, span := tracing.StartSpan(ctx, "detail.Repository.GetByOwner")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columnsFor(kind)...)
	sb.From(tableFor(kind))
	sb.Where(sb.Equal("contact_id", ownerID))
	sb.Limit(1)

	query, args := sb.Build()
	detail := models.NewDetail(kind, ownerID)
	if err := r.db.GetContext(ctx, detail, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"kind": kind, "contact_id": ownerID}).Error("Failed to get detail")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to get detail: %v", err)
	}
	return detail, nil
}

// Create inserts a detail row keyed by the owning contact.
func (r *Repository) Create(ctx context.Context, detail models.Detail) error {
	ctx, span := tracing.StartSpan(ctx, "detail.Repository.Create")
	defer span.End()

	kind := detail.DetailKind()
	cols := columnsFor(kind)

	values := make([]any, 0, len(cols))
	values = append(values, detail.OwnerID())
	for _, name := range models.DetailFieldsFor(kind) {
		values = append(values, detailColumnValue(detail, name))
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(tableFor(kind))
	ib.Cols(cols...)
	ib.Values(values...)

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	query, args := ib.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"kind": kind, "contact_id": detail.OwnerID()}).Error("Failed to create detail")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to create detail: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"kind": kind, "contact_id": detail.OwnerID()}).Error("Failed to commit detail create")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to create detail: %v", err)
	}
	return nil
}

// UpdateFields writes the named attributes on one detail row. Names
// outside the kind's declared attribute set are rejected.
func (r *Repository) UpdateFields(ctx context.Context, kind models.Kind, ownerID int64, fields map[string]string) error {
	ctx, span := tracing.StartSpan(ctx, "detail.Repository.UpdateFields")
	defer span.End()

	if len(fields) == 0 {
		return nil
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		if !isDetailField(kind, name) {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "column %q is not a %s detail attribute", name, kind)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update(tableFor(kind))
	sets := make([]string, 0, len(names))
	for _, name := range names {
		sets = append(sets, sb.Assign(name, columnValue(name, fields[name])))
	}
	sb.Set(sets...)
	sb.Where(sb.Equal("contact_id", ownerID))

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	query, args := sb.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"kind": kind, "contact_id": ownerID}).Error("Failed to update detail fields")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to update detail: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"kind": kind, "contact_id": ownerID}).Error("Failed to commit detail update")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to update detail: %v", err)
	}
	return nil
}

// Delete removes a detail row. Missing rows are not an error.
func (r *Repository) Delete(ctx context.Context, kind models.Kind, ownerID int64) error {
	ctx, span := tracing.StartSpan(ctx, "detail.Repository.Delete")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom(tableFor(kind))
	sb.Where(sb.Equal("contact_id", ownerID))

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	query, args := sb.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"kind": kind, "contact_id": ownerID}).Error("Failed to delete detail")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to delete detail: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"kind": kind, "contact_id": ownerID}).Error("Failed to commit detail delete")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to delete detail: %v", err)
	}
	return nil
}

// FindMissingDetail returns up to limit contact ids of the given kind
// that have no detail row, with id greater than afterID, ordered by id.
func (r *Repository) FindMissingDetail(ctx context.Context, kind models.Kind, afterID int64, limit int) ([]int64, error) {
	ctx, span := tracing.StartSpan(ctx, "detail.Repository.FindMissingDetail")
	defer span.End()

	if limit <= 0 {
		limit = 500
	}

	table := tableFor(kind)
	key, err := r.keyColumn(ctx, table)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT c.id
		FROM contacts c
		LEFT JOIN %s d ON d.%s = c.id
		WHERE c.kind = $1
		  AND d.%s IS NULL
		  AND c.id > $2
		ORDER BY c.id
		LIMIT $3
	`, table, key, key)

	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, query, kind, afterID, limit); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"kind": kind, "after_id": afterID}).Error("Failed to find contacts missing details")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to find missing details: %v", err)
	}
	return ids, nil
}

// CreateMissingDetail inserts a blank detail row keyed by the contact's
// own id. ON CONFLICT DO NOTHING keeps a repeated pass idempotent on the
// migrated schema.
func (r *Repository) CreateMissingDetail(ctx context.Context, kind models.Kind, ownerID int64) error {
	ctx, span := tracing.StartSpan(ctx, "detail.Repository.CreateMissingDetail")
	defer span.End()

	table := tableFor(kind)
	key, err := r.keyColumn(ctx, table)
	if err != nil {
		return err
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols(key)
	ib.Values(ownerID)
	ib.OnConflictDoNothing()

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"kind": kind, "contact_id": ownerID}).Error("Failed to create missing detail")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to create missing detail: %v", err)
	}
	return nil
}

// AssignNullKeys gives every detail row with a null key a fresh id from
// the contact sequence and reports how many rows it touched. The new key
// restores addressability; whether a live contact owns it is the defect
// census's question, not this method's.
func (r *Repository) AssignNullKeys(ctx context.Context, kind models.Kind) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "detail.Repository.AssignNullKeys")
	defer span.End()

	table := tableFor(kind)
	key, err := r.keyColumn(ctx, table)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf("UPDATE %s SET %s = nextval('contacts_id_seq') WHERE %s IS NULL", table, key, key)
	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"table": table, "key_column": key}).Error("Failed to assign null detail keys")
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to assign null keys: %v", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to count assigned keys: %v", err)
	}
	return int(affected), nil
}

// CountNullKeys counts detail rows whose key column is null without
// touching them. The read-only side of AssignNullKeys, for dry runs.
func (r *Repository) CountNullKeys(ctx context.Context, kind models.Kind) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "detail.Repository.CountNullKeys")
	defer span.End()

	table := tableFor(kind)
	key, err := r.keyColumn(ctx, table)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NULL", table, key)
	var count int
	if err := r.db.GetContext(ctx, &count, query); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"table": table}).Error("Failed to count null detail keys")
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to count null keys: %v", err)
	}
	return count, nil
}

// CountDefects counts detail rows whose key references no live contact.
func (r *Repository) CountDefects(ctx context.Context, kind models.Kind) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "detail.Repository.CountDefects")
	defer span.End()

	table := tableFor(kind)
	key, err := r.keyColumn(ctx, table)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM %s d
		WHERE d.%s IS NOT NULL
		  AND NOT EXISTS (SELECT 1 FROM contacts c WHERE c.id = d.%s)
	`, table, key, key)

	var count int
	if err := r.db.GetContext(ctx, &count, query); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"table": table}).Error("Failed to count detail defects")
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to count defects: %v", err)
	}
	return count, nil
}

// ListOrphanKeys returns up to limit key values of detail rows that
// reference no live contact, ascending.
func (r *Repository) ListOrphanKeys(ctx context.Context, kind models.Kind, limit int) ([]int64, error) {
	ctx, span := tracing.StartSpan(ctx, "detail.Repository.ListOrphanKeys")
	defer span.End()

	if limit <= 0 {
		limit = 50
	}

	table := tableFor(kind)
	key, err := r.keyColumn(ctx, table)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT d.%s
		FROM %s d
		WHERE d.%s IS NOT NULL
		  AND NOT EXISTS (SELECT 1 FROM contacts c WHERE c.id = d.%s)
		ORDER BY d.%s
		LIMIT $1
	`, key, table, key, key, key)

	var keys []int64
	if err := r.db.SelectContext(ctx, &keys, query, limit); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"table": table}).Error("Failed to list orphaned detail keys")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list orphaned keys: %v", err)
	}
	return keys, nil
}

// keyColumn discovers the key column declared on a deployed detail
// table: the declared primary key when there is one, otherwise the first
// of contact_id, id that exists. Anything else is a schema we do not
// know how to repair. The answer is cached per table.
func (r *Repository) keyColumn(ctx context.Context, table string) (string, error) {
	r.mu.Lock()
	cached, ok := r.keyCols[table]
	r.mu.Unlock()
	if ok {
		return cached, nil
	}

	query := `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON kcu.constraint_name = tc.constraint_name
		 AND kcu.table_schema = tc.table_schema
		WHERE tc.table_name = $1
		  AND tc.constraint_type = 'PRIMARY KEY'
		LIMIT 1
	`

	var key string
	err := r.db.GetContext(ctx, &key, query, table)
	if err != nil && err.Error() != "sql: no rows in result set" {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"table": table}).Error("Failed to introspect primary key")
		return "", httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to introspect %s: %v", table, err)
	}

	if key == "" {
		fallback := `
			SELECT column_name
			FROM information_schema.columns
			WHERE table_name = $1
			  AND column_name IN ('contact_id', 'id')
			ORDER BY CASE column_name WHEN 'contact_id' THEN 0 ELSE 1 END
			LIMIT 1
		`
		err = r.db.GetContext(ctx, &key, fallback, table)
		if err != nil {
			if err.Error() == "sql: no rows in result set" {
				return "", httperror.NewHTTPErrorf(http.StatusInternalServerError, "table %s has no usable key column", table)
			}
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"table": table}).Error("Failed to introspect key column")
			return "", httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to introspect %s: %v", table, err)
		}
	}

	if key != "contact_id" && key != "id" {
		return "", httperror.NewHTTPErrorf(http.StatusInternalServerError, "table %s declares unexpected key column %q", table, key)
	}

	r.mu.Lock()
	r.keyCols[table] = key
	r.mu.Unlock()

	return key, nil
}

func isDetailField(kind models.Kind, name string) bool {
	for _, col := range models.DetailFieldsFor(kind) {
		if col == name {
			return true
		}
	}
	return false
}

// detailColumnValue maps a detail attribute to its column value, keeping
// empty date and integer attributes NULL rather than empty strings.
func detailColumnValue(detail models.Detail, name string) any {
	value, _ := detail.Field(name)
	return columnValue(name, value)
}

func columnValue(name, value string) any {
	if value == "" && (name == "birthday" || name == "congregation_size") {
		return nil
	}
	return value
}
