// Package contact persists the base contact rows.
package contact

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/tansy/internal/database"
	"github.com/Ramsey-B/tansy/pkg/models"
	"github.com/Ramsey-B/tansy/pkg/tracing"
)

var contactColumns = []string{
	"id", "kind", "first_name", "last_name", "org_name", "email", "phone",
	"address_line1", "address_line2", "city", "state", "postal_code",
	"office", "notes", "created_at", "updated_at",
}

// Repository handles contact persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new contact repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Get returns one contact by id, or nil when it does not exist.
func (r *Repository) Get(ctx context.Context, id int64) (*models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(contactColumns...)
	sb.From("contacts")
	sb.Where(sb.Equal("id", id))
	sb.Limit(1)

	query, args := sb.Build()
	var c models.Contact
	if err := r.db.GetContext(ctx, &c, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"contact_id": id}).Error("Failed to get contact")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to get contact: %v", err)
	}
	return &c, nil
}

// GetByIDs returns the contacts that still exist among ids, ordered by id.
// Missing ids are simply absent from the result.
func (r *Repository) GetByIDs(ctx context.Context, ids []int64) ([]models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.GetByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(contactColumns...)
	sb.From("contacts")
	sb.Where(sb.In("id", int64sToAny(ids)...))
	sb.OrderBy("id")

	query, args := sb.Build()
	var contacts []models.Contact
	if err := r.db.SelectContext(ctx, &contacts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id_count": len(ids)}).Error("Failed to get contacts by ids")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to get contacts: %v", err)
	}
	return contacts, nil
}

// ListBatch returns up to limit contacts with id greater than afterID,
// ordered by id. Keyset pagination keeps full scans cheap and stable.
func (r *Repository) ListBatch(ctx context.Context, afterID int64, limit int) ([]models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.ListBatch")
	defer span.End()

	if limit <= 0 {
		limit = 500
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(contactColumns...)
	sb.From("contacts")
	sb.Where(sb.GreaterThan("id", afterID))
	sb.OrderBy("id")
	sb.Limit(limit)

	query, args := sb.Build()
	var contacts []models.Contact
	if err := r.db.SelectContext(ctx, &contacts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"after_id": afterID, "limit": limit}).Error("Failed to list contacts")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list contacts: %v", err)
	}
	return contacts, nil
}

// Create inserts a contact and returns it with store-assigned id and
// timestamps.
func (r *Repository) Create(ctx context.Context, c *models.Contact) (*models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.Create")
	defer span.End()

	ib := database.NewInsertBuilder()
	ib.InsertInto("contacts")
	ib.Cols("kind", "first_name", "last_name", "org_name", "email", "phone",
		"address_line1", "address_line2", "city", "state", "postal_code", "office", "notes")
	ib.Values(c.Kind, c.FirstName, c.LastName, c.OrgName, c.Email, c.Phone,
		c.AddressLine1, c.AddressLine2, c.City, c.State, c.PostalCode, c.Office, c.Notes)
	ib.Returning(contactColumns...)

	query, args := ib.Build()
	var created models.Contact
	if err := r.db.GetContext(ctx, &created, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"kind": c.Kind}).Error("Failed to create contact")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to create contact: %v", err)
	}
	return &created, nil
}

// UpdateFields writes the named scalar columns on one contact. Column
// names outside the declared updatable set are rejected.
func (r *Repository) UpdateFields(ctx context.Context, id int64, fields map[string]string) error {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.UpdateFields")
	defer span.End()

	if len(fields) == 0 {
		return nil
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		if !isUpdatable(name) {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "column %q is not updatable", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("contacts")
	sets := make([]string, 0, len(names)+1)
	for _, name := range names {
		sets = append(sets, sb.Assign(name, fields[name]))
	}
	sets = append(sets, sb.Assign("updated_at", time.Now().UTC()))
	sb.Set(sets...)
	sb.Where(sb.Equal("id", id))

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	query, args := sb.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"contact_id": id, "field_count": len(fields)}).Error("Failed to update contact fields")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to update contact: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"contact_id": id}).Error("Failed to commit contact update")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to update contact: %v", err)
	}
	return nil
}

// Delete removes a contact row. Deleting an id that is already gone is
// not an error.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.Delete")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom("contacts")
	sb.Where(sb.Equal("id", id))

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	query, args := sb.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"contact_id": id}).Error("Failed to delete contact")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to delete contact: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"contact_id": id}).Error("Failed to commit contact delete")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to delete contact: %v", err)
	}
	return nil
}

func isUpdatable(name string) bool {
	for _, col := range models.ContactFields {
		if col == name {
			return true
		}
	}
	return false
}

func int64sToAny(ids []int64) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
