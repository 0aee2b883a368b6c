// Package reviewcandidate persists ambiguous duplicate groups so a human
// can pick the surviving contact later. Rows are keyed by the match that
// produced them, not by the run, so repeated detection refreshes the same
// pending row instead of stacking copies.
package reviewcandidate

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/tansy/internal/database"
	"github.com/Ramsey-B/tansy/pkg/models"
	"github.com/Ramsey-B/tansy/pkg/tracing"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
)

const reviewCandidateTable = "review_candidates"

var reviewCandidateColumns = []string{
	"id",
	"strategy",
	"match_key",
	"member_ids",
	"reason",
	"status",
	"run_id",
	"created_at",
	"resolved_at",
}

type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new review candidate repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Upsert records an ambiguous group under its (strategy, match key) pair.
// If a pending row already exists it is refreshed in place with the new
// members, reason and run id. Rows a human already resolved or dismissed
// are left untouched and nil is returned.
func (r *Repository) Upsert(ctx context.Context, candidate models.ReviewCandidate) (*models.ReviewCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "reviewcandidate.Repository.Upsert")
	defer span.End()

	if candidate.ID == "" {
		candidate.ID = uuid.NewString()
	}
	candidate.Status = models.ReviewStatusPending
	candidate.CreatedAt = time.Now().UTC()

	ib := database.NewInsertBuilder().
		InsertInto(reviewCandidateTable).
		Cols("id", "strategy", "match_key", "member_ids", "reason", "status", "run_id", "created_at").
		Values(candidate.ID, candidate.Strategy, candidate.MatchKey, candidate.MemberIDs, candidate.Reason, candidate.Status, candidate.RunID, candidate.CreatedAt)
	ub := ib.OnConflict("strategy", "match_key")
	ub.Set(
		ub.Assign("member_ids", database.Excluded("member_ids")),
		ub.Assign("reason", database.Excluded("reason")),
		ub.Assign("run_id", database.Excluded("run_id")),
	)
	ub.Where(ub.Equal(reviewCandidateTable+".status", models.ReviewStatusPending))
	ib = ib.Returning(reviewCandidateColumns...)

	query, args := ib.Build()
	var row models.ReviewCandidate
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"strategy": candidate.Strategy, "match_key": candidate.MatchKey}).Error("Failed to upsert review candidate")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to upsert review candidate: %v", err)
	}
	return &row, nil
}

func (r *Repository) Get(ctx context.Context, id string) (*models.ReviewCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "reviewcandidate.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(reviewCandidateColumns...)
	sb.From(reviewCandidateTable)
	sb.Where(sb.Equal("id", id))
	sb.Limit(1)

	query, args := sb.Build()
	var row models.ReviewCandidate
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"candidate_id": id}).Error("Failed to get review candidate")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to get review candidate: %v", err)
	}
	return &row, nil
}

// ListPending returns every unresolved candidate, oldest first.
func (r *Repository) ListPending(ctx context.Context) ([]models.ReviewCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "reviewcandidate.Repository.ListPending")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(reviewCandidateColumns...)
	sb.From(reviewCandidateTable)
	sb.Where(sb.Equal("status", models.ReviewStatusPending))
	sb.OrderBy("created_at", "id")

	query, args := sb.Build()
	var rows []models.ReviewCandidate
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list pending review candidates")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list pending review candidates: %v", err)
	}
	return rows, nil
}

func (r *Repository) Resolve(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "reviewcandidate.Repository.Resolve")
	defer span.End()

	return r.transition(ctx, id, models.ReviewStatusResolved)
}

func (r *Repository) Dismiss(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "reviewcandidate.Repository.Dismiss")
	defer span.End()

	return r.transition(ctx, id, models.ReviewStatusDismissed)
}

// ResolveMatching closes every pending candidate whose member list contains
// any of the given contact ids. Called after a merge commits, when those
// contacts no longer exist and the review is moot. Returns the number of
// candidates closed.
func (r *Repository) ResolveMatching(ctx context.Context, memberIDs []int64) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "reviewcandidate.Repository.ResolveMatching")
	defer span.End()

	if len(memberIDs) == 0 {
		return 0, nil
	}

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(reviewCandidateTable)
	ub.Set(
		ub.Assign("status", models.ReviewStatusResolved),
		ub.Assign("resolved_at", time.Now().UTC()),
	)
	contains := make([]string, 0, len(memberIDs))
	for _, id := range memberIDs {
		member := database.JSONB[[]int64]{Data: []int64{id}}
		contains = append(contains, fmt.Sprintf("member_ids @> %s", ub.Var(member)))
	}
	ub.Where(
		ub.Equal("status", models.ReviewStatusPending),
		fmt.Sprintf("(%s)", strings.Join(contains, " OR ")),
	)

	query, args := ub.Build()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"member_count": len(memberIDs)}).Error("Failed to resolve matching review candidates")
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to resolve review candidates: %v", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to count resolved candidates: %v", err)
	}
	return int(n), nil
}

func (r *Repository) transition(ctx context.Context, id string, status models.ReviewStatus) error {
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(reviewCandidateTable)
	ub.Set(
		ub.Assign("status", status),
		ub.Assign("resolved_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("status", models.ReviewStatusPending),
	)

	query, args := ub.Build()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"candidate_id": id, "status": status}).Error("Failed to update review candidate status")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to update review candidate: %v", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to count updated candidates: %v", err)
	}
	if n == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "review candidate %s is not pending", id)
	}
	return nil
}
