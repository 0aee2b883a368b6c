package reviewcandidate_test

import (
	"context"
	"net/http"
	"os"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/tansy/internal/database"
	"github.com/Ramsey-B/tansy/internal/repositories/reviewcandidate"
	"github.com/Ramsey-B/tansy/pkg/models"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func getTestDB(t *testing.T) database.DB {
	// Use environment variables or defaults for test DB
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}
	dbUser := os.Getenv("DB_USER_NAME")
	if dbUser == "" {
		dbUser = "user"
	}
	dbPass := os.Getenv("DB_PASSWORD")
	if dbPass == "" {
		dbPass = "password"
	}
	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		dbName = "tansy"
	}

	dsn := "host=" + dbHost + " user=" + dbUser + " password=" + dbPass + " dbname=" + dbName + " sslmode=disable"
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err, "Failed to connect to test database")

	return database.NewDatabaseInstance(db, getTestLogger())
}

func memberID() int64 {
	return int64(uuid.New().ID())
}

func upsertCandidate(t *testing.T, db database.DB, repo *reviewcandidate.Repository, members []int64) *models.ReviewCandidate {
	t.Helper()
	created, err := repo.Upsert(context.Background(), models.ReviewCandidate{
		Strategy:  models.StrategyPerson,
		MatchKey:  "it-" + uuid.NewString(),
		MemberIDs: database.JSONB[[]int64]{Data: members},
		Reason:    "needs manual review",
		RunID:     uuid.NewString(),
	})
	require.NoError(t, err)
	require.NotNil(t, created)
	t.Cleanup(func() {
		_, _ = db.ExecContext(context.Background(), "DELETE FROM review_candidates WHERE id = $1", created.ID)
	})
	return created
}

func TestReviewCandidateRepository_UpsertRefreshesPending(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := reviewcandidate.NewRepository(db, getTestLogger())
	ctx := context.Background()

	a, b, c := memberID(), memberID(), memberID()
	first := upsertCandidate(t, db, repo, []int64{a, b})
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, models.ReviewStatusPending, first.Status)
	assert.Equal(t, []int64{a, b}, first.MemberIDs.Data)
	assert.False(t, first.CreatedAt.IsZero())
	assert.Nil(t, first.ResolvedAt)

	// Re-detection under the same key refreshes the row instead of
	// duplicating it
	newRunID := uuid.NewString()
	second, err := repo.Upsert(ctx, models.ReviewCandidate{
		Strategy:  first.Strategy,
		MatchKey:  first.MatchKey,
		MemberIDs: database.JSONB[[]int64]{Data: []int64{a, b, c}},
		Reason:    "needs manual review",
		RunID:     newRunID,
	})
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, []int64{a, b, c}, second.MemberIDs.Data)
	assert.Equal(t, newRunID, second.RunID)
	assert.Equal(t, models.ReviewStatusPending, second.Status)

	pending, err := repo.ListPending(ctx)
	require.NoError(t, err)
	found := false
	for _, row := range pending {
		if row.ID == first.ID {
			found = true
		}
	}
	assert.True(t, found, "refreshed candidate should still be pending")

	// A human ruling sticks: re-detection does not reopen the row
	err = repo.Dismiss(ctx, first.ID)
	require.NoError(t, err)

	dismissed, err := repo.Get(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, dismissed)
	assert.Equal(t, models.ReviewStatusDismissed, dismissed.Status)
	require.NotNil(t, dismissed.ResolvedAt)

	reopened, err := repo.Upsert(ctx, models.ReviewCandidate{
		Strategy:  first.Strategy,
		MatchKey:  first.MatchKey,
		MemberIDs: database.JSONB[[]int64]{Data: []int64{a, b}},
		Reason:    "needs manual review",
		RunID:     uuid.NewString(),
	})
	require.NoError(t, err)
	assert.Nil(t, reopened)

	kept, err := repo.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusDismissed, kept.Status)
	assert.Equal(t, []int64{a, b, c}, kept.MemberIDs.Data, "dismissed row keeps its last reviewed members")

	// Dismissing a non-pending candidate is a 404
	err = repo.Dismiss(ctx, first.ID)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))

	// Get of an unknown id returns nil without error
	missing, err := repo.Get(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestReviewCandidateRepository_ResolveMatching(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := reviewcandidate.NewRepository(db, getTestLogger())
	ctx := context.Background()

	shared := memberID()
	inBoth1 := upsertCandidate(t, db, repo, []int64{shared, memberID()})
	inBoth2 := upsertCandidate(t, db, repo, []int64{memberID(), shared})
	unrelated := upsertCandidate(t, db, repo, []int64{memberID(), memberID()})

	n, err := repo.ResolveMatching(ctx, []int64{shared})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []string{inBoth1.ID, inBoth2.ID} {
		row, err := repo.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.ReviewStatusResolved, row.Status)
		assert.NotNil(t, row.ResolvedAt)
	}

	still, err := repo.Get(ctx, unrelated.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusPending, still.Status)

	// Nothing left to close on a second pass, and an empty member list is
	// a no-op
	n, err = repo.ResolveMatching(ctx, []int64{shared})
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = repo.ResolveMatching(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}
