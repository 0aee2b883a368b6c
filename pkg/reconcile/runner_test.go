package reconcile

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/tansy/pkg/classify"
	"github.com/Ramsey-B/tansy/pkg/faults"
	"github.com/Ramsey-B/tansy/pkg/merging"
	"github.com/Ramsey-B/tansy/pkg/models"
)

type fakeGroups struct {
	groups        []models.DuplicateGroup
	err           error
	gotStrategies []models.Strategy
	calls         int
}

func (f *fakeGroups) Groups(_ context.Context, strategies []models.Strategy) ([]models.DuplicateGroup, error) {
	f.calls++
	f.gotStrategies = strategies
	if f.err != nil {
		return nil, f.err
	}
	return f.groups, nil
}

type fakeLoader struct {
	contacts map[int64]models.Contact
	err      error
}

func (f *fakeLoader) GetByIDs(_ context.Context, ids []int64) ([]models.Contact, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := []models.Contact{}
	for _, id := range ids {
		if c, ok := f.contacts[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

type engineCall struct {
	memberIDs []int64
	primaryID int64
	dryRun    bool
}

type fakeEngine struct {
	calls        []engineCall
	errByPrimary map[int64]error
}

func (f *fakeEngine) Execute(_ context.Context, memberIDs []int64, primaryID int64, dryRun bool) (*merging.Result, error) {
	f.calls = append(f.calls, engineCall{memberIDs: memberIDs, primaryID: primaryID, dryRun: dryRun})
	if err := f.errByPrimary[primaryID]; err != nil {
		return nil, err
	}
	dups := []int64{}
	for _, id := range memberIDs {
		if id != primaryID {
			dups = append(dups, id)
		}
	}
	return &merging.Result{
		Plan:    &merging.MergePlan{PrimaryID: primaryID, DuplicateIDs: dups},
		Applied: !dryRun,
	}, nil
}

type fakeReviews struct {
	upserts     []models.ReviewCandidate
	upsertNil   bool
	upsertErr   error
	resolveArgs [][]int64
}

func (f *fakeReviews) Upsert(_ context.Context, candidate models.ReviewCandidate) (*models.ReviewCandidate, error) {
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	f.upserts = append(f.upserts, candidate)
	if f.upsertNil {
		return nil, nil
	}
	return &candidate, nil
}

func (f *fakeReviews) ResolveMatching(_ context.Context, memberIDs []int64) (int, error) {
	f.resolveArgs = append(f.resolveArgs, memberIDs)
	return len(memberIDs), nil
}

type observed struct {
	runID     string
	strategy  models.Strategy
	primaryID int64
	mergedIDs []int64
}

type fakeObserver struct {
	commits []observed
}

func (f *fakeObserver) MergeCommitted(_ context.Context, runID string, strategy models.Strategy, primaryID int64, mergedIDs []int64) {
	f.commits = append(f.commits, observed{runID: runID, strategy: strategy, primaryID: primaryID, mergedIDs: mergedIDs})
}

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func newTestRunner(loader *fakeLoader, groups *fakeGroups, engine *fakeEngine, reviews *fakeReviews, observers ...MergeObserver) *Runner {
	logger := noopLogger()
	return NewRunner(logger, loader, groups, classify.NewClassifier(logger), engine, reviews, observers...)
}

func contactFixture(id int64, email string, age time.Duration) models.Contact {
	return models.Contact{
		ID:        id,
		Kind:      models.KindPerson,
		FirstName: "Jane",
		LastName:  "Doe",
		Email:     email,
		CreatedAt: time.Now().Add(-age),
	}
}

func TestRunner_MergesObviousGroupWhenAutoMerge(t *testing.T) {
	loader := &fakeLoader{contacts: map[int64]models.Contact{
		1: contactFixture(1, "jane@x.org", 48*time.Hour),
		2: contactFixture(2, "jane@x.org", 24*time.Hour),
	}}
	groups := &fakeGroups{groups: []models.DuplicateGroup{
		{Strategy: models.StrategyEmail, Key: "jane@x.org", MemberIDs: []int64{1, 2}},
	}}
	engine := &fakeEngine{}
	reviews := &fakeReviews{}
	observer := &fakeObserver{}

	report, err := newTestRunner(loader, groups, engine, reviews, observer).Run(context.Background(), Options{AutoMerge: true})
	require.NoError(t, err)

	require.Len(t, engine.calls, 1)
	assert.Equal(t, []int64{1, 2}, engine.calls[0].memberIDs)
	assert.Equal(t, int64(1), engine.calls[0].primaryID, "oldest member wins")
	assert.False(t, engine.calls[0].dryRun)

	require.Len(t, report.Groups, 1)
	entry := report.Groups[0]
	assert.Equal(t, OutcomeMerged, entry.Outcome)
	assert.Equal(t, models.DispositionObvious, entry.Disposition)
	require.NotNil(t, entry.Plan)
	assert.Equal(t, []int64{2}, entry.Plan.DuplicateIDs)
	assert.Equal(t, Summary{Groups: 1, Merged: 1}, report.Summary)

	require.Len(t, observer.commits, 1)
	assert.Equal(t, report.RunID, observer.commits[0].runID)
	assert.Equal(t, models.StrategyEmail, observer.commits[0].strategy)
	assert.Equal(t, []int64{2}, observer.commits[0].mergedIDs)

	require.Len(t, reviews.resolveArgs, 1)
	assert.Equal(t, []int64{2}, reviews.resolveArgs[0])
}

func TestRunner_ObviousWithoutAutoMergeOnlyPlans(t *testing.T) {
	loader := &fakeLoader{contacts: map[int64]models.Contact{
		1: contactFixture(1, "jane@x.org", 48*time.Hour),
		2: contactFixture(2, "jane@x.org", 24*time.Hour),
	}}
	groups := &fakeGroups{groups: []models.DuplicateGroup{
		{Strategy: models.StrategyEmail, Key: "jane@x.org", MemberIDs: []int64{1, 2}},
	}}
	engine := &fakeEngine{}
	reviews := &fakeReviews{}
	observer := &fakeObserver{}

	report, err := newTestRunner(loader, groups, engine, reviews, observer).Run(context.Background(), Options{})
	require.NoError(t, err)

	require.Len(t, engine.calls, 1)
	assert.True(t, engine.calls[0].dryRun)
	assert.Equal(t, OutcomePlanned, report.Groups[0].Outcome)
	assert.Equal(t, Summary{Groups: 1, Planned: 1}, report.Summary)
	assert.Empty(t, observer.commits)
	assert.Empty(t, reviews.resolveArgs)
}

func TestRunner_AmbiguousNeverExecutes(t *testing.T) {
	loader := &fakeLoader{contacts: map[int64]models.Contact{
		3: contactFixture(3, "a@x.org", 48*time.Hour),
		4: contactFixture(4, "b@x.org", 24*time.Hour),
	}}
	groups := &fakeGroups{groups: []models.DuplicateGroup{
		{Strategy: models.StrategyPerson, Key: "Jane\x1fDoe", MemberIDs: []int64{3, 4}},
	}}
	engine := &fakeEngine{}
	reviews := &fakeReviews{}

	report, err := newTestRunner(loader, groups, engine, reviews).Run(context.Background(), Options{AutoMerge: true})
	require.NoError(t, err)

	assert.Empty(t, engine.calls, "ambiguous groups must never reach the engine")
	entry := report.Groups[0]
	assert.Equal(t, OutcomeNeedsReview, entry.Outcome)
	assert.Equal(t, models.DispositionAmbiguous, entry.Disposition)
	assert.Equal(t, classify.ReasonDifferentEmails, entry.Reason)
	assert.Equal(t, Summary{Groups: 1, Ambiguous: 1}, report.Summary)

	require.Len(t, reviews.upserts, 1)
	candidate := reviews.upserts[0]
	assert.Equal(t, models.StrategyPerson, candidate.Strategy)
	assert.Equal(t, "Jane\x1fDoe", candidate.MatchKey)
	assert.Equal(t, []int64{3, 4}, candidate.MemberIDs.Data)
	assert.Equal(t, report.RunID, candidate.RunID)
}

func TestRunner_DryRunWritesNoReviewCandidates(t *testing.T) {
	loader := &fakeLoader{contacts: map[int64]models.Contact{
		3: contactFixture(3, "a@x.org", 48*time.Hour),
		4: contactFixture(4, "b@x.org", 24*time.Hour),
	}}
	groups := &fakeGroups{groups: []models.DuplicateGroup{
		{Strategy: models.StrategyPerson, Key: "Jane\x1fDoe", MemberIDs: []int64{3, 4}},
	}}
	engine := &fakeEngine{}
	reviews := &fakeReviews{}

	report, err := newTestRunner(loader, groups, engine, reviews).Run(context.Background(), Options{DryRun: true, AutoMerge: true})
	require.NoError(t, err)

	assert.Empty(t, reviews.upserts)
	assert.Equal(t, OutcomeNeedsReview, report.Groups[0].Outcome)
}

func TestRunner_ResolvedSetSkipsMergedMembers(t *testing.T) {
	loader := &fakeLoader{contacts: map[int64]models.Contact{
		1: contactFixture(1, "jane@x.org", 48*time.Hour),
		2: contactFixture(2, "jane@x.org", 24*time.Hour),
		5: contactFixture(5, "", 12*time.Hour),
	}}
	groups := &fakeGroups{groups: []models.DuplicateGroup{
		{Strategy: models.StrategyEmail, Key: "jane@x.org", MemberIDs: []int64{1, 2}},
		{Strategy: models.StrategyPerson, Key: "Jane\x1fDoe", MemberIDs: []int64{2, 5}},
	}}
	engine := &fakeEngine{}
	reviews := &fakeReviews{}

	report, err := newTestRunner(loader, groups, engine, reviews).Run(context.Background(), Options{AutoMerge: true})
	require.NoError(t, err)

	require.Len(t, engine.calls, 1, "the second group collapses once 2 is merged away")
	require.Len(t, report.Groups, 2)
	assert.Equal(t, OutcomeMerged, report.Groups[0].Outcome)
	assert.Equal(t, OutcomeAlreadyResolved, report.Groups[1].Outcome)
	assert.Equal(t, Summary{Groups: 2, Merged: 1, AlreadyResolved: 1}, report.Summary)
}

func TestRunner_VanishedMembersSkipWithoutError(t *testing.T) {
	loader := &fakeLoader{contacts: map[int64]models.Contact{
		1: contactFixture(1, "jane@x.org", 48*time.Hour),
	}}
	groups := &fakeGroups{groups: []models.DuplicateGroup{
		{Strategy: models.StrategyEmail, Key: "jane@x.org", MemberIDs: []int64{1, 2}},
	}}
	engine := &fakeEngine{}

	report, err := newTestRunner(loader, groups, engine, &fakeReviews{}).Run(context.Background(), Options{AutoMerge: true})
	require.NoError(t, err)

	assert.Empty(t, engine.calls)
	assert.Equal(t, OutcomeAlreadyResolved, report.Groups[0].Outcome)
}

func TestRunner_MergeErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantOutcome GroupOutcome
		wantErrText bool
	}{
		{
			name:        "not found is a quiet no-op",
			err:         faults.NewNotFoundError(1),
			wantOutcome: OutcomeAlreadyResolved,
		},
		{
			name:        "validation aborts the group",
			err:         faults.NewValidationErrorf("plan discards email"),
			wantOutcome: OutcomeAborted,
			wantErrText: true,
		},
		{
			name:        "store failure fails the group",
			err:         faults.NewStoreError("contacts.update_fields", fmt.Errorf("connection reset")),
			wantOutcome: OutcomeFailed,
			wantErrText: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := &fakeLoader{contacts: map[int64]models.Contact{
				1: contactFixture(1, "jane@x.org", 48*time.Hour),
				2: contactFixture(2, "jane@x.org", 24*time.Hour),
				7: contactFixture(7, "sam@x.org", 40*time.Hour),
				8: contactFixture(8, "sam@x.org", 20*time.Hour),
			}}
			groups := &fakeGroups{groups: []models.DuplicateGroup{
				{Strategy: models.StrategyEmail, Key: "jane@x.org", MemberIDs: []int64{1, 2}},
				{Strategy: models.StrategyEmail, Key: "sam@x.org", MemberIDs: []int64{7, 8}},
			}}
			engine := &fakeEngine{errByPrimary: map[int64]error{1: tt.err}}

			report, err := newTestRunner(loader, groups, engine, &fakeReviews{}).Run(context.Background(), Options{AutoMerge: true})
			require.NoError(t, err, "group failures never abort the run")

			entry := report.Groups[0]
			assert.Equal(t, tt.wantOutcome, entry.Outcome)
			if tt.wantErrText {
				assert.NotEmpty(t, entry.Error)
			} else {
				assert.Empty(t, entry.Error)
			}

			assert.Equal(t, OutcomeMerged, report.Groups[1].Outcome, "later groups still run")
			assert.Equal(t, 1, report.Summary.Merged)
		})
	}
}

func TestRunner_ReviewUpsertFailureDoesNotFailRun(t *testing.T) {
	loader := &fakeLoader{contacts: map[int64]models.Contact{
		3: contactFixture(3, "a@x.org", 48*time.Hour),
		4: contactFixture(4, "b@x.org", 24*time.Hour),
	}}
	groups := &fakeGroups{groups: []models.DuplicateGroup{
		{Strategy: models.StrategyPerson, Key: "Jane\x1fDoe", MemberIDs: []int64{3, 4}},
	}}
	reviews := &fakeReviews{upsertErr: fmt.Errorf("connection reset")}

	report, err := newTestRunner(loader, groups, &fakeEngine{}, reviews).Run(context.Background(), Options{})
	require.NoError(t, err)

	entry := report.Groups[0]
	assert.Equal(t, OutcomeNeedsReview, entry.Outcome)
	assert.Contains(t, entry.Error, "connection reset")
}

func TestRunner_ExplicitGroup(t *testing.T) {
	engine := &fakeEngine{}
	reviews := &fakeReviews{}
	observer := &fakeObserver{}
	groups := &fakeGroups{}
	runner := newTestRunner(&fakeLoader{}, groups, engine, reviews, observer)

	opts := Options{ExplicitGroup: &ExplicitGroup{MemberIDs: []int64{7, 8}, PrimaryID: 7}}
	report, err := runner.Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Zero(t, groups.calls, "explicit groups bypass the scan")
	require.Len(t, engine.calls, 1)
	assert.Equal(t, []int64{7, 8}, engine.calls[0].memberIDs)
	assert.Equal(t, int64(7), engine.calls[0].primaryID)
	assert.False(t, engine.calls[0].dryRun)

	entry := report.Groups[0]
	assert.Equal(t, OutcomeMerged, entry.Outcome)
	assert.Equal(t, "explicit group", entry.Reason)
	assert.Empty(t, entry.Strategy)

	require.Len(t, reviews.resolveArgs, 1)
	assert.Equal(t, []int64{7, 8}, reviews.resolveArgs[0], "candidate matching uses the full member set")
	require.Len(t, observer.commits, 1)
	assert.Equal(t, []int64{8}, observer.commits[0].mergedIDs)
}

func TestRunner_ExplicitGroupDryRun(t *testing.T) {
	engine := &fakeEngine{}
	reviews := &fakeReviews{}
	runner := newTestRunner(&fakeLoader{}, &fakeGroups{}, engine, reviews)

	opts := Options{DryRun: true, ExplicitGroup: &ExplicitGroup{MemberIDs: []int64{7, 8}, PrimaryID: 7}}
	report, err := runner.Run(context.Background(), opts)
	require.NoError(t, err)

	require.Len(t, engine.calls, 1)
	assert.True(t, engine.calls[0].dryRun)
	assert.Equal(t, OutcomePlanned, report.Groups[0].Outcome)
	assert.Empty(t, reviews.resolveArgs)
}

func TestRunner_StrategySubsetReachesGrouper(t *testing.T) {
	groups := &fakeGroups{}
	runner := newTestRunner(&fakeLoader{}, groups, &fakeEngine{}, &fakeReviews{})

	_, err := runner.Run(context.Background(), Options{Strategies: []models.Strategy{models.StrategyOrgName}})
	require.NoError(t, err)
	assert.Equal(t, []models.Strategy{models.StrategyOrgName}, groups.gotStrategies)

	_, err = runner.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, models.AllStrategies, groups.gotStrategies, "empty subset means all strategies")
}

func TestRunner_InvalidOptionsRejected(t *testing.T) {
	runner := newTestRunner(&fakeLoader{}, &fakeGroups{}, &fakeEngine{}, &fakeReviews{})

	_, err := runner.Run(context.Background(), Options{Strategies: []models.Strategy{"sounds_like"}})
	require.Error(t, err)
	assert.True(t, faults.IsValidationError(err))
}

func TestRunner_GroupScanFailureAbortsRun(t *testing.T) {
	groups := &fakeGroups{err: fmt.Errorf("forced scan failure")}
	runner := newTestRunner(&fakeLoader{}, groups, &fakeEngine{}, &fakeReviews{})

	_, err := runner.Run(context.Background(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forced scan failure")
}

func TestRunner_CancellationReturnsPartialReport(t *testing.T) {
	groups := &fakeGroups{groups: []models.DuplicateGroup{
		{Strategy: models.StrategyEmail, Key: "jane@x.org", MemberIDs: []int64{1, 2}},
	}}
	runner := newTestRunner(&fakeLoader{}, groups, &fakeEngine{}, &fakeReviews{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := runner.Run(ctx, Options{})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report, "committed work stays reported on cancellation")
	assert.Zero(t, report.Summary.Groups)
}
