package reconcile

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/tansy/internal/database"
	"github.com/Ramsey-B/tansy/pkg/faults"
	"github.com/Ramsey-B/tansy/pkg/merging"
	"github.com/Ramsey-B/tansy/pkg/models"
	"github.com/Ramsey-B/tansy/pkg/tracing"
)

// ContactLoader loads member snapshots for classification.
type ContactLoader interface {
	GetByIDs(ctx context.Context, ids []int64) ([]models.Contact, error)
}

// GroupSource produces the candidate groups for a run.
type GroupSource interface {
	Groups(ctx context.Context, strategies []models.Strategy) ([]models.DuplicateGroup, error)
}

// GroupClassifier decides a group's disposition from its snapshot.
type GroupClassifier interface {
	Classify(ctx context.Context, group models.DuplicateGroup, members []models.Contact) models.Classification
}

// MergeExecutor plans or executes one group merge.
type MergeExecutor interface {
	Execute(ctx context.Context, memberIDs []int64, primaryID int64, dryRun bool) (*merging.Result, error)
}

// ReviewQueue persists ambiguous groups and closes them once their
// members merge.
type ReviewQueue interface {
	Upsert(ctx context.Context, candidate models.ReviewCandidate) (*models.ReviewCandidate, error)
	ResolveMatching(ctx context.Context, memberIDs []int64) (int, error)
}

// MergeObserver learns about committed merges after the transaction
// settles. Observers handle their own failures; they can never fail the
// run.
type MergeObserver interface {
	MergeCommitted(ctx context.Context, runID string, strategy models.Strategy, primaryID int64, mergedIDs []int64)
}

// Runner drives a deduplication run group by group. Merges stay
// sequential; cancellation is honored between groups, never inside one.
type Runner struct {
	logger     ectologger.Logger
	contacts   ContactLoader
	groups     GroupSource
	classifier GroupClassifier
	engine     MergeExecutor
	reviews    ReviewQueue
	observers  []MergeObserver
}

// NewRunner creates a runner over the given collaborators.
func NewRunner(
	logger ectologger.Logger,
	contacts ContactLoader,
	groups GroupSource,
	classifier GroupClassifier,
	engine MergeExecutor,
	reviews ReviewQueue,
	observers ...MergeObserver,
) *Runner {
	return &Runner{
		logger:     logger,
		contacts:   contacts,
		groups:     groups,
		classifier: classifier,
		engine:     engine,
		reviews:    reviews,
		observers:  observers,
	}
}

// Run executes one deduplication pass. With an explicit group the scan
// and classifier are bypassed and only that group is processed. A
// cancelled run returns the partial report alongside the context error;
// committed groups stay committed.
func (r *Runner) Run(ctx context.Context, opts Options) (*RunReport, error) {
	ctx, span := tracing.StartSpan(ctx, "reconcile.Runner.Run")
	defer span.End()

	if err := opts.Validate(); err != nil {
		return nil, err
	}

	report := NewRunReport(opts)

	if opts.ExplicitGroup != nil {
		r.resolveExplicit(ctx, opts, report)
		return report, nil
	}

	strategies := opts.Strategies
	if len(strategies) == 0 {
		strategies = models.AllStrategies
	}

	groups, err := r.groups.Groups(ctx, strategies)
	if err != nil {
		return nil, err
	}

	resolved := NewResolvedSet()
	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		r.processGroup(ctx, opts, group, resolved, report)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":    report.RunID,
		"groups":    report.Summary.Groups,
		"merged":    report.Summary.Merged,
		"ambiguous": report.Summary.Ambiguous,
		"failed":    report.Summary.Failed,
	}).Info("Deduplication run complete")

	return report, nil
}

func (r *Runner) processGroup(ctx context.Context, opts Options, group models.DuplicateGroup, resolved *ResolvedSet, report *RunReport) {
	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"strategy":  group.Strategy,
		"match_key": group.Key,
	})

	entry := GroupReport{
		Strategy:  group.Strategy,
		MatchKey:  group.Key,
		MemberIDs: group.MemberIDs,
	}

	memberIDs := resolved.Filter(group.MemberIDs)
	if len(memberIDs) < 2 {
		entry.Outcome = OutcomeAlreadyResolved
		report.addGroup(entry)
		return
	}
	entry.MemberIDs = memberIDs

	members, err := r.contacts.GetByIDs(ctx, memberIDs)
	if err != nil {
		log.WithError(err).Error("Failed to load group members")
		entry.Outcome = OutcomeFailed
		entry.Error = err.Error()
		report.addGroup(entry)
		return
	}
	if len(members) < 2 {
		entry.Outcome = OutcomeAlreadyResolved
		report.addGroup(entry)
		return
	}

	verdict := r.classifier.Classify(ctx, group, members)
	entry.Disposition = verdict.Disposition
	entry.PrimaryID = verdict.PrimaryID
	entry.Reason = verdict.Reason

	if verdict.Disposition == models.DispositionAmbiguous {
		entry.Outcome = OutcomeNeedsReview
		if !opts.DryRun {
			r.enqueueReview(ctx, group, memberIDs, verdict.Reason, report.RunID, &entry)
		}
		report.addGroup(entry)
		return
	}

	dryRun := opts.DryRun || !opts.AutoMerge
	result, err := r.engine.Execute(ctx, memberIDs, verdict.PrimaryID, dryRun)
	if err != nil {
		r.recordMergeError(log, err, &entry)
		report.addGroup(entry)
		return
	}

	entry.Plan = result.Plan
	switch {
	case result.AlreadyResolved:
		entry.Outcome = OutcomeAlreadyResolved
	case result.Applied:
		entry.Outcome = OutcomeMerged
		resolved.Add(result.Plan.DuplicateIDs...)
		r.closeReviews(ctx, result.Plan.DuplicateIDs)
		r.notifyObservers(ctx, report.RunID, group.Strategy, result.Plan.PrimaryID, result.Plan.DuplicateIDs)
	default:
		entry.Outcome = OutcomePlanned
	}
	report.addGroup(entry)
}

// resolveExplicit merges a caller-designated group. The operator already
// ruled on it, so the classifier is skipped and auto_merge does not
// apply.
func (r *Runner) resolveExplicit(ctx context.Context, opts Options, report *RunReport) {
	group := opts.ExplicitGroup
	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"primary_id":   group.PrimaryID,
		"member_count": len(group.MemberIDs),
	})

	entry := GroupReport{
		MemberIDs: group.MemberIDs,
		PrimaryID: group.PrimaryID,
		Reason:    "explicit group",
	}

	result, err := r.engine.Execute(ctx, group.MemberIDs, group.PrimaryID, opts.DryRun)
	if err != nil {
		r.recordMergeError(log, err, &entry)
		report.addGroup(entry)
		return
	}

	entry.Plan = result.Plan
	switch {
	case result.AlreadyResolved:
		entry.Outcome = OutcomeAlreadyResolved
	case result.Applied:
		entry.Outcome = OutcomeMerged
		// The originating review candidate holds the full member set, so
		// match on all of it, not just the removed duplicates.
		r.closeReviews(ctx, group.MemberIDs)
		r.notifyObservers(ctx, report.RunID, "", group.PrimaryID, result.Plan.DuplicateIDs)
	default:
		entry.Outcome = OutcomePlanned
	}
	report.addGroup(entry)
}

// recordMergeError maps the fault taxonomy onto a group outcome. Only
// store failures count as failures; a vanished member is a no-op and a
// rejected plan aborts just this group.
func (r *Runner) recordMergeError(log ectologger.Logger, err error, entry *GroupReport) {
	switch {
	case faults.IsNotFoundError(err):
		log.Info("Group members already resolved; nothing to merge")
		entry.Outcome = OutcomeAlreadyResolved
	case faults.IsValidationError(err):
		log.WithError(err).Warn("Merge plan rejected")
		entry.Outcome = OutcomeAborted
		entry.Error = err.Error()
	default:
		log.WithError(err).Error("Merge failed")
		entry.Outcome = OutcomeFailed
		entry.Error = err.Error()
	}
}

func (r *Runner) enqueueReview(ctx context.Context, group models.DuplicateGroup, memberIDs []int64, reason, runID string, entry *GroupReport) {
	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"strategy":  group.Strategy,
		"match_key": group.Key,
	})

	stored, err := r.reviews.Upsert(ctx, models.ReviewCandidate{
		Strategy:  group.Strategy,
		MatchKey:  group.Key,
		MemberIDs: database.JSONB[[]int64]{Data: memberIDs},
		Reason:    reason,
		RunID:     runID,
	})
	if err != nil {
		log.WithError(err).Error("Failed to enqueue review candidate")
		entry.Error = err.Error()
		return
	}
	if stored == nil {
		log.Info("Review candidate previously ruled on; not reopened")
	}
}

// closeReviews resolves pending review candidates holding any of the
// given members. Runs after the merge committed; a failure here cannot
// undo the merge, so it is logged and swallowed.
func (r *Runner) closeReviews(ctx context.Context, memberIDs []int64) {
	if n, err := r.reviews.ResolveMatching(ctx, memberIDs); err != nil {
		r.logger.WithContext(ctx).WithError(err).Warn("Failed to close review candidates for merged contacts")
	} else if n > 0 {
		r.logger.WithContext(ctx).WithFields(map[string]any{"candidates": n}).Info("Closed review candidates for merged contacts")
	}
}

func (r *Runner) notifyObservers(ctx context.Context, runID string, strategy models.Strategy, primaryID int64, mergedIDs []int64) {
	for _, observer := range r.observers {
		observer.MergeCommitted(ctx, runID, strategy, primaryID, mergedIDs)
	}
}
