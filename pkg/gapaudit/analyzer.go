package gapaudit

import (
	"context"
	"fmt"
	"sort"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/tansy/pkg/models"
	"github.com/Ramsey-B/tansy/pkg/normalizers"
	"github.com/Ramsey-B/tansy/pkg/tracing"
)

const targetBatchSize = 500

// ContactSource streams the target store in ascending id order.
type ContactSource interface {
	ListBatch(ctx context.Context, afterID int64, limit int) ([]models.Contact, error)
}

// DetailSource resolves a target's kind-specific attributes.
type DetailSource interface {
	GetByOwner(ctx context.Context, kind models.Kind, ownerID int64) (models.Detail, error)
}

// Analyzer joins source records against the contact store and flags
// fields whose value survived in the source but is blank on the target.
type Analyzer struct {
	logger    ectologger.Logger
	contacts  ContactSource
	details   DetailSource
	table     *FieldTable
	evaluator *Evaluator
}

// NewAnalyzer creates an analyzer over the given stores and audit table.
func NewAnalyzer(logger ectologger.Logger, contacts ContactSource, details DetailSource, table *FieldTable) *Analyzer {
	return &Analyzer{
		logger:    logger,
		contacts:  contacts,
		details:   details,
		table:     table,
		evaluator: NewEvaluator(),
	}
}

// target carries a contact with its join values precomputed.
type target struct {
	contact models.Contact
	email   string
	name    string
}

// Run audits the source records against the target store. A source
// record joins to the first target, in ascending id order, whose email
// matches exactly (case-folded) or whose name contains or is contained
// by the source name, case-insensitively. For each matched pair a gap is
// flagged on every table row where the source value is non-blank and the
// target value is blank.
func (a *Analyzer) Run(ctx context.Context, records []map[string]any) (*Report, error) {
	ctx, span := tracing.StartSpan(ctx, "gapaudit.Analyzer.Run")
	defer span.End()

	targets, err := a.loadTargets(ctx)
	if err != nil {
		return nil, err
	}

	needsDetail := a.tableNeedsDetail()
	detailCache := make(map[int64]models.Detail)
	fetched := make(map[int64]bool)

	report := &Report{Pairs: []Pair{}}
	for i, record := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		srcEmail, srcName, err := a.joinValues(i, record)
		if err != nil {
			return nil, err
		}

		matched, by := matchTarget(targets, srcEmail, srcName)
		if matched == nil {
			continue
		}

		var detail models.Detail
		if needsDetail {
			detail, err = a.detailFor(ctx, &matched.contact, detailCache, fetched)
			if err != nil {
				return nil, err
			}
		}

		pair := Pair{TargetID: matched.contact.ID, SourceIndex: i, MatchedBy: by}
		for _, row := range a.table.Fields {
			sourceVal, err := a.evaluator.EvaluateString(row.SourceField, record)
			if err != nil {
				return nil, fmt.Errorf("source record %d: %w", i, err)
			}
			if normalizers.IsBlank(sourceVal) {
				continue
			}
			if !normalizers.IsBlank(targetValue(&matched.contact, detail, row.TargetField)) {
				continue
			}
			pair.GappedFields = append(pair.GappedFields, row.DisplayName)
			if row.Importance == ImportanceHigh {
				pair.HighGaps++
			}
		}

		report.Pairs = append(report.Pairs, pair)
		report.Summary.Matched++
		if len(pair.GappedFields) > 0 {
			report.Summary.WithGaps++
		}
		report.Summary.HighPriorityGaps += pair.HighGaps
	}

	sort.Slice(report.Pairs, func(i, j int) bool {
		if report.Pairs[i].TargetID != report.Pairs[j].TargetID {
			return report.Pairs[i].TargetID < report.Pairs[j].TargetID
		}
		return report.Pairs[i].SourceIndex < report.Pairs[j].SourceIndex
	})

	a.logger.WithContext(ctx).WithFields(map[string]any{
		"sources":   len(records),
		"targets":   len(targets),
		"matched":   report.Summary.Matched,
		"with_gaps": report.Summary.WithGaps,
	}).Info("Gap audit complete")

	return report, nil
}

func (a *Analyzer) loadTargets(ctx context.Context) ([]target, error) {
	var out []target
	var afterID int64
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch, err := a.contacts.ListBatch(ctx, afterID, targetBatchSize)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		for _, c := range batch {
			out = append(out, target{
				contact: c,
				email:   normalizers.FoldEmail(c.Email),
				name:    c.DisplayName(),
			})
		}
		afterID = batch[len(batch)-1].ID
	}
	return out, nil
}

func (a *Analyzer) joinValues(index int, record map[string]any) (string, string, error) {
	var email, name string
	if a.table.Join.Email != "" {
		v, err := a.evaluator.EvaluateString(a.table.Join.Email, record)
		if err != nil {
			return "", "", fmt.Errorf("source record %d: %w", index, err)
		}
		email = normalizers.FoldEmail(v)
	}
	if a.table.Join.Name != "" {
		v, err := a.evaluator.EvaluateString(a.table.Join.Name, record)
		if err != nil {
			return "", "", fmt.Errorf("source record %d: %w", index, err)
		}
		name = v
	}
	return email, name, nil
}

// matchTarget returns the first target matching either join condition.
// Targets arrive in ascending id order, which fixes the winner.
func matchTarget(targets []target, srcEmail, srcName string) (*target, string) {
	for i := range targets {
		t := &targets[i]
		if srcEmail != "" && srcEmail == t.email {
			return t, "email"
		}
		if normalizers.ContainsFold(srcName, t.name) {
			return t, "name"
		}
	}
	return nil, ""
}

func (a *Analyzer) detailFor(ctx context.Context, c *models.Contact, cache map[int64]models.Detail, fetched map[int64]bool) (models.Detail, error) {
	if fetched[c.ID] {
		return cache[c.ID], nil
	}
	detail, err := a.details.GetByOwner(ctx, c.Kind, c.ID)
	if err != nil {
		return nil, err
	}
	fetched[c.ID] = true
	cache[c.ID] = detail
	return detail, nil
}

func (a *Analyzer) tableNeedsDetail() bool {
	contactField := make(map[string]bool, len(models.ContactFields))
	for _, name := range models.ContactFields {
		contactField[name] = true
	}
	for _, row := range a.table.Fields {
		if !contactField[row.TargetField] {
			return true
		}
	}
	return false
}

// targetValue resolves a target attribute by name, contact fields first.
// A field the target's kind cannot hold reads as blank.
func targetValue(c *models.Contact, detail models.Detail, name string) string {
	if v, ok := c.Field(name); ok {
		return v
	}
	if detail != nil {
		if v, ok := detail.Field(name); ok {
			return v
		}
	}
	return ""
}
