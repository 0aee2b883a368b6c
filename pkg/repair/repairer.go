// Package repair restores structural invariants legacy imports broke:
// contacts missing their detail row and detail rows that lost their key.
// Each pass is idempotent and every store touch goes through one port.
package repair

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/tansy/pkg/faults"
	"github.com/Ramsey-B/tansy/pkg/models"
	"github.com/Ramsey-B/tansy/pkg/tracing"
)

const (
	missingBatchSize = 500
	defectListLimit  = 100
)

// RepositoryPort is the single store surface every repair pass uses.
type RepositoryPort interface {
	FindMissingDetail(ctx context.Context, kind models.Kind, afterID int64, limit int) ([]int64, error)
	CreateMissingDetail(ctx context.Context, kind models.Kind, ownerID int64) error
	AssignNullKeys(ctx context.Context, kind models.Kind) (int, error)
	CountNullKeys(ctx context.Context, kind models.Kind) (int, error)
	CountDefects(ctx context.Context, kind models.Kind) (int, error)
	ListOrphanKeys(ctx context.Context, kind models.Kind, limit int) ([]int64, error)
}

// KindReport is the outcome of one kind's passes. Under dry run the
// missing ids and null-key count are what a real pass would have fixed;
// the created and assigned counters stay zero.
type KindReport struct {
	Kind             models.Kind              `json:"kind"`
	MissingDetailIDs []int64                  `json:"missing_detail_ids,omitempty"`
	DetailsCreated   int                      `json:"details_created"`
	NullKeys         int                      `json:"null_keys"`
	KeysAssigned     int                      `json:"keys_assigned"`
	Defects          []faults.IntegrityDefect `json:"defects,omitempty"`
	DefectCount      int                      `json:"defect_count"`
}

// Report aggregates the passes across kinds.
type Report struct {
	DryRun      bool         `json:"dry_run"`
	Kinds       []KindReport `json:"kinds"`
	Repaired    int          `json:"repaired"`
	DefectCount int          `json:"defect_count"`
}

// Repairer runs the integrity passes.
type Repairer struct {
	logger ectologger.Logger
	port   RepositoryPort
}

// NewRepairer creates a repairer over the given store port.
func NewRepairer(logger ectologger.Logger, port RepositoryPort) *Repairer {
	return &Repairer{
		logger: logger,
		port:   port,
	}
}

// Run executes the missing-detail pass, the null-key pass and the defect
// census for every known kind. Under dryRun nothing is written.
func (r *Repairer) Run(ctx context.Context, dryRun bool) (*Report, error) {
	ctx, span := tracing.StartSpan(ctx, "repair.Repairer.Run")
	defer span.End()

	report := &Report{DryRun: dryRun}
	for _, kind := range []models.Kind{models.KindPerson, models.KindOrganization} {
		kr, err := r.repairKind(ctx, kind, dryRun)
		if err != nil {
			return nil, err
		}
		report.Kinds = append(report.Kinds, *kr)
		report.Repaired += kr.DetailsCreated + kr.KeysAssigned
		report.DefectCount += kr.DefectCount
	}
	return report, nil
}

func (r *Repairer) repairKind(ctx context.Context, kind models.Kind, dryRun bool) (*KindReport, error) {
	log := r.logger.WithContext(ctx).WithFields(map[string]any{"kind": kind, "dry_run": dryRun})
	kr := &KindReport{Kind: kind}

	var afterID int64
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ids, err := r.port.FindMissingDetail(ctx, kind, afterID, missingBatchSize)
		if err != nil {
			return nil, faults.NewStoreError("details.find_missing", err)
		}
		if len(ids) == 0 {
			break
		}
		for _, id := range ids {
			if !dryRun {
				if err := r.port.CreateMissingDetail(ctx, kind, id); err != nil {
					return nil, faults.NewStoreError("details.create_missing", err)
				}
				kr.DetailsCreated++
			}
			kr.MissingDetailIDs = append(kr.MissingDetailIDs, id)
		}
		afterID = ids[len(ids)-1]
	}
	if len(kr.MissingDetailIDs) > 0 {
		log.WithFields(map[string]any{"missing_details": len(kr.MissingDetailIDs)}).Info("Missing detail pass complete")
	}

	if dryRun {
		n, err := r.port.CountNullKeys(ctx, kind)
		if err != nil {
			return nil, faults.NewStoreError("details.count_null_keys", err)
		}
		kr.NullKeys = n
	} else {
		n, err := r.port.AssignNullKeys(ctx, kind)
		if err != nil {
			return nil, faults.NewStoreError("details.assign_null_keys", err)
		}
		kr.NullKeys = n
		kr.KeysAssigned = n
		if n > 0 {
			log.WithFields(map[string]any{"keys_assigned": n}).Info("Null key pass complete")
		}
	}

	count, err := r.port.CountDefects(ctx, kind)
	if err != nil {
		return nil, faults.NewStoreError("details.count_defects", err)
	}
	kr.DefectCount = count
	if count > 0 {
		keys, err := r.port.ListOrphanKeys(ctx, kind, defectListLimit)
		if err != nil {
			return nil, faults.NewStoreError("details.list_orphan_keys", err)
		}
		for _, key := range keys {
			kr.Defects = append(kr.Defects, faults.IntegrityDefect{
				Table:    detailTable(kind),
				KeyValue: key,
				Message:  "detail row references no live contact",
			})
		}
		log.WithFields(map[string]any{"defects": count}).Warn("Detail rows reference contacts that no longer exist")
	}

	return kr, nil
}

func detailTable(kind models.Kind) string {
	if kind == models.KindOrganization {
		return "org_details"
	}
	return "person_details"
}
