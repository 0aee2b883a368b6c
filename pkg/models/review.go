package models

import (
	"time"

	"github.com/Ramsey-B/tansy/internal/database"
)

type ReviewStatus string

const (
	ReviewStatusPending   ReviewStatus = "pending"
	ReviewStatusResolved  ReviewStatus = "resolved"
	ReviewStatusDismissed ReviewStatus = "dismissed"
)

// ReviewCandidate is a persisted ambiguous group awaiting a human-chosen
// primary. One row per (strategy, match key); re-detection refreshes the
// pending row instead of duplicating it.
type ReviewCandidate struct {
	ID         string                  `json:"id" db:"id"`
	Strategy   Strategy                `json:"strategy" db:"strategy"`
	MatchKey   string                  `json:"match_key" db:"match_key"`
	MemberIDs  database.JSONB[[]int64] `json:"member_ids" db:"member_ids"`
	Reason     string                  `json:"reason" db:"reason"`
	Status     ReviewStatus            `json:"status" db:"status"`
	RunID      string                  `json:"run_id" db:"run_id"`
	CreatedAt  time.Time               `json:"created_at" db:"created_at"`
	ResolvedAt *time.Time              `json:"resolved_at,omitempty" db:"resolved_at"`
}
