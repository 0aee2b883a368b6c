// Package events forwards settled run outcomes onto the message bus.
// Emission is best effort: the store already committed, so a broker
// outage degrades to warnings and never fails a run.
package events

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/tansy/pkg/kafka"
	"github.com/Ramsey-B/tansy/pkg/models"
	"github.com/Ramsey-B/tansy/pkg/repair"
)

const (
	EventContactMerged   = "contact.merged"
	EventContactRepaired = "contact.repaired"
)

// Publisher is the transport the emitter writes through.
type Publisher interface {
	PublishContactEvent(ctx context.Context, event *kafka.ContactEvent) error
}

// Emitter turns committed merges and applied repairs into bus events.
type Emitter struct {
	logger    ectologger.Logger
	publisher Publisher
}

// NewEmitter creates an emitter over the given transport.
func NewEmitter(logger ectologger.Logger, publisher Publisher) *Emitter {
	return &Emitter{logger: logger, publisher: publisher}
}

// MergeCommitted emits a contact.merged event for one settled group.
func (e *Emitter) MergeCommitted(ctx context.Context, runID string, strategy models.Strategy, primaryID int64, mergedIDs []int64) {
	event := &kafka.ContactEvent{
		EventType: EventContactMerged,
		RunID:     runID,
		ContactID: primaryID,
		Strategy:  strategy,
		MergedIDs: mergedIDs,
	}
	if err := e.publisher.PublishContactEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"run_id":     runID,
			"primary_id": primaryID,
		}).Warn("Failed to emit merge event")
	}
}

// RepairCompleted emits a contact.repaired event once an applied repair
// pass finishes. Dry runs and passes that repaired nothing stay silent.
func (e *Emitter) RepairCompleted(ctx context.Context, runID string, report *repair.Report) {
	if report == nil || report.DryRun || report.Repaired == 0 {
		return
	}
	event := &kafka.ContactEvent{
		EventType: EventContactRepaired,
		RunID:     runID,
		Repaired:  report.Repaired,
	}
	if err := e.publisher.PublishContactEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"run_id": runID,
		}).Warn("Failed to emit repair event")
	}
}
