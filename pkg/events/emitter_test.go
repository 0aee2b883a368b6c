package events

import (
	"context"
	"fmt"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/tansy/pkg/kafka"
	"github.com/Ramsey-B/tansy/pkg/models"
	"github.com/Ramsey-B/tansy/pkg/repair"
)

type fakePublisher struct {
	events []*kafka.ContactEvent
	err    error
}

func (f *fakePublisher) PublishContactEvent(_ context.Context, event *kafka.ContactEvent) error {
	f.events = append(f.events, event)
	return f.err
}

func newTestEmitter(publisher *fakePublisher) *Emitter {
	return NewEmitter(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}), publisher)
}

func TestEmitter_MergeCommitted(t *testing.T) {
	publisher := &fakePublisher{}
	emitter := newTestEmitter(publisher)

	emitter.MergeCommitted(context.Background(), "run-1", models.StrategyEmail, 7, []int64{8, 9})

	require.Len(t, publisher.events, 1)
	event := publisher.events[0]
	assert.Equal(t, EventContactMerged, event.EventType)
	assert.Equal(t, "run-1", event.RunID)
	assert.Equal(t, int64(7), event.ContactID)
	assert.Equal(t, models.StrategyEmail, event.Strategy)
	assert.Equal(t, []int64{8, 9}, event.MergedIDs)
}

func TestEmitter_PublishFailureIsSwallowed(t *testing.T) {
	publisher := &fakePublisher{err: fmt.Errorf("broker unreachable")}
	emitter := newTestEmitter(publisher)

	emitter.MergeCommitted(context.Background(), "run-1", models.StrategyEmail, 7, []int64{8})
	emitter.MergeCommitted(context.Background(), "run-1", models.StrategyEmail, 10, []int64{11})

	assert.Len(t, publisher.events, 2, "a failed emit must not stop later ones")
}

func TestEmitter_RepairCompleted(t *testing.T) {
	tests := []struct {
		name   string
		report *repair.Report
		want   int
	}{
		{
			name:   "applied repair emits",
			report: &repair.Report{Repaired: 5},
			want:   1,
		},
		{
			name:   "dry run stays silent",
			report: &repair.Report{DryRun: true, Repaired: 5},
			want:   0,
		},
		{
			name:   "clean pass stays silent",
			report: &repair.Report{},
			want:   0,
		},
		{
			name: "nil report stays silent",
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			publisher := &fakePublisher{}
			emitter := newTestEmitter(publisher)

			emitter.RepairCompleted(context.Background(), "run-2", tt.report)

			require.Len(t, publisher.events, tt.want)
			if tt.want > 0 {
				event := publisher.events[0]
				assert.Equal(t, EventContactRepaired, event.EventType)
				assert.Equal(t, "run-2", event.RunID)
				assert.Equal(t, 5, event.Repaired)
				assert.Zero(t, event.ContactID)
			}
		})
	}
}
