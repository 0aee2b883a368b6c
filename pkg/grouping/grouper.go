// Package grouping builds duplicate-candidate groups: contacts that share
// one extracted match key, per strategy independently.
package grouping

import (
	"context"
	"sort"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/tansy/pkg/matchkey"
	"github.com/Ramsey-B/tansy/pkg/models"
	"github.com/Ramsey-B/tansy/pkg/tracing"
)

// ContactLister pages through the contact table in id order. A batch
// smaller than limit ends the scan.
type ContactLister interface {
	ListBatch(ctx context.Context, afterID int64, limit int) ([]models.Contact, error)
}

type Grouper struct {
	logger    ectologger.Logger
	contacts  ContactLister
	batchSize int
}

func NewGrouper(logger ectologger.Logger, contacts ContactLister, batchSize int) *Grouper {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Grouper{
		logger:    logger,
		contacts:  contacts,
		batchSize: batchSize,
	}
}

type memberRef struct {
	id        int64
	createdAt int64
}

// Groups streams the whole contact table and returns every group of two
// or more contacts sharing a key, members ordered oldest-created first.
// Group order is deterministic: strategy order, then key.
func (g *Grouper) Groups(ctx context.Context, strategies []models.Strategy) ([]models.DuplicateGroup, error) {
	ctx, span := tracing.StartSpan(ctx, "grouping.Grouper.Groups")
	defer span.End()

	buckets := make(map[models.Strategy]map[string][]memberRef)

	var afterID int64
	scanned := 0
	for {
		batch, err := g.contacts.ListBatch(ctx, afterID, g.batchSize)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}

		for i := range batch {
			c := &batch[i]
			for _, mk := range matchkey.Extract(c, strategies) {
				byKey, ok := buckets[mk.Strategy]
				if !ok {
					byKey = make(map[string][]memberRef)
					buckets[mk.Strategy] = byKey
				}
				byKey[mk.Key] = append(byKey[mk.Key], memberRef{
					id:        c.ID,
					createdAt: c.CreatedAt.UnixNano(),
				})
			}
			afterID = c.ID
		}

		scanned += len(batch)
		if len(batch) < g.batchSize {
			break
		}
	}

	groups := collectGroups(buckets)

	g.logger.WithContext(ctx).WithFields(map[string]any{
		"contacts_scanned": scanned,
		"groups":           len(groups),
	}).Debug("Candidate grouping complete")

	return groups, nil
}

func collectGroups(buckets map[models.Strategy]map[string][]memberRef) []models.DuplicateGroup {
	groups := []models.DuplicateGroup{}

	for _, strategy := range models.AllStrategies {
		byKey, ok := buckets[strategy]
		if !ok {
			continue
		}

		keys := make([]string, 0, len(byKey))
		for key, members := range byKey {
			if len(members) >= 2 {
				keys = append(keys, key)
			}
		}
		sort.Strings(keys)

		for _, key := range keys {
			members := byKey[key]
			sort.Slice(members, func(i, j int) bool {
				if members[i].createdAt != members[j].createdAt {
					return members[i].createdAt < members[j].createdAt
				}
				return members[i].id < members[j].id
			})

			ids := make([]int64, len(members))
			for i, m := range members {
				ids[i] = m.id
			}

			groups = append(groups, models.DuplicateGroup{
				Strategy:  strategy,
				Key:       key,
				MemberIDs: ids,
			})
		}
	}

	return groups
}
