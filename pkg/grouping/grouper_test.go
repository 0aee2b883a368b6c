package grouping

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/tansy/pkg/models"
)

type memLister struct {
	contacts []models.Contact
	calls    int
}

func (m *memLister) ListBatch(ctx context.Context, afterID int64, limit int) ([]models.Contact, error) {
	m.calls++
	out := []models.Contact{}
	for _, c := range m.contacts {
		if c.ID > afterID {
			out = append(out, c)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func at(day int) time.Time {
	return time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC)
}

func TestGroups_EmailGrouping(t *testing.T) {
	lister := &memLister{contacts: []models.Contact{
		{ID: 1, Kind: models.KindPerson, Email: "A@x.org", CreatedAt: at(2)},
		{ID: 2, Kind: models.KindPerson, Email: "a@x.org", CreatedAt: at(1)},
		{ID: 3, Kind: models.KindPerson, Email: "b@x.org", CreatedAt: at(3)},
	}}

	g := NewGrouper(noopLogger(), lister, 100)
	groups, err := g.Groups(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, groups, 1)
	assert.Equal(t, models.StrategyEmail, groups[0].Strategy)
	assert.Equal(t, "a@x.org", groups[0].Key)
	assert.Equal(t, []int64{2, 1}, groups[0].MemberIDs, "oldest created first")
}

func TestGroups_SingletonsDropped(t *testing.T) {
	lister := &memLister{contacts: []models.Contact{
		{ID: 1, Kind: models.KindPerson, Email: "a@x.org", CreatedAt: at(1)},
		{ID: 2, Kind: models.KindPerson, Email: "b@x.org", CreatedAt: at(2)},
	}}

	g := NewGrouper(noopLogger(), lister, 100)
	groups, err := g.Groups(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestGroups_StrategiesIndependent(t *testing.T) {
	// 1 and 2 share an email; 2 and 3 share a person name. Contact 2 sits
	// in both groups.
	lister := &memLister{contacts: []models.Contact{
		{ID: 1, Kind: models.KindPerson, FirstName: "Ann", LastName: "Lee", Email: "ann@x.org", CreatedAt: at(1)},
		{ID: 2, Kind: models.KindPerson, FirstName: "Jane", LastName: "Doe", Email: "ann@x.org", CreatedAt: at(2)},
		{ID: 3, Kind: models.KindPerson, FirstName: "Jane", LastName: "Doe", CreatedAt: at(3)},
	}}

	g := NewGrouper(noopLogger(), lister, 100)
	groups, err := g.Groups(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, groups, 2)
	assert.Equal(t, models.StrategyEmail, groups[0].Strategy)
	assert.Equal(t, []int64{1, 2}, groups[0].MemberIDs)
	assert.Equal(t, models.StrategyPerson, groups[1].Strategy)
	assert.Equal(t, []int64{2, 3}, groups[1].MemberIDs)
}

func TestGroups_StrategyRestriction(t *testing.T) {
	lister := &memLister{contacts: []models.Contact{
		{ID: 1, Kind: models.KindPerson, FirstName: "Jane", LastName: "Doe", Email: "x@x.org", CreatedAt: at(1)},
		{ID: 2, Kind: models.KindPerson, FirstName: "Jane", LastName: "Doe", Email: "x@x.org", CreatedAt: at(2)},
	}}

	g := NewGrouper(noopLogger(), lister, 100)
	groups, err := g.Groups(context.Background(), []models.Strategy{models.StrategyPerson})
	require.NoError(t, err)

	require.Len(t, groups, 1)
	assert.Equal(t, models.StrategyPerson, groups[0].Strategy)
}

func TestGroups_PagesThroughBatches(t *testing.T) {
	contacts := make([]models.Contact, 0, 7)
	for i := 1; i <= 7; i++ {
		contacts = append(contacts, models.Contact{
			ID: int64(i), Kind: models.KindPerson, Email: "same@x.org", CreatedAt: at(i),
		})
	}
	lister := &memLister{contacts: contacts}

	g := NewGrouper(noopLogger(), lister, 3)
	groups, err := g.Groups(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, groups, 1)
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7}, groups[0].MemberIDs)
	assert.GreaterOrEqual(t, lister.calls, 3, "scan pages rather than loading everything at once")
}

func TestGroups_DeterministicOrder(t *testing.T) {
	lister := &memLister{contacts: []models.Contact{
		{ID: 1, Kind: models.KindOrganization, OrgName: "Zion Chapel", CreatedAt: at(1)},
		{ID: 2, Kind: models.KindOrganization, OrgName: "Zion Chapel", CreatedAt: at(2)},
		{ID: 3, Kind: models.KindOrganization, OrgName: "Grace Church", CreatedAt: at(3)},
		{ID: 4, Kind: models.KindOrganization, OrgName: "Grace Church", CreatedAt: at(4)},
	}}

	g := NewGrouper(noopLogger(), lister, 100)

	first, err := g.Groups(context.Background(), nil)
	require.NoError(t, err)
	second, err := g.Groups(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	require.Len(t, first, 2)
	assert.Equal(t, "Grace Church", first[0].Key, "keys sorted within a strategy")
}
