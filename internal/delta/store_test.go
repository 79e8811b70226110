package delta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/deltasync/internal/domain"
)

func event(id string, ts int64) domain.DeltaEvent {
	return domain.DeltaEvent{ID: id, PairName: "A-B", OfferBroker: "A", BidBroker: "B", TriggerFeedTS: ts}
}

func TestStore_InsertionOrder(t *testing.T) {
	s := NewStore(event("2", 20), event("1", 10))
	s.Append(event("3", 5))

	require.Equal(t, 3, s.Len())
	ids := []string{}
	for _, ev := range s.All() {
		ids = append(ids, ev.ID)
	}
	assert.Equal(t, []string{"2", "1", "3"}, ids)
}

func TestStore_AppendReplacesSameID(t *testing.T) {
	s := NewStore(event("1", 10))
	updated := event("1", 10)
	updated.Value = -0.5
	s.Append(updated)

	require.Equal(t, 1, s.Len())
	got, ok := s.Get("1")
	require.True(t, ok)
	assert.Equal(t, -0.5, got.Value)
}

func TestStore_AllReturnsCopy(t *testing.T) {
	s := NewStore(event("1", 10))
	all := s.All()
	all[0].PairName = "X-Y"

	got, _ := s.Get("1")
	assert.Equal(t, "A-B", got.PairName)
}

func TestStore_AtTimestamp(t *testing.T) {
	s := NewStore(event("1", 10), event("2", 20), event("3", 10))

	got := s.AtTimestamp(10)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "3", got[1].ID)
	assert.Empty(t, s.AtTimestamp(99))
}

func TestStore_BetweenIsOpenAndSorted(t *testing.T) {
	s := NewStore(event("c", 30), event("a", 10), event("b", 20), event("d", 40))

	got := s.Between(10, 40)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "c", got[1].ID)
}

func TestStore_ApplyMatches(t *testing.T) {
	s := NewStore(event("1", 10), event("2", 20))

	s.ApplyPositionMatches(map[string]domain.MatchRef{"1": "pos-9", "2": domain.Unassigned, "missing": "pos-1"})
	s.ApplyFailedMatches(map[string]domain.MatchRef{"2": "fail-3"})

	one, _ := s.Get("1")
	two, _ := s.Get("2")
	assert.Equal(t, domain.MatchRef("pos-9"), one.PositionID)
	assert.Equal(t, domain.NotExamined, one.FailedPositionID)
	assert.Equal(t, domain.Unassigned, two.PositionID)
	assert.Equal(t, domain.MatchRef("fail-3"), two.FailedPositionID)
	assert.Equal(t, 2, s.Len())
}
