package delta

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/deltasync/internal/domain"
)

var testGroups = []Group{
	{Name: "NY", Brokers: []string{"NY_A", "NY_B"}},
	{Name: "LONDON", Brokers: []string{"LONDON1", "LONDON2"}},
}

func crossingQuotes() []domain.Quote {
	return []domain.Quote{
		offer("LONDON1", 1.10000, 1000, 995),
		offer("NY_A", 1.20000, 1001, 996),
		bid("LONDON2", 1.10003, 1002, 997),
		bid("NY_B", 1.20002, 1003, 998),
		bid("PARIS", 1.5, 1004, 999),
	}
}

func TestSplit(t *testing.T) {
	p := Split(testGroups, crossingQuotes())

	assert.Len(t, p.ByGroup["NY"], 2)
	assert.Len(t, p.ByGroup["LONDON"], 2)
	assert.Equal(t, map[string]int{"PARIS": 1}, p.Unknown)
	assert.Equal(t, []string{"PARIS"}, p.UnknownBrokers())
}

func TestDetectGroups_GroupOrder(t *testing.T) {
	events, err := DetectGroups(context.Background(), testGroups, crossingQuotes(), DefaultParams(), false)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "NY", events[0].Group)
	assert.Equal(t, "NY_A-NY_B", events[0].PairName)
	assert.Equal(t, "LONDON", events[1].Group)
	assert.Equal(t, "LONDON1-LONDON2", events[1].PairName)
}

func TestDetectGroups_StrictRejectsUnknown(t *testing.T) {
	_, err := DetectGroups(context.Background(), testGroups, crossingQuotes(), DefaultParams(), true)
	require.ErrorIs(t, err, domain.ErrUnknownBroker)
}

func TestDetectGroups_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := DetectGroups(ctx, testGroups, crossingQuotes(), DefaultParams(), false)
	require.ErrorIs(t, err, context.Canceled)
}
