package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAliasNormalizer_DefaultRules(t *testing.T) {
	n := NewAliasNormalizer(DefaultAliasRules()...)

	tests := []struct {
		in   string
		want string
	}{
		{"BROKER_LONDON1", "LONDON1"},
		{"BROKER_LONDON21", "LONDON21"},
		{"BROKER_NY_A", "NY_A"},
		{"BROKER_PARIS", "BROKER_PARIS"},
		{"NY_B", "NY_B"},
		{"LONDON", "LONDON"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, n.Normalize(tt.in))
		})
	}
}

func TestAliasNormalizer_Nil(t *testing.T) {
	var n *AliasNormalizer
	assert.Equal(t, "BROKER_NY_A", n.Normalize("BROKER_NY_A"))
}

func TestAliasNormalizer_SegmentOutOfRange(t *testing.T) {
	n := NewAliasNormalizer(AliasRule{Contains: "X", Segment: 3})
	assert.Equal(t, "A_X", n.Normalize("A_X"))
}
