package safety

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSignal_TriggeredFollowsScore(t *testing.T) {
	tests := []struct {
		score     int
		wantScore int
		triggered bool
	}{
		{score: 0, wantScore: 0, triggered: false},
		{score: 6, wantScore: 6, triggered: true},
		{score: -3, wantScore: 0, triggered: false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.score), func(t *testing.T) {
			s := NewSignal("x", tt.score, "reason")
			assert.Equal(t, tt.wantScore, s.Score)
			assert.Equal(t, tt.triggered, s.Triggered)
		})
	}
}

func TestNewSignal_CopiesEvidence(t *testing.T) {
	ev := []string{"a", "b"}
	s := NewSignal("x", 1, "r", ev...)
	ev[0] = "changed"
	assert.Equal(t, []string{"a", "b"}, s.Evidence)
	assert.Nil(t, NewSignal("x", 0, "r").Evidence)
}

func TestAggregate(t *testing.T) {
	signals := []Signal{
		NewSignal("a", 18, "mismatch"),
		NewSignal("b", 0, "quiet"),
		NewSignal("c", 8, "urgent"),
		NewSignal("d", 4, "links"),
		NewSignal("e", 12, "attachment"),
		NewSignal("f", 6, "caps"),
		NewSignal("g", 2, "extra"),
	}

	sum := Aggregate(signals)

	assert.Equal(t, 50, sum.RuleScore)
	assert.Equal(t, 6, sum.Hits)
	assert.Equal(t, []string{"mismatch", "urgent", "links", "attachment", "caps"}, sum.Indicators)
}

func TestAggregate_Empty(t *testing.T) {
	sum := Aggregate(nil)
	assert.Zero(t, sum.RuleScore)
	assert.NotNil(t, sum.Indicators)
	assert.Empty(t, sum.Indicators)
}
