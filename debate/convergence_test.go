package debate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flowmesh/swarmcore/core"
)

func TestCheckConvergence_MaxRoundsForcesConvergence(t *testing.T) {
	state := &core.DebateState{Round: 5, MaxRounds: 5, Votes: map[string]string{}, Scores: map[string]float64{}}
	assert.True(t, checkConvergence(state, 0.8, 0.3))
}

func TestCheckConvergence_SupermajorityVoteConverges(t *testing.T) {
	state := &core.DebateState{
		Round: 1, MaxRounds: 5,
		Votes:  map[string]string{"a1": "p1", "a2": "p1", "a3": "p1", "a4": "p2"},
		Scores: map[string]float64{},
	}
	assert.True(t, checkConvergence(state, 0.75, 0.3))
}

func TestCheckConvergence_ScoreMarginConverges(t *testing.T) {
	state := &core.DebateState{
		Round: 1, MaxRounds: 5,
		Votes:  map[string]string{},
		Scores: map[string]float64{"p1": 0.9, "p2": 0.5},
	}
	assert.True(t, checkConvergence(state, 0.8, 0.3))
}

func TestCheckConvergence_NoConditionMetContinues(t *testing.T) {
	state := &core.DebateState{
		Round: 1, MaxRounds: 5,
		Votes:  map[string]string{"a1": "p1", "a2": "p2"},
		Scores: map[string]float64{"p1": 0.55, "p2": 0.5},
	}
	assert.False(t, checkConvergence(state, 0.8, 0.3))
}

func TestTopTwoScores(t *testing.T) {
	top, second := topTwoScores(map[string]float64{"a": 0.3, "b": 0.9, "c": 0.7})
	assert.Equal(t, 0.9, top)
	assert.Equal(t, 0.7, second)
}
