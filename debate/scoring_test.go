package debate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flowmesh/swarmcore/core"
)

func TestWeightedScore_ClipsToUnitRange(t *testing.T) {
	w := Weights{Votes: 1, Critiques: 1, Confidence: 1, Evidence: 1}

	score := weightedScore(w, 3, 10.0, 1.0, 10, 3)
	assert.Equal(t, 1.0, score)

	zero := weightedScore(w, 0, 0, 0, 0, 3)
	assert.Equal(t, 0.0, zero)
}

func TestWeightedScore_EvidenceFactorCapsAtFive(t *testing.T) {
	w := Weights{Evidence: 1}

	atCap := weightedScore(w, 0, 0, 0, 5, 3)
	overCap := weightedScore(w, 0, 0, 0, 50, 3)
	assert.Equal(t, atCap, overCap)
}

func TestScoreRound_FavorsVotesCritiquesAndConfidence(t *testing.T) {
	state := &core.DebateState{
		Round: 1,
		Proposals: []*core.Proposal{
			{Round: 1, ProposalID: "a", Confidence: 0.9, Evidence: []string{"e1", "e2"}},
			{Round: 1, ProposalID: "b", Confidence: 0.2},
		},
		Critiques: []*core.Critique{
			{Round: 1, ProposalID: "a", Score: 9},
			{Round: 1, ProposalID: "b", Score: 2},
		},
		Votes:  map[string]string{"agent1": "a", "agent2": "a", "agent3": "b"},
		Scores: make(map[string]float64),
	}

	scoreRound(state, defaultWeights, 3)

	assert.Greater(t, state.Scores["a"], state.Scores["b"])
	assert.Equal(t, "a", argmaxScore(state))
}

func TestArgmaxScore_NoScoresReturnsEmpty(t *testing.T) {
	state := &core.DebateState{Proposals: nil, Scores: map[string]float64{}}
	assert.Equal(t, "", argmaxScore(state))
}
