package debate

import "github.com/flowmesh/swarmcore/core"

// Weights are the four multipliers in the weighted score formula (spec §4.7):
// score(p) = Votes*votes/N + Critiques*avg_critique/10 + Confidence*confidence(p) +
// Evidence*min(|evidence(p)|/5, 1).
type Weights struct {
	Votes      float64
	Critiques  float64
	Confidence float64
	Evidence   float64
}

// defaultWeights are the spec's documented defaults (0.35, 0.35, 0.15, 0.15).
var defaultWeights = Weights{Votes: 0.35, Critiques: 0.35, Confidence: 0.15, Evidence: 0.15}

// countVotes tallies votes cast, keyed by the proposal id each vote targets.
func countVotes(votes map[string]string) map[string]int {
	counts := make(map[string]int, len(votes))
	for _, proposalID := range votes {
		counts[proposalID]++
	}
	return counts
}

// weightedScore computes one proposal's round score, clipped to [0, 1] (spec §4.7).
func weightedScore(w Weights, voteCount int, avgCritique, confidence float64, evidenceCount, totalAgents int) float64 {
	if totalAgents == 0 {
		totalAgents = 1
	}
	evidenceFactor := float64(evidenceCount) / 5.0
	if evidenceFactor > 1.0 {
		evidenceFactor = 1.0
	}

	score := w.Votes*(float64(voteCount)/float64(totalAgents)) +
		w.Critiques*(avgCritique/10.0) +
		w.Confidence*confidence +
		w.Evidence*evidenceFactor

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// scoreRound computes every current-round proposal's weighted score and writes it into
// state.Scores (spec §4.7 step 5).
func scoreRound(state *core.DebateState, weights Weights, totalAgents int) {
	voteCounts := countVotes(state.Votes)

	for _, p := range state.Proposals {
		if p.Round != state.Round {
			continue
		}

		var critiqueSum float64
		var critiqueN int
		for _, c := range state.Critiques {
			if c.Round == state.Round && c.ProposalID == p.ProposalID {
				critiqueSum += c.Score
				critiqueN++
			}
		}
		avgCritique := 5.0
		if critiqueN > 0 {
			avgCritique = critiqueSum / float64(critiqueN)
		}

		state.Scores[p.ProposalID] = weightedScore(
			weights, voteCounts[p.ProposalID], avgCritique, p.Confidence, len(p.Evidence), totalAgents,
		)
	}
}

// argmaxScore returns the proposal id with the highest score, breaking ties by the
// first-seen order of state.Proposals for determinism.
func argmaxScore(state *core.DebateState) string {
	var winner string
	best := -1.0
	seen := make(map[string]bool, len(state.Proposals))
	for _, p := range state.Proposals {
		if seen[p.ProposalID] {
			continue
		}
		seen[p.ProposalID] = true
		if score, ok := state.Scores[p.ProposalID]; ok && score > best {
			best = score
			winner = p.ProposalID
		}
	}
	return winner
}
