package debate

import "github.com/flowmesh/swarmcore/core"

// checkConvergence evaluates the three convergence conditions after scoring (spec
// §4.7): max rounds reached, supermajority vote agreement, or a clear score margin
// between the top two proposals.
func checkConvergence(state *core.DebateState, convergenceThreshold, scoreMarginThreshold float64) bool {
	if state.Round >= state.MaxRounds {
		return true
	}

	if len(state.Votes) > 0 {
		counts := countVotes(state.Votes)
		maxVotes := 0
		for _, c := range counts {
			if c > maxVotes {
				maxVotes = c
			}
		}
		if float64(maxVotes)/float64(len(state.Votes)) >= convergenceThreshold {
			return true
		}
	}

	if len(state.Scores) > 1 {
		top, second := topTwoScores(state.Scores)
		if top-second > scoreMarginThreshold {
			return true
		}
	}

	return false
}

func topTwoScores(scores map[string]float64) (top, second float64) {
	for _, s := range scores {
		switch {
		case s > top:
			second = top
			top = s
		case s > second:
			second = s
		}
	}
	return top, second
}
