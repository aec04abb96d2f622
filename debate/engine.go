// Package debate implements the round-based debate state machine (spec §4.7):
// propose -> critique -> rebut -> vote -> score -> converge.
package debate

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/pool"

	"github.com/flowmesh/swarmcore/agent"
	"github.com/flowmesh/swarmcore/core"
)

// Config parameterizes one Engine run; zero-valued fields fall back to the spec's
// documented defaults via NewConfig.
type Config struct {
	MaxRounds            int
	ConvergenceThreshold float64
	ScoreMarginThreshold float64
	Weights              Weights
}

// NewConfig builds a Config from core.OrchestrationConfig, substituting the spec's
// defaults for any zero-valued field.
func NewConfig(oc core.OrchestrationConfig) Config {
	cfg := Config{
		MaxRounds:            oc.MaxDebateRounds,
		ConvergenceThreshold: oc.ConvergenceThreshold,
		ScoreMarginThreshold: oc.ScoreMarginThreshold,
		Weights:              defaultWeights,
	}
	if cfg.MaxRounds == 0 {
		cfg.MaxRounds = 5
	}
	if cfg.ConvergenceThreshold == 0 {
		cfg.ConvergenceThreshold = 0.8
	}
	if cfg.ScoreMarginThreshold == 0 {
		cfg.ScoreMarginThreshold = 0.3
	}
	return cfg
}

const votingCriteria = `Select the best proposal based on:
- Evidence quality and factual support
- Logical coherence and argument structure
- Practical feasibility
- Completeness of solution

You cannot vote for your own proposal.`

// Engine runs one multi-round debate among a fixed roster of agents (spec §4.7).
type Engine struct {
	agents []*agent.Agent
	config Config
	logger core.Logger
}

// New constructs a debate Engine over agents, sharing config across every round it
// runs.
func New(agents []*agent.Agent, config Config, logger core.Logger) *Engine {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if config.Weights == (Weights{}) {
		config.Weights = defaultWeights
	}
	return &Engine{agents: agents, config: config, logger: logger}
}

// Run executes the full debate for topic and returns the final DebateState, including
// the selected winner once converged (spec §4.7).
func (e *Engine) Run(ctx context.Context, taskID, topic string) (*core.DebateState, error) {
	state := &core.DebateState{
		TaskID:    taskID,
		Topic:     topic,
		Round:     1,
		MaxRounds: e.config.MaxRounds,
		Phase:     core.PhaseProposal,
		Votes:     make(map[string]string),
		Scores:    make(map[string]float64),
	}

	for state.Round <= state.MaxRounds && !state.Converged {
		state.Phase = core.PhaseProposal
		if err := e.collectProposals(ctx, state); err != nil {
			return nil, err
		}

		state.Phase = core.PhaseCritique
		if err := e.collectCritiques(ctx, state); err != nil {
			return nil, err
		}

		state.Phase = core.PhaseRebuttal
		e.collectRebuttals(state)

		state.Phase = core.PhaseVoting
		if err := e.conductVoting(ctx, state); err != nil {
			return nil, err
		}

		state.Phase = core.PhaseJudgment
		scoreRound(state, e.config.Weights, len(e.agents))

		state.Converged = checkConvergence(state, e.config.ConvergenceThreshold, e.config.ScoreMarginThreshold)
		if !state.Converged {
			state.Round++
		}
	}

	if len(state.Scores) > 0 {
		state.Winner = argmaxScore(state)
		state.Phase = core.PhaseConverged
	}

	e.logger.Info("debate: converged", map[string]interface{}{
		"task_id": taskID, "round": state.Round, "winner": state.Winner,
	})
	return state, nil
}

// collectProposals has every agent produce one proposal for the current round,
// optionally referencing its own previous-round proposal and the critiques targeted at
// it (spec §4.7 step 1).
func (e *Engine) collectProposals(ctx context.Context, state *core.DebateState) error {
	p := pool.NewWithResults[*core.Proposal]().WithContext(ctx).WithCancelOnError()

	for _, a := range e.agents {
		a := a
		p.Go(func(ctx context.Context) (*core.Proposal, error) {
			previous := latestProposalFor(state, a.ID, state.Round-1)
			critiques := critiquesTargeting(state, a.ID, state.Round-1)

			result, err := a.GenerateProposal(ctx, state.Topic, previous, critiques)
			if err != nil {
				return nil, err
			}
			return &core.Proposal{
				Round:      state.Round,
				AgentID:    a.ID,
				ProposalID: a.ID,
				Content:    result.Content,
				Confidence: result.Confidence,
				Evidence:   result.Evidence,
			}, nil
		})
	}

	results, err := p.Wait()
	if err != nil {
		return core.NewTaskError("debate.collectProposals", core.KindLLMCallFailed, state.TaskID, err)
	}
	state.Proposals = append(state.Proposals, results...)
	return nil
}

// collectCritiques has every agent critique every other agent's current-round proposal
// (spec §4.7 step 2).
func (e *Engine) collectCritiques(ctx context.Context, state *core.DebateState) error {
	current := proposalsInRound(state, state.Round)

	type job struct {
		critic   *agent.Agent
		proposal *core.Proposal
	}
	var jobs []job
	for _, a := range e.agents {
		for _, prop := range current {
			if prop.AgentID == a.ID {
				continue
			}
			jobs = append(jobs, job{critic: a, proposal: prop})
		}
	}

	p := pool.NewWithResults[*core.Critique]().WithContext(ctx).WithCancelOnError()
	for _, j := range jobs {
		j := j
		p.Go(func(ctx context.Context) (*core.Critique, error) {
			critique, err := j.critic.CritiqueProposal(ctx, j.proposal, defaultCritiquePrompt)
			if err != nil {
				return nil, err
			}
			critique.Round = state.Round
			critique.AgentID = j.critic.ID
			critique.ProposalID = j.proposal.ProposalID
			return critique, nil
		})
	}

	results, err := p.Wait()
	if err != nil {
		return core.NewTaskError("debate.collectCritiques", core.KindLLMCallFailed, state.TaskID, err)
	}
	state.Critiques = append(state.Critiques, results...)
	return nil
}

// collectRebuttals is reserved (spec §4.7 step 3: "Reserved; may be empty").
func (e *Engine) collectRebuttals(state *core.DebateState) {}

// conductVoting has every agent vote for one proposal among the others' (spec §4.7 step
// 4). An agent never votes for its own proposal (spec §3, §8 invariant 5).
func (e *Engine) conductVoting(ctx context.Context, state *core.DebateState) error {
	current := proposalsInRound(state, state.Round)

	type vote struct {
		agentID    string
		proposalID string
	}

	p := pool.NewWithResults[vote]().WithContext(ctx).WithCancelOnError()
	for _, a := range e.agents {
		a := a
		var others []*core.Proposal
		for _, prop := range current {
			if prop.AgentID != a.ID {
				others = append(others, prop)
			}
		}
		if len(others) == 0 {
			continue
		}
		p.Go(func(ctx context.Context) (vote, error) {
			selectedAgentID, _, err := a.Vote(ctx, others, votingCriteria)
			if err != nil {
				return vote{}, err
			}
			return vote{agentID: a.ID, proposalID: selectedAgentID}, nil
		})
	}

	results, err := p.Wait()
	if err != nil {
		return core.NewTaskError("debate.conductVoting", core.KindLLMCallFailed, state.TaskID, err)
	}
	for _, v := range results {
		if v.proposalID == "" {
			continue
		}
		state.Votes[v.agentID] = v.proposalID
	}
	return nil
}

const defaultCritiquePrompt = `Critically evaluate this proposal. Provide structured analysis:
1. STRENGTHS: What works well (2-3 points)
2. WEAKNESSES: Specific flaws or gaps (2-3 points)
3. EVIDENCE_GAPS: Missing supporting evidence
4. SCORE: 1-10 with justification

IMPORTANT: Critically audit reasoning rather than defaulting to agreement.`

func latestProposalFor(state *core.DebateState, agentID string, round int) *core.Proposal {
	for i := len(state.Proposals) - 1; i >= 0; i-- {
		if state.Proposals[i].AgentID == agentID && state.Proposals[i].Round == round {
			return state.Proposals[i]
		}
	}
	return nil
}

func critiquesTargeting(state *core.DebateState, proposalID string, round int) []*core.Critique {
	var out []*core.Critique
	for _, c := range state.Critiques {
		if c.ProposalID == proposalID && c.Round == round {
			out = append(out, c)
		}
	}
	return out
}

func proposalsInRound(state *core.DebateState, round int) []*core.Proposal {
	var out []*core.Proposal
	for _, p := range state.Proposals {
		if p.Round == round {
			out = append(out, p)
		}
	}
	return out
}

// ResultsFromState extracts one AgentResult per agent from the current round's
// proposals (the previous round's when the current round has none), tagging each with
// debate_score and is_winner, for the orchestrator to fold into its normal result
// aggregation path (spec §4.8: "extracts results from its final proposals").
func ResultsFromState(state *core.DebateState, taskID string) []*core.AgentResult {
	round := state.Round
	proposals := proposalsInRound(state, round)
	if len(proposals) == 0 && round > 1 {
		proposals = proposalsInRound(state, round-1)
	}

	results := make([]*core.AgentResult, 0, len(proposals))
	for _, p := range proposals {
		results = append(results, &core.AgentResult{
			AgentID:    p.AgentID,
			TaskID:     taskID,
			Content:    p.Content,
			Confidence: p.Confidence,
			Evidence:   p.Evidence,
			Metadata: map[string]any{
				"debate_score": state.Scores[p.ProposalID],
				"is_winner":    fmt.Sprintf("%t", p.ProposalID == state.Winner),
			},
		})
	}
	return results
}
