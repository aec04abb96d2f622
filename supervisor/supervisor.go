// Package supervisor implements the Supervisor: a stateful critique loop that scores
// each SubTask's output and decides ACCEPT/REWORK/REJECT, bounded by a per-agent
// rework count (spec §4.6).
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/flowmesh/swarmcore/core"
	"github.com/flowmesh/swarmcore/llm"
)

// QualityThreshold is the minimum score an output may pass without rework
// (spec §4.6, core.OrchestrationConfig.QualityThreshold carries the configured value;
// this is the spec's documented default).
const QualityThreshold = 7.0

// MaxReworkAttempts bounds how many times a single agent may be sent back for rework
// before the Supervisor forces an ACCEPT regardless of score (spec §4.6, §8 boundary
// behavior).
const MaxReworkAttempts = 2

// Supervisor tracks rework counts per agent across a task's lifetime and critiques
// agent output.
type Supervisor struct {
	router            *llm.Router
	logger            core.Logger
	qualityThreshold  float64
	maxReworkAttempts int

	mu          sync.Mutex
	reworkCount map[string]int
}

// New constructs a Supervisor. threshold/maxRework default to the spec's values when
// zero, allowing callers to pass core.OrchestrationConfig values directly.
func New(router *llm.Router, logger core.Logger, threshold float64, maxRework int) *Supervisor {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if threshold == 0 {
		threshold = QualityThreshold
	}
	if maxRework == 0 {
		maxRework = MaxReworkAttempts
	}
	return &Supervisor{
		router:            router,
		logger:            logger,
		qualityThreshold:  threshold,
		maxReworkAttempts: maxRework,
		reworkCount:       make(map[string]int),
	}
}

// InitialAssessment asks the Supervisor to state the quality criteria for a task
// before any agent begins work (spec §4.6).
func (s *Supervisor) InitialAssessment(ctx context.Context, taskDescription string) (string, error) {
	prompt := fmt.Sprintf(`<role>
You are a supervisor defining quality criteria for a multi-agent task before work begins.
</role>

<task>
%s
</task>

<instructions>
State the quality bar this task's output must meet: what would make an answer
excellent, what would make it unacceptable, and what evidence or structure you expect
to see.
</instructions>`, taskDescription)

	if s.router == nil {
		return "", nil
	}

	resp, err := s.router.Completion(ctx, llm.CompletionRequest{
		Model:    "google",
		Messages: []llm.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", core.NewTaskError("supervisor.InitialAssessment", core.KindLLMCallFailed, "", err)
	}
	return resp.Content, nil
}

// Critique evaluates one agent's output and returns a structured verdict, enforcing
// the rework-count bound (spec §4.6, §8: rework_counts == MAX forces ACCEPT).
func (s *Supervisor) Critique(ctx context.Context, agentID, agentType, taskDescription, agentOutput, qualityCriteria string) (*core.SupervisorCritique, error) {
	if qualityCriteria == "" {
		qualityCriteria = "Standard quality criteria apply"
	}

	critiqueText, err := s.llmCritique(ctx, agentType, taskDescription, agentOutput, qualityCriteria)
	if err != nil {
		return nil, err
	}

	evaluation := parseStructuredResponse(critiqueText)
	score := evaluationScore(evaluation, critiqueText)
	decision, reason, focusAreas := reworkDecision(evaluation, critiqueText, score, s.qualityThreshold)

	s.mu.Lock()
	if decision == core.DecisionRework {
		s.reworkCount[agentID]++
		if s.reworkCount[agentID] > s.maxReworkAttempts {
			decision = core.DecisionAccept
			reason = fmt.Sprintf("Max rework attempts (%d) exceeded. Accepting with current quality.", s.maxReworkAttempts)
			focusAreas = nil
			s.logger.Warn("supervisor: max reworks exceeded, forcing accept", map[string]interface{}{"agent_id": agentID})
		}
	}
	s.mu.Unlock()

	s.logger.Info("supervisor: critique decision", map[string]interface{}{
		"agent_id": agentID, "agent_type": agentType, "score": score, "decision": string(decision),
	})

	return &core.SupervisorCritique{
		AgentID:        agentID,
		AgentType:      agentType,
		Score:          score,
		Decision:       decision,
		ReworkRequired: decision == core.DecisionRework,
		ReworkInstructions: &core.ReworkInstructions{
			Reason:     reason,
			FocusAreas: focusAreas,
		},
		Evaluation: evaluation,
	}, nil
}

// ResetReworkCount clears an agent's tracked rework attempts (e.g. at task start).
func (s *Supervisor) ResetReworkCount(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reworkCount, agentID)
}

// GetReworkCount returns how many times agentID has been sent back for rework so far.
func (s *Supervisor) GetReworkCount(agentID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reworkCount[agentID]
}

func (s *Supervisor) llmCritique(ctx context.Context, agentType, taskDescription, agentOutput, qualityCriteria string) (string, error) {
	prompt := fmt.Sprintf(`<role>
You are a supervisor critiquing the output of a %s agent in a multi-agent system.
</role>

<task>
%s
</task>

<quality_criteria>
%s
</quality_criteria>

<agent_output>
%s
</agent_output>

<instructions>
Evaluate the output rigorously. Return a JSON object:
{
  "overall_score": 0-10,
  "verdict": "ACCEPT" | "NEEDS_REWORK" | "REJECT",
  "rework_required": true|false,
  "strengths": ["..."],
  "rework_instructions": {"priority_fixes": ["..."], "specific_guidance": "..."}
}
</instructions>`, agentType, taskDescription, qualityCriteria, agentOutput)

	if s.router == nil {
		return "", fmt.Errorf("supervisor: no llm router configured")
	}

	resp, err := s.router.Completion(ctx, llm.CompletionRequest{
		Model:          "google",
		Messages:       []llm.Message{{Role: "user", Content: prompt}},
		ResponseFormat: "json_object",
	})
	if err != nil {
		return "", core.NewTaskError("supervisor.Critique", core.KindLLMCallFailed, agentType, err)
	}
	return resp.Content, nil
}

var jsonBlockPattern = regexp.MustCompile(`(?s)\{.*\}`)

// parseStructuredResponse tries to parse critiqueText as a JSON object; on failure it
// extracts key fields with regexes (spec §9: structured LLM output always has a
// regex/default fallback).
func parseStructuredResponse(critiqueText string) map[string]any {
	if match := jsonBlockPattern.FindString(critiqueText); match != "" {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(match), &parsed); err == nil {
			return parsed
		}
	}

	verdict := extractDecision(critiqueText)
	evaluation := map[string]any{
		"overall_score":   extractScore(critiqueText),
		"verdict":         verdict,
		"rework_required": verdict == "NEEDS_REWORK" || verdict == "REVISE" || verdict == "REJECT",
	}
	if suggestions := extractSuggestions(critiqueText); len(suggestions) > 0 {
		evaluation["priority_fixes"] = suggestions
	}
	return evaluation
}

func evaluationScore(evaluation map[string]any, critiqueText string) float64 {
	if v, ok := evaluation["overall_score"]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		}
	}
	return extractScore(critiqueText)
}

// reworkDecision derives the ACCEPT/REWORK/REJECT decision, reason, and focus areas
// from a parsed evaluation, falling back to the score threshold when the evaluation
// lacks an explicit verdict (spec §4.6).
func reworkDecision(evaluation map[string]any, critiqueText string, score, threshold float64) (core.SupervisorDecision, string, []string) {
	verdict, _ := evaluation["verdict"].(string)
	verdict = strings.ToUpper(strings.ReplaceAll(verdict, " ", "_"))

	var decision core.SupervisorDecision
	switch verdict {
	case "ACCEPT":
		decision = core.DecisionAccept
	case "NEEDS_REWORK", "REVISE", "NEEDS_MINOR_IMPROVEMENT":
		decision = core.DecisionRework
	case "REJECT":
		decision = core.DecisionReject
	default:
		switch {
		case score >= threshold+1.0:
			decision = core.DecisionAccept
		case score >= threshold-2.0:
			decision = core.DecisionRework
		default:
			decision = core.DecisionReject
		}
		if score >= threshold {
			decision = core.DecisionAccept
		}
	}

	var focusAreas []string
	if fixes, ok := evaluation["priority_fixes"].([]any); ok {
		for _, f := range fixes {
			if s, ok := f.(string); ok {
				focusAreas = append(focusAreas, s)
			}
		}
	} else if fixes, ok := evaluation["priority_fixes"].([]string); ok {
		focusAreas = fixes
	}
	if len(focusAreas) == 0 {
		focusAreas = extractSuggestions(critiqueText)
	}

	reason := fmt.Sprintf("Scored %.1f/10 against a %.1f threshold", score, threshold)
	if guidance, ok := evaluation["rework_instructions"].(map[string]any); ok {
		if g, ok := guidance["specific_guidance"].(string); ok && g != "" {
			reason = g
		}
	}

	return decision, reason, focusAreas
}

var scorePatterns = []*regexp.Regexp{
	regexp.MustCompile(`overall_score["\s:]+(\d+(?:\.\d+)?)`),
	regexp.MustCompile(`score[:\s]+(\d+(?:\.\d+)?)/10`),
	regexp.MustCompile(`(\d+(?:\.\d+)?)/10`),
	regexp.MustCompile(`rate[sd]?\s+(\d+(?:\.\d+)?)`),
	regexp.MustCompile(`score[:\s]+(\d+(?:\.\d+)?)`),
}

// extractScore finds a numeric score in free-text critique output, defaulting to 7.0
// when nothing matches (spec §9 fallback discipline).
func extractScore(critique string) float64 {
	lower := strings.ToLower(critique)
	for _, pattern := range scorePatterns {
		if m := pattern.FindStringSubmatch(lower); m != nil {
			if score, err := strconv.ParseFloat(m[1], 64); err == nil {
				if score > 10 {
					score = score / 10
				}
				return clampScore(score)
			}
		}
	}
	return 7.0
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}

var decisionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`"verdict"[:\s]+"([^"]+)"`),
	regexp.MustCompile(`verdict[:\s]+(accept|needs_rework|needs_minor_improvement|reject)`),
	regexp.MustCompile(`rework_decision[:\s]+(accept|revise|reject)`),
	regexp.MustCompile(`decision[:\s]+(accept|revise|reject)`),
}

func extractDecision(critique string) string {
	lower := strings.ToLower(critique)
	for _, pattern := range decisionPatterns {
		if m := pattern.FindStringSubmatch(lower); m != nil {
			verdict := strings.ToUpper(strings.ReplaceAll(m[1], " ", "_"))
			switch verdict {
			case "REVISE", "NEEDS_REWORK", "NEEDS_MINOR_IMPROVEMENT":
				return "NEEDS_REWORK"
			default:
				return verdict
			}
		}
	}

	score := extractScore(critique)
	switch {
	case score >= 8.0:
		return "ACCEPT"
	case score >= 5.0:
		return "NEEDS_REWORK"
	default:
		return "REJECT"
	}
}

var (
	numberedListPattern = regexp.MustCompile(`(?m)^\s*\d+\.\s*(.+)$`)
	bulletListPattern   = regexp.MustCompile(`(?m)^\s*[-•]\s*(.+)$`)
)

// extractSuggestions pulls numbered/bulleted lines out of free-text critique, capped
// at 5 (spec §4.6 fallback parsing).
func extractSuggestions(critique string) []string {
	var suggestions []string
	for _, pattern := range []*regexp.Regexp{numberedListPattern, bulletListPattern} {
		for _, m := range pattern.FindAllStringSubmatch(critique, -1) {
			text := strings.TrimSpace(m[1])
			if len(text) > 10 {
				suggestions = append(suggestions, text)
			}
		}
	}
	if len(suggestions) > 5 {
		suggestions = suggestions[:5]
	}
	return suggestions
}
