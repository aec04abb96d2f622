// Package queryexpander scores task complexity and, for non-trivial queries, expands
// them into clarifying questions, intent hypotheses, and sub-queries before the
// Delegator plans agents (spec §4.4).
package queryexpander

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/flowmesh/swarmcore/core"
	"github.com/flowmesh/swarmcore/llm"
)

// DecompositionThreshold is the complexity score above which a query is decomposed
// instead of executed directly (spec §4.4; exactly 0.4 takes the decompose path).
const DecompositionThreshold = 0.4

// debateThreshold is the complexity score above which debate is suggested.
const debateThreshold = 0.7

var complexityIndicators = []string{
	" and ", " or ", " then ", " after ", " before ",
	" multiple ", " several ", " various ", " different ",
	" analyze ", " compare ", " evaluate ", " assess ",
}

// Expansion is the result of expanding a query (spec §4.4).
type Expansion struct {
	Original             string   `json:"original"`
	ExecutionMode        string   `json:"execution_mode"` // "direct" or "decompose"
	ExpandedQueries      []string `json:"expanded_queries,omitempty"`
	ClarifyingQuestions  []string `json:"clarifying_questions,omitempty"`
	IntentHypotheses     []string `json:"intent_hypotheses,omitempty"`
	SubQueries           []string `json:"sub_queries,omitempty"`
	RequiresDebate       bool     `json:"requires_debate"`
	SuggestedAgents      []string `json:"suggested_agents,omitempty"`
	ComplexityScore      float64  `json:"complexity_score"`
}

// Expander implements the complexity scoring + LLM-backed expansion pipeline.
type Expander struct {
	router *llm.Router
	logger core.Logger
}

// New constructs an Expander.
func New(router *llm.Router, logger core.Logger) *Expander {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Expander{router: router, logger: logger}
}

// Expand scores query complexity and, for scores at or above DecompositionThreshold,
// asks the router for a multi-perspective expansion. Any LLM failure degrades to the
// heuristic score; a failed expansion call yields a "decompose" result whose only
// sub-query is the original query. No error is returned (spec §9: structured LLM
// output always has a fallback).
func (e *Expander) Expand(ctx context.Context, query string) *Expansion {
	complexity := e.assessComplexity(ctx, query)

	if complexity < DecompositionThreshold {
		return &Expansion{
			Original:        query,
			ExecutionMode:   "direct",
			ExpandedQueries: []string{query},
			ComplexityScore: complexity,
		}
	}

	expanded := e.llmExpand(ctx, query)

	return &Expansion{
		Original:            query,
		ExecutionMode:       "decompose",
		ClarifyingQuestions: expanded.Clarifications,
		IntentHypotheses:    expanded.Intents,
		SubQueries:          expanded.SubQueries,
		RequiresDebate:      complexity > debateThreshold,
		SuggestedAgents:     suggestAgents(expanded.SubQueries),
		ComplexityScore:     complexity,
	}
}

// assessComplexity combines a keyword heuristic with an optional LLM refinement. The
// heuristic alone already produces a usable score, so an LLM failure is not fatal.
func (e *Expander) assessComplexity(ctx context.Context, query string) float64 {
	base := heuristicComplexity(query)

	if e.router == nil {
		return base
	}

	prompt := `<role>
You are analyzing query complexity for a multi-agent system.
</role>

<query>` + query + `</query>

<complexity_signals>
Check for these indicators:
- Multiple entities or concepts
- Temporal sequences or dependencies
- Conditional logic or branching
- Cross-domain knowledge requirements
- Ambiguous scope or implicit requirements
</complexity_signals>

<scoring>
- 0.0-0.3: Simple, single-step task
- 0.3-0.6: Moderate, may need decomposition
- 0.6-1.0: Complex, requires multiple agents
</scoring>

<output_format>
Return JSON: {"overall": 0.0-1.0, "signals_detected": ["list of signals"]}
</output_format>`

	resp, err := e.router.Completion(ctx, llm.CompletionRequest{
		Model:          "auto",
		Messages:       []llm.Message{{Role: "user", Content: prompt}},
		ResponseFormat: "json_object",
	})
	if err != nil {
		e.logger.Warn("queryexpander: complexity assessment failed, using heuristic", map[string]interface{}{"error": err.Error()})
		return base
	}

	var parsed struct {
		Overall float64 `json:"overall"`
	}
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		e.logger.Warn("queryexpander: complexity response unparsable, using heuristic", map[string]interface{}{"error": err.Error()})
		return base
	}
	return parsed.Overall
}

func heuristicComplexity(query string) float64 {
	lower := strings.ToLower(query)
	count := 0
	for _, indicator := range complexityIndicators {
		if strings.Contains(lower, indicator) {
			count++
		}
	}
	score := 0.3 + float64(count)*0.1
	if score > 0.9 {
		score = 0.9
	}
	return score
}

type llmExpansion struct {
	Clarifications []string `json:"clarifications"`
	Intents        []string `json:"intents"`
	SubQueries     []string `json:"sub_queries"`
	Complexity     float64  `json:"complexity"`
}

// llmExpand asks the router for clarifications/intents/sub-queries. On any failure it
// returns a single-element sub_queries default rather than propagating the error.
func (e *Expander) llmExpand(ctx context.Context, query string) llmExpansion {
	fallback := llmExpansion{Intents: []string{query}, SubQueries: []string{query}, Complexity: 0.5}

	if e.router == nil {
		return fallback
	}

	prompt := `<role>
You are analyzing and expanding an ambiguous query for a multi-agent system.
</role>

<query>` + query + `</query>

<analysis_protocol>
1. AMBIGUITY DETECTION
   - Vague terms requiring clarification
   - Missing context or constraints
   - Multiple valid interpretations
   - Implicit assumptions

2. INTENT ANALYSIS
   - What is the user likely trying to achieve?
   - What outcomes would satisfy this query?

3. DECOMPOSITION
   - Break into concrete, actionable sub-questions
   - Each sub-question should be independently answerable
</analysis_protocol>

<output_format>
Return JSON:
{
  "clarifications": ["What needs clarification?"],
  "intents": ["Possible intent 1", "Possible intent 2"],
  "sub_queries": ["Concrete sub-question 1", "Sub-question 2"],
  "complexity": 0.5
}
</output_format>`

	resp, err := e.router.Completion(ctx, llm.CompletionRequest{
		Model:          "auto",
		Messages:       []llm.Message{{Role: "user", Content: prompt}},
		ResponseFormat: "json_object",
	})
	if err != nil {
		e.logger.Warn("queryexpander: expansion failed, using default", map[string]interface{}{"error": err.Error()})
		return fallback
	}

	var result llmExpansion
	if err := json.Unmarshal([]byte(resp.Content), &result); err != nil {
		e.logger.Warn("queryexpander: expansion response unparsable, using default", map[string]interface{}{"error": err.Error()})
		return fallback
	}
	if len(result.SubQueries) == 0 {
		result.SubQueries = []string{query}
	}
	return result
}

// suggestAgents maps each sub-query to a role by keyword, deduplicating the result.
func suggestAgents(subQueries []string) []string {
	seen := make(map[string]bool)
	var agents []string
	for _, sq := range subQueries {
		lower := strings.ToLower(sq)
		var role string
		switch {
		case containsAny(lower, "research", "find", "search", "look up"):
			role = "researcher"
		case containsAny(lower, "code", "program", "implement", "write"):
			role = "coder"
		case containsAny(lower, "analyze", "plan", "strategy"):
			role = "analyst"
		default:
			role = "analyst"
		}
		if !seen[role] {
			seen[role] = true
			agents = append(agents, role)
		}
	}
	return agents
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
