// Package agent implements the polymorphic Agent runtime (spec §4.5, §9): a single
// Agent type whose behavior varies through role_label/capability/provider data rather
// than per-role subclasses, matching the "dynamic role polymorphism" design note.
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/flowmesh/swarmcore/core"
	"github.com/flowmesh/swarmcore/llm"
)

// Status is the agent's current lifecycle state, reported by Agent.Status().
type Status string

const (
	StatusIdle     Status = "idle"
	StatusWorking  Status = "working"
	StatusFinished Status = "finished"
)

// ToolExecutor is the minimal surface an Agent needs from the tool registry. Any type
// implementing Execute (e.g. tools.Registry) satisfies this without an import cycle.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, params map[string]any) (map[string]any, error)
}

// MemoryReader is the minimal surface of the Memory Manager that an Agent holds
// (spec §4.5). The Agent stores it; Process does not read from it when building prompts.
type MemoryReader interface {
	Read(ctx context.Context, taskID, agentID string, queryEmbedding []float32, provider string, limit int) ([]*core.MemoryEntry, error)
}

// Agent executes subtasks, generates debate proposals, critiques, and votes. Its
// behavior is parameterized entirely by AgentType/Capability/Provider (spec §9).
type Agent struct {
	ID         string
	Name       string
	AgentType  string
	Capability core.Capability
	Provider   string

	Router *llm.Router
	Tools  ToolExecutor
	Memory MemoryReader
	Logger core.Logger

	currentLoad float64
	status      Status
}

// New constructs an Agent from a planned AgentPlan (spec §4.3 -> §4.5 materialization).
func New(plan *core.AgentPlan, router *llm.Router, tools ToolExecutor, memory MemoryReader, logger core.Logger) *Agent {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	id := fmt.Sprintf("%s-%s", plan.AgentType, uuid.New().String()[:8])
	return &Agent{
		ID:         id,
		Name:       plan.AgentName,
		AgentType:  plan.AgentType,
		Capability: plan.Capability,
		Provider:   plan.Provider,
		Router:     router,
		Tools:      tools,
		Memory:     memory,
		Logger:     logger,
		status:     StatusIdle,
	}
}

// Status reports the agent's current lifecycle state.
func (a *Agent) Status() Status { return a.status }

// CurrentLoad reports the agent's self-estimated load (0 when idle).
func (a *Agent) CurrentLoad() float64 { return a.currentLoad }

// Process executes subtaskDescription for task and returns the agent's result (spec
// §4.5). rework is nil on a first attempt; on a rework re-dispatch it
// carries the Supervisor's focus areas.
func (a *Agent) Process(ctx context.Context, task *core.Task, subtaskDescription string, rework *core.ReworkInstructions) (*core.AgentResult, error) {
	a.status = StatusWorking
	a.currentLoad = 1.0
	defer func() {
		a.status = StatusFinished
		a.currentLoad = 0.0
	}()

	searchSnippet := a.maybeWebSearch(ctx, subtaskDescription)

	prompt := a.buildProcessPrompt(task, subtaskDescription, searchSnippet, rework)

	content, err := a.llmCall(ctx, prompt)
	if err != nil {
		return &core.AgentResult{
			AgentID: a.ID,
			TaskID:  task.ID,
			Error:   err.Error(),
		}, core.NewTaskError("agent.Process", core.KindLLMCallFailed, a.ID, err)
	}

	confidence := 0.8
	if rework != nil {
		confidence = 0.9
	}

	return &core.AgentResult{
		AgentID:    a.ID,
		TaskID:     task.ID,
		Content:    content,
		Confidence: confidence,
		Evidence:   extractEvidenceURLs(searchSnippet),
	}, nil
}

// maybeWebSearch gives research-capable agents an autonomous web search pass before
// drafting their answer (spec §4.5, §4.10). Any failure degrades to an empty snippet.
func (a *Agent) maybeWebSearch(ctx context.Context, query string) string {
	if a.Tools == nil || a.Capability != core.CapabilityResearch {
		return ""
	}

	result, err := a.Tools.Execute(ctx, "web_search", map[string]any{"query": query, "max_results": 5})
	if err != nil {
		a.Logger.Warn("agent: web search failed", map[string]interface{}{"agent_id": a.ID, "error": err.Error()})
		return ""
	}

	rawResults, _ := result["results"].([]any)
	var formatted []string
	for i, r := range rawResults {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		title, _ := m["title"].(string)
		snippet, _ := m["snippet"].(string)
		url, _ := m["url"].(string)
		if len(snippet) > 500 {
			snippet = snippet[:500]
		}
		formatted = append(formatted, fmt.Sprintf("[%d] %s\n%s\nSource: %s", i+1, title, snippet, url))
	}
	return strings.Join(formatted, "\n\n")
}

func extractEvidenceURLs(searchSnippet string) []string {
	if searchSnippet == "" {
		return nil
	}
	var urls []string
	for _, line := range strings.Split(searchSnippet, "\n") {
		if strings.HasPrefix(line, "Source: ") {
			urls = append(urls, strings.TrimPrefix(line, "Source: "))
		}
	}
	return urls
}

// buildProcessPrompt assembles: role template + subtask/task + optional web-search
// snippet + optional rework section (spec §4.5 prompt-building recipe).
func (a *Agent) buildProcessPrompt(task *core.Task, subtaskDescription, searchSnippet string, rework *core.ReworkInstructions) string {
	t := templateFor(a.AgentType)

	var b strings.Builder
	fmt.Fprintf(&b, "<role>\nYou are %s, acting as %s.\n</role>\n\n", a.Name, t.persona)
	fmt.Fprintf(&b, "<task>\n%s\n</task>\n\n<subtask>\n%s\n</subtask>\n", task.Description, subtaskDescription)

	if searchSnippet != "" {
		fmt.Fprintf(&b, "\n<research_context>\n%s\n</research_context>\n", searchSnippet)
	}

	if rework != nil {
		b.WriteString("\n<rework_instructions>\n")
		fmt.Fprintf(&b, "Your previous attempt was sent back for rework. Reason: %s\n", rework.Reason)
		if len(rework.FocusAreas) > 0 {
			b.WriteString("Focus specifically on:\n")
			for _, f := range rework.FocusAreas {
				fmt.Fprintf(&b, "- %s\n", f)
			}
		}
		b.WriteString("</rework_instructions>\n")
	}

	fmt.Fprintf(&b, "\n<output_structure>\n%s\n</output_structure>\n", t.structure)
	return b.String()
}

// GenerateProposal produces this agent's independent position for a debate round (spec
// §4.7). previousRound/critiquesReceived are nil on round 1.
func (a *Agent) GenerateProposal(ctx context.Context, topic string, previousRound *core.Proposal, critiquesReceived []*core.Critique) (*core.AgentResult, error) {
	prompt := a.buildProposalPrompt(topic, previousRound, critiquesReceived)
	content, err := a.llmCall(ctx, prompt)
	if err != nil {
		return nil, core.NewTaskError("agent.GenerateProposal", core.KindLLMCallFailed, a.ID, err)
	}
	return &core.AgentResult{AgentID: a.ID, Content: content, Confidence: 0.7}, nil
}

func (a *Agent) buildProposalPrompt(topic string, previousRound *core.Proposal, critiquesReceived []*core.Critique) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<role>
You are %s participating in a structured debate.
Generate your proposal INDEPENDENTLY, without reference to other agents' positions.
</role>

<topic>
%s
</topic>
`, strings.Title(a.AgentType), topic)

	if previousRound != nil {
		fmt.Fprintf(&b, "\n<previous_round>\n%s\n</previous_round>\n", previousRound.Content)
	}

	if len(critiquesReceived) > 0 {
		b.WriteString("\n<critiques_received>\n")
		for _, c := range critiquesReceived {
			fmt.Fprintf(&b, "- %s\n", c.Reasoning)
		}
		b.WriteString("</critiques_received>\n\n<improvement_instruction>\nAddress the critiques above in your proposal.\n</improvement_instruction>\n")
	}

	b.WriteString(`
<proposal_structure>
1. POSITION: State your clear position on the question
2. REASONING: Step-by-step logic supporting your position
3. EVIDENCE: Specific facts, data, or examples supporting claims
4. ASSUMPTIONS: Key assumptions underlying your argument
5. CONFIDENCE: Your confidence level (high/medium/low) with justification
6. POTENTIAL_WEAKNESSES: Acknowledge limitations proactively
</proposal_structure>

<guidelines>
- Be specific and concrete
- Support claims with evidence
- Acknowledge uncertainty where appropriate
- Consider alternative viewpoints
</guidelines>`)
	return b.String()
}

// CritiqueProposal evaluates another agent's proposal (spec §4.7).
func (a *Agent) CritiqueProposal(ctx context.Context, proposal *core.Proposal, critiqueContext string) (*core.Critique, error) {
	prompt := fmt.Sprintf(`<role>
You are a critical evaluator in a multi-agent debate.
Your goal: improve proposal quality through rigorous but constructive critique.
</role>

<critique_context>
%s
</critique_context>

<proposal_to_critique>
%s
</proposal_to_critique>

<critique_guidelines>
MUST DO:
- Target specific claims with specific counterarguments
- Cite evidence when challenging assertions
- Propose alternative interpretations
- Acknowledge valid points before critiquing

MUST NOT:
- Dismiss arguments without substantive counter-evidence
- Use ad hominem or emotional language
- Critique style over substance
- Completely reject without offering alternatives
</critique_guidelines>

<output_format>
1. VALID_POINTS: What is well-supported in this proposal?
2. CRITIQUES: Specific issues with weakness_type (logical_flaw/missing_evidence/oversimplification/false_premise)
3. COUNTER_EVIDENCE: Evidence supporting your critiques
4. ALTERNATIVE_INTERPRETATIONS: Different ways to view the topic
5. SCORE: 1-10 with justification
6. DECISION: AGREE / DISAGREE / PARTIALLY_AGREE
</output_format>`, critiqueContext, proposal.Content)

	response, err := a.llmCall(ctx, prompt)
	if err != nil {
		return nil, core.NewTaskError("agent.CritiqueProposal", core.KindLLMCallFailed, a.ID, err)
	}

	return &core.Critique{
		AgentID:    a.ID,
		ProposalID: proposal.ProposalID,
		Score:      parseScoreOrDefault(response, 5.0),
		Reasoning:  response,
	}, nil
}

// Vote selects the best proposal among candidates (spec §4.7).
func (a *Agent) Vote(ctx context.Context, proposals []*core.Proposal, votingCriteria string) (string, string, error) {
	if len(proposals) == 0 {
		return "", "", nil
	}

	var proposalsText strings.Builder
	for i, p := range proposals {
		fmt.Fprintf(&proposalsText, "Proposal %d (Agent %s):\n%s\n\n", i+1, p.AgentID, p.Content)
	}

	prompt := fmt.Sprintf(`<role>
You are voting on the best solution in a multi-agent debate.
Form your judgment independently before providing reasoning.
</role>

<voting_criteria>
%s
</voting_criteria>

<proposals>
%s
</proposals>

<voting_protocol>
1. Review each solution independently
2. Score each against these criteria:
   - Accuracy: Factual correctness
   - Completeness: Addresses all aspects
   - Reasoning: Logical coherence
   - Practicality: Implementability
3. Select the SINGLE best solution
4. Provide reasoning AFTER your selection

IMPORTANT: You must select exactly ONE proposal. Do not vote for multiple.
</voting_protocol>

<output_format>
1. SELECTED: Proposal number (1-%d)
2. SCORES: Brief score for each proposal on the criteria
3. REASONING: Why the selected proposal is best
4. CONFIDENCE: Your confidence in this selection (high/medium/low)
</output_format>`, votingCriteria, proposalsText.String(), len(proposals))

	response, err := a.llmCall(ctx, prompt)
	if err != nil {
		return "", "", core.NewTaskError("agent.Vote", core.KindLLMCallFailed, a.ID, err)
	}

	selected := parseSelectedProposal(response, len(proposals))
	return proposals[selected].AgentID, response, nil
}

func (a *Agent) llmCall(ctx context.Context, prompt string) (string, error) {
	if a.Router == nil {
		return "", fmt.Errorf("agent %s: no llm router configured", a.ID)
	}

	model := a.Provider
	if model == "" {
		model = "auto"
	}

	resp, err := a.Router.Completion(ctx, llm.CompletionRequest{
		Model:    model,
		Messages: []llm.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// parseScoreOrDefault looks for a "SCORE: n" line in free-text critique output,
// falling back to defaultScore if none parses (spec §9: structured output always has a
// regex/default fallback).
func parseScoreOrDefault(text string, defaultScore float64) float64 {
	lower := strings.ToLower(text)
	idx := strings.Index(lower, "score:")
	if idx == -1 {
		idx = strings.Index(lower, "score")
	}
	if idx == -1 {
		return defaultScore
	}

	rest := text[idx:]
	var digits strings.Builder
	seenDigit := false
	for _, r := range rest {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
			seenDigit = true
		} else if r == '.' && seenDigit {
			digits.WriteRune(r)
		} else if seenDigit {
			break
		}
	}
	if digits.Len() == 0 {
		return defaultScore
	}

	var score float64
	if _, err := fmt.Sscanf(digits.String(), "%f", &score); err != nil {
		return defaultScore
	}
	if score > 10 {
		score = 10
	}
	return score
}

// parseSelectedProposal looks for "SELECTED: n" in free-text vote output, falling back
// to the first proposal if none parses.
func parseSelectedProposal(text string, count int) int {
	lower := strings.ToLower(text)
	idx := strings.Index(lower, "selected:")
	if idx == -1 {
		return 0
	}
	rest := text[idx+len("selected:"):]
	var digits strings.Builder
	for _, r := range strings.TrimSpace(rest) {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		} else {
			break
		}
	}
	if digits.Len() == 0 {
		return 0
	}
	var n int
	if _, err := fmt.Sscanf(digits.String(), "%d", &n); err != nil {
		return 0
	}
	n--
	if n < 0 || n >= count {
		return 0
	}
	return n
}
