// Package delegator plans agent creation and subtask decomposition for an incoming
// task (spec §4.3).
package delegator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/flowmesh/swarmcore/core"
	"github.com/flowmesh/swarmcore/llm"
)

// defaultRoles is the standard-role fallback/padding roster, in priority order
// (spec §4.3).
var defaultRoles = []string{"researcher", "analyst", "coder", "reviewer", "synthesizer"}

var roleInfo = map[string]struct {
	name, description, capability string
}{
	"researcher":  {"Researcher", "Conducts web research and information gathering using search tools", "research"},
	"analyst":     {"Analyst", "Analyzes data and creates plans", "analysis"},
	"coder":       {"Coder", "Generates and reviews code", "coding"},
	"reviewer":    {"Reviewer", "Reviews and critiques solutions", "review"},
	"synthesizer": {"Synthesizer", "Synthesizes multiple perspectives into final output", "analysis"},
}

// defaultAutoProviders is the round-robin cloud-provider rotation used when
// provider=="auto" and the caller did not supply its own configured list (spec §8 S2,
// "balanced cloud provider round-robin").
var defaultAutoProviders = []string{"google", "anthropic", "openai"}

// Delegator turns a task description into a DelegationPlan: agent roster, per-agent
// subtasks, and an execution strategy.
type Delegator struct {
	router         *llm.Router
	logger         core.Logger
	cloudProviders []string
}

// New constructs a Delegator. cloudProviders is the set configured at startup (e.g.
// llm.Registry.CloudProviders()); when empty it falls back to defaultAutoProviders so
// the Delegator remains usable in isolation (e.g. unit tests).
func New(router *llm.Router, logger core.Logger, cloudProviders []string) *Delegator {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if len(cloudProviders) == 0 {
		cloudProviders = defaultAutoProviders
	}
	return &Delegator{router: router, logger: logger, cloudProviders: cloudProviders}
}

type taskAnalysis struct {
	TaskInterpretation string              `json:"task_interpretation"`
	MainTasks          []string            `json:"main_tasks"`
	ResearchApproach   string              `json:"research_approach"`
	AgentCount         int                 `json:"agent_count"`
	AgentConfig        []agentConfigEntry  `json:"agent_config"`
	AgentTypes         []string            `json:"agent_types"`
	RequiresDebate     bool                `json:"requires_debate"`
	Complexity         float64             `json:"complexity"`
	Reasoning          string              `json:"reasoning"`
}

type agentConfigEntry struct {
	Role       string `json:"role"`
	Capability string `json:"capability"`
	Expertise  string `json:"expertise"`
}

// CreateDelegationPlan analyzes the task, plans the agent roster, decomposes the task
// into per-agent subtasks, and chooses an execution strategy (spec §4.3).
func (d *Delegator) CreateDelegationPlan(ctx context.Context, taskDescription, provider string) (*core.DelegationPlan, error) {
	analysis := d.analyzeTask(ctx, taskDescription, provider)

	agents, err := d.planAgents(ctx, taskDescription, analysis, provider)
	if err != nil {
		return nil, err
	}

	return &core.DelegationPlan{
		ExecutionStrategy:   d.determineStrategy(agents, analysis),
		Agents:              agents,
		RequiresDebate:      analysis.RequiresDebate,
		ComplexityScore:     analysis.Complexity,
		TaskInterpretation:  analysis.TaskInterpretation,
		MainTasksIdentified: analysis.MainTasks,
		ResearchApproach:    analysis.ResearchApproach,
		Reasoning:           analysis.Reasoning,
	}, nil
}

// analyzeTask asks the router to interpret the task and propose an agent roster. Any
// failure degrades to a fallback analysis (agent_count 4, agent_types ["analyst"],
// padded to four agents by planFromLegacyTypes) rather than propagating an error
// (spec §9: structured LLM output always has a fallback).
func (d *Delegator) analyzeTask(ctx context.Context, description, provider string) taskAnalysis {
	fallback := taskAnalysis{
		TaskInterpretation: description,
		MainTasks:          []string{description},
		ResearchApproach:   "Standard research and analysis",
		AgentCount:         4,
		AgentTypes:         []string{"analyst"},
		RequiresDebate:     false,
		Complexity:         0.5,
		Reasoning:          "Single agent for straightforward task",
	}

	if d.router == nil {
		return fallback
	}

	prompt := fmt.Sprintf(`<role>
You are a task orchestrator for a multi-agent system. Analyze incoming requests
and dynamically assign the most appropriate expert roles. You collaborate with
other specialized agents who will execute the subtasks you define.
</role>

<task_analysis_instructions>
For the given task, perform comprehensive analysis:

1. TASK INTERPRETATION
   - What is the user actually asking for?
   - What is the desired outcome?
   - What context or constraints are implied?

2. SUBTASK IDENTIFICATION
   - Break down into 4-6 main goals/subtasks
   - Identify dependencies between subtasks
   - Prioritize by importance

3. EXPERT PERSONA ASSIGNMENT
   - Identify at least 4 expert personas most qualified for this task
   - For each expert, define their specific domain expertise
   - Assign capability class: RESEARCH, ANALYSIS, CODING, or REVIEW
   - Example personas: "Systems Architect", "Security Auditor", "Data Scientist"

4. EXECUTION STRATEGY
   - Determine if debate/validation is needed (for controversial or high-stakes decisions)
   - Assess complexity score (0.0-1.0)
   - Define research approach if applicable
</task_analysis_instructions>

<capability_registry>
Available capability classes:
- RESEARCH: Web research, information gathering, source verification
- ANALYSIS: Data analysis, strategic planning, pattern recognition
- CODING: Code generation, debugging, optimization
- REVIEW: Quality assessment, critique, validation
</capability_registry>

<input_task>
%s
</input_task>

<output_format>
Return a JSON object with this exact structure:
{
  "task_interpretation": "Clear statement of what user wants and expected outcome",
  "main_tasks": ["Subtask 1", "Subtask 2", "Subtask 3"],
  "research_approach": "How research should be conducted (if applicable)",
  "agent_count": 4,
  "agent_config": [
    {"role": "Expert Role Name", "capability": "RESEARCH|ANALYSIS|CODING|REVIEW", "expertise": "Specific domain knowledge"}
  ],
  "requires_debate": false,
  "complexity": 0.6,
  "reasoning": "Detailed explanation of why this delegation strategy is optimal"
}
</output_format>

<constraints>
- Agent count must be 4 to 15 (use as many as needed for quality)
- Each agent must have a distinct, valuable perspective
- All agents have access to web_search capability
- Prioritize outcome quality over efficiency
- Only recommend debate for controversial or high-stakes decisions
</constraints>`, description)

	model := "auto"
	if provider == "google" {
		model = "google/gemini-2.0-flash"
	}

	resp, err := d.router.Completion(ctx, llm.CompletionRequest{
		Model:          model,
		Messages:       []llm.Message{{Role: "user", Content: prompt}},
		ResponseFormat: "json_object",
	})
	if err != nil {
		d.logger.Warn("delegator: task analysis failed, using fallback", map[string]interface{}{"error": err.Error()})
		return fallback
	}

	var analysis taskAnalysis
	if err := json.Unmarshal([]byte(resp.Content), &analysis); err != nil {
		d.logger.Warn("delegator: task analysis unparsable, using fallback", map[string]interface{}{"error": err.Error()})
		return fallback
	}
	return analysis
}

// planAgents builds the agent roster, either from the analysis's dynamic agent_config
// or, if that's absent, from the legacy agent_types/agent_count path — then decomposes
// the task into one subtask per agent (spec §4.3).
func (d *Delegator) planAgents(ctx context.Context, description string, analysis taskAnalysis, provider string) ([]*core.AgentPlan, error) {
	if len(analysis.AgentConfig) > 0 {
		return d.planFromAgentConfig(ctx, description, analysis, provider)
	}
	return d.planFromLegacyTypes(ctx, description, analysis, provider)
}

func (d *Delegator) planFromAgentConfig(ctx context.Context, description string, analysis taskAnalysis, provider string) ([]*core.AgentPlan, error) {
	var plans []*core.AgentPlan
	var roleNames []string

	for i, cfg := range analysis.AgentConfig {
		role := cfg.Role
		if role == "" {
			role = fmt.Sprintf("Agent-%d", i+1)
		}
		capability := standardizeCapability(cfg.Capability)
		roleNames = append(roleNames, role)

		agentProvider := provider
		if provider == "auto" {
			agentProvider = d.selectProviderForAgent(i)
		}

		plans = append(plans, &core.AgentPlan{
			AgentType:   role,
			AgentName:   role,
			Description: fmt.Sprintf("Acts as %s with %s capabilities", role, capability),
			Provider:    agentProvider,
			Priority:    i,
			Capability:  core.Capability(capability),
		})
	}

	// Pad to the minimum agent floor with standard roles (spec §8 boundary: empty
	// agent_config still yields >= 4 agents via padding).
	for _, role := range defaultRoles {
		if len(plans) >= core.MinAgentsFloor {
			break
		}
		info := roleInfo[role]
		j := len(plans)
		roleNames = append(roleNames, role)
		agentProvider := provider
		if provider == "auto" {
			agentProvider = d.selectProviderForAgent(j)
		}
		plans = append(plans, &core.AgentPlan{
			AgentType:   role,
			AgentName:   info.name,
			Description: fmt.Sprintf("Handles %s duties", role),
			Provider:    agentProvider,
			Priority:    j,
			Capability:  core.Capability(info.capability),
		})
	}

	subtasks := d.decomposeTask(ctx, description, roleNames, provider, analysis)
	for i, plan := range plans {
		if i < len(subtasks) {
			plan.SubtaskDescription = subtasks[i]
		} else {
			plan.SubtaskDescription = description
		}
	}
	return plans, nil
}

func (d *Delegator) planFromLegacyTypes(ctx context.Context, description string, analysis taskAnalysis, provider string) ([]*core.AgentPlan, error) {
	agentCount := analysis.AgentCount
	if agentCount == 0 {
		agentCount = 4
	}
	agentCount = clampInt(agentCount, core.MinAgentsFloor, core.MaxAgentsCeiling)

	agentTypes := append([]string{}, analysis.AgentTypes...)
	if len(agentTypes) == 0 {
		agentTypes = []string{"researcher", "analyst"}
		if agentCount > 2 {
			extra := []string{"reviewer", "synthesizer"}
			if agentCount-2 < len(extra) {
				extra = extra[:agentCount-2]
			}
			agentTypes = append(agentTypes, extra...)
		}
	}

	for len(agentTypes) < agentCount {
		added := false
		for _, d := range defaultRoles {
			if !containsStr(agentTypes, d) {
				agentTypes = append(agentTypes, d)
				added = true
				break
			}
		}
		if !added {
			agentTypes = append(agentTypes, "researcher")
		}
	}
	if len(agentTypes) > agentCount {
		agentTypes = agentTypes[:agentCount]
	}

	subtasks := d.decomposeTask(ctx, description, agentTypes, provider, analysis)

	var plans []*core.AgentPlan
	for i, agentType := range agentTypes {
		info, ok := roleInfo[agentType]
		if !ok {
			info = struct{ name, description, capability string }{
				strings.Title(agentType), fmt.Sprintf("Handles %s tasks", agentType), "analysis",
			}
		}

		agentProvider := provider
		if provider == "auto" {
			agentProvider = d.selectProviderForAgent(i)
		}

		subtask := description
		if i < len(subtasks) {
			subtask = subtasks[i]
		}

		plans = append(plans, &core.AgentPlan{
			AgentType:          agentType,
			AgentName:          info.name,
			Description:        info.description,
			SubtaskDescription: subtask,
			Provider:           agentProvider,
			Priority:           i,
			Capability:         core.Capability(info.capability),
		})
	}
	return plans, nil
}

// decomposeTask asks the router for one distinct subtask per agent role. A single
// agent gets the whole task (optionally framed by the task interpretation). Any LLM
// failure falls back to main_tasks-driven or interpretation-driven instructions rather
// than propagating an error (spec §9).
func (d *Delegator) decomposeTask(ctx context.Context, description string, agentTypes []string, provider string, analysis taskAnalysis) []string {
	if len(agentTypes) == 1 {
		if analysis.TaskInterpretation != "" {
			return []string{fmt.Sprintf("Execute task based on this interpretation: %s. Original Request: %s", analysis.TaskInterpretation, description)}
		}
		return []string{description}
	}

	if d.router != nil {
		if subtasks, ok := d.llmDecompose(ctx, description, agentTypes, analysis); ok {
			return subtasks
		}
	}

	return d.fallbackDecompose(description, agentTypes, analysis)
}

func (d *Delegator) llmDecompose(ctx context.Context, description string, agentTypes []string, analysis taskAnalysis) ([]string, bool) {
	var agentList strings.Builder
	for i, agent := range agentTypes {
		fmt.Fprintf(&agentList, "- %d. %s\n", i+1, agent)
	}

	var mainTasks strings.Builder
	for _, t := range analysis.MainTasks {
		mainTasks.WriteString("- " + t + "\n")
	}
	interpretation := analysis.TaskInterpretation
	if interpretation == "" {
		interpretation = "N/A"
	}

	prompt := fmt.Sprintf(`<role>
You are a task orchestrator decomposing work for a multi-agent team. Each agent
will work collaboratively, building upon others' contributions toward the final answer.
</role>

<context>
Original Task: %s

Task Interpretation: %s

Main Goals Identified:
%s
</context>

<available_agents>
%s
</available_agents>

<instructions>
Create a specific, actionable subtask for EACH agent listed above.

SUBTASK REQUIREMENTS:
1. Each subtask must be distinct and complementary to others
2. Use direct instructions: "Your goal is to..." or "Analyze..." or "Research..."
3. Reference the agent's expertise in the instruction
4. Include specific deliverables expected
5. Note any dependencies on other agents' work

COLLABORATION PROTOCOL:
- Agents work in sequence, each building on previous work
- If an agent cannot fully complete their subtask, the next agent continues
- Include context about what previous agents will provide
</instructions>

<output_format>
Return JSON with exactly %d subtasks:
{"subtasks": ["Subtask for agent 1: [specific instruction with deliverables]", "..."]}
</output_format>

<constraints>
- DO NOT repeat the original task verbatim
- Each subtask must add unique value
- Be specific about expected outputs
- Subtasks should be achievable independently but enhance each other
</constraints>`, description, interpretation, mainTasks.String(), agentList.String(), len(agentTypes))

	resp, err := d.router.Completion(ctx, llm.CompletionRequest{
		Model:          "auto",
		Messages:       []llm.Message{{Role: "user", Content: prompt}},
		ResponseFormat: "json_object",
	})
	if err != nil {
		d.logger.Warn("delegator: task decomposition failed", map[string]interface{}{"error": err.Error()})
		return nil, false
	}

	content := strings.TrimSpace(resp.Content)
	content = strings.ReplaceAll(content, "```json", "")
	content = strings.ReplaceAll(content, "```", "")

	var result struct {
		Subtasks []string `json:"subtasks"`
	}
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		d.logger.Warn("delegator: decomposition response unparsable", map[string]interface{}{"error": err.Error()})
		return nil, false
	}

	for len(result.Subtasks) < len(agentTypes) {
		result.Subtasks = append(result.Subtasks, fmt.Sprintf("Execute specific role duties for: %s", truncate(description, 100)))
	}
	return result.Subtasks[:len(agentTypes)], true
}

func (d *Delegator) fallbackDecompose(description string, agentTypes []string, analysis taskAnalysis) []string {
	interpretation := analysis.TaskInterpretation
	if interpretation == "" {
		interpretation = description
	}

	if len(analysis.MainTasks) >= len(agentTypes) {
		out := make([]string, len(agentTypes))
		for i := range agentTypes {
			out[i] = fmt.Sprintf("Focus on this aspect: %s. Context: %s", analysis.MainTasks[i], interpretation)
		}
		return out
	}

	out := make([]string, len(agentTypes))
	for i, agentType := range agentTypes {
		out[i] = fmt.Sprintf("Role: %s. Objective: Using your expertise, address: %s", strings.Title(agentType), interpretation)
	}
	return out
}

// determineStrategy picks single/debate/sequential (spec §4.3 and §9's decision to
// preserve both debate and non-debate paths without inferring debate from complexity
// alone).
func (d *Delegator) determineStrategy(agents []*core.AgentPlan, analysis taskAnalysis) core.ExecutionStrategy {
	switch {
	case len(agents) == 1:
		return core.StrategySingle
	case analysis.RequiresDebate:
		return core.StrategyDebate
	default:
		return core.StrategySequential
	}
}

func standardizeCapability(capability string) string {
	c := strings.ToLower(capability)
	switch {
	case strings.Contains(c, "research"):
		return "research"
	case strings.Contains(c, "code") || strings.Contains(c, "coding"):
		return "coding"
	case strings.Contains(c, "review"):
		return "review"
	default:
		return "analysis"
	}
}

// selectProviderForAgent round-robins across the configured cloud providers when
// provider=="auto" (spec §8 S2).
func (d *Delegator) selectProviderForAgent(index int) string {
	return d.cloudProviders[index%len(d.cloudProviders)]
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
