// Package orchestrator implements the Orchestrator: the top-level task lifecycle
// driving delegation, parallel agent execution, supervised rework, validation, and
// synthesis into one final report (spec §4.8).
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/flowmesh/swarmcore/agent"
	"github.com/flowmesh/swarmcore/core"
	"github.com/flowmesh/swarmcore/debate"
	"github.com/flowmesh/swarmcore/delegator"
	"github.com/flowmesh/swarmcore/llm"
	"github.com/flowmesh/swarmcore/memory"
	"github.com/flowmesh/swarmcore/queryexpander"
	"github.com/flowmesh/swarmcore/supervisor"
	"github.com/flowmesh/swarmcore/tools"
	"github.com/flowmesh/swarmcore/validator"
)

// Orchestrator drives one Task from creation through a final synthesized report,
// checkpointing progress to the Memory Manager at every step (spec §4.8).
type Orchestrator struct {
	router        *llm.Router
	memory        *memory.Manager
	toolRegistry  *tools.Registry
	delegator     *delegator.Delegator
	queryExpander *queryexpander.Expander
	validator     *validator.Validator
	config        core.OrchestrationConfig
	logger        core.Logger
	telemetry     core.Telemetry

	supervisorProvider string
}

// New constructs an Orchestrator. supervisorProvider is stored on the Orchestrator and
// defaults to "google" when empty; it is not passed to the per-task Supervisor, which
// sends its own calls to the "google" model.
func New(
	router *llm.Router,
	mgr *memory.Manager,
	toolRegistry *tools.Registry,
	cloudProviders []string,
	config core.OrchestrationConfig,
	supervisorProvider string,
	logger core.Logger,
	telemetry core.Telemetry,
) *Orchestrator {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if telemetry == nil {
		telemetry = &core.NoOpTelemetry{}
	}
	if supervisorProvider == "" {
		supervisorProvider = "google"
	}
	return &Orchestrator{
		router:             router,
		memory:              mgr,
		toolRegistry:        toolRegistry,
		delegator:           delegator.New(router, logger, cloudProviders),
		queryExpander:       queryexpander.New(router, logger),
		validator:           validator.New(),
		config:              config,
		supervisorProvider:  supervisorProvider,
		logger:              logger,
		telemetry:           telemetry,
	}
}

// ExpandQuery runs the Query Expander standalone, for the POST /api/tasks response
// shape that returns the expansion alongside the created task (spec §6).
func (o *Orchestrator) ExpandQuery(ctx context.Context, query string) *queryexpander.Expansion {
	return o.queryExpander.Expand(ctx, query)
}

// CreateTask builds a new, pending Task. It does not execute it; callers invoke
// ExecuteTask separately (typically in its own goroutine) so the HTTP layer can return
// the task id immediately (spec §6).
func (o *Orchestrator) CreateTask(description, provider string, context map[string]any) *core.Task {
	now := time.Now()
	return &core.Task{
		ID:          uuid.New().String(),
		Description: description,
		Provider:    provider,
		Status:      core.TaskPending,
		Context:     context,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// taskAgents bundles a materialized roster together with the SubTask records the
// Orchestrator tracks per agent across the lifecycle.
type taskAgents struct {
	agents   []*agent.Agent
	subtasks []*core.SubTask
}

// ExecuteTask runs task's full lifecycle to completion (or failure), checkpointing
// after every status/progress change (spec §4.8). It never returns an error: failures
// are recorded onto task.Status/task.Error so the caller (normally a detached
// goroutine) has nothing further to do.
func (o *Orchestrator) ExecuteTask(ctx context.Context, task *core.Task) {
	ctx, span := o.telemetry.StartSpan(ctx, "orchestrator.execute_task")
	span.SetAttribute("task_id", task.ID)
	span.SetAttribute("provider", task.Provider)
	start := time.Now()
	defer span.End()

	if err := o.runLifecycle(ctx, task); err != nil {
		if !recordLifecycleFailure(task, err) {
			// Cancellation raced the in-flight work and won (spec §5): the caller
			// already transitioned the task and torn down its registry entry, so
			// runLifecycle's error (almost certainly ctx.Err()) is not a failure to
			// report.
			o.telemetry.RecordMetric("orchestrator.task.cancelled", 1, map[string]string{"provider": task.Provider})
			return
		}
		span.RecordError(err)
		o.telemetry.RecordMetric("orchestrator.task.failed", 1, map[string]string{"provider": task.Provider})
		o.telemetry.RecordMetric("orchestrator.task.duration_ms", float64(time.Since(start).Milliseconds()), map[string]string{"provider": task.Provider, "status": "failed"})
		o.checkpoint(ctx, task)
		o.logger.Error("orchestrator: task failed", map[string]interface{}{"task_id": task.ID, "error": err.Error()})
		return
	}
	o.telemetry.RecordMetric("orchestrator.task.completed", 1, map[string]string{"provider": task.Provider})
	o.telemetry.RecordMetric("orchestrator.task.duration_ms", float64(time.Since(start).Milliseconds()), map[string]string{"provider": task.Provider, "status": "completed"})
}

// recordLifecycleFailure applies err onto task's Status/Error unless task was already
// cancelled out from under the running lifecycle, in which case it leaves the task
// alone and reports false so the caller skips the failure checkpoint/log.
func recordLifecycleFailure(task *core.Task, err error) bool {
	if task.Status == core.TaskCancelled {
		return false
	}
	task.Status = core.TaskFailed
	task.Error = err.Error()
	return true
}

func (o *Orchestrator) runLifecycle(ctx context.Context, task *core.Task) error {
	task.Status = core.TaskInProgress
	o.checkpoint(ctx, task)

	plan, err := o.delegator.CreateDelegationPlan(ctx, task.Description, task.Provider)
	if err != nil {
		return core.NewTaskError("orchestrator.runLifecycle", core.KindFatalPlan, task.ID, err)
	}
	if task.Context == nil {
		task.Context = make(map[string]any)
	}
	task.Context["delegation_plan"] = plan
	task.Context["execution_strategy"] = string(plan.ExecutionStrategy)
	o.checkpoint(ctx, task)

	ta := o.materializeAgents(plan, task.ID)
	task.SubTasks = ta.subtasks
	task.AgentsCount = len(ta.agents)
	o.checkpoint(ctx, task)

	o.memory.Write(ctx, &core.MemoryEntry{
		Scope:     core.ScopeTask,
		Namespace: "task:" + task.ID,
		Content:   fmt.Sprintf("Task: %s\nProvider: %s\nSubtasks: %d", task.Description, task.Provider, len(ta.subtasks)),
		Metadata:  map[string]any{"task_id": task.ID, "provider": task.Provider},
	})

	var results []*core.AgentResult

	if plan.ExecutionStrategy == core.StrategyDebate {
		task.Status = core.TaskDebating
		o.checkpoint(ctx, task)

		state, err := debate.New(ta.agents, debate.NewConfig(o.config), o.logger).Run(ctx, task.ID, task.Description)
		if err != nil {
			return err
		}
		task.DebateState = state
		results = debate.ResultsFromState(state, task.ID)
		for _, r := range results {
			o.logAgentResult(ctx, r, task.ID)
		}
	} else {
		results, err = o.executeAgents(ctx, task, ta)
		if err != nil {
			return err
		}
		task.Progress = 0.5
		o.checkpoint(ctx, task)

		supervisorAgent := supervisor.New(o.router, o.logger, o.config.QualityThreshold, o.config.MaxReworkAttempts)
		critiques := o.critiqueWith(ctx, supervisorAgent, task, ta.agents, results)
		task.Progress = 0.6
		o.checkpoint(ctx, task)

		results, critiques = o.reworkLoop(ctx, task, ta, results, critiques, supervisorAgent)
		task.Progress = 0.7
		o.checkpoint(ctx, task)

		task.Status = core.TaskValidating
		task.ValidationResults = o.validateResults(results, task.Description)
		task.Progress = 0.9
		o.checkpoint(ctx, task)

		_ = critiques // retained on task.Context below for transparency
		task.Context["supervisor_critiques"] = critiques
	}

	finalContent := o.synthesize(ctx, task, ta.agents, results)

	agentOutputs := make(map[string]string, len(results))
	agentIDs := make([]string, 0, len(results))
	for _, r := range results {
		agentOutputs[r.AgentID] = r.Content
		agentIDs = append(agentIDs, r.AgentID)
	}
	task.Result = map[string]any{
		"content":       finalContent,
		"agents":        agentIDs,
		"agent_outputs": agentOutputs,
		"delegation_plan": plan,
	}
	if task.ValidationResults != nil {
		task.Result["validation_summary"] = validationSummary(task.ValidationResults)
	}

	task.Status = core.TaskCompleted
	task.AgentsCount = len(results)
	task.Progress = 1.0
	now := time.Now()
	task.CompletedAt = &now
	o.checkpoint(ctx, task)
	return nil
}

// materializeAgents builds one agent.Agent per planned AgentPlan and a matching SubTask
// record (spec §4.5 materialization, §4.8 step 2-3).
func (o *Orchestrator) materializeAgents(plan *core.DelegationPlan, taskID string) taskAgents {
	agents := make([]*agent.Agent, 0, len(plan.Agents))
	subtasks := make([]*core.SubTask, 0, len(plan.Agents))

	for _, ap := range plan.Agents {
		a := agent.New(ap, o.router, o.toolRegistry, o.memory, o.logger)
		agents = append(agents, a)
		subtasks = append(subtasks, &core.SubTask{
			ID:           uuid.New().String(),
			ParentTaskID: taskID,
			Description:  ap.SubtaskDescription,
			AgentID:      a.ID,
			AgentType:    a.AgentType,
			Status:       core.SubTaskPending,
		})
	}
	return taskAgents{agents: agents, subtasks: subtasks}
}

// executeAgents runs every agent's Process call concurrently (spec §4.8 step 4).
func (o *Orchestrator) executeAgents(ctx context.Context, task *core.Task, ta taskAgents) ([]*core.AgentResult, error) {
	type indexed struct {
		index  int
		result *core.AgentResult
	}

	p := pool.NewWithResults[indexed]().WithContext(ctx).WithCancelOnError()
	for i, a := range ta.agents {
		i, a := i, a
		sub := ta.subtasks[i]
		p.Go(func(ctx context.Context) (indexed, error) {
			sub.Status = core.SubTaskInProgress
			result, err := a.Process(ctx, task, sub.Description, nil)
			if err != nil {
				return indexed{}, err
			}
			sub.Status = core.SubTaskCompleted
			sub.Result = result
			o.logAgentResult(ctx, result, task.ID)
			return indexed{index: i, result: result}, nil
		})
	}

	raw, err := p.Wait()
	if err != nil {
		return nil, core.NewTaskError("orchestrator.executeAgents", core.KindLLMCallFailed, task.ID, err)
	}

	sort.Slice(raw, func(i, j int) bool { return raw[i].index < raw[j].index })
	results := make([]*core.AgentResult, len(raw))
	for i, r := range raw {
		results[i] = r.result
	}
	return results, nil
}

// critiqueWith runs sup's critique concurrently over every agent's output, sharing one
// Supervisor instance across the initial pass and every rework re-critique so its
// per-agent rework-count bookkeeping stays consistent (spec §4.8 step 4, §4.6).
func (o *Orchestrator) critiqueWith(ctx context.Context, sup *supervisor.Supervisor, task *core.Task, agents []*agent.Agent, results []*core.AgentResult) []*core.SupervisorCritique {
	type indexed struct {
		index    int
		critique *core.SupervisorCritique
	}

	p := pool.NewWithResults[indexed]().WithContext(ctx).WithCancelOnError()
	for i := range results {
		i := i
		a := agents[i]
		r := results[i]
		p.Go(func(ctx context.Context) (indexed, error) {
			c, err := sup.Critique(ctx, a.ID, a.AgentType, task.Description, r.Content, "")
			if err != nil {
				return indexed{}, err
			}
			return indexed{index: i, critique: c}, nil
		})
	}

	raw, err := p.Wait()
	if err != nil {
		o.logger.Error("orchestrator: supervisor critique failed", map[string]interface{}{"task_id": task.ID, "error": err.Error()})
		out := make([]*core.SupervisorCritique, len(results))
		for i := range out {
			out[i] = &core.SupervisorCritique{AgentID: agents[i].ID, Decision: core.DecisionAccept, Score: o.config.QualityThreshold}
		}
		return out
	}

	sort.Slice(raw, func(i, j int) bool { return raw[i].index < raw[j].index })
	critiques := make([]*core.SupervisorCritique, len(raw))
	for i, r := range raw {
		critiques[i] = r.critique
	}
	return critiques
}

// reworkLoop re-dispatches every REWORK/REJECT-flagged agent up to MaxReworkAttempts
// times, re-critiquing each rework before the next pass (spec §4.6, §4.8 step 4.5).
// Once the bound is exceeded, the Supervisor's own forced-ACCEPT behavior (supervisor.go)
// takes over and the loop naturally empties.
func (o *Orchestrator) reworkLoop(
	ctx context.Context,
	task *core.Task,
	ta taskAgents,
	results []*core.AgentResult,
	critiques []*core.SupervisorCritique,
	sup *supervisor.Supervisor,
) ([]*core.AgentResult, []*core.SupervisorCritique) {
	for attempt := 0; attempt < o.config.MaxReworkAttempts; attempt++ {
		var toRework []int
		for i, c := range critiques {
			if c.ReworkRequired || c.Decision == core.DecisionReject {
				toRework = append(toRework, i)
			}
		}
		if len(toRework) == 0 {
			break
		}

		type indexed struct {
			index  int
			result *core.AgentResult
		}
		p := pool.NewWithResults[indexed]().WithContext(ctx).WithCancelOnError()
		for _, idx := range toRework {
			idx := idx
			a := ta.agents[idx]
			sub := ta.subtasks[idx]
			critique := critiques[idx]
			p.Go(func(ctx context.Context) (indexed, error) {
				instructions := reworkInstructionsFor(critique)
				newResult, err := a.Process(ctx, task, sub.Description, instructions)
				if err != nil {
					return indexed{}, err
				}
				sub.Result = newResult
				sub.ReworkCount++
				o.logAgentResult(ctx, newResult, task.ID)
				return indexed{index: idx, result: newResult}, nil
			})
		}

		raw, err := p.Wait()
		if err != nil {
			o.logger.Error("orchestrator: rework pass failed", map[string]interface{}{"task_id": task.ID, "error": err.Error()})
			break
		}
		for _, r := range raw {
			results[r.index] = r.result
		}

		reworked := make([]*agent.Agent, 0, len(raw))
		reworkedResults := make([]*core.AgentResult, 0, len(raw))
		for _, r := range raw {
			reworked = append(reworked, ta.agents[r.index])
			reworkedResults = append(reworkedResults, r.result)
		}
		newCritiques := o.critiqueWith(ctx, sup, task, reworked, reworkedResults)
		for i, r := range raw {
			critiques[r.index] = newCritiques[i]
		}

		task.Progress = 0.6 + 0.1*float64(attempt+1)/float64(o.config.MaxReworkAttempts)
		o.checkpoint(ctx, task)
	}
	return results, critiques
}

func reworkInstructionsFor(c *core.SupervisorCritique) *core.ReworkInstructions {
	reason := fmt.Sprintf("supervisor scored this output %.1f/10 and requested %s", c.Score, c.Decision)
	var focus []string
	if c.ReworkInstructions != nil {
		reason = c.ReworkInstructions.Reason
		focus = c.ReworkInstructions.FocusAreas
	}
	return &core.ReworkInstructions{Reason: reason, FocusAreas: focus}
}

// validateResults applies the Quality Validator to the concatenation of every agent's
// final output (spec §4.9).
func (o *Orchestrator) validateResults(results []*core.AgentResult, taskDescription string) *core.ValidationOutcome {
	var combined string
	for _, r := range results {
		combined += r.Content + "\n\n"
	}
	return o.validator.Validate(combined, "synthesis", 0)
}

func validationSummary(v *core.ValidationOutcome) string {
	if v.Passed {
		return fmt.Sprintf("validation passed, score %.2f", v.Score)
	}
	return fmt.Sprintf("validation flagged %d issue(s), score %.2f", len(v.Issues), v.Score)
}

// synthesize asks one agent (preferring an AgentType of "synthesizer", falling back to
// the last agent) to contract every contribution into one final, user-facing answer
// (spec §4.8 step 6).
func (o *Orchestrator) synthesize(ctx context.Context, task *core.Task, agents []*agent.Agent, results []*core.AgentResult) string {
	if len(agents) == 0 || len(results) == 0 {
		return ""
	}

	synthesizerIdx := len(agents) - 1
	for i, a := range agents {
		if a.AgentType == "synthesizer" {
			synthesizerIdx = i
			break
		}
	}
	synthesizer := agents[synthesizerIdx]

	prompt := synthesisPrompt(task, agents, results)
	result, err := synthesizer.Process(ctx, &core.Task{ID: task.ID, Description: prompt}, prompt, nil)
	if err != nil {
		o.logger.Warn("orchestrator: synthesis failed, falling back to concatenation", map[string]interface{}{"task_id": task.ID, "error": err.Error()})
		return concatenateResults(agents, results)
	}
	return result.Content
}

func synthesisPrompt(task *core.Task, agents []*agent.Agent, results []*core.AgentResult) string {
	var contributions string
	for i, r := range results {
		agentType := "agent"
		if i < len(agents) {
			agentType = agents[i].AgentType
		}
		contributions += fmt.Sprintf("### %s Agent Contribution:\n%s\n\n", agentType, clipText(r.Content, 1500))
	}

	validationSummaryText := "No validation performed"
	if task.ValidationResults != nil {
		validationSummaryText = validationSummary(task.ValidationResults)
	}

	return fmt.Sprintf(`<role>
You are creating the FINAL ANSWER for a multi-agent task. Your output is presented
directly to the user.
</role>

<original_task>
%s
</original_task>

<agent_contributions>
%s
</agent_contributions>

<validation_summary>
%s
</validation_summary>

<synthesis_protocol>
PHASE 1: Extract each contribution's atomic claims, steps, and recommendations, with
provenance back to the contributing agent.
PHASE 2: Detect conflicts between contributions; prefer claims consistent with the
validation summary.
PHASE 3: Contract the accepted claims into one coherent, non-redundant response that
directly answers the task.
PHASE 4: If critical gaps remain, state them and propose concrete next steps.
</synthesis_protocol>

<output_requirements>
Structure: summary, main answer, steps/considerations. Address validation concerns
explicitly. Be specific and actionable.

Prefix with: FINAL ANSWER
</output_requirements>`, task.Description, contributions, validationSummaryText)
}

func concatenateResults(agents []*agent.Agent, results []*core.AgentResult) string {
	var out string
	for i, r := range results {
		agentType := "agent"
		if i < len(agents) {
			agentType = agents[i].AgentType
		}
		out += fmt.Sprintf("## %s Agent Output\n\n%s\n\n", agentType, r.Content)
	}
	return out
}

func clipText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// logAgentResult persists one agent's output to both task- and agent-scoped memory, for
// UI visibility into per-agent progress (spec §4.8, mirrors the teacher's checkpoint-on-
// every-step-update pattern).
func (o *Orchestrator) logAgentResult(ctx context.Context, result *core.AgentResult, taskID string) {
	snippet := clipText(result.Content, 2000)
	metadata := map[string]any{
		"agent_id":   result.AgentID,
		"task_id":    taskID,
		"confidence": result.Confidence,
		"evidence":   result.Evidence,
	}

	if err := o.memory.Write(ctx, &core.MemoryEntry{
		Scope:     core.ScopeTask,
		Namespace: "task:" + taskID,
		Content:   fmt.Sprintf("Agent %s output:\n%s", result.AgentID, snippet),
		Metadata:  metadata,
	}); err != nil {
		o.logger.Warn("orchestrator: failed to log agent result to task memory", map[string]interface{}{"agent_id": result.AgentID, "error": err.Error()})
	}

	if err := o.memory.Write(ctx, &core.MemoryEntry{
		Scope:     core.ScopeAgent,
		Namespace: "agent:" + result.AgentID,
		Content:   fmt.Sprintf("Task %s output:\n%s", taskID, snippet),
		Metadata:  metadata,
	}); err != nil {
		o.logger.Warn("orchestrator: failed to log agent result to agent memory", map[string]interface{}{"agent_id": result.AgentID, "error": err.Error()})
	}
}

// checkpoint persists task's current state and publishes a progress event on its
// stream. Checkpoint failures are logged, never fatal (spec §4.8, §9).
func (o *Orchestrator) checkpoint(ctx context.Context, task *core.Task) {
	task.UpdatedAt = time.Now()
	if err := o.memory.SaveTask(ctx, task); err != nil {
		o.logger.Warn("orchestrator: checkpoint failed", map[string]interface{}{"task_id": task.ID, "error": err.Error()})
	}
	if err := o.memory.Publish(ctx, task.ID, map[string]any{
		"type":     "status",
		"status":   string(task.Status),
		"progress": task.Progress,
	}); err != nil {
		o.logger.Warn("orchestrator: progress publish failed", map[string]interface{}{"task_id": task.ID, "error": err.Error()})
	}
}
