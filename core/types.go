package core

import "time"

// TaskStatus is one of the terminal or in-flight states a Task passes through.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskValidating TaskStatus = "validating"
	TaskDebating   TaskStatus = "debating"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
)

// IsTerminal reports whether s is one of the three terminal statuses.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// SubTaskStatus mirrors Task's lifecycle one level down.
type SubTaskStatus string

const (
	SubTaskPending    SubTaskStatus = "pending"
	SubTaskInProgress SubTaskStatus = "in_progress"
	SubTaskCompleted  SubTaskStatus = "completed"
	SubTaskFailed     SubTaskStatus = "failed"
)

// Capability is the executing role class for an agent. Dynamic role names carried in
// AgentPlan.AgentType/SubTask.AgentType are distinct from Capability: a task may plan an
// agent_type of "patent-examiner" that still executes under CapabilityResearch.
type Capability string

const (
	CapabilityResearch Capability = "research"
	CapabilityAnalysis Capability = "analysis"
	CapabilityCoding   Capability = "coding"
	CapabilityReview   Capability = "review"
)

// MinAgentsFloor and MaxAgentsCeiling bound the agent roster the Delegator may plan
// for any single task (spec §4.3, §5).
const (
	MinAgentsFloor   = 4
	MaxAgentsCeiling = 15
)

// ExecutionStrategy is the Delegator's chosen dispatch shape for a DelegationPlan.
type ExecutionStrategy string

const (
	StrategySingle     ExecutionStrategy = "single"
	StrategyParallel   ExecutionStrategy = "parallel"
	StrategySequential ExecutionStrategy = "sequential"
	StrategyDebate     ExecutionStrategy = "debate"
)

// DebatePhase is the current stage of a DebateState's round.
type DebatePhase string

const (
	PhaseProposal  DebatePhase = "proposal"
	PhaseCritique  DebatePhase = "critique"
	PhaseRebuttal  DebatePhase = "rebuttal"
	PhaseVoting    DebatePhase = "voting"
	PhaseJudgment  DebatePhase = "judgment"
	PhaseConverged DebatePhase = "converged"
)

// SupervisorDecision is the Supervisor's verdict on a completed SubTask.
type SupervisorDecision string

const (
	DecisionAccept SupervisorDecision = "ACCEPT"
	DecisionRework SupervisorDecision = "REWORK"
	DecisionReject SupervisorDecision = "REJECT"
)

// MemoryScope identifies the visibility tier a MemoryEntry belongs to.
type MemoryScope string

const (
	ScopeGlobal MemoryScope = "global"
	ScopeTask   MemoryScope = "task"
	ScopeAgent  MemoryScope = "agent"
)

// Task is the top-level unit of work submitted to the orchestrator (spec §3).
type Task struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Status      TaskStatus     `json:"status"`
	Provider    string         `json:"provider"`
	Context     map[string]any `json:"context,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	TokensUsed int     `json:"tokens_used"`
	AgentsCount int    `json:"agents_count"`
	Progress    float64 `json:"progress"`

	DebateState       *DebateState        `json:"debate_state,omitempty"`
	SubTasks          []*SubTask          `json:"subtasks,omitempty"`
	ValidationResults *ValidationOutcome  `json:"validation_results,omitempty"`
}

// SubTask is one agent's unit of work within a Task.
type SubTask struct {
	ID           string        `json:"id"`
	ParentTaskID string        `json:"parent_task_id"`
	Description  string        `json:"description"`
	AgentID      string        `json:"agent_id"`
	AgentType    string        `json:"agent_type"`
	Status       SubTaskStatus `json:"status"`
	Result       *AgentResult  `json:"result,omitempty"`
	Error        string        `json:"error,omitempty"`
	ReworkCount  int           `json:"rework_count"`
}

// AgentPlan is the Delegator's description of one agent to construct.
type AgentPlan struct {
	AgentType          string     `json:"agent_type"`
	AgentName          string     `json:"agent_name"`
	Description        string     `json:"description"`
	SubtaskDescription string     `json:"subtask_description"`
	Provider           string     `json:"provider"`
	Priority           int        `json:"priority"`
	Capability         Capability `json:"capability"`
}

// DelegationPlan is the Delegator's full output for one task.
type DelegationPlan struct {
	ExecutionStrategy  ExecutionStrategy `json:"execution_strategy"`
	Agents             []*AgentPlan      `json:"agents_needed"`
	RequiresDebate     bool              `json:"requires_debate"`
	ComplexityScore    float64           `json:"complexity_score"`
	TaskInterpretation string            `json:"task_interpretation"`
	MainTasksIdentified []string         `json:"main_tasks_identified"`
	ResearchApproach   string            `json:"research_approach"`
	Reasoning          string            `json:"reasoning"`
}

// AgentResult is the output of a single agent's process/proposal/critique/vote call.
type AgentResult struct {
	AgentID    string         `json:"agent_id"`
	TaskID     string         `json:"task_id"`
	Content    string         `json:"content"`
	Confidence float64        `json:"confidence"`
	Evidence   []string       `json:"evidence,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	TokensUsed int            `json:"tokens_used"`
	Error      string         `json:"error,omitempty"`
}

// Proposal is one agent's tagged entry in a debate round. One agent produces at most
// one proposal per round, so ProposalID == AgentID (spec §4.7).
type Proposal struct {
	Round      int      `json:"round"`
	AgentID    string   `json:"agent_id"`
	ProposalID string   `json:"proposal_id"`
	Content    string   `json:"content"`
	Confidence float64  `json:"confidence"`
	Evidence   []string `json:"evidence,omitempty"`
}

// Critique is one agent's structured evaluation of another's proposal.
type Critique struct {
	Round        int      `json:"round"`
	AgentID      string   `json:"agent_id"`
	ProposalID   string   `json:"proposal_id"`
	Strengths    []string `json:"strengths"`
	Weaknesses   []string `json:"weaknesses"`
	CounterEvidence []string `json:"counter_evidence,omitempty"`
	Score        float64  `json:"score"`
	Reasoning    string   `json:"reasoning"`
}

// Rebuttal is an agent's response to critiques of its own proposal.
type Rebuttal struct {
	Round      int    `json:"round"`
	AgentID    string `json:"agent_id"`
	ProposalID string `json:"proposal_id"`
	Content    string `json:"content"`
}

// DebateState tracks one task's multi-round debate among its agents.
type DebateState struct {
	TaskID    string      `json:"task_id"`
	Topic     string      `json:"topic"`
	Round     int         `json:"round"`
	MaxRounds int         `json:"max_rounds"`
	Phase     DebatePhase `json:"phase"`

	Proposals []*Proposal `json:"proposals"`
	Critiques []*Critique `json:"critiques"`
	Rebuttals []*Rebuttal `json:"rebuttals"`

	Votes  map[string]string  `json:"votes"`  // agent id -> proposal id
	Scores map[string]float64 `json:"scores"` // proposal id -> score

	Winner    string `json:"winner,omitempty"`
	Converged bool   `json:"converged"`
}

// MemoryEntry is one row written to the Memory Manager facade.
type MemoryEntry struct {
	ID         string         `json:"id"`
	Scope      MemoryScope    `json:"scope"`
	Namespace  string         `json:"namespace"`
	Content    string         `json:"content"`
	Embedding  []float32      `json:"embedding,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	TTLSeconds *int           `json:"ttl_seconds,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ReworkInstructions names the reason and focus areas a REWORK decision attaches.
type ReworkInstructions struct {
	Reason      string   `json:"reason"`
	FocusAreas  []string `json:"focus_areas"`
}

// SupervisorCritique is the Supervisor's verdict on one completed SubTask.
type SupervisorCritique struct {
	AgentID           string              `json:"agent_id"`
	AgentType         string              `json:"agent_type"`
	Score             float64             `json:"score"`
	Decision          SupervisorDecision  `json:"decision"`
	ReworkRequired    bool                `json:"rework_required"`
	ReworkInstructions *ReworkInstructions `json:"rework_instructions,omitempty"`
	Evaluation        map[string]any      `json:"evaluation,omitempty"`
}

// ValidationOutcome is the Quality Validator's verdict attached to a Task.
type ValidationOutcome struct {
	Passed      bool     `json:"passed"`
	Score       float64  `json:"score"`
	Issues      []string `json:"issues,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}
