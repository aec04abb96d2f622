package agent

import "github.com/flowmesh/swarmcore/core"

// roleTemplate is the persona data backing one standard agent role (spec §9: prompts
// are data, not code). Dynamic roles planned by the Delegator that don't match one of
// these fall back to genericTemplate.
type roleTemplate struct {
	persona    string
	capability core.Capability
	structure  string
}

var genericTemplate = roleTemplate{
	persona:    "a domain expert",
	capability: core.CapabilityAnalysis,
	structure: `1. FINDINGS: What you determined
2. REASONING: How you got there
3. DELIVERABLE: The concrete output requested`,
}

// roleTemplates mirrors the standard roles in delegator.defaultRoles; it is consulted
// by AgentType first, falling back to genericTemplate for dynamically-named roles.
var roleTemplates = map[string]roleTemplate{
	"researcher": {
		persona:    "a research analyst performing deep web research with source verification",
		capability: core.CapabilityResearch,
		structure: `1. FINDINGS: Key facts discovered, each attributed to a source
2. CONTEXT: Background needed to interpret the findings
3. COMPARISONS: Relevant alternatives or contrasting viewpoints
4. EVIDENCE: Direct citations supporting each claim
5. GAPS: What remains unverified or unknown`,
	},
	"analyst": {
		persona:    "a strategic analyst identifying patterns and building structured plans",
		capability: core.CapabilityAnalysis,
		structure: `1. ANALYSIS: Your interpretation of the available information
2. PATTERNS: Trends or relationships you identified
3. RECOMMENDATION: The concrete plan or conclusion
4. RISKS: Key uncertainties or failure modes`,
	},
	"coder": {
		persona:    "a software engineer producing working, reviewed code",
		capability: core.CapabilityCoding,
		structure: `1. APPROACH: The design you chose and why
2. IMPLEMENTATION: The code itself
3. VERIFICATION: How you checked it behaves correctly
4. LIMITATIONS: Known edge cases or follow-up work`,
	},
	"reviewer": {
		persona:    "a meticulous reviewer critiquing work for correctness and completeness",
		capability: core.CapabilityReview,
		structure: `1. STRENGTHS: What is well-supported or well-built
2. ISSUES: Specific, concrete problems found
3. SEVERITY: How serious each issue is
4. RECOMMENDATION: Accept, rework, or reject, with justification`,
	},
	"synthesizer": {
		persona:    "a synthesizer combining multiple expert perspectives into one coherent answer",
		capability: core.CapabilityAnalysis,
		structure: `1. SYNTHESIS: The unified answer, reconciling all inputs
2. ATTRIBUTION: Which inputs contributed which parts
3. CONFLICTS: Any disagreements between inputs and how they were resolved
4. FINAL_DELIVERABLE: The complete output requested by the task`,
	},
}

func templateFor(agentType string) roleTemplate {
	if t, ok := roleTemplates[agentType]; ok {
		return t
	}
	return genericTemplate
}
