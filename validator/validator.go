// Package validator implements the Quality Validator: a stateless, pre-delivery check
// on an agent or synthesis output's length, citations, truncation, and shallow phrasing
// (spec §4.9).
package validator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/flowmesh/swarmcore/core"
)

// minLengths are the minimum word counts expected per task type, below 60% of which an
// output is flagged as too short rather than merely brief (spec §4.9).
var minLengths = map[string]int{
	"research":  600,
	"analysis":  500,
	"code":      200,
	"review":    300,
	"synthesis": 800,
	"default":   400,
}

// minCitations are the minimum distinct "[n]"-style citation markers expected when
// sources were actually made available to the agent.
var minCitations = map[string]int{
	"research": 3,
	"analysis": 2,
	"default":  0,
}

var shallowPhrases = []string{
	"it depends",
	"there are many factors",
	"in general",
	"various approaches",
	"do your research",
	"consult an expert",
}

var citationPattern = regexp.MustCompile(`\[(\d+)\]`)

// severity classifies a single Issue's impact on the pass/fail decision and score.
type severity string

const (
	severityLow    severity = "low"
	severityMedium severity = "medium"
	severityHigh   severity = "high"
)

// Issue is one detected quality problem, carrying an optional fix suggestion.
type Issue struct {
	Message    string
	Severity   severity
	Suggestion string
}

// Validator checks agent output quality before it reaches a Task's final result or a
// rework decision (spec §4.9). It holds no state and is safe for concurrent use.
type Validator struct{}

// New constructs a Validator.
func New() *Validator {
	return &Validator{}
}

// Validate runs all quality checks against content and returns the resulting
// ValidationOutcome. taskType selects the length/citation thresholds (falling back to
// "default" when unrecognized); sourcesProvided is the number of sources the agent was
// given, which gates whether the citation check applies at all.
func (v *Validator) Validate(content, taskType string, sourcesProvided int) *core.ValidationOutcome {
	var issues []Issue

	issues = append(issues, checkLength(content, taskType)...)
	issues = append(issues, checkCitations(content, taskType, sourcesProvided)...)
	issues = append(issues, checkTruncation(content)...)
	issues = append(issues, checkShallowness(content)...)
	issues = append(issues, checkStructure(content, taskType)...)

	var high, medium, low int
	var messages, suggestions []string
	for _, issue := range issues {
		switch issue.Severity {
		case severityHigh:
			high++
		case severityMedium:
			medium++
		case severityLow:
			low++
		}
		messages = append(messages, fmt.Sprintf("[%s] %s", issue.Severity, issue.Message))
		if issue.Suggestion != "" {
			suggestions = append(suggestions, issue.Suggestion)
		}
	}

	score := 100 - high*30 - medium*15 - low*5
	if score < 0 {
		score = 0
	}
	passed := high == 0 && score >= 50

	return &core.ValidationOutcome{
		Passed:      passed,
		Score:       float64(score) / 100.0,
		Issues:      messages,
		Suggestions: suggestions,
	}
}

// ReworkFeedback renders a ValidationOutcome's issues and suggestions into the prompt
// text fed back to an agent on REWORK (spec §4.9, mirrors the Supervisor's own
// instructions-as-prompt-text pattern).
func (v *Validator) ReworkFeedback(outcome *core.ValidationOutcome) string {
	if outcome == nil || outcome.Passed {
		return ""
	}
	var b strings.Builder
	b.WriteString("Your previous output needs improvement:\n")
	for _, issue := range outcome.Issues {
		b.WriteString("- ")
		b.WriteString(issue)
		b.WriteString("\n")
	}
	for _, s := range outcome.Suggestions {
		b.WriteString("  -> ")
		b.WriteString(s)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func minLengthFor(taskType string) int {
	if n, ok := minLengths[taskType]; ok {
		return n
	}
	return minLengths["default"]
}

func checkLength(content, taskType string) []Issue {
	min := minLengthFor(taskType)
	wordCount := len(strings.Fields(content))

	switch {
	case wordCount < int(float64(min)*0.6):
		return []Issue{{
			Message:    fmt.Sprintf("output too short: %d words (expected ~%d+)", wordCount, min),
			Severity:   severityHigh,
			Suggestion: "rework with more depth and detail",
		}}
	case wordCount < min:
		return []Issue{{
			Message:  fmt.Sprintf("output may be brief: %d words (recommended %d+)", wordCount, min),
			Severity: severityLow,
		}}
	}
	return nil
}

func checkCitations(content, taskType string, sourcesProvided int) []Issue {
	if sourcesProvided <= 0 {
		return nil
	}

	seen := make(map[string]bool)
	for _, m := range citationPattern.FindAllStringSubmatch(content, -1) {
		seen[m[1]] = true
	}

	min, ok := minCitations[taskType]
	if !ok {
		min = minCitations["default"]
	}
	if min > 0 && len(seen) < min {
		return []Issue{{
			Message:    fmt.Sprintf("insufficient citations: %d found, expected %d+", len(seen), min),
			Severity:   severityMedium,
			Suggestion: "include more source citations [1], [2], etc.",
		}}
	}
	return nil
}

func checkTruncation(content string) []Issue {
	trimmed := strings.TrimRight(content, " \t\n\r")
	if trimmed == "" {
		return nil
	}

	tail := trimmed
	if len(tail) > 100 {
		tail = tail[len(tail)-100:]
	}
	lastByte := trimmed[len(trimmed)-1]

	truncated := strings.HasSuffix(trimmed, "...") ||
		strings.HasSuffix(trimmed, "…") ||
		(strings.Contains(strings.ToLower(tail), "continue") && !strings.ContainsRune(".!?", rune(lastByte))) ||
		(len(content) > 100 && !strings.ContainsRune(".!?:;])", rune(lastByte)))

	if truncated {
		return []Issue{{
			Message:    "output appears truncated (incomplete ending)",
			Severity:   severityHigh,
			Suggestion: "continue generation or increase max_tokens",
		}}
	}
	return nil
}

func checkShallowness(content string) []Issue {
	lower := strings.ToLower(content)
	count := 0
	for _, phrase := range shallowPhrases {
		if strings.Contains(lower, phrase) {
			count++
		}
	}
	if count >= 3 {
		return []Issue{{
			Message:    fmt.Sprintf("output contains %d shallow phrases", count),
			Severity:   severityMedium,
			Suggestion: "replace generic phrases with specific analysis",
		}}
	}
	return nil
}

func checkStructure(content, taskType string) []Issue {
	switch taskType {
	case "research", "analysis", "synthesis":
	default:
		return nil
	}

	lower := strings.ToLower(content)
	expected := []string{"summary", "analysis", "recommendation"}
	found := 0
	for _, s := range expected {
		if strings.Contains(lower, s) {
			found++
		}
	}
	if found < 2 {
		return []Issue{{
			Message:    "missing expected sections (summary/analysis/recommendations)",
			Severity:   severityLow,
			Suggestion: "add structured sections for clarity",
		}}
	}
	return nil
}
