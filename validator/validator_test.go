package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func repeatWords(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = "word"
	}
	return strings.Join(words, " ") + "."
}

func TestValidate_TooShortFailsWithHighSeverity(t *testing.T) {
	v := New()
	outcome := v.Validate(repeatWords(10), "research", 0)

	require.False(t, outcome.Passed)
	assert.Contains(t, strings.Join(outcome.Issues, " "), "too short")
}

func TestValidate_LongWellFormedOutputPasses(t *testing.T) {
	v := New()
	content := repeatWords(700) + " Summary: this covers the analysis and recommendations in depth."
	outcome := v.Validate(content, "research", 0)

	assert.True(t, outcome.Passed)
	assert.GreaterOrEqual(t, outcome.Score, 0.5)
}

func TestValidate_InsufficientCitationsFlagged(t *testing.T) {
	v := New()
	content := repeatWords(700) + " summary analysis recommendation [1]"
	outcome := v.Validate(content, "research", 5)

	assert.Contains(t, strings.Join(outcome.Issues, " "), "insufficient citations")
}

func TestValidate_CitationCheckSkippedWithoutSources(t *testing.T) {
	v := New()
	content := repeatWords(700) + " summary analysis recommendation"
	outcome := v.Validate(content, "research", 0)

	for _, issue := range outcome.Issues {
		assert.NotContains(t, issue, "citations")
	}
}

func TestValidate_TruncatedOutputFlagged(t *testing.T) {
	v := New()
	content := repeatWords(700) + " summary analysis recommendation and then it just stops and keeps going without ending properly no punctuation at all here we go"
	outcome := v.Validate(content, "research", 0)

	assert.Contains(t, strings.Join(outcome.Issues, " "), "truncated")
	assert.False(t, outcome.Passed)
}

func TestValidate_ShallowPhrasesFlagged(t *testing.T) {
	v := New()
	content := repeatWords(700) + " It depends. There are many factors. In general this varies."
	outcome := v.Validate(content, "default", 0)

	assert.Contains(t, strings.Join(outcome.Issues, " "), "shallow phrases")
}

func TestReworkFeedback_EmptyWhenPassed(t *testing.T) {
	v := New()
	outcome := v.Validate(repeatWords(700)+" summary analysis recommendation.", "research", 0)
	require.True(t, outcome.Passed)
	assert.Empty(t, v.ReworkFeedback(outcome))
}

func TestReworkFeedback_RendersIssuesAndSuggestions(t *testing.T) {
	v := New()
	outcome := v.Validate(repeatWords(10), "research", 0)
	feedback := v.ReworkFeedback(outcome)

	assert.Contains(t, feedback, "needs improvement")
	assert.Contains(t, feedback, "rework with more depth")
}
