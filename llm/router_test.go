package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveModel(t *testing.T) {
	cases := []struct {
		name         string
		model        string
		wantProvider string
		wantVendor   string
	}{
		{"empty is auto", "", "auto", ""},
		{"explicit auto", "auto", "auto", ""},
		{"bare provider name", "anthropic", "anthropic", ""},
		{"legacy alias", "claude-sonnet", "anthropic", ""},
		{"already prefixed", "openai/gpt-4o-mini", "openai", "gpt-4o-mini"},
		{"unknown bare model falls to auto", "some-custom-model", "auto", "some-custom-model"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			provider, vendorModel := resolveModel(tc.model)
			assert.Equal(t, tc.wantProvider, provider)
			assert.Equal(t, tc.wantVendor, vendorModel)
		})
	}
}

func TestRouter_EstimateTokens_FallsBackWithoutEncoder(t *testing.T) {
	r := &Router{encoder: nil}
	assert.Greater(t, r.EstimateTokens("hello world"), 0)
}
