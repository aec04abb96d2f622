package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/swarmcore/core"
)

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := New(context.Background(), Config{ServiceName: "swarmcore-test", Development: true}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	return p
}

func TestNew_DevelopmentModeUsesStdoutExporter(t *testing.T) {
	p := newTestProvider(t)
	assert.NotNil(t, p.tracer)
	assert.NotNil(t, p.meter)
}

func TestStartSpan_ReturnsUsableSpan(t *testing.T) {
	p := newTestProvider(t)

	ctx, span := p.StartSpan(context.Background(), "orchestrator.run_lifecycle")
	assert.NotNil(t, ctx)
	require.NotNil(t, span)

	span.SetAttribute("task_id", "t-1")
	span.RecordError(errors.New("boom"))
	span.End()
}

func TestRecordMetric_CachesInstrumentsByName(t *testing.T) {
	p := newTestProvider(t)

	p.RecordMetric("llm.provider.auto_selected", 1, map[string]string{"provider": "anthropic"})
	p.RecordMetric("llm.provider.auto_selected", 1, map[string]string{"provider": "openai"})
	assert.Len(t, p.counters, 1)

	p.RecordMetric("orchestrator.task.duration_ms", 42.5, map[string]string{"status": "completed"})
	assert.Len(t, p.histograms, 1)
}

func TestIsHistogramMetric(t *testing.T) {
	assert.True(t, isHistogramMetric("llm.completion.tokens"))
	assert.True(t, isHistogramMetric("orchestrator.task.duration_ms"))
	assert.True(t, isHistogramMetric("debate.round.latency"))
	assert.False(t, isHistogramMetric("llm.provider.auto_selected"))
	assert.False(t, isHistogramMetric("api.request.count"))
}

func TestProvider_SatisfiesCoreTelemetry(t *testing.T) {
	var _ core.Telemetry = (*Provider)(nil)
}
