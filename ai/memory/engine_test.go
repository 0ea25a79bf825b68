package memory

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/dolphin/ai/metrics"
	"github.com/hrygo/dolphin/store"
)

func TestProcessTurnLogsAndReplies(t *testing.T) {
	factStore := newFakeFactStore()
	llm := &fakeLLM{composeResponse: "Hello there!"}
	engine := NewEngine(factStore, llm, &fakeEmbedder{}, nil, nil)
	ctx := context.Background()

	result, err := engine.ProcessTurn(ctx, "s1", "hi")
	require.NoError(t, err)
	require.NoError(t, engine.Shutdown(ctx))
	assert.Equal(t, "Hello there!", result.Reply)

	turns, err := engine.RecentTurns(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, store.TurnRoleUser, turns[0].Role)
	assert.Equal(t, "hi", turns[0].Content)
	assert.Equal(t, store.TurnRoleAssistant, turns[1].Role)
	assert.Equal(t, "Hello there!", turns[1].Content)
}

func TestProcessTurnSurvivesTurnLogFailure(t *testing.T) {
	factStore := newFakeFactStore()
	factStore.turnErr = assert.AnError
	llm := &fakeLLM{composeResponse: "still here"}
	engine := NewEngine(factStore, llm, &fakeEmbedder{}, nil, nil)

	// The conversation log is an audit trail; losing it must not lose the reply.
	result, err := engine.ProcessTurn(context.Background(), "s1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "still here", result.Reply)
	require.NoError(t, engine.Shutdown(context.Background()))
}

func TestEngineSupersedeAcrossTurns(t *testing.T) {
	factStore := newFakeFactStore()
	llm := &fakeLLM{
		extractionResponses: []string{
			`[{"type": "preference", "key": "diet", "value": "vegan", "confidence": 0.95}]`,
			`[{"type": "preference", "key": "diet", "value": "chicken", "confidence": 0.9}]`,
		},
		composeResponse: "Noted!",
	}
	engine := NewEngine(factStore, llm, &fakeEmbedder{}, nil, nil)
	ctx := context.Background()

	_, err := engine.ProcessTurn(ctx, "s1", "I'm vegan")
	require.NoError(t, err)
	require.NoError(t, engine.Shutdown(ctx))

	active := factStore.activeFacts("s1")
	require.Len(t, active, 1)
	assert.Equal(t, "vegan", active[0].Value)

	_, err = engine.ProcessTurn(ctx, "s1", "Actually, I eat chicken now")
	require.NoError(t, err)
	require.NoError(t, engine.Shutdown(ctx))

	active = factStore.activeFacts("s1")
	require.Len(t, active, 1)
	assert.Equal(t, "chicken", active[0].Value)
	archived := factStore.archivedFacts("s1")
	require.Len(t, archived, 1)
	assert.Equal(t, "vegan", archived[0].Value)

	// The next turn is grounded in the superseding value only.
	result, err := engine.ProcessTurn(ctx, "s1", "What should I cook tonight?")
	require.NoError(t, err)
	require.NoError(t, engine.Shutdown(ctx))
	require.Len(t, result.Memories, 1)
	assert.Equal(t, "chicken", result.Memories[0].Fact.Value)
}

func TestProcessTurnDoesNotBlockOnExtraction(t *testing.T) {
	factStore := newFakeFactStore()
	gate := make(chan struct{})
	llm := &fakeLLM{
		extractionGate:      gate,
		extractionResponses: []string{`[{"type": "fact", "key": "name", "value": "Ana", "confidence": 0.9}]`},
		composeResponse:     "Hi Ana!",
	}
	engine := NewEngine(factStore, llm, &fakeEmbedder{}, nil, nil)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		result, err := engine.ProcessTurn(ctx, "s1", "My name is Ana")
		assert.NoError(t, err)
		assert.Equal(t, "Hi Ana!", result.Reply)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("reply blocked on background extraction")
	}
	// The fact is not yet committed while extraction is gated.
	assert.Empty(t, factStore.activeFacts("s1"))

	close(gate)
	require.NoError(t, engine.Shutdown(ctx))
	active := factStore.activeFacts("s1")
	require.Len(t, active, 1)
	assert.Equal(t, "Ana", active[0].Value)
}

func TestShutdownHonorsContext(t *testing.T) {
	factStore := newFakeFactStore()
	gate := make(chan struct{})
	llm := &fakeLLM{
		extractionGate:      gate,
		extractionResponses: []string{"[]"},
		composeResponse:     "ok",
	}
	engine := NewEngine(factStore, llm, &fakeEmbedder{}, nil, nil)

	_, err := engine.ProcessTurn(context.Background(), "s1", "hello")
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, engine.Shutdown(cancelled))

	close(gate)
	require.NoError(t, engine.Shutdown(context.Background()))
}

func TestAbandonedTurnStillExtracts(t *testing.T) {
	factStore := newFakeFactStore()
	llm := &fakeLLM{
		extractionResponses: []string{`[{"type": "fact", "key": "name", "value": "Ana", "confidence": 0.9}]`},
	}
	engine := NewEngine(factStore, llm, &fakeEmbedder{}, nil, nil)

	// Client disconnects before composition completes.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := engine.ProcessTurn(ctx, "s1", "My name is Ana")
	require.Error(t, err)

	// The stated fact is preserved even though the turn was abandoned.
	require.NoError(t, engine.Shutdown(context.Background()))
	active := factStore.activeFacts("s1")
	require.Len(t, active, 1)
	assert.Equal(t, "Ana", active[0].Value)
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() == name {
			var total float64
			for _, m := range fam.GetMetric() {
				total += m.GetCounter().GetValue()
			}
			return total
		}
	}
	return 0
}

func TestExtractionParseFailureCounted(t *testing.T) {
	factStore := newFakeFactStore()
	llm := &fakeLLM{
		extractionResponses: []string{"this is not JSON"},
		composeResponse:     "ok",
	}
	reg := prometheus.NewRegistry()
	exporter := metrics.NewExporter(metrics.Config{Registry: reg})
	engine := NewEngine(factStore, llm, &fakeEmbedder{}, exporter, nil)
	ctx := context.Background()

	_, err := engine.ProcessTurn(ctx, "s1", "hello")
	require.NoError(t, err)
	require.NoError(t, engine.Shutdown(ctx))

	assert.Equal(t, 1.0, counterValue(t, reg, "dolphin_memory_extraction_failures_total"))
	assert.Empty(t, factStore.activeFacts("s1"))
}

func TestNewEngineAppliesDefaults(t *testing.T) {
	engine := NewEngine(newFakeFactStore(), &fakeLLM{}, &fakeEmbedder{}, nil, &EngineConfig{})
	assert.Equal(t, 5, engine.config.MaxConcurrency)
	assert.Equal(t, 60*time.Second, engine.config.ExtractionTimeout)
}
