package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/dolphin/store"
)

func newTestExtractor(llm *fakeLLM, factStore *fakeFactStore, minConfidence float32) *Extractor {
	resolver := NewConflictResolver(factStore, &fakeEmbedder{})
	return NewExtractor(llm, resolver, minConfidence)
}

func TestParseCandidatesStripsCodeFences(t *testing.T) {
	e := newTestExtractor(&fakeLLM{}, newFakeFactStore(), 0)

	raw := "```json\n[{\"type\": \"preference\", \"key\": \"diet\", \"value\": \"vegan\", \"confidence\": 0.95}]\n```"
	candidates, err := e.parseCandidates(raw)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, store.MemoryTypePreference, candidates[0].Type)
	assert.Equal(t, "diet", candidates[0].Key)
	assert.Equal(t, "vegan", candidates[0].Value)
	assert.InDelta(t, 0.95, candidates[0].Confidence, 1e-6)
}

func TestParseCandidatesMalformedJSON(t *testing.T) {
	e := newTestExtractor(&fakeLLM{}, newFakeFactStore(), 0)

	_, err := e.parseCandidates("I could not find any facts, sorry!")
	require.Error(t, err)
	var extractionErr *ExtractionError
	require.ErrorAs(t, err, &extractionErr)
	assert.Equal(t, "malformed JSON", extractionErr.Reason)
}

func TestParseCandidatesValidation(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected int
	}{
		{
			name:     "empty list",
			raw:      "[]",
			expected: 0,
		},
		{
			name:     "missing key dropped",
			raw:      `[{"type": "fact", "value": "Sarah"}]`,
			expected: 0,
		},
		{
			name:     "missing value dropped",
			raw:      `[{"type": "fact", "key": "sister_name"}]`,
			expected: 0,
		},
		{
			name:     "unknown type dropped",
			raw:      `[{"type": "opinion", "key": "k", "value": "v"}]`,
			expected: 0,
		},
		{
			name:     "one bad entry does not reject the batch",
			raw:      `[{"type": "fact", "key": "", "value": "v"}, {"type": "fact", "key": "k", "value": "v"}]`,
			expected: 1,
		},
		{
			name:     "type is case insensitive",
			raw:      `[{"type": "Preference", "key": "diet", "value": "vegan"}]`,
			expected: 1,
		},
	}
	e := newTestExtractor(&fakeLLM{}, newFakeFactStore(), 0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidates, err := e.parseCandidates(tt.raw)
			require.NoError(t, err)
			assert.Len(t, candidates, tt.expected)
		})
	}
}

func TestParseCandidatesDefaultsConfidence(t *testing.T) {
	e := newTestExtractor(&fakeLLM{}, newFakeFactStore(), 0)

	candidates, err := e.parseCandidates(`[{"type": "fact", "key": "sister_name", "value": "Sarah"}]`)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.InDelta(t, DefaultConfidence, candidates[0].Confidence, 1e-6)
}

func TestParseCandidatesConfidenceThreshold(t *testing.T) {
	e := newTestExtractor(&fakeLLM{}, newFakeFactStore(), 0.8)

	raw := `[
		{"type": "fact", "key": "low", "value": "v", "confidence": 0.5},
		{"type": "fact", "key": "high", "value": "v", "confidence": 0.9}
	]`
	candidates, err := e.parseCandidates(raw)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "high", candidates[0].Key)
}

func TestExtractAndStoreSurfacesParseFailure(t *testing.T) {
	factStore := newFakeFactStore()
	llm := &fakeLLM{extractionResponses: []string{"total nonsense"}}
	e := newTestExtractor(llm, factStore, 0)

	// A malformed model response is a typed, recoverable failure: nothing is
	// stored and the caller gets the signal to count.
	resolutions, err := e.ExtractAndStore(context.Background(), "s1", "hello")
	require.Error(t, err)
	var extractionErr *ExtractionError
	require.ErrorAs(t, err, &extractionErr)
	assert.Empty(t, resolutions)
	assert.Empty(t, factStore.activeFacts("s1"))
}

func TestExtractAndStoreMultipleFactsFromOneUtterance(t *testing.T) {
	factStore := newFakeFactStore()
	llm := &fakeLLM{extractionResponses: []string{`[
		{"type": "fact", "key": "sister_name", "value": "Sarah", "confidence": 0.9},
		{"type": "commitment", "key": "report", "value": "send the report Friday", "confidence": 0.85}
	]`}}
	e := newTestExtractor(llm, factStore, 0)

	resolutions, err := e.ExtractAndStore(context.Background(), "s1", "My sister Sarah reminded me to send the report Friday")
	require.NoError(t, err)
	require.Len(t, resolutions, 2)
	assert.Equal(t, OutcomeInserted, resolutions[0].Outcome)
	assert.Equal(t, OutcomeInserted, resolutions[1].Outcome)
	assert.Len(t, factStore.activeFacts("s1"), 2)
}

func TestExtractAndStoreLaterInBatchWins(t *testing.T) {
	factStore := newFakeFactStore()
	llm := &fakeLLM{extractionResponses: []string{`[
		{"type": "preference", "key": "diet", "value": "vegan", "confidence": 0.9},
		{"type": "preference", "key": "diet", "value": "chicken", "confidence": 0.9}
	]`}}
	e := newTestExtractor(llm, factStore, 0)

	resolutions, err := e.ExtractAndStore(context.Background(), "s1", "I was vegan but now I eat chicken")
	require.NoError(t, err)
	require.Len(t, resolutions, 2)
	assert.Equal(t, OutcomeInserted, resolutions[0].Outcome)
	assert.Equal(t, OutcomeSuperseded, resolutions[1].Outcome)

	active := factStore.activeFacts("s1")
	require.Len(t, active, 1)
	assert.Equal(t, "chicken", active[0].Value)
}
