package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveExtractionCountsOutcomesAndFailures(t *testing.T) {
	e := NewExporter(Config{Registry: prometheus.NewRegistry()})

	e.ObserveExtraction(0.5, map[string]int{"inserted": 2, "superseded": 1}, false)
	e.ObserveExtraction(0.1, nil, true)

	assert.Equal(t, 2.0, testutil.ToFloat64(e.extractionOutcomes.WithLabelValues("inserted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.extractionOutcomes.WithLabelValues("superseded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.extractionFailures))
}

func TestIncProviderError(t *testing.T) {
	e := NewExporter(Config{Registry: prometheus.NewRegistry()})

	e.IncProviderError("deepseek", "transient")
	e.IncProviderError("deepseek", "transient")
	e.IncProviderError("siliconflow", "permanent")

	assert.Equal(t, 2.0, testutil.ToFloat64(e.providerErrors.WithLabelValues("deepseek", "transient")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.providerErrors.WithLabelValues("siliconflow", "permanent")))
}

func TestExporterNilSafe(t *testing.T) {
	var e *Exporter
	require.NotPanics(t, func() {
		e.ObserveExtraction(1, map[string]int{"inserted": 1}, true)
		e.ObserveRetrieval(1, 3)
		e.IncProviderError("openai", "transient")
	})
}
