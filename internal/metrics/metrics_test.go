package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunyxi/salesforce-flow-cli/internal/engine/batch"
)

func getCounterValue(t *testing.T, counter *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	metric := &dto.Metric{}
	c, err := counter.GetMetricWithLabelValues(labels...)
	require.NoError(t, err)
	require.NoError(t, c.Write(metric))
	return metric.GetCounter().GetValue()
}

func getGaugeValue(t *testing.T, gauge *prometheus.GaugeVec, labels ...string) float64 {
	t.Helper()
	metric := &dto.Metric{}
	g, err := gauge.GetMetricWithLabelValues(labels...)
	require.NoError(t, err)
	require.NoError(t, g.Write(metric))
	return metric.GetGauge().GetValue()
}

func TestRecorder_OnProgress(t *testing.T) {
	r := NewRecorder()

	r.OnProgress(batch.Progress{Label: "activate", Outcome: batch.Succeeded("a", "ok", nil)})
	r.OnProgress(batch.Progress{Label: "activate", Outcome: batch.Succeeded("b", "ok", nil)})
	r.OnProgress(batch.Progress{
		Label:   "activate",
		Outcome: batch.AlreadyInState("c", batch.NoOpAlreadyActive, "already active", nil),
	})
	r.OnProgress(batch.Progress{Label: "activate", Outcome: batch.Failed("d", "activate", errors.New("boom"))})

	assert.Equal(t, 2.0, getCounterValue(t, r.ItemsProcessed, "activate", OutcomeSuccess))
	assert.Equal(t, 1.0, getCounterValue(t, r.ItemsProcessed, "activate", OutcomeSkipped))
	assert.Equal(t, 1.0, getCounterValue(t, r.ItemsProcessed, "activate", OutcomeFailed))
}

func TestRecorder_ObserveResult(t *testing.T) {
	r := NewRecorder()
	finished := time.Unix(1_700_000_000, 0)

	r.ObserveResult("deactivate", batch.Result{Summary: batch.Summary{
		Total:      4,
		Successful: 3,
		Failed:     1,
		Duration:   2 * time.Second,
	}}, finished)

	assert.Equal(t, 1.0, getCounterValue(t, r.RunsCompleted, "deactivate"))
	assert.InDelta(t, 0.75, getGaugeValue(t, r.SuccessRate, "deactivate"), 1e-9)
	assert.Equal(t, float64(finished.Unix()), getGaugeValue(t, r.LastRun, "deactivate"))

	families, err := r.Registry().Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range families {
		if mf.GetName() == "sf_flow_batch_duration_seconds" {
			found = true
			assert.Equal(t, 2.0, mf.GetMetric()[0].GetHistogram().GetSampleSum())
		}
	}
	assert.True(t, found)
}

func TestRecorder_IsolatedRegistries(t *testing.T) {
	a := NewRecorder()
	b := NewRecorder()

	a.OnProgress(batch.Progress{Label: "activate", Outcome: batch.Succeeded("x", "", nil)})

	assert.Equal(t, 1.0, getCounterValue(t, a.ItemsProcessed, "activate", OutcomeSuccess))
	assert.Equal(t, 0.0, getCounterValue(t, b.ItemsProcessed, "activate", OutcomeSuccess))
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.OnProgress(batch.Progress{Label: "activate", Outcome: batch.Succeeded("x", "", nil)})

	path := filepath.Join(t.TempDir(), "nested", "sf_flow.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `sf_flow_items_processed_total{operation="activate",outcome="success"} 1`)
	assert.Contains(t, string(data), "# HELP sf_flow_items_processed_total")
}
