// Package metrics records batch run counters in a Prometheus registry that can
// be exported as a node_exporter textfile.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sunyxi/salesforce-flow-cli/internal/engine/batch"
)

const namespace = "sf_flow"

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Recorder owns a private registry so repeated runs and tests never collide
// with the default one. It implements batch.ProgressSink.
type Recorder struct {
	registry *prometheus.Registry

	ItemsProcessed *prometheus.CounterVec
	RunsCompleted  *prometheus.CounterVec
	RunDuration    *prometheus.HistogramVec
	SuccessRate    *prometheus.GaugeVec
	LastRun        *prometheus.GaugeVec
}

// NewRecorder creates a Recorder with its own registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		ItemsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "items_processed_total",
				Help:      "Total number of flows processed by outcome",
			},
			[]string{"operation", "outcome"},
		),
		RunsCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batch_runs_total",
				Help:      "Total number of completed batch runs",
			},
			[]string{"operation"},
		),
		RunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_duration_seconds",
				Help:      "Batch run duration in seconds",
				Buckets:   []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"operation"},
		),
		SuccessRate: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "batch_success_ratio",
				Help:      "Share of successful flows in the last batch run (0-1)",
			},
			[]string{"operation"},
		),
		LastRun: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "batch_last_run_timestamp_seconds",
				Help:      "Unix time the last batch run completed",
			},
			[]string{"operation"},
		),
	}
}

// Registry returns the registry the recorder writes to.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// OnProgress counts one settled flow.
func (r *Recorder) OnProgress(p batch.Progress) {
	r.ItemsProcessed.WithLabelValues(p.Label, outcomeLabel(p.Outcome)).Inc()
}

// ObserveResult records the totals of a finished run.
func (r *Recorder) ObserveResult(operation string, result batch.Result, finished time.Time) {
	r.RunsCompleted.WithLabelValues(operation).Inc()
	r.RunDuration.WithLabelValues(operation).Observe(result.Summary.Duration.Seconds())
	r.SuccessRate.WithLabelValues(operation).Set(result.Summary.SuccessRate() / 100)
	r.LastRun.WithLabelValues(operation).Set(float64(finished.Unix()))
}

// WriteTextfile writes all metrics to path in the Prometheus text format.
// The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("creating metrics directory: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}

func outcomeLabel(o batch.Outcome) string {
	switch {
	case o.Skipped():
		return OutcomeSkipped
	case o.Success:
		return OutcomeSuccess
	default:
		return OutcomeFailed
	}
}
