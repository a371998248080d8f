// Package metrics counts repair loop activity with Prometheus collectors
// registered on a private registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/specforge/internal/session"
	"github.com/roach88/specforge/internal/specerr"
)

const namespace = "specforge"

// Recorder implements session.Recorder.
type Recorder struct {
	registry *prometheus.Registry

	// validationAttempts counts compiler gate runs.
	// Labels: result (ok, failed)
	validationAttempts *prometheus.CounterVec

	// repairIterations counts applied repair patches.
	repairIterations prometheus.Counter

	// finalizeOutcomes counts finalize runs by how they ended.
	// Labels: outcome (succeeded, exhausted, stalled, failed)
	finalizeOutcomes *prometheus.CounterVec
}

var _ session.Recorder = (*Recorder)(nil)

// NewRecorder creates a recorder with its own registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		validationAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "validation_attempts_total",
			Help:      "Compiler gate runs by result",
		}, []string{"result"}),
		repairIterations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "repair",
			Name:      "iterations_total",
			Help:      "Repair patches applied to candidates",
		}),
		finalizeOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "finalize",
			Name:      "outcomes_total",
			Help:      "Finalize runs by outcome",
		}, []string{"outcome"}),
	}
}

// Registry exposes the registry for scraping or export.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ValidationAttempt counts one gate run.
func (r *Recorder) ValidationAttempt(ok bool) {
	result := "failed"
	if ok {
		result = "ok"
	}
	r.validationAttempts.WithLabelValues(result).Inc()
}

// RepairIteration counts one applied repair patch.
func (r *Recorder) RepairIteration() {
	r.repairIterations.Inc()
}

// FinalizeOutcome counts one finished finalize run.
func (r *Recorder) FinalizeOutcome(outcome string) {
	r.finalizeOutcomes.WithLabelValues(outcome).Inc()
}

// WriteTextfile writes all metrics in the text exposition format, for the
// node_exporter textfile collector. The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return specerr.Wrap(specerr.IOError, err, "write metrics "+path)
	}
	return nil
}
