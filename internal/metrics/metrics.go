// ABOUTME: Prometheus instrumentation for exploration sessions
// ABOUTME: Recorder implements the scheduler and artifact sync observer hooks

// Package metrics exposes exploration counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "coven_explore"

// Recorder owns a private registry so several sessions in one process, or
// tests, never collide on metric registration.
type Recorder struct {
	registry *prometheus.Registry

	steps                 prometheus.Counter
	preconditionSatisfied *prometheus.CounterVec
	preconditionErrors    *prometheus.CounterVec
	propertyOutcomes      *prometheus.CounterVec
	artifactsSynced       *prometheus.CounterVec
	artifactSyncFailures  *prometheus.CounterVec
}

// NewRecorder creates a recorder with Go runtime and process collectors.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		steps: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Exploration steps completed by the remote agent",
		}),
		preconditionSatisfied: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "precondition_satisfied_total",
			Help:      "Rounds in which every precondition of a property held",
		}, []string{"property"}),
		preconditionErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "precondition_errors_total",
			Help:      "Precondition evaluations that raised",
		}, []string{"property"}),
		propertyOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "property_executions_total",
			Help:      "Property executions by outcome",
		}, []string{"property", "outcome"}),
		artifactsSynced: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_synced_total",
			Help:      "Remote files pulled into local storage",
		}, []string{"kind"}),
		artifactSyncFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_sync_failures_total",
			Help:      "Remote files that could not be pulled",
		}, []string{"kind"}),
	}
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// StepCompleted counts one exploration step.
func (r *Recorder) StepCompleted() { r.steps.Inc() }

// PreconditionSatisfied counts a round in which name was eligible.
func (r *Recorder) PreconditionSatisfied(name string) {
	r.preconditionSatisfied.WithLabelValues(name).Inc()
}

// PreconditionErrored counts a raising precondition.
func (r *Recorder) PreconditionErrored(name string) {
	r.preconditionErrors.WithLabelValues(name).Inc()
}

// PropertyFinished counts an execution of name with outcome pass, fail or error.
func (r *Recorder) PropertyFinished(name, outcome string) {
	r.propertyOutcomes.WithLabelValues(name, outcome).Inc()
}

// ArtifactSynced counts a pulled file.
func (r *Recorder) ArtifactSynced(kind string) {
	r.artifactsSynced.WithLabelValues(kind).Inc()
}

// ArtifactSyncFailed counts a file that could not be pulled.
func (r *Recorder) ArtifactSyncFailed(kind string) {
	r.artifactSyncFailures.WithLabelValues(kind).Inc()
}
