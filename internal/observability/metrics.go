package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for pipeline runs and the shared engine.
type Metrics struct {
	registry       *prometheus.Registry
	PipelineRuns   *prometheus.CounterVec
	PipelineTime   *prometheus.HistogramVec
	StageRuns      *prometheus.CounterVec
	StageTime      *prometheus.HistogramVec
	Generations    *prometheus.CounterVec
	GenerationTime *prometheus.HistogramVec
	EngineInFlight prometheus.Gauge
	ActiveRuns     *prometheus.GaugeVec
	TransportErrs  *prometheus.CounterVec
}

// NewMetrics constructs a metrics registry with pipeline collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "devcrew_pipeline_runs_total",
		Help: "Pipeline runs by outcome",
	}, []string{"outcome"})

	runTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "devcrew_pipeline_duration_seconds",
		Help:    "Pipeline run duration in seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
	}, []string{"outcome"})

	stages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "devcrew_stage_runs_total",
		Help: "Stage executions by stage and outcome",
	}, []string{"stage", "outcome"})

	stageTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "devcrew_stage_duration_seconds",
		Help:    "Stage duration in seconds",
		Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	gens := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "devcrew_generations_total",
		Help: "Engine generations by model and outcome",
	}, []string{"model", "outcome"})

	genTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "devcrew_generation_duration_seconds",
		Help:    "Engine generation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "devcrew_engine_in_flight",
		Help: "Generations currently executing against the shared engine",
	})

	active := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "devcrew_transport_active_runs",
		Help: "Pipeline runs in progress by transport",
	}, []string{"transport"})

	trErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "devcrew_transport_errors_total",
		Help: "Transport-level errors by transport and reason",
	}, []string{"transport", "reason"})

	reg.MustRegister(runs, runTime, stages, stageTime, gens, genTime, inFlight, active, trErrors)

	return &Metrics{
		registry:       reg,
		PipelineRuns:   runs,
		PipelineTime:   runTime,
		StageRuns:      stages,
		StageTime:      stageTime,
		Generations:    gens,
		GenerationTime: genTime,
		EngineInFlight: inFlight,
		ActiveRuns:     active,
		TransportErrs:  trErrors,
	}
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRun records a finished pipeline run.
func (m *Metrics) RecordRun(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	outcome = orUnknown(outcome)
	m.PipelineRuns.WithLabelValues(outcome).Inc()
	m.PipelineTime.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordStage records a finished stage.
func (m *Metrics) RecordStage(stage, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	stage = orUnknown(stage)
	m.StageRuns.WithLabelValues(stage, orUnknown(outcome)).Inc()
	m.StageTime.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordGeneration records one engine call.
func (m *Metrics) RecordGeneration(model, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if model == "" {
		model = "default"
	}
	m.Generations.WithLabelValues(model, orUnknown(outcome)).Inc()
	m.GenerationTime.WithLabelValues(model).Observe(duration.Seconds())
}

// IncEngineInFlight increments the in-flight generation gauge.
func (m *Metrics) IncEngineInFlight() {
	if m == nil {
		return
	}
	m.EngineInFlight.Inc()
}

// DecEngineInFlight decrements the in-flight generation gauge.
func (m *Metrics) DecEngineInFlight() {
	if m == nil {
		return
	}
	m.EngineInFlight.Dec()
}

// IncActiveRuns increments the active run gauge.
func (m *Metrics) IncActiveRuns(transport string) {
	if m == nil {
		return
	}
	m.ActiveRuns.WithLabelValues(transport).Inc()
}

// DecActiveRuns decrements the active run gauge.
func (m *Metrics) DecActiveRuns(transport string) {
	if m == nil {
		return
	}
	m.ActiveRuns.WithLabelValues(transport).Dec()
}

// RecordTransportError records a transport-level error.
func (m *Metrics) RecordTransportError(transport, reason string) {
	if m == nil {
		return
	}
	m.TransportErrs.WithLabelValues(orUnknown(transport), orUnknown(reason)).Inc()
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
