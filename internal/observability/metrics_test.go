package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordPipelineAndStages(t *testing.T) {
	m := NewMetrics()

	m.RecordRun("ok", 2*time.Second)
	m.RecordRun("", time.Second)
	m.RecordStage("planner", "ok", time.Second)
	m.RecordStage("developer", "failed", time.Second)
	m.RecordGeneration("", "ok", time.Millisecond)
	m.IncEngineInFlight()

	require.Equal(t, 1.0, testutil.ToFloat64(m.PipelineRuns.WithLabelValues("ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.PipelineRuns.WithLabelValues("unknown")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.StageRuns.WithLabelValues("developer", "failed")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Generations.WithLabelValues("default", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.EngineInFlight))

	m.DecEngineInFlight()
	require.Equal(t, 0.0, testutil.ToFloat64(m.EngineInFlight))
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	m.RecordRun("ok", time.Second)
	m.RecordStage("planner", "ok", time.Second)
	m.RecordGeneration("coder", "ok", time.Second)
	m.IncEngineInFlight()
	m.DecEngineInFlight()
	m.IncActiveRuns("ndjson")
	m.DecActiveRuns("ndjson")
	m.RecordTransportError("connect", "send")
}
