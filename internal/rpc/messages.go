package rpc

// Event types emitted for a pipeline run.
const (
	EventStage = "stage"
	EventDone  = "done"
	EventError = "error"
)

// RunPipelineRequest starts one pipeline run.
type RunPipelineRequest struct {
	RunID string `json:"run_id,omitempty"`
	Goal  string `json:"goal"`
}

// PipelineEvent reports a stage boundary or the end of a run. Stage events
// carry the completed stage's output; only the done event carries the artifact.
type PipelineEvent struct {
	Type       string `json:"type"` // stage|done|error
	RunID      string `json:"run_id,omitempty"`
	StageIndex int    `json:"stage_index"`
	StageTotal int    `json:"stage_total,omitempty"`
	Stage      string `json:"stage,omitempty"`
	Agent      string `json:"agent,omitempty"`
	Output     string `json:"output,omitempty"`
	Artifact   string `json:"artifact,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}
