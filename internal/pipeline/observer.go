package pipeline

import "time"

// EventType identifies a stage boundary.
type EventType string

const (
	StageStarted   EventType = "stage_started"
	StageCompleted EventType = "stage_completed"
	StageFailed    EventType = "stage_failed"
)

// Event describes one stage boundary. Output of completed stages is
// informational; a failed run still yields no artifact.
type Event struct {
	Type     EventType
	RunID    string
	Index    int
	Total    int
	Stage    string
	Agent    string
	Input    string
	Output   string
	Err      error
	Duration time.Duration
}

// Observer is notified synchronously at stage boundaries.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe calls f.
func (f ObserverFunc) Observe(ev Event) {
	f(ev)
}
