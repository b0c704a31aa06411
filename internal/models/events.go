package models

import "time"

// Pipeline event types published to the status event stream.
const (
	EventRunStarted   = "run_started"
	EventFetched      = "fetched"
	EventCategorized  = "categorized"
	EventInserted     = "inserted"
	EventReports      = "reports"
	EventDuplicates   = "duplicates"
	EventRunCompleted = "run_completed"
	EventRunFailed    = "run_failed"
)

// PipelineEvent is one progress event from an orchestrator iteration.
type PipelineEvent struct {
	RunID     string    `json:"run_id"`
	Type      string    `json:"type"`
	Count     int       `json:"count,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
