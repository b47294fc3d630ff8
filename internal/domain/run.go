package domain

import (
	"encoding/json"
	"time"
)

// Run represents a single itinerary-generation run.
type Run struct {
	RunID     string          `json:"run_id"`
	JobID     string          `json:"job_id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	Status    RunStatus       `json:"status"`
	Meta      json.RawMessage `json:"meta,omitempty"`
	Percent   int             `json:"percent_complete"`
	Progress  json.RawMessage `json:"progress,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Metrics   json.RawMessage `json:"metrics,omitempty"`
	StartedAt time.Time       `json:"started_at"`
	UpdatedAt *time.Time      `json:"updated_at,omitempty"`
	EndedAt   *time.Time      `json:"ended_at,omitempty"`
	Error     json.RawMessage `json:"error,omitempty"`
}

// Event represents a trace event for replay and progress polling.
type Event struct {
	EventID string          `json:"event_id"`
	RunID   string          `json:"run_id"`
	Ts      int64           `json:"ts"` // Unix milliseconds
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// PhasePayload is recorded for phase lifecycle events.
type PhasePayload struct {
	Phase           string `json:"phase"`
	PercentComplete int    `json:"percent_complete"`
	Message         string `json:"message,omitempty"`
}

// AgentPayload is recorded for task lifecycle events.
type AgentPayload struct {
	Phase      string `json:"phase"`
	Agent      string `json:"agent"`
	Status     string `json:"status"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	Error      string `json:"error,omitempty"`
}

// RunFailedPayload is the payload for the run_failed event.
type RunFailedPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RunDonePayload is the payload for the run_done event.
type RunDonePayload struct {
	DurationMs int64 `json:"duration_ms"`
	TaskErrors int   `json:"task_errors"`
	Fallbacks  int   `json:"fallbacks"`
}

// ProgressMessage is pushed to stream subscribers of a run.
type ProgressMessage struct {
	Type       string `json:"type"`
	RunID      string `json:"run_id"`
	Ts         int64  `json:"ts"`
	Phase      string `json:"phase,omitempty"`
	Task       string `json:"task,omitempty"`
	Percent    int    `json:"percent_complete,omitempty"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	Error      string `json:"error,omitempty"`
}
