package domain

import "time"

// Alternative is an option that was considered and not chosen.
type Alternative struct {
	Name   string  `json:"name"`
	Score  float64 `json:"score,omitempty"`
	Reason string  `json:"reason,omitempty"`
}

// Decision is one entry of the shared decision log.
type Decision struct {
	ID           int64          `json:"id"`
	Type         DecisionType   `json:"type"`
	Phase        string         `json:"phase,omitempty"`
	Agent        string         `json:"agent,omitempty"`
	Chosen       string         `json:"chosen,omitempty"`
	Reasoning    string         `json:"reasoning"`
	Alternatives []Alternative  `json:"alternatives,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	ElapsedMs    int64          `json:"elapsed_ms"`
}

// Communication is a message passed between agents through the shared context.
type Communication struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
