// Package domain defines the core domain models for the planner.
package domain

// RunStatus represents the status of an itinerary-generation run.
type RunStatus string

const (
	RunStatusCreated RunStatus = "CREATED"
	RunStatusQueued  RunStatus = "QUEUED"
	RunStatusRunning RunStatus = "RUNNING"
	RunStatusDone    RunStatus = "DONE"
	RunStatusFailed  RunStatus = "FAILED"
)

// IsTerminal reports whether no further transitions are expected.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusDone || s == RunStatusFailed
}

// EventType represents the type of a recorded run event.
type EventType string

const (
	EventTypeRunCreated     EventType = "run_created"
	EventTypeRunStarted     EventType = "run_started"
	EventTypePhaseStarted   EventType = "phase_started"
	EventTypePhaseCompleted EventType = "phase_completed"
	EventTypeAgentStarted   EventType = "agent_started"
	EventTypeAgentCompleted EventType = "agent_completed"
	EventTypeAgentFailed    EventType = "agent_failed"
	EventTypeRunProgress    EventType = "run_progress"
	EventTypeRunDone        EventType = "run_done"
	EventTypeRunFailed      EventType = "run_failed"
)

// StrategicFit is the discovery source's own estimate of how well a
// candidate matches the strategy it was given.
type StrategicFit string

const (
	FitLow    StrategicFit = "low"
	FitMedium StrategicFit = "medium"
	FitHigh   StrategicFit = "high"
)

// EnergyLevel classifies how demanding an activity is.
type EnergyLevel string

const (
	EnergyRelaxed  EnergyLevel = "relaxed"
	EnergyModerate EnergyLevel = "moderate"
	EnergyHigh     EnergyLevel = "high"
)

// ValidationStatus describes how a validation result was obtained.
type ValidationStatus string

const (
	ValidationValidated   ValidationStatus = "validated"
	ValidationInvalid     ValidationStatus = "invalid"
	ValidationUnvalidated ValidationStatus = "unvalidated"
	ValidationError       ValidationStatus = "error"
)

// FailureKind buckets invalid candidates for feedback analysis.
type FailureKind string

const (
	FailureNone      FailureKind = ""
	FailureClosed    FailureKind = "closed"
	FailureNotFound  FailureKind = "not_found"
	FailureAmbiguous FailureKind = "ambiguous"
	FailureError     FailureKind = "error"
)

// AvailabilityStatus is the outcome of an opening-hours check.
type AvailabilityStatus string

const (
	AvailabilityOpen    AvailabilityStatus = "open"
	AvailabilityClosed  AvailabilityStatus = "closed"
	AvailabilityUnknown AvailabilityStatus = "unknown"
)

// Purpose is what a discovery slot is meant to fill.
type Purpose string

const (
	PurposeActivity   Purpose = "activity"
	PurposeRestaurant Purpose = "restaurant"
)

// DecisionType labels entries in the shared decision log.
type DecisionType string

const (
	DecisionStrategy        DecisionType = "strategy"
	DecisionDiscovery       DecisionType = "discovery"
	DecisionDiscoveryFailed DecisionType = "discovery_failed"
	DecisionValidation      DecisionType = "validation"
	DecisionSelection       DecisionType = "selection"
	DecisionFeedback        DecisionType = "feedback"
	DecisionFallback        DecisionType = "fallback"
	DecisionError           DecisionType = "error"
)
