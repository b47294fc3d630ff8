package graph

import (
	"context"
	"time"
)

// EventType names a runner lifecycle event.
type EventType string

const (
	EventPhaseStart    EventType = "phase:start"
	EventPhaseComplete EventType = "phase:complete"
	EventAgentStart    EventType = "agent:start"
	EventAgentComplete EventType = "agent:complete"
	EventAgentError    EventType = "agent:error"
	EventRunComplete   EventType = "run:complete"
	EventRunError      EventType = "run:error"
)

// Event is emitted by the runner as it makes progress.
type Event struct {
	Type     EventType
	RunID    string
	Phase    string
	Task     string
	Percent  int
	Message  string
	Duration time.Duration
	Err      error
	Time     time.Time
}

// Observer receives runner events. Events from tasks of the same parallel
// phase may arrive concurrently.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnEvent calls f.
func (f ObserverFunc) OnEvent(e Event) { f(e) }

// ChannelObserver forwards events to a channel. Sends block, so the
// consumer must keep draining until the run ends.
type ChannelObserver chan<- Event

// OnEvent sends e.
func (c ChannelObserver) OnEvent(e Event) { c <- e }

// Observers fans events out to several observers in order.
type Observers []Observer

// OnEvent forwards e to every observer.
func (obs Observers) OnEvent(e Event) {
	for _, o := range obs {
		if o != nil {
			o.OnEvent(e)
		}
	}
}

// Persister stores partial results after each phase.
type Persister interface {
	PersistProgress(ctx context.Context, runID string, phase string, percent int, results map[string]any) error
}

// PersisterFunc adapts a function to Persister.
type PersisterFunc func(ctx context.Context, runID string, phase string, percent int, results map[string]any) error

// PersistProgress calls f.
func (f PersisterFunc) PersistProgress(ctx context.Context, runID string, phase string, percent int, results map[string]any) error {
	return f(ctx, runID, phase, percent, results)
}
