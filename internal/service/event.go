package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/gogo/planner/internal/domain"
	"github.com/xiaot623/gogo/planner/internal/graph"
)

// recordEvent records an event to the store.
func (s *Service) recordEvent(ctx context.Context, runID string, eventType domain.EventType, payload any) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	event := &domain.Event{
		EventID: "evt_" + uuid.New().String()[:8],
		RunID:   runID,
		Ts:      time.Now().UnixMilli(),
		Type:    eventType,
		Payload: payloadBytes,
	}

	return s.store.CreateEvent(ctx, event)
}

var graphEventTypes = map[graph.EventType]domain.EventType{
	graph.EventPhaseStart:    domain.EventTypePhaseStarted,
	graph.EventPhaseComplete: domain.EventTypePhaseCompleted,
	graph.EventAgentStart:    domain.EventTypeAgentStarted,
	graph.EventAgentComplete: domain.EventTypeAgentCompleted,
	graph.EventAgentError:    domain.EventTypeAgentFailed,
}

// onGraphEvent records runner events and forwards them to subscribers.
// It may be called from several goroutines at once.
func (s *Service) onGraphEvent(ctx context.Context, e graph.Event) {
	msg := domain.ProgressMessage{
		Type:       string(e.Type),
		RunID:      e.RunID,
		Ts:         e.Time.UnixMilli(),
		Phase:      e.Phase,
		Task:       e.Task,
		Percent:    e.Percent,
		Message:    e.Message,
		DurationMs: e.Duration.Milliseconds(),
	}
	if e.Err != nil {
		msg.Error = e.Err.Error()
	}
	s.push(msg)

	eventType, ok := graphEventTypes[e.Type]
	if !ok {
		return
	}
	var payload any
	switch e.Type {
	case graph.EventPhaseStart, graph.EventPhaseComplete:
		payload = domain.PhasePayload{Phase: e.Phase, PercentComplete: e.Percent, Message: e.Message}
	default:
		payload = domain.AgentPayload{
			Phase:      e.Phase,
			Agent:      e.Task,
			Status:     string(e.Type),
			DurationMs: e.Duration.Milliseconds(),
			Error:      msg.Error,
		}
	}
	if err := s.recordEvent(ctx, e.RunID, eventType, payload); err != nil {
		log.Printf("ERROR: failed to record %s event: %v", eventType, err)
	}
}

func (s *Service) push(msg domain.ProgressMessage) {
	if s.hub == nil {
		return
	}
	if msg.Ts == 0 {
		msg.Ts = time.Now().UnixMilli()
	}
	if err := s.hub.BroadcastJSON(msg.RunID, msg); err != nil {
		log.Printf("WARN: failed to push %s to run %s: %v", msg.Type, msg.RunID, err)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
