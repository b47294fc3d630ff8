package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/gogo/planner/internal/domain"
	"github.com/xiaot623/gogo/planner/internal/graph"
	"github.com/xiaot623/gogo/planner/internal/knowledge"
	"github.com/xiaot623/gogo/planner/internal/planner"
)

// SubmitItinerary validates the request, creates a run and queues it.
func (s *Service) SubmitItinerary(ctx context.Context, req domain.ItineraryRequest) (*domain.SubmitResponse, error) {
	if s.planner == nil || s.queue == nil {
		return nil, fmt.Errorf("%w: planner is not configured", domain.ErrConfiguration)
	}
	if _, err := planner.BuildDayPlans(req.Preferences); err != nil {
		return nil, err
	}

	runID := "run_" + uuid.New().String()[:8]
	jobID := "job_" + uuid.New().String()[:8]
	meta, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	run := &domain.Run{
		RunID:     runID,
		JobID:     jobID,
		UserID:    req.UserID,
		Status:    domain.RunStatusQueued,
		Meta:      meta,
		StartedAt: time.Now(),
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	if err := s.recordEvent(ctx, runID, domain.EventTypeRunCreated, map[string]any{
		"job_id": jobID,
		"cities": req.Preferences.Cities,
	}); err != nil {
		log.Printf("ERROR: failed to record run_created event: %v", err)
	}

	prefs := req.Preferences
	err = s.queue.AddJob(jobID, func(ctx context.Context) (any, error) {
		return s.processRun(ctx, runID, prefs)
	}, map[string]any{"run_id": runID})
	if err != nil {
		s.failRun(runID, err, nil)
		return nil, fmt.Errorf("failed to queue run: %w", err)
	}

	return &domain.SubmitResponse{RunID: runID, JobID: jobID, Status: domain.RunStatusQueued}, nil
}

// processRun is the job body: it drives the planner and records the outcome.
func (s *Service) processRun(ctx context.Context, runID string, prefs domain.TripPreferences) (*domain.Itinerary, error) {
	start := time.Now()
	if err := s.store.UpdateRunStatus(ctx, runID, domain.RunStatusRunning); err != nil {
		log.Printf("ERROR: failed to update run status: %v", err)
	}
	if err := s.recordEvent(ctx, runID, domain.EventTypeRunStarted, map[string]any{"cities": prefs.Cities}); err != nil {
		log.Printf("ERROR: failed to record run_started event: %v", err)
	}

	sc, err := knowledge.FromPreferences(runID, prefs)
	if err != nil {
		err = fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
		s.failRun(runID, err, nil)
		return nil, err
	}

	flush := s.decisionFlusher(runID, sc)
	out, err := s.planner.Plan(ctx, sc, prefs,
		graph.WithObserver(graph.ObserverFunc(func(e graph.Event) { s.onGraphEvent(ctx, e) })),
		graph.WithPersister(graph.PersisterFunc(func(ctx context.Context, runID, phase string, percent int, results map[string]any) error {
			flush(ctx)
			return s.persistProgress(ctx, runID, phase, percent, results, sc)
		})),
	)
	flush(ctx)

	var metrics []byte
	if out != nil && out.Result != nil {
		metrics, _ = json.Marshal(out.Result.Metrics)
	}
	if err != nil {
		s.failRun(runID, err, metrics)
		return nil, err
	}

	result, err := json.Marshal(out.Itinerary)
	if err != nil {
		err = fmt.Errorf("failed to marshal itinerary: %w", err)
		s.failRun(runID, err, metrics)
		return nil, err
	}
	if err := s.store.FinalizeRun(ctx, runID, domain.RunStatusDone, result, metrics, nil); err != nil {
		log.Printf("ERROR: failed to finalize run %s: %v", runID, err)
	}

	done := domain.RunDonePayload{
		DurationMs: time.Since(start).Milliseconds(),
		TaskErrors: len(out.Result.Metrics.Errors),
		Fallbacks:  out.Itinerary.Fallbacks,
	}
	if err := s.recordEvent(ctx, runID, domain.EventTypeRunDone, done); err != nil {
		log.Printf("ERROR: failed to record run_done event: %v", err)
	}
	s.push(domain.ProgressMessage{Type: string(domain.EventTypeRunDone), RunID: runID, Percent: 100})
	log.Printf("INFO: run %s done in %dms (%d fallbacks, %d task errors)", runID, done.DurationMs, done.Fallbacks, done.TaskErrors)
	return out.Itinerary, nil
}

// failRun marks a run failed. It uses a fresh context so cancellation of
// the job still leaves a terminal record.
func (s *Service) failRun(runID string, cause error, metrics []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	payload := domain.RunFailedPayload{Code: errorCode(cause), Message: cause.Error()}
	errData, _ := json.Marshal(payload)
	if err := s.store.FinalizeRun(ctx, runID, domain.RunStatusFailed, nil, metrics, errData); err != nil {
		log.Printf("ERROR: failed to finalize run %s: %v", runID, err)
	}
	if err := s.recordEvent(ctx, runID, domain.EventTypeRunFailed, payload); err != nil {
		log.Printf("ERROR: failed to record run_failed event: %v", err)
	}
	s.push(domain.ProgressMessage{Type: string(domain.EventTypeRunFailed), RunID: runID, Error: cause.Error()})
	log.Printf("WARN: run %s failed: %v", runID, cause)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrConfiguration):
		return "configuration_error"
	case errors.Is(err, domain.ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "phase_failed"
	}
}

// decisionFlusher returns a function that copies decisions recorded since
// its last call into the audit log. Calls must not overlap.
func (s *Service) decisionFlusher(runID string, sc *knowledge.SharedContext) func(context.Context) {
	var last int64
	return func(ctx context.Context) {
		for _, d := range sc.DecisionsSince(last) {
			if err := s.store.RecordDecision(ctx, runID, d); err != nil {
				log.Printf("ERROR: failed to record decision %d for run %s: %v", d.ID, runID, err)
				return
			}
			last = d.ID
		}
	}
}

type progressSnapshot struct {
	Phase      string                       `json:"phase"`
	Percent    int                          `json:"percent_complete"`
	Completed  []string                     `json:"completed_tasks"`
	Budget     knowledge.BudgetStatus       `json:"budget"`
	Statistics knowledge.ScheduleStatistics `json:"statistics"`
}

func (s *Service) persistProgress(ctx context.Context, runID, phase string, percent int, results map[string]any, sc *knowledge.SharedContext) error {
	snap := progressSnapshot{
		Phase:      phase,
		Percent:    percent,
		Completed:  sortedKeys(results),
		Budget:     sc.BudgetStatus(),
		Statistics: sc.ScheduleStatistics(),
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}
	if err := s.store.UpdateRunProgress(ctx, runID, percent, data); err != nil {
		return err
	}
	return s.recordEvent(ctx, runID, domain.EventTypeRunProgress, domain.PhasePayload{Phase: phase, PercentComplete: percent})
}
