package service

import (
	"context"
	"fmt"

	"github.com/xiaot623/gogo/planner/internal/domain"
	"github.com/xiaot623/gogo/planner/internal/jobqueue"
)

func (s *Service) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return run, nil
}

func (s *Service) ListRuns(ctx context.Context, userID string, limit int) ([]domain.Run, error) {
	runs, err := s.store.ListRuns(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// GetJobStatus returns the queue's view of a job. Jobs evicted from the
// queue history are reported as not found.
func (s *Service) GetJobStatus(jobID string) (jobqueue.Job, error) {
	job, ok := s.queue.GetJobStatus(jobID)
	if !ok {
		return jobqueue.Job{}, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	return job, nil
}

// QueueStats reports the number of waiting jobs and whether one is running.
func (s *Service) QueueStats() (pending int, processing bool) {
	return s.queue.Stats()
}

func (s *Service) GetRunEvents(ctx context.Context, runID string, afterTs int64, types []string, limit int) ([]domain.Event, error) {
	events, err := s.store.GetEvents(ctx, runID, afterTs, types, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get run events: %w", err)
	}
	return events, nil
}

func (s *Service) GetRunDecisions(ctx context.Context, runID string, afterID int64, limit int) ([]domain.Decision, error) {
	decisions, err := s.store.ListDecisions(ctx, runID, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get run decisions: %w", err)
	}
	return decisions, nil
}
