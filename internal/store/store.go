// Package store defines the storage interface and implementations.
package store

import (
	"context"

	"github.com/xiaot623/gogo/planner/internal/domain"
)

// Store defines the interface for data persistence.
type Store interface {
	// Run operations
	CreateRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
	ListRuns(ctx context.Context, userID string, limit int) ([]domain.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status domain.RunStatus) error
	UpdateRunProgress(ctx context.Context, runID string, percent int, progress []byte) error
	FinalizeRun(ctx context.Context, runID string, status domain.RunStatus, result, metrics, errData []byte) error

	// Event operations
	CreateEvent(ctx context.Context, event *domain.Event) error
	GetEvents(ctx context.Context, runID string, afterTs int64, types []string, limit int) ([]domain.Event, error)

	// Decision audit log
	RecordDecision(ctx context.Context, runID string, decision domain.Decision) error
	ListDecisions(ctx context.Context, runID string, afterID int64, limit int) ([]domain.Decision, error)

	// Lifecycle
	Close() error
}
