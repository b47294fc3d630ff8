// Package service runs itinerary jobs and answers run queries.
package service

import (
	"errors"

	"github.com/xiaot623/gogo/planner/internal/config"
	"github.com/xiaot623/gogo/planner/internal/jobqueue"
	"github.com/xiaot623/gogo/planner/internal/planner"
	"github.com/xiaot623/gogo/planner/internal/store"
)

// ErrNotFound is returned by queries for unknown runs and jobs.
var ErrNotFound = errors.New("not found")

// Broadcaster pushes progress to live subscribers of a run.
type Broadcaster interface {
	BroadcastJSON(runID string, v any) error
}

type Service struct {
	store   store.Store
	queue   *jobqueue.Queue
	planner *planner.Planner
	hub     Broadcaster
	config  *config.Config
}

// New creates the service. hub may be nil.
func New(store store.Store, queue *jobqueue.Queue, pl *planner.Planner, hub Broadcaster, cfg *config.Config) *Service {
	return &Service{
		store:   store,
		queue:   queue,
		planner: pl,
		hub:     hub,
		config:  cfg,
	}
}
