// Package app assembles the planner from its configuration.
package app

import (
	"context"
	"fmt"
	"log"

	"github.com/xiaot623/gogo/planner/internal/adapter/llm"
	"github.com/xiaot623/gogo/planner/internal/adapter/places"
	"github.com/xiaot623/gogo/planner/internal/agent"
	"github.com/xiaot623/gogo/planner/internal/config"
	"github.com/xiaot623/gogo/planner/internal/discovery"
	"github.com/xiaot623/gogo/planner/internal/graph"
	"github.com/xiaot623/gogo/planner/internal/hub"
	"github.com/xiaot623/gogo/planner/internal/jobqueue"
	"github.com/xiaot623/gogo/planner/internal/planner"
	"github.com/xiaot623/gogo/planner/internal/service"
	"github.com/xiaot623/gogo/planner/internal/store"
	"github.com/xiaot623/gogo/planner/internal/validation"
	"github.com/xiaot623/gogo/planner/policy"
)

// App holds the long-lived components of a planner process.
type App struct {
	Config  *config.Config
	Store   store.Store
	Queue   *jobqueue.Queue
	Hub     *hub.Hub
	Service *service.Service

	cancel context.CancelFunc
}

// New builds every component. The hub is running when New returns.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	orch, err := NewOrchestrator(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var spec *graph.Spec
	if cfg.GraphFile != "" {
		if spec, err = graph.LoadSpec(cfg.GraphFile); err != nil {
			return nil, err
		}
		log.Printf("INFO: using execution graph from %s", cfg.GraphFile)
	}
	pl, err := planner.New(orch, spec)
	if err != nil {
		return nil, err
	}

	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	queue := jobqueue.New(
		jobqueue.WithHistoryLimit(cfg.JobHistoryLimit),
		jobqueue.WithListener(func(e jobqueue.Event) {
			log.Printf("INFO: %s %s", e.Type, e.Job.ID)
		}),
	)

	hubCtx, cancel := context.WithCancel(context.Background())
	h := hub.New()
	go h.Run(hubCtx)

	return &App{
		Config:  cfg,
		Store:   db,
		Queue:   queue,
		Hub:     h,
		Service: service.New(db, queue, pl, h, cfg),
		cancel:  cancel,
	}, nil
}

// NewOrchestrator wires the feedback loop: knowledge source, admission
// policy, place validator and retry settings. Without PLACES_URL the
// validation stage runs degraded.
func NewOrchestrator(ctx context.Context, cfg *config.Config) (*agent.Orchestrator, error) {
	chat := llm.NewChatClient(cfg.Mode, cfg.LiteLLMURL, cfg.LiteLLMAPIKey, cfg.LLMTimeout)
	source := llm.NewKnowledgeSource(chat, cfg.LLMModel)

	engine, err := policy.NewEngineFromFile(ctx, cfg.PolicyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize policy engine: %w", err)
	}
	discoverer := discovery.NewAgent(source,
		discovery.WithPolicy(engine),
		discovery.WithTimeout(cfg.DiscoveryTimeout),
		discovery.WithRetries(cfg.DiscoveryRetries, cfg.RetryBackoff),
	)

	var validator validation.PlaceValidator
	if cfg.PlacesURL != "" {
		client, err := places.NewClient(cfg.PlacesURL, cfg.PlacesAPIKey, cfg.PlacesTimeout, cfg.PlacesCacheSize)
		if err != nil {
			return nil, err
		}
		validator = client
	} else {
		log.Printf("WARN: PLACES_URL not set, candidates will not be validated")
	}

	return agent.New(discoverer, validation.NewStage(validator, 0),
		agent.WithMaxAttempts(cfg.MaxAttempts),
		agent.WithRetryBackoff(cfg.RetryBackoff),
	), nil
}

// Close stops the queue, then the hub, then closes the store.
func (a *App) Close() error {
	a.Queue.Close()
	a.cancel()
	return a.Store.Close()
}
