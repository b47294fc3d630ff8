package graph

import (
	"context"
	"fmt"
	"log"
	"maps"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xiaot623/gogo/planner/internal/knowledge"
)

// TaskError is one recorded task failure.
type TaskError struct {
	Phase string `json:"phase"`
	Task  string `json:"task"`
	Error string `json:"error"`
}

// Metrics is accumulated over one execution.
type Metrics struct {
	TaskDurations map[string]int64 `json:"task_durations_ms"`
	Errors        []TaskError      `json:"errors"`
	TotalMs       int64            `json:"total_ms"`
}

// Result is the output of Execute.
type Result struct {
	Results map[string]any `json:"results"`
	Metrics Metrics        `json:"metrics"`
}

// Runner executes a graph.
type Runner struct {
	graph     *Graph
	observer  Observer
	persister Persister
	now       func() time.Time
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithObserver sets the event observer.
func WithObserver(o Observer) RunnerOption {
	return func(r *Runner) { r.observer = o }
}

// WithPersister sets the per-phase persistence hook.
func WithPersister(p Persister) RunnerOption {
	return func(r *Runner) { r.persister = p }
}

// NewRunner creates a runner for g.
func NewRunner(g *Graph, opts ...RunnerOption) *Runner {
	r := &Runner{graph: g, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type execution struct {
	r     *Runner
	runID string
	sc    *knowledge.SharedContext

	mu      sync.Mutex
	results map[string]any
	metrics Metrics
}

// Execute runs every phase in order. A task failure in a sequential phase
// stops the run and is returned; failures in parallel phases are recorded
// in the metrics and the run continues. The partial result is returned
// alongside any error.
func (r *Runner) Execute(ctx context.Context, runID string, sc *knowledge.SharedContext) (*Result, error) {
	ex := &execution{
		r:       r,
		runID:   runID,
		sc:      sc,
		results: make(map[string]any),
		metrics: Metrics{TaskDurations: make(map[string]int64), Errors: []TaskError{}},
	}
	start := r.now()
	total := len(r.graph.phases)

	for i, p := range r.graph.phases {
		ex.emit(Event{Type: EventPhaseStart, Phase: p.name, Percent: i * 100 / total, Message: fmt.Sprintf("starting %s", p.name)})

		var err error
		if p.mode == ModeSequential {
			err = ex.runSequential(ctx, p)
		} else {
			ex.runParallel(ctx, p)
		}
		if err != nil {
			ex.metrics.TotalMs = r.now().Sub(start).Milliseconds()
			ex.emit(Event{Type: EventRunError, Phase: p.name, Err: err, Message: err.Error()})
			return ex.result(), err
		}

		percent := (i + 1) * 100 / total
		ex.emit(Event{Type: EventPhaseComplete, Phase: p.name, Percent: percent, Message: fmt.Sprintf("completed %s", p.name)})
		if r.persister != nil {
			if perr := r.persister.PersistProgress(ctx, runID, p.name, percent, ex.snapshot()); perr != nil {
				log.Printf("WARN: failed to persist progress for run %s after phase %s: %v", runID, p.name, perr)
			}
		}
	}

	ex.metrics.TotalMs = r.now().Sub(start).Milliseconds()
	ex.emit(Event{Type: EventRunComplete, Percent: 100, Message: "all phases completed"})
	return ex.result(), nil
}

func (ex *execution) runSequential(ctx context.Context, p phase) error {
	for _, t := range p.tasks {
		if err := ex.runTask(ctx, p, t, ex.snapshot()); err != nil {
			return fmt.Errorf("phase %s: task %s: %w", p.name, t.name, err)
		}
	}
	return nil
}

// runParallel waits for every task. Failures are isolated and never cancel
// siblings. Every task sees the results as they were when the phase began.
func (ex *execution) runParallel(ctx context.Context, p phase) {
	prior := ex.snapshot()
	var g errgroup.Group
	for _, t := range p.tasks {
		g.Go(func() error {
			_ = ex.runTask(ctx, p, t, maps.Clone(prior))
			return nil
		})
	}
	_ = g.Wait()
}

func (ex *execution) runTask(ctx context.Context, p phase, t boundTask, prior map[string]any) (err error) {
	ex.emit(Event{Type: EventAgentStart, Phase: p.name, Task: t.name})
	start := ex.r.now()
	in := TaskInput{RunID: ex.runID, Knowledge: ex.sc, Results: prior, Params: t.params}

	var out any
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("panic: %v", rec)
			}
		}()
		out, err = t.task.Execute(ctx, in)
	}()
	elapsed := ex.r.now().Sub(start)

	ex.mu.Lock()
	ex.metrics.TaskDurations[t.name] = elapsed.Milliseconds()
	if err != nil {
		ex.metrics.Errors = append(ex.metrics.Errors, TaskError{Phase: p.name, Task: t.name, Error: err.Error()})
	} else {
		ex.results[t.name] = out
	}
	ex.mu.Unlock()

	if err != nil {
		log.Printf("WARN: task %s in phase %s failed after %s: %v", t.name, p.name, elapsed, err)
		ex.emit(Event{Type: EventAgentError, Phase: p.name, Task: t.name, Duration: elapsed, Err: err, Message: err.Error()})
		return err
	}
	ex.emit(Event{Type: EventAgentComplete, Phase: p.name, Task: t.name, Duration: elapsed})
	return nil
}

func (ex *execution) snapshot() map[string]any {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return maps.Clone(ex.results)
}

func (ex *execution) result() *Result {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	m := ex.metrics
	m.TaskDurations = maps.Clone(ex.metrics.TaskDurations)
	m.Errors = append([]TaskError{}, ex.metrics.Errors...)
	return &Result{Results: maps.Clone(ex.results), Metrics: m}
}

func (ex *execution) emit(e Event) {
	if ex.r.observer == nil {
		return
	}
	e.RunID = ex.runID
	e.Time = ex.r.now()
	ex.r.observer.OnEvent(e)
}
