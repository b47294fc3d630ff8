package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/xiaot623/gogo/planner/internal/knowledge"
)

// ErrInvalidGraph is returned by Build for malformed specs.
var ErrInvalidGraph = errors.New("invalid execution graph")

// TaskInput is what a task receives.
type TaskInput struct {
	RunID     string
	Knowledge *knowledge.SharedContext
	// Results holds the outputs of tasks from earlier phases. It is a copy.
	Results map[string]any
	Params  map[string]any
}

// Task is one schedulable unit of work.
type Task interface {
	Execute(ctx context.Context, in TaskInput) (any, error)
}

// TaskFunc adapts a function to Task.
type TaskFunc func(ctx context.Context, in TaskInput) (any, error)

// Execute calls f.
func (f TaskFunc) Execute(ctx context.Context, in TaskInput) (any, error) {
	return f(ctx, in)
}

// Registry maps task keys to implementations.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]Task
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]Task)}
}

// Register adds a task. Registering a key twice replaces the task.
func (r *Registry) Register(key string, t Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[key] = t
}

// Lookup returns the task registered under key.
func (r *Registry) Lookup(key string) (Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[key]
	return t, ok
}

// Keys lists registered keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.tasks))
	for k := range r.tasks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type boundTask struct {
	name      string
	task      Task
	dependsOn []string
	params    map[string]any
}

type phase struct {
	name  string
	mode  Mode
	tasks []boundTask
}

// Graph is a validated spec with tasks resolved from a registry.
type Graph struct {
	name   string
	phases []phase
}

// Name returns the graph name.
func (g *Graph) Name() string { return g.name }

// PhaseNames returns the phase names in execution order.
func (g *Graph) PhaseNames() []string {
	out := make([]string, len(g.phases))
	for i, p := range g.phases {
		out[i] = p.name
	}
	return out
}

// Build validates spec and resolves every task. Dependencies must name
// tasks of strictly earlier phases, or be the AllPrior wildcard.
func Build(spec *Spec, reg *Registry) (*Graph, error) {
	if spec == nil || len(spec.Phases) == 0 {
		return nil, fmt.Errorf("%w: no phases", ErrInvalidGraph)
	}
	g := &Graph{name: spec.Name}
	earlier := make(map[string]bool)
	for _, ps := range spec.Phases {
		if ps.Mode != ModeSequential && ps.Mode != ModeParallel {
			return nil, fmt.Errorf("%w: phase %q has unknown mode %q", ErrInvalidGraph, ps.Name, ps.Mode)
		}
		if len(ps.Tasks) == 0 {
			return nil, fmt.Errorf("%w: phase %q has no tasks", ErrInvalidGraph, ps.Name)
		}
		p := phase{name: ps.Name, mode: ps.Mode}
		current := make(map[string]bool, len(ps.Tasks))
		for _, ts := range ps.Tasks {
			if ts.Name == "" {
				return nil, fmt.Errorf("%w: phase %q has an unnamed task", ErrInvalidGraph, ps.Name)
			}
			if earlier[ts.Name] || current[ts.Name] {
				return nil, fmt.Errorf("%w: duplicate task %q", ErrInvalidGraph, ts.Name)
			}
			for _, dep := range ts.DependsOn {
				if dep != AllPrior && !earlier[dep] {
					return nil, fmt.Errorf("%w: task %q depends on %q which is not in an earlier phase", ErrInvalidGraph, ts.Name, dep)
				}
			}
			key := ts.Uses
			if key == "" {
				key = ts.Name
			}
			t, ok := reg.Lookup(key)
			if !ok {
				return nil, fmt.Errorf("%w: task %q uses unregistered %q", ErrInvalidGraph, ts.Name, key)
			}
			current[ts.Name] = true
			p.tasks = append(p.tasks, boundTask{name: ts.Name, task: t, dependsOn: ts.DependsOn, params: ts.Params})
		}
		for name := range current {
			earlier[name] = true
		}
		g.phases = append(g.phases, p)
	}
	return g, nil
}
