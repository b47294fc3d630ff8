package graph

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/planner/internal/knowledge"
)

func value(v any) Task {
	return TaskFunc(func(ctx context.Context, in TaskInput) (any, error) { return v, nil })
}

func failing(msg string) Task {
	return TaskFunc(func(ctx context.Context, in TaskInput) (any, error) { return nil, errors.New(msg) })
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) OnEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types(task string) []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []EventType
	for _, e := range r.events {
		if e.Task == task {
			out = append(out, e.Type)
		}
	}
	return out
}

func (r *recorder) has(t EventType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Type == t {
			return true
		}
	}
	return false
}

func testContext() *knowledge.SharedContext {
	return knowledge.New("run-1", knowledge.Constraints{})
}

func TestParseSpec(t *testing.T) {
	spec, err := ParseSpec(strings.NewReader(`
name: demo
phases:
  - name: structure
    mode: sequential
    tasks:
      - name: day_structure
  - name: discovery
    mode: parallel
    tasks:
      - name: activities
        depends_on: [day_structure]
        params:
          slots: 2
`))
	require.NoError(t, err)
	assert.Equal(t, "demo", spec.Name)
	require.Len(t, spec.Phases, 2)
	assert.Equal(t, ModeParallel, spec.Phases[1].Mode)
	assert.Equal(t, []string{"day_structure"}, spec.Phases[1].Tasks[0].DependsOn)
	assert.Equal(t, 2, spec.Phases[1].Tasks[0].Params["slots"])

	_, err = ParseSpec(strings.NewReader("phases: []\nbogus: 1\n"))
	assert.Error(t, err)
}

func TestBuildValidatesSpec(t *testing.T) {
	reg := NewRegistry()
	reg.Register("a", value(1))
	reg.Register("b", value(2))

	cases := map[string]*Spec{
		"no phases":    {},
		"bad mode":     {Phases: []PhaseSpec{{Name: "p", Mode: "eventually", Tasks: []TaskSpec{{Name: "a"}}}}},
		"empty phase":  {Phases: []PhaseSpec{{Name: "p", Mode: ModeSequential}}},
		"unregistered": {Phases: []PhaseSpec{{Name: "p", Mode: ModeSequential, Tasks: []TaskSpec{{Name: "zzz"}}}}},
		"duplicate": {Phases: []PhaseSpec{
			{Name: "p1", Mode: ModeSequential, Tasks: []TaskSpec{{Name: "a"}}},
			{Name: "p2", Mode: ModeSequential, Tasks: []TaskSpec{{Name: "a"}}},
		}},
		"same phase dependency": {Phases: []PhaseSpec{
			{Name: "p", Mode: ModeParallel, Tasks: []TaskSpec{{Name: "a"}, {Name: "b", DependsOn: []string{"a"}}}},
		}},
		"later phase dependency": {Phases: []PhaseSpec{
			{Name: "p1", Mode: ModeSequential, Tasks: []TaskSpec{{Name: "a", DependsOn: []string{"b"}}}},
			{Name: "p2", Mode: ModeSequential, Tasks: []TaskSpec{{Name: "b"}}},
		}},
	}
	for name, spec := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Build(spec, reg)
			assert.ErrorIs(t, err, ErrInvalidGraph)
		})
	}

	g, err := Build(&Spec{Name: "ok", Phases: []PhaseSpec{
		{Name: "p1", Mode: ModeSequential, Tasks: []TaskSpec{{Name: "a"}}},
		{Name: "p2", Mode: ModeParallel, Tasks: []TaskSpec{{Name: "b", DependsOn: []string{"a", AllPrior}}, {Name: "b2", Uses: "b"}}},
	}}, reg)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, g.PhaseNames())
	assert.Equal(t, []string{"a", "b"}, reg.Keys())
}

func TestExecuteAggregatesResults(t *testing.T) {
	reg := NewRegistry()
	reg.Register("structure", value("days"))
	reg.Register("echo", TaskFunc(func(ctx context.Context, in TaskInput) (any, error) {
		return in.Results["structure"].(string) + ":" + in.Params["suffix"].(string), nil
	}))
	g, err := Build(&Spec{Phases: []PhaseSpec{
		{Name: "first", Mode: ModeSequential, Tasks: []TaskSpec{{Name: "structure"}}},
		{Name: "second", Mode: ModeParallel, Tasks: []TaskSpec{
			{Name: "x", Uses: "echo", Params: map[string]any{"suffix": "x"}},
			{Name: "y", Uses: "echo", Params: map[string]any{"suffix": "y"}},
		}},
	}}, reg)
	require.NoError(t, err)

	var persisted []int
	rec := &recorder{}
	r := NewRunner(g, WithObserver(rec), WithPersister(PersisterFunc(func(ctx context.Context, runID, phase string, percent int, results map[string]any) error {
		persisted = append(persisted, percent)
		return nil
	})))

	res, err := r.Execute(context.Background(), "run-1", testContext())
	require.NoError(t, err)
	assert.Equal(t, "days", res.Results["structure"])
	assert.Equal(t, "days:x", res.Results["x"])
	assert.Equal(t, "days:y", res.Results["y"])
	assert.Empty(t, res.Metrics.Errors)
	assert.Len(t, res.Metrics.TaskDurations, 3)
	assert.Equal(t, []int{50, 100}, persisted)
	assert.Equal(t, []EventType{EventAgentStart, EventAgentComplete}, rec.types("x"))
	assert.True(t, rec.has(EventRunComplete))
}

func TestParallelPhaseIsolatesFailures(t *testing.T) {
	reg := NewRegistry()
	var completed atomic.Int32
	slow := TaskFunc(func(ctx context.Context, in TaskInput) (any, error) {
		time.Sleep(10 * time.Millisecond)
		completed.Add(1)
		return "ok", nil
	})
	reg.Register("a", failing("a exploded"))
	reg.Register("b", slow)
	reg.Register("c", slow)
	reg.Register("p", TaskFunc(func(ctx context.Context, in TaskInput) (any, error) { panic("kaboom") }))
	reg.Register("after", value("done"))

	g, err := Build(&Spec{Phases: []PhaseSpec{
		{Name: "fanout", Mode: ModeParallel, Tasks: []TaskSpec{{Name: "a"}, {Name: "b"}, {Name: "c"}, {Name: "p"}}},
		{Name: "tail", Mode: ModeSequential, Tasks: []TaskSpec{{Name: "after", DependsOn: []string{AllPrior}}}},
	}}, reg)
	require.NoError(t, err)

	rec := &recorder{}
	res, err := NewRunner(g, WithObserver(rec)).Execute(context.Background(), "run-1", testContext())
	require.NoError(t, err)
	assert.Equal(t, int32(2), completed.Load())
	assert.Equal(t, "ok", res.Results["b"])
	assert.Equal(t, "ok", res.Results["c"])
	assert.Equal(t, "done", res.Results["after"])
	assert.NotContains(t, res.Results, "a")
	require.Len(t, res.Metrics.Errors, 2)
	assert.Equal(t, []EventType{EventAgentStart, EventAgentError}, rec.types("a"))
	assert.Equal(t, []EventType{EventAgentStart, EventAgentError}, rec.types("p"))
	assert.False(t, rec.has(EventRunError))
}

func TestSequentialPhaseAborts(t *testing.T) {
	reg := NewRegistry()
	var ran atomic.Int32
	counting := TaskFunc(func(ctx context.Context, in TaskInput) (any, error) {
		ran.Add(1)
		return nil, nil
	})
	reg.Register("boom", failing("no day structure"))
	reg.Register("second", counting)
	reg.Register("later", counting)

	g, err := Build(&Spec{Phases: []PhaseSpec{
		{Name: "structure", Mode: ModeSequential, Tasks: []TaskSpec{{Name: "boom"}, {Name: "second"}}},
		{Name: "rest", Mode: ModeParallel, Tasks: []TaskSpec{{Name: "later"}}},
	}}, reg)
	require.NoError(t, err)

	persisted := 0
	rec := &recorder{}
	res, err := NewRunner(g, WithObserver(rec), WithPersister(PersisterFunc(func(context.Context, string, string, int, map[string]any) error {
		persisted++
		return nil
	}))).Execute(context.Background(), "run-1", testContext())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no day structure")
	assert.Zero(t, ran.Load())
	assert.Zero(t, persisted)
	require.NotNil(t, res)
	require.Len(t, res.Metrics.Errors, 1)
	assert.Equal(t, "boom", res.Metrics.Errors[0].Task)
	assert.True(t, rec.has(EventRunError))
	assert.False(t, rec.has(EventRunComplete))
}

func TestPersisterErrorsDoNotFailRun(t *testing.T) {
	reg := NewRegistry()
	reg.Register("a", value(1))
	g, err := Build(&Spec{Phases: []PhaseSpec{{Name: "p", Mode: ModeSequential, Tasks: []TaskSpec{{Name: "a"}}}}}, reg)
	require.NoError(t, err)

	_, err = NewRunner(g, WithPersister(PersisterFunc(func(context.Context, string, string, int, map[string]any) error {
		return errors.New("disk full")
	}))).Execute(context.Background(), "run-1", testContext())
	assert.NoError(t, err)
}

func TestChannelObserver(t *testing.T) {
	reg := NewRegistry()
	reg.Register("a", value(1))
	g, err := Build(&Spec{Phases: []PhaseSpec{{Name: "p", Mode: ModeSequential, Tasks: []TaskSpec{{Name: "a"}}}}}, reg)
	require.NoError(t, err)

	ch := make(chan Event, 16)
	_, err = NewRunner(g, WithObserver(ChannelObserver(ch))).Execute(context.Background(), "run-1", testContext())
	require.NoError(t, err)
	close(ch)

	var types []EventType
	for e := range ch {
		assert.Equal(t, "run-1", e.RunID)
		types = append(types, e.Type)
	}
	assert.Equal(t, []EventType{EventPhaseStart, EventAgentStart, EventAgentComplete, EventPhaseComplete, EventRunComplete}, types)
}
