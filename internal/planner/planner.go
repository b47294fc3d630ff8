// Package planner wires the itinerary tasks into an execution graph.
package planner

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"sort"

	"github.com/xiaot623/gogo/planner/internal/agent"
	"github.com/xiaot623/gogo/planner/internal/domain"
	"github.com/xiaot623/gogo/planner/internal/graph"
	"github.com/xiaot623/gogo/planner/internal/knowledge"
)

//go:embed default_graph.yaml
var defaultGraph []byte

// Task names the assembled itinerary depends on.
const (
	TaskDayStructure   = "day_structure"
	TaskActivities     = "activities"
	TaskRestaurants    = "restaurants"
	TaskBudgetReview   = "budget_review"
	TaskScheduleReview = "schedule_review"
	TaskAssemble       = "assemble"

	taskSlots = "slots"
)

// SlotRunner fills one slot through the feedback loop.
type SlotRunner interface {
	Run(ctx context.Context, sc *knowledge.SharedContext, phase string, req domain.DiscoveryRequest) (*agent.Outcome, error)
}

// DefaultSpec returns the built-in itinerary graph.
func DefaultSpec() (*graph.Spec, error) {
	return graph.ParseSpec(bytes.NewReader(defaultGraph))
}

// Planner runs itinerary graphs.
type Planner struct {
	spec  *graph.Spec
	slots SlotRunner
}

// New creates a planner. A nil spec uses DefaultSpec.
func New(slots SlotRunner, spec *graph.Spec) (*Planner, error) {
	if spec == nil {
		var err error
		if spec, err = DefaultSpec(); err != nil {
			return nil, err
		}
	}
	p := &Planner{spec: spec, slots: slots}
	// Fail at startup rather than on the first run.
	if _, err := graph.Build(spec, p.registry(domain.TripPreferences{})); err != nil {
		return nil, err
	}
	return p, nil
}

// Outcome is the result of one planning run.
type Outcome struct {
	Itinerary *domain.Itinerary
	Result    *graph.Result
}

// Plan runs the graph for prefs against sc. A failure of a sequential
// phase is returned as an error together with the partial result.
func (p *Planner) Plan(ctx context.Context, sc *knowledge.SharedContext, prefs domain.TripPreferences, opts ...graph.RunnerOption) (*Outcome, error) {
	g, err := graph.Build(p.spec, p.registry(prefs))
	if err != nil {
		return nil, err
	}
	res, err := graph.NewRunner(g, opts...).Execute(ctx, sc.RunID(), sc)
	out := &Outcome{Result: res}
	if err != nil {
		return out, err
	}
	it, ok := res.Results[TaskAssemble].(*domain.Itinerary)
	if !ok {
		return out, fmt.Errorf("graph %q produced no itinerary", p.spec.Name)
	}
	out.Itinerary = it
	return out, nil
}

func (p *Planner) registry(prefs domain.TripPreferences) *graph.Registry {
	reg := graph.NewRegistry()
	reg.Register(TaskDayStructure, graph.TaskFunc(func(ctx context.Context, in graph.TaskInput) (any, error) {
		return BuildDayPlans(prefs)
	}))
	reg.Register(taskSlots, &slotTask{runner: p.slots})
	reg.Register(TaskBudgetReview, graph.TaskFunc(budgetReview))
	reg.Register(TaskScheduleReview, graph.TaskFunc(scheduleReview))
	reg.Register(TaskAssemble, graph.TaskFunc(func(ctx context.Context, in graph.TaskInput) (any, error) {
		return assemble(in, prefs)
	}))
	return reg
}

func dayPlans(in graph.TaskInput) ([]domain.DayPlan, error) {
	plans, ok := in.Results[TaskDayStructure].([]domain.DayPlan)
	if !ok {
		return nil, fmt.Errorf("%s result missing", TaskDayStructure)
	}
	return plans, nil
}

func scheduledItems(in graph.TaskInput, task string) ([]domain.ScheduledItem, bool) {
	items, ok := in.Results[task].([]domain.ScheduledItem)
	return items, ok
}

func assemble(in graph.TaskInput, prefs domain.TripPreferences) (*domain.Itinerary, error) {
	plans, err := dayPlans(in)
	if err != nil {
		return nil, err
	}

	it := &domain.Itinerary{
		RunID:     in.RunID,
		Cities:    prefs.Cities,
		StartDate: prefs.StartDate,
		EndDate:   prefs.EndDate,
	}
	byDay := make(map[int][]domain.ScheduledItem)
	for _, task := range []string{TaskActivities, TaskRestaurants} {
		items, ok := scheduledItems(in, task)
		if !ok {
			it.Gaps = append(it.Gaps, fmt.Sprintf("%s could not be planned", task))
			continue
		}
		for _, item := range items {
			byDay[item.Day] = append(byDay[item.Day], item)
			if item.Fallback {
				it.Fallbacks++
			}
		}
	}

	for _, plan := range plans {
		items := byDay[plan.Day]
		sort.SliceStable(items, func(i, j int) bool { return items[i].Start < items[j].Start })
		it.Days = append(it.Days, domain.ItineraryDay{
			Day:   plan.Day,
			Date:  plan.Date,
			City:  plan.City,
			Theme: plan.Theme,
			Items: items,
		})
	}

	if b, ok := in.Results[TaskBudgetReview].(domain.BudgetSummary); ok {
		it.Budget = b
	} else {
		it.Budget = budgetSummary(in.Knowledge)
	}
	return it, nil
}
