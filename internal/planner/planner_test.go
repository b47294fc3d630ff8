package planner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/planner/internal/adapter/llm"
	"github.com/xiaot623/gogo/planner/internal/agent"
	"github.com/xiaot623/gogo/planner/internal/discovery"
	"github.com/xiaot623/gogo/planner/internal/domain"
	"github.com/xiaot623/gogo/planner/internal/graph"
	"github.com/xiaot623/gogo/planner/internal/knowledge"
	"github.com/xiaot623/gogo/planner/internal/validation"
)

type fakeSlots struct {
	mu      sync.Mutex
	calls   []domain.DiscoveryRequest
	fail    domain.Purpose
	exhaust bool
}

func (f *fakeSlots) Run(ctx context.Context, sc *knowledge.SharedContext, phase string, req domain.DiscoveryRequest) (*agent.Outcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	if req.Purpose == f.fail {
		return nil, errors.New("knowledge source unavailable")
	}
	if f.exhaust {
		return &agent.Outcome{Attempts: agent.DefaultMaxAttempts, Fallback: true, FinalRequest: req}, nil
	}
	sc.UpdateBudget(10)
	name := req.City + " " + req.Slot
	return &agent.Outcome{
		Success:    true,
		Attempts:   1,
		Confidence: 0.9,
		Selected: &domain.SelectionScore{
			Result: domain.ValidationResult{
				Candidate: domain.DiscoveryCandidate{Name: name, Type: "museum", EstimatedCost: 10},
				Valid:     true,
				Place:     &domain.Place{Name: name, Address: "1 Main St"},
			},
			Score:     80,
			Reasoning: "close by",
		},
		Alternatives: []domain.SelectionScore{{
			Result:          domain.ValidationResult{Candidate: domain.DiscoveryCandidate{Name: "runner up"}},
			Score:           60,
			RejectionReason: "scored 60.0, 20.0 points below " + name,
		}},
		FinalRequest: req,
	}, nil
}

func prefs() domain.TripPreferences {
	return domain.TripPreferences{
		Cities:    []string{"Lisbon", "Porto"},
		StartDate: "2026-05-05",
		EndDate:   "2026-05-07",
		Budget:    500,
		Currency:  "EUR",
		Interests: []string{"food", "history"},
	}
}

func plan(t *testing.T, slots SlotRunner, p domain.TripPreferences, opts ...graph.RunnerOption) (*Outcome, *knowledge.SharedContext, error) {
	t.Helper()
	pl, err := New(slots, nil)
	require.NoError(t, err)
	sc, err := knowledge.FromPreferences("run-1", p)
	require.NoError(t, err)
	out, err := pl.Plan(context.Background(), sc, p, opts...)
	return out, sc, err
}

func TestBuildDayPlans(t *testing.T) {
	plans, err := BuildDayPlans(prefs())
	require.NoError(t, err)
	require.Len(t, plans, 3)

	assert.Equal(t, []string{"Lisbon", "Lisbon", "Porto"}, []string{plans[0].City, plans[1].City, plans[2].City})
	assert.Equal(t, []string{"food", "history", "food"}, []string{plans[0].Theme, plans[1].Theme, plans[2].Theme})
	assert.Equal(t, "2026-05-06", plans[1].Date)

	require.Len(t, plans[0].Slots, 4)
	lunch := plans[1].Slots[1]
	assert.Equal(t, "lunch", lunch.Name)
	assert.Equal(t, domain.PurposeRestaurant, lunch.Purpose)
	assert.Equal(t, "2026-05-06 12:30", lunch.Window.Start.Format("2006-01-02 15:04"))
	assert.Equal(t, 90, int(lunch.Window.Duration().Minutes()))
}

func TestBuildDayPlansDefaultThemes(t *testing.T) {
	p := prefs()
	p.Interests = nil
	plans, err := BuildDayPlans(p)
	require.NoError(t, err)
	assert.Equal(t, defaultThemes[0], plans[0].Theme)
	assert.Equal(t, defaultThemes[2], plans[2].Theme)
}

func TestBuildDayPlansRejectsBadTrips(t *testing.T) {
	p := prefs()
	p.EndDate = "2026-05-01"
	_, err := BuildDayPlans(p)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	p = prefs()
	p.EndDate = "2026-07-01"
	_, err = BuildDayPlans(p)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestDefaultSpecBuilds(t *testing.T) {
	spec, err := DefaultSpec()
	require.NoError(t, err)
	g, err := graph.Build(spec, (&Planner{}).registry(prefs()))
	require.NoError(t, err)
	assert.Equal(t, []string{"structure", "discovery", "review", "assemble"}, g.PhaseNames())
}

func TestNewRejectsUnknownTask(t *testing.T) {
	spec := &graph.Spec{Name: "broken", Phases: []graph.PhaseSpec{{
		Name: "only", Mode: graph.ModeSequential,
		Tasks: []graph.TaskSpec{{Name: "teleport"}},
	}}}
	_, err := New(&fakeSlots{}, spec)
	assert.ErrorIs(t, err, graph.ErrInvalidGraph)
}

func TestPlanAssemblesItinerary(t *testing.T) {
	slots := &fakeSlots{}
	out, _, err := plan(t, slots, prefs())
	require.NoError(t, err)
	require.NotNil(t, out.Itinerary)

	it := out.Itinerary
	assert.Equal(t, "run-1", it.RunID)
	require.Len(t, it.Days, 3)
	assert.Empty(t, it.Gaps)
	assert.Zero(t, it.Fallbacks)

	day := it.Days[2]
	assert.Equal(t, "Porto", day.City)
	require.Len(t, day.Items, 4)
	var starts []string
	for _, item := range day.Items {
		starts = append(starts, item.Start)
	}
	assert.Equal(t, []string{"09:00", "12:30", "14:30", "19:30"}, starts)
	assert.Equal(t, "Porto dinner", day.Items[3].Name)
	assert.Equal(t, "1 Main St", day.Items[3].Address)
	require.Len(t, day.Items[3].Alternatives, 1)
	assert.Equal(t, "runner up", day.Items[3].Alternatives[0].Name)

	assert.Len(t, slots.calls, 12)
	assert.InDelta(t, 120, it.Budget.Spent, 0.001)
	assert.InDelta(t, 380, it.Budget.Remaining, 0.001)
	assert.Equal(t, "EUR", it.Budget.Currency)

	review, ok := out.Result.Results[TaskScheduleReview].(ScheduleReview)
	require.True(t, ok)
	assert.Equal(t, 12, review.Items)
}

func TestPlanUsesPlaceholdersForExhaustedSlots(t *testing.T) {
	out, _, err := plan(t, &fakeSlots{exhaust: true}, prefs())
	require.NoError(t, err)

	it := out.Itinerary
	assert.Equal(t, 12, it.Fallbacks)
	first := it.Days[0].Items[0]
	assert.True(t, first.Fallback)
	assert.Equal(t, "Free time in Lisbon", first.Name)
	assert.Equal(t, "Local dining in Lisbon", it.Days[0].Items[1].Name)
	assert.Equal(t, agent.DefaultMaxAttempts, first.Attempts)
}

func TestPlanKeepsGoingWhenOneParallelTaskFails(t *testing.T) {
	out, _, err := plan(t, &fakeSlots{fail: domain.PurposeRestaurant}, prefs())
	require.NoError(t, err)

	it := out.Itinerary
	assert.Equal(t, []string{"restaurants could not be planned"}, it.Gaps)
	for _, day := range it.Days {
		require.Len(t, day.Items, 2)
		for _, item := range day.Items {
			assert.Equal(t, domain.PurposeActivity, item.Purpose)
		}
	}
	require.Len(t, out.Result.Metrics.Errors, 1)
	assert.Equal(t, TaskRestaurants, out.Result.Metrics.Errors[0].Task)
}

func TestPlanFailsWhenStructureFails(t *testing.T) {
	p := prefs()
	p.EndDate = "2026-05-01"
	var events []graph.Event
	out, _, err := plan(t, &fakeSlots{}, p, graph.WithObserver(graph.ObserverFunc(func(e graph.Event) {
		events = append(events, e)
	})))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	assert.Nil(t, out.Itinerary)
	require.NotEmpty(t, events)
	assert.Equal(t, graph.EventRunError, events[len(events)-1].Type)
}

func TestPlanPersistsEachPhase(t *testing.T) {
	var percents []int
	_, _, err := plan(t, &fakeSlots{}, prefs(), graph.WithPersister(graph.PersisterFunc(
		func(ctx context.Context, runID, phase string, percent int, results map[string]any) error {
			percents = append(percents, percent)
			return nil
		})))
	require.NoError(t, err)
	assert.Equal(t, []int{25, 50, 75, 100}, percents)
}

func TestPlanWithMockKnowledgeSource(t *testing.T) {
	source := llm.NewKnowledgeSource(llm.NewMockClient(), "mock")
	orch := agent.New(discovery.NewAgent(source), validation.NewStage(nil, 0), agent.WithRetryBackoff(0))

	p := prefs()
	p.EndDate = p.StartDate
	out, sc, err := plan(t, orch, p)
	require.NoError(t, err)

	require.Len(t, out.Itinerary.Days, 1)
	assert.Len(t, out.Itinerary.Days[0].Items, 4)
	assert.Empty(t, out.Result.Metrics.Errors)
	for _, item := range out.Itinerary.Days[0].Items {
		if !item.Fallback {
			assert.True(t, strings.HasPrefix(item.Name, "Lisbon"), item.Name)
		}
	}
	assert.NotEmpty(t, sc.Decisions())
}

func TestPlanNeverRepeatsAPlace(t *testing.T) {
	source := llm.NewKnowledgeSource(llm.NewMockClient(), "mock")
	orch := agent.New(discovery.NewAgent(source), validation.NewStage(nil, 0), agent.WithRetryBackoff(0))

	p := prefs()
	p.Cities = []string{"Lisbon"}
	out, sc, err := plan(t, orch, p)
	require.NoError(t, err)
	require.Len(t, out.Itinerary.Days, 3)

	seen := make(map[string]bool)
	purposes := make(map[domain.Purpose]int)
	for _, day := range out.Itinerary.Days {
		inDay := make(map[string]bool)
		for _, item := range day.Items {
			if item.Fallback {
				continue
			}
			assert.False(t, inDay[item.Name], "day %d repeats %s", day.Day, item.Name)
			assert.False(t, seen[item.Name], "%s scheduled twice", item.Name)
			inDay[item.Name] = true
			seen[item.Name] = true
			purposes[item.Purpose]++
		}
	}
	// The mock catalogue holds six activities and four restaurants per city.
	assert.Equal(t, 6, purposes[domain.PurposeActivity])
	assert.Equal(t, 4, purposes[domain.PurposeRestaurant])
	assert.Equal(t, len(seen), sc.ValidatedCount())
	assert.False(t, sc.NeedsDiversification().NeedsDiversification)
}
