package discovery

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xiaot623/gogo/planner/internal/domain"
	"github.com/xiaot623/gogo/planner/internal/knowledge"
)

// 2026-05-05 is a Tuesday.
var tuesday = time.Date(2026, 5, 5, 0, 0, 0, 0, time.UTC)

func window(day time.Time, startHour, minutes int) domain.TimeWindow {
	start := day.Add(time.Duration(startHour) * time.Hour)
	return domain.TimeWindow{Start: start, End: start.Add(time.Duration(minutes) * time.Minute)}
}

func newContext(budget float64, style string) *knowledge.SharedContext {
	return knowledge.New("r1", knowledge.Constraints{
		Budget:      knowledge.BudgetConstraint{Total: budget},
		Cities:      []string{"Lisbon"},
		TravelStyle: style,
	})
}

func TestBuildStrategyDefaults(t *testing.T) {
	sc := newContext(0, "")
	s := BuildStrategy(sc, domain.DiscoveryRequest{City: "Lisbon", Window: window(tuesday, 14, 180)})

	assert.Equal(t, FocusBalanced, s.Focus)
	assert.Empty(t, s.Constraints)
	assert.Empty(t, s.Preferences)
	assert.Empty(t, s.Avoid)
	assert.Empty(t, s.Reasoning)
}

func TestBuildStrategyDiversifies(t *testing.T) {
	sc := newContext(0, "")
	for i := 0; i < 6; i++ {
		sc.TrackActivityType("museum")
	}
	s := BuildStrategy(sc, domain.DiscoveryRequest{Window: window(tuesday, 14, 180)})
	assert.Equal(t, FocusDiversify, s.Focus)
	assert.Contains(t, s.Avoid, "museum")
	assert.Contains(t, s.Reasoning, "museum")
}

func TestBuildStrategyBudgetRules(t *testing.T) {
	sc := newContext(300, "")
	sc.UpdateBudget(210)
	s := BuildStrategy(sc, domain.DiscoveryRequest{Window: window(tuesday, 14, 180)})
	assert.Contains(t, s.Constraints, ConstraintFreeOrLowCost)
	assert.Contains(t, s.Preferences, PrefGoodValue)

	sc = newContext(1000, "")
	sc.UpdateBudget(100)
	s = BuildStrategy(sc, domain.DiscoveryRequest{Window: window(tuesday, 14, 180)})
	assert.NotContains(t, s.Constraints, ConstraintFreeOrLowCost)
	assert.NotContains(t, s.Preferences, PrefGoodValue)
}

func TestBuildStrategyTimeOfDay(t *testing.T) {
	sc := newContext(0, "")
	morning := BuildStrategy(sc, domain.DiscoveryRequest{Window: window(tuesday, 8, 120)})
	assert.Contains(t, morning.Preferences, PrefEarlyOpening)
	assert.Contains(t, morning.Preferences, PrefBreakfastFriendly)
	assert.Contains(t, morning.Avoid, AvoidLateOpening)

	evening := BuildStrategy(sc, domain.DiscoveryRequest{Window: window(tuesday, 19, 120)})
	assert.Contains(t, evening.Preferences, PrefEvening)
	assert.Contains(t, evening.Preferences, PrefNightlife)
}

func TestBuildStrategyMondayAndSunday(t *testing.T) {
	sc := newContext(0, "")
	monday := tuesday.AddDate(0, 0, -1)
	sunday := tuesday.AddDate(0, 0, -2)

	s := BuildStrategy(sc, domain.DiscoveryRequest{Window: window(monday, 14, 120)})
	assert.Contains(t, s.Constraints, "must_be_open_monday")

	s = BuildStrategy(sc, domain.DiscoveryRequest{Window: window(sunday, 14, 120)})
	assert.Contains(t, s.Constraints, "must_be_open_sunday")

	s = BuildStrategy(sc, domain.DiscoveryRequest{Window: window(tuesday, 14, 120)})
	assert.Empty(t, s.Constraints)
}

func TestBuildStrategyEnergyBalancing(t *testing.T) {
	sc := newContext(0, "")
	sc.TrackEnergyLevel(domain.EnergyHigh)
	sc.TrackEnergyLevel(domain.EnergyHigh)
	s := BuildStrategy(sc, domain.DiscoveryRequest{Window: window(tuesday, 14, 120)})
	assert.Contains(t, s.Preferences, PrefRelaxed)
	assert.Contains(t, s.Avoid, AvoidStrenuous)

	sc = newContext(0, "")
	sc.TrackEnergyLevel(domain.EnergyRelaxed)
	sc.TrackEnergyLevel(domain.EnergyRelaxed)
	s = BuildStrategy(sc, domain.DiscoveryRequest{Window: window(tuesday, 14, 120)})
	assert.Contains(t, s.Preferences, PrefActive)
	assert.Contains(t, s.Avoid, AvoidSedentary)
}

func TestBuildStrategyStyleInvalidAndProximity(t *testing.T) {
	sc := newContext(0, "foodie")
	sc.MarkPlaceInvalid("Ghost Bar", "not found")
	sc.UpdateLocation(domain.Coordinates{Lat: 38.7, Lng: -9.1})

	s := BuildStrategy(sc, domain.DiscoveryRequest{Window: window(tuesday, 14, 120)})
	assert.Contains(t, s.Preferences, "style:foodie")
	assert.Contains(t, s.AvoidPlaces, "Ghost Bar")
	assert.NotContains(t, s.Avoid, "Ghost Bar")
	assert.True(t, s.Avoids("ghost bar"))
	assert.Contains(t, s.Preferences, "near:38.70000,-9.10000")
}

func TestBuildStrategyWindowDuration(t *testing.T) {
	sc := newContext(0, "")
	short := BuildStrategy(sc, domain.DiscoveryRequest{Window: window(tuesday, 14, 60)})
	assert.Contains(t, short.Constraints, ConstraintShortDuration)

	long := BuildStrategy(sc, domain.DiscoveryRequest{Window: window(tuesday, 13, 300)})
	assert.Contains(t, long.Preferences, PrefImmersive)
}

func TestBuildStrategyReasoningFollowsRuleOrder(t *testing.T) {
	sc := newContext(0, "cultural")
	monday := tuesday.AddDate(0, 0, -1)
	s := BuildStrategy(sc, domain.DiscoveryRequest{
		Window:      window(monday, 8, 60),
		Constraints: []string{"require_exact_address"},
	})

	assert.Equal(t, []string{"must_be_open_monday", ConstraintShortDuration, "require_exact_address"}, s.Constraints)
	order := []string{"Morning slot", "Monday", "cultural", "short visit", "feedback"}
	last := -1
	for _, marker := range order {
		idx := strings.Index(s.Reasoning, marker)
		require.Greater(t, idx, last, "%q out of order in %q", marker, s.Reasoning)
		last = idx
	}
}
