package discovery

import (
	"fmt"
	"strings"
	"time"

	"github.com/xiaot623/gogo/planner/internal/domain"
	"github.com/xiaot623/gogo/planner/internal/knowledge"
)

// Hard constraints.
const (
	ConstraintFreeOrLowCost = "free_or_low_cost"
	ConstraintShortDuration = "short_duration"
	ConstraintOpenPrefix    = "must_be_open_"
)

// Soft preferences and avoidances.
const (
	FocusBalanced  = "balanced"
	FocusDiversify = "diversify"

	PrefGoodValue         = "good_value"
	PrefEarlyOpening      = "early_opening"
	PrefBreakfastFriendly = "breakfast_friendly"
	PrefEvening           = "evening"
	PrefNightlife         = "nightlife"
	PrefRelaxed           = "relaxed"
	PrefActive            = "active"
	PrefImmersive         = "substantial_immersive"
	PrefStylePrefix       = "style:"
	PrefNearPrefix        = "near:"

	AvoidLateOpening = "late_opening"
	AvoidStrenuous   = "strenuous"
	AvoidSedentary   = "sedentary"
)

const (
	lowBudgetThreshold  = 100.0
	goodValuePercent    = 70.0
	morningCutoffHour   = 10
	eveningStartHour    = 19
	energySkewThreshold = 1
	shortWindow         = 90 * time.Minute
	longWindow          = 240 * time.Minute
)

// OpenConstraint is the hard constraint requiring a venue open on day.
func OpenConstraint(day time.Weekday) string {
	return ConstraintOpenPrefix + strings.ToLower(day.String())
}

type strategyBuilder struct {
	s       domain.Strategy
	reasons []string
}

func (b *strategyBuilder) constrain(c string) {
	b.s.Constraints = appendUnique(b.s.Constraints, c)
}

func (b *strategyBuilder) prefer(p string) {
	b.s.Preferences = appendUnique(b.s.Preferences, p)
}

func (b *strategyBuilder) avoid(a string) {
	b.s.Avoid = appendUnique(b.s.Avoid, a)
}

func (b *strategyBuilder) skipPlace(name string) {
	if !b.s.Avoids(name) {
		b.s.AvoidPlaces = append(b.s.AvoidPlaces, name)
	}
}

func (b *strategyBuilder) explain(format string, args ...any) {
	b.reasons = append(b.reasons, fmt.Sprintf(format, args...))
}

// BuildStrategy derives the discovery strategy for req from the current
// shared context. Rules run in a fixed order and only ever add.
func BuildStrategy(sc *knowledge.SharedContext, req domain.DiscoveryRequest) domain.Strategy {
	b := &strategyBuilder{s: domain.Strategy{Focus: FocusBalanced}}

	if div := sc.NeedsDiversification(); div.NeedsDiversification {
		b.s.Focus = FocusDiversify
		if div.OverrepresentedType != "" {
			b.avoid(div.OverrepresentedType)
			b.explain("Diversifying away from %s (%s).", div.OverrepresentedType, div.Reason)
		} else {
			b.explain("Diversifying the schedule (%s).", div.Reason)
		}
	}

	if budget := sc.BudgetStatus(); budget.Tracked {
		if budget.Remaining < lowBudgetThreshold {
			b.constrain(ConstraintFreeOrLowCost)
			b.explain("Only %.0f of the budget remains, so options must be free or low cost.", budget.Remaining)
		}
		if budget.PercentUsed >= goodValuePercent {
			b.prefer(PrefGoodValue)
			b.explain("%.0f%% of the budget is spent; preferring good value.", budget.PercentUsed)
		}
	}

	if !req.Window.Start.IsZero() {
		hour := req.Window.Start.Hour()
		switch {
		case hour < morningCutoffHour:
			b.prefer(PrefEarlyOpening)
			b.prefer(PrefBreakfastFriendly)
			b.avoid(AvoidLateOpening)
			b.explain("Morning slot starting %s needs places that open early.", req.Window.Start.Format("15:04"))
		case hour >= eveningStartHour:
			b.prefer(PrefEvening)
			b.prefer(PrefNightlife)
			b.explain("Evening slot starting %s suits evening venues.", req.Window.Start.Format("15:04"))
		}

		switch day := req.DayOfWeek(); day {
		case time.Monday, time.Sunday:
			b.constrain(OpenConstraint(day))
			b.explain("Many venues close on %s; candidates must be open.", day)
		}
	}

	high, relaxed := sc.EnergyBalance()
	switch {
	case high-relaxed > energySkewThreshold:
		b.prefer(PrefRelaxed)
		b.avoid(AvoidStrenuous)
		b.explain("Balancing %d high-energy activities with something relaxed.", high)
	case relaxed-high > energySkewThreshold:
		b.prefer(PrefActive)
		b.avoid(AvoidSedentary)
		b.explain("Balancing %d relaxed activities with something active.", relaxed)
	}

	if style := sc.Constraints().TravelStyle; style != "" {
		b.prefer(PrefStylePrefix + style)
		b.explain("Matching the %s travel style.", style)
	}

	if invalid := sc.InvalidPlaceNames(); len(invalid) > 0 {
		for _, name := range invalid {
			b.skipPlace(name)
		}
		b.explain("Avoiding %d places that failed validation earlier.", len(invalid))
	}

	if scheduled := sc.ValidatedPlaceNames(); len(scheduled) > 0 {
		for _, name := range scheduled {
			b.skipPlace(name)
		}
		b.explain("Skipping %d places already in the itinerary.", len(scheduled))
	}

	if loc := sc.State().LastLocation; loc != nil {
		b.prefer(fmt.Sprintf("%s%.5f,%.5f", PrefNearPrefix, loc.Lat, loc.Lng))
		b.explain("Preferring places close to the previous stop.")
	}

	if d := req.Window.Duration(); d > 0 {
		switch {
		case d < shortWindow:
			b.constrain(ConstraintShortDuration)
			b.explain("The %d minute window requires a short visit.", int(d.Minutes()))
		case d > longWindow:
			b.prefer(PrefImmersive)
			b.explain("The %d minute window allows something substantial.", int(d.Minutes()))
		}
	}

	for _, c := range req.Constraints {
		b.constrain(c)
	}
	if len(req.Constraints) > 0 {
		b.explain("Applying feedback from earlier attempts: %s.", strings.Join(req.Constraints, ", "))
	}

	b.s.Reasoning = strings.Join(b.reasons, " ")
	return b.s
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
