package planner

import (
	"fmt"
	"time"

	"github.com/xiaot623/gogo/planner/internal/domain"
)

// MaxTripDays bounds the length of a planned trip.
const MaxTripDays = 21

type slotTemplate struct {
	name    string
	purpose domain.Purpose
	start   time.Duration
	end     time.Duration
}

var daySlots = []slotTemplate{
	{"morning", domain.PurposeActivity, 9 * time.Hour, 12 * time.Hour},
	{"lunch", domain.PurposeRestaurant, 12*time.Hour + 30*time.Minute, 14 * time.Hour},
	{"afternoon", domain.PurposeActivity, 14*time.Hour + 30*time.Minute, 18 * time.Hour},
	{"dinner", domain.PurposeRestaurant, 19*time.Hour + 30*time.Minute, 21*time.Hour + 30*time.Minute},
}

var defaultThemes = []string{"highlights", "local life", "culture", "outdoors"}

// BuildDayPlans lays out one plan per trip day. Cities are visited in
// order, each getting an equal share of the days.
func BuildDayPlans(prefs domain.TripPreferences) ([]domain.DayPlan, error) {
	if err := prefs.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	start, end, _ := prefs.Dates()
	days := int(end.Sub(start).Hours()/24) + 1
	if days > MaxTripDays {
		return nil, fmt.Errorf("%w: trip of %d days exceeds %d", domain.ErrInvalidRequest, days, MaxTripDays)
	}

	themes := prefs.Interests
	if len(themes) == 0 {
		themes = defaultThemes
	}

	plans := make([]domain.DayPlan, days)
	for i := range plans {
		date := start.AddDate(0, 0, i)
		plan := domain.DayPlan{
			Day:   i + 1,
			Date:  date.Format(domain.DateLayout),
			City:  prefs.Cities[i*len(prefs.Cities)/days],
			Theme: themes[i%len(themes)],
		}
		for _, t := range daySlots {
			plan.Slots = append(plan.Slots, domain.Slot{
				Name:    t.name,
				Purpose: t.purpose,
				Window:  domain.TimeWindow{Start: date.Add(t.start), End: date.Add(t.end)},
			})
		}
		plans[i] = plan
	}
	return plans, nil
}
