package knowledge

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xiaot623/gogo/planner/internal/domain"
)

const (
	overrepresentedTypeMin = 3
	diversifyActivityMin   = 5
	energySkewMax          = 2
)

// Diversification is the result of NeedsDiversification.
type Diversification struct {
	NeedsDiversification bool   `json:"needs_diversification"`
	OverrepresentedType  string `json:"overrepresented_type,omitempty"`
	EnergyImbalance      bool   `json:"energy_imbalance,omitempty"`
	Reason               string `json:"reason,omitempty"`
}

// TrackActivityType counts an activity category.
func (sc *SharedContext) TrackActivityType(activityType string) {
	key := strings.ToLower(strings.TrimSpace(activityType))
	if key == "" {
		return
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.stats.ActivityTypes[key]++
}

// TrackEnergyLevel counts an energy level.
func (sc *SharedContext) TrackEnergyLevel(level domain.EnergyLevel) {
	key := strings.ToLower(strings.TrimSpace(string(level)))
	if key == "" {
		return
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.stats.EnergyLevels[key]++
}

// EnergyBalance returns the high-energy and relaxed counts.
func (sc *SharedContext) EnergyBalance() (high, relaxed int) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.stats.EnergyLevels[string(domain.EnergyHigh)], sc.stats.EnergyLevels[string(domain.EnergyRelaxed)]
}

// NeedsDiversification reports whether the schedule is skewed: some
// activity type was seen at least three times while more than five
// activities were tracked, or high-energy activities outnumber relaxed
// ones by more than two. The most frequent type wins; ties go to the
// alphabetically first type.
func (sc *SharedContext) NeedsDiversification() Diversification {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	total := 0
	types := make([]string, 0, len(sc.stats.ActivityTypes))
	for t, n := range sc.stats.ActivityTypes {
		total += n
		types = append(types, t)
	}
	sort.Strings(types)

	var out Diversification
	if total > diversifyActivityMin {
		best := 0
		for _, t := range types {
			if n := sc.stats.ActivityTypes[t]; n >= overrepresentedTypeMin && n > best {
				best = n
				out.OverrepresentedType = t
			}
		}
		if out.OverrepresentedType != "" {
			out.NeedsDiversification = true
			out.Reason = fmt.Sprintf("%s appears %d times in %d activities", out.OverrepresentedType, best, total)
		}
	}

	high := sc.stats.EnergyLevels[string(domain.EnergyHigh)]
	relaxed := sc.stats.EnergyLevels[string(domain.EnergyRelaxed)]
	if high-relaxed > energySkewMax {
		out.NeedsDiversification = true
		out.EnergyImbalance = true
		msg := fmt.Sprintf("%d high-energy vs %d relaxed activities", high, relaxed)
		if out.Reason == "" {
			out.Reason = msg
		} else {
			out.Reason += "; " + msg
		}
	}
	return out
}

// ScheduleStatistics is a derived view of what has been scheduled so far.
type ScheduleStatistics struct {
	ActivitiesScheduled  int            `json:"activities_scheduled"`
	RestaurantsScheduled int            `json:"restaurants_scheduled"`
	ActivityTypes        map[string]int `json:"activity_types"`
	EnergyLevels         map[string]int `json:"energy_levels"`
	ValidatedPlaces      int            `json:"validated_places"`
	InvalidPlaces        int            `json:"invalid_places"`
	Decisions            int            `json:"decisions"`
}

// ScheduleStatistics returns the current schedule statistics.
func (sc *SharedContext) ScheduleStatistics() ScheduleStatistics {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return ScheduleStatistics{
		ActivitiesScheduled:  sc.state.ActivitiesScheduled,
		RestaurantsScheduled: sc.state.RestaurantsScheduled,
		ActivityTypes:        copyCounts(sc.stats.ActivityTypes),
		EnergyLevels:         copyCounts(sc.stats.EnergyLevels),
		ValidatedPlaces:      len(sc.validatedPlaces),
		InvalidPlaces:        len(sc.invalidPlaces),
		Decisions:            len(sc.decisions),
	}
}

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
