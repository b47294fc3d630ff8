package knowledge

import (
	"sort"
	"time"
)

// Snapshot is the archived form of a shared context.
type Snapshot struct {
	RunID           string             `json:"run_id"`
	StartedAt       time.Time          `json:"started_at"`
	Constraints     Constraints        `json:"constraints"`
	State           State              `json:"state"`
	Statistics      ScheduleStatistics `json:"statistics"`
	Budget          BudgetStatus       `json:"budget"`
	ValidatedPlaces []ValidatedPlace   `json:"validated_places"`
	InvalidPlaces   []InvalidPlace     `json:"invalid_places"`
	Communications  int                `json:"communications"`
}

// Snapshot captures the context for audit. The decision log is flushed
// separately.
func (sc *SharedContext) Snapshot() Snapshot {
	snap := Snapshot{
		RunID:       sc.runID,
		StartedAt:   sc.startedAt,
		Constraints: sc.Constraints(),
		State:       sc.State(),
		Statistics:  sc.ScheduleStatistics(),
		Budget:      sc.BudgetStatus(),
	}
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	for _, p := range sc.validatedPlaces {
		snap.ValidatedPlaces = append(snap.ValidatedPlaces, p)
	}
	for _, p := range sc.invalidPlaces {
		snap.InvalidPlaces = append(snap.InvalidPlaces, p)
	}
	snap.Communications = len(sc.communications)
	sort.Slice(snap.ValidatedPlaces, func(i, j int) bool { return snap.ValidatedPlaces[i].Name < snap.ValidatedPlaces[j].Name })
	sort.Slice(snap.InvalidPlaces, func(i, j int) bool { return snap.InvalidPlaces[i].Name < snap.InvalidPlaces[j].Name })
	return snap
}
