// Package knowledge provides the per-run shared context every agent of an
// itinerary-generation run reads and mutates.
//
// A SharedContext is created at run start and discarded when the run ends.
// Every method is safe for concurrent use. Individual operations are atomic;
// a read followed by a write from the same caller is not.
package knowledge

import (
	"sync"
	"time"

	"github.com/xiaot623/gogo/planner/internal/domain"
)

// BudgetConstraint holds the trip budget. Remaining is only tracked when
// Total is positive.
type BudgetConstraint struct {
	Total     float64 `json:"total"`
	Remaining float64 `json:"remaining"`
	Tracked   bool    `json:"tracked"`
	Currency  string  `json:"currency,omitempty"`
}

// Constraints are fixed for the lifetime of the run, apart from the
// remaining budget.
type Constraints struct {
	Budget      BudgetConstraint `json:"budget"`
	StartDate   time.Time        `json:"start_date"`
	EndDate     time.Time        `json:"end_date"`
	Cities      []string         `json:"cities"`
	TravelStyle string           `json:"travel_style,omitempty"`
}

// State holds run-scoped counters.
type State struct {
	BudgetSpent          float64             `json:"budget_spent"`
	LastLocation         *domain.Coordinates `json:"last_location,omitempty"`
	ActivitiesScheduled  int                 `json:"activities_scheduled"`
	RestaurantsScheduled int                 `json:"restaurants_scheduled"`
	CurrentDay           int                 `json:"current_day"`
	CurrentCity          string              `json:"current_city,omitempty"`
}

// Statistics feed the diversification heuristic.
type Statistics struct {
	ActivityTypes map[string]int `json:"activity_types"`
	EnergyLevels  map[string]int `json:"energy_levels"`
}

// InvalidPlace is an entry of the negative cache.
type InvalidPlace struct {
	Name     string    `json:"name"`
	Reason   string    `json:"reason"`
	MarkedAt time.Time `json:"marked_at"`
}

// ValidatedPlace is an entry of the positive cache.
type ValidatedPlace struct {
	Name       string                    `json:"name"`
	Candidate  domain.DiscoveryCandidate `json:"candidate"`
	Place      *domain.Place             `json:"place,omitempty"`
	Confidence float64                   `json:"confidence"`
	AddedAt    time.Time                 `json:"added_at"`
}

// SharedContext is the knowledge base of one run.
type SharedContext struct {
	runID       string
	startedAt   time.Time
	now         func() time.Time
	constraints Constraints

	mu              sync.RWMutex
	state           State
	stats           Statistics
	validatedPlaces map[string]ValidatedPlace
	invalidPlaces   map[string]InvalidPlace
	decisions       []domain.Decision
	nextDecisionID  int64
	communications  []domain.Communication
}

// Option configures a SharedContext.
type Option func(*SharedContext)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(sc *SharedContext) {
		sc.now = now
	}
}

// New creates the shared context for a run.
func New(runID string, constraints Constraints, opts ...Option) *SharedContext {
	sc := &SharedContext{
		runID: runID,
		now:   time.Now,
		stats: Statistics{
			ActivityTypes: make(map[string]int),
			EnergyLevels:  make(map[string]int),
		},
		validatedPlaces: make(map[string]ValidatedPlace),
		invalidPlaces:   make(map[string]InvalidPlace),
	}
	for _, opt := range opts {
		opt(sc)
	}
	if constraints.Budget.Total > 0 {
		constraints.Budget.Tracked = true
		constraints.Budget.Remaining = constraints.Budget.Total
	}
	constraints.Cities = append([]string(nil), constraints.Cities...)
	sc.constraints = constraints
	sc.startedAt = sc.now()
	return sc
}

// FromPreferences builds the constraints of a run from trip preferences.
func FromPreferences(runID string, prefs domain.TripPreferences, opts ...Option) (*SharedContext, error) {
	start, end, err := prefs.Dates()
	if err != nil {
		return nil, err
	}
	return New(runID, Constraints{
		Budget:      BudgetConstraint{Total: prefs.Budget, Currency: prefs.Currency},
		StartDate:   start,
		EndDate:     end,
		Cities:      prefs.Cities,
		TravelStyle: prefs.TravelStyle,
	}, opts...), nil
}

// RunID returns the id of the owning run.
func (sc *SharedContext) RunID() string {
	return sc.runID
}

// Constraints returns a copy of the run constraints.
func (sc *SharedContext) Constraints() Constraints {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	c := sc.constraints
	c.Cities = append([]string(nil), sc.constraints.Cities...)
	return c
}

// State returns a copy of the run state.
func (sc *SharedContext) State() State {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	s := sc.state
	if s.LastLocation != nil {
		loc := *s.LastLocation
		s.LastLocation = &loc
	}
	return s
}

// SetCurrent records which day and city the caller is working on.
func (sc *SharedContext) SetCurrent(day int, city string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.state.CurrentDay = day
	sc.state.CurrentCity = city
}

// UpdateLocation records the last scheduled location.
func (sc *SharedContext) UpdateLocation(loc domain.Coordinates) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.state.LastLocation = &loc
}

// IncrementActivities bumps the scheduled-activity counter.
func (sc *SharedContext) IncrementActivities() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.state.ActivitiesScheduled++
	return sc.state.ActivitiesScheduled
}

// IncrementRestaurants bumps the scheduled-restaurant counter.
func (sc *SharedContext) IncrementRestaurants() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.state.RestaurantsScheduled++
	return sc.state.RestaurantsScheduled
}
