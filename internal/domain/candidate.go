package domain

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DiscoveryCandidate is an unvalidated suggestion from the knowledge source.
type DiscoveryCandidate struct {
	Name            string       `json:"name"`
	Type            string       `json:"type,omitempty"`
	Address         string       `json:"address,omitempty"`
	DurationMinutes int          `json:"duration_minutes,omitempty"`
	EstimatedCost   float64      `json:"estimated_cost,omitempty"`
	EnergyLevel     EnergyLevel  `json:"energy_level,omitempty"`
	OpeningHours    string       `json:"opening_hours,omitempty"`
	WhyRecommended  string       `json:"why_recommended,omitempty"`
	StrategicFit    StrategicFit `json:"strategic_fit,omitempty"`

	// Fallback marks the synthetic candidate produced when the source
	// returned nothing usable.
	Fallback bool `json:"fallback,omitempty"`
}

// Place is the authoritative record behind a validated candidate.
type Place struct {
	PlaceID      string       `json:"place_id,omitempty"`
	Name         string       `json:"name"`
	Address      string       `json:"address,omitempty"`
	Location     *Coordinates `json:"location,omitempty"`
	Rating       float64      `json:"rating,omitempty"`
	QualityScore float64      `json:"quality_score,omitempty"` // 0..1
	PriceLevel   int          `json:"price_level,omitempty"`
	Types        []string     `json:"types,omitempty"`
}

// Availability is the result of an opening-hours check.
type Availability struct {
	Status     AvailabilityStatus `json:"status"`
	Confidence float64            `json:"confidence"`
}

// Open reports whether the place was found open.
func (a Availability) Open() bool {
	return a.Status == AvailabilityOpen
}

// PlaceLookup is what an authoritative place validator returns.
type PlaceLookup struct {
	Valid      bool        `json:"valid"`
	Confidence float64     `json:"confidence"`
	Place      *Place      `json:"place,omitempty"`
	Reason     string      `json:"reason,omitempty"`
	Kind       FailureKind `json:"kind,omitempty"`
}

// SchedulingContext is when a candidate would be visited.
type SchedulingContext struct {
	Date string `json:"date,omitempty"` // YYYY-MM-DD
	Time string `json:"time,omitempty"` // HH:MM
}

// HasDateTime reports whether both date and time are concrete.
func (s SchedulingContext) HasDateTime() bool {
	return s.Date != "" && s.Time != ""
}

// ValidationResult wraps a candidate with its validation outcome.
type ValidationResult struct {
	Candidate    DiscoveryCandidate `json:"candidate"`
	Valid        bool               `json:"valid"`
	Confidence   float64            `json:"confidence"`
	Status       ValidationStatus   `json:"status"`
	Place        *Place             `json:"place,omitempty"`
	Availability *Availability      `json:"availability,omitempty"`
	Reason       string             `json:"reason,omitempty"`
	FailureKind  FailureKind        `json:"failure_kind,omitempty"`
}

// SelectionScore is a scored valid candidate.
type SelectionScore struct {
	Result          ValidationResult `json:"result"`
	Score           float64          `json:"score"`
	Reasoning       string           `json:"reasoning"`
	RejectionReason string           `json:"rejection_reason,omitempty"`
}

// Name is the candidate name.
func (s SelectionScore) Name() string {
	return s.Result.Candidate.Name
}
