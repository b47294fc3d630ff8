package domain

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire layout for trip dates.
const DateLayout = "2006-01-02"

// TripPreferences describes the trip an itinerary is generated for.
type TripPreferences struct {
	Cities      []string `json:"cities" yaml:"cities"`
	StartDate   string   `json:"start_date" yaml:"start_date"`
	EndDate     string   `json:"end_date" yaml:"end_date"`
	Budget      float64  `json:"budget" yaml:"budget"`
	Currency    string   `json:"currency,omitempty" yaml:"currency,omitempty"`
	TravelStyle string   `json:"travel_style,omitempty" yaml:"travel_style,omitempty"`
	Interests   []string `json:"interests,omitempty" yaml:"interests,omitempty"`
}

// Dates parses the start and end dates.
func (p TripPreferences) Dates() (time.Time, time.Time, error) {
	start, err := time.Parse(DateLayout, p.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start_date: %w", err)
	}
	end, err := time.Parse(DateLayout, p.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end_date: %w", err)
	}
	return start, end, nil
}

// Validate checks the preferences are usable for a run.
func (p TripPreferences) Validate() error {
	if len(p.Cities) == 0 {
		return fmt.Errorf("cities is required")
	}
	for _, c := range p.Cities {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("cities must not contain empty names")
		}
	}
	start, end, err := p.Dates()
	if err != nil {
		return err
	}
	if end.Before(start) {
		return fmt.Errorf("end_date must not be before start_date")
	}
	if p.Budget < 0 {
		return fmt.Errorf("budget must not be negative")
	}
	return nil
}

// ItineraryRequest is the body of a job submission.
type ItineraryRequest struct {
	UserID      string          `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	Preferences TripPreferences `json:"preferences" yaml:"preferences"`
}

// SubmitResponse is returned when a run has been queued.
type SubmitResponse struct {
	RunID  string    `json:"run_id"`
	JobID  string    `json:"job_id"`
	Status RunStatus `json:"status"`
}

// TimeWindow is a half-open scheduling window.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns the window length.
func (w TimeWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// DiscoveryRequest asks for candidates to fill one slot of the itinerary.
type DiscoveryRequest struct {
	City    string     `json:"city"`
	Day     int        `json:"day"`
	Slot    string     `json:"slot,omitempty"`
	Window  TimeWindow `json:"window"`
	Theme   string     `json:"theme,omitempty"`
	Purpose Purpose    `json:"purpose"`

	// Constraints are added by the feedback loop after failed attempts.
	Constraints []string `json:"constraints,omitempty"`
}

// DayOfWeek returns the weekday of the window start.
func (r DiscoveryRequest) DayOfWeek() time.Weekday {
	return r.Window.Start.Weekday()
}

// HasConstraint reports whether c was already added.
func (r DiscoveryRequest) HasConstraint(c string) bool {
	for _, existing := range r.Constraints {
		if existing == c {
			return true
		}
	}
	return false
}

// Strategy is what the discovery agent asks the knowledge source for.
type Strategy struct {
	Focus       string   `json:"focus"`
	Constraints []string `json:"constraints"`
	Preferences []string `json:"preferences"`
	Avoid       []string `json:"avoid"`
	AvoidPlaces []string `json:"avoid_places"`
	Reasoning   string   `json:"reasoning"`
}

// Avoids reports whether name is one of the places to skip
// (case-insensitive). Category and style tags in Avoid never match.
func (s Strategy) Avoids(name string) bool {
	key := NormalizeName(name)
	for _, a := range s.AvoidPlaces {
		if NormalizeName(a) == key {
			return true
		}
	}
	return false
}

// HasConstraint reports whether c is a hard constraint of the strategy.
func (s Strategy) HasConstraint(c string) bool {
	for _, existing := range s.Constraints {
		if existing == c {
			return true
		}
	}
	return false
}

// NormalizeName is the key used for place caches.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
