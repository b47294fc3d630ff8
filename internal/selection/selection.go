// Package selection scores validated candidates and picks a winner.
package selection

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/xiaot623/gogo/planner/internal/domain"
)

// ErrNoCandidates is returned when there is nothing to select from.
var ErrNoCandidates = errors.New("no valid candidates to select from")

const earthRadiusKm = 6371.0

// Outcome is the result of one selection.
type Outcome struct {
	Selected     domain.SelectionScore   `json:"selected"`
	Alternatives []domain.SelectionScore `json:"alternatives,omitempty"`
	Confidence   float64                 `json:"confidence"`
}

// Select scores each valid result and returns the best one. Equal scores
// keep input order. origin is the last known location, if any.
func Select(valid []domain.ValidationResult, origin *domain.Coordinates) (*Outcome, error) {
	if len(valid) == 0 {
		return nil, ErrNoCandidates
	}

	scored := make([]domain.SelectionScore, len(valid))
	for i, r := range valid {
		scored[i] = Score(r, origin)
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	winner := scored[0]
	for i := 1; i < len(scored); i++ {
		scored[i].RejectionReason = fmt.Sprintf("scored %.1f, %.1f points below %s",
			scored[i].Score, winner.Score-scored[i].Score, winner.Name())
	}

	return &Outcome{
		Selected:     winner,
		Alternatives: scored[1:],
		Confidence:   Confidence(winner.Score),
	}, nil
}

// Confidence maps a score to [0, 1].
func Confidence(score float64) float64 {
	return math.Max(0, math.Min(score/100, 1))
}

// Score applies the additive rubric to one result.
func Score(r domain.ValidationResult, origin *domain.Coordinates) domain.SelectionScore {
	var (
		total float64
		parts []string
	)
	add := func(points float64, format string, args ...any) {
		total += points
		parts = append(parts, fmt.Sprintf(format, args...))
	}

	if p := r.Place; p != nil {
		if p.QualityScore > 0 {
			add(math.Min(p.QualityScore*40, 40), "quality %.2f", p.QualityScore)
		}
		switch {
		case p.Rating >= 4.5:
			add(20, "rating %.1f (+20)", p.Rating)
		case p.Rating >= 4.0:
			add(10, "rating %.1f (+10)", p.Rating)
		case p.Rating >= 3.5:
			add(5, "rating %.1f (+5)", p.Rating)
		}
	}

	switch r.Candidate.StrategicFit {
	case domain.FitHigh:
		add(20, "high strategic fit (+20)")
	case domain.FitMedium:
		add(10, "medium strategic fit (+10)")
	}

	if origin != nil && r.Place != nil && r.Place.Location != nil {
		d := Haversine(*origin, *r.Place.Location)
		switch {
		case d < 0.5:
			add(15, "%.2f km away (+15)", d)
		case d < 1.0:
			add(10, "%.2f km away (+10)", d)
		case d < 2.0:
			add(5, "%.2f km away (+5)", d)
		}
	}

	if a := r.Availability; a != nil {
		switch {
		case a.Status == domain.AvailabilityClosed:
			add(-10, "closed at scheduled time (-10)")
		case a.Open() && a.Confidence >= 0.9:
			add(5, "open (+5)")
		case a.Open() && a.Confidence >= 0.7:
			add(3, "probably open (+3)")
		}
	}

	reasoning := "no scoring signals"
	if len(parts) > 0 {
		reasoning = strings.Join(parts, "; ")
	}
	return domain.SelectionScore{Result: r, Score: total, Reasoning: reasoning}
}

// Haversine returns the great-circle distance in kilometres.
func Haversine(a, b domain.Coordinates) float64 {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := rad(b.Lat - a.Lat)
	dLng := rad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(a.Lat))*math.Cos(rad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
