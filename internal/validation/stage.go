// Package validation checks discovery candidates against an authoritative
// place source.
package validation

import (
	"context"
	"fmt"
	"log"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/xiaot623/gogo/planner/internal/domain"
)

const (
	unvalidatedConfidence = 0.5
	defaultConcurrency    = 4
)

// PlaceValidator is the authoritative place lookup.
type PlaceValidator interface {
	Validate(ctx context.Context, c domain.DiscoveryCandidate, city string, sched domain.SchedulingContext) (domain.PlaceLookup, error)
	CheckAvailability(ctx context.Context, place domain.Place, sched domain.SchedulingContext) (domain.Availability, error)
}

// Stage validates candidate batches.
type Stage struct {
	validator   PlaceValidator
	concurrency int
}

// NewStage creates a validation stage. A nil validator puts the stage in
// degraded mode where every candidate passes as unvalidated.
func NewStage(v PlaceValidator, concurrency int) *Stage {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Stage{validator: v, concurrency: concurrency}
}

// Degraded reports whether no validator is configured.
func (s *Stage) Degraded() bool {
	return s.validator == nil
}

// Validate returns one result per candidate, in input order. Lookup errors
// become invalid results with status error; they never fail the batch.
func (s *Stage) Validate(ctx context.Context, candidates []domain.DiscoveryCandidate, city string, sched domain.SchedulingContext) []domain.ValidationResult {
	results := make([]domain.ValidationResult, len(candidates))
	if s.validator == nil {
		for i, c := range candidates {
			results[i] = domain.ValidationResult{
				Candidate:  c,
				Valid:      true,
				Confidence: unvalidatedConfidence,
				Status:     domain.ValidationUnvalidated,
				Reason:     "place validator unavailable",
			}
		}
		return results
	}

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, c := range candidates {
		g.Go(func() error {
			results[i] = s.validateOne(ctx, c, city, sched)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *Stage) validateOne(ctx context.Context, c domain.DiscoveryCandidate, city string, sched domain.SchedulingContext) (res domain.ValidationResult) {
	defer func() {
		if r := recover(); r != nil {
			res = errorResult(c, fmt.Errorf("panic: %v", r))
		}
	}()

	lookup, err := s.validator.Validate(ctx, c, city, sched)
	if err != nil {
		log.Printf("WARN: validation of %q failed: %v", c.Name, err)
		return errorResult(c, err)
	}

	if !lookup.Valid {
		kind := lookup.Kind
		if kind == domain.FailureNone {
			kind = ClassifyFailure(lookup.Reason)
		}
		return domain.ValidationResult{
			Candidate:   c,
			Confidence:  lookup.Confidence,
			Status:      domain.ValidationInvalid,
			Place:       lookup.Place,
			Reason:      lookup.Reason,
			FailureKind: kind,
		}
	}

	res = domain.ValidationResult{
		Candidate:  c,
		Valid:      true,
		Confidence: lookup.Confidence,
		Status:     domain.ValidationValidated,
		Place:      lookup.Place,
	}
	if lookup.Place != nil && sched.HasDateTime() {
		avail, err := s.validator.CheckAvailability(ctx, *lookup.Place, sched)
		if err != nil {
			log.Printf("WARN: availability check for %q failed: %v", c.Name, err)
			return res
		}
		res.Availability = &avail
		if avail.Status == domain.AvailabilityClosed {
			res.Reason = fmt.Sprintf("closed at %s %s", sched.Date, sched.Time)
		}
	}
	return res
}

func errorResult(c domain.DiscoveryCandidate, err error) domain.ValidationResult {
	return domain.ValidationResult{
		Candidate:   c,
		Status:      domain.ValidationError,
		Reason:      err.Error(),
		FailureKind: domain.FailureError,
	}
}

var failureKeywords = []struct {
	kind  domain.FailureKind
	words []string
}{
	{domain.FailureClosed, []string{"closed", "unavailable", "not open"}},
	{domain.FailureAmbiguous, []string{"ambiguous", "multiple", "low confidence", "uncertain"}},
	{domain.FailureNotFound, []string{"not found", "no match", "does not exist", "unknown place"}},
}

// ClassifyFailure buckets a free-text failure reason. Unrecognised reasons
// count as not found.
func ClassifyFailure(reason string) domain.FailureKind {
	r := strings.ToLower(reason)
	for _, fk := range failureKeywords {
		for _, w := range fk.words {
			if strings.Contains(r, w) {
				return fk.kind
			}
		}
	}
	return domain.FailureNotFound
}
