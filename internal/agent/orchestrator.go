// Package agent drives the discovery, validation and selection feedback
// loop for a single slot request.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/xiaot623/gogo/planner/internal/discovery"
	"github.com/xiaot623/gogo/planner/internal/domain"
	"github.com/xiaot623/gogo/planner/internal/knowledge"
	"github.com/xiaot623/gogo/planner/internal/selection"
)

// DefaultMaxAttempts bounds the feedback loop.
const DefaultMaxAttempts = 3

// Agent names used in the decision and communication logs.
const (
	NameOrchestrator = "orchestrator"
	NameDiscovery    = "discovery"
	NameValidation   = "validation"
	NameSelection    = "selection"
)

// Feedback suggestions added to the request as constraints.
const (
	SuggestEmphasizeOpeningHours = "emphasize_opening_hours"
	SuggestRequireExactAddress   = "require_exact_address"
	SuggestPreferWellKnown       = "prefer_well_known"
	SuggestAvoidGenericNames     = "avoid_generic_names"
)

// Discoverer produces candidates for a request.
type Discoverer interface {
	Discover(ctx context.Context, sc *knowledge.SharedContext, req domain.DiscoveryRequest) (*discovery.Result, error)
}

// Validator validates a candidate batch.
type Validator interface {
	Validate(ctx context.Context, candidates []domain.DiscoveryCandidate, city string, sched domain.SchedulingContext) []domain.ValidationResult
}

// Outcome is the result of one feedback loop.
type Outcome struct {
	Success      bool                    `json:"success"`
	Attempts     int                     `json:"attempts"`
	Fallback     bool                    `json:"fallback,omitempty"`
	Selected     *domain.SelectionScore  `json:"selected,omitempty"`
	Alternatives []domain.SelectionScore `json:"alternatives,omitempty"`
	Strategy     domain.Strategy         `json:"strategy"`
	Confidence   float64                 `json:"confidence"`
	FinalRequest domain.DiscoveryRequest `json:"final_request"`
}

// FailureAnalysis buckets the failed candidates of one attempt.
type FailureAnalysis struct {
	Closed      []string `json:"closed,omitempty"`
	NotFound    []string `json:"not_found,omitempty"`
	Ambiguous   []string `json:"ambiguous,omitempty"`
	Errored     []string `json:"errored,omitempty"`
	Suggestions []string `json:"suggestions"`
}

// Orchestrator runs the feedback loop.
type Orchestrator struct {
	discoverer  Discoverer
	validator   Validator
	maxAttempts int
	backoff     func() backoff.BackOff
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxAttempts overrides DefaultMaxAttempts.
func WithMaxAttempts(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithRetryBackoff sets the initial delay after a failed attempt.
func WithRetryBackoff(initial time.Duration) Option {
	return func(o *Orchestrator) {
		o.backoff = func() backoff.BackOff {
			if initial <= 0 {
				return &backoff.ZeroBackOff{}
			}
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = initial
			return b
		}
	}
}

// New creates an orchestrator.
func New(d Discoverer, v Validator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		discoverer:  d,
		validator:   v,
		maxAttempts: DefaultMaxAttempts,
		backoff:     func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type state int

const (
	stateDiscover state = iota
	stateValidate
	stateSelect
	stateFeedback
	stateSuccess
	stateFailure
)

// loop carries one request through the state machine.
type loop struct {
	o     *Orchestrator
	sc    *knowledge.SharedContext
	phase string
	req   domain.DiscoveryRequest
	delay backoff.BackOff

	attempts   int
	discovered *discovery.Result
	validated  []domain.ValidationResult
	selected   *selection.Outcome
	lastErr    error
	errored    int
}

// Run drives req through discover, validate and select until a candidate
// is chosen or the attempt budget is spent. A failed loop returns an
// Outcome with Fallback set. An error is returned only when every attempt
// raised one or when an external service is misconfigured.
func (o *Orchestrator) Run(ctx context.Context, sc *knowledge.SharedContext, phase string, req domain.DiscoveryRequest) (*Outcome, error) {
	l := &loop{o: o, sc: sc, phase: phase, req: req, delay: o.backoff()}
	l.req.Constraints = append([]string(nil), req.Constraints...)

	st := stateDiscover
	for {
		switch st {
		case stateDiscover:
			st = l.discover(ctx)
		case stateValidate:
			st = l.validate(ctx)
		case stateSelect:
			st = l.selectWinner()
		case stateFeedback:
			st = l.feedback()
		case stateSuccess:
			l.commit()
			return l.outcome(true), nil
		case stateFailure:
			if l.lastErr != nil && (l.errored == l.attempts || errors.Is(l.lastErr, domain.ErrConfiguration)) {
				return nil, l.lastErr
			}
			l.recordFallback()
			return l.outcome(false), nil
		}
	}
}

// retryOrFail consumes the attempt and decides whether another round fits.
func (l *loop) retryOrFail() state {
	if l.attempts >= l.o.maxAttempts {
		return stateFailure
	}
	return stateDiscover
}

func (l *loop) discover(ctx context.Context) state {
	l.attempts++
	l.discovered, l.validated, l.selected = nil, nil, nil

	if ctx.Err() != nil {
		l.fail(ctx.Err())
		return stateFailure
	}

	res, err := l.o.discoverer.Discover(ctx, l.sc, l.req)
	if err != nil {
		l.fail(err)
		if errors.Is(err, domain.ErrConfiguration) {
			return stateFailure
		}
		if next := l.retryOrFail(); next == stateDiscover {
			l.wait(ctx)
			return next
		}
		return stateFailure
	}
	l.discovered = res

	l.sc.RecordDecision(domain.Decision{
		Type:         domain.DecisionStrategy,
		Phase:        l.phase,
		Agent:        NameDiscovery,
		Chosen:       res.Strategy.Focus,
		Reasoning:    res.Strategy.Reasoning,
		Alternatives: res.Filtered,
		Data: map[string]any{
			"attempt":     l.attempts,
			"constraints": res.Strategy.Constraints,
			"preferences": res.Strategy.Preferences,
			"avoid":       res.Strategy.Avoid,
			"avoidPlaces": res.Strategy.AvoidPlaces,
		},
	})

	if len(res.Candidates) == 0 {
		l.sc.RecordDecision(domain.Decision{
			Type:      domain.DecisionDiscoveryFailed,
			Phase:     l.phase,
			Agent:     NameDiscovery,
			Reasoning: fmt.Sprintf("attempt %d returned no candidates for %s", l.attempts, l.req.City),
			Data:      map[string]any{"attempt": l.attempts},
		})
		return l.retryOrFail()
	}

	names := candidateNames(res.Candidates)
	l.sc.RecordDecision(domain.Decision{
		Type:      domain.DecisionDiscovery,
		Phase:     l.phase,
		Agent:     NameDiscovery,
		Reasoning: fmt.Sprintf("attempt %d found %d candidates", l.attempts, len(names)),
		Data:      map[string]any{"attempt": l.attempts, "candidates": names, "degraded": res.Degraded},
	})
	l.sc.SendMessage(NameDiscovery, NameValidation, names)
	return stateValidate
}

func (l *loop) validate(ctx context.Context) state {
	results, err := l.safeValidate(ctx)
	if err != nil {
		l.fail(err)
		if next := l.retryOrFail(); next == stateDiscover {
			l.wait(ctx)
			return next
		}
		return stateFailure
	}
	l.validated = results

	valid := validResults(results)
	alternatives := make([]domain.Alternative, 0, len(results)-len(valid))
	for _, r := range results {
		if !r.Valid {
			alternatives = append(alternatives, domain.Alternative{Name: r.Candidate.Name, Reason: r.Reason})
		}
	}
	l.sc.RecordDecision(domain.Decision{
		Type:         domain.DecisionValidation,
		Phase:        l.phase,
		Agent:        NameValidation,
		Reasoning:    fmt.Sprintf("%d of %d candidates passed validation", len(valid), len(results)),
		Alternatives: alternatives,
		Data:         map[string]any{"attempt": l.attempts, "valid": candidateNames(resultCandidates(valid))},
	})

	if len(valid) == 0 {
		return stateFeedback
	}
	l.sc.SendMessage(NameValidation, NameSelection, candidateNames(resultCandidates(valid)))
	return stateSelect
}

func (l *loop) safeValidate(ctx context.Context) (results []domain.ValidationResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("validation panicked: %v", r)
		}
	}()
	return l.o.validator.Validate(ctx, l.discovered.Candidates, l.req.City, schedulingContext(l.req)), nil
}

func (l *loop) selectWinner() state {
	out, err := selection.Select(validResults(l.validated), l.sc.State().LastLocation)
	if err != nil {
		l.fail(err)
		return l.retryOrFail()
	}
	l.selected = out

	alternatives := make([]domain.Alternative, 0, len(out.Alternatives))
	for _, a := range out.Alternatives {
		alternatives = append(alternatives, domain.Alternative{Name: a.Name(), Score: a.Score, Reason: a.RejectionReason})
	}
	l.sc.RecordDecision(domain.Decision{
		Type:         domain.DecisionSelection,
		Phase:        l.phase,
		Agent:        NameSelection,
		Chosen:       out.Selected.Name(),
		Reasoning:    out.Selected.Reasoning,
		Alternatives: alternatives,
		Data:         map[string]any{"attempt": l.attempts, "score": out.Selected.Score, "confidence": out.Confidence},
	})
	return stateSuccess
}

func (l *loop) feedback() state {
	analysis := AnalyzeFailures(l.validated)
	for _, r := range l.validated {
		if r.Valid || r.FailureKind == domain.FailureError {
			continue
		}
		l.sc.MarkPlaceInvalid(r.Candidate.Name, r.Reason)
	}
	for _, s := range analysis.Suggestions {
		if !l.req.HasConstraint(s) {
			l.req.Constraints = append(l.req.Constraints, s)
		}
	}

	l.sc.RecordDecision(domain.Decision{
		Type:      domain.DecisionFeedback,
		Phase:     l.phase,
		Agent:     NameOrchestrator,
		Reasoning: fmt.Sprintf("no valid candidates on attempt %d; adjusting request", l.attempts),
		Data: map[string]any{
			"attempt":     l.attempts,
			"closed":      analysis.Closed,
			"not_found":   analysis.NotFound,
			"ambiguous":   analysis.Ambiguous,
			"errored":     analysis.Errored,
			"suggestions": analysis.Suggestions,
		},
	})
	l.sc.SendMessage(NameOrchestrator, NameDiscovery, analysis)
	return l.retryOrFail()
}

// commit applies the winner's side effects to the shared context.
func (l *loop) commit() {
	winner := l.selected.Selected.Result
	c := winner.Candidate

	l.sc.AddValidatedPlace(knowledge.ValidatedPlace{
		Name:       c.Name,
		Candidate:  c,
		Place:      winner.Place,
		Confidence: l.selected.Confidence,
	})
	if c.EstimatedCost > 0 {
		l.sc.UpdateBudget(c.EstimatedCost)
	}
	if winner.Place != nil && winner.Place.Location != nil {
		l.sc.UpdateLocation(*winner.Place.Location)
	}
	// Meals stay out of the activity statistics that drive diversification.
	if l.req.Purpose == domain.PurposeRestaurant {
		l.sc.IncrementRestaurants()
		return
	}
	l.sc.TrackActivityType(c.Type)
	l.sc.TrackEnergyLevel(c.EnergyLevel)
	l.sc.IncrementActivities()
}

func (l *loop) recordFallback() {
	reason := fmt.Sprintf("no valid candidate after %d attempts", l.attempts)
	if l.lastErr != nil {
		reason += ": " + l.lastErr.Error()
	}
	l.sc.RecordDecision(domain.Decision{
		Type:      domain.DecisionFallback,
		Phase:     l.phase,
		Agent:     NameOrchestrator,
		Reasoning: reason,
		Data:      map[string]any{"attempts": l.attempts, "city": l.req.City},
	})
}

func (l *loop) fail(err error) {
	l.lastErr = err
	l.errored++
	log.Printf("WARN: %s attempt %d for %s failed: %v", l.phase, l.attempts, l.req.City, err)
	l.sc.RecordDecision(domain.Decision{
		Type:      domain.DecisionError,
		Phase:     l.phase,
		Agent:     NameOrchestrator,
		Reasoning: err.Error(),
		Data:      map[string]any{"attempt": l.attempts},
	})
}

func (l *loop) wait(ctx context.Context) {
	d := l.delay.NextBackOff()
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (l *loop) outcome(success bool) *Outcome {
	out := &Outcome{
		Success:      success,
		Attempts:     l.attempts,
		Fallback:     !success,
		FinalRequest: l.req,
	}
	if l.discovered != nil {
		out.Strategy = l.discovered.Strategy
	}
	if success {
		out.Selected = &l.selected.Selected
		out.Alternatives = l.selected.Alternatives
		out.Confidence = l.selected.Confidence
	}
	return out
}

// AnalyzeFailures buckets invalid results and derives suggestions for the
// next discovery round.
func AnalyzeFailures(results []domain.ValidationResult) FailureAnalysis {
	var a FailureAnalysis
	for _, r := range results {
		if r.Valid {
			continue
		}
		name := r.Candidate.Name
		switch r.FailureKind {
		case domain.FailureClosed:
			a.Closed = append(a.Closed, name)
		case domain.FailureAmbiguous:
			a.Ambiguous = append(a.Ambiguous, name)
		case domain.FailureError:
			a.Errored = append(a.Errored, name)
		default:
			a.NotFound = append(a.NotFound, name)
		}
	}
	a.Suggestions = []string{}
	if len(a.Closed) > 0 {
		a.Suggestions = append(a.Suggestions, SuggestEmphasizeOpeningHours)
	}
	if len(a.NotFound) > 0 {
		a.Suggestions = append(a.Suggestions, SuggestRequireExactAddress, SuggestPreferWellKnown)
	}
	if len(a.Ambiguous) > 0 {
		a.Suggestions = append(a.Suggestions, SuggestAvoidGenericNames)
	}
	return a
}

func schedulingContext(req domain.DiscoveryRequest) domain.SchedulingContext {
	if req.Window.Start.IsZero() {
		return domain.SchedulingContext{}
	}
	return domain.SchedulingContext{
		Date: req.Window.Start.Format(domain.DateLayout),
		Time: req.Window.Start.Format("15:04"),
	}
}

func validResults(results []domain.ValidationResult) []domain.ValidationResult {
	out := make([]domain.ValidationResult, 0, len(results))
	for _, r := range results {
		if r.Valid {
			out = append(out, r)
		}
	}
	return out
}

func resultCandidates(results []domain.ValidationResult) []domain.DiscoveryCandidate {
	out := make([]domain.DiscoveryCandidate, len(results))
	for i, r := range results {
		out[i] = r.Candidate
	}
	return out
}

func candidateNames(cs []domain.DiscoveryCandidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Name
	}
	return out
}
