// Package discovery turns the shared context and a slot request into a
// discovery strategy and a short list of unvalidated candidates.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/xiaot623/gogo/planner/internal/domain"
	"github.com/xiaot623/gogo/planner/internal/knowledge"
)

const (
	// MaxCandidates caps what is handed to validation.
	MaxCandidates = 5

	defaultTimeout = 20 * time.Second
	defaultTries   = 2
)

// ErrMalformedResponse is returned by sources whose reply could not be
// parsed. Discovery degrades to the fallback candidate instead of failing.
var ErrMalformedResponse = errors.New("malformed knowledge source response")

// Source is an external knowledge source. Implementations should return an
// empty list when unreachable and reserve errors for timeouts and
// configuration problems.
type Source interface {
	Discover(ctx context.Context, req domain.DiscoveryRequest, strategy domain.Strategy) ([]domain.DiscoveryCandidate, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, req domain.DiscoveryRequest, strategy domain.Strategy) ([]domain.DiscoveryCandidate, error)

// Discover calls f.
func (f SourceFunc) Discover(ctx context.Context, req domain.DiscoveryRequest, strategy domain.Strategy) ([]domain.DiscoveryCandidate, error) {
	return f(ctx, req, strategy)
}

// AdmissionPolicy screens candidates against the strategy's hard
// constraints before they reach validation.
type AdmissionPolicy interface {
	Admit(ctx context.Context, c domain.DiscoveryCandidate, strategy domain.Strategy, req domain.DiscoveryRequest) (bool, []string, error)
}

// Result is the outcome of one discovery attempt.
type Result struct {
	Strategy   domain.Strategy             `json:"strategy"`
	Candidates []domain.DiscoveryCandidate `json:"candidates"`
	Filtered   []domain.Alternative        `json:"filtered,omitempty"`
	Degraded   bool                        `json:"degraded,omitempty"`
}

// Agent builds strategies and fetches candidates.
type Agent struct {
	source  Source
	policy  AdmissionPolicy
	timeout time.Duration
	tries   uint
	backoff func() backoff.BackOff
}

// Option configures an Agent.
type Option func(*Agent)

// WithPolicy installs an admission policy.
func WithPolicy(p AdmissionPolicy) Option {
	return func(a *Agent) { a.policy = p }
}

// WithTimeout bounds each knowledge-source call.
func WithTimeout(d time.Duration) Option {
	return func(a *Agent) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithRetries sets how many times a timed-out call is tried.
func WithRetries(tries int, initial time.Duration) Option {
	return func(a *Agent) {
		if tries > 0 {
			a.tries = uint(tries)
		}
		if initial > 0 {
			a.backoff = func() backoff.BackOff {
				b := backoff.NewExponentialBackOff()
				b.InitialInterval = initial
				return b
			}
		}
	}
}

// NewAgent creates a discovery agent backed by source.
func NewAgent(source Source, opts ...Option) *Agent {
	a := &Agent{
		source:  source,
		timeout: defaultTimeout,
		tries:   defaultTries,
		backoff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Discover builds the strategy for req and asks the knowledge source for
// candidates. Malformed results degrade to one synthetic low-fit candidate.
// Names in the negative cache, places already scheduled in this run and
// candidates blocked by the admission policy are dropped.
func (a *Agent) Discover(ctx context.Context, sc *knowledge.SharedContext, req domain.DiscoveryRequest) (*Result, error) {
	if a.source == nil {
		return nil, fmt.Errorf("%w: no knowledge source configured", domain.ErrConfiguration)
	}
	strategy := BuildStrategy(sc, req)
	res := &Result{Strategy: strategy}

	raw, err := a.fetch(ctx, req, strategy)
	malformed := errors.Is(err, ErrMalformedResponse)
	if err != nil && !malformed {
		return nil, err
	}

	candidates := sanitize(raw)
	if len(candidates) == 0 && (len(raw) > 0 || malformed) {
		log.Printf("WARN: knowledge source returned no usable candidates for %s, using fallback", req.City)
		candidates = []domain.DiscoveryCandidate{fallbackCandidate(req)}
		res.Degraded = true
	}

	for _, c := range candidates {
		if sc.IsPlaceInvalid(c.Name) {
			res.Filtered = append(res.Filtered, domain.Alternative{Name: c.Name, Reason: "previously invalid"})
			continue
		}
		if _, scheduled := sc.ValidatedPlace(c.Name); scheduled || strategy.Avoids(c.Name) {
			res.Filtered = append(res.Filtered, domain.Alternative{Name: c.Name, Reason: "already scheduled"})
			continue
		}
		if a.policy != nil {
			ok, reasons, err := a.policy.Admit(ctx, c, strategy, req)
			if err != nil {
				log.Printf("WARN: admission policy failed for %q: %v", c.Name, err)
			} else if !ok {
				res.Filtered = append(res.Filtered, domain.Alternative{Name: c.Name, Reason: strings.Join(reasons, "; ")})
				continue
			}
		}
		res.Candidates = append(res.Candidates, c)
		if len(res.Candidates) == MaxCandidates {
			break
		}
	}
	return res, nil
}

func (a *Agent) fetch(ctx context.Context, req domain.DiscoveryRequest, strategy domain.Strategy) ([]domain.DiscoveryCandidate, error) {
	op := func() ([]domain.DiscoveryCandidate, error) {
		callCtx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		out, err := a.source.Discover(callCtx, req, strategy)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, domain.ErrConfiguration) || errors.Is(err, ErrMalformedResponse) || ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	out, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(a.backoff()),
		backoff.WithMaxTries(a.tries),
	)
	if err != nil {
		return nil, fmt.Errorf("knowledge source: %w", err)
	}
	return out, nil
}

func sanitize(raw []domain.DiscoveryCandidate) []domain.DiscoveryCandidate {
	seen := make(map[string]bool, len(raw))
	out := make([]domain.DiscoveryCandidate, 0, len(raw))
	for _, c := range raw {
		c.Name = strings.TrimSpace(c.Name)
		c.Address = strings.TrimSpace(c.Address)
		if c.Name == "" || c.Address == "" {
			continue
		}
		key := domain.NormalizeName(c.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		switch c.StrategicFit {
		case domain.FitLow, domain.FitMedium, domain.FitHigh:
		default:
			c.StrategicFit = domain.FitLow
		}
		out = append(out, c)
	}
	return out
}

func fallbackCandidate(req domain.DiscoveryRequest) domain.DiscoveryCandidate {
	kind := "sights"
	if req.Purpose == domain.PurposeRestaurant {
		kind = "restaurants"
	}
	return domain.DiscoveryCandidate{
		Name:            fmt.Sprintf("Popular %s in %s", kind, req.City),
		Type:            "general",
		Address:         req.City,
		DurationMinutes: int(req.Window.Duration().Minutes()),
		WhyRecommended:  "knowledge source returned no usable suggestions",
		StrategicFit:    domain.FitLow,
		Fallback:        true,
	}
}
