// Package policy screens discovery candidates against hard constraints
// using an OPA policy.
package policy

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/open-policy-agent/opa/rego"

	"github.com/xiaot623/gogo/planner/internal/domain"
)

// Decisions returned by the policy.
const (
	DecisionAllow = "allow"
	DecisionBlock = "block"
)

const defaultLowCostMax = 25.0

// Decision is the evaluated policy result for one candidate.
type Decision struct {
	Decision string   `json:"decision"`
	Reasons  []string `json:"reasons,omitempty"`
}

// Allowed reports whether the candidate may proceed to validation.
func (d Decision) Allowed() bool {
	return d.Decision != DecisionBlock
}

// Engine is the OPA policy engine.
type Engine struct {
	query      rego.PreparedEvalQuery
	lowCostMax float64
}

// Option configures an Engine.
type Option func(*Engine)

// WithLowCostMax sets the most a free_or_low_cost candidate may cost.
func WithLowCostMax(v float64) Option {
	return func(e *Engine) {
		if v > 0 {
			e.lowCostMax = v
		}
	}
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string, opts ...Option) (*Engine, error) {
	r := rego.New(
		rego.Query("data.candidate_policy.result"),
		rego.Module("candidate_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	e := &Engine{query: query, lowCostMax: defaultLowCostMax}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// NewEngineFromFile loads the policy from path, or the default policy when
// path is empty.
func NewEngineFromFile(ctx context.Context, path string, opts ...Option) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, DefaultPolicy, opts...)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read policy %s: %v", domain.ErrConfiguration, path, err)
	}
	return NewEngine(ctx, string(content), opts...)
}

// Evaluate runs the policy against a prepared input document.
func (e *Engine) Evaluate(ctx context.Context, input map[string]interface{}) (Decision, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{Decision: DecisionAllow}, nil
	}

	obj, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return Decision{}, fmt.Errorf("unexpected policy result type %T", results[0].Expressions[0].Value)
	}

	var d Decision
	d.Decision, _ = obj["decision"].(string)
	if d.Decision == "" {
		d.Decision = DecisionAllow
	}
	if raw, ok := obj["reasons"].([]interface{}); ok {
		for _, r := range raw {
			if s, ok := r.(string); ok {
				d.Reasons = append(d.Reasons, s)
			}
		}
	}
	return d, nil
}

// Admit evaluates one discovery candidate against the strategy's hard
// constraints.
func (e *Engine) Admit(ctx context.Context, c domain.DiscoveryCandidate, strategy domain.Strategy, req domain.DiscoveryRequest) (bool, []string, error) {
	d, err := e.Evaluate(ctx, e.input(c, strategy, req))
	if err != nil {
		return true, nil, err
	}
	return d.Allowed(), d.Reasons, nil
}

func (e *Engine) input(c domain.DiscoveryCandidate, strategy domain.Strategy, req domain.DiscoveryRequest) map[string]interface{} {
	constraints := make([]interface{}, 0, len(strategy.Constraints))
	for _, s := range strategy.Constraints {
		constraints = append(constraints, s)
	}
	return map[string]interface{}{
		"candidate": map[string]interface{}{
			"name":             c.Name,
			"type":             c.Type,
			"estimated_cost":   c.EstimatedCost,
			"duration_minutes": c.DurationMinutes,
			"opening_hours":    strings.ToLower(c.OpeningHours),
			"fallback":         c.Fallback,
		},
		"constraints":    constraints,
		"purpose":        string(req.Purpose),
		"window_minutes": int(req.Window.Duration().Minutes()),
		"limits": map[string]interface{}{
			"low_cost_max": e.lowCostMax,
		},
	}
}

// DefaultPolicy is the default policy content.
const DefaultPolicy = `
package candidate_policy

import rego.v1

default decision := "allow"

decision := "block" if count(reasons) > 0

reasons contains msg if {
	"free_or_low_cost" in input.constraints
	not input.candidate.fallback
	input.candidate.estimated_cost > input.limits.low_cost_max
	msg := sprintf("estimated cost %v exceeds the low-cost limit of %v", [input.candidate.estimated_cost, input.limits.low_cost_max])
}

reasons contains msg if {
	"short_duration" in input.constraints
	not input.candidate.fallback
	input.window_minutes > 0
	input.candidate.duration_minutes > input.window_minutes
	msg := sprintf("takes %v minutes but the slot is %v minutes", [input.candidate.duration_minutes, input.window_minutes])
}

reasons contains msg if {
	some c in input.constraints
	startswith(c, "must_be_open_")
	day := trim_prefix(c, "must_be_open_")
	contains(input.candidate.opening_hours, sprintf("closed %s", [day]))
	msg := sprintf("closed on %s", [day])
}

result := {
	"decision": decision,
	"reasons": sort([r | some r in reasons]),
}
`
