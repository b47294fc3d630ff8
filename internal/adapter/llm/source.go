package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"

	"github.com/xiaot623/gogo/planner/internal/discovery"
	"github.com/xiaot623/gogo/planner/internal/domain"
)

// Prompt field names. The mock client reads them back.
const (
	fieldCity        = "city"
	fieldPurpose     = "purpose"
	fieldDay         = "day"
	fieldWindow      = "window"
	fieldTheme       = "theme"
	fieldFocus       = "focus"
	fieldConstraints = "constraints"
	fieldPreferences = "preferences"
	fieldAvoid       = "avoid"
	fieldAvoidPlaces = "avoid_places"
)

const systemPrompt = `You suggest real, currently operating places for a travel itinerary.
Reply with a JSON object {"candidates": [...]} holding 3 to 5 entries with the keys
name, type, address, duration_minutes, estimated_cost, energy_level (relaxed|moderate|high),
opening_hours, why_recommended and strategic_fit (low|medium|high).
Hard constraints must hold. Never suggest a place named on the avoid_places list
or one matching a category or style on the avoid list.`

type candidateEnvelope struct {
	Candidates []candidateJSON `json:"candidates"`
}

type candidateJSON struct {
	Name            string  `json:"name"`
	Type            string  `json:"type"`
	Address         string  `json:"address"`
	DurationMinutes int     `json:"duration_minutes"`
	EstimatedCost   float64 `json:"estimated_cost"`
	EnergyLevel     string  `json:"energy_level"`
	OpeningHours    string  `json:"opening_hours"`
	WhyRecommended  string  `json:"why_recommended"`
	StrategicFit    string  `json:"strategic_fit"`
}

// KnowledgeSource asks the LLM for discovery candidates.
type KnowledgeSource struct {
	client ChatClient
	model  string
}

// Ensure KnowledgeSource implements discovery.Source.
var _ discovery.Source = (*KnowledgeSource)(nil)

// NewKnowledgeSource creates a knowledge source backed by client.
func NewKnowledgeSource(client ChatClient, model string) *KnowledgeSource {
	return &KnowledgeSource{client: client, model: model}
}

// Discover implements discovery.Source. Unreachable endpoints yield an
// empty list; timeouts and configuration problems are returned as errors.
func (s *KnowledgeSource) Discover(ctx context.Context, req domain.DiscoveryRequest, strategy domain.Strategy) ([]domain.DiscoveryCandidate, error) {
	if s.client == nil {
		return nil, fmt.Errorf("%w: no LLM client", domain.ErrConfiguration)
	}
	temperature := 0.4
	resp, err := s.client.CreateChatCompletion(ctx, &ChatCompletionRequest{
		Model: s.model,
		Messages: []ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: BuildPrompt(req, strategy)},
		},
		Temperature:    &temperature,
		ResponseFormat: map[string]interface{}{"type": "json_object"},
	})
	if err != nil {
		if errors.Is(err, domain.ErrConfiguration) || isTimeout(ctx, err) {
			return nil, err
		}
		log.Printf("WARN: knowledge source unreachable for %s: %v", req.City, err)
		return nil, nil
	}
	return ParseCandidates(resp.Content())
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// BuildPrompt renders the request and strategy as one field per line.
func BuildPrompt(req domain.DiscoveryRequest, strategy domain.Strategy) string {
	var b strings.Builder
	line := func(k, v string) {
		if v != "" {
			fmt.Fprintf(&b, "%s: %s\n", k, v)
		}
	}
	line(fieldCity, req.City)
	line(fieldPurpose, string(req.Purpose))
	if !req.Window.Start.IsZero() {
		line(fieldDay, req.Window.Start.Format("Monday 2006-01-02"))
		line(fieldWindow, fmt.Sprintf("%s-%s", req.Window.Start.Format("15:04"), req.Window.End.Format("15:04")))
	}
	line(fieldTheme, req.Theme)
	line(fieldFocus, strategy.Focus)
	line(fieldConstraints, strings.Join(strategy.Constraints, ", "))
	line(fieldPreferences, strings.Join(strategy.Preferences, ", "))
	line(fieldAvoid, strings.Join(strategy.Avoid, ", "))
	line(fieldAvoidPlaces, strings.Join(strategy.AvoidPlaces, ", "))
	if strategy.Reasoning != "" {
		b.WriteString("\n")
		b.WriteString(strategy.Reasoning)
		b.WriteString("\n")
	}
	return b.String()
}

// ParseCandidates decodes an LLM reply. It accepts a bare array or an
// object with a candidates key, optionally wrapped in a code fence.
func ParseCandidates(content string) ([]domain.DiscoveryCandidate, error) {
	body := strings.TrimSpace(content)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("empty reply: %w", discovery.ErrMalformedResponse)
	}

	var raw []candidateJSON
	if strings.HasPrefix(body, "[") {
		if err := json.Unmarshal([]byte(body), &raw); err != nil {
			return nil, fmt.Errorf("decode candidates: %v: %w", err, discovery.ErrMalformedResponse)
		}
	} else {
		start := strings.Index(body, "{")
		end := strings.LastIndex(body, "}")
		if start < 0 || end < start {
			return nil, fmt.Errorf("no JSON object in reply: %w", discovery.ErrMalformedResponse)
		}
		var env candidateEnvelope
		if err := json.Unmarshal([]byte(body[start:end+1]), &env); err != nil {
			return nil, fmt.Errorf("decode candidates: %v: %w", err, discovery.ErrMalformedResponse)
		}
		raw = env.Candidates
	}

	out := make([]domain.DiscoveryCandidate, 0, len(raw))
	for _, c := range raw {
		out = append(out, domain.DiscoveryCandidate{
			Name:            c.Name,
			Type:            strings.ToLower(c.Type),
			Address:         c.Address,
			DurationMinutes: c.DurationMinutes,
			EstimatedCost:   c.EstimatedCost,
			EnergyLevel:     domain.EnergyLevel(strings.ToLower(c.EnergyLevel)),
			OpeningHours:    c.OpeningHours,
			WhyRecommended:  c.WhyRecommended,
			StrategicFit:    domain.StrategicFit(strings.ToLower(c.StrategicFit)),
		})
	}
	return out, nil
}

// promptFields reads back the key: value lines of BuildPrompt.
func promptFields(prompt string) map[string]string {
	fields := make(map[string]string)
	for _, l := range strings.Split(prompt, "\n") {
		k, v, ok := strings.Cut(l, ":")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		if _, seen := fields[k]; !seen {
			fields[k] = strings.TrimSpace(v)
		}
	}
	return fields
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
