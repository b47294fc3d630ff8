package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MockClient is a deterministic ChatClient used in MOCK mode and tests.
// It reads the structured lines of the discovery prompt and answers with
// a plausible candidate list.
type MockClient struct{}

// NewMockClient creates a new mock LLM client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Ensure MockClient implements ChatClient interface.
var _ ChatClient = (*MockClient)(nil)

var mockCatalogue = map[string][]mockPlace{
	"activity": {
		{"Old Town Walking Tour", "tour", 120, 0, "moderate", "daily 09:00-18:00"},
		{"City History Museum", "museum", 90, 12, "relaxed", "10:00-18:00, closed monday"},
		{"Botanical Garden", "park", 60, 5, "relaxed", "daily 08:00-20:00"},
		{"Riverside Cycling Route", "outdoor", 150, 15, "high", "daily"},
		{"Contemporary Art Gallery", "gallery", 75, 10, "relaxed", "11:00-19:00, closed sunday"},
		{"Hilltop Viewpoint", "viewpoint", 45, 0, "moderate", "always open"},
	},
	"restaurant": {
		{"Market Hall Food Court", "restaurant", 60, 18, "relaxed", "daily 08:00-23:00"},
		{"Harbour Seafood House", "restaurant", 90, 45, "relaxed", "12:00-23:00, closed monday"},
		{"Corner Bakery Cafe", "cafe", 40, 9, "relaxed", "daily 07:00-19:00"},
		{"Family Tavern", "restaurant", 75, 25, "relaxed", "daily 12:00-22:00"},
	},
}

type mockPlace struct {
	name     string
	kind     string
	duration int
	cost     float64
	energy   string
	hours    string
}

// CreateChatCompletion returns a mock response.
func (m *MockClient) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content := m.generateMockResponse(req)
	return &ChatCompletionResponse{
		ID:      fmt.Sprintf("mock-chatcmpl-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []Choice{{
			Index:        0,
			Message:      &ChatMessage{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
	}, nil
}

// generateMockResponse generates a mock response based on the request.
func (m *MockClient) generateMockResponse(req *ChatCompletionRequest) string {
	var lastUserMessage string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			lastUserMessage = req.Messages[i].Content
			break
		}
	}
	fields := promptFields(lastUserMessage)

	city := fields[fieldCity]
	if city == "" {
		city = "the city"
	}
	avoid := make(map[string]bool)
	for _, a := range splitList(fields[fieldAvoid]) {
		avoid[strings.ToLower(a)] = true
	}
	skip := make(map[string]bool)
	for _, a := range splitList(fields[fieldAvoidPlaces]) {
		skip[strings.ToLower(a)] = true
	}

	purpose := fields[fieldPurpose]
	if _, ok := mockCatalogue[purpose]; !ok {
		purpose = "activity"
	}

	out := candidateEnvelope{Candidates: []candidateJSON{}}
	for i, p := range mockCatalogue[purpose] {
		name := fmt.Sprintf("%s %s", city, p.name)
		if skip[strings.ToLower(name)] || avoid[p.kind] {
			continue
		}
		fit := "medium"
		if i == 0 {
			fit = "high"
		}
		out.Candidates = append(out.Candidates, candidateJSON{
			Name:            name,
			Type:            p.kind,
			Address:         fmt.Sprintf("%d Main Street, %s", 10+i*7, city),
			DurationMinutes: p.duration,
			EstimatedCost:   p.cost,
			EnergyLevel:     p.energy,
			OpeningHours:    p.hours,
			WhyRecommended:  fmt.Sprintf("[MOCK] a well-known %s in %s", p.kind, city),
			StrategicFit:    fit,
		})
		if len(out.Candidates) == 5 {
			break
		}
	}
	b, _ := json.Marshal(out)
	return string(b)
}
