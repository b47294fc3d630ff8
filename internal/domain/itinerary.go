package domain

// Slot is one schedulable part of a day.
type Slot struct {
	Name    string     `json:"name"`
	Purpose Purpose    `json:"purpose"`
	Window  TimeWindow `json:"window"`
}

// DayPlan is the skeleton of one itinerary day.
type DayPlan struct {
	Day   int    `json:"day"`
	Date  string `json:"date"`
	City  string `json:"city"`
	Theme string `json:"theme"`
	Slots []Slot `json:"slots"`
}

// ScheduledItem is a filled slot.
type ScheduledItem struct {
	Day          int           `json:"day"`
	Date         string        `json:"date"`
	City         string        `json:"city"`
	Slot         string        `json:"slot"`
	Purpose      Purpose       `json:"purpose"`
	Start        string        `json:"start"`
	End          string        `json:"end"`
	Name         string        `json:"name"`
	Address      string        `json:"address,omitempty"`
	Category     string        `json:"category,omitempty"`
	Cost         float64       `json:"cost,omitempty"`
	Confidence   float64       `json:"confidence"`
	Attempts     int           `json:"attempts"`
	Fallback     bool          `json:"fallback,omitempty"`
	Reasoning    string        `json:"reasoning,omitempty"`
	Alternatives []Alternative `json:"alternatives,omitempty"`
}

// ItineraryDay groups the scheduled items of one day.
type ItineraryDay struct {
	Day   int             `json:"day"`
	Date  string          `json:"date"`
	City  string          `json:"city"`
	Theme string          `json:"theme"`
	Items []ScheduledItem `json:"items"`
}

// BudgetSummary is the budget view attached to an itinerary.
type BudgetSummary struct {
	Total       float64 `json:"total"`
	Spent       float64 `json:"spent"`
	Remaining   float64 `json:"remaining"`
	PercentUsed float64 `json:"percent_used"`
	OverBudget  bool    `json:"over_budget"`
	Currency    string  `json:"currency,omitempty"`
}

// Itinerary is the final product of a run.
type Itinerary struct {
	RunID     string         `json:"run_id"`
	Cities    []string       `json:"cities"`
	StartDate string         `json:"start_date"`
	EndDate   string         `json:"end_date"`
	Days      []ItineraryDay `json:"days"`
	Budget    BudgetSummary  `json:"budget"`
	Fallbacks int            `json:"fallbacks"`
	Gaps      []string       `json:"gaps,omitempty"`
}
