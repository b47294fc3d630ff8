package planner

import (
	"context"
	"fmt"

	"github.com/xiaot623/gogo/planner/internal/agent"
	"github.com/xiaot623/gogo/planner/internal/domain"
	"github.com/xiaot623/gogo/planner/internal/graph"
	"github.com/xiaot623/gogo/planner/internal/knowledge"
)

const clockLayout = "15:04"

// ScheduleReview summarizes the filled schedule.
type ScheduleReview struct {
	Items           int                          `json:"items"`
	Fallbacks       int                          `json:"fallbacks"`
	Statistics      knowledge.ScheduleStatistics `json:"statistics"`
	Diversification knowledge.Diversification    `json:"diversification"`
	Warnings        []string                     `json:"warnings,omitempty"`
}

func scheduledItem(plan domain.DayPlan, slot domain.Slot, out *agent.Outcome) domain.ScheduledItem {
	item := domain.ScheduledItem{
		Day:        plan.Day,
		Date:       plan.Date,
		City:       plan.City,
		Slot:       slot.Name,
		Purpose:    slot.Purpose,
		Start:      slot.Window.Start.Format(clockLayout),
		End:        slot.Window.End.Format(clockLayout),
		Confidence: out.Confidence,
		Attempts:   out.Attempts,
	}
	if !out.Success || out.Selected == nil {
		item.Fallback = true
		item.Name = placeholderName(slot.Purpose, plan.City)
		item.Reasoning = fmt.Sprintf("no validated %s after %d attempts", slot.Purpose, out.Attempts)
		return item
	}

	r := out.Selected.Result
	item.Name = r.Candidate.Name
	item.Address = r.Candidate.Address
	if r.Place != nil && r.Place.Address != "" {
		item.Address = r.Place.Address
	}
	item.Category = r.Candidate.Type
	item.Cost = r.Candidate.EstimatedCost
	item.Reasoning = out.Selected.Reasoning
	for _, alt := range out.Alternatives {
		item.Alternatives = append(item.Alternatives, domain.Alternative{
			Name:   alt.Name(),
			Score:  alt.Score,
			Reason: alt.RejectionReason,
		})
	}
	return item
}

func placeholderName(p domain.Purpose, city string) string {
	if p == domain.PurposeRestaurant {
		return "Local dining in " + city
	}
	return "Free time in " + city
}

func budgetSummary(sc *knowledge.SharedContext) domain.BudgetSummary {
	b := sc.BudgetStatus()
	return domain.BudgetSummary{
		Total:       b.Total,
		Spent:       b.Spent,
		Remaining:   b.Remaining,
		PercentUsed: b.PercentUsed,
		OverBudget:  b.OverBudget,
		Currency:    b.Currency,
	}
}

func budgetReview(ctx context.Context, in graph.TaskInput) (any, error) {
	return budgetSummary(in.Knowledge), nil
}

func scheduleReview(ctx context.Context, in graph.TaskInput) (any, error) {
	review := ScheduleReview{
		Statistics:      in.Knowledge.ScheduleStatistics(),
		Diversification: in.Knowledge.NeedsDiversification(),
	}
	for _, task := range []string{TaskActivities, TaskRestaurants} {
		items, ok := scheduledItems(in, task)
		if !ok {
			review.Warnings = append(review.Warnings, task+" produced no items")
			continue
		}
		for _, item := range items {
			review.Items++
			if item.Fallback {
				review.Fallbacks++
			}
		}
	}
	if review.Diversification.NeedsDiversification {
		review.Warnings = append(review.Warnings, review.Diversification.Reason)
	}
	if b := in.Knowledge.BudgetStatus(); b.OverBudget {
		review.Warnings = append(review.Warnings, fmt.Sprintf("over budget by %.2f", -b.Remaining))
	}
	return review, nil
}
