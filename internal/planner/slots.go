package planner

import (
	"context"
	"fmt"

	"github.com/xiaot623/gogo/planner/internal/domain"
	"github.com/xiaot623/gogo/planner/internal/graph"
)

// slotTask fills every slot of one purpose across all days. Slots are
// filled in order so each choice sees the previous ones.
type slotTask struct {
	runner SlotRunner
}

func (t *slotTask) Execute(ctx context.Context, in graph.TaskInput) (any, error) {
	if t.runner == nil {
		return nil, fmt.Errorf("%w: no slot runner", domain.ErrConfiguration)
	}
	purpose, _ := in.Params["purpose"].(string)
	if purpose == "" {
		return nil, fmt.Errorf("slots task needs a purpose param")
	}
	plans, err := dayPlans(in)
	if err != nil {
		return nil, err
	}

	var items []domain.ScheduledItem
	for _, plan := range plans {
		for _, slot := range plan.Slots {
			if string(slot.Purpose) != purpose {
				continue
			}
			if err := ctx.Err(); err != nil {
				return items, err
			}
			in.Knowledge.SetCurrent(plan.Day, plan.City)
			req := domain.DiscoveryRequest{
				City:    plan.City,
				Day:     plan.Day,
				Slot:    slot.Name,
				Window:  slot.Window,
				Theme:   plan.Theme,
				Purpose: slot.Purpose,
			}
			out, err := t.runner.Run(ctx, in.Knowledge, purpose, req)
			if err != nil {
				return nil, fmt.Errorf("day %d %s: %w", plan.Day, slot.Name, err)
			}
			items = append(items, scheduledItem(plan, slot, out))
		}
	}
	return items, nil
}
