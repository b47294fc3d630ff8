package knowledge

// BudgetStatus is a derived view of the budget.
type BudgetStatus struct {
	Total       float64 `json:"total"`
	Spent       float64 `json:"spent"`
	Remaining   float64 `json:"remaining"`
	Tracked     bool    `json:"tracked"`
	PercentUsed float64 `json:"percent_used"`
	OverBudget  bool    `json:"over_budget"`
	Currency    string  `json:"currency,omitempty"`
}

// UpdateBudget adds amount to the spent total and, when tracked, subtracts
// it from the remaining budget. Remaining may go negative.
func (sc *SharedContext) UpdateBudget(amount float64) BudgetStatus {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.state.BudgetSpent += amount
	if sc.constraints.Budget.Tracked {
		sc.constraints.Budget.Remaining -= amount
	}
	return sc.budgetStatusLocked()
}

// BudgetStatus returns the current budget view.
func (sc *SharedContext) BudgetStatus() BudgetStatus {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.budgetStatusLocked()
}

func (sc *SharedContext) budgetStatusLocked() BudgetStatus {
	b := sc.constraints.Budget
	status := BudgetStatus{
		Total:     b.Total,
		Spent:     sc.state.BudgetSpent,
		Remaining: b.Remaining,
		Tracked:   b.Tracked,
		Currency:  b.Currency,
	}
	if b.Tracked {
		status.PercentUsed = sc.state.BudgetSpent / b.Total * 100
		status.OverBudget = b.Remaining < 0
	}
	return status
}
