package auth

import (
	"fmt"
	"sync"
	"time"
)

// spendWindow accumulates LLM spend inside a calendar window (a day or a
// month). Rollover is lazy: the window resets the first time it is touched
// after the calendar boundary passes.
type spendWindow struct {
	Start    time.Time `json:"start"`
	SpentUSD float64   `json:"spent_usd"`
}

// CostBudget caps how much a single user may spend on chat runs. A zero
// limit means that window is uncapped.
type CostBudget struct {
	UserID          string      `json:"user_id"`
	DailyLimitUSD   float64     `json:"daily_limit_usd"`
	MonthlyLimitUSD float64     `json:"monthly_limit_usd"`
	Day             spendWindow `json:"day"`
	Month           spendWindow `json:"month"`
	LifetimeUSD     float64     `json:"lifetime_usd"`
}

// remaining reports how much headroom the budget has right now, after
// accounting for windows that have rolled over.
func (b *CostBudget) remaining(now time.Time) (day, month float64) {
	day = b.DailyLimitUSD
	if b.DailyLimitUSD > 0 && sameDay(b.Day.Start, now) {
		day = b.DailyLimitUSD - b.Day.SpentUSD
	}
	month = b.MonthlyLimitUSD
	if b.MonthlyLimitUSD > 0 && sameMonth(b.Month.Start, now) {
		month = b.MonthlyLimitUSD - b.Month.SpentUSD
	}
	return day, month
}

func (b *CostBudget) rollover(now time.Time) {
	if !sameDay(b.Day.Start, now) {
		b.Day = spendWindow{Start: dayStart(now)}
	}
	if !sameMonth(b.Month.Start, now) {
		b.Month = spendWindow{Start: monthStart(now)}
	}
}

// CostBudgetManager enforces per-user spend limits on chat runs. Users
// without a configured budget are unrestricted.
type CostBudgetManager struct {
	mu      sync.RWMutex
	budgets map[string]*CostBudget
	now     func() time.Time
}

func NewCostBudgetManager() *CostBudgetManager {
	return &CostBudgetManager{
		budgets: make(map[string]*CostBudget),
		now:     time.Now,
	}
}

// SetBudget installs or replaces the spend limits for a user. Existing
// window spend carries over so raising a limit mid-day does not wipe out
// what the user has already consumed.
func (cbm *CostBudgetManager) SetBudget(userID string, dailyUSD, monthlyUSD float64) {
	cbm.mu.Lock()
	defer cbm.mu.Unlock()

	now := cbm.now()
	budget, ok := cbm.budgets[userID]
	if !ok {
		budget = &CostBudget{
			UserID: userID,
			Day:    spendWindow{Start: dayStart(now)},
			Month:  spendWindow{Start: monthStart(now)},
		}
		cbm.budgets[userID] = budget
	}
	budget.DailyLimitUSD = dailyUSD
	budget.MonthlyLimitUSD = monthlyUSD
}

// GetBudget returns a snapshot of a user's budget.
func (cbm *CostBudgetManager) GetBudget(userID string) (*CostBudget, error) {
	cbm.mu.RLock()
	defer cbm.mu.RUnlock()

	budget, ok := cbm.budgets[userID]
	if !ok {
		return nil, fmt.Errorf("no budget configured for user %s", userID)
	}
	snapshot := *budget
	return &snapshot, nil
}

// CheckBudget reports whether the user can afford an estimated cost without
// booking it. Actual spend is booked by RecordCost once the run finishes.
func (cbm *CostBudgetManager) CheckBudget(userID string, estimateUSD float64) error {
	cbm.mu.RLock()
	defer cbm.mu.RUnlock()

	budget, ok := cbm.budgets[userID]
	if !ok {
		return nil
	}

	day, month := budget.remaining(cbm.now())
	if budget.DailyLimitUSD > 0 && estimateUSD > day {
		return fmt.Errorf("daily spend limit reached: %.4f USD left of %.4f USD", day, budget.DailyLimitUSD)
	}
	if budget.MonthlyLimitUSD > 0 && estimateUSD > month {
		return fmt.Errorf("monthly spend limit reached: %.4f USD left of %.4f USD", month, budget.MonthlyLimitUSD)
	}
	return nil
}

// RecordCost books the actual spend of a finished run against the user's
// windows. It rejects spend that would push a window over its limit.
func (cbm *CostBudgetManager) RecordCost(userID string, costUSD float64) error {
	cbm.mu.Lock()
	defer cbm.mu.Unlock()

	budget, ok := cbm.budgets[userID]
	if !ok {
		return nil
	}

	now := cbm.now()
	budget.rollover(now)

	if budget.DailyLimitUSD > 0 && budget.Day.SpentUSD+costUSD > budget.DailyLimitUSD {
		return fmt.Errorf("daily spend limit exceeded: %.4f USD spent of %.4f USD (run cost %.4f USD)",
			budget.Day.SpentUSD, budget.DailyLimitUSD, costUSD)
	}
	if budget.MonthlyLimitUSD > 0 && budget.Month.SpentUSD+costUSD > budget.MonthlyLimitUSD {
		return fmt.Errorf("monthly spend limit exceeded: %.4f USD spent of %.4f USD (run cost %.4f USD)",
			budget.Month.SpentUSD, budget.MonthlyLimitUSD, costUSD)
	}

	budget.Day.SpentUSD += costUSD
	budget.Month.SpentUSD += costUSD
	budget.LifetimeUSD += costUSD
	return nil
}

// DeleteBudget removes the limits for a user, making them unrestricted.
func (cbm *CostBudgetManager) DeleteBudget(userID string) error {
	cbm.mu.Lock()
	defer cbm.mu.Unlock()

	if _, ok := cbm.budgets[userID]; !ok {
		return fmt.Errorf("no budget configured for user %s", userID)
	}
	delete(cbm.budgets, userID)
	return nil
}

func dayStart(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

func monthStart(t time.Time) time.Time {
	year, month, _ := t.Date()
	return time.Date(year, month, 1, 0, 0, 0, 0, t.Location())
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func sameMonth(a, b time.Time) bool {
	ay, am, _ := a.Date()
	by, bm, _ := b.Date()
	return ay == by && am == bm
}
