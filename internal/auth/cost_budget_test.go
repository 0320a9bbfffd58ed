package auth

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCostBudget_UnconfiguredUserIsUnrestricted(t *testing.T) {
	cbm := NewCostBudgetManager()

	assert.NoError(t, cbm.CheckBudget("drifter", 1000.0))
	assert.NoError(t, cbm.RecordCost("drifter", 1000.0))

	_, err := cbm.GetBudget("drifter")
	assert.Error(t, err)
}

func TestCostBudget_RecordCostAccumulates(t *testing.T) {
	cbm := NewCostBudgetManager()
	cbm.SetBudget("analyst", 1.0, 10.0)

	require.NoError(t, cbm.RecordCost("analyst", 0.25))
	require.NoError(t, cbm.RecordCost("analyst", 0.25))

	budget, err := cbm.GetBudget("analyst")
	require.NoError(t, err)
	assert.Equal(t, 0.5, budget.Day.SpentUSD)
	assert.Equal(t, 0.5, budget.Month.SpentUSD)
	assert.Equal(t, 0.5, budget.LifetimeUSD)
}

func TestCostBudget_DailyLimitBlocksOverspend(t *testing.T) {
	cbm := NewCostBudgetManager()
	cbm.SetBudget("analyst", 1.0, 100.0)

	require.NoError(t, cbm.RecordCost("analyst", 0.9))

	err := cbm.RecordCost("analyst", 0.2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daily spend limit exceeded")

	// The failed run must not be booked.
	budget, err := cbm.GetBudget("analyst")
	require.NoError(t, err)
	assert.Equal(t, 0.9, budget.Day.SpentUSD)
}

func TestCostBudget_MonthlyLimitBlocksOverspend(t *testing.T) {
	cbm := NewCostBudgetManager()
	cbm.SetBudget("analyst", 0, 1.0)

	require.NoError(t, cbm.RecordCost("analyst", 0.8))

	err := cbm.RecordCost("analyst", 0.3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monthly spend limit exceeded")
}

func TestCostBudget_CheckBudgetDoesNotBook(t *testing.T) {
	cbm := NewCostBudgetManager()
	cbm.SetBudget("analyst", 1.0, 10.0)

	require.NoError(t, cbm.CheckBudget("analyst", 0.5))
	require.NoError(t, cbm.CheckBudget("analyst", 0.5))

	budget, err := cbm.GetBudget("analyst")
	require.NoError(t, err)
	assert.Equal(t, 0.0, budget.Day.SpentUSD)
}

func TestCostBudget_CheckBudgetRejectsUnaffordableEstimate(t *testing.T) {
	cbm := NewCostBudgetManager()
	cbm.SetBudget("analyst", 1.0, 10.0)
	require.NoError(t, cbm.RecordCost("analyst", 0.7))

	err := cbm.CheckBudget("analyst", 0.5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daily spend limit reached")

	assert.NoError(t, cbm.CheckBudget("analyst", 0.2))
}

func TestCostBudget_ZeroLimitMeansUncapped(t *testing.T) {
	cbm := NewCostBudgetManager()
	cbm.SetBudget("analyst", 0, 0)

	assert.NoError(t, cbm.CheckBudget("analyst", 500.0))
	assert.NoError(t, cbm.RecordCost("analyst", 500.0))
}

func TestCostBudget_DailyWindowRollsOverAtMidnight(t *testing.T) {
	clock := time.Date(2025, 3, 10, 13, 0, 0, 0, time.UTC)
	cbm := NewCostBudgetManager()
	cbm.now = func() time.Time { return clock }

	cbm.SetBudget("analyst", 1.0, 100.0)
	require.NoError(t, cbm.RecordCost("analyst", 1.0))
	require.Error(t, cbm.RecordCost("analyst", 0.1))

	// Next day the daily window resets but the monthly spend stays.
	clock = clock.Add(24 * time.Hour)
	require.NoError(t, cbm.RecordCost("analyst", 0.1))

	budget, err := cbm.GetBudget("analyst")
	require.NoError(t, err)
	assert.InDelta(t, 0.1, budget.Day.SpentUSD, 1e-9)
	assert.InDelta(t, 1.1, budget.Month.SpentUSD, 1e-9)
	assert.InDelta(t, 1.1, budget.LifetimeUSD, 1e-9)
}

func TestCostBudget_MonthlyWindowRollsOver(t *testing.T) {
	clock := time.Date(2025, 3, 31, 23, 0, 0, 0, time.UTC)
	cbm := NewCostBudgetManager()
	cbm.now = func() time.Time { return clock }

	cbm.SetBudget("analyst", 0, 5.0)
	require.NoError(t, cbm.RecordCost("analyst", 5.0))
	require.Error(t, cbm.CheckBudget("analyst", 0.1))

	clock = time.Date(2025, 4, 1, 1, 0, 0, 0, time.UTC)
	require.NoError(t, cbm.CheckBudget("analyst", 0.1))
	require.NoError(t, cbm.RecordCost("analyst", 0.1))
}

func TestCostBudget_SetBudgetKeepsWindowSpend(t *testing.T) {
	cbm := NewCostBudgetManager()
	cbm.SetBudget("analyst", 1.0, 10.0)
	require.NoError(t, cbm.RecordCost("analyst", 0.8))

	// Raising the limit mid-day keeps what was already spent.
	cbm.SetBudget("analyst", 2.0, 10.0)

	budget, err := cbm.GetBudget("analyst")
	require.NoError(t, err)
	assert.Equal(t, 0.8, budget.Day.SpentUSD)
	assert.Equal(t, 2.0, budget.DailyLimitUSD)
}

func TestCostBudget_DeleteBudget(t *testing.T) {
	cbm := NewCostBudgetManager()
	cbm.SetBudget("analyst", 0.01, 0.01)
	require.Error(t, cbm.CheckBudget("analyst", 1.0))

	require.NoError(t, cbm.DeleteBudget("analyst"))
	assert.NoError(t, cbm.CheckBudget("analyst", 1.0))
	assert.Error(t, cbm.DeleteBudget("analyst"))
}

func TestCostBudget_ConcurrentRecording(t *testing.T) {
	cbm := NewCostBudgetManager()
	cbm.SetBudget("analyst", 0, 0)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = cbm.RecordCost("analyst", 0.01)
			_ = cbm.CheckBudget("analyst", 0.01)
			_, _ = cbm.GetBudget("analyst")
			cbm.SetBudget(fmt.Sprintf("user-%d", n), 1.0, 10.0)
		}(i)
	}
	wg.Wait()

	budget, err := cbm.GetBudget("analyst")
	require.NoError(t, err)
	assert.InDelta(t, 0.2, budget.LifetimeUSD, 1e-9)
}
