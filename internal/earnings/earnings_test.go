package earnings

import (
	"testing"

	"github.com/dupipcom/morpheus-sub002/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCalculateDailyScenario(t *testing.T) {
	res := Calculate(Params{
		BudgetAllocationPercent: dec("50"),
		Equity:                  dec("1000"),
		ListBudget:              dec("300"),
		NumTasks:                3,
		Role:                    "daily.default",
	})

	require.Equal(t, "166.67", res.ActionPrize.StringFixed(2))
	require.Equal(t, "100.00", res.ActionProfit.StringFixed(2))
	require.Equal(t, "266.67", res.ActionValuation.StringFixed(2))
	require.Equal(t, "8.89", res.DailyEarnings.StringFixed(2))
	require.Equal(t, "5.56", res.DailyPrize.StringFixed(2))
	require.Equal(t, "3.33", res.DailyProfit.StringFixed(2))
	require.True(t, res.WeeklyEarnings.IsZero())
	require.Equal(t, model.CadenceDaily, res.Cadence)
	require.Equal(t, "8.89", Format(res.PeriodEarnings()))
}

func TestCalculateWeeklyDividesByFour(t *testing.T) {
	res := Calculate(Params{
		BudgetAllocationPercent: dec("50"),
		Equity:                  dec("1000"),
		ListBudget:              dec("300"),
		NumTasks:                3,
		Role:                    "weekly.default",
	})

	require.Equal(t, "66.67", res.WeeklyEarnings.StringFixed(2))
	require.Equal(t, "41.67", res.WeeklyPrize.StringFixed(2))
	require.Equal(t, "25.00", res.WeeklyProfit.StringFixed(2))
	require.True(t, res.DailyEarnings.IsZero())
	require.Equal(t, res.WeeklyEarnings, res.PeriodEarnings())
}

func TestCalculateZeroBudgetAndAllocation(t *testing.T) {
	res := Calculate(Params{NumTasks: 5, Role: "daily.default"})

	for _, v := range []decimal.Decimal{
		res.ActionPrize, res.ActionProfit, res.ActionValuation,
		res.DailyPrize, res.DailyProfit, res.DailyEarnings,
	} {
		require.True(t, v.IsZero(), "got %s", v)
	}
}

func TestCalculateNoTasks(t *testing.T) {
	res := Calculate(Params{
		BudgetAllocationPercent: dec("100"),
		Equity:                  dec("50"),
		ListBudget:              dec("10"),
		Role:                    "daily.default",
	})
	require.True(t, res.ActionValuation.IsZero())
	require.True(t, res.DailyEarnings.IsZero())
}

func TestCalculatePrizeNeedsAllocationAndEquity(t *testing.T) {
	res := Calculate(Params{Equity: dec("1000"), ListBudget: dec("20"), NumTasks: 2, Role: "custom"})
	require.True(t, res.ActionPrize.IsZero())
	require.Equal(t, "10", res.ActionProfit.String())
	require.Equal(t, model.CadenceNone, res.Cadence)
	require.Equal(t, res.ActionValuation, res.PeriodEarnings())
}

func TestInitializeRemainingBudget(t *testing.T) {
	require.Equal(t, "300", InitializeRemainingBudget(nil, dec("300")).String())

	zero := decimal.Zero
	require.True(t, InitializeRemainingBudget(&zero, dec("300")).IsZero(), "zero is already initialised")
}

func TestBudgetConsumption(t *testing.T) {
	require.Equal(t, "200", BudgetConsumption(nil, dec("300"), 3).String())

	remaining := dec("50")
	require.True(t, BudgetConsumption(&remaining, dec("300"), 3).IsZero(), "floored at zero")

	require.Equal(t, "50", BudgetConsumption(&remaining, dec("300"), 0).String())
	require.Equal(t, "300", BudgetConsumption(nil, dec("300"), 0).String())
}
