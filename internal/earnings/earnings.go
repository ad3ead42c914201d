// Package earnings converts a list's budget, a member's equity and the number
// of tasks sharing a period into per-action and per-period amounts.
package earnings

import (
	"github.com/dupipcom/morpheus-sub002/internal/model"
	"github.com/shopspring/decimal"
)

// Period divisors: one action's share of a month (30 days) or of a
// four-week month.
var (
	dailyDivisor  = decimal.NewFromInt(30)
	weeklyDivisor = decimal.NewFromInt(4)
	hundred       = decimal.NewFromInt(100)
)

type Params struct {
	// BudgetAllocationPercent is on a 0-100 scale.
	BudgetAllocationPercent decimal.Decimal
	Equity                  decimal.Decimal
	ListBudget              decimal.Decimal
	NumTasks                int
	// Role is the list's role tag, e.g. "daily.default".
	Role string
}

type Result struct {
	ActionPrize     decimal.Decimal
	ActionProfit    decimal.Decimal
	ActionValuation decimal.Decimal

	Cadence model.Cadence

	DailyPrize    decimal.Decimal
	DailyProfit   decimal.Decimal
	DailyEarnings decimal.Decimal

	WeeklyPrize    decimal.Decimal
	WeeklyProfit   decimal.Decimal
	WeeklyEarnings decimal.Decimal
}

// PeriodEarnings is the amount credited to a period entry for one completion.
// Lists without a daily/weekly cadence credit the full action valuation.
func (r Result) PeriodEarnings() decimal.Decimal {
	switch r.Cadence {
	case model.CadenceDaily:
		return r.DailyEarnings
	case model.CadenceWeekly:
		return r.WeeklyEarnings
	}
	return r.ActionValuation
}

// Calculate never fails; a zero task count yields an all-zero result.
func Calculate(p Params) Result {
	res := Result{Cadence: model.CadenceOf(p.Role)}
	if p.NumTasks <= 0 {
		return res
	}
	n := decimal.NewFromInt(int64(p.NumTasks))

	if p.BudgetAllocationPercent.IsPositive() && p.Equity.IsPositive() {
		res.ActionPrize = p.BudgetAllocationPercent.Div(hundred).Mul(p.Equity).Div(n)
	}
	if p.ListBudget.IsPositive() {
		res.ActionProfit = p.ListBudget.Div(n)
	}
	res.ActionValuation = res.ActionProfit.Add(res.ActionPrize)

	switch res.Cadence {
	case model.CadenceDaily:
		res.DailyPrize = res.ActionPrize.Div(dailyDivisor)
		res.DailyProfit = res.ActionProfit.Div(dailyDivisor)
		res.DailyEarnings = res.ActionValuation.Div(dailyDivisor)
	case model.CadenceWeekly:
		res.WeeklyPrize = res.ActionPrize.Div(weeklyDivisor)
		res.WeeklyProfit = res.ActionProfit.Div(weeklyDivisor)
		res.WeeklyEarnings = res.ActionValuation.Div(weeklyDivisor)
	}
	return res
}

// InitializeRemainingBudget seeds an unset remaining budget from the list
// budget. Zero is a valid, already initialised value.
func InitializeRemainingBudget(remaining *decimal.Decimal, listBudget decimal.Decimal) decimal.Decimal {
	if remaining == nil {
		return listBudget
	}
	return *remaining
}

// BudgetConsumption returns the remaining budget after one completion,
// floored at zero.
func BudgetConsumption(remaining *decimal.Decimal, listBudget decimal.Decimal, numTasks int) decimal.Decimal {
	current := InitializeRemainingBudget(remaining, listBudget)
	if numTasks <= 0 {
		return current
	}
	next := current.Sub(listBudget.Div(decimal.NewFromInt(int64(numTasks))))
	if next.IsNegative() {
		return decimal.Zero
	}
	return next
}

// Format renders an amount the way period entries store it.
func Format(d decimal.Decimal) string {
	return d.StringFixed(2)
}
