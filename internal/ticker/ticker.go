// Package ticker computes period-over-period percentage changes of the
// earnings/balance ratio stored in a user's period entries.
package ticker

import (
	"fmt"
	"math"
	"time"

	"github.com/dupipcom/morpheus-sub002/internal/model"
)

// Standard lookback windows.
var (
	DayWindows  = []int{1, 3}
	WeekWindows = []int{1, 2, 4, 12, 26, 52}
)

// weeksPerYear is the wrap used when a week lookback crosses a year
// boundary. 53-week ISO years are not special-cased.
const weeksPerYear = 52

func DayLabel(n int) string  { return fmt.Sprintf("%dd", n) }
func WeekLabel(n int) string { return fmt.Sprintf("%dw", n) }

func normalize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// PercentageDelta is the change from previous to current in percent. A zero
// baseline yields 100 for growth and 0 otherwise.
func PercentageDelta(current, previous float64) float64 {
	current, previous = normalize(current), normalize(previous)
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return normalize((current - previous) / previous * 100)
}

// Ratio is earnings over balance, treating an unset balance as 1.
func Ratio(earnings, balance float64) float64 {
	if balance == 0 {
		balance = 1
	}
	return normalize(earnings / balance)
}

func entryRatio(e *model.PeriodEntry) float64 {
	if e == nil {
		return 0
	}
	return Ratio(e.EarningsValue(), e.BalanceValue())
}

// CalculateDayTicker compares the current ratio with the entry exactly days
// calendar days before date. A missing entry has ratio 0.
func CalculateDayTicker(entries model.Ledger, date time.Time, earnings, balance float64, days int) float64 {
	prev := date.AddDate(0, 0, -days)
	var ratio float64
	if e := entries.Day(prev); e != nil {
		ratio = entryRatio(&e.PeriodEntry)
	}
	return PercentageDelta(Ratio(earnings, balance), ratio)
}

// LookbackWeek resolves the (year, week) that lies weeks before the given
// week, wrapping to week 52 of the previous year.
func LookbackWeek(year, week, weeks int) (int, int) {
	w := week - weeks
	for w <= 0 {
		w += weeksPerYear
		year--
	}
	return year, w
}

// CalculateWeekTicker compares the current ratio with the entry weeks weeks
// before (year, week).
func CalculateWeekTicker(entries model.Ledger, year, week int, earnings, balance float64, weeks int) float64 {
	y, w := LookbackWeek(year, week, weeks)
	var ratio float64
	if e := entries.Week(y, w); e != nil {
		ratio = entryRatio(&e.PeriodEntry)
	}
	return PercentageDelta(Ratio(earnings, balance), ratio)
}

// DayTickers computes every standard day window.
func DayTickers(entries model.Ledger, date time.Time, earnings, balance float64) map[string]float64 {
	out := make(map[string]float64, len(DayWindows))
	for _, n := range DayWindows {
		out[DayLabel(n)] = CalculateDayTicker(entries, date, earnings, balance, n)
	}
	return out
}

// WeekTickers computes every standard week window.
func WeekTickers(entries model.Ledger, year, week int, earnings, balance float64) map[string]float64 {
	out := make(map[string]float64, len(WeekWindows))
	for _, n := range WeekWindows {
		out[WeekLabel(n)] = CalculateWeekTicker(entries, year, week, earnings, balance, n)
	}
	return out
}
