package recurrence

import (
	"slices"
	"time"
)

// maxIterations bounds the day walk; roughly 27 years of daily steps.
const maxIterations = 10000

// Occurrences returns the days in [rangeStart, rangeEnd) on which the rule
// fires, counting from anchor (the day the rule took effect). Returned values
// are midnight in anchor's location.
func Occurrences(rule Rule, anchor, rangeStart, rangeEnd time.Time) []time.Time {
	anchor = startOfDay(anchor)
	loc := anchor.Location()
	rangeStart = startOfDay(rangeStart.In(loc))

	var until time.Time
	hasUntil := false
	if rule.Until != nil {
		if t, err := ParseUntil(*rule.Until); err == nil {
			until, hasUntil = t, true
		}
	}

	// COUNT needs every occurrence from the anchor; otherwise skip ahead.
	day := anchor
	if rule.Count == nil && rangeStart.After(anchor) {
		day = rangeStart
	}

	var results []time.Time
	count := 0
	for i := 0; i < maxIterations && day.Before(rangeEnd); i++ {
		if hasUntil && day.After(until) {
			break
		}
		if matches(rule, anchor, day) {
			count++
			if rule.Count != nil && count > *rule.Count {
				break
			}
			if !day.Before(rangeStart) {
				results = append(results, day)
			}
		}
		if rule.Frequency == None && !day.Before(anchor) {
			break
		}
		day = day.AddDate(0, 0, 1)
	}

	return results
}

// OccursOn reports whether the rule fires on the calendar day of date.
func OccursOn(rule Rule, anchor, date time.Time) bool {
	dayStart := startOfDay(date.In(anchor.Location()))
	dayEnd := dayStart.AddDate(0, 0, 1)
	return len(Occurrences(rule, anchor, dayStart, dayEnd)) > 0
}

func matches(r Rule, anchor, day time.Time) bool {
	n := r.interval()
	switch r.Frequency {
	case None:
		return day.Equal(anchor)

	case Daily:
		return daysBetween(anchor, day)%n == 0

	case Weekly:
		// Empty selector means the anchor's weekday.
		days := r.ByWeekday
		if len(days) == 0 {
			days = []int{isoWeekday(anchor)}
		}
		if !slices.Contains(days, isoWeekday(day)) {
			return false
		}
		return (daysBetween(weekStart(anchor), weekStart(day))/7)%n == 0

	case Monthly:
		monthDays := r.ByMonthDay
		if len(monthDays) == 0 {
			monthDays = []int{anchor.Day()}
		}
		if !slices.Contains(monthDays, day.Day()) {
			return false
		}
		months := (day.Year()-anchor.Year())*12 + int(day.Month()) - int(anchor.Month())
		return months%n == 0

	case Yearly:
		months := r.ByMonth
		if len(months) == 0 {
			months = []int{int(anchor.Month())}
		}
		monthDays := r.ByMonthDay
		if len(monthDays) == 0 {
			monthDays = []int{anchor.Day()}
		}
		if !slices.Contains(months, int(day.Month())) || !slices.Contains(monthDays, day.Day()) {
			return false
		}
		return (day.Year()-anchor.Year())%n == 0
	}
	return false
}

func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

func weekStart(t time.Time) time.Time {
	monday := t.AddDate(0, 0, 1-isoWeekday(t))
	return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, t.Location())
}

// daysBetween counts calendar days from a to b, ignoring DST shifts.
func daysBetween(a, b time.Time) int {
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
