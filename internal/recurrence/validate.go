package recurrence

import (
	"fmt"
	"time"
)

var untilLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"20060102T150405Z",
	"20060102",
}

// ValidationError names the first rule field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("recurrence %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ParseUntil parses an end date in any of the accepted layouts.
func ParseUntil(s string) (time.Time, error) {
	for _, layout := range untilLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// Validate checks a rule strictly. It returns nil for a usable rule.
func Validate(r Rule) error {
	switch r.Frequency {
	case Daily, Weekly, Monthly, Yearly, None:
	default:
		return invalid("frequency", "unknown frequency %q", r.Frequency)
	}

	if r.Interval != nil && *r.Interval < 1 {
		return invalid("interval", "must be a positive integer, got %d", *r.Interval)
	}
	for _, d := range r.ByWeekday {
		if d < 1 || d > 7 {
			return invalid("byWeekday", "weekday %d out of range 1-7", d)
		}
	}
	for _, d := range r.ByMonthDay {
		if d < 1 || d > 31 {
			return invalid("byMonthDay", "month day %d out of range 1-31", d)
		}
	}
	for _, m := range r.ByMonth {
		if m < 1 || m > 12 {
			return invalid("byMonth", "month %d out of range 1-12", m)
		}
	}
	if r.Until != nil {
		if _, err := ParseUntil(*r.Until); err != nil {
			return invalid("until", "%v", err)
		}
	}
	if r.Count != nil && *r.Count < 1 {
		return invalid("count", "must be a positive integer, got %d", *r.Count)
	}

	switch r.Frequency {
	case Weekly:
		if len(r.ByWeekday) == 0 {
			return invalid("byWeekday", "required for WEEKLY")
		}
	case Monthly:
		if len(r.ByMonthDay) == 0 {
			return invalid("byMonthDay", "required for MONTHLY")
		}
	case Yearly:
		if len(r.ByMonth) == 0 {
			return invalid("byMonth", "required for YEARLY")
		}
		if len(r.ByMonthDay) == 0 {
			return invalid("byMonthDay", "required for YEARLY")
		}
	}
	return nil
}

// Default is the rule substituted for anything that fails validation.
func Default() Rule {
	one := 1
	return Rule{
		Frequency:  Daily,
		Interval:   &one,
		ByWeekday:  []int{},
		ByMonthDay: []int{},
		ByMonth:    []int{},
	}
}

// Sanitize returns r with empty selectors normalised, or Default() when r
// does not validate.
func Sanitize(r Rule) Rule {
	if Validate(r) != nil {
		return Default()
	}
	out := r
	out.ByWeekday = nonNil(r.ByWeekday)
	out.ByMonthDay = nonNil(r.ByMonthDay)
	out.ByMonth = nonNil(r.ByMonth)
	return out
}

func nonNil(s []int) []int {
	if s == nil {
		return []int{}
	}
	return append([]int{}, s...)
}
