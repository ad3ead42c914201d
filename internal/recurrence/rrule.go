package recurrence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type Frequency string

const (
	Daily   Frequency = "DAILY"
	Weekly  Frequency = "WEEKLY"
	Monthly Frequency = "MONTHLY"
	Yearly  Frequency = "YEARLY"
	None    Frequency = "NONE"
)

// Weekday selectors are ISO numbered: 1 = Monday ... 7 = Sunday.
var dayNames = map[string]int{
	"MO": 1,
	"TU": 2,
	"WE": 3,
	"TH": 4,
	"FR": 5,
	"SA": 6,
	"SU": 7,
}

var dayAbbrev = map[int]string{
	1: "MO",
	2: "TU",
	3: "WE",
	4: "TH",
	5: "FR",
	6: "SA",
	7: "SU",
}

var dayLabels = map[int]string{
	1: "Mon",
	2: "Tue",
	3: "Wed",
	4: "Thu",
	5: "Fri",
	6: "Sat",
	7: "Sun",
}

type Rule struct {
	Frequency  Frequency `json:"frequency"`
	Interval   *int      `json:"interval,omitempty"`
	ByWeekday  []int     `json:"byWeekday"`
	ByMonthDay []int     `json:"byMonthDay"`
	ByMonth    []int     `json:"byMonth"`
	Until      *string   `json:"until"`
	Count      *int      `json:"count"`
}

// Parse parses an RRULE string like "FREQ=WEEKLY;BYDAY=MO,WE;INTERVAL=2".
// Range and cross-field checks are left to Validate.
func Parse(rule string) (Rule, error) {
	if rule == "" {
		return Rule{}, fmt.Errorf("empty rule")
	}

	var r Rule
	var hasFreq bool

	parts := strings.Split(rule, ";")
	for _, part := range parts {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return Rule{}, fmt.Errorf("invalid rule part: %q", part)
		}
		key, val := kv[0], kv[1]

		switch key {
		case "FREQ":
			r.Frequency = Frequency(val)
			hasFreq = true

		case "INTERVAL":
			n, err := strconv.Atoi(val)
			if err != nil {
				return Rule{}, fmt.Errorf("invalid interval: %q", val)
			}
			r.Interval = &n

		case "BYDAY":
			for _, d := range strings.Split(val, ",") {
				wd, ok := dayNames[strings.TrimSpace(d)]
				if !ok {
					return Rule{}, fmt.Errorf("unknown day: %q", d)
				}
				r.ByWeekday = append(r.ByWeekday, wd)
			}

		case "BYMONTHDAY":
			days, err := parseInts(val)
			if err != nil {
				return Rule{}, fmt.Errorf("invalid BYMONTHDAY: %q", val)
			}
			r.ByMonthDay = days

		case "BYMONTH":
			months, err := parseInts(val)
			if err != nil {
				return Rule{}, fmt.Errorf("invalid BYMONTH: %q", val)
			}
			r.ByMonth = months

		case "COUNT":
			n, err := strconv.Atoi(val)
			if err != nil {
				return Rule{}, fmt.Errorf("invalid count: %q", val)
			}
			r.Count = &n

		case "UNTIL":
			if _, err := ParseUntil(val); err != nil {
				return Rule{}, fmt.Errorf("invalid UNTIL: %q", val)
			}
			until := val
			r.Until = &until

		default:
			return Rule{}, fmt.Errorf("unsupported rule key: %q", key)
		}
	}

	if !hasFreq {
		return Rule{}, fmt.Errorf("FREQ is required")
	}

	return r, nil
}

func parseInts(val string) ([]int, error) {
	var out []int
	for _, s := range strings.Split(val, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func joinInts(vals []int) string {
	s := make([]string, len(vals))
	for i, v := range vals {
		s[i] = strconv.Itoa(v)
	}
	return strings.Join(s, ",")
}

// String serializes the rule back to an RRULE string.
func (r Rule) String() string {
	var parts []string
	parts = append(parts, "FREQ="+string(r.Frequency))

	if r.Interval != nil && *r.Interval > 1 {
		parts = append(parts, fmt.Sprintf("INTERVAL=%d", *r.Interval))
	}

	if len(r.ByWeekday) > 0 {
		var days []string
		for _, d := range r.ByWeekday {
			days = append(days, dayAbbrev[d])
		}
		parts = append(parts, "BYDAY="+strings.Join(days, ","))
	}

	if len(r.ByMonthDay) > 0 {
		parts = append(parts, "BYMONTHDAY="+joinInts(r.ByMonthDay))
	}

	if len(r.ByMonth) > 0 {
		parts = append(parts, "BYMONTH="+joinInts(r.ByMonth))
	}

	if r.Count != nil {
		parts = append(parts, fmt.Sprintf("COUNT=%d", *r.Count))
	}

	if r.Until != nil {
		parts = append(parts, "UNTIL="+*r.Until)
	}

	return strings.Join(parts, ";")
}

// Describe returns a human-readable description of the rule.
func (r Rule) Describe() string {
	n := r.interval()
	switch r.Frequency {
	case Daily:
		if n > 1 {
			return fmt.Sprintf("Repeats every %d days", n)
		}
		return "Repeats daily"
	case Weekly:
		prefix := "Repeats weekly"
		if n > 1 {
			prefix = fmt.Sprintf("Repeats every %d weeks", n)
		}
		if len(r.ByWeekday) > 0 {
			var names []string
			for _, d := range r.ByWeekday {
				names = append(names, dayLabels[d])
			}
			return prefix + " on " + strings.Join(names, ", ")
		}
		return prefix
	case Monthly:
		if n > 1 {
			return fmt.Sprintf("Repeats every %d months", n)
		}
		return "Repeats monthly"
	case Yearly:
		if n > 1 {
			return fmt.Sprintf("Repeats every %d years", n)
		}
		return "Repeats yearly"
	case None:
		return "Does not repeat"
	}
	return ""
}

func (r Rule) interval() int {
	if r.Interval == nil || *r.Interval < 1 {
		return 1
	}
	return *r.Interval
}

// UnmarshalJSON accepts the structured object form and the legacy RRULE
// string form.
func (r *Rule) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		parsed, err := Parse(s)
		if err != nil {
			return fmt.Errorf("recurrence: %w", err)
		}
		*r = parsed
		return nil
	}

	type plain Rule
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*r = Rule(p)
	return nil
}
