package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"time"
)

const DateLayout = "2006-01-02"

// TaskSnapshot is a task as recorded in a period entry.
type TaskSnapshot struct {
	ID         string   `json:"id,omitempty"`
	ListID     string   `json:"listId,omitempty"`
	Name       string   `json:"name"`
	Area       string   `json:"area,omitempty"`
	Categories []string `json:"categories,omitempty"`
	Status     string   `json:"status"`
	Count      int      `json:"count"`
	Times      int      `json:"times"`
	LocaleKey  string   `json:"localeKey,omitempty"`
}

// Closed reports whether the snapshot belongs in closedTasks. The "done"
// marker is matched case-sensitively. A missing times counts as 1.
func (s TaskSnapshot) Closed() bool {
	return s.Status == "done" || s.Count >= max(s.Times, 1)
}

// TaskLog is the tasks field of a period entry. Older documents store a flat
// array; those decode with IsLegacy set and re-encode as the same array until
// migrated.
type TaskLog struct {
	OpenTasks   []TaskSnapshot
	ClosedTasks []TaskSnapshot

	legacy   []TaskSnapshot
	isLegacy bool
}

func LegacyTaskLog(items []TaskSnapshot) TaskLog {
	if items == nil {
		items = []TaskSnapshot{}
	}
	return TaskLog{legacy: items, isLegacy: true}
}

func (l TaskLog) IsLegacy() bool { return l.isLegacy }

type taskLogObject struct {
	OpenTasks   []TaskSnapshot `json:"openTasks"`
	ClosedTasks []TaskSnapshot `json:"closedTasks"`
}

func (l TaskLog) MarshalJSON() ([]byte, error) {
	if l.isLegacy {
		return json.Marshal(l.legacy)
	}
	obj := taskLogObject{OpenTasks: l.OpenTasks, ClosedTasks: l.ClosedTasks}
	if obj.OpenTasks == nil {
		obj.OpenTasks = []TaskSnapshot{}
	}
	if obj.ClosedTasks == nil {
		obj.ClosedTasks = []TaskSnapshot{}
	}
	return json.Marshal(obj)
}

func (l *TaskLog) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*l = TaskLog{}
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '[' {
		var items []TaskSnapshot
		if err := json.Unmarshal(b, &items); err != nil {
			return fmt.Errorf("legacy task log: %w", err)
		}
		*l = LegacyTaskLog(items)
		return nil
	}
	var obj taskLogObject
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("task log: %w", err)
	}
	l.OpenTasks, l.ClosedTasks = obj.OpenTasks, obj.ClosedTasks
	return nil
}

// Upgrade splits a legacy array log into open and closed buckets in place and
// reports whether it changed anything. Item order is preserved per bucket.
func (l *TaskLog) Upgrade() bool {
	if !l.isLegacy {
		return false
	}
	items := l.legacy
	*l = TaskLog{OpenTasks: []TaskSnapshot{}, ClosedTasks: []TaskSnapshot{}}
	for _, s := range items {
		if s.Closed() {
			l.ClosedTasks = append(l.ClosedTasks, s)
		} else {
			l.OpenTasks = append(l.OpenTasks, s)
		}
	}
	return true
}

// Put places snap in the open or closed bucket according to its state,
// replacing any earlier snapshot of the same task. A legacy log is upgraded
// first.
func (l *TaskLog) Put(snap TaskSnapshot) {
	l.Remove(snap.ID)
	if snap.Closed() {
		l.ClosedTasks = append(l.ClosedTasks, snap)
	} else {
		l.OpenTasks = append(l.OpenTasks, snap)
	}
}

// Remove drops every snapshot of taskID from both buckets.
func (l *TaskLog) Remove(taskID string) {
	l.Upgrade()
	match := func(s TaskSnapshot) bool { return s.ID == taskID }
	l.OpenTasks = slices.DeleteFunc(l.OpenTasks, match)
	l.ClosedTasks = slices.DeleteFunc(l.ClosedTasks, match)
}

func (l *TaskLog) Contains(taskID string) bool {
	match := func(s TaskSnapshot) bool { return s.ID == taskID }
	if l.isLegacy {
		return slices.ContainsFunc(l.legacy, match)
	}
	return slices.ContainsFunc(l.OpenTasks, match) || slices.ContainsFunc(l.ClosedTasks, match)
}

// Ticker is either a single legacy percentage or a map of lookback window
// label to percentage.
type Ticker struct {
	Windows map[string]float64
	Legacy  *float64
}

func (t Ticker) MarshalJSON() ([]byte, error) {
	if t.Windows != nil {
		return json.Marshal(t.Windows)
	}
	if t.Legacy != nil {
		return json.Marshal(*t.Legacy)
	}
	return []byte("{}"), nil
}

func (t *Ticker) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*t = Ticker{}
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	switch b[0] {
	case '{':
		return json.Unmarshal(b, &t.Windows)
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			t.Legacy = &v
		}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	t.Legacy = &v
	return nil
}

type PeriodEntry struct {
	Tasks            TaskLog `json:"tasks"`
	Earnings         string  `json:"earnings"`
	Ticker           Ticker  `json:"ticker"`
	AvailableBalance string  `json:"availableBalance"`
}

// EarningsValue parses Earnings; malformed or empty values read as 0.
func (p *PeriodEntry) EarningsValue() float64 {
	return parseAmount(p.Earnings)
}

func (p *PeriodEntry) BalanceValue() float64 {
	return parseAmount(p.AvailableBalance)
}

func parseAmount(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

type DayEntry struct {
	Date string `json:"date"`
	PeriodEntry
}

type WeekEntry struct {
	Year int `json:"year"`
	Week int `json:"week"`
	PeriodEntry
}

// YearEntries holds one user's period entries for one calendar year.
type YearEntries struct {
	UserID  string                `json:"userId"`
	Year    int                   `json:"year"`
	Days    map[string]*DayEntry  `json:"days"`
	Weeks   map[string]*WeekEntry `json:"weeks"`
	Version int64                 `json:"-"`
}

func EntriesID(userID string, year int) string {
	return fmt.Sprintf("%s:%d", userID, year)
}

func NewYearEntries(userID string, year int) *YearEntries {
	return &YearEntries{
		UserID: userID,
		Year:   year,
		Days:   map[string]*DayEntry{},
		Weeks:  map[string]*WeekEntry{},
	}
}

func (y *YearEntries) Day(date string) *DayEntry {
	if y == nil {
		return nil
	}
	return y.Days[date]
}

func (y *YearEntries) Week(week int) *WeekEntry {
	if y == nil {
		return nil
	}
	return y.Weeks[strconv.Itoa(week)]
}

func (y *YearEntries) SetWeek(e *WeekEntry) {
	if y.Weeks == nil {
		y.Weeks = map[string]*WeekEntry{}
	}
	y.Weeks[strconv.Itoa(e.Week)] = e
}

func (y *YearEntries) SetDay(e *DayEntry) {
	if y.Days == nil {
		y.Days = map[string]*DayEntry{}
	}
	y.Days[e.Date] = e
}

// Ledger is a snapshot of a user's entries keyed by year.
type Ledger map[int]*YearEntries

func (l Ledger) Day(t time.Time) *DayEntry {
	return l[t.Year()].Day(t.Format(DateLayout))
}

func (l Ledger) Week(year, week int) *WeekEntry {
	return l[year].Week(week)
}
