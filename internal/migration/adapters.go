// Package migration upgrades legacy document shapes to the ones the engine
// reads. Every adapter is idempotent.
package migration

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dupipcom/morpheus-sub002/internal/model"
	"github.com/dupipcom/morpheus-sub002/internal/recurrence"
	"github.com/dupipcom/morpheus-sub002/internal/status"
	"gopkg.in/yaml.v3"
)

// Options configure a migration run.
type Options struct {
	// LocaleMap maps a task name to the locale key it should carry when the
	// legacy item has none.
	LocaleMap map[string]string `yaml:"locale_map"`
	// DryRun computes reports without writing.
	DryRun bool `yaml:"dry_run"`
}

// LoadOptions reads options from a YAML file. An empty path yields the zero
// options.
func LoadOptions(path string) (Options, error) {
	var opts Options
	if path == "" {
		return opts, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("read migration options: %w", err)
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("parse migration options: %w", err)
	}
	return opts, nil
}

// Failure is one item a migration could not process.
type Failure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// legacyStatus maps the free-form strings older writers stored.
func legacyStatus(s string, count, times int) status.State {
	tag := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
	if tag == "" {
		return status.Compute(count, times, status.Unset)
	}
	return status.Parse(tag)
}

func legacyRule(item model.LegacyTask) *recurrence.Rule {
	if item.Recurrence == nil {
		return nil
	}
	rule, err := item.Recurrence.Rule()
	if err != nil {
		d := recurrence.Default()
		return &d
	}
	if rule == nil {
		return nil
	}
	r := recurrence.Sanitize(*rule)
	return &r
}

func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// ConvertLegacyTask builds a Task record from an embedded list item.
func ConvertLegacyTask(listID string, item model.LegacyTask, opts Options, id string, now time.Time) (*model.Task, error) {
	name := strings.TrimSpace(item.Name)
	if name == "" {
		return nil, fmt.Errorf("legacy task has no name")
	}
	times := max(item.Times, 1)
	count := min(max(item.Count, 0), times)
	localeKey := item.LocaleKey
	if localeKey == "" {
		localeKey = opts.LocaleMap[name]
	}
	return &model.Task{
		ID:                   id,
		ListID:               listID,
		Name:                 name,
		Categories:           emptyIfNil(item.Categories),
		Area:                 item.Area,
		Status:               legacyStatus(item.Status, count, times),
		Recurrence:           legacyRule(item),
		Times:                times,
		Count:                count,
		LocaleKey:            localeKey,
		Persons:              item.Persons,
		Things:               item.Things,
		Events:               item.Events,
		Notes:                item.Notes,
		Documents:            item.Documents,
		Visibility:           item.Visibility,
		CandidateIDs:         []string{},
		RaisedTransactionIDs: []string{},
		CreatedAt:            now,
		UpdatedAt:            now,
	}, nil
}

// dedup tracks names and locale keys already present under a list.
type dedup struct {
	names map[string]bool
	keys  map[string]bool
}

func newDedup(existing []*model.Task) *dedup {
	d := &dedup{names: map[string]bool{}, keys: map[string]bool{}}
	for _, t := range existing {
		d.add(t)
	}
	return d
}

func (d *dedup) add(t *model.Task) {
	d.names[t.Name] = true
	if t.LocaleKey != "" {
		d.keys[t.LocaleKey] = true
	}
}

func (d *dedup) seen(t *model.Task) bool {
	return d.names[t.Name] || (t.LocaleKey != "" && d.keys[t.LocaleKey])
}

// ListTasksResult is the outcome of UpgradeListTasks.
type ListTasksResult struct {
	Created  []*model.Task
	Skipped  int
	Failures []Failure
}

// UpgradeListTasks converts the list's embedded tasks and template tasks into
// Task records, skipping items whose name or locale key already exists under
// the list.
func UpgradeListTasks(list *model.List, existing []*model.Task, opts Options, newID func() string, now time.Time) ListTasksResult {
	var res ListTasksResult
	seen := newDedup(existing)
	items := append(append([]model.LegacyTask{}, list.Tasks...), list.TemplateTasks...)
	for i, item := range items {
		task, err := ConvertLegacyTask(list.ID, item, opts, newID(), now)
		if err != nil {
			res.Failures = append(res.Failures, Failure{ID: fmt.Sprintf("%s[%d]", list.ID, i), Reason: err.Error()})
			continue
		}
		if seen.seen(task) {
			res.Skipped++
			continue
		}
		seen.add(task)
		res.Created = append(res.Created, task)
	}
	return res
}

// UpgradeTaskLog splits a legacy array log. Already migrated logs are left
// alone.
func UpgradeTaskLog(log *model.TaskLog) bool {
	return log.Upgrade()
}

// UpgradeEntries upgrades every day and week task log of a year document and
// returns how many changed.
func UpgradeEntries(e *model.YearEntries) int {
	n := 0
	for _, d := range e.Days {
		if d != nil && UpgradeTaskLog(&d.Tasks) {
			n++
		}
	}
	for _, w := range e.Weeks {
		if w != nil && UpgradeTaskLog(&w.Tasks) {
			n++
		}
	}
	return n
}

// ResetStatuses rewrites every status other than "open" to "open" and
// returns how many items changed.
func ResetStatuses(items []model.LegacyTask) int {
	n := 0
	for i := range items {
		if items[i].Status != "open" {
			items[i].Status = "open"
			n++
		}
	}
	return n
}
