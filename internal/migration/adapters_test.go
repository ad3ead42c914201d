package migration

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/dupipcom/morpheus-sub002/internal/model"
	"github.com/dupipcom/morpheus-sub002/internal/recurrence"
	"github.com/dupipcom/morpheus-sub002/internal/status"
	"github.com/stretchr/testify/require"
)

var migratedAt = time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return "task-" + strconv.Itoa(n)
	}
}

func TestUpgradeTaskLogRoundTrip(t *testing.T) {
	in := `{"date":"2025-06-01","tasks":[{"name":"a","status":"Done","count":2,"times":2},{"name":"b","status":"Open","count":0,"times":1}],"earnings":"0","ticker":0,"availableBalance":"0"}`

	var day model.DayEntry
	require.NoError(t, json.Unmarshal([]byte(in), &day))
	require.True(t, UpgradeTaskLog(&day.Tasks))
	require.Len(t, day.Tasks.ClosedTasks, 1)
	require.Equal(t, "a", day.Tasks.ClosedTasks[0].Name)
	require.Len(t, day.Tasks.OpenTasks, 1)
	require.Equal(t, "b", day.Tasks.OpenTasks[0].Name)

	first, err := json.Marshal(day)
	require.NoError(t, err)

	var again model.DayEntry
	require.NoError(t, json.Unmarshal(first, &again))
	require.False(t, UpgradeTaskLog(&again.Tasks), "second run must be a no-op")
	second, err := json.Marshal(again)
	require.NoError(t, err)
	require.JSONEq(t, string(first), string(second))
}

func TestUpgradeTaskLogWithoutTimes(t *testing.T) {
	var log model.TaskLog
	require.NoError(t, json.Unmarshal([]byte(`[{"name":"Walk","status":"open"},{"name":"Read","status":"in progress","count":1}]`), &log))
	require.True(t, UpgradeTaskLog(&log))

	require.Len(t, log.OpenTasks, 1)
	require.Equal(t, "Walk", log.OpenTasks[0].Name, "no count and no times stays open")
	require.Len(t, log.ClosedTasks, 1)
	require.Equal(t, "Read", log.ClosedTasks[0].Name, "one completion meets the default of one")
}

func TestUpgradeTaskLogDoneMarkerIsCaseSensitive(t *testing.T) {
	log := model.LegacyTaskLog([]model.TaskSnapshot{
		{Name: "upper", Status: "Done", Count: 0, Times: 1},
		{Name: "lower", Status: "done", Count: 0, Times: 1},
	})
	require.True(t, UpgradeTaskLog(&log))
	require.Equal(t, "lower", log.ClosedTasks[0].Name)
	require.Equal(t, "upper", log.OpenTasks[0].Name)
}

func TestUpgradeEntriesCountsChangedPeriods(t *testing.T) {
	e := model.NewYearEntries("u1", 2025)
	e.SetDay(&model.DayEntry{Date: "2025-01-01", PeriodEntry: model.PeriodEntry{Tasks: model.LegacyTaskLog(nil)}})
	e.SetDay(&model.DayEntry{Date: "2025-01-02"})
	e.SetWeek(&model.WeekEntry{Year: 2025, Week: 1, PeriodEntry: model.PeriodEntry{Tasks: model.LegacyTaskLog(nil)}})

	require.Equal(t, 2, UpgradeEntries(e))
	require.Equal(t, 0, UpgradeEntries(e))
}

func TestConvertLegacyTask(t *testing.T) {
	item := model.LegacyTask{
		Name:       " Meditate ",
		Categories: []string{"mind"},
		Area:       "self",
		Status:     "In Progress",
		Recurrence: &model.LegacyRecurrence{Raw: json.RawMessage(`"FREQ=WEEKLY;BYDAY=MO,WE"`)},
		Times:      3,
		Count:      5,
	}
	opts := Options{LocaleMap: map[string]string{"Meditate": "tasks.meditate"}}

	task, err := ConvertLegacyTask("l1", item, opts, "id-1", migratedAt)
	require.NoError(t, err)
	require.Equal(t, "Meditate", task.Name)
	require.Equal(t, "l1", task.ListID)
	require.Equal(t, status.InProgress, task.Status)
	require.Equal(t, 3, task.Count, "count is clamped to times")
	require.Equal(t, "tasks.meditate", task.LocaleKey)
	require.NotNil(t, task.Recurrence)
	require.Equal(t, recurrence.Weekly, task.Recurrence.Frequency)
	require.Equal(t, []int{1, 3}, task.Recurrence.ByWeekday)
	require.Equal(t, []string{}, task.CandidateIDs)

	_, err = ConvertLegacyTask("l1", model.LegacyTask{Name: "  "}, opts, "id-2", migratedAt)
	require.Error(t, err)
}

func TestConvertLegacyTaskSanitizesRecurrence(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want *recurrence.Rule
	}{
		{"null", `null`, nil},
		{"weekly without days", `{"frequency":"WEEKLY","byWeekday":[]}`, func() *recurrence.Rule { d := recurrence.Default(); return &d }()},
		{"garbage", `{"frequency":42}`, func() *recurrence.Rule { d := recurrence.Default(); return &d }()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := model.LegacyTask{Name: "x", Recurrence: &model.LegacyRecurrence{Raw: json.RawMessage(tt.raw)}}
			task, err := ConvertLegacyTask("l1", item, Options{}, "id", migratedAt)
			require.NoError(t, err)
			require.Equal(t, tt.want, task.Recurrence)
		})
	}
}

func TestLegacyStatusDefaultsFromCounter(t *testing.T) {
	require.Equal(t, status.Open, legacyStatus("", 0, 2))
	require.Equal(t, status.InProgress, legacyStatus("", 1, 2))
	require.Equal(t, status.Done, legacyStatus("", 2, 2))
	require.Equal(t, status.Done, legacyStatus("Done", 0, 2))
	require.Equal(t, status.Steady, legacyStatus("Steady", 1, 2))
}

func TestUpgradeListTasksDedups(t *testing.T) {
	list := &model.List{
		ID: "l1",
		Tasks: []model.LegacyTask{
			{Name: "Walk"},
			{Name: "Run", LocaleKey: "tasks.run"},
			{Name: ""},
			{Name: "Walk"},
		},
		TemplateTasks: []model.LegacyTask{
			{Name: "Correr", LocaleKey: "tasks.run"},
			{Name: "Swim"},
		},
	}
	existing := []*model.Task{{ID: "t0", ListID: "l1", Name: "Swim"}}

	res := UpgradeListTasks(list, existing, Options{}, sequentialIDs(), migratedAt)
	require.Len(t, res.Created, 2)
	require.Equal(t, "Walk", res.Created[0].Name)
	require.Equal(t, "Run", res.Created[1].Name)
	require.Equal(t, 3, res.Skipped)
	require.Len(t, res.Failures, 1)
	require.Equal(t, "l1[2]", res.Failures[0].ID)

	again := UpgradeListTasks(list, append(existing, res.Created...), Options{}, sequentialIDs(), migratedAt)
	require.Empty(t, again.Created)
	require.Equal(t, 5, again.Skipped)
}

func TestResetStatuses(t *testing.T) {
	items := []model.LegacyTask{{Status: "done"}, {Status: "open"}, {Status: ""}, {Status: "Steady"}}
	require.Equal(t, 3, ResetStatuses(items))
	for _, it := range items {
		require.Equal(t, "open", it.Status)
	}
	require.Zero(t, ResetStatuses(items))
}

func TestLoadOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "migrate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dry_run: true\nlocale_map:\n  Caminar: tasks.walk\n"), 0o644))

	opts, err := LoadOptions(path)
	require.NoError(t, err)
	require.True(t, opts.DryRun)
	require.Equal(t, "tasks.walk", opts.LocaleMap["Caminar"])

	opts, err = LoadOptions("")
	require.NoError(t, err)
	require.False(t, opts.DryRun)

	_, err = LoadOptions(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
