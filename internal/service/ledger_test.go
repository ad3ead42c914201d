package service

import (
	"context"
	"testing"
	"time"

	"github.com/dupipcom/morpheus-sub002/internal/apperr"
	"github.com/dupipcom/morpheus-sub002/internal/model"
	"github.com/dupipcom/morpheus-sub002/internal/recurrence"
	"github.com/dupipcom/morpheus-sub002/internal/status"
	"github.com/stretchr/testify/require"
)

func TestCompleteCreditsDailyEarnings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.createTask(t, "Run")
	f.createTask(t, "Read")
	f.createTask(t, "Rest")

	c, err := f.ledger.Complete(ctx, "collab", task.ID, testNow)
	require.NoError(t, err)
	require.True(t, c.Changed)
	require.Equal(t, 1, c.Task.Count)
	require.Equal(t, status.Done, c.Task.Status)

	require.Equal(t, "166.67", c.Earnings.ActionPrize.StringFixed(2))
	require.Equal(t, "100.00", c.Earnings.ActionProfit.StringFixed(2))
	require.Equal(t, "266.67", c.Earnings.ActionValuation.StringFixed(2))
	require.Equal(t, "8.89", c.Day.Earnings)
	require.Equal(t, "8.89", c.Week.Earnings)
	require.Equal(t, "100.00", c.Day.AvailableBalance)
	require.Len(t, c.Day.Tasks.ClosedTasks, 1)
	require.Equal(t, task.ID, c.Day.Tasks.ClosedTasks[0].ID)

	require.Equal(t, "200.00", f.list(t).RemainingBudget.StringFixed(2))

	year, week := testNow.ISOWeek()
	require.Equal(t, year, c.Week.Year)
	require.Equal(t, week, c.Week.Week)
	require.Equal(t, map[string]float64{"1d": 100, "3d": 100}, c.Day.Ticker.Windows)
	require.Len(t, c.Week.Ticker.Windows, 6)

	entries, err := f.store.Entries.Get(ctx, "collab", 2026)
	require.NoError(t, err)
	require.Equal(t, "8.89", entries.Day("2026-03-04").Earnings)
	require.Equal(t, "8.89", entries.Week(week).Earnings)
	require.Equal(t, event{"l1", "task", "completed", task.ID}, f.events.last())
}

func TestCompleteIsBoundedByTimes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.createTask(t, "Meditate")

	_, err := f.ledger.Complete(ctx, "collab", task.ID, testNow)
	require.NoError(t, err)

	c, err := f.ledger.Complete(ctx, "collab", task.ID, testNow)
	require.NoError(t, err)
	require.False(t, c.Changed)
	require.Equal(t, 1, c.Task.Count)

	entries, err := f.store.Entries.Get(ctx, "collab", 2026)
	require.NoError(t, err)
	require.Equal(t, "26.67", entries.Day("2026-03-04").Earnings)
	require.Equal(t, "0.00", f.list(t).RemainingBudget.StringFixed(2))
}

func TestUncompleteDebitsEarnings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task, err := f.tasks.CreateTask(ctx, "owner", TaskDraft{ListID: "l1", Name: "Pushups", Area: "body", Times: 2})
	require.NoError(t, err)
	f.createTask(t, "Squats")

	c, err := f.ledger.Complete(ctx, "collab", task.ID, testNow)
	require.NoError(t, err)
	require.Equal(t, status.InProgress, c.Task.Status)
	require.Len(t, c.Day.Tasks.OpenTasks, 1)

	c, err = f.ledger.Uncomplete(ctx, "collab", task.ID, testNow)
	require.NoError(t, err)
	require.True(t, c.Changed)
	require.Equal(t, 0, c.Task.Count)
	require.Equal(t, status.Open, c.Task.Status)
	require.Equal(t, "0.00", c.Day.Earnings)
	require.Equal(t, event{"l1", "task", "uncompleted", task.ID}, f.events.last())

	remaining := f.list(t).RemainingBudget
	require.Equal(t, "150.00", remaining.StringFixed(2), "uncompleting does not refund the budget")

	c, err = f.ledger.Uncomplete(ctx, "collab", task.ID, testNow)
	require.NoError(t, err)
	require.False(t, c.Changed)
}

func TestCompletePreservesCustomStatusInPartialBand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task, err := f.tasks.CreateTask(ctx, "owner", TaskDraft{ListID: "l1", Name: "Water", Area: "body", Times: 3, Status: status.Steady})
	require.NoError(t, err)

	c, err := f.ledger.Complete(ctx, "collab", task.ID, testNow)
	require.NoError(t, err)
	require.Equal(t, status.Steady, c.Task.Status)

	_, err = f.tasks.UpdateTask(ctx, "owner", task.ID, TaskPatch{Version: c.Task.Version, Status: model.Some(status.Ready)})
	require.NoError(t, err)

	c, err = f.ledger.Complete(ctx, "collab", task.ID, testNow)
	require.NoError(t, err)
	require.Equal(t, status.Ready, c.Task.Status)

	c, err = f.ledger.Complete(ctx, "collab", task.ID, testNow)
	require.NoError(t, err)
	require.Equal(t, status.Done, c.Task.Status)
}

func TestCompleteComparesWithPreviousDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.createTask(t, "Journal")
	f.createTask(t, "Plan")
	f.createTask(t, "Review")

	prev := model.NewYearEntries("collab", 2026)
	prev.SetDay(&model.DayEntry{Date: "2026-03-03", PeriodEntry: model.PeriodEntry{Earnings: "4.445", AvailableBalance: "100"}})
	require.NoError(t, f.store.Entries.Save(ctx, prev))

	c, err := f.ledger.Complete(ctx, "collab", task.ID, testNow)
	require.NoError(t, err)
	require.InDelta(t, 100, c.Day.Ticker.Windows["1d"], 0.01)
	require.Equal(t, float64(100), c.Day.Ticker.Windows["3d"])
	require.NotNil(t, c.Day.Ticker.Windows)
	require.Nil(t, c.Day.Ticker.Legacy)
}

func TestCompleteSeedsRecurringTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	daily := recurrence.Default()
	habit, err := f.tasks.CreateTask(ctx, "owner", TaskDraft{ListID: "l1", Name: "Floss", Area: "body", Recurrence: &daily})
	require.NoError(t, err)
	chore := f.createTask(t, "Groceries")

	c, err := f.ledger.Complete(ctx, "collab", chore.ID, testNow)
	require.NoError(t, err)
	require.True(t, c.Day.Tasks.Contains(habit.ID))
	require.Len(t, c.Day.Tasks.OpenTasks, 1)
	require.Equal(t, habit.ID, c.Day.Tasks.OpenTasks[0].ID)
}

func TestCompleteAcrossISOYearBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.createTask(t, "Toast")
	at := time.Date(2027, 1, 1, 12, 0, 0, 0, time.UTC)

	c, err := f.ledger.Complete(ctx, "collab", task.ID, at)
	require.NoError(t, err)
	require.Equal(t, 2026, c.Week.Year)
	require.Equal(t, 53, c.Week.Week)

	y2027, err := f.store.Entries.Get(ctx, "collab", 2027)
	require.NoError(t, err)
	require.NotNil(t, y2027.Day("2027-01-01"))
	y2026, err := f.store.Entries.Get(ctx, "collab", 2026)
	require.NoError(t, err)
	require.NotNil(t, y2026.Week(53))
}

func TestCompleteRequiresWorkingMember(t *testing.T) {
	f := newFixture(t)
	task := f.createTask(t, "Fold")

	for _, user := range []string{"follower", "stranger"} {
		_, err := f.ledger.Complete(context.Background(), user, task.ID, testNow)
		requireCode(t, err, apperr.CodeForbidden)
	}
	_, err := f.ledger.Complete(context.Background(), "collab", "missing", testNow)
	requireCode(t, err, apperr.CodeNotFound)
}
