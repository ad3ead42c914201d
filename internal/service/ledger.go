package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dupipcom/morpheus-sub002/internal/apperr"
	"github.com/dupipcom/morpheus-sub002/internal/earnings"
	"github.com/dupipcom/morpheus-sub002/internal/model"
	"github.com/dupipcom/morpheus-sub002/internal/recurrence"
	"github.com/dupipcom/morpheus-sub002/internal/status"
	"github.com/dupipcom/morpheus-sub002/internal/store"
	"github.com/dupipcom/morpheus-sub002/internal/ticker"
	"github.com/shopspring/decimal"
)

// Completion is the outcome of recording one completion or its reversal.
// Changed is false when the count was already at its bound.
type Completion struct {
	Task     *model.Task
	Day      *model.DayEntry
	Week     *model.WeekEntry
	Earnings earnings.Result
	Changed  bool
}

// LedgerService turns task completions into period entries and earnings.
type LedgerService struct {
	base
}

func NewLedgerService(s *store.Store, n Notifier, logger *slog.Logger) *LedgerService {
	return &LedgerService{base: newBase(s, n, logger, "ledger")}
}

// Complete increments the task's count for userID on the day of at.
func (s *LedgerService) Complete(ctx context.Context, userID, taskID string, at time.Time) (*Completion, error) {
	return s.change(ctx, userID, taskID, at, 1)
}

// Uncomplete reverses one completion. Earnings are debited; the list's
// remaining budget is not refunded.
func (s *LedgerService) Uncomplete(ctx context.Context, userID, taskID string, at time.Time) (*Completion, error) {
	return s.change(ctx, userID, taskID, at, -1)
}

func (s *LedgerService) change(ctx context.Context, userID, taskID string, at time.Time, delta int) (*Completion, error) {
	var c *Completion
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		task, err := loadTask(ctx, tx, taskID)
		if err != nil {
			return err
		}
		_, perms, err := resolve(ctx, tx, userID, task.ListID)
		if err != nil {
			return err
		}
		if !perms.CanCreateJob(userID) {
			return apperr.Forbidden("user %s may not complete tasks in list %s", userID, task.ListID)
		}
		c, err = s.record(ctx, tx, userID, taskID, at, delta)
		return err
	})
	if err != nil {
		return nil, err
	}

	if c.Changed {
		action := "completed"
		if delta < 0 {
			action = "uncompleted"
		}
		s.logger.Info("task "+action, "task_id", taskID, "user_id", userID,
			"count", c.Task.Count, "times", c.Task.Times, "earnings", c.Day.Earnings)
		s.notify(c.Task.ListID, "task", action, taskID)
	}
	return c, nil
}

// record applies delta to the task count and books it into userID's day and
// week entries. It runs inside tx and performs no authorization.
func (s *LedgerService) record(ctx context.Context, tx *store.Store, userID, taskID string, at time.Time, delta int) (*Completion, error) {
	task, err := loadTask(ctx, tx, taskID)
	if err != nil {
		return nil, err
	}
	c := &Completion{Task: task}

	next := min(max(task.Count+delta, 0), task.Times)
	if next == task.Count {
		return c, nil
	}

	list, err := tx.Lists.Get(ctx, task.ListID)
	if err != nil {
		return nil, fmt.Errorf("load list: %w", err)
	}
	if list == nil {
		return nil, apperr.NotFound("list %s not found", task.ListID)
	}
	user, err := tx.Users.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return nil, apperr.NotFound("user %s not found", userID)
	}

	task.Count = next
	task.Status = status.Compute(task.Count, task.Times, task.Status)
	task.UpdatedAt = s.now()
	if err := tx.Tasks.Update(ctx, task); err != nil {
		return nil, storeErr(err, "task", task.ID)
	}

	tasks, err := tx.Tasks.ListByList(ctx, list.ID)
	if err != nil {
		return nil, fmt.Errorf("load list tasks: %w", err)
	}
	c.Earnings = earnings.Calculate(earnings.Params{
		BudgetAllocationPercent: list.BudgetAllocation,
		Equity:                  user.Equity,
		ListBudget:              list.Budget,
		NumTasks:                len(tasks),
		Role:                    list.Role,
	})
	amount := c.Earnings.PeriodEarnings()
	if delta > 0 {
		remaining := earnings.BudgetConsumption(list.RemainingBudget, list.Budget, len(tasks))
		list.RemainingBudget = &remaining
		list.UpdatedAt = s.now()
		if err := tx.Lists.Update(ctx, list); err != nil {
			return nil, storeErr(err, "list", list.ID)
		}
	} else {
		amount = amount.Neg()
	}

	isoYear, isoWeek := at.ISOWeek()
	ledger, err := tx.Entries.Ledger(ctx, userID, at.Year(), at.Year()-1, isoYear, isoYear-1)
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}

	day := ledger.Day(at)
	if day == nil {
		day = &model.DayEntry{Date: at.Format(model.DateLayout)}
		seedDay(&day.Tasks, tasks, at)
		ledger[at.Year()].SetDay(day)
	}
	week := ledger.Week(isoYear, isoWeek)
	if week == nil {
		week = &model.WeekEntry{Year: isoYear, Week: isoWeek}
		ledger[isoYear].SetWeek(week)
	}

	snap := task.Snapshot()
	balance := earnings.Format(user.AvailableBalance)
	day.Tasks.Put(snap)
	week.Tasks.Put(snap)
	credit(&day.PeriodEntry, amount, balance)
	credit(&week.PeriodEntry, amount, balance)
	day.Ticker = model.Ticker{Windows: ticker.DayTickers(ledger, at, day.EarningsValue(), day.BalanceValue())}
	week.Ticker = model.Ticker{Windows: ticker.WeekTickers(ledger, isoYear, isoWeek, week.EarningsValue(), week.BalanceValue())}

	if err := tx.Entries.Save(ctx, ledger[at.Year()]); err != nil {
		return nil, storeErr(err, "entries", model.EntriesID(userID, at.Year()))
	}
	if isoYear != at.Year() {
		if err := tx.Entries.Save(ctx, ledger[isoYear]); err != nil {
			return nil, storeErr(err, "entries", model.EntriesID(userID, isoYear))
		}
	}

	c.Day, c.Week, c.Changed = day, week, true
	return c, nil
}

// seedDay lists the recurring tasks due on the day of at as open work.
func seedDay(log *model.TaskLog, tasks []*model.Task, at time.Time) {
	for _, t := range tasks {
		if t.Recurrence != nil && recurrence.OccursOn(*t.Recurrence, t.CreatedAt, at) {
			log.Put(t.Snapshot())
		}
	}
}

// credit adds amount to the entry's earnings, flooring at zero, and records
// the balance snapshot.
func credit(p *model.PeriodEntry, amount decimal.Decimal, balance string) {
	current, err := decimal.NewFromString(p.Earnings)
	if err != nil {
		current = decimal.Zero
	}
	next := current.Add(amount)
	if next.IsNegative() {
		next = decimal.Zero
	}
	p.Earnings = earnings.Format(next)
	p.AvailableBalance = balance
}
