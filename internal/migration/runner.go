package migration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dupipcom/morpheus-sub002/internal/apperr"
	"github.com/dupipcom/morpheus-sub002/internal/store"
	"github.com/google/uuid"
)

// Report counts what a migration did. For batch runs Processed is the number
// of lists or users visited and Failures holds one line per failed item.
type Report struct {
	Processed int       `json:"processed"`
	Migrated  int       `json:"migrated"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	Failures  []Failure `json:"failures,omitempty"`
}

func (r *Report) add(o Report) {
	r.Processed += o.Processed
	r.Migrated += o.Migrated
	r.Skipped += o.Skipped
	r.Failed += o.Failed
	r.Failures = append(r.Failures, o.Failures...)
}

func (r *Report) fail(id string, err error) {
	r.Failed++
	r.Failures = append(r.Failures, Failure{ID: id, Reason: err.Error()})
}

// Runner applies the adapters to stored documents. Each single-entity call
// writes its patch set in one transaction.
type Runner struct {
	store  *store.Store
	opts   Options
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

func NewRunner(s *store.Store, opts Options, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		store:  s,
		opts:   opts,
		logger: logger.With("component", "migration"),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// MigrateListTasks converts the list's embedded tasks into Task records and
// indexes them on the list.
func (r *Runner) MigrateListTasks(ctx context.Context, listID string) (Report, error) {
	rep := Report{Processed: 1}
	err := r.store.WithTx(ctx, func(tx *store.Store) error {
		list, err := tx.Lists.Get(ctx, listID)
		if err != nil {
			return fmt.Errorf("load list: %w", err)
		}
		if list == nil {
			return apperr.NotFound("list %s not found", listID)
		}
		existing, err := tx.Tasks.ListByList(ctx, listID)
		if err != nil {
			return fmt.Errorf("load tasks: %w", err)
		}

		res := UpgradeListTasks(list, existing, r.opts, r.newID, r.now())
		rep.Migrated = len(res.Created)
		rep.Skipped = res.Skipped
		for _, f := range res.Failures {
			r.logger.Warn("skip legacy task", "item", f.ID, "reason", f.Reason)
			rep.Failed++
			rep.Failures = append(rep.Failures, f)
		}
		if r.opts.DryRun || len(res.Created) == 0 {
			return nil
		}

		for _, t := range res.Created {
			if err := tx.Tasks.Create(ctx, t); err != nil {
				return fmt.Errorf("create task %q: %w", t.Name, err)
			}
			if !list.HasTask(t.ID) {
				list.TaskIDs = append(list.TaskIDs, t.ID)
			}
		}
		list.UpdatedAt = r.now()
		if err := tx.Lists.Update(ctx, list); err != nil {
			return fmt.Errorf("update list: %w", err)
		}
		return nil
	})
	if err != nil {
		return Report{}, err
	}
	return rep, nil
}

// MigrateUserTasks upgrades the completed-task logs in every year document
// of the user. Migrated counts period entries rewritten and Skipped counts
// year documents that were already canonical.
func (r *Runner) MigrateUserTasks(ctx context.Context, userID string) (Report, error) {
	rep := Report{Processed: 1}
	err := r.store.WithTx(ctx, func(tx *store.Store) error {
		docs, err := tx.Entries.ListByUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("load entries: %w", err)
		}
		for _, doc := range docs {
			n := UpgradeEntries(doc)
			if n == 0 {
				rep.Skipped++
				continue
			}
			rep.Migrated += n
			if r.opts.DryRun {
				continue
			}
			if err := tx.Entries.Save(ctx, doc); err != nil {
				return fmt.Errorf("save entries %d: %w", doc.Year, err)
			}
		}
		return nil
	})
	if err != nil {
		return Report{}, err
	}
	return rep, nil
}

// ResetListStatuses rewrites the statuses of the list's embedded tasks and
// template tasks to "open".
func (r *Runner) ResetListStatuses(ctx context.Context, listID string) (Report, error) {
	rep := Report{Processed: 1}
	err := r.store.WithTx(ctx, func(tx *store.Store) error {
		list, err := tx.Lists.Get(ctx, listID)
		if err != nil {
			return fmt.Errorf("load list: %w", err)
		}
		if list == nil {
			return apperr.NotFound("list %s not found", listID)
		}
		total := len(list.Tasks) + len(list.TemplateTasks)
		rep.Migrated = ResetStatuses(list.Tasks) + ResetStatuses(list.TemplateTasks)
		rep.Skipped = total - rep.Migrated
		if r.opts.DryRun || rep.Migrated == 0 {
			return nil
		}
		list.UpdatedAt = r.now()
		if err := tx.Lists.Update(ctx, list); err != nil {
			return fmt.Errorf("update list: %w", err)
		}
		return nil
	})
	if err != nil {
		return Report{}, err
	}
	return rep, nil
}

// MigrateAllLists runs MigrateListTasks for every list, logging and counting
// failed lists instead of stopping.
func (r *Runner) MigrateAllLists(ctx context.Context) (Report, error) {
	lists, err := r.store.Lists.All(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("load lists: %w", err)
	}
	var total Report
	for _, l := range lists {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		rep, err := r.MigrateListTasks(ctx, l.ID)
		if err != nil {
			r.logger.Warn("list migration failed", "list_id", l.ID, "error", err)
			total.Processed++
			total.fail(l.ID, err)
			continue
		}
		total.add(rep)
	}
	r.logger.Info("lists migrated", "processed", total.Processed, "migrated", total.Migrated,
		"skipped", total.Skipped, "failed", total.Failed, "dry_run", r.opts.DryRun)
	return total, nil
}

// MigrateAllUsers runs MigrateUserTasks for every user.
func (r *Runner) MigrateAllUsers(ctx context.Context) (Report, error) {
	users, err := r.store.Users.All(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("load users: %w", err)
	}
	var total Report
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		rep, err := r.MigrateUserTasks(ctx, u.ID)
		if err != nil {
			r.logger.Warn("user migration failed", "user_id", u.ID, "error", err)
			total.Processed++
			total.fail(u.ID, err)
			continue
		}
		total.add(rep)
	}
	r.logger.Info("users migrated", "processed", total.Processed, "migrated", total.Migrated,
		"skipped", total.Skipped, "failed", total.Failed, "dry_run", r.opts.DryRun)
	return total, nil
}
