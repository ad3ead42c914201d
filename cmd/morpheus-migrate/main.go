package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dupipcom/morpheus-sub002/internal/apperr"
	"github.com/dupipcom/morpheus-sub002/internal/backup"
	"github.com/dupipcom/morpheus-sub002/internal/config"
	"github.com/dupipcom/morpheus-sub002/internal/database"
	"github.com/dupipcom/morpheus-sub002/internal/logging"
	"github.com/dupipcom/morpheus-sub002/internal/migration"
	"github.com/dupipcom/morpheus-sub002/internal/scheduler"
	"github.com/dupipcom/morpheus-sub002/internal/status"
	"github.com/dupipcom/morpheus-sub002/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "morpheus-migrate",
		Short: "Upgrade stored task documents to the current shapes",
		Long: `morpheus-migrate runs the one-off data migrations of the task ledger.
Every command is idempotent and can be re-run safely. Use --dry-run to see
what would change and --snapshot to take an encrypted database snapshot
before anything is written.`,
		SilenceUsage: true,
	}
	addPersistentFlags(rootCmd)
	registerCommands(rootCmd)
	return rootCmd
}

func addPersistentFlags(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().String("config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().String("options", "", "path to a YAML migration options file")
	rootCmd.PersistentFlags().Bool("dry-run", false, "report without writing")
	rootCmd.PersistentFlags().Bool("snapshot", false, "snapshot the database before writing")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("options", rootCmd.PersistentFlags().Lookup("options"))
	_ = viper.BindPFlag("dry-run", rootCmd.PersistentFlags().Lookup("dry-run"))
	_ = viper.BindPFlag("snapshot", rootCmd.PersistentFlags().Lookup("snapshot"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(listsCmd())
	rootCmd.AddCommand(usersCmd())
	rootCmd.AddCommand(resetCmd())
	rootCmd.AddCommand(backfillCmd())
	rootCmd.AddCommand(snapshotCmd())
	rootCmd.AddCommand(tasksCmd())
	rootCmd.AddCommand(jobsCmd())
}

// env is what every command needs once config is loaded.
type env struct {
	cfg    *config.Config
	store  *store.Store
	snaps  *backup.Snapshotter
	logger *slog.Logger
	out    io.Writer
}

func withEnv(cmd *cobra.Command, fn func(ctx context.Context, e env) error) error {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	st := store.New(db)
	return fn(cmd.Context(), env{
		cfg:    cfg,
		store:  st,
		snaps:  backup.New(cfg.Backup(), db, st.Snapshots, logger),
		logger: logger,
		out:    cmd.OutOrStdout(),
	})
}

// runner builds a migration runner, taking a snapshot first when --snapshot
// is set and the run will write.
func (e env) runner(ctx context.Context, label string) (*migration.Runner, error) {
	opts, err := migration.LoadOptions(viper.GetString("options"))
	if err != nil {
		return nil, err
	}
	if viper.GetBool("dry-run") {
		opts.DryRun = true
	}
	if viper.GetBool("snapshot") && !opts.DryRun {
		snap, err := e.snaps.Snapshot(ctx, label)
		if err != nil {
			return nil, fmt.Errorf("snapshot before %s: %w", label, err)
		}
		e.logger.Info("snapshot taken", "id", snap.ID, "location", snap.Location)
	}
	return migration.NewRunner(e.store, opts, e.logger), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printReport(w io.Writer, rep migration.Report) error {
	if viper.GetBool("json") {
		return printJSON(w, rep)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Processed", "Migrated", "Skipped", "Failed"})
	tw.AppendRow(table.Row{rep.Processed, rep.Migrated, rep.Skipped, rep.Failed})
	tw.Render()

	if len(rep.Failures) > 0 {
		ft := table.NewWriter()
		ft.SetOutputMirror(w)
		ft.AppendHeader(table.Row{"Item", "Reason"})
		for _, f := range rep.Failures {
			ft.AppendRow(table.Row{f.ID, f.Reason})
		}
		ft.Render()
	}
	return nil
}

func listsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lists [list-id]",
		Short: "Convert embedded list tasks into task records",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, func(ctx context.Context, e env) error {
				r, err := e.runner(ctx, "before-lists-migration")
				if err != nil {
					return err
				}
				var rep migration.Report
				if len(args) == 1 {
					rep, err = r.MigrateListTasks(ctx, args[0])
				} else {
					rep, err = r.MigrateAllLists(ctx)
				}
				if err != nil {
					return err
				}
				return printReport(e.out, rep)
			})
		},
	}
}

func usersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "users [user-id]",
		Short: "Split legacy completed-task logs in period entries",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, func(ctx context.Context, e env) error {
				r, err := e.runner(ctx, "before-users-migration")
				if err != nil {
					return err
				}
				var rep migration.Report
				if len(args) == 1 {
					rep, err = r.MigrateUserTasks(ctx, args[0])
				} else {
					rep, err = r.MigrateAllUsers(ctx)
				}
				if err != nil {
					return err
				}
				return printReport(e.out, rep)
			})
		},
	}
}

func resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <list-id>",
		Short: "Reset the statuses of a list's embedded tasks to open",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, func(ctx context.Context, e env) error {
				r, err := e.runner(ctx, "before-status-reset")
				if err != nil {
					return err
				}
				rep, err := r.ResetListStatuses(ctx, args[0])
				if err != nil {
					return err
				}
				return printReport(e.out, rep)
			})
		},
	}
}

func backfillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backfill",
		Short: "Recompute tickers for every current-year entry document",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, func(ctx context.Context, e env) error {
				res, err := scheduler.New(e.store, e.cfg.Scheduler(), e.logger).RunOnce(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(e.out, res)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(e.out)
				tw.AppendHeader(table.Row{"Users", "Entries", "Failed"})
				tw.AppendRow(table.Row{res.Users, res.Entries, res.Failed})
				tw.Render()
				return nil
			})
		},
	}
}

func snapshotCmd() *cobra.Command {
	snap := &cobra.Command{Use: "snapshot", Short: "Manage encrypted database snapshots"}
	snap.AddCommand(snapshotCreateCmd())
	snap.AddCommand(snapshotListCmd())
	snap.AddCommand(snapshotFetchCmd())
	snap.AddCommand(snapshotCleanupCmd())
	return snap
}

func snapshotCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create [label]",
		Short: "Take a snapshot now",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			label := "manual"
			if len(args) == 1 {
				label = args[0]
			}
			return withEnv(cmd, func(ctx context.Context, e env) error {
				s, err := e.snaps.Snapshot(ctx, label)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(e.out, s)
				}
				fmt.Fprintf(e.out, "snapshot %d written to %s (%d bytes)\n", s.ID, s.Location, s.SizeBytes)
				return nil
			})
		},
	}
}

func snapshotListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, func(ctx context.Context, e env) error {
				snaps, err := e.store.Snapshots.List(ctx, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(e.out, snaps)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(e.out)
				tw.AppendHeader(table.Row{"ID", "Label", "Status", "Size", "Created", "Location"})
				for _, s := range snaps {
					tw.AppendRow(table.Row{s.ID, s.Label, s.Status, s.SizeBytes, s.CreatedAt.Format(time.RFC3339), s.Location})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum snapshots to show")
	return cmd
}

func snapshotFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <id> <dest>",
		Short: "Decrypt a snapshot into a standalone database file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid snapshot id %q", args[0])
			}
			return withEnv(cmd, func(ctx context.Context, e env) error {
				if err := e.snaps.Fetch(ctx, id, args[1]); err != nil {
					return err
				}
				fmt.Fprintf(e.out, "snapshot %d restored to %s\n", id, args[1])
				return nil
			})
		},
	}
}

func snapshotCleanupCmd() *cobra.Command {
	var retention time.Duration
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete snapshots older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, func(ctx context.Context, e env) error {
				keep := retention
				if keep <= 0 {
					keep = e.cfg.Snapshot.Retention
				}
				n, err := e.snaps.Cleanup(ctx, keep)
				if err != nil {
					return err
				}
				fmt.Fprintf(e.out, "deleted %d snapshots older than %s\n", n, keep)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&retention, "retention", 0, "override snapshot.retention")
	return cmd
}

func tasksCmd() *cobra.Command {
	var statusFilter string
	cmd := &cobra.Command{
		Use:   "tasks <list-id>",
		Short: "Show the tasks indexed on a list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, func(ctx context.Context, e env) error {
				list, err := e.store.Lists.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if list == nil {
					return apperr.NotFound("list %s not found", args[0])
				}
				filters := []store.Filter{store.IDIn(list.TaskIDs...)}
				if statusFilter != "" {
					filters = append(filters, store.Eq("status", status.Parse(statusFilter).String()))
				}
				tasks, err := e.store.Tasks.Find(ctx, filters...)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(e.out, tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(e.out)
				tw.AppendHeader(table.Row{"ID", "Name", "Status", "Progress", "Repeats", "Jobs"})
				for _, t := range tasks {
					jobs, err := e.store.Jobs.ListByTask(ctx, t.ID)
					if err != nil {
						return err
					}
					repeats := "-"
					if t.Recurrence != nil {
						repeats = t.Recurrence.Describe()
					}
					tw.AppendRow(table.Row{t.ID, t.Name, t.Status, fmt.Sprintf("%d/%d", t.Count, t.Times), repeats, len(jobs)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&statusFilter, "status", "", "status filter")
	return cmd
}

func jobsCmd() *cobra.Command {
	var statusFilter string
	cmd := &cobra.Command{
		Use:   "jobs <list-id>",
		Short: "Show the jobs of a list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, func(ctx context.Context, e env) error {
				filters := []store.Filter{store.Eq("listId", args[0])}
				if statusFilter != "" {
					filters = append(filters, store.Eq("status", strings.ToUpper(statusFilter)))
				}
				jobs, err := e.store.Jobs.Find(ctx, filters...)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(e.out, jobs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(e.out)
				tw.AppendHeader(table.Row{"ID", "Task", "Worker", "Status", "Updated"})
				for _, j := range jobs {
					tw.AppendRow(table.Row{j.ID, j.TaskID, j.WorkerID, j.Status, j.UpdatedAt.Format(time.RFC3339)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&statusFilter, "status", "", "status filter (e.g. requested, accepted)")
	return cmd
}
