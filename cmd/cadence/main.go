package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"cadence/internal/app"
	"cadence/internal/config"
	"cadence/internal/db"
	"cadence/internal/domain"
	"cadence/internal/engine"
	"cadence/internal/migrate"
	"cadence/internal/recurrence"
	"cadence/internal/repo"
	"cadence/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "cadence",
	Short: "Cadence CLI",
	Long: `Cadence schedules recurring tasks and tracks their completion.
Core concepts:
- Workspace: the directory holding your .cadence database and cadence.yml.
- Series: a recurring task definition (daily, weekly, or one-off) that
  projects occurrences into any date range on demand.
- Occurrence: one projected instance of a series on a date; never stored,
  always computed.
- Override: a per-date exception row that skips, retitles, retimes, or
  detaches an occurrence (moves live here too).
- Independent task: a single dated task with no recurrence.
- Counters: weekly planned/actual tallies per series, weeks start Monday.
- Event log: diary of changes, view with 'cadence log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CADENCE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("user", "", "user id (overrides config)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(seriesCmd())
	rootCmd.AddCommand(occurrenceCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(agendaCmd())
	rootCmd.AddCommand(countersCmd())
	rootCmd.AddCommand(keysCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default cadence.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if user == "" {
				user = "local-user"
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(user)), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "workspace user id")
	return cmd
}

func seriesCmd() *cobra.Command {
	series := &cobra.Command{
		Use:   "series",
		Short: "Manage recurring task series",
		Long:  "Series define the recurrence; occurrences are projected from them on demand. Edits to a series apply everywhere, per-date edits belong under 'cadence occurrence'.",
	}
	series.AddCommand(seriesCreateCmd())
	series.AddCommand(seriesListCmd())
	series.AddCommand(seriesShowCmd())
	series.AddCommand(seriesUpdateCmd())
	series.AddCommand(seriesSplitCmd())
	series.AddCommand(seriesConvertCmd())
	series.AddCommand(seriesDeleteCmd())
	series.AddCommand(seriesDeleteFutureCmd())
	return series
}

func seriesCreateCmd() *cobra.Command {
	var opts engine.SeriesCreateOptions
	var timeStart, timeEnd, endDate, goalID string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a series",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.TimeStart = optionalString(timeStart)
			opts.TimeEnd = optionalString(timeEnd)
			opts.EndDate = optionalString(endDate)
			opts.GoalID = optionalString(goalID)
			return withEngine(cmd.Context(), func(ctx context.Context, userID string, e engine.Engine) error {
				opts.UserID = userID
				opts.ActorID = userID
				s, err := e.CreateSeries(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrIndented(s)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "series id (optional, random UUID if omitted)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.RecurrenceType, "recurrence", "daily", "recurrence type (none, daily, weekly)")
	cmd.Flags().IntVar(&opts.TimesPerDay, "times-per-day", 0, "instances per day (daily)")
	cmd.Flags().IntSliceVar(&opts.DaysOfWeek, "days", nil, "weekdays 1-7, Monday=1 (weekly)")
	cmd.Flags().StringVar(&timeStart, "time-start", "", "start time HH:MM")
	cmd.Flags().StringVar(&timeEnd, "time-end", "", "end time HH:MM")
	cmd.Flags().StringVar(&opts.StartDate, "start", "", "start date YYYY-MM-DD")
	cmd.Flags().StringVar(&endDate, "end", "", "end date YYYY-MM-DD (optional)")
	cmd.Flags().StringVar(&goalID, "goal", "", "goal id")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func seriesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List series",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, userID string, e engine.Engine) error {
				items, err := e.Repo.ListSeries(ctx, userID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Recurrence", "Start", "End", "Active"})
				for _, s := range items {
					end := ""
					if s.EndDate != nil {
						end = *s.EndDate
					}
					tw.AppendRow(table.Row{s.ID, s.Title, describeRecurrence(s), s.StartDate, end, s.Active})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func seriesShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a series",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, userID string, e engine.Engine) error {
				s, err := e.Repo.GetSeries(ctx, args[0])
				if err != nil {
					return err
				}
				if s.UserID != userID || s.DeletedAt != nil {
					return repo.ErrNotFound
				}
				return printJSONOrIndented(s)
			})
		},
	}
	return cmd
}

func seriesUpdateCmd() *cobra.Command {
	var title, timeStart, timeEnd, goalID string
	var active bool
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update series fields (applies to all occurrences)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var u repo.SeriesUpdate
			if cmd.Flags().Changed("title") {
				u.Title = &title
			}
			if cmd.Flags().Changed("time-start") {
				u.TimeStart = clearableString(timeStart)
			}
			if cmd.Flags().Changed("time-end") {
				u.TimeEnd = clearableString(timeEnd)
			}
			if cmd.Flags().Changed("goal") {
				u.GoalID = clearableString(goalID)
			}
			if cmd.Flags().Changed("active") {
				u.Active = &active
			}
			return withEngine(cmd.Context(), func(ctx context.Context, userID string, e engine.Engine) error {
				s, err := e.UpdateSeries(ctx, userID, args[0], u, userID)
				if err != nil {
					return err
				}
				return printJSONOrIndented(s)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&timeStart, "time-start", "", "start time HH:MM (empty clears)")
	cmd.Flags().StringVar(&timeEnd, "time-end", "", "end time HH:MM (empty clears)")
	cmd.Flags().StringVar(&goalID, "goal", "", "goal id (empty clears)")
	cmd.Flags().BoolVar(&active, "active", true, "active flag")
	return cmd
}

func seriesSplitCmd() *cobra.Command {
	var at, title, timeStart, timeEnd, recurrenceType string
	var timesPerDay int
	var days []int
	cmd := &cobra.Command{
		Use:   "split <id>",
		Short: "Split a series: old keeps history before the date, successor carries changes from it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts engine.SplitOptions
			if cmd.Flags().Changed("title") {
				opts.Title = &title
			}
			if cmd.Flags().Changed("time-start") {
				opts.TimeStart = clearableString(timeStart)
			}
			if cmd.Flags().Changed("time-end") {
				opts.TimeEnd = clearableString(timeEnd)
			}
			if cmd.Flags().Changed("recurrence") {
				opts.Rule = &recurrence.Rule{
					Type:        recurrenceType,
					TimesPerDay: timesPerDay,
					DaysOfWeek:  days,
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, userID string, e engine.Engine) error {
				succ, err := e.SplitSeries(ctx, userID, args[0], at, opts, userID)
				if err != nil {
					return err
				}
				return printJSONOrIndented(succ)
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "split date YYYY-MM-DD (successor starts here)")
	cmd.Flags().StringVar(&title, "title", "", "successor title")
	cmd.Flags().StringVar(&timeStart, "time-start", "", "successor start time (empty clears)")
	cmd.Flags().StringVar(&timeEnd, "time-end", "", "successor end time (empty clears)")
	cmd.Flags().StringVar(&recurrenceType, "recurrence", "", "successor recurrence type")
	cmd.Flags().IntVar(&timesPerDay, "times-per-day", 0, "successor instances per day")
	cmd.Flags().IntSliceVar(&days, "days", nil, "successor weekdays 1-7")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

func seriesConvertCmd() *cobra.Command {
	var keep string
	cmd := &cobra.Command{
		Use:   "convert <id>",
		Short: "Collapse a series into one independent task, keeping a single date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, userID string, e engine.Engine) error {
				t, err := e.ConvertToIndependent(ctx, userID, args[0], keep, userID)
				if err != nil {
					return err
				}
				if t == nil {
					fmt.Println("keep date is on or before the series start; series deleted, nothing kept")
					return nil
				}
				return printJSONOrIndented(t)
			})
		},
	}
	cmd.Flags().StringVar(&keep, "keep", "", "date to keep YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("keep")
	return cmd
}

func seriesDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an entire series (history stays in counters)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, userID string, e engine.Engine) error {
				return e.DeleteEntireSeries(ctx, userID, args[0], userID)
			})
		},
	}
	return cmd
}

func seriesDeleteFutureCmd() *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "delete-future <id>",
		Short: "Delete all occurrences from a date onward",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, userID string, e engine.Engine) error {
				return e.DeleteFutureOccurrences(ctx, userID, args[0], from, userID)
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first deleted date YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}

func occurrenceCmd() *cobra.Command {
	occ := &cobra.Command{
		Use:   "occurrence",
		Short: "Per-date exceptions for a series",
		Long:  "Skip, move, or override a single occurrence without touching the rest of the series.",
	}
	occ.AddCommand(occurrenceSkipCmd())
	occ.AddCommand(occurrenceMoveCmd())
	occ.AddCommand(occurrenceOverrideCmd())
	return occ
}

func occurrenceSkipCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skip <series-id> <date>",
		Short: "Remove one occurrence from its date",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, userID string, e engine.Engine) error {
				return e.DeleteOccurrence(ctx, userID, args[0], args[1], userID)
			})
		},
	}
	return cmd
}

func occurrenceMoveCmd() *cobra.Command {
	var to, title, timeStart, timeEnd string
	cmd := &cobra.Command{
		Use:   "move <series-id> <date>",
		Short: "Move one occurrence to another date",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ch engine.OverrideChange
			if cmd.Flags().Changed("title") {
				ch.Title = &title
			}
			if cmd.Flags().Changed("time-start") {
				ch.TimeStart = clearableString(timeStart)
			}
			if cmd.Flags().Changed("time-end") {
				ch.TimeEnd = clearableString(timeEnd)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, userID string, e engine.Engine) error {
				if err := e.Move(ctx, userID, args[0], args[1], to, ch, userID); err != nil {
					return err
				}
				o, err := e.Repo.GetOverride(ctx, args[0], to)
				if err != nil {
					return err
				}
				return printJSONOrIndented(o)
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "target date YYYY-MM-DD")
	cmd.Flags().StringVar(&title, "title", "", "title at the new date")
	cmd.Flags().StringVar(&timeStart, "time-start", "", "start time at the new date (empty clears)")
	cmd.Flags().StringVar(&timeEnd, "time-end", "", "end time at the new date (empty clears)")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func occurrenceOverrideCmd() *cobra.Command {
	var title, timeStart, timeEnd string
	cmd := &cobra.Command{
		Use:   "override <series-id> <date>",
		Short: "Override title or times for one occurrence",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ch engine.OverrideChange
			if cmd.Flags().Changed("title") {
				ch.Title = &title
			}
			if cmd.Flags().Changed("time-start") {
				ch.TimeStart = clearableString(timeStart)
			}
			if cmd.Flags().Changed("time-end") {
				ch.TimeEnd = clearableString(timeEnd)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, userID string, e engine.Engine) error {
				o, err := e.UpsertOverride(ctx, userID, args[0], args[1], ch, userID)
				if err != nil {
					return err
				}
				return printJSONOrIndented(o)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title for this date only (empty restores the series title)")
	cmd.Flags().StringVar(&timeStart, "time-start", "", "start time HH:MM (empty clears)")
	cmd.Flags().StringVar(&timeEnd, "time-end", "", "end time HH:MM (empty clears)")
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage independent tasks",
	}
	task.AddCommand(taskAddCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskDoneCmd())
	task.AddCommand(taskDeleteCmd())
	task.AddCommand(taskConvertCmd())
	return task
}

func taskAddCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	var timeStart, timeEnd, goalID string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a one-off task",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.TimeStart = optionalString(timeStart)
			opts.TimeEnd = optionalString(timeEnd)
			opts.GoalID = optionalString(goalID)
			return withEngine(cmd.Context(), func(ctx context.Context, userID string, e engine.Engine) error {
				opts.UserID = userID
				opts.ActorID = userID
				t, err := e.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrIndented(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "task id (optional)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Date, "date", "", "date YYYY-MM-DD")
	cmd.Flags().StringVar(&timeStart, "time-start", "", "start time HH:MM")
	cmd.Flags().StringVar(&timeEnd, "time-end", "", "end time HH:MM")
	cmd.Flags().StringVar(&goalID, "goal", "", "goal id")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func taskListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List independent tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, userID string, e engine.Engine) error {
				items, err := e.Repo.ListTasks(ctx, userID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Date", "Title", "Done"})
				for _, t := range items {
					tw.AppendRow(table.Row{t.ID, t.Date, t.Title, t.Completed})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func taskDoneCmd() *cobra.Command {
	var undo bool
	cmd := &cobra.Command{
		Use:   "done <id>",
		Short: "Mark an independent task complete",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, userID string, e engine.Engine) error {
				return e.SetCompletion(ctx, userID, engine.CompletionRef{TaskID: args[0]}, !undo, userID)
			})
		},
	}
	cmd.Flags().BoolVar(&undo, "undo", false, "mark incomplete instead")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an independent task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, userID string, e engine.Engine) error {
				return e.DeleteTask(ctx, userID, args[0], userID)
			})
		},
	}
	return cmd
}

func taskConvertCmd() *cobra.Command {
	var recurrenceType string
	var timesPerDay int
	var days []int
	cmd := &cobra.Command{
		Use:   "convert <id>",
		Short: "Promote a task into a recurring series starting at its date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rule := recurrence.Rule{
				Type:        recurrenceType,
				TimesPerDay: timesPerDay,
				DaysOfWeek:  days,
			}
			return withEngine(cmd.Context(), func(ctx context.Context, userID string, e engine.Engine) error {
				s, err := e.ConvertToRecurring(ctx, userID, args[0], rule, userID)
				if err != nil {
					return err
				}
				return printJSONOrIndented(s)
			})
		},
	}
	cmd.Flags().StringVar(&recurrenceType, "recurrence", "daily", "recurrence type (daily, weekly)")
	cmd.Flags().IntVar(&timesPerDay, "times-per-day", 0, "instances per day (daily)")
	cmd.Flags().IntSliceVar(&days, "days", nil, "weekdays 1-7, Monday=1 (weekly)")
	return cmd
}

func agendaCmd() *cobra.Command {
	var start, end string
	cmd := &cobra.Command{
		Use:   "agenda",
		Short: "Show the agenda for a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			if start == "" {
				start = time.Now().UTC().Format("2006-01-02")
			}
			if end == "" {
				t, err := time.Parse("2006-01-02", start)
				if err != nil {
					return fmt.Errorf("invalid start date %q", start)
				}
				end = t.AddDate(0, 0, 6).Format("2006-01-02")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, userID string, e engine.Engine) error {
				items, err := e.OccurrencesForRange(ctx, userID, start, end)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Date", "Time", "Title", "#", "Done", "Source"})
				for _, it := range items {
					tw.AppendRow(table.Row{it.Date, describeTime(it.TimeStart, it.TimeEnd), it.Title, it.Instance, it.Completed, describeSource(it)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "start date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&end, "end", "", "end date YYYY-MM-DD (default start+6)")
	return cmd
}

func countersCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "counters <series-id>",
		Short: "Show weekly planned/actual counters for a series",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, userID string, e engine.Engine) error {
				s, err := e.Repo.GetSeries(ctx, args[0])
				if err != nil {
					return err
				}
				if s.UserID != userID {
					return repo.ErrNotFound
				}
				items, err := e.Repo.ListCounters(ctx, args[0], from, to)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Week of", "Planned", "Actual"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.PeriodStart, c.PlannedCount, c.ActualCount})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first period start YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last period start YYYY-MM-DD")
	return cmd
}

func keysCmd() *cobra.Command {
	keys := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys for the HTTP server",
	}
	keys.AddCommand(keysCreateCmd())
	keys.AddCommand(keysListCmd())
	keys.AddCommand(keysDeleteCmd())
	return keys
}

func keysCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (plaintext shown once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, userID string, e engine.Engine) error {
				plaintext, key, err := server.NewAPIKey(ctx, e.Repo, userID, name)
				if err != nil {
					return err
				}
				out := map[string]any{"id": key.ID, "name": key.Name, "key": plaintext}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("Created key %s\nSecret (store it now, it is not shown again): %s\n", key.ID, plaintext)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func keysListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, userID string, e engine.Engine) error {
				items, err := e.Repo.ListAPIKeys(ctx, userID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Created"})
				for _, k := range items {
					tw.AppendRow(table.Row{k.ID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func keysDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, userID string, e engine.Engine) error {
				items, err := e.Repo.ListAPIKeys(ctx, userID)
				if err != nil {
					return err
				}
				for _, k := range items {
					if k.ID == args[0] {
						return e.Repo.DeleteAPIKey(ctx, args[0])
					}
				}
				return repo.ErrNotFound
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	logc := &cobra.Command{
		Use:   "log",
		Short: "Inspect the event log",
	}
	logc.AddCommand(logTailCmd())
	return logc
}

func logTailCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, userID string, e engine.Engine) error {
				events, err := e.Repo.ListEvents(ctx, userID, n)
				if err != nil {
					return err
				}
				return printJSONOrIndented(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacy bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolveUserAndConfig(cmd.Context(), workspace, viper.GetString("user"), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:             cfg.Auth.JWTSecret,
				AllowLegacyUserHeader: allowLegacy,
			}
			if secret := os.Getenv("CADENCE_JWT_SECRET"); secret != "" {
				authCfg.JWTSecret = secret
			}
			if authCfg.JWTSecret == "" && !allowLegacy {
				return fmt.Errorf("auth.jwt_secret (or CADENCE_JWT_SECRET) is required; pass --allow-legacy-user-header for local use")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Cadence API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&allowLegacy, "allow-legacy-user-header", false, "accept X-User-Id without auth (local only)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, string, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	userID, cfg, err := app.ResolveUserAndConfig(ctx, workspace, viper.GetString("user"), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, userID, e)
}

func printJSONOrIndented(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func describeRecurrence(s domain.TaskSeries) string {
	switch s.RecurrenceType {
	case domain.RecurrenceDaily:
		if s.TimesPerDay > 1 {
			return "daily x" + strconv.Itoa(s.TimesPerDay)
		}
		return "daily"
	case domain.RecurrenceWeekly:
		names := []string{"", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}
		var parts []string
		for _, d := range s.DaysOfWeek {
			if d >= 1 && d <= 7 {
				parts = append(parts, names[d])
			}
		}
		return "weekly " + strings.Join(parts, ",")
	default:
		return s.RecurrenceType
	}
}

func describeTime(start, end *string) string {
	switch {
	case start == nil:
		return ""
	case end == nil:
		return *start
	default:
		return *start + "-" + *end
	}
}

func describeSource(it domain.AgendaItem) string {
	switch {
	case it.TaskID != nil:
		return "task"
	case it.Detached:
		return "moved"
	default:
		return "series"
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// clearableString maps an empty flag value to "clear the field".
func clearableString(s string) **string {
	var p *string
	if s != "" {
		p = &s
	}
	return &p
}
