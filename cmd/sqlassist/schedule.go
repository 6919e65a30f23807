package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ruslano69/sqlassist/internal/infra"
	"github.com/ruslano69/sqlassist/pkg/resultfmt"
	"github.com/ruslano69/sqlassist/pkg/scheduler"
)

func newScheduleCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage scheduled reports",
	}
	cmd.AddCommand(
		newScheduleAddCmd(g),
		newScheduleListCmd(g),
		newScheduleRunCmd(g),
		newScheduleResultsCmd(g),
		newScheduleRemoveCmd(g),
	)
	return cmd
}

// withScheduler открывает компоненты и требует включенный планировщик
func withScheduler(cmd *cobra.Command, g *globalFlags, fn func(inf *infra.Infra) error) error {
	inf, err := open(cmd.Context(), g, infra.Options{Scheduler: true})
	if err != nil {
		return err
	}
	defer inf.Close()
	if inf.Scheduler == nil {
		return errors.New("scheduler is disabled in the configuration")
	}
	return fn(inf)
}

func newScheduleAddCmd(g *globalFlags) *cobra.Command {
	var name, source, frequency, at string

	cmd := &cobra.Command{
		Use:   "add <sql>",
		Short: "Schedule a read-only query",
		Example: `  sqlassist schedule add --name "Daily headcount" --type daily --at 09:00 "SELECT COUNT(*) FROM employees"
  sqlassist schedule add --name "Weekly payroll" --source db2 --type weekly --at MON:08:30 "SELECT SUM(amount) FROM salaries"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withScheduler(cmd, g, func(inf *infra.Infra) error {
				ctx := cmd.Context()
				id, err := inf.Scheduler.Schedule(ctx, name, strings.Join(args, " "), source, scheduler.Frequency(frequency), at)
				if err != nil {
					return err
				}
				report, err := inf.Scheduler.Report(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Report %d scheduled on %s, next run %s\n",
					id, report.Source, report.NextRun.Format(time.RFC3339))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "report name")
	cmd.Flags().StringVarP(&source, "source", "s", "", "source id (default: the configured default source)")
	cmd.Flags().StringVar(&frequency, "type", string(scheduler.Daily), "daily, weekly or hourly")
	cmd.Flags().StringVar(&at, "at", "", "HH:MM for daily, DAY:HH:MM for weekly")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newScheduleListCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withScheduler(cmd, g, func(inf *infra.Infra) error {
				reports, err := inf.Scheduler.Reports(cmd.Context())
				if err != nil {
					return err
				}
				if len(reports) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No active reports.")
					return nil
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tSOURCE\tSCHEDULE\tLAST RUN\tNEXT RUN")
				for _, r := range reports {
					last := "-"
					if r.LastRun != nil {
						last = r.LastRun.Format(time.RFC3339)
					}
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s %s\t%s\t%s\n",
						r.ID, r.Name, r.Source, r.Frequency, r.At, last, r.NextRun.Format(time.RFC3339))
				}
				return tw.Flush()
			})
		},
	}
}

func newScheduleRunCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run <id>",
		Short: "Run a report now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withScheduler(cmd, g, func(inf *infra.Infra) error {
				run, err := inf.Scheduler.RunReport(cmd.Context(), id)
				if run == nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Run %d: %s, %d rows, checksum %s, %v\n",
					run.ID, run.Status, run.RowCount, run.Checksum, run.Duration)
				if run.ArchiveURL != "" {
					fmt.Fprintf(out, "Archived to %s\n", run.ArchiveURL)
				}
				return err
			})
		},
	}
}

func newScheduleResultsCmd(g *globalFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "results <id>",
		Short: "Show the latest stored runs of a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withScheduler(cmd, g, func(inf *infra.Infra) error {
				runs, err := inf.Scheduler.Results(cmd.Context(), id, limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, run := range runs {
					fmt.Fprintf(out, "── run %d at %s: %s\n", run.ID, run.RunTime.Format(time.RFC3339), run.Status)
					if run.Error != "" {
						fmt.Fprintln(out, run.Error)
						continue
					}
					fmt.Fprintln(out, resultfmt.Format(run.RowSet))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of runs")
	return cmd
}

func newScheduleRemoveCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Deactivate a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withScheduler(cmd, g, func(inf *infra.Infra) error {
				if err := inf.Scheduler.Deactivate(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Report %d deactivated\n", id)
				return nil
			})
		},
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid report id %q", s)
	}
	return id, nil
}
