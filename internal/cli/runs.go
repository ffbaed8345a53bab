package cli

import (
	"fmt"
	"math/rand/v2"

	"github.com/cockroachdb/errors"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ernop/gpt-webdiff/internal/drift"
	"github.com/ernop/gpt-webdiff/internal/runner"
	"github.com/ernop/gpt-webdiff/internal/snapshot"
	"github.com/ernop/gpt-webdiff/internal/summarize"
)

func newRunCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "run <name>",
		Short: "Capture a job now and notify if it changed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runJob(cmd, args[0])
		},
	}
}

func newTestCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "test [name]",
		Short: "Run one job, or a random one, regardless of schedule",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return app.runJob(cmd, args[0])
			}
			jobs, err := app.svc.Registry.Load()
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				return errors.New("no jobs to test")
			}
			job := jobs[rand.IntN(len(jobs))]
			fmt.Fprintf(cmd.OutOrStdout(), "Testing job '%s'\n", job.Name)
			return app.runJob(cmd, job.Name)
		},
	}
}

func (a *App) runJob(cmd *cobra.Command, name string) error {
	r, err := a.svc.Runner()
	if err != nil {
		return err
	}
	out, err := r.Run(cmd.Context(), name)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s", out.JobName, out.Status)
	if out.Status == runner.StatusNotified || out.Status == runner.StatusBelowThreshold {
		fmt.Fprintf(cmd.OutOrStdout(), " (score %d)", out.Score)
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}

func newCheckCronCommand(app *App) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "check_cron [force]",
		Short: "Run every job whose interval has elapsed",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if args[0] != "force" {
					return errors.Newf("unexpected argument %q, expected 'force'", args[0])
				}
				force = true
			}
			s, err := app.svc.Sweeper()
			if err != nil {
				return err
			}
			stats, err := s.CheckCron(cmd.Context(), force)
			fmt.Fprintf(cmd.OutOrStdout(),
				"Total: %d, Due: %d, Changes: %d, Emails Sent: %d, Failed: %d\n",
				stats.Total, stats.Due, stats.Changes, stats.EmailsSent, stats.Failed)
			return err
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "run every job regardless of schedule")
	return cmd
}

func newWatchCommand(app *App) *cobra.Command {
	var schedule string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run check_cron on a schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.svc.Sweeper()
			if err != nil {
				return err
			}
			if schedule == "" {
				schedule = app.svc.Config.Watch.Schedule
			}
			return s.Watch(cmd.Context(), schedule)
		},
	}
	cmd.Flags().StringVar(&schedule, "schedule", "", "cron expression or @every duration (default from config)")
	return cmd
}

func newDiffCommand(app *App) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "diff <name>",
		Short: "Show the change between a job's two latest snapshots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := app.svc
			if _, err := svc.Registry.Get(args[0]); err != nil {
				return err
			}
			refs, err := svc.Snapshots.LastN(args[0], 2)
			if err != nil {
				return err
			}
			if len(refs) < 2 {
				return errors.Wrapf(snapshot.ErrSnapshotNotFound, "%q needs two snapshots to diff", args[0])
			}
			newer, err := svc.Snapshots.Load(refs[0])
			if err != nil {
				return err
			}
			older, err := svc.Snapshots.Load(refs[1])
			if err != nil {
				return err
			}
			result, err := svc.Detector.Diff(older.Content, newer.Content)
			if err != nil {
				return err
			}

			if asJSON {
				out, err := drift.FormatJSON(result)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", older.Filename(), newer.Filename())
			fmt.Fprint(cmd.OutOrStdout(), drift.FormatCLI(result))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the diff as JSON")
	return cmd
}

func newReparseCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "reparse <name>",
		Short: "Retry every parse strategy on a job's newest unparseable reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := summarize.Reparse(app.svc.Artifacts, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Reparsing %s\n", report.Record.Path)
			tw := table.NewWriter()
			tw.SetOutputMirror(out)
			tw.SetStyle(table.StyleLight)
			tw.AppendHeader(table.Row{"Strategy", "Result"})
			for _, s := range report.Strategies {
				result := "ok"
				if !s.OK {
					result = s.Err
				}
				tw.AppendRow(table.Row{s.Name, result})
			}
			tw.Render()

			switch {
			case report.Summary != nil:
				fmt.Fprintf(out, "Score: %d\nBrief: %s\n", report.Summary.Score, report.Summary.BriefSummary)
			case report.Validation != "":
				fmt.Fprintf(out, "Decoded but invalid: %s\n", report.Validation)
			default:
				fmt.Fprintln(out, "No strategy could decode the reply.")
			}
			return nil
		},
	}
}

func newEmailBackupCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "email-backup",
		Short: "Email a copy of the job file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := app.svc.Registry.Raw()
			if err != nil {
				return err
			}
			msg, err := app.svc.Renderer.RenderRegistryBackup(raw, app.now())
			if err != nil {
				return err
			}
			if err := app.svc.Mailer.Send(cmd.Context(), msg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Backup sent.")
			return nil
		},
	}
}
