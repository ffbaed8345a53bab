package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ernop/gpt-webdiff/internal/registry"
	"github.com/ernop/gpt-webdiff/internal/summarize"
)

func newAddCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "add <url> [name] [frequency]",
		Short: "Add a URL to monitor; the name is suggested when omitted",
		Args:  cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := app.svc
			req := registry.AddRequest{URL: args[0]}
			switch len(args) {
			case 2:
				// A lone second argument may be the frequency
				if _, err := registry.ParseFrequency(args[1]); err == nil {
					req.Frequency = args[1]
				} else {
					req.Name = args[1]
				}
			case 3:
				req.Name, req.Frequency = args[1], args[2]
			}

			var namer registry.Namer
			if req.Name == "" {
				g, err := svc.Gateway()
				if err != nil {
					return err
				}
				namer = &summarize.PageNamer{Gateway: g, Fetcher: svc.Fetcher, Extractor: svc.Extractor}
			}

			job, err := svc.Registry.Add(cmd.Context(), req, namer)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job '%s' added (%s, %s).\n", job.Name, job.Frequency, job.URL)
			return nil
		},
	}
}

func newRemoveCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := app.svc.Registry.Remove(args[0])
			if err != nil {
				return err
			}
			if err := app.svc.State.Forget(job.Name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job '%s' removed.\n", job.Name)
			return nil
		},
	}
}

func newFrequencyCommand(app *App, use, alias string, d registry.Direction) *cobra.Command {
	short := "Check a job more often"
	if d == registry.Decrease {
		short = "Check a job less often"
	}
	return &cobra.Command{
		Use:     use + " <name>",
		Aliases: []string{alias},
		Short:   short,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, old, err := app.svc.Registry.ChangeFrequency(args[0], d)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job '%s': %s -> %s\n", job.Name, old, job.Frequency)
			return nil
		},
	}
}

func newListCommand(app *App) *cobra.Command {
	var sortBy string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := registry.ParseSortKey(sortBy)
			if err != nil {
				return err
			}
			jobs, err := app.svc.Registry.List(key)
			if err != nil {
				return err
			}
			return app.writeJobs(cmd.OutOrStdout(), jobs)
		},
	}
	cmd.Flags().StringVar(&sortBy, "sort_by", "", "sort by date, url or name")
	return cmd
}

func newSaveSortedCommand(app *App) *cobra.Command {
	var sortBy string
	cmd := &cobra.Command{
		Use:   "save_sorted",
		Short: "Rewrite the job file in sorted order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := registry.ParseSortKey(sortBy)
			if err != nil {
				return err
			}
			if err := app.svc.Registry.SaveSorted(key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Jobs saved sorted by %s.\n", key)
			return nil
		},
	}
	cmd.Flags().StringVar(&sortBy, "sort_by", "", "sort by date, url or name")
	_ = cmd.MarkFlagRequired("sort_by")
	return cmd
}

func newSearchCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Find jobs whose name or URL contains query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := app.svc.Registry.Search(args[0])
			if err != nil {
				return err
			}
			return app.writeJobs(cmd.OutOrStdout(), jobs)
		},
	}
}

func (a *App) writeJobs(out io.Writer, jobs []registry.Job) error {
	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs.")
		return nil
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Name", "Frequency", "URL", "Added", "Snapshots"})
	for _, job := range jobs {
		added := "-"
		if !job.CreatedAt.IsZero() {
			added = job.CreatedAt.Format("2006-01-02 15:04")
		}
		count, err := a.svc.Snapshots.Count(job.Name)
		if err != nil {
			return err
		}
		tw.AppendRow(table.Row{job.Name, string(job.Frequency), job.URL, added, strconv.Itoa(count)})
	}
	tw.Render()
	return nil
}
