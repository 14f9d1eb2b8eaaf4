package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"sessionkeeper/internal/app"
	"sessionkeeper/internal/schedule"
)

func (c *cli) statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show registration state, next runs and recent history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			runs, _ := cmd.Flags().GetInt("runs")
			logs, _ := cmd.Flags().GetInt("logs")
			a, err := c.open()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			rep, err := a.Status(cmd.Context(), app.StatusOptions{Runs: runs, LogLines: logs})
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), rep)
			return nil
		},
	}
	cmd.Flags().Int("runs", 5, "recent runs to show")
	cmd.Flags().Int("logs", 0, "trailing job log lines to show")
	return cmd
}

func printStatus(w io.Writer, rep app.StatusReport) {
	fmt.Fprintf(w, "Platform:  %s (%s)\n", rep.Platform, rep.Identity)
	fmt.Fprintf(w, "State:     %s\n", rep.State)
	if rep.Orphaned {
		fmt.Fprintln(w, "           jobs are installed but not recorded; run `sessionkeeper unregister`")
	}
	for _, h := range rep.Others {
		fmt.Fprintf(w, "           also recorded: %s on %s (%s); unregister it with the config that created it\n", h.Identity, h.Platform, h.State)
	}
	if rep.Host.Detail != "" {
		fmt.Fprintf(w, "Host:      %s\n", rep.Host.Detail)
	}
	if rep.Handle != nil {
		fmt.Fprintf(w, "Since:     %s\n", rep.Handle.Updated.Local().Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(w, "Mode:      %s\n", rep.Mode)
	printEntries(w, rep.Entries, rep.Wake)

	if next, ok := rep.NextRun(); ok {
		fmt.Fprintf(w, "Next run:  %s (%s)\n", next.Local().Format("2006-01-02 15:04"), humanize.RelTime(next, rep.Now, "ago", "from now"))
		for _, t := range rep.NextFires[1:] {
			fmt.Fprintf(w, "           %s\n", t.Local().Format("2006-01-02 15:04"))
		}
	}

	if len(rep.Host.Jobs) > 0 {
		fmt.Fprintln(w)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "JOB\tINSTALLED\tLOADED\tDETAIL")
		for _, j := range rep.Host.Jobs {
			fmt.Fprintf(tw, "%s\t%t\t%t\t%s\n", j.Job, j.Installed, j.Loaded, j.Detail)
		}
		_ = tw.Flush()
	}

	if len(rep.Runs) > 0 {
		fmt.Fprintln(w)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "RAN\tENTRY\tEXIT\tTOOK")
		for _, r := range rep.Runs {
			exit := fmt.Sprint(r.ExitCode)
			if r.Error != "" {
				exit += " (" + r.Error + ")"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", humanize.RelTime(r.At, rep.Now, "ago", "from now"), r.Entry, exit, r.Took.Round(time.Second))
		}
		_ = tw.Flush()
	}

	if len(rep.Log) > 0 {
		fmt.Fprintf(w, "\n%s:\n", rep.LogPath)
		for _, l := range rep.Log {
			fmt.Fprintln(w, "  "+l)
		}
	}
}

func printEntries(w io.Writer, entries []schedule.Entry, wake []schedule.WakeInstant) {
	wakeAt := make(map[schedule.TimeOfDay]schedule.WakeInstant, len(wake))
	for _, wi := range wake {
		wakeAt[wi.Entry] = wi
	}
	for i, e := range entries {
		label := "Entries:"
		if i > 0 {
			label = ""
		}
		line := fmt.Sprintf("%-10s %s", label, e.Time)
		if wi, ok := wakeAt[e.Time]; ok {
			line += fmt.Sprintf("  wake %s (%d min before)", wi.At, wi.LeadMinutes)
		}
		fmt.Fprintln(w, line)
	}
}

func printWarnings(w io.Writer, warnings []error) {
	for _, e := range warnings {
		fmt.Fprintf(w, "warning: %v\n", e)
	}
}
