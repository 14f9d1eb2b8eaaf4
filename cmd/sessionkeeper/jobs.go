package main

import (
	"github.com/spf13/cobra"

	"sessionkeeper/internal/runner"
	"sessionkeeper/internal/schedule"
	logx "sessionkeeper/pkg/logx"
)

// runCmd is what OS jobs execute. It never fails because of sessionkeeper's
// own state: a broken config or store still runs the command.
func (c *cli) runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "run [--entry HH:MM] -- command [args...]",
		Short:  "Run the command for one scheduled entry",
		Hidden: true,
		Args:   cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, argv []string) error {
			entryRaw, _ := cmd.Flags().GetString("entry")
			logFile, _ := cmd.Flags().GetString("log-file")

			var entry *schedule.TimeOfDay
			if entryRaw != "" {
				t, err := schedule.ParseTimeOfDay(entryRaw)
				if err != nil {
					return err
				}
				entry = &t
			}

			opts := c.appOptions()
			opts.LogFile = logFile
			a, appErr := c.openWith(opts)
			if logFile == "" && a != nil {
				logFile = a.LogPath()
			}
			logSvc, jobLog := logx.New(logx.Config{
				Level: "info",
				File:  logx.FileConfig{Enabled: logFile != "", Path: logFile, Plain: true},
			})
			defer func() { _ = logSvc.Close() }()

			var (
				code int
				err  error
			)
			if a != nil {
				defer func() { _ = a.Close() }()
				rec, rerr := a.RunJob(cmd.Context(), jobLog, nil, entry, argv)
				code, err = rec.ExitCode, rerr
			} else {
				jobLog.Warn("config unavailable; running without history or notifications", logx.Err(appErr))
				r := &runner.Runner{Log: jobLog}
				rec, rerr := r.Run(cmd.Context(), runner.Job{Entry: entry, Argv: argv})
				code, err = rec.ExitCode, rerr
			}
			if err != nil {
				return err
			}
			if code != 0 {
				return exitStatus(code)
			}
			return nil
		},
	}
	cmd.Flags().String("entry", "", "scheduled time of day this run belongs to")
	cmd.Flags().String("log-file", "", "job log file")
	return cmd
}

// armWakeCmd re-arms one-shot host wake events (macOS pmset).
func (c *cli) armWakeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "arm-wake",
		Short:  "Schedule host wake events for today and tomorrow",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, _ := cmd.Flags().GetStringSlice("at")
			times := make([]schedule.TimeOfDay, 0, len(raw))
			for _, r := range raw {
				t, err := schedule.ParseTimeOfDay(r)
				if err != nil {
					return err
				}
				times = append(times, t)
			}
			a, err := c.open()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			armed, err := a.ArmWake(cmd.Context(), times)
			if err != nil {
				return err
			}
			c.log().Info("wake events armed", logx.Strs("at", armed))
			return nil
		},
	}
	cmd.Flags().StringSlice("at", nil, "wake time HH:MM (repeatable)")
	return cmd
}
