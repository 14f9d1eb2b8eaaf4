package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sessionkeeper/internal/app"
)

func (c *cli) registerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Install the schedule with the host scheduler (idempotent)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dry := c.v.GetBool("dry-run")
			a, err := c.open()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			rep, err := a.Register(cmd.Context(), app.RegisterOptions{DryRun: dry})
			printWarnings(cmd.ErrOrStderr(), rep.Warnings)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if rep.DryRun {
				fmt.Fprintf(out, "# dry run: %s, %d descriptors, nothing installed\n\n", a.Kind(), len(rep.Descriptors))
				for _, d := range rep.Descriptors {
					fmt.Fprintln(out, d.String())
				}
				return nil
			}
			fmt.Fprintf(out, "Registered %d sessions with %s as %s\n", len(rep.Schedule.Entries), rep.Handle.Platform, rep.Handle.Identity)
			fmt.Fprintf(out, "Command: %s\n", rep.Command)
			printEntries(out, rep.Schedule.Entries, rep.Wake)
			return nil
		},
	}
	cmd.Flags().Bool("dry-run", false, "render descriptors without installing anything")
	_ = c.v.BindPFlag("dry-run", cmd.Flags().Lookup("dry-run"))
	return cmd
}

func (c *cli) unregisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unregister",
		Short: "Remove every installed job (idempotent)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			removeLogs, _ := cmd.Flags().GetBool("remove-logs")
			a, err := c.open()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			rep, err := a.Unregister(cmd.Context(), app.UnregisterOptions{RemoveLogs: removeLogs})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if rep.Removed {
				fmt.Fprintf(out, "Unregistered %s (%s)\n", rep.Handle.Identity, rep.Handle.Platform)
			} else {
				fmt.Fprintf(out, "Nothing recorded for %s; removed any leftover jobs\n", a.Identity())
			}
			if rep.LogRemoved {
				fmt.Fprintf(out, "Removed %s\n", a.LogPath())
			}
			return nil
		},
	}
	cmd.Flags().Bool("remove-logs", false, "also delete the job log file")
	return cmd
}
