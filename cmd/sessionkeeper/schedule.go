package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"sessionkeeper/internal/schedule"
)

func (c *cli) scheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Preview the derived schedule without touching the host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			p, err := a.Preview()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if p.Mode == schedule.ModeSimple {
				fmt.Fprintf(out, "Mode:      simple (anchor %s, every %s)\n", p.Anchor, schedule.SessionLength)
			} else {
				fmt.Fprintf(out, "Mode:      manual\n")
			}
			fmt.Fprintf(out, "Command:   %s\n", p.Command)
			printEntries(out, p.Entries, p.Wake)
			gaps := make([]string, len(p.Gaps))
			for i, g := range p.Gaps {
				gaps[i] = fmt.Sprintf("%dh%02dm", g/60, g%60)
			}
			fmt.Fprintf(out, "Gaps:      %s\n", strings.Join(gaps, ", "))
			if len(p.NextFires) > 0 {
				fmt.Fprintf(out, "Next run:  %s\n", p.NextFires[0].Local().Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}
