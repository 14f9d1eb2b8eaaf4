package main

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"sessionkeeper/internal/logtail"
)

func (c *cli) logsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the job log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, _ := cmd.Flags().GetInt("lines")
			follow, _ := cmd.Flags().GetBool("follow")
			a, err := c.open()
			if err != nil {
				return err
			}
			path := a.LogPath()
			_ = a.Close()

			out := cmd.OutOrStdout()
			lines, err := logtail.Last(afero.NewOsFs(), path, n)
			if err != nil {
				return err
			}
			for _, l := range lines {
				fmt.Fprintln(out, l)
			}
			if !follow {
				if len(lines) == 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "no log entries in %s\n", path)
				}
				return nil
			}
			return logtail.Follower{Path: path}.Follow(cmd.Context(), func(line string) {
				fmt.Fprintln(out, line)
			})
		},
	}
	cmd.Flags().IntP("lines", "n", 20, "number of trailing lines")
	cmd.Flags().BoolP("follow", "f", false, "keep printing new lines")
	return cmd
}
