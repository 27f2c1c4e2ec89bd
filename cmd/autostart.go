package main

import (
	"fmt"

	"keyroute/internal/autostart"

	"github.com/spf13/cobra"
)

var autostartCmd = &cobra.Command{
	Use:       "autostart enable|disable|status",
	Short:     "Manage starting keyroute on logon",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"enable", "disable", "status"},
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "enable":
			runArgs := []string{"run"}
			if opts.configPath != "" {
				runArgs = append(runArgs, "--config", opts.configPath)
			}
			if err := autostart.Enable(runArgs...); err != nil {
				return err
			}
			fmt.Fprintln(out, "Autostart enabled")
		case "disable":
			if err := autostart.Disable(); err != nil {
				return err
			}
			fmt.Fprintln(out, "Autostart disabled")
		case "status":
			if c, ok := autostart.Command(); ok {
				fmt.Fprintf(out, "Autostart enabled: %s\n", c)
			} else {
				fmt.Fprintln(out, "Autostart disabled")
			}
		}
		return nil
	},
}
