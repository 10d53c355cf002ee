package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ayman-m/yaragent/internal/tui"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Open the interactive operator console",
	Long: `Open the full-screen operator console: sign-in, the agent fleet view,
and the rule editor with live validation and the rule assistant.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		return tui.NewModel(cfg, client).Run()
	},
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}
