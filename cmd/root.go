// Package cmd wires the yaractl command tree: the interactive console, the
// one-shot repository and fleet commands, and the local development server.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ayman-m/yaragent/internal/apiclient"
	"github.com/ayman-m/yaragent/internal/config"
	"github.com/ayman-m/yaragent/internal/logging"
	"github.com/ayman-m/yaragent/internal/session"
)

var (
	verbose    bool
	configPath string
	apiBase    string

	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "yaractl",
	Short: "Operator console for the yaragent control plane",
	Long: `yaractl is the operator console for a yaragent fleet.

It talks to the control plane's REST API to manage detection rules, watch
the agent fleet, and push rules to connected agents. The session token is
stored locally, so one login covers both the interactive console and the
one-shot commands.

Quick start:
  yaractl devserver              # run a local control plane
  yaractl login -u admin         # sign in
  yaractl console                # open the interactive console
  yaractl rules list             # or script against the repository`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if apiBase != "" {
			cfg.APIBase = apiBase
		}
		logging.SetLevel(logging.ParseLevel(cfg.LogLevel))
		if verbose {
			logging.SetVerbose(true)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default: user config dir)")
	rootCmd.PersistentFlags().StringVar(&apiBase, "api", "", "Control plane base URL (overrides config)")
}

// newClient opens the durable session store and returns a client bound to it.
// The returned cleanup closes the store.
func newClient() (*apiclient.Client, func(), error) {
	store, err := session.Open(cfg.StatePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open session store: %w", err)
	}
	client := apiclient.NewClient(cfg.APIBase, store, cfg.RequestTimeout)
	return client, func() { _ = store.Close() }, nil
}
