package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayman-m/yaragent/internal/devserver"
	"github.com/ayman-m/yaragent/internal/logging"
)

var (
	devAddr        string
	devSetupToken  string
	devPushTimeout time.Duration
)

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run a local in-memory control plane",
	Long: `Run a self-contained control plane for development and demos. Rules,
agents, and the administrator account live in memory only.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, err := devserver.New(context.Background(),
			devserver.WithSetupToken(devSetupToken),
			devserver.WithPushTimeout(devPushTimeout),
		)
		if err != nil {
			return err
		}

		go func() {
			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			<-sig
			logging.Infof("shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()

		logging.Infof("devserver listening on %s", devAddr)
		return srv.Start(devAddr)
	},
}

func init() {
	devserverCmd.Flags().StringVar(&devAddr, "addr", ":8080", "Listen address")
	devserverCmd.Flags().StringVar(&devSetupToken, "setup-token", "", "Require this token during first-run setup")
	devserverCmd.Flags().DurationVar(&devPushTimeout, "push-timeout", 15*time.Second, "How long a rule push waits for the agent's compile result")
	rootCmd.AddCommand(devserverCmd)
}
