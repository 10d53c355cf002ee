package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayman-m/yaragent/internal/agentsim"
	"github.com/ayman-m/yaragent/internal/logging"
)

var (
	simURL       string
	simID        string
	simHeartbeat time.Duration
)

var agentsimCmd = &cobra.Command{
	Use:   "agentsim",
	Short: "Run a simulated fleet agent",
	Long: `Connect a simulated agent to the control plane's websocket. The agent
heartbeats with a canned inventory and acknowledges rule pushes, which is
enough to exercise the fleet view and the push path end to end.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			<-sig
			cancel()
		}()

		agent, err := agentsim.Connect(simURL, simID, simHeartbeat)
		if err != nil {
			return err
		}
		logging.Infof("agent %s connected to %s", agent.ID(), simURL)
		return agent.Run(ctx)
	},
}

func init() {
	agentsimCmd.Flags().StringVar(&simURL, "url", "ws://localhost:8080/agent/ws", "Agent websocket endpoint")
	agentsimCmd.Flags().StringVar(&simID, "id", "", "Agent id (random when omitted)")
	agentsimCmd.Flags().DurationVar(&simHeartbeat, "heartbeat", 30*time.Second, "Heartbeat interval")
	rootCmd.AddCommand(agentsimCmd)
}
