package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Inspect the agent fleet",
}

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List fleet agents with their connection status",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		agents, err := client.ListAgents(context.Background())
		if err != nil {
			return err
		}
		if len(agents) == 0 {
			fmt.Println("No agents.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tTENANT\tLAST HEARTBEAT\tFINDINGS")
		for _, a := range agents {
			last := "never"
			if a.LastHeartbeat != nil {
				last = a.LastHeartbeat.Local().Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", a.ID, a.Status, a.TenantID, last, a.FindingsCount)
		}
		return w.Flush()
	},
}

var agentsProfileCmd = &cobra.Command{
	Use:   "profile <agent-id>",
	Short: "Show one agent's asset profile, SBOM, and CVEs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		profile, err := client.GetAgentProfile(context.Background(), args[0])
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(profile, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	agentsCmd.AddCommand(agentsListCmd, agentsProfileCmd)
	rootCmd.AddCommand(agentsCmd)
}
