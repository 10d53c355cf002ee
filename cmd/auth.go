package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ayman-m/yaragent/internal/domain"
)

var (
	authUsername string
	authPassword string

	setupOrg       string
	setupEnv       string
	setupNamespace string
	setupToken     string
)

// promptCredentials fills username/password from stdin when the flags were
// not given. The password echoes; use the flags in scripts.
func promptCredentials() error {
	reader := bufio.NewReader(os.Stdin)
	if authUsername == "" {
		fmt.Print("Username: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		authUsername = strings.TrimSpace(line)
	}
	if authPassword == "" {
		fmt.Print("Password: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		authPassword = strings.TrimSpace(line)
	}
	if authUsername == "" || authPassword == "" {
		return fmt.Errorf("username and password are required")
	}
	return nil
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := promptCredentials(); err != nil {
			return err
		}
		client, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		if err := client.Login(context.Background(), authUsername, authPassword); err != nil {
			return err
		}
		fmt.Println("Signed in.")
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Discard the stored session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		if err := client.Logout(); err != nil {
			return err
		}
		fmt.Println("Signed out.")
		return nil
	},
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create the first administrator on a fresh control plane",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := promptCredentials(); err != nil {
			return err
		}
		client, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		settings := domain.SetupSettings{
			OrgName:              setupOrg,
			Environment:          setupEnv,
			DefaultRuleNamespace: setupNamespace,
		}
		if err := client.SetupAdmin(context.Background(), authUsername, authPassword, settings, setupToken); err != nil {
			return err
		}
		fmt.Println("Control plane initialized; signed in as the new administrator.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show control plane reachability and session state",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		fmt.Printf("Control plane: %s\n", cfg.APIBase)
		status, err := client.CheckSetupStatus(context.Background())
		if err != nil {
			fmt.Printf("Reachable:     no (%v)\n", err)
			return nil
		}
		fmt.Println("Reachable:     yes")
		fmt.Printf("Initialized:   %t\n", status.Initialized)
		if client.Session().Token() != "" {
			fmt.Println("Session:       signed in")
		} else {
			fmt.Println("Session:       signed out")
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, setupCmd} {
		c.Flags().StringVarP(&authUsername, "username", "u", "", "Username")
		c.Flags().StringVarP(&authPassword, "password", "p", "", "Password (prompted when omitted)")
	}
	setupCmd.Flags().StringVar(&setupOrg, "org", "", "Organization name")
	setupCmd.Flags().StringVar(&setupEnv, "environment", "production", "Environment label")
	setupCmd.Flags().StringVar(&setupNamespace, "namespace", "default", "Default rule namespace")
	setupCmd.Flags().StringVar(&setupToken, "setup-token", "", "Setup token, when the control plane requires one")

	rootCmd.AddCommand(loginCmd, logoutCmd, setupCmd, statusCmd)
}
