package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	ruleFile     string
	pushRuleName string
)

// readRuleContent loads rule text from --file, or from stdin when the flag is
// "-" or omitted with piped input.
func readRuleContent() (string, error) {
	if ruleFile == "" || ruleFile == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading rule from stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(ruleFile)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage the detection rule repository",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored rule files",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		rules, err := client.ListRules(context.Background())
		if err != nil {
			return err
		}
		if len(rules) == 0 {
			fmt.Println("No rules.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSIZE\tUPDATED\tBY")
		for _, r := range rules {
			updated, by := "-", "-"
			if r.UpdatedAt != nil {
				updated = r.UpdatedAt.Local().Format("2006-01-02 15:04:05")
			}
			if r.UpdatedBy != nil {
				by = *r.UpdatedBy
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", r.Name, r.SizeBytes, updated, by)
		}
		return w.Flush()
	},
}

var rulesGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Print a rule file's content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		rule, err := client.GetRule(context.Background(), args[0])
		if err != nil {
			return err
		}
		fmt.Print(rule.Content)
		return nil
	},
}

var rulesCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a rule file from --file or stdin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := readRuleContent()
		if err != nil {
			return err
		}
		client, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		rule, err := client.CreateRule(context.Background(), args[0], content)
		if err != nil {
			return err
		}
		fmt.Printf("Created %s (%d bytes)\n", rule.Name, rule.SizeBytes)
		return nil
	},
}

var rulesUpdateCmd = &cobra.Command{
	Use:   "update <name>",
	Short: "Replace a rule file's content from --file or stdin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := readRuleContent()
		if err != nil {
			return err
		}
		client, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		rule, err := client.UpdateRule(context.Background(), args[0], content)
		if err != nil {
			return err
		}
		fmt.Printf("Updated %s (%d bytes)\n", rule.Name, rule.SizeBytes)
		return nil
	},
}

var rulesDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a rule file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		if err := client.DeleteRule(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate [name]",
	Short: "Validate rule content without storing it",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := readRuleContent()
		if err != nil {
			return err
		}
		name := "rule.yar"
		if len(args) == 1 {
			name = args[0]
		} else if ruleFile != "" && ruleFile != "-" {
			name = filepath.Base(ruleFile)
		}

		client, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		result := client.ValidateRule(context.Background(), name, content)
		if result.Valid {
			fmt.Println("valid")
			return nil
		}
		fmt.Printf("invalid: %s\n", result.Message)
		for _, issue := range result.Errors {
			if issue.Line != nil {
				fmt.Printf("  line %d: %s\n", *issue.Line, issue.Message)
			} else {
				fmt.Printf("  %s\n", issue.Message)
			}
		}
		os.Exit(1)
		return nil
	},
}

var rulesPushCmd = &cobra.Command{
	Use:   "push <agent-id>",
	Short: "Push rule content to a connected agent and wait for its compile result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var content string
		var err error
		client, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		if pushRuleName != "" {
			rule, err := client.GetRule(context.Background(), pushRuleName)
			if err != nil {
				return err
			}
			content = rule.Content
		} else {
			content, err = readRuleContent()
			if err != nil {
				return err
			}
		}

		result, err := client.PushRule(context.Background(), args[0], content)
		if err != nil {
			return err
		}
		if result.Success {
			fmt.Printf("Agent %s compiled the rule.\n", args[0])
			return nil
		}
		return fmt.Errorf("agent %s rejected the rule: %s", args[0], result.Diagnostics)
	},
}

func init() {
	for _, c := range []*cobra.Command{rulesCreateCmd, rulesUpdateCmd, rulesValidateCmd, rulesPushCmd} {
		c.Flags().StringVarP(&ruleFile, "file", "f", "", "Rule file to read (default: stdin)")
	}
	rulesPushCmd.Flags().StringVar(&pushRuleName, "rule", "", "Push a stored rule by name instead of local content")

	rulesCmd.AddCommand(rulesListCmd, rulesGetCmd, rulesCreateCmd, rulesUpdateCmd, rulesDeleteCmd, rulesValidateCmd, rulesPushCmd)
	rootCmd.AddCommand(rulesCmd)
}
