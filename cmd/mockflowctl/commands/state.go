package commands

import (
	"bufio"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/mockflow/internal/cli"
	"github.com/TimurManjosov/mockflow/internal/client"
)

var resetForce bool

var stateCmd = &cobra.Command{
	Use:   "state <scenario>",
	Short: "Show the persisted state and tables of a scenario",
	Long: `Show the state document of a scenario. Table output falls back to JSON.

Examples:
  mockflowctl state auth-flow
  mockflowctl state shop --format json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		doc, err := c.State(cmd.Context(), args[0])
		if err != nil {
			var apiErr *client.APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
				return fmt.Errorf("scenario '%s' has no state yet", args[0])
			}
			return fmt.Errorf("failed to get state: %w", err)
		}
		if quiet {
			return nil
		}
		return cli.PrintDocument(cmd.OutOrStdout(), doc, cli.OutputFormat(format))
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset <scenario>",
	Short: "Delete the state of a scenario",
	Long: `Delete the state document of a scenario. Transitions are kept.

Examples:
  mockflowctl reset auth-flow
  mockflowctl reset auth-flow --force`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		if !resetForce && !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "Are you sure you want to reset state of '%s'? (y/N): ", id)
			response, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil {
				return fmt.Errorf("failed to read confirmation: %w", err)
			}
			response = strings.ToLower(strings.TrimSpace(response))
			if response != "y" && response != "yes" {
				fmt.Fprintln(cmd.OutOrStdout(), "Reset cancelled")
				return nil
			}
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		if err := c.Reset(cmd.Context(), id); err != nil {
			return fmt.Errorf("failed to reset state: %w", err)
		}
		if !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "State of '%s' reset\n", id)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stateCmd, resetCmd)

	resetCmd.Flags().BoolVar(&resetForce, "force", false, "Skip confirmation")
}
