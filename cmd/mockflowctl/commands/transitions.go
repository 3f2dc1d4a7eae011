package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/mockflow/internal/cli"
)

var transitionsCmd = &cobra.Command{
	Use:     "transitions",
	Aliases: []string{"transition"},
	Short:   "Manage the transitions of a scenario",
}

var transitionsListCmd = &cobra.Command{
	Use:   "list <scenario>",
	Short: "List transitions in creation order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		transitions, err := c.ListTransitions(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to list transitions: %w", err)
		}
		if quiet {
			return nil
		}
		if len(transitions) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No transitions found")
			return nil
		}
		return cli.PrintTransitions(cmd.OutOrStdout(), transitions, cli.OutputFormat(format))
	},
}

var transitionsCreateCmd = &cobra.Command{
	Use:   "create <scenario> <file>",
	Short: "Create a transition from a JSON definition",
	Long: `Create a transition from a JSON file. Use - to read standard input.

Examples:
  mockflowctl transitions create auth-flow login.json
  cat login.json | mockflowctl transitions create auth-flow -`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			data []byte
			err  error
		)
		if args[1] == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(args[1])
		}
		if err != nil {
			return fmt.Errorf("failed to read definition: %w", err)
		}
		if !json.Valid(data) {
			return fmt.Errorf("definition in %s is not valid JSON", args[1])
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		created, err := c.CreateTransition(cmd.Context(), args[0], json.RawMessage(data))
		if err != nil {
			return fmt.Errorf("failed to create transition: %w", err)
		}
		if !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "Transition %s created (%s %s)\n", created.ID, created.Method, created.Path)
		}
		return nil
	},
}

var transitionsDeleteCmd = &cobra.Command{
	Use:   "delete <scenario> <id>",
	Short: "Delete a transition",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		if err := c.DeleteTransition(cmd.Context(), args[0], args[1]); err != nil {
			return fmt.Errorf("failed to delete transition: %w", err)
		}
		if !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "Transition %s deleted\n", args[1])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(transitionsCmd)
	transitionsCmd.AddCommand(transitionsListCmd, transitionsCreateCmd, transitionsDeleteCmd)
}
