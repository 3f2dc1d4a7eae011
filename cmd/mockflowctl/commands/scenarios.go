package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/mockflow/internal/cli"
	"github.com/TimurManjosov/mockflow/internal/store"
)

var (
	scenarioName        string
	scenarioDescription string
)

var scenariosCmd = &cobra.Command{
	Use:     "scenarios",
	Aliases: []string{"scenario"},
	Short:   "Manage scenarios",
}

var scenariosListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all scenarios",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		scenarios, err := c.ListScenarios(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list scenarios: %w", err)
		}
		if quiet {
			return nil
		}
		if len(scenarios) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found")
			return nil
		}
		return cli.PrintScenarios(cmd.OutOrStdout(), scenarios, cli.OutputFormat(format))
	},
}

var scenariosCreateCmd = &cobra.Command{
	Use:   "create <id>",
	Short: "Create a scenario",
	Long: `Create a scenario.

Examples:
  mockflowctl scenarios create auth-flow --name "Auth flow"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		created, err := c.CreateScenario(cmd.Context(), store.Scenario{
			ID:          args[0],
			Name:        scenarioName,
			Description: scenarioDescription,
		})
		if err != nil {
			return fmt.Errorf("failed to create scenario: %w", err)
		}
		if !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "Scenario '%s' created\n", created.ID)
		}
		return nil
	},
}

var scenariosDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a scenario with its transitions and state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		if err := c.DeleteScenario(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("failed to delete scenario: %w", err)
		}
		if !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "Scenario '%s' deleted\n", args[0])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scenariosCmd)
	scenariosCmd.AddCommand(scenariosListCmd, scenariosCreateCmd, scenariosDeleteCmd)

	scenariosCreateCmd.Flags().StringVar(&scenarioName, "name", "", "Display name")
	scenariosCreateCmd.Flags().StringVar(&scenarioDescription, "description", "", "Description")
}
