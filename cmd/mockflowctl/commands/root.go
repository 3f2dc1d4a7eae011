package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/mockflow/internal/cli"
	"github.com/TimurManjosov/mockflow/internal/client"
)

var (
	// Global flags
	baseURL string
	apiKey  string
	env     string
	format  string
	quiet   bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "mockflowctl",
	Short: "CLI tool for managing mockflow scenarios",
	Long: `mockflowctl manages scenarios, transitions and state on a mockflow server.

Examples:
  mockflowctl scenarios list
  mockflowctl transitions create auth-flow login.json
  mockflowctl simulate auth-flow --method POST --path /login --dry-run
  mockflowctl export --output catalog.yaml
  mockflowctl import catalog.yaml --env ci`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "Base URL of the mockflow server")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Admin API key")
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "Profile from the config file (default: current profile)")
	rootCmd.PersistentFlags().StringVar(&format, "format", "table", "Output format (table, json, yaml)")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress output")
}

func newClient() (*client.Client, error) {
	p, _, err := cli.Resolve(env, baseURL, apiKey)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return client.NewClient(p.BaseURL, p.APIKey), nil
}
