package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/mockflow/internal/cli"
	"github.com/TimurManjosov/mockflow/internal/client"
)

var (
	simMethod  string
	simPath    string
	simBody    string
	simQuery   []string
	simHeaders []string
	simDryRun  bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate <scenario>",
	Short: "Run a request through a scenario and show the routing trace",
	Long: `Simulate a request against a scenario. Unlike plain dispatch, routing
skips transitions whose conditions fail. With --dry-run nothing is persisted.

Examples:
  mockflowctl simulate auth-flow --method POST --path /login --body '{"user":"ann"}'
  mockflowctl simulate shop --path /cart --query page=2 --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query, err := parsePairs(simQuery)
		if err != nil {
			return fmt.Errorf("invalid --query: %w", err)
		}
		headers, err := parsePairs(simHeaders)
		if err != nil {
			return fmt.Errorf("invalid --header: %w", err)
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		res, err := c.Simulate(cmd.Context(), args[0], client.SimulateRequest{
			Method:  simMethod,
			Path:    simPath,
			Body:    parseBody(simBody),
			Query:   query,
			Headers: headers,
			DryRun:  simDryRun,
		})
		if err != nil {
			return fmt.Errorf("simulation failed: %w", err)
		}
		if quiet {
			return nil
		}
		return cli.PrintSimulation(cmd.OutOrStdout(), res, cli.OutputFormat(format))
	},
}

// parseBody keeps JSON bodies structured and sends anything else as text.
func parseBody(raw string) any {
	if raw == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

func parsePairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", p)
		}
		out[k] = v
	}
	return out, nil
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().StringVar(&simMethod, "method", "GET", "HTTP method")
	simulateCmd.Flags().StringVar(&simPath, "path", "/", "Request path inside the scenario")
	simulateCmd.Flags().StringVar(&simBody, "body", "", "Request body (JSON or text)")
	simulateCmd.Flags().StringArrayVar(&simQuery, "query", nil, "Query parameter as key=value (repeatable)")
	simulateCmd.Flags().StringArrayVar(&simHeaders, "header", nil, "Header as key=value (repeatable)")
	simulateCmd.Flags().BoolVar(&simDryRun, "dry-run", false, "Do not persist state changes")
}
