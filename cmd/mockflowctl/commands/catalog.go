package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/mockflow/internal/catalog"
)

var (
	exportOutput string
	importDryRun bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every scenario and transition as YAML",
	Long: `Export the full catalog as YAML.

Examples:
  mockflowctl export --output catalog.yaml
  mockflowctl export --env ci > backup.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		data, err := c.ExportCatalog(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to export catalog: %w", err)
		}

		if exportOutput == "" || exportOutput == "-" {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(exportOutput, data, 0o644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		if !quiet {
			fmt.Fprintf(cmd.ErrOrStderr(), "Catalog exported to %s\n", exportOutput)
		}
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a YAML catalog",
	Long: `Import a YAML catalog. Each listed scenario is upserted and its
transitions are replaced. Scenario state is kept.

Examples:
  mockflowctl import catalog.yaml
  mockflowctl import catalog.yaml --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}

		// validate locally so a bad file never reaches the server
		cat, err := catalog.Parse(data)
		if err != nil {
			return fmt.Errorf("invalid catalog: %w", err)
		}
		if importDryRun {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Dry run mode - the following scenarios would be imported:")
			for _, s := range cat.Scenarios {
				fmt.Fprintf(out, "  - %s (%d transition(s))\n", s.ID, len(s.Transitions))
			}
			return nil
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		res, err := c.ImportCatalog(cmd.Context(), data)
		if err != nil {
			return fmt.Errorf("failed to import catalog: %w", err)
		}
		if !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "Import complete: %d scenario(s), %d transition(s), %d replaced\n",
				res.Scenarios, res.Transitions, res.Replaced)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd, importCmd)

	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: stdout)")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Validate without importing")
}
