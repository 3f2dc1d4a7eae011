package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/mockflow/internal/cli"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage connection profiles",
	Long:  `Manage the profiles stored in ~/.mockflow/config.yaml (or $MOCKFLOW_CONFIG).`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with local and ci profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cli.Save(cli.DefaultConfig()); err != nil {
			return err
		}
		path, _ := cli.ConfigPath()
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration file created at: %s\n", path)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.Load()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, name := range cfg.Names() {
			p := cfg.Profiles[name]
			marker := " "
			if name == cfg.Current {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %s\n    base_url: %s\n    api_key: %s\n", marker, name, p.BaseURL, p.MaskedKey())
		}
		return nil
	},
}

var configUseCmd = &cobra.Command{
	Use:   "use <profile>",
	Short: "Select the profile used when --env is omitted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.Load()
		if err != nil {
			return err
		}
		if _, ok := cfg.Profiles[args[0]]; !ok {
			return fmt.Errorf("profile %q not found", args[0])
		}
		cfg.Current = args[0]
		if err := cli.Save(cfg); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Switched to profile %s\n", args[0])
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <profile.key>",
	Short: "Print one profile value",
	Long: `Print one profile value.

Examples:
  mockflowctl config get local.base_url
  mockflowctl config get ci.api_key`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, key, err := splitConfigKey(args[0])
		if err != nil {
			return err
		}
		cfg, err := cli.Load()
		if err != nil {
			return err
		}
		p, ok := cfg.Profiles[name]
		if !ok {
			return fmt.Errorf("profile %q not found", name)
		}
		v, err := p.Get(key)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), v)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <profile.key> <value>",
	Short: "Store one profile value, creating the profile if needed",
	Long: `Store one profile value, creating the profile if needed.

Examples:
  mockflowctl config set local.base_url http://localhost:8080
  mockflowctl config set ci.api_key my-secret-key`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, key, err := splitConfigKey(args[0])
		if err != nil {
			return err
		}
		cfg, err := cli.Load()
		if err != nil {
			return err
		}
		p := cfg.Profiles[name]
		if err := p.Set(key, args[1]); err != nil {
			return err
		}
		cfg.Profiles[name] = p
		if err := cli.Save(cfg); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Set %s.%s\n", name, key)
		return nil
	},
}

func splitConfigKey(s string) (string, string, error) {
	name, key, ok := strings.Cut(s, ".")
	if !ok || name == "" || key == "" {
		return "", "", fmt.Errorf("invalid key %q, expected profile.key (e.g. local.base_url)", s)
	}
	return name, key, nil
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configListCmd, configUseCmd, configGetCmd, configSetCmd)
}
