package cmd

import (
	"fmt"
	"strings"

	"github.com/MeKo-Tech/pocrop/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved configuration",
	Long: `Print the configuration after merging defaults, the config file,
POCROP_* environment variables and flags, as YAML.

Examples:
  pocrop config
  POCROP_SERVER_PORT=9000 pocrop config
  pocrop config init pocrop.yaml`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		out, err := config.MarshalYAML(cfg)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if used := GetConfigLoader().GetConfigFileUsed(); used != "" {
			_, _ = fmt.Fprintf(w, "# config file: %s\n", used)
		}
		_, err = w.Write(out)
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:          "init [file]",
	Short:        "Write a config file with the default settings",
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		filename := ""
		if len(args) == 1 {
			filename = args[0]
		}
		if err := config.GenerateDefaultConfigFile(filename); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
		if filename == "" {
			filename = config.ConfigFileName + ".yaml"
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", filename)
		return nil
	},
}

var configPathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "List the directories searched for a config file",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), strings.Join(config.GetConfigSearchPaths(), "\n"))
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Environment prefix: %s\n", config.EnvPrefix)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configPathsCmd)
}
