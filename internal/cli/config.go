package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/quorum-project/quorum/internal/statedir"
	"github.com/quorum-project/quorum/pkg/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config <command>",
	Short: "Manage appliance configuration",
	Long: `Manage appliance configuration stored in .quorum/config.yaml.

Keys are dotted paths into the YAML structure, for example
detection.anomaly_floor or update.retention.keep_versions.
Run 'quorum config show' to list every key with its current value.

Available commands:
  show              - Show current configuration
  set <key> <value> - Set a configuration value
  get <key>         - Get a configuration value`,
	DisableFlagsInUseLine: true,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Show the current configuration from .quorum/config.yaml.",
	Run: func(cmd *cobra.Command, args []string) {
		c := requireClient()
		defer c.Close()
		cfg, err := config.Load(c.Root())
		if err != nil {
			fmtErr("load config: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(cfg)
			return
		}

		fmt.Println("# Quorum Configuration")
		fmt.Printf("# Location: %s\n\n", filepath.Join(c.Root(), statedir.DirName, "config.yaml"))

		for _, key := range config.Keys() {
			value, err := cfg.Get(key)
			if err != nil {
				continue
			}
			fmt.Printf("%s: %s\n", key, value)
		}
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in .quorum/config.yaml.

Changes take effect the next time the state directory is opened.

Examples:
  quorum config set detection.anomaly_floor 0.6
  quorum config set update.retention.keep_versions 3
  quorum config set update.lease_ttl 5m
  quorum config set metrics.enabled true`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		c := requireClient()
		defer c.Close()
		cfg, err := config.Load(c.Root())
		if err != nil {
			fmtErr("load config: %v", err)
			os.Exit(1)
		}

		key := args[0]
		value := args[1]

		if err := cfg.Set(key, value); err != nil {
			fmtErr("set config: %v", err)
			os.Exit(1)
		}

		if err := config.Save(c.Root(), cfg); err != nil {
			fmtErr("save config: %v", err)
			os.Exit(1)
		}

		fmt.Printf("Set %s = %s\n", key, value)
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Long: `Get a configuration value from .quorum/config.yaml.

Examples:
  quorum config get detection.anomaly_floor
  quorum config get update.verify_key_path
  quorum config get logging.level`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c := requireClient()
		defer c.Close()
		cfg, err := config.Load(c.Root())
		if err != nil {
			fmtErr("load config: %v", err)
			os.Exit(1)
		}

		key := args[0]
		value, err := cfg.Get(key)
		if err != nil {
			fmtErr("get config: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(map[string]string{"key": key, "value": value})
			return
		}
		fmt.Println(value)
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	rootCmd.AddCommand(configCmd)
}
