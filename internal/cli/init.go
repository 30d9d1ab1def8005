package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/quorum-project/quorum/internal/statedir"
	"github.com/quorum-project/quorum/pkg/color"
	"github.com/quorum-project/quorum/pkg/quorum"
)

var initActor string

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Initialize an appliance state directory",
	Long: `Initialize a Quorum appliance state directory at path (default: current
directory).

This creates:
  - .quorum/ directory with stores, keys, locks, audit, staging and gc areas
  - config.yaml with shipping defaults
  - the first audit record (statedir_init)

Updates stay rejected until a verification public key is provisioned at
.quorum/keys/update_verify.pem (see 'quorum keygen').`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := "."
		if len(args) > 0 {
			path = args[0]
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			fmtErr("resolve path: %v", err)
			os.Exit(1)
		}

		c, err := quorum.Init(abs, quorum.InitOptions{Actor: resolveActor(initActor)})
		if err != nil {
			fmtErr("failed to initialize state directory: %v", err)
			os.Exit(1)
		}
		defer c.Close()

		if jsonOutput {
			outputJSON(map[string]any{
				"state_root":     c.Root(),
				"appliance_id":   c.ApplianceID(),
				"format_version": statedir.FormatVersion,
			})
		} else {
			fmt.Printf("Initialized Quorum state directory in %s\n", color.Success(filepath.Join(abs, statedir.DirName)))
			fmt.Printf("  Appliance ID: %s\n", color.Highlight(c.ApplianceID()))
			fmt.Printf("  Provision a verify key at %s to accept updates\n",
				color.Code(filepath.Join(statedir.DirName, "keys", "update_verify.pem")))
		}
	},
}

func init() {
	initCmd.Flags().StringVar(&initActor, "actor", "", "actor recorded in the audit trail (default {user}@{hostname})")
	rootCmd.AddCommand(initCmd)
}
