package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quorum-project/quorum/internal/statedir"
	"github.com/quorum-project/quorum/pkg/color"
	"github.com/quorum-project/quorum/pkg/model"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show appliance information",
	Run: func(cmd *cobra.Command, args []string) {
		c := requireClient()
		defer c.Close()
		ctx := cmd.Context()

		active := c.ActiveVersions(ctx)
		records, auditErr := c.VerifyAudit(ctx)

		info := map[string]any{
			"state_root":      c.Root(),
			"appliance_id":    c.ApplianceID(),
			"format_version":  statedir.FormatVersion,
			"active_versions": active,
			"audit_records":   records,
			"audit_intact":    auditErr == nil,
		}

		if jsonOutput {
			outputJSON(info)
			return
		}

		fmt.Printf("Appliance: %s\n", c.Root())
		fmt.Printf("  Appliance ID: %s\n", c.ApplianceID())
		fmt.Printf("  Format version: %d\n", statedir.FormatVersion)
		if len(active) == 0 {
			fmt.Printf("  Active stores: %s\n", color.Dim("(none)"))
		} else {
			fmt.Println("  Active stores:")
			for _, kind := range model.StoreKinds {
				if v, ok := active[kind]; ok {
					fmt.Printf("    %-14s %s\n", kind, color.Version(v))
				}
			}
		}
		if auditErr != nil {
			fmt.Printf("  Audit: %s\n", color.Error("broken"))
		} else {
			fmt.Printf("  Audit: %d records, chain intact\n", records)
		}
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
