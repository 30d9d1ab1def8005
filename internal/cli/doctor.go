package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quorum-project/quorum/pkg/color"
)

var doctorStrict bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check appliance health",
	Long: `Check appliance health.

Runs diagnostic checks on the state directory and reports any issues:
format version, verify key, audit chain, persisted store checksums, stale
locks, orphan staging files and air-gap posture. Use --strict to also
probe that well-known external endpoints are unreachable.`,
	Run: func(cmd *cobra.Command, args []string) {
		c := requireClient()
		defer c.Close()

		result, err := c.Doctor(context.Background(), doctorStrict)
		if err != nil {
			fmtErr("doctor: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(result)
			if !result.Healthy {
				os.Exit(1)
			}
			return
		}

		if len(result.Findings) == 0 {
			fmt.Println("Appliance is healthy.")
			return
		}

		fmt.Printf("Findings (%d):\n", len(result.Findings))
		for _, f := range result.Findings {
			fmt.Printf("  [%s] %s: %s\n", findingSeverity(f.Severity), f.Category, f.Description)
		}

		if !result.Healthy {
			os.Exit(1)
		}
	},
}

// findingSeverity colorizes a doctor finding severity.
func findingSeverity(s string) string {
	switch s {
	case "critical", "error":
		return color.Error(s)
	case "warning":
		return color.Warning(s)
	case "info":
		return color.Info(s)
	}
	return s
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorStrict, "strict", false, "also probe that external endpoints are unreachable")
	rootCmd.AddCommand(doctorCmd)
}
