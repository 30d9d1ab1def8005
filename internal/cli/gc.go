package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quorum-project/quorum/pkg/color"
	"github.com/quorum-project/quorum/pkg/model"
	"github.com/quorum-project/quorum/pkg/quorum"
)

var (
	gcPlanID string
	gcActor  string
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Garbage collection of superseded store versions",
}

var gcPlanCmd = &cobra.Command{
	Use:   "plan",
	Short: "Create a GC plan",
	Long: `Create a GC plan listing the store versions retention no longer
protects.

Active versions, everything inside the retention window, rollback targets
and versions younger than the retention age are never candidates. The
plan only inspects; nothing is deleted until 'quorum gc run'.`,
	Run: func(cmd *cobra.Command, args []string) {
		c := requireClient()
		defer c.Close()

		plan, _, err := c.GC(context.Background(), quorum.GCOptions{
			DryRun: true,
			Actor:  resolveActor(gcActor),
		})
		if err != nil {
			fmtErr("create gc plan: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(plan)
			return
		}

		fmt.Printf("GC Plan: %s\n", color.Highlight(plan.PlanID))
		for _, kind := range model.StoreKinds {
			fmt.Printf("  Protected %-14s %d versions\n", kind, plan.Protected[kind])
		}
		fmt.Printf("  To delete: %d versions\n", len(plan.ToDelete))
		fmt.Printf("  Estimated reclaim: ~%d KB\n", plan.ReclaimableBytes/1024)
		fmt.Println()
		fmt.Printf("Run: quorum gc run --plan-id %s\n", plan.PlanID)
	},
}

var gcRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a GC plan",
	Long: `Execute a GC plan created by 'quorum gc plan'.

The plan is revalidated against the current catalog first; a plan that
has gone stale (a commit or rollback re-protected one of its candidates)
is rejected and must be re-planned.`,
	Run: func(cmd *cobra.Command, args []string) {
		c := requireClient()
		defer c.Close()

		if gcPlanID == "" {
			fmtErr("--plan-id is required")
			os.Exit(1)
		}

		res, err := c.RunGC(context.Background(), gcPlanID, resolveActor(gcActor))
		if err != nil {
			fmtErr("run gc: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(res)
			return
		}
		fmt.Printf("GC completed: deleted %d versions, reclaimed %d KB.\n",
			len(res.Deleted), res.ReclaimedBytes/1024)
	},
}

func init() {
	gcPlanCmd.Flags().StringVar(&gcActor, "actor", "", "actor recorded in the audit trail (default {user}@{hostname})")
	gcRunCmd.Flags().StringVar(&gcPlanID, "plan-id", "", "plan ID to execute")
	gcRunCmd.Flags().StringVar(&gcActor, "actor", "", "actor recorded in the audit trail (default {user}@{hostname})")
	gcCmd.AddCommand(gcPlanCmd)
	gcCmd.AddCommand(gcRunCmd)
	rootCmd.AddCommand(gcCmd)
}
