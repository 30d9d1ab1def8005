package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quorum-project/quorum/pkg/color"
	"github.com/quorum-project/quorum/pkg/errclass"
	"github.com/quorum-project/quorum/pkg/model"
	"github.com/quorum-project/quorum/pkg/quorum"
)

var (
	storesRetained bool
	historyLimit   int
	diffStatOnly   bool
)

var storesCmd = &cobra.Command{
	Use:   "stores",
	Short: "Inspect installed knowledge stores",
}

var storesStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show active and retained versions per store kind",
	Run: func(cmd *cobra.Command, args []string) {
		c := requireClient()
		defer c.Close()

		stores := c.StoreStatus(context.Background())

		if jsonOutput {
			outputJSON(stores)
			return
		}

		for _, s := range stores {
			printStoreLine(s)
			if storesRetained {
				for _, info := range s.Retained {
					fmt.Printf("    retained %s  (sha256 %s)  installed %s\n",
						color.Version(info.Version),
						color.Dim(info.Checksum.Short()),
						info.InstalledAt.Format("2006-01-02 15:04"))
				}
			}
		}
	},
}

var storesHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show update attempt history",
	Long: `Show update attempt history, newest first.

Each line is one submission: attempt ID, final state, package version,
store kinds or failure class, actor and receive time.

Examples:
  quorum stores history          # Last 20 attempts
  quorum stores history -n 5     # Last 5 attempts
  quorum stores history --json   # Full attempt records`,
	Run: func(cmd *cobra.Command, args []string) {
		c := requireClient()
		defer c.Close()

		attempts, err := c.History(context.Background(), historyLimit)
		if err != nil {
			fmtErr("history: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(attempts)
			return
		}

		if len(attempts) == 0 {
			fmt.Println("No update attempts yet.")
			return
		}
		for _, a := range attempts {
			printAttemptLine(a)
		}
	},
}

var storesDiffCmd = &cobra.Command{
	Use:   "diff <kind> <from> <to>",
	Short: "Show content differences between two store versions",
	Long: `Show content differences between two retained versions of one store
kind.

Indicators diff by entry within each group (ips, domains, hashes,
processes); rules and patterns diff by id; the anomaly model diffs its
scalar parameters and vector contents. 'active' resolves to the version
currently active for the kind.

Examples:
  quorum stores diff indicators i-1 i-2
  quorum stores diff rules r-3 active
  quorum stores diff rules r-3 r-4 --stat`,
	Args: cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		kind := model.StoreKind(args[0])
		if !kind.Valid() {
			fmt.Fprintln(os.Stderr, formatKindNotFoundError(args[0]))
			os.Exit(1)
		}

		c := requireClient()
		defer c.Close()
		ctx := context.Background()

		from, err := resolveVersion(c, kind, args[1])
		if err != nil {
			fmtErr("resolve from version: %v", err)
			os.Exit(1)
		}
		to, err := resolveVersion(c, kind, args[2])
		if err != nil {
			fmtErr("resolve to version: %v", err)
			os.Exit(1)
		}

		result, err := c.Diff(ctx, kind, from, to)
		if err != nil {
			if errclass.Is(err, errclass.ErrVersionUnknown) {
				fmt.Fprintln(os.Stderr, color.Error(err.Error()))
				fmt.Fprintln(os.Stderr, color.Dim("  "+suggestVersions("", storeStatusFor(c, kind))))
			} else {
				fmtErr("compute diff: %v", err)
			}
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(result)
			return
		}

		if diffStatOnly {
			fmt.Printf("Added: %d, Removed: %d, Changed: %d\n",
				result.TotalAdded, result.TotalRemoved, result.TotalChanged)
			return
		}
		fmt.Print(result.FormatHuman())
	},
}

// resolveVersion maps the special ref 'active' to the version currently
// active for kind; anything else passes through.
func resolveVersion(c *quorum.Client, kind model.StoreKind, ref string) (string, error) {
	if ref != "active" {
		return ref, nil
	}
	status := storeStatusFor(c, kind)
	if status.Active == nil {
		return "", fmt.Errorf("no active version for %s", kind)
	}
	return status.Active.Version, nil
}

func init() {
	storesStatusCmd.Flags().BoolVar(&storesRetained, "retained", false, "list retained versions under each store")
	storesHistoryCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "limit number of attempts")
	storesDiffCmd.Flags().BoolVar(&diffStatOnly, "stat", false, "show summary only")
	storesCmd.AddCommand(storesStatusCmd)
	storesCmd.AddCommand(storesHistoryCmd)
	storesCmd.AddCommand(storesDiffCmd)
	rootCmd.AddCommand(storesCmd)
}
