package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quorum-project/quorum/internal/update"
	"github.com/quorum-project/quorum/pkg/color"
	"github.com/quorum-project/quorum/pkg/errclass"
	"github.com/quorum-project/quorum/pkg/model"
	"github.com/quorum-project/quorum/pkg/quorum"
)

var (
	updateActor    string
	statusAttempts int
	rollbackTarget string
	rollbackAll    bool
	watchActor     string
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Manage offline knowledge store updates",
}

var updateSubmitCmd = &cobra.Command{
	Use:   "submit <package.qup>",
	Short: "Submit a signed update package",
	Long: `Submit a signed update package for verification, staging and atomic
commit.

The package passes through the full pipeline (size and structure checks,
payload digests, manifest signature, semantic validation, staging) before
any store is touched. Either every store kind named by the package becomes
active or none does. Every stage transition is audited.

Examples:
  quorum update submit /media/usb0/2026.08.1.qup
  quorum update submit nightly.qup --actor ops-team`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c := requireClient()
		defer c.Close()

		res, err := c.SubmitFile(context.Background(), args[0], resolveActor(updateActor))
		if err != nil {
			if jsonOutput && res != nil {
				outputJSON(res)
			} else if res != nil {
				fmtErr("update failed [%s]: %s", errclass.CodeOf(err), res.Reason)
				fmt.Fprintf(os.Stderr, "  Attempt: %s\n", color.AttemptID(string(res.AttemptID)))
			} else {
				fmtErr("submit: %v", err)
			}
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(res)
			return
		}

		fmt.Printf("Update %s %s (attempt %s)\n",
			color.Version(res.PackageVersion),
			color.StateName(string(res.State)),
			color.AttemptID(string(res.AttemptID)))
		for _, kind := range model.StoreKinds {
			if v, ok := res.Committed[kind]; ok {
				fmt.Printf("  %-14s -> %s\n", kind, color.Version(v))
			}
		}
	},
}

var updateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-store state and recent update attempts",
	Run: func(cmd *cobra.Command, args []string) {
		c := requireClient()
		defer c.Close()

		st, err := c.Status(context.Background(), statusAttempts)
		if err != nil {
			fmtErr("status: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(st)
			return
		}

		fmt.Println(color.Header("Stores:"))
		for _, s := range st.Stores {
			printStoreLine(s)
		}

		if len(st.Attempts) > 0 {
			fmt.Println()
			fmt.Println(color.Header("Recent attempts:"))
			for _, a := range st.Attempts {
				printAttemptLine(a)
			}
		}
	},
}

var updateRollbackCmd = &cobra.Command{
	Use:   "rollback [<kind>]",
	Short: "Restore the previously active store version",
	Long: `Restore the previously active version of one store kind, or of every
kind with --all.

Without --target the store returns to the version that was active before
the last commit. With --target any version still inside the retention
window can be restored. Rolling back when nothing newer was committed is
a no-op, not an error.

Examples:
  quorum update rollback indicators
  quorum update rollback rules --target r-3
  quorum update rollback --all`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if rollbackAll == (len(args) == 1) {
			fmtErr("specify a store kind or --all (not both)")
			os.Exit(1)
		}

		c := requireClient()
		defer c.Close()
		ctx := context.Background()
		actor := resolveActor(updateActor)

		if rollbackAll {
			results, err := c.RollbackAll(ctx, actor)
			if err != nil {
				fmtErr("rollback: %v", err)
				os.Exit(1)
			}
			if jsonOutput {
				outputJSON(results)
				return
			}
			for _, r := range results {
				printRollbackLine(r)
			}
			return
		}

		kind := model.StoreKind(args[0])
		if !kind.Valid() {
			fmt.Fprintln(os.Stderr, formatKindNotFoundError(args[0]))
			os.Exit(1)
		}

		res, err := c.Rollback(ctx, kind, rollbackTarget, actor)
		if err != nil {
			if errclass.Is(err, errclass.ErrVersionUnknown) || errclass.Is(err, errclass.ErrRollbackTargetUnavailable) {
				fmt.Fprintln(os.Stderr, formatVersionNotFoundError(rollbackTarget, storeStatusFor(c, kind)))
			} else {
				fmtErr("rollback: %v", err)
			}
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(res)
			return
		}
		printRollbackLine(res)
	},
}

var updateWatchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Watch a directory and submit packages dropped into it",
	Long: `Watch a directory, typically a removable-media mount, and submit every
update package that appears in it.

Files are submitted once their size stops changing, so packages still
being copied are not read half-written. The watcher runs until
interrupted.

Examples:
  quorum update watch /media/usb0
  quorum update watch /srv/drop --actor media-ingest`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c := requireClient()
		defer c.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if !jsonOutput {
			fmt.Printf("Watching %s for update packages (Ctrl+C to stop)\n", color.Highlight(args[0]))
		}

		err := c.Watch(ctx, args[0], resolveActor(watchActor), func(ev update.WatchResult) {
			printWatchEvent(ev)
		})
		if err != nil && ctx.Err() == nil {
			fmtErr("watch: %v", err)
			os.Exit(1)
		}
	},
}

func printWatchEvent(ev update.WatchResult) {
	if jsonOutput {
		payload := map[string]any{"path": ev.Path}
		if ev.Result != nil {
			payload["result"] = ev.Result
		}
		if ev.Err != nil {
			payload["error"] = ev.Err.Error()
		}
		outputJSON(payload)
		return
	}

	switch {
	case ev.Err != nil && ev.Result != nil:
		fmt.Printf("%s  %s [%s]: %s\n",
			color.StateName(string(ev.Result.State)), ev.Path, errclass.CodeOf(ev.Err), ev.Result.Reason)
	case ev.Err != nil:
		fmt.Printf("%s  %s: %v\n", color.Error("ERROR"), ev.Path, ev.Err)
	default:
		fmt.Printf("%s  %s: %s (attempt %s)\n",
			color.StateName(string(ev.Result.State)), ev.Path,
			color.Version(ev.Result.PackageVersion), color.AttemptID(string(ev.Result.AttemptID)))
	}
}

func printStoreLine(s model.StoreStatus) {
	if s.Active == nil {
		fmt.Printf("  %-14s %s\n", s.Kind, color.Dim("(none)"))
		return
	}
	line := fmt.Sprintf("  %-14s %s  (sha256 %s)  installed %s",
		s.Kind,
		color.Version(s.Active.Version),
		color.Dim(s.Active.Checksum.Short()),
		s.Active.InstalledAt.Format("2006-01-02 15:04"))
	if s.RollbackTarget != "" {
		line += fmt.Sprintf("  rollback -> %s", color.Version(s.RollbackTarget))
	}
	fmt.Println(line)
}

func printAttemptLine(a model.UpdateResult) {
	line := fmt.Sprintf("  %s  %-12s %-10s",
		color.AttemptID(shortAttempt(a.AttemptID)),
		color.StateName(string(a.State)),
		a.PackageVersion)
	if a.State == model.AttemptFailed && a.FailureClass != "" {
		line += "  " + color.Error(a.FailureClass)
	} else if len(a.StoreKinds) > 0 {
		line += fmt.Sprintf("  %v", a.StoreKinds)
	}
	line += fmt.Sprintf("  %s  %s", a.Actor, color.Dim(a.ReceivedAt.Format(time.RFC3339)))
	fmt.Println(line)
}

func printRollbackLine(r *model.RollbackResult) {
	if r.NoOp {
		fmt.Printf("No-op: nothing to roll back for %s\n", r.Kind)
		return
	}
	fmt.Printf("Rolled back %s: %s -> %s\n",
		r.Kind, color.Version(r.Superseded), color.Version(r.Restored))
}

// storeStatusFor returns the status slot for one kind, for suggestion text.
func storeStatusFor(c *quorum.Client, kind model.StoreKind) model.StoreStatus {
	for _, s := range c.StoreStatus(context.Background()) {
		if s.Kind == kind {
			return s
		}
	}
	return model.StoreStatus{Kind: kind}
}

func shortAttempt(id model.AttemptID) string {
	s := string(id)
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

func init() {
	updateSubmitCmd.Flags().StringVar(&updateActor, "actor", "", "actor recorded in the audit trail (default {user}@{hostname})")
	updateStatusCmd.Flags().IntVarP(&statusAttempts, "attempts", "n", 5, "number of recent attempts to show")
	updateRollbackCmd.Flags().StringVar(&rollbackTarget, "target", "", "roll back to this retained version instead of the previous one")
	updateRollbackCmd.Flags().BoolVar(&rollbackAll, "all", false, "roll back every store kind")
	updateRollbackCmd.Flags().StringVar(&updateActor, "actor", "", "actor recorded in the audit trail (default {user}@{hostname})")
	updateWatchCmd.Flags().StringVar(&watchActor, "actor", "", "actor recorded in the audit trail (default {user}@{hostname})")
	updateCmd.AddCommand(updateSubmitCmd)
	updateCmd.AddCommand(updateStatusCmd)
	updateCmd.AddCommand(updateRollbackCmd)
	updateCmd.AddCommand(updateWatchCmd)
	rootCmd.AddCommand(updateCmd)
}
