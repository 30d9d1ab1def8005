package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	jsonOutput bool
	noProgress bool
	rootCmd    = &cobra.Command{
		Use:   "quorum",
		Short: "Quorum - offline threat detection appliance core",
		Long: `Quorum is the detection and update core of an air-gapped log analysis
appliance. It evaluates normalized log records against locally persisted
knowledge stores (IOC indicators, TTP patterns, detection rules, anomaly
model) and installs signed offline update packages atomically, with
rollback and a tamper-evident audit trail.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "disable progress output")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// progressEnabled reports whether interactive progress may be rendered.
// Progress never mixes with JSON output.
func progressEnabled() bool {
	return !noProgress && !jsonOutput
}

// outputJSON prints v as JSON if --json flag is set, otherwise does nothing.
func outputJSON(v any) error {
	if !jsonOutput {
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputJSONOrError prints v as JSON if --json flag is set, or prints error.
func outputJSONOrError(v any, err error) error {
	if err != nil {
		return err
	}
	return outputJSON(v)
}
