package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quorum-project/quorum/pkg/metrics"
)

var metricsAddr string

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Start Prometheus metrics server",
	Long: `Start a Prometheus metrics server for this appliance.

This exposes a /metrics endpoint with Prometheus-format metrics about:
- Verdicts and findings (count by severity and detector)
- Analyze latency and verdict cache efficiency
- Update attempts (count by state and failure class)
- Rollbacks and garbage collection
- Active and retained store versions

Gauges are seeded from the installed stores at startup; counters track
operations performed by this process. Long-running processes such as
'quorum update watch' are the natural hosts. The server binds loopback
by default and runs in the foreground until interrupted.

Examples:
  quorum metrics                          # Listen on config default
  quorum metrics --addr 127.0.0.1:9464    # Listen on custom address`,
	Run: func(cmd *cobra.Command, args []string) {
		c := requireClient()
		defer c.Close()

		m := c.Metrics()
		if m == nil {
			m = metrics.New()
		}
		// Seed store gauges so a scrape reflects the installed versions
		// even before any operation runs.
		for _, s := range c.StoreStatus(context.Background()) {
			if s.Active != nil {
				m.SetActiveStore(string(s.Kind), s.Active.Version)
			}
			m.SetRetainedVersions(string(s.Kind), len(s.Retained))
		}

		addr := metricsAddr
		if addr == "" {
			addr = c.Config().Metrics.Listen
		}

		srv, err := m.Serve(addr)
		if err != nil {
			fmtErr("metrics server: %v", err)
			os.Exit(1)
		}
		defer srv.Close()

		fmt.Printf("Metrics available at http://%s/metrics\n", addr)
		fmt.Println("Press Ctrl+C to stop")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()
	},
}

func init() {
	metricsCmd.Flags().StringVarP(&metricsAddr, "addr", "a", "", "address to listen on (default from config)")
	rootCmd.AddCommand(metricsCmd)
}
