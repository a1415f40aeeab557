package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/jobleads-cli/internal/config"
	"github.com/sells-group/jobleads-cli/internal/monitoring"
	"github.com/sells-group/jobleads-cli/internal/store"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Scrape health checks",
}

var monitorCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate recent scraping logs once and send any alerts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if hours, _ := cmd.Flags().GetInt("hours"); hours > 0 {
			cfg.Monitoring.LookbackWindowHours = hours
		}
		if err := cfg.Validate("monitor"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		snap, alerts := newChecker(st).Check(ctx)
		if snap == nil {
			return eris.New("monitor check: could not collect scraping logs")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"snapshot": snap, "alerts": alerts})
		}
		formatSnapshot(os.Stdout, snap, alerts)
		return nil
	},
}

// newChecker builds the alert checker over the scrape sources in config.
func newChecker(logs monitoring.LogLister) *monitoring.Checker {
	collector := monitoring.NewCollector(logs, config.Sources(cfg.Scrape.DefaultSources))
	return monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
}

var _ monitoring.LogLister = (store.Store)(nil)

func formatSnapshot(out io.Writer, snap *monitoring.Snapshot, alerts []monitoring.Alert) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tRUNS\tOK\tPARTIAL\tFAILED\tFOUND\tNEW\tERRORS\tFAIL RATE\tLAST ERROR")
	for _, s := range snap.Sources {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%.0f%%\t%s\n",
			s.Source, s.Runs, s.Success, s.Partial, s.Failed, s.Found, s.New, s.Errors,
			s.FailureRate*100, truncate(s.LastError, 40))
	}
	_ = w.Flush()

	fmt.Fprintf(out, "\n%d runs in the last %dh, failure rate %.0f%%\n", snap.TotalRuns, snap.LookbackHours, snap.FailureRate*100)
	for _, src := range snap.SilentSources {
		fmt.Fprintf(out, "silent: %s\n", src)
	}
	for _, a := range alerts {
		fmt.Fprintf(out, "ALERT [%s] %s\n", a.Severity, a.Message)
	}
}

func init() {
	monitorCheckCmd.Flags().Int("hours", 0, "lookback window in hours (default from config)")
	monitorCheckCmd.Flags().Bool("json", false, "print the snapshot as JSON")
	monitorCmd.AddCommand(monitorCheckCmd)
	rootCmd.AddCommand(monitorCmd)
}
