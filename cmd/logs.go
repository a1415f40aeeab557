package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/jobleads-cli/internal/model"
	"github.com/sells-group/jobleads-cli/internal/store"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Inspect scraping run logs",
}

var logsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List per-source scraping logs, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runID, _ := cmd.Flags().GetString("run")
		src, _ := cmd.Flags().GetString("source")
		since, _ := cmd.Flags().GetDuration("since")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.LogFilter{RunID: runID, Source: model.Source(src), Limit: limit}
		if since > 0 {
			filter.Since = time.Now().Add(-since)
		}

		logs, err := st.ListLogs(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "logs list")
		}

		if len(logs) == 0 {
			fmt.Fprintln(os.Stderr, "No logs found.")
			return nil
		}

		formatLogsList(os.Stdout, logs)
		return nil
	},
}

func formatLogsList(out io.Writer, logs []model.ScrapingLog) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSOURCE\tSTATUS\tFOUND\tNEW\tUPDATED\tDUPES\tERRORS\tSTOP\tSTARTED\tDURATION")
	for _, l := range logs {
		stop := ""
		if l.SmartStopped {
			stop = "smart"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\t%s\t%s\n",
			truncateID(l.RunID),
			l.Source,
			l.Status,
			l.JobsFound,
			l.NewJobs,
			l.UpdatedJobs,
			l.Duplicates,
			l.Errors,
			stop,
			l.StartedAt.Local().Format("2006-01-02 15:04"),
			(time.Duration(l.DurationMs) * time.Millisecond).Round(time.Second),
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	logsListCmd.Flags().String("run", "", "filter by run id")
	logsListCmd.Flags().String("source", "", "filter by board")
	logsListCmd.Flags().Duration("since", 0, "only logs started within this window (e.g. 24h)")
	logsListCmd.Flags().Int("limit", 50, "max logs to show")

	logsCmd.AddCommand(logsListCmd)
	rootCmd.AddCommand(logsCmd)
}
