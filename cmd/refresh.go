package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/jobleads-cli/internal/model"
	"github.com/sells-group/jobleads-cli/internal/refresh"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Re-check stored companies on every board",
	Long:  "Searches each board for every selected company by name and records budget-rank, job-count and listing-status changes.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ids, _ := cmd.Flags().GetInt64Slice("id")
		all, _ := cmd.Flags().GetBool("all")
		if len(ids) == 0 && !all {
			return eris.New("refresh: pass --id or --all")
		}
		if all {
			ids = nil
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "refresh", nil, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		engine, err := env.newRefreshEngine(nil, stderrLog)
		if err != nil {
			return err
		}
		sum, err := engine.Refresh(ctx, ids)
		if err != nil {
			return eris.Wrap(err, "refresh")
		}

		formatRefreshSummary(os.Stdout, sum)
		return nil
	},
}

func formatRefreshSummary(w io.Writer, sum *refresh.Summary) {
	if len(sum.Results) == 0 {
		fmt.Fprintln(w, "No leads to refresh.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCOMPANY\tRANK\tJOBS\tLISTING\tCHANGES")
	for _, r := range sum.Results {
		changes := describeChanges(r.Changes)
		if r.Error != "" {
			changes = "error: " + r.Error
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n",
			r.LeadID, truncate(r.Company, 30), rankLabel(r.Rank), r.JobCount, r.ListingStatus, changes)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "\n%d processed, %d changed, %d errors\n", sum.Processed, sum.Changed, sum.Errors)
}

func describeChanges(changes model.ChangeReport) string {
	if len(changes) == 0 {
		return "-"
	}
	fields := make([]string, 0, len(changes))
	for f := range changes {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		c := changes[f]
		parts = append(parts, fmt.Sprintf("%s %v→%v", f, c.Old, c.New))
	}
	return strings.Join(parts, ", ")
}

func rankLabel(r model.Rank) string {
	if r == "" {
		return "-"
	}
	return string(r)
}

func init() {
	refreshCmd.Flags().Int64Slice("id", nil, "lead id to refresh (repeatable)")
	refreshCmd.Flags().Bool("all", false, "refresh every stored lead")
	rootCmd.AddCommand(refreshCmd)
}
