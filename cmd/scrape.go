package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/jobleads-cli/internal/config"
	"github.com/sells-group/jobleads-cli/internal/orchestrator"
	"github.com/sells-group/jobleads-cli/internal/source"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape job boards into the lead table",
	Long:  "Walks the selected boards one after another, upserting every listing and stopping a board early once it runs into known inventory.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "scrape", nil, stderrLog)
		if err != nil {
			return err
		}
		defer env.Close()

		sources, _ := cmd.Flags().GetStringSlice("sources")
		keyword, _ := cmd.Flags().GetString("keyword")
		location, _ := cmd.Flags().GetString("location")
		pages, _ := cmd.Flags().GetInt("pages")
		contacts, _ := cmd.Flags().GetBool("contacts")

		params := scrapeParams(sources, keyword, location, pages, contacts)
		sum, err := env.Orchestrator.Start(ctx, params)
		if err != nil {
			return eris.Wrap(err, "scrape")
		}

		zap.L().Info("scrape summary", zap.String("run_id", sum.RunID), zap.Bool("stopped", sum.Stopped))
		formatScrapeSummary(os.Stdout, sum)
		return nil
	},
}

// scrapeParams fills unset run parameters from config.
func scrapeParams(sources []string, keyword, location string, pages int, contacts bool) orchestrator.RunParams {
	ids := config.Sources(sources)
	if len(ids) == 0 {
		ids = config.Sources(cfg.Scrape.DefaultSources)
	}
	if pages <= 0 {
		pages = cfg.Scrape.MaxPages
	}
	return orchestrator.RunParams{
		Sources: ids,
		Params: source.Params{
			Keyword:  keyword,
			Location: location,
			MaxPages: pages,
		},
		Contacts: contacts,
	}
}

func formatScrapeSummary(w io.Writer, sum *orchestrator.Summary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tSTATUS\tFOUND\tNEW\tUPDATED\tDUPES\tERRORS\tSMART STOP\tDURATION")
	for _, r := range sum.Sources {
		smart := ""
		if r.SmartStopped {
			smart = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\t%s\n",
			r.Source, r.Status, r.Found, r.New, r.Updated, r.Duplicates, r.Errors, smart, r.Duration.Round(time.Millisecond))
	}
	t := sum.Totals()
	fmt.Fprintf(tw, "TOTAL\t\t%d\t%d\t%d\t%d\t%d\t\t\n", t.Found, t.New, t.Updated, t.Duplicates, t.Errors)
	_ = tw.Flush()

	for _, r := range sum.Sources {
		if r.Error != "" {
			fmt.Fprintf(w, "%s: %s\n", r.Source, r.Error)
		}
	}
	if sum.Stopped {
		fmt.Fprintln(w, "Run was stopped before every source finished.")
	}
}

func init() {
	scrapeCmd.Flags().StringSlice("sources", nil, "boards to scrape (default from config)")
	scrapeCmd.Flags().String("keyword", "", "search keyword")
	scrapeCmd.Flags().String("location", "", "prefecture or area")
	scrapeCmd.Flags().Int("pages", 0, "page cap per board; can only lower the board's own cap")
	scrapeCmd.Flags().Bool("contacts", false, "crawl company homepages of new leads for phone and email")
	rootCmd.AddCommand(scrapeCmd)
}
