package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/jobleads-cli/internal/browser"
	"github.com/sells-group/jobleads-cli/internal/enrich"
	"github.com/sells-group/jobleads-cli/internal/scrape"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Fill empty phone, summary and contact fields from outside services",
	Long:  "Looks up phones with Google Places, writes AI summaries with Claude and crawls company homepages. Only empty fields are ever written.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		phones, _ := cmd.Flags().GetBool("phones")
		summaries, _ := cmd.Flags().GetBool("summaries")
		contacts, _ := cmd.Flags().GetBool("contacts")
		noBrowser, _ := cmd.Flags().GetBool("no-browser")
		ids, _ := cmd.Flags().GetInt64Slice("id")
		limit, _ := cmd.Flags().GetInt("limit")

		if !phones && !summaries && !contacts {
			phones, summaries = true, true
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		mode := "enrich"
		if !phones && !summaries {
			// The contact pass needs no API keys.
			mode = "scrape"
		}
		env, err := initEnv(ctx, mode, nil, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		if phones && cfg.Google.Key == "" {
			fmt.Fprintln(os.Stderr, "google.key is not set; skipping phone lookup")
		}
		if summaries && cfg.Anthropic.Key == "" {
			fmt.Fprintln(os.Stderr, "anthropic.key is not set; skipping summaries")
		}

		var launcher browser.Launcher = env.Launcher
		if noBrowser {
			launcher = scrape.NewHTTPSession(cfg.Browser.UserAgent, cfg.Contact.HTTPRateLimit).Launcher()
		}

		rep, err := env.newEnrichService(launcher, stderrLog).Run(ctx, enrich.Options{
			Phones:    phones,
			Summaries: summaries,
			Contacts:  contacts,
			IDs:       ids,
			Limit:     limit,
		})
		if err != nil {
			return eris.Wrap(err, "enrich")
		}

		fmt.Fprintf(os.Stdout, "checked %d, phones %d, summaries %d, sites %d, emails %d, failures %d\n",
			rep.Checked, rep.PhonesFound, rep.SummariesAdded, rep.ContactsVisited, rep.EmailsFound, rep.Failures)
		return nil
	},
}

func init() {
	enrichCmd.Flags().Bool("phones", false, "look up missing phones with Google Places")
	enrichCmd.Flags().Bool("summaries", false, "write missing AI summaries and tags")
	enrichCmd.Flags().Bool("contacts", false, "crawl homepages for missing phone and email")
	enrichCmd.Flags().Bool("no-browser", false, "crawl homepages over plain HTTP instead of Chrome")
	enrichCmd.Flags().Int64Slice("id", nil, "restrict to these lead ids")
	enrichCmd.Flags().Int("limit", 0, "max leads per pass (default 1000)")
	rootCmd.AddCommand(enrichCmd)
}
