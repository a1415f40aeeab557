package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/jobleads-cli/internal/model"
	"github.com/sells-group/jobleads-cli/internal/reconcile"
	"github.com/sells-group/jobleads-cli/internal/store"
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Inspect and maintain stored leads",
}

// -- leads list --

var leadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List leads",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		src, _ := cmd.Flags().GetString("source")
		status, _ := cmd.Flags().GetString("status")
		rank, _ := cmd.Flags().GetString("rank")
		search, _ := cmd.Flags().GetString("search")
		missingPhone, _ := cmd.Flags().GetBool("missing-phone")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		leads, err := st.List(ctx, store.LeadFilter{
			Source:       model.Source(src),
			Status:       model.LeadStatus(status),
			Rank:         model.ParseRank(rank),
			Search:       search,
			MissingPhone: missingPhone,
			Limit:        limit,
			Offset:       offset,
		})
		if err != nil {
			return eris.Wrap(err, "leads list")
		}

		if len(leads) == 0 {
			fmt.Fprintln(os.Stderr, "No leads found.")
			return nil
		}

		formatLeadsList(os.Stdout, leads)
		return nil
	},
}

// -- leads show --

var leadsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one lead in full",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Wrapf(err, "invalid lead id %q", args[0])
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		lead, err := st.GetByID(ctx, id)
		if err != nil {
			return eris.Wrap(err, "leads show")
		}

		output, _ := cmd.Flags().GetString("output")
		return writeLead(os.Stdout, lead, output)
	},
}

func writeLead(w io.Writer, lead *model.Lead, output string) error {
	switch output {
	case "yaml":
		// Lead only carries json tags; go through JSON so keys stay snake_case.
		b, err := json.Marshal(lead)
		if err != nil {
			return eris.Wrap(err, "encode lead")
		}
		var fields map[string]any
		if err := json.Unmarshal(b, &fields); err != nil {
			return eris.Wrap(err, "encode lead")
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close() //nolint:errcheck
		return eris.Wrap(enc.Encode(fields), "encode lead")
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(lead), "encode lead")
	default:
		return eris.Errorf("unknown output format %q", output)
	}
}

// -- leads delete --

var leadsDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete leads by id",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		ids := make([]int64, 0, len(args))
		for _, a := range args {
			id, err := strconv.ParseInt(a, 10, 64)
			if err != nil {
				return eris.Wrapf(err, "invalid lead id %q", a)
			}
			ids = append(ids, id)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.DeleteMany(ctx, ids)
		if err != nil {
			return eris.Wrap(err, "leads delete")
		}
		fmt.Fprintf(os.Stdout, "Deleted %d of %d leads.\n", n, len(ids))
		return nil
	},
}

// -- leads import --

var leadsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Upsert listings from a YAML file in one transaction",
	Long:  "Reads a YAML list of raw listings and writes them through the same field-protection rules as a scrape.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		path, _ := cmd.Flags().GetString("file")
		raws, err := readListings(path)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := reconcile.New(st).UpsertBatch(ctx, raws)
		if err != nil {
			return eris.Wrap(err, "leads import")
		}

		zap.L().Info("import complete",
			zap.String("file", path),
			zap.Int("new", res.New),
			zap.Int("updated", res.Updated),
		)
		fmt.Fprintf(os.Stdout, "%d new, %d updated\n", res.New, res.Updated)
		return nil
	},
}

// readListings decodes a YAML sequence of listings. Listings without a
// detail URL cannot be keyed and are rejected up front.
func readListings(path string) ([]*model.RawListing, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}
	var raws []*model.RawListing
	if err := yaml.Unmarshal(data, &raws); err != nil {
		return nil, eris.Wrapf(err, "parse %s", path)
	}
	for i, r := range raws {
		if r == nil || r.DetailURL == "" {
			return nil, eris.Errorf("%s: listing %d has no detail_url", path, i+1)
		}
		if r.ScrapeStatus == "" {
			r.ScrapeStatus = model.ScrapeStatusStep1
		}
	}
	return raws, nil
}

func formatLeadsList(out io.Writer, leads []model.Lead) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSOURCE\tCOMPANY\tRANK\tJOBS\tLISTING\tPHONE\tSTATUS\tUPDATED")
	for _, l := range leads {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			l.ID,
			l.Source,
			truncate(l.CompanyName, 30),
			rankLabel(l.BudgetRank),
			l.JobCount,
			orDash(string(l.ListingStatus)),
			orDash(l.Phone),
			l.Status,
			l.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// truncate shortens s to max runes.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	leadsListCmd.Flags().String("source", "", "filter by board")
	leadsListCmd.Flags().String("status", "", "filter by sales status")
	leadsListCmd.Flags().String("rank", "", "filter by budget rank (A, B or C)")
	leadsListCmd.Flags().String("search", "", "company name contains")
	leadsListCmd.Flags().Bool("missing-phone", false, "only leads without a phone number")
	leadsListCmd.Flags().Int("limit", 50, "max leads to show")
	leadsListCmd.Flags().Int("offset", 0, "leads to skip")

	leadsShowCmd.Flags().StringP("output", "o", "json", "output format: json or yaml")

	leadsImportCmd.Flags().String("file", "", "YAML file of listings (required)")
	_ = leadsImportCmd.MarkFlagRequired("file")

	leadsCmd.AddCommand(leadsListCmd, leadsShowCmd, leadsDeleteCmd, leadsImportCmd)
	rootCmd.AddCommand(leadsCmd)
}
