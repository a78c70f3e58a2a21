package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dmitriyabr/duma-erp-sub003/internal/model"
	"github.com/dmitriyabr/duma-erp-sub003/internal/reports"
)

type reportOptions struct {
	asOf, from, to string
	account        string
	out            string
	json           bool
}

func newReportCommand(g *globals) *cobra.Command {
	var opts reportOptions

	cmd := &cobra.Command{
		Use:       "report <aging|reconciliation|inventory|claims|dashboard>",
		Short:     "Print a report as CSV, or as JSON with --json",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"aging", "reconciliation", "inventory", "claims", "dashboard"},
		RunE: func(cmd *cobra.Command, args []string) error {
			asOf, err := parseDateFlag("as-of", opts.asOf)
			if err != nil {
				return err
			}
			if asOf.IsZero() {
				asOf = model.Today()
			}
			from, err := parseDateFlag("from", opts.from)
			if err != nil {
				return err
			}
			to, err := parseDateFlag("to", opts.to)
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			rep := a.svc.Reports
			var v any
			switch args[0] {
			case "aging":
				v, err = rep.InvoiceAging(ctx, asOf)
			case "reconciliation":
				v, err = rep.Reconciliation(ctx, reports.ReconFilter{AccountCode: opts.account, From: from, To: to})
			case "inventory":
				v, err = rep.InventoryValuation(ctx)
			case "claims":
				v, err = rep.ClaimsSummary(ctx, reports.ClaimsFilter{From: from, To: to})
			case "dashboard":
				start, serr := a.cfg.Fiscal.YearStartFor(asOf.Time)
				if serr != nil {
					return serr
				}
				v, err = rep.Dashboard(ctx, asOf, model.DateOf(start))
			}
			if err != nil {
				return err
			}

			if opts.out == "" {
				return writeReport(cmd.OutOrStdout(), v, opts.json)
			}
			f, err := os.Create(opts.out)
			if err != nil {
				return fmt.Errorf("creating %s: %w", opts.out, err)
			}
			if err := writeReport(f, v, opts.json); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	}

	cmd.Flags().StringVar(&opts.asOf, "as-of", "", "report date for aging and dashboard (YYYY-MM-DD, default today)")
	cmd.Flags().StringVar(&opts.from, "from", "", "start of the period (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.to, "to", "", "end of the period (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.account, "account", "", "bank account for the reconciliation report")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "write to file instead of stdout")
	cmd.Flags().BoolVar(&opts.json, "json", false, "write JSON instead of CSV")
	return cmd
}

// writeReport writes tabular reports as CSV unless asJSON. The dashboard is
// always JSON.
func writeReport(w io.Writer, v any, asJSON bool) error {
	if t, ok := v.(reports.Table); ok && !asJSON {
		return reports.WriteCSV(w, t)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
