package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmitriyabr/duma-erp-sub003/internal/model"
	"github.com/dmitriyabr/duma-erp-sub003/internal/reconcile"
)

func newReconcileCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Match bank statement lines to payments and payouts",
	}
	cmd.AddCommand(newAutoMatchCommand(g))
	return cmd
}

func newAutoMatchCommand(g *globals) *cobra.Command {
	var account, from, to string

	cmd := &cobra.Command{
		Use:   "auto",
		Short: "Run the automatic matcher over unmatched lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := reconcile.AutoMatchParams{AccountCode: account}
			var err error
			if p.From, err = parseDateFlag("from", from); err != nil {
				return err
			}
			if p.To, err = parseDateFlag("to", to); err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer a.Close()

			run, err := a.svc.Reconcile.AutoMatch(cmd.Context(), p)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run %s\n", run.ID)
			fmt.Fprintf(out, "  processed:    %d\n", run.Processed)
			fmt.Fprintf(out, "  auto-matched: %d\n", run.AutoMatched)
			fmt.Fprintf(out, "  needs review: %d\n", run.NeedsReview)
			fmt.Fprintf(out, "  unmatched:    %d\n", run.Unmatched)
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "only lines of this bank account")
	cmd.Flags().StringVar(&from, "from", "", "earliest posting date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "latest posting date (YYYY-MM-DD)")
	return cmd
}

func parseDateFlag(name, v string) (model.Date, error) {
	if v == "" {
		return model.Date{}, nil
	}
	d, err := model.ParseDate(v)
	if err != nil {
		return model.Date{}, fmt.Errorf("--%s: %w", name, err)
	}
	return d, nil
}
