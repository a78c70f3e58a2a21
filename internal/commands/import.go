package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dmitriyabr/duma-erp-sub003/internal/importer"
	"github.com/dmitriyabr/duma-erp-sub003/internal/reconcile"
)

type importOptions struct {
	account string
	format  string
	scan    bool
}

func newImportCommand(g *globals) *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import a bank statement CSV",
		Long: "Import one statement file, or with --scan every CSV in the import directory.\n" +
			"Scanned files are moved to processed/ once imported.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.scan == (len(args) == 1) {
				return errors.New("give either a file or --scan")
			}
			format, err := statementFormat(g, opts)
			if err != nil {
				return err
			}
			opts.format = format

			a, err := openApp(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer a.Close()

			if opts.scan {
				return runImportScan(cmd.Context(), cmd.OutOrStdout(), a, opts)
			}
			res, err := importFile(cmd.Context(), a.svc.Reconcile, args[0], opts)
			if err != nil {
				return err
			}
			printImport(cmd.OutOrStdout(), args[0], res)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.account, "account", "", "bank account code (required)")
	_ = cmd.MarkFlagRequired("account")
	cmd.Flags().StringVar(&opts.format, "format", "", "statement format (defaults to the account's configured format, then standard)")
	cmd.Flags().BoolVar(&opts.scan, "scan", false, "import every CSV in the import directory")

	return cmd
}

// statementFormat resolves the parser: the flag, else the configured
// account's format, else standard.
func statementFormat(g *globals, opts importOptions) (string, error) {
	if opts.format != "" {
		return opts.format, nil
	}
	if len(g.cfg.BankAccounts) > 0 {
		acct, ok := g.cfg.BankAccount(opts.account)
		if !ok {
			return "", fmt.Errorf("bank account %q is not configured", opts.account)
		}
		if acct.Format != "" {
			return acct.Format, nil
		}
	}
	return "standard", nil
}

func importFile(ctx context.Context, svc *reconcile.Service, path string, opts importOptions) (reconcile.ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return reconcile.ImportResult{}, fmt.Errorf("opening statement: %w", err)
	}
	defer f.Close()

	res, err := svc.Import(ctx, opts.account, opts.format, f)
	if err != nil {
		return reconcile.ImportResult{}, fmt.Errorf("importing %s: %w", path, err)
	}
	return res, nil
}

func runImportScan(ctx context.Context, out io.Writer, a *app, opts importOptions) error {
	dir := a.cfg.Paths.ImportDir
	files, err := importer.Scan(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Fprintf(out, "No statements in %s\n", dir)
		return nil
	}

	var failed int
	for _, fi := range files {
		res, err := importFile(ctx, a.svc.Reconcile, fi.Path, opts)
		if err != nil {
			failed++
			a.log.Error("statement import failed", zap.String("file", fi.Name), zap.Error(err))
			fmt.Fprintf(out, "%s: %v\n", fi.Name, err)
			continue
		}
		printImport(out, fi.Name, res)
		if err := importer.MarkProcessed(dir, fi.Name); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d statements failed to import", failed, len(files))
	}
	return nil
}

func printImport(out io.Writer, name string, res reconcile.ImportResult) {
	fmt.Fprintf(out, "%s: %d lines, %d imported, %d duplicates (batch %s)\n",
		name, res.Total, res.Inserted, res.Duplicates, res.BatchID)
}
