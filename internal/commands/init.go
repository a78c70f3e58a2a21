package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dmitriyabr/duma-erp-sub003/internal/accounts"
	"github.com/dmitriyabr/duma-erp-sub003/internal/config"
)

const (
	configFile = "duma.yaml"
	chartFile  = "chart-of-accounts.csv"
)

func newInitCommand() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new duma workspace",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			absDir, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}

			if err := runInit(absDir, name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized duma workspace for %s at %s\n", name, absDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "school name (required)")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func runInit(dir, name string) error {
	cfgPath := filepath.Join(dir, configFile)
	if _, err := os.Stat(cfgPath); !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s already exists", cfgPath)
	}

	cfg := config.Default(name)
	cfg.Paths.DataDir = filepath.Join(dir, "data")
	cfg.Paths.ImportDir = filepath.Join(dir, "import")
	cfg.Database.DSN = "file:" + filepath.Join(cfg.Paths.DataDir, "duma.db") +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	dirs := []string{
		cfg.Paths.DataDir,
		filepath.Join(cfg.Paths.DataDir, "logs"),
		cfg.Paths.ImportDir,
		filepath.Join(cfg.Paths.ImportDir, "processed"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, chartFile))
	if err != nil {
		return fmt.Errorf("creating chart of accounts: %w", err)
	}
	defer f.Close()
	if err := accounts.WriteAccounts(f, accounts.DefaultChart()); err != nil {
		return fmt.Errorf("writing chart of accounts: %w", err)
	}
	return f.Close()
}
