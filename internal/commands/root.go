package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dmitriyabr/duma-erp-sub003/internal/buildinfo"
	"github.com/dmitriyabr/duma-erp-sub003/internal/config"
	"github.com/dmitriyabr/duma-erp-sub003/internal/logging"
)

// globals are the values every subcommand shares, filled in by the root
// command's PersistentPreRunE.
type globals struct {
	configPath string
	verbose    bool

	cfg *config.Config
	log *zap.Logger
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:     "duma",
		Short:   "School back office: invoicing, procurement, inventory, claims and bank reconciliation",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(g.configPath)
			if err != nil {
				return err
			}
			level := cfg.Log.Level
			if g.verbose {
				level = "debug"
			}
			log, err := logging.New(level, cfg.Log.Development)
			if err != nil {
				return err
			}
			g.cfg, g.log = cfg, log
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if g.log != nil {
				_ = g.log.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&g.configPath, "config", "duma.yaml", "path to duma.yaml")
	rootCmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "log at debug level")

	rootCmd.AddCommand(
		newInitCommand(),
		newMigrateCommand(g),
		newServeCommand(g),
		newImportCommand(g),
		newReconcileCommand(g),
		newReportCommand(g),
		newAccountsCommand(g),
	)

	return rootCmd
}
