// Package cmd provides the CLI commands for budgetctl.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/budget-engine/catalog"
	"github.com/warp/budget-engine/config"
	"github.com/warp/budget-engine/cost"
	"github.com/warp/budget-engine/logging"
	"github.com/warp/budget-engine/store/sqlite"
)

var (
	cfgFile string
	dbPath  string
	verbose bool

	cfg    config.Config
	logger = zap.NewNop()
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "budgetctl",
	Short: "Inspect and maintain the IT equipment budget database",
	Long: `budgetctl works directly on the budget database: it applies schema
migrations, loads demo data, prices positions and rollups, shows cost
history and writes CSV/XLSX reports.

Examples:
  budgetctl migrate --db ./budget.db
  budgetctl seed --scenario standard
  budgetctl cost organization
  budgetctl cost position 100 --as-of 2025-01-01T00:00:00Z
  budgetctl history hardware 3
  budgetctl export positions --format xlsx --out positions.xlsx`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides database.path)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(costCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(exportCmd)
}

func initConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if dbPath != "" {
		c.Database.Path = dbPath
	}
	if verbose {
		c.Logging.Level = "debug"
	}

	l, err := logging.New(c.Logging)
	if err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	cfg, logger = c, l
	return nil
}

// stack is the engine wiring shared by the data commands.
type stack struct {
	store   *sqlite.Store
	engine  *cost.Engine
	catalog *catalog.Service
}

func openStack() (*stack, error) {
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.Database.Path, err)
	}
	return &stack{
		store:   store,
		engine:  cost.NewEngine(store, cost.WithLogger(logger)),
		catalog: catalog.NewService(store, cost.NewRecorder(store, logger), logger),
	}, nil
}

func (s *stack) Close() error {
	return s.store.Close()
}
