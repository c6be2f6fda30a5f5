// Package cmd - migrate and seed commands
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/warp/budget-engine/scenario"
	"github.com/warp/budget-engine/store/sqlite"
)

var (
	migrateStatus bool

	seedScenario string
	seedList     bool
)

// migrateCmd applies the embedded schema migrations
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

// seedCmd loads a demo scenario
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load a demo scenario into an empty database",
	Args:  cobra.NoArgs,
	RunE:  runSeed,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateStatus, "status", false, "print the current schema version without migrating")

	seedCmd.Flags().StringVarP(&seedScenario, "scenario", "s", "standard", "scenario to load")
	seedCmd.Flags().BoolVar(&seedList, "list", false, "list available scenarios")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	if migrateStatus {
		v, err := sqlite.SchemaVersion(cmd.Context(), db)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", v)
		return nil
	}

	v, err := sqlite.Migrate(cmd.Context(), db)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", v)
	return nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if seedList {
		for _, sc := range scenario.List() {
			fmt.Fprintf(out, "%-20s %s\n", sc.ID, sc.Description)
		}
		return nil
	}

	s, err := openStack()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := scenario.Load(cmd.Context(), seedScenario, s.store, s.catalog); err != nil {
		return err
	}
	fmt.Fprintf(out, "loaded scenario %s into %s\n", seedScenario, cfg.Database.Path)
	return nil
}
